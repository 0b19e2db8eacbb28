package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeLimiterStore struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	return f.counts[key], nil
}

func TestRateLimitBlocksAfterIPLimit(t *testing.T) {
	policy := NewRateLimitPolicy("submit", time.Minute, 2, 0)
	store := &fakeLimiterStore{}
	handler := RateLimit(policy, store, newMiddlewareLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/media", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("request %d blocked unexpectedly: %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/media", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRateLimitCountsPerTenant(t *testing.T) {
	policy := NewRateLimitPolicy("submit", time.Minute, 0, 1)
	store := &fakeLimiterStore{}
	handler := RateLimit(policy, store, newMiddlewareLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func(tenantID string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/media", nil)
		req = req.WithContext(WithTenantID(req.Context(), tenantID))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("tenant-a"); code != http.StatusAccepted {
		t.Fatalf("first tenant-a request blocked: %d", code)
	}
	if code := send("tenant-a"); code != http.StatusTooManyRequests {
		t.Fatalf("second tenant-a request should be blocked, got %d", code)
	}
	if code := send("tenant-b"); code != http.StatusAccepted {
		t.Fatalf("tenant-b should have its own budget, got %d", code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	policy := NewRateLimitPolicy("submit", 0, 0, 0)
	handler := RateLimit(policy, &fakeLimiterStore{}, newMiddlewareLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/media", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("disabled policy should not block, got %d", rec.Code)
	}
}
