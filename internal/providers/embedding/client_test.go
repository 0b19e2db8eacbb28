package embedding

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxline-ai/voxline-backend/pkg/config"
	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})
	client, err := NewClient(config.ProvidersConfig{
		EmbeddingURL:     url,
		EmbeddingModel:   "test-model",
		EmbeddingTimeout: 5 * time.Second,
	}, logg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func vectorResponse(count int) []byte {
	type item struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	data := make([]item, count)
	for i := range data {
		data[i] = item{Index: i, Embedding: make([]float32, models.EmbeddingDimensions)}
	}
	body, _ := json.Marshal(map[string]any{"data": data})
	return body
}

func TestEmbedReturnsVectorsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("unexpected model %q", req.Model)
		}
		w.Write(vectorResponse(len(req.Input)))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	vectors, err := client.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if len(vectors[0]) != models.EmbeddingDimensions {
		t.Fatalf("unexpected dimensionality %d", len(vectors[0]))
	}
}

func TestEmbedRetriesRateLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(vectorResponse(1))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	vectors, err := client.Embed(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}
}

func TestEmbedTerminalOnBadRequest(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Embed(context.Background(), []string{"alpha"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("terminal errors must not retry, got %d calls", calls)
	}
	if IsRetryable(err) {
		t.Fatal("bad request must be terminal")
	}
}

func TestEmbedRejectsWrongDimensionality(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{"data": []map[string]any{
			{"index": 0, "embedding": []float32{1, 2, 3}},
		}})
		w.Write(body)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Embed(context.Background(), []string{"alpha"})
	if err == nil {
		t.Fatal("expected dimensionality error")
	}
}
