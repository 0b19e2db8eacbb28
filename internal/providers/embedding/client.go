package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/voxline-ai/voxline-backend/pkg/config"
	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
)

const (
	maxRetries       = 3
	retryBaseBackoff = time.Second
)

// Provider is the embedding capability consumed by the pipeline. Returned
// vectors keep the order of the input texts.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Error is a classified provider failure.
type Error struct {
	Status    int
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding provider: %s (status %d)", e.Message, e.Status)
}

// IsRetryable reports whether the error is worth another attempt.
func IsRetryable(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return err != nil && !errors.Is(err, context.Canceled)
}

// Client calls an OpenAI-style embeddings endpoint.
type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
	logg       *logger.Logger
}

// NewClient builds the embedding client from config.
func NewClient(cfg config.ProvidersConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.EmbeddingURL) == "" {
		return nil, errors.New("embedding url is required")
	}
	if strings.TrimSpace(cfg.EmbeddingModel) == "" {
		return nil, errors.New("embedding model is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.EmbeddingTimeout},
		url:        cfg.EmbeddingURL,
		apiKey:     cfg.EmbeddingAPIKey,
		model:      cfg.EmbeddingModel,
		logg:       logg,
	}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed vectorizes the batch, retrying rate limits and transient failures.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, err
	}

	var vectors [][]float32
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBaseBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, callErr := c.call(ctx, payload, len(texts))
		if callErr != nil {
			if IsRetryable(callErr) {
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		vectors = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *Client) call(ctx context.Context, payload []byte, expected int) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: "malformed provider response", Retryable: false}
	}
	if len(parsed.Data) != expected {
		return nil, &Error{
			Status:    resp.StatusCode,
			Message:   fmt.Sprintf("expected %d vectors, got %d", expected, len(parsed.Data)),
			Retryable: false,
		}
	}

	vectors := make([][]float32, expected)
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= expected {
			return nil, &Error{Status: resp.StatusCode, Message: "vector index out of range", Retryable: false}
		}
		if len(item.Embedding) != models.EmbeddingDimensions {
			return nil, &Error{
				Status:    resp.StatusCode,
				Message:   fmt.Sprintf("expected %d dimensions, got %d", models.EmbeddingDimensions, len(item.Embedding)),
				Retryable: false,
			}
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func classifyStatus(status int, body []byte) *Error {
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Status: status, Message: "rate limited", Retryable: true}
	case status >= 500:
		return &Error{Status: status, Message: message, Retryable: true}
	default:
		return &Error{Status: status, Message: message, Retryable: false}
	}
}
