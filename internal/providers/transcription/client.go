package transcription

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
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
)

const (
	maxRetries       = 3
	retryBaseBackoff = 2 * time.Second
)

// Source identifies the media to transcribe. Exactly one identifier set is
// populated, matching Kind.
type Source struct {
	Kind          enums.SourceKind `json:"kind"`
	StorageKey    string           `json:"storage_key,omitempty"`
	YouTubeID     string           `json:"youtube_id,omitempty"`
	EmbedPlatform string           `json:"embed_platform,omitempty"`
	EmbedID       string           `json:"embed_id,omitempty"`
}

// Segment is one timed span of the transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is a completed transcription.
type Result struct {
	Text             string    `json:"text"`
	Segments         []Segment `json:"segments"`
	DetectedLanguage string    `json:"language"`
	DurationSeconds  float64   `json:"duration"`
}

// Provider is the transcription capability consumed by the pipeline.
type Provider interface {
	Transcribe(ctx context.Context, source Source, languageHint string) (*Result, error)
}

// Error is a classified provider failure.
type Error struct {
	Status    int
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcription provider: %s (status %d)", e.Message, e.Status)
}

// IsRetryable reports whether the error is worth another attempt.
func IsRetryable(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	// Timeouts and transport failures are transient.
	return err != nil && !errors.Is(err, context.Canceled)
}

// Client calls a Whisper-style HTTP transcription endpoint.
type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
	logg       *logger.Logger
}

// NewClient builds the transcription client from config.
func NewClient(cfg config.ProvidersConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.TranscriptionURL) == "" {
		return nil, errors.New("transcription url is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.TranscriptionTimeout},
		url:        cfg.TranscriptionURL,
		apiKey:     cfg.TranscriptionAPIKey,
		logg:       logg,
	}, nil
}

// Transcribe submits the source and retries transient failures with
// exponential backoff before giving up.
func (c *Client) Transcribe(ctx context.Context, source Source, languageHint string) (*Result, error) {
	payload, err := json.Marshal(struct {
		Source       Source `json:"source"`
		LanguageHint string `json:"language_hint,omitempty"`
	}{Source: source, LanguageHint: languageHint})
	if err != nil {
		return nil, err
	}

	var result *Result
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBaseBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, callErr := c.call(ctx, payload)
		if callErr != nil {
			if IsRetryable(callErr) {
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, payload []byte) (*Result, error) {
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

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: "malformed provider response", Retryable: false}
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, &Error{Status: resp.StatusCode, Message: "provider returned empty transcript", Retryable: false}
	}
	return &result, nil
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
	case status == http.StatusRequestEntityTooLarge:
		return &Error{Status: status, Message: "file too large", Retryable: false}
	case status == http.StatusUnsupportedMediaType:
		return &Error{Status: status, Message: "unsupported format", Retryable: false}
	default:
		return &Error{Status: status, Message: message, Retryable: false}
	}
}
