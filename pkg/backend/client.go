package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kiranaai/go-kirana/internal/httpc"
)

// Default client tuning.
const (
	DefaultTimeout    = 15 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 500 * time.Millisecond
)

// Config holds backend client configuration.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	BaseURL string

	// Timeout bounds each Send round-trip, retries included.
	Timeout time.Duration

	// MaxRetries is the number of retries for retryable failures.
	MaxRetries int

	// RetryDelay is the base delay between retries (grows linearly).
	RetryDelay time.Duration

	// Logger for request logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// Client is an HTTP client for the backend chat API.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "backend.client"),
	}, nil
}

type chatRequest struct {
	Message  string    `json:"message"`
	History  []Message `json:"history"`
	Language string    `json:"language"`
}

type chatResponse struct {
	Response        string `json:"response"`
	ActionPerformed bool   `json:"action_performed"`
	Detail          string `json:"detail,omitempty"`
}

// Send implements Conversation.
func (c *Client) Send(ctx context.Context, message string, history []Message, language string) (Reply, error) {
	start := time.Now()

	body, err := json.Marshal(chatRequest{
		Message:  message,
		History:  history,
		Language: language,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("backend: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.doWithRetry(ctx, body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Reply{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Reply{}, err
	}

	c.logger.Debug("chat reply",
		"chars", len(resp.Response),
		"action", resp.ActionPerformed,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return Reply{}, ErrEmptyReply
	}

	return Reply{Text: text, ActionPerformed: resp.ActionPerformed}, nil
}

// doWithRetry performs the chat request, retrying retryable failures with
// linear backoff until the context deadline.
func (c *Client) doWithRetry(ctx context.Context, body []byte) (*chatResponse, error) {
	url := c.cfg.BaseURL + "/api/chat"

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.RetryDelay * time.Duration(attempt)):
			}
			c.logger.Debug("retrying chat request", "attempt", attempt)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("backend: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &TransportError{Cause: err}
			continue
		}

		out, err := c.parseResponse(resp)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) parseResponse(resp *http.Response) (*chatResponse, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		var out chatResponse
		if json.Unmarshal(data, &out) == nil && out.Detail != "" {
			return nil, NewAPIError(resp.StatusCode, out.Detail)
		}
		return nil, NewAPIError(resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("backend: decode response: %w", err)
	}
	return &out, nil
}

// Ensure Client implements Conversation.
var _ Conversation = (*Client)(nil)
