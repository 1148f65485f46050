package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranaai/go-kirana/internal/httpc"
)

// Default client tuning.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 1
	DefaultRetryDelay = 300 * time.Millisecond
)

// Config holds TTS client configuration.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	BaseURL string

	// Timeout bounds each synthesis request.
	Timeout time.Duration

	// MaxRetries is the number of retries for retryable failures.
	MaxRetries int

	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration

	// Cache is an optional local audio cache. Nil disables caching.
	Cache *Cache

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

// Client fetches synthesized audio from the backend TTS endpoint.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a TTS client.
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
		logger: cfg.Logger.With("component", "tts.client"),
	}, nil
}

// Synthesize implements Provider. The cache, when configured, is checked
// first and fed on every successful fetch.
func (c *Client) Synthesize(ctx context.Context, text, language string) (*AudioResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	voice := VoiceFor(language)
	if c.cfg.Cache != nil {
		if audio, ok := c.cfg.Cache.Get(text, language, voice); ok {
			return &AudioResult{
				Audio:    audio,
				Duration: EstimateDuration(len(audio)),
				Voice:    voice,
				Cached:   true,
			}, nil
		}
	}

	start := time.Now()
	audio, err := c.fetch(ctx, text, language)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"voice", voice,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if c.cfg.Cache != nil {
		c.cfg.Cache.Set(text, language, voice, audio)
	}

	return &AudioResult{
		Audio:    audio,
		Duration: EstimateDuration(len(audio)),
		Voice:    voice,
	}, nil
}

// fetch performs the GET with retry for transient failures.
func (c *Client) fetch(ctx context.Context, text, language string) ([]byte, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("language", language)
	endpoint := c.cfg.BaseURL + "/tts/?" + q.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("tts: create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("tts: request failed: %w", err)
			continue
		}

		audio, status, err := readBody(resp)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		if status != 0 && status != 429 && status < 500 {
			return nil, err
		}
	}
	return nil, lastErr
}

func readBody(resp *http.Response) ([]byte, int, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("tts: API error (HTTP %d)", resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("tts: read response: %w", err)
	}
	return audio, 0, nil
}

// Ensure Client implements Provider.
var _ Provider = (*Client)(nil)
