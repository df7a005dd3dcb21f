package yomitan

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

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrUnreachable is returned when the API cannot be reached at all
	ErrUnreachable = errors.New("yomitan API unreachable")
	// ErrNoEntry is returned when the API answers 500, which it does when a
	// marker cannot be rendered for the term
	ErrNoEntry = errors.New("no yomitan entry for term")
	// ErrCircuitOpen is returned once too many consecutive requests failed
	ErrCircuitOpen = errors.New("yomitan API circuit open")
)

// IsUnreachable reports whether err means the API is down
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrCircuitOpen)
}

// StatusError is an unexpected HTTP status from the API
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("yomitan API returned status %d: %s", e.Code, e.Body)
}

// Config holds client settings
type Config struct {
	URL         string
	Timeout     time.Duration
	PingTimeout time.Duration
	// FailureThreshold is the number of consecutive transport failures
	// after which requests are refused
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration
}

// DefaultConfig returns the settings of a stock yomitan-api install
func DefaultConfig() *Config {
	return &Config{
		URL:              "http://127.0.0.1:8766",
		Timeout:          10 * time.Second,
		PingTimeout:      5 * time.Second,
		FailureThreshold: 3,
		OpenTimeout:      30 * time.Second,
	}
}

// Request is the body of POST /ankiFields
type Request struct {
	Text         string   `json:"text"`
	Type         string   `json:"type"`
	Markers      []string `json:"markers"`
	MaxEntries   int      `json:"maxEntries"`
	IncludeMedia bool     `json:"includeMedia"`
}

// NewTermRequest builds a term lookup for the given markers. The reading
// marker is appended so entries can be matched against a note's reading.
func NewTermRequest(text string, markers []string, maxEntries int) Request {
	if maxEntries < 1 {
		maxEntries = 1
	}

	seen := make(map[string]bool, len(markers)+1)
	req := Request{
		Text:         text,
		Type:         "term",
		MaxEntries:   maxEntries,
		IncludeMedia: true,
	}
	for _, m := range append(append([]string(nil), markers...), ReadingMarker) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		req.Markers = append(req.Markers, m)
	}
	return req
}

// Client talks to a local yomitan-api server
type Client struct {
	config  *Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a client. A nil config uses DefaultConfig.
func NewClient(config *Config, logger *zap.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.URL == "" {
		config.URL = defaults.URL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = defaults.PingTimeout
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = defaults.OpenTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.URL = strings.TrimRight(config.URL, "/")

	c := &Client{
		config: config,
		http:   &http.Client{},
		logger: logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "yomitan",
		Timeout: config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		// Only transport failures say anything about the server's health
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ErrUnreachable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return c
}

// URL returns the server base URL
func (c *Client) URL() string {
	return c.config.URL
}

// Ping asks the server for its version
func (c *Client) Ping(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.PingTimeout)
	defer cancel()

	body, err := c.post(ctx, "/yomitanVersion", nil)
	if err != nil {
		return "", err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		if v, ok := payload["version"].(string); ok {
			return v, nil
		}
	}
	return strings.TrimSpace(string(body)), nil
}

// AnkiFields renders the requested markers for a term
func (c *Client) AnkiFields(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
		return c.post(reqCtx, "/ankiFields", payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(result.([]byte), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode ankiFields response: %w", err)
	}

	c.logger.Debug("ankiFields response",
		zap.String("text", req.Text),
		zap.Strings("markers", req.Markers),
		zap.Int("entries", len(resp.Fields)),
		zap.Int("media", len(resp.Media())))

	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := context.Cause(ctx); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			// Cancelled by the caller, not a server problem
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUnreachable, err)
	}

	switch {
	case resp.StatusCode == http.StatusInternalServerError:
		return nil, ErrNoEntry
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	return data, nil
}
