// Package httpclient wraps net/http with a circuit breaker shared by all
// remote calls to the same service (MyGene, GitHub, SPARQL endpoints, webhooks).
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status code %d", e.URL, e.Code)
	}
	return fmt.Sprintf("%s: status code %d: %s", e.URL, e.Code, e.Body)
}

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = gobreaker.ErrOpenState

// Config controls timeouts and when the breaker trips.
type Config struct {
	Name      string
	Timeout   time.Duration
	UserAgent string
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// Client is a breaker-guarded HTTP client.
type Client struct {
	http      *http.Client
	cb        *gobreaker.CircuitBreaker
	userAgent string
}

// New creates a client. Zero values in cfg fall back to defaults.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "go-biohub"
	}
	failures := cfg.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		cb:        cb,
		userAgent: cfg.UserAgent,
	}
}

// State reports the breaker state.
func (c *Client) State() string {
	return c.cb.State().String()
}

// Do sends req through the breaker. 5xx responses and transport errors count
// as failures. Any non-2xx response is returned as a *StatusError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	var clientErr error
	result, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		serr := &StatusError{URL: req.URL.String(), Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode >= 500 {
			return nil, serr
		}
		clientErr = serr
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	if clientErr != nil {
		return nil, clientErr
	}
	return result.(*http.Response), nil
}

// GetJSON fetches rawURL and decodes the body into target.
func (c *Client) GetJSON(ctx context.Context, rawURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.decode(req, target)
}

// PostForm posts form values and decodes the response with the given Accept type.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, accept string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.decode(req, target)
}

// PostJSON posts payload as JSON. A nil target discards the response body.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.decode(req, target)
}

func (c *Client) decode(req *http.Request, target any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if target == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", req.URL, err)
	}
	return nil
}

// Download streams rawURL into dest, creating parent directories.
// It returns the number of bytes written.
func (c *Client) Download(ctx context.Context, rawURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	return n, os.Rename(tmp, dest)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.Code == code
}
