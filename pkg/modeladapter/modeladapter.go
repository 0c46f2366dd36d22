package modeladapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/germanamz/granitechat/pkg/modeladapter/usage"
	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// RateLimitError is returned when the API responds with HTTP 429 (Too Many Requests).
// It carries an optional RetryAfter duration parsed from the Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("rate limited: %s", e.Body)
}

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// ParseRetryAfter parses the Retry-After header value as either seconds (integer)
// or an HTTP-date (RFC 7231). Returns zero if unparseable or if the date is in the past.
func ParseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Request is a single text-generation request. System is optional and is
// placed before Prompt by adapters that have no separate system slot.
type Request struct {
	System string
	Prompt string
}

// Response is the generated text plus bookkeeping reported by the endpoint.
type Response struct {
	Text       string
	StopReason string
	Usage      usage.TokenCount
}

// Completer sends a prompt to an LLM and returns the generated text.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// UsageReporter provides token usage information from a completer.
// Completers that embed ModelAdapter implement this interface automatically.
type UsageReporter interface {
	UsageTracker() *usage.Tracker
	ModelMaxTokens() int
}

// Throttler is implemented by completers whose outgoing requests can be
// rate limited. Completers that embed ModelAdapter implement it.
type Throttler interface {
	SetLimiter(l *rate.Limiter)
}

// ContextTokenSource is an oauth2.TokenSource whose token fetch can be
// cancelled. applyAuth passes the request context to it.
type ContextTokenSource interface {
	oauth2.TokenSource
	TokenContext(ctx context.Context) (*oauth2.Token, error)
}

// Auth holds static authentication settings for an LLM provider API.
type Auth struct {
	Key    string // API key value.
	Header string // Header name (default: "Authorization").
	Scheme string // Scheme prefix (default: "Bearer" when Header is "Authorization").
}

// ModelAdapter holds shared state for provider implementations. Embed it in
// concrete provider structs to get HTTP helpers, auth, custom headers,
// throttling, and usage tracking. Concrete types define their own Complete
// method to shadow the default stub.
type ModelAdapter struct {
	Name      string            // Model identifier (e.g. "ibm/granite-13b-chat-v2").
	MaxTokens int               // Maximum tokens in the response.
	Auth      Auth              // Static authentication settings.
	BaseURL   string            // API base URL (no trailing slash).
	Client    *http.Client      // HTTP client; falls back to a cached default.
	Headers   map[string]string // Extra headers applied to every request.
	Usage     usage.Tracker     // Token usage tracker.

	// TokenSource, when set, supplies a bearer token per request and takes
	// precedence over Auth.
	TokenSource oauth2.TokenSource

	// Limiter, when set, throttles outgoing requests.
	Limiter *rate.Limiter

	clientOnce    sync.Once
	defaultClient *http.Client
}

// New creates a ModelAdapter with the given settings.
// A nil client falls back to a default client at call time.
func New(baseURL string, auth Auth, client *http.Client) ModelAdapter {
	return ModelAdapter{
		Auth:    auth,
		BaseURL: baseURL,
		Client:  client,
	}
}

// NewLimiter returns a limiter allowing rpm requests per minute with a burst
// of one, or nil when rpm is not positive.
func NewLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

// SetLimiter sets the request throttle. A nil limiter disables throttling.
func (a *ModelAdapter) SetLimiter(l *rate.Limiter) { a.Limiter = l }

// UsageTracker returns the adapter's token usage tracker.
func (a *ModelAdapter) UsageTracker() *usage.Tracker { return &a.Usage }

// ModelMaxTokens returns the maximum tokens the model will generate per response.
func (a *ModelAdapter) ModelMaxTokens() int { return a.MaxTokens }

// Complete is a stub that returns an error. Concrete providers that embed
// ModelAdapter should define their own Complete method to shadow this one.
func (a *ModelAdapter) Complete(_ context.Context, _ Request) (Response, error) {
	return Response{}, errors.New("adapter: Complete not implemented")
}

// httpClient returns the configured client or a cached default client with a 2-minute timeout.
func (a *ModelAdapter) httpClient() *http.Client {
	if a.Client != nil {
		return a.Client
	}

	a.clientOnce.Do(func() {
		a.defaultClient = &http.Client{Timeout: 2 * time.Minute}
	})

	return a.defaultClient
}

// NewRequest builds an *http.Request with the base URL, auth, and custom
// headers already applied.
func (a *ModelAdapter) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
	if err != nil {
		return nil, err
	}

	if err := a.applyAuth(req); err != nil {
		return nil, err
	}

	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

func (a *ModelAdapter) applyAuth(req *http.Request) error {
	if a.TokenSource != nil {
		var (
			tok *oauth2.Token
			err error
		)
		if cts, ok := a.TokenSource.(ContextTokenSource); ok {
			tok, err = cts.TokenContext(req.Context())
		} else {
			tok, err = a.TokenSource.Token()
		}
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		tok.SetAuthHeader(req)
		return nil
	}

	if a.Auth.Key == "" {
		return nil
	}

	header := a.Auth.Header
	if header == "" {
		header = "Authorization"
	}

	value := a.Auth.Key
	if header == "Authorization" {
		scheme := a.Auth.Scheme
		if scheme == "" {
			scheme = "Bearer"
		}
		value = scheme + " " + value
	} else if a.Auth.Scheme != "" {
		value = a.Auth.Scheme + " " + value
	}

	req.Header.Set(header, value)

	return nil
}

// Do waits for the limiter (if any) and sends the request using the
// configured HTTP client.
func (a *ModelAdapter) Do(req *http.Request) (*http.Response, error) {
	if a.Limiter != nil {
		if err := a.Limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("throttle: %w", err)
		}
	}

	return a.httpClient().Do(req) //nolint:gosec // URL is built from trusted BaseURL config, not user input.
}

// PostJSON marshals payload as JSON, sends a POST to the given path,
// checks for a 2xx status, and unmarshals the response body into dest.
// If dest is nil the response body is discarded after the status check.
func (a *ModelAdapter) PostJSON(ctx context.Context, path string, payload any, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := a.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(resp.Body)
		return &RateLimitError{
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       string(respBody),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if dest == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
