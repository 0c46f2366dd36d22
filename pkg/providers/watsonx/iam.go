package watsonx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/germanamz/granitechat/pkg/modeladapter"
	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// DefaultIAMURL is the IBM Cloud IAM endpoint used to exchange API keys for
// bearer tokens.
const DefaultIAMURL = "https://iam.cloud.ibm.com"

const (
	iamTokenPath = "/identity/token"
	iamGrantType = "urn:ibm:params:oauth:grant-type:apikey"
)

// expiryDelta makes cached tokens refresh slightly before IAM expires them.
const expiryDelta = time.Minute

// IAMTokenSource exchanges an API key for an IAM access token and caches it
// until shortly before expiry. It is safe for concurrent use.
type IAMTokenSource struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu  sync.Mutex
	tok *oauth2.Token
}

var _ modeladapter.ContextTokenSource = (*IAMTokenSource)(nil)

type iamResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Expiration  int64  `json:"expiration"`
}

// NewIAMTokenSource returns a caching token source for the given API key.
// An empty baseURL uses DefaultIAMURL; a nil client uses a 30s-timeout client.
func NewIAMTokenSource(baseURL, apiKey string, client *http.Client) *IAMTokenSource {
	if baseURL == "" {
		baseURL = DefaultIAMURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &IAMTokenSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// Token implements oauth2.TokenSource.
func (s *IAMTokenSource) Token() (*oauth2.Token, error) {
	return s.TokenContext(context.Background())
}

// TokenContext returns the cached token, fetching a new one with ctx when the
// cache is empty or expired.
func (s *IAMTokenSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok.Valid() {
		return s.tok, nil
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.tok = tok

	return tok, nil
}

func (s *IAMTokenSource) fetch(ctx context.Context) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", iamGrantType)
	form.Set("apikey", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+iamTokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("iam: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req) //nolint:gosec // URL comes from configuration.
	if err != nil {
		return nil, fmt.Errorf("iam: do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("iam: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out iamResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("iam: decode response: %w", err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("iam: empty access token")
	}

	tok := &oauth2.Token{
		AccessToken: out.AccessToken,
		TokenType:   "Bearer",
	}

	switch {
	case out.Expiration > 0:
		tok.Expiry = time.Unix(out.Expiration, 0).Add(-expiryDelta)
	case out.ExpiresIn > 0:
		tok.Expiry = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - expiryDelta)
	}

	return tok, nil
}
