package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// expirySkew is how long before the recorded expiry a cached token is
// already considered stale.
const expirySkew = 60 * time.Second

// Error reports a failed client-credentials exchange. It is fatal to the
// sync run that triggered it; retries belong to the caller.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange failed: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token exchange failed: %s", e.Body)
}

// TokenProvider acquires and caches a bearer token via the OAuth2
// client-credentials grant. It is safe for concurrent use: refresh is
// serialized so a 401-triggered refresh by one sync run cannot race a read
// by another.
type TokenProvider struct {
	tokenURL     string
	clientID     string
	clientSecret string
	client       *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

// NewTokenProvider creates a provider for the given token endpoint.
func NewTokenProvider(tokenURL, clientID, clientSecret string, client *http.Client) *TokenProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenProvider{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
		now:          time.Now,
	}
}

// Token returns a cached token if it has more than a minute of life left,
// otherwise performs a fresh exchange.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.expiry.After(p.now().Add(expirySkew)) {
		return p.token, nil
	}

	token, expiresIn, err := p.exchange(ctx)
	if err != nil {
		return "", err
	}
	p.token = token
	p.expiry = p.now().Add(time.Duration(expiresIn) * time.Second)
	return p.token, nil
}

// Invalidate drops the cached token. Callers observing a 401 from a
// protected endpoint should invalidate and retry once.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiry = time.Time{}
	p.mu.Unlock()
}

func (p *TokenProvider) exchange(ctx context.Context) (string, int, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, &Error{Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &Error{StatusCode: resp.StatusCode, Body: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, &Error{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// The endpoint has been observed returning both a flat payload and one
	// wrapped in a data envelope.
	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Data        struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, &Error{StatusCode: resp.StatusCode, Body: fmt.Sprintf("unparseable token response: %v", err)}
	}

	token := payload.AccessToken
	expiresIn := payload.ExpiresIn
	if token == "" {
		token = payload.Data.AccessToken
		expiresIn = payload.Data.ExpiresIn
	}
	if token == "" {
		return "", 0, &Error{StatusCode: resp.StatusCode, Body: "response contained no access token"}
	}
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return token, expiresIn, nil
}
