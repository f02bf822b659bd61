package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// ClientCredentials fetches and caches an OAuth2 client-credentials bearer
// token, refreshing it shortly before the declared expiry. Concurrent
// callers racing a refresh are coalesced onto a single outbound token
// request by a single-flight guard (§8 scenario 6).
type ClientCredentials struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scopes       []string

	httpClient *http.Client
	logger     *slog.Logger

	cache *tokenCache
	group singleflight.Group
}

// ClientCredentialsConfig configures a ClientCredentials strategy.
type ClientCredentialsConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// NewClientCredentials builds a ClientCredentials strategy.
func NewClientCredentials(cfg ClientCredentialsConfig) *ClientCredentials {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientCredentials{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes:       cfg.Scopes,
		httpClient:   client,
		logger:       logger,
		cache:        newTokenCache(defaultExpiryBuffer),
	}
}

// Headers returns {"Authorization": "Bearer <token>"}. On token-fetch
// failure it logs and returns a nil map with a nil error, so the session
// proceeds with no bearer header rather than failing the call outright
// (§4.1).
func (c *ClientCredentials) Headers(ctx context.Context) (map[string]string, error) {
	if tok, ok := c.cache.get(); ok {
		return map[string]string{"Authorization": "Bearer " + tok}, nil
	}

	v, err, _ := c.group.Do(c.tokenURL, func() (any, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		c.logger.Warn("client-credentials token fetch failed, proceeding without bearer header",
			"token_url", c.tokenURL, "error", err)
		return nil, nil
	}

	tok := v.(string)
	return map[string]string{"Authorization": "Bearer " + tok}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   any    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (c *ClientCredentials) fetch(ctx context.Context) (string, error) {
	// A concurrent caller may have populated the cache while we waited to
	// enter the singleflight critical section.
	if tok, ok := c.cache.get(); ok {
		return tok, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	if len(c.scopes) > 0 {
		form.Set("scope", strings.Join(c.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	expiresIn := parseExpiresIn(tr.ExpiresIn)
	c.cache.set(tr.AccessToken, expiresIn)
	return tr.AccessToken, nil
}

func parseExpiresIn(v any) time.Duration {
	switch t := v.(type) {
	case float64:
		return time.Duration(t) * time.Second
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return time.Hour
}

// Invalidate clears the cached token, used after the session observes a
// 401 from the backend so the next call forces a fresh fetch.
func (c *ClientCredentials) Invalidate() {
	c.cache.invalidate()
}
