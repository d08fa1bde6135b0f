package ciscoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/productdb/eoxsync/app/cache"
	"github.com/productdb/eoxsync/app/metrics"
)

const (
	TokenCacheKey = "cisco_api_auth_token"

	expireLayout = "2006-01-02 15:04:05.000000"
)

// Credentials are the OAuth2 client credentials and the token endpoint.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
}

// Token is a ready-to-send authorization header and its expiry.
type Token struct {
	AuthHeader string
	ExpiresAt  time.Time
}

type cachedToken struct {
	HTTPAuthHeader string `json:"http_auth_header"`
	ExpireDatetime string `json:"expire_datetime"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenManager hands out the bearer header for upstream calls. The shared
// cache lets sibling workers reuse a token obtained by any of them.
type TokenManager struct {
	httpClient *http.Client
	cache      cache.Cache
	creds      Credentials
	userAgent  string
	now        func() time.Time

	mu    sync.Mutex
	token *Token
}

func NewTokenManager(httpClient *http.Client, c cache.Cache, creds Credentials, userAgent string) *TokenManager {
	return &TokenManager{
		httpClient: httpClient,
		cache:      c,
		creds:      creds,
		userAgent:  userAgent,
		now:        time.Now,
	}
}

// Authorize returns an authorization header valid at the moment of return.
func (m *TokenManager) Authorize(ctx context.Context) (string, error) {
	if m.creds.ClientID == "" || m.creds.ClientSecret == "" {
		return "", ErrMissingCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != nil && m.now().Before(m.token.ExpiresAt) {
		return m.token.AuthHeader, nil
	}

	if token := m.loadCached(ctx); token != nil {
		m.token = token
		return token.AuthHeader, nil
	}

	token, ttl, err := m.requestToken(ctx)
	if err != nil {
		metrics.TokenRequests.WithLabelValues("failed").Inc()
		return "", err
	}
	metrics.TokenRequests.WithLabelValues("ok").Inc()

	m.token = token
	m.storeCached(ctx, token, ttl)

	return token.AuthHeader, nil
}

// Invalidate drops the in-memory and the shared token.
func (m *TokenManager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()

	if err := m.cache.Delete(ctx, TokenCacheKey); err != nil {
		return fmt.Errorf("failed to drop cached token: %w", err)
	}
	return nil
}

func (m *TokenManager) loadCached(ctx context.Context) *Token {
	raw, err := m.cache.Get(ctx, TokenCacheKey)
	if err != nil {
		slog.Warn("Failed to read cached token", "error", err)
		return nil
	}
	if raw == "" {
		return nil
	}

	var cached cachedToken
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		slog.Debug("Cannot decode cached token, requesting a new one", "error", err)
		return nil
	}

	expiresAt, err := time.ParseInLocation(expireLayout, cached.ExpireDatetime, time.Local)
	if err != nil {
		slog.Debug("Cannot parse cached token expiry, requesting a new one", "error", err)
		return nil
	}

	if cached.HTTPAuthHeader == "" || !m.now().Before(expiresAt) {
		return nil
	}

	slog.Debug("Using cached access token", "expires_at", expiresAt)
	return &Token{AuthHeader: cached.HTTPAuthHeader, ExpiresAt: expiresAt}
}

func (m *TokenManager) storeCached(ctx context.Context, token *Token, ttl time.Duration) {
	value, err := json.Marshal(cachedToken{
		HTTPAuthHeader: token.AuthHeader,
		ExpireDatetime: token.ExpiresAt.In(time.Local).Format(expireLayout),
	})
	if err != nil {
		slog.Warn("Failed to encode token for cache", "error", err)
		return
	}

	if err := m.cache.Set(ctx, TokenCacheKey, string(value), ttl); err != nil {
		slog.Warn("Failed to save token to cache", "error", err)
	}
}

func (m *TokenManager) requestToken(ctx context.Context) (*Token, time.Duration, error) {
	form := url.Values{}
	form.Set("client_id", m.creds.ClientID)
	form.Set("client_secret", m.creds.ClientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.creds.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrAuthServerUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}

	requestedAt := m.now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		slog.Error("Cannot contact authentication server", "url", m.creds.AuthURL, "error", err)
		return nil, 0, fmt.Errorf("%w: %v", ErrAuthServerUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrAuthServerUnreachable, err)
	}

	if category, detail, failed := classifyStatus(resp.StatusCode, body); failed {
		slog.Error("Cannot claim access token", "url", m.creds.AuthURL, "reason", detail)
		return nil, 0, tokenError(category, detail)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		slog.Error("Unexpected response from authentication server (malformed JSON content)", "url", m.creds.AuthURL)
		return nil, 0, fmt.Errorf("%w: %v", ErrAuthServerMalformed, err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return nil, 0, fmt.Errorf("%w: token response without access token or lifetime", ErrAuthServerMalformed)
	}

	ttl := time.Duration(tr.ExpiresIn) * time.Second
	token := &Token{
		AuthHeader: fmt.Sprintf("%s %s", tr.TokenType, tr.AccessToken),
		ExpiresAt:  requestedAt.Add(ttl),
	}

	slog.Debug("Access token acquired", "expires_at", token.ExpiresAt)
	return token, ttl, nil
}

func tokenError(category ResponseCategory, detail string) error {
	switch category {
	case CategoryAuthFailed:
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, detail)
	case CategoryInsufficientPermissions:
		return fmt.Errorf("%w: %s", ErrInsufficientPermissions, detail)
	default:
		return fmt.Errorf("%w: %s", ErrAuthServerMalformed, detail)
	}
}
