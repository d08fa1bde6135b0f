package ciscoapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/productdb/eoxsync/app/cache"
)

// authServer issues a numbered token per POST and counts the requests.
func authServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)

		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("Expected grant_type client_credentials, got %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("client_id") != "id" || r.PostForm.Get("client_secret") != "secret" {
			t.Errorf("Unexpected credentials %q/%q", r.PostForm.Get("client_id"), r.PostForm.Get("client_secret"))
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"Bearer","expires_in":3599}`, n)
	}))
	t.Cleanup(server.Close)
	return server
}

func testCredentials(authURL string) Credentials {
	return Credentials{ClientID: "id", ClientSecret: "secret", AuthURL: authURL}
}

func TestTokenManager_MissingCredentials(t *testing.T) {
	m := NewTokenManager(http.DefaultClient, cache.NewMemory(), Credentials{AuthURL: "http://localhost"}, "")

	_, err := m.Authorize(context.Background())
	if !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("Expected ErrMissingCredentials, got %v", err)
	}
}

func TestTokenManager_AuthorizeCachesToken(t *testing.T) {
	var calls int32
	server := authServer(t, &calls)
	store := cache.NewMemory()
	m := NewTokenManager(server.Client(), store, testCredentials(server.URL), "test-agent")
	ctx := context.Background()

	header, err := m.Authorize(ctx)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if header != "Bearer token-1" {
		t.Errorf("Expected 'Bearer token-1', got %q", header)
	}

	again, err := m.Authorize(ctx)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if again != header || atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected in-memory reuse, got %q after %d calls", again, calls)
	}

	raw, err := store.Get(ctx, TokenCacheKey)
	if err != nil || raw == "" {
		t.Fatalf("Expected cached token, got %q (%v)", raw, err)
	}

	var cached cachedToken
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		t.Fatalf("Cached token is not JSON: %v", err)
	}
	if cached.HTTPAuthHeader != "Bearer token-1" {
		t.Errorf("Expected cached header, got %q", cached.HTTPAuthHeader)
	}
	if _, err := time.ParseInLocation(expireLayout, cached.ExpireDatetime, time.Local); err != nil {
		t.Errorf("Unexpected expire_datetime format %q: %v", cached.ExpireDatetime, err)
	}

	ttl, err := store.GetTTL(ctx, TokenCacheKey)
	if err != nil {
		t.Fatalf("GetTTL failed: %v", err)
	}
	if ttl <= 0 || ttl > 3599*time.Second {
		t.Errorf("Expected TTL within token lifetime, got %v", ttl)
	}
}

func TestTokenManager_SharedAcrossWorkers(t *testing.T) {
	var calls int32
	server := authServer(t, &calls)
	store := cache.NewMemory()
	ctx := context.Background()

	workerA := NewTokenManager(server.Client(), store, testCredentials(server.URL), "")
	workerB := NewTokenManager(server.Client(), store, testCredentials(server.URL), "")

	headerA, err := workerA.Authorize(ctx)
	if err != nil {
		t.Fatalf("Worker A authorize failed: %v", err)
	}
	headerB, err := workerB.Authorize(ctx)
	if err != nil {
		t.Fatalf("Worker B authorize failed: %v", err)
	}

	if headerA != headerB {
		t.Errorf("Expected identical headers, got %q and %q", headerA, headerB)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected exactly one token request, got %d", n)
	}
}

func TestTokenManager_ExpiredTokenIsRenewed(t *testing.T) {
	var calls int32
	server := authServer(t, &calls)
	m := NewTokenManager(server.Client(), cache.NewMemory(), testCredentials(server.URL), "")
	ctx := context.Background()

	if _, err := m.Authorize(ctx); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	header, err := m.Authorize(ctx)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if header != "Bearer token-2" {
		t.Errorf("Expected renewed token, got %q", header)
	}
}

func TestTokenManager_Invalidate(t *testing.T) {
	var calls int32
	server := authServer(t, &calls)
	store := cache.NewMemory()
	m := NewTokenManager(server.Client(), store, testCredentials(server.URL), "")
	ctx := context.Background()

	if _, err := m.Authorize(ctx); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if err := m.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	exists, _ := store.Exists(ctx, TokenCacheKey)
	if exists {
		t.Error("Expected cached token to be removed")
	}

	header, err := m.Authorize(ctx)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if header != "Bearer token-2" {
		t.Errorf("Expected a new token after invalidate, got %q", header)
	}
}

func TestTokenManager_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid_client"}`, ErrInvalidCredentials},
		{"server error", http.StatusInternalServerError, ``, ErrAuthServerMalformed},
		{"not authorized page", http.StatusOK, `<html><h1>Not Authorized</h1></html>`, ErrInvalidCredentials},
		{"developer inactive page", http.StatusOK, `<html><h1>Developer Inactive</h1></html>`, ErrInsufficientPermissions},
		{"gateway timeout page", http.StatusOK, `<html><h1>Gateway Timeout</h1></html>`, ErrAuthServerMalformed},
		{"malformed json", http.StatusOK, `{"access_token":`, ErrAuthServerMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			m := NewTokenManager(server.Client(), cache.NewMemory(), testCredentials(server.URL), "")
			_, err := m.Authorize(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTokenManager_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	m := NewTokenManager(http.DefaultClient, cache.NewMemory(), testCredentials(url), "")
	_, err := m.Authorize(context.Background())
	if !errors.Is(err, ErrAuthServerUnreachable) {
		t.Errorf("Expected ErrAuthServerUnreachable, got %v", err)
	}
}
