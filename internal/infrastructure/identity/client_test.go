package identity

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/fortifiedfantasy/duels/internal/platform/logging"
	"github.com/fortifiedfantasy/duels/internal/usecase"
)

func newIntrospectServer(t *testing.T, requests *atomic.Int32, respond func(token string) introspectResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request body: %v", err)
		}
		var req introspectRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = sonic.ConfigDefault.NewEncoder(w).Encode(respond(req.Token))
	}))
}

func TestVerifyAccessToken(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := newIntrospectServer(t, &requests, func(token string) introspectResponse {
		if token == "good-token" {
			return introspectResponse{Active: true, MemberID: "member-a", Admin: true}
		}
		return introspectResponse{Active: false}
	})
	defer server.Close()

	c := NewClient(ClientConfig{
		BaseURL:        server.URL,
		IntrospectPath: "/v1/auth/introspect",
		Logger:         logging.NewNop(),
	})

	principal, err := c.VerifyAccessToken(t.Context(), "good-token")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if principal.MemberID != "member-a" || !principal.Admin {
		t.Fatalf("unexpected principal: %+v", principal)
	}

	if _, err := c.VerifyAccessToken(t.Context(), "stale-token"); !errors.Is(err, usecase.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for an inactive token, got %v", err)
	}
	if _, err := c.VerifyAccessToken(t.Context(), "   "); !errors.Is(err, usecase.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for a blank token, got %v", err)
	}
}

func TestVerifyAccessTokenCaches(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := newIntrospectServer(t, &requests, func(string) introspectResponse {
		return introspectResponse{Active: true, MemberID: "member-a"}
	})
	defer server.Close()

	c := NewClient(ClientConfig{
		BaseURL:  server.URL,
		CacheTTL: time.Minute,
		Logger:   logging.NewNop(),
	})

	for i := 0; i < 5; i++ {
		if _, err := c.VerifyAccessToken(t.Context(), "good-token"); err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("cache did not absorb repeat verifications: got=%d requests want=1", got)
	}

	// A different token is a different cache key.
	if _, err := c.VerifyAccessToken(t.Context(), "other-token"); err != nil {
		t.Fatalf("verify other: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("unexpected request count: got=%d want=2", got)
	}
}

func TestVerifyAccessTokenDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := newIntrospectServer(t, &requests, func(string) introspectResponse {
		return introspectResponse{Active: false}
	})
	defer server.Close()

	c := NewClient(ClientConfig{BaseURL: server.URL, Logger: logging.NewNop()})

	for i := 0; i < 2; i++ {
		if _, err := c.VerifyAccessToken(t.Context(), "stale-token"); !errors.Is(err, usecase.ErrUnauthorized) {
			t.Fatalf("verify %d: expected ErrUnauthorized, got %v", i, err)
		}
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("rejections must not be cached: got=%d requests want=2", got)
	}
}

func TestVerifyAccessTokenDeniedStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient(ClientConfig{BaseURL: server.URL, Logger: logging.NewNop()})
	if _, err := c.VerifyAccessToken(t.Context(), "any"); !errors.Is(err, usecase.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on 401, got %v", err)
	}
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		base string
		path string
		want string
	}{
		{"http://id.local:8081/", "/v1/auth/introspect", "http://id.local:8081/v1/auth/introspect"},
		{"http://id.local:8081", "v1/auth/introspect", "http://id.local:8081/v1/auth/introspect"},
		{"http://id.local:8081", "", "http://id.local:8081"},
		{"http://id.local:8081", "https://other.local/introspect", "https://other.local/introspect"},
	}
	for _, tc := range cases {
		if got := buildURL(tc.base, tc.path); got != tc.want {
			t.Fatalf("buildURL(%q, %q): got=%q want=%q", tc.base, tc.path, got, tc.want)
		}
	}
}
