package espn

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortifiedfantasy/duels/internal/platform/logging"
	"github.com/fortifiedfantasy/duels/internal/platform/resilience"
	"github.com/fortifiedfantasy/duels/internal/usecase"
)

const boxscoreFixture = `{
  "schedule": [
    {
      "home": {
        "teamId": 1,
        "rosterForCurrentScoringPeriod": {
          "entries": [
            {
              "playerId": 101,
              "lineupSlotId": 0,
              "playerPoolEntry": {"id": 101, "appliedStatTotal": 18.5}
            },
            {
              "playerId": 102,
              "lineupSlotId": 2,
              "playerPoolEntry": {"id": 102, "appliedStats": {"3": 12.5}}
            },
            {
              "playerId": 103,
              "lineupSlotId": 20,
              "playerPoolEntry": {"id": 103, "appliedStatTotal": 40}
            }
          ]
        }
      },
      "away": {
        "teamId": 2,
        "rosterForCurrentScoringPeriod": {
          "entries": [
            {
              "playerId": 201,
              "lineupSlotId": 16,
              "playerPoolEntry": {"id": 201, "appliedStatTotal": 7, "player": {"proTeamId": 28}}
            }
          ]
        }
      }
    }
  ]
}`

func newTestClient(t *testing.T, baseURL string, retries int, breaker resilience.CircuitBreakerConfig) *Client {
	t.Helper()
	return NewClient(ClientConfig{
		BaseURL:        baseURL,
		Timeout:        2 * time.Second,
		MaxRetries:     retries,
		Logger:         logging.NewNop(),
		CircuitBreaker: breaker,
	})
}

func TestFetchLeagueWeekParsesBoxscore(t *testing.T) {
	t.Parallel()

	var gotPath, gotQuery, gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotCookie = r.Header.Get("cookie")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(boxscoreFixture))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 0, resilience.CircuitBreakerConfig{})
	cred := usecase.UpstreamCredential{SWID: "{abc}", ESPNS2: "s2-token"}

	rosters, err := c.FetchLeagueWeek(t.Context(), cred, 2025, "12345", 3)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotPath != "/seasons/2025/segments/0/leagues/12345" {
		t.Fatalf("unexpected request path: %s", gotPath)
	}
	if gotQuery != "view=mBoxscore&scoringPeriodId=3" {
		t.Fatalf("unexpected query: %s", gotQuery)
	}
	if gotCookie != "SWID={abc}; espn_s2=s2-token" {
		t.Fatalf("unexpected cookie header: %q", gotCookie)
	}

	if len(rosters) != 2 {
		t.Fatalf("unexpected roster count: got=%d want=2", len(rosters))
	}
	home := rosters[0]
	if home.TeamID != "1" || len(home.Entries) != 3 {
		t.Fatalf("unexpected home roster: %+v", home)
	}
	// The explicit total wins; the per-period map is the fallback.
	if home.Entries[0].AppliedTotal != 18.5 {
		t.Fatalf("unexpected total from appliedStatTotal: got=%v want=18.5", home.Entries[0].AppliedTotal)
	}
	if home.Entries[1].AppliedTotal != 12.5 {
		t.Fatalf("unexpected total from appliedStats fallback: got=%v want=12.5", home.Entries[1].AppliedTotal)
	}
	if got := usecase.StartersTotal(home.Entries); got != 31 {
		t.Fatalf("bench leaked into starters total: got=%v want=31", got)
	}

	away := rosters[1]
	if away.TeamID != "2" || away.TeamAbbrev != "WSH" {
		t.Fatalf("unexpected away roster: %+v", away)
	}
}

func TestFetchLeagueWeekAnonymousOmitsCookie(t *testing.T) {
	t.Parallel()

	var sawCookie atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("cookie") != "" {
			sawCookie.Store(true)
		}
		_, _ = w.Write([]byte(`{"schedule":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 0, resilience.CircuitBreakerConfig{})
	if _, err := c.FetchLeagueWeek(t.Context(), usecase.UpstreamCredential{}, 2025, "12345", 3); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if sawCookie.Load() {
		t.Fatal("anonymous request must not send a cookie header")
	}
}

func TestFetchLeagueWeekNonRetryableStatus(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 2, resilience.CircuitBreakerConfig{})
	_, err := c.FetchLeagueWeek(t.Context(), usecase.UpstreamCredential{}, 2025, "12345", 3)
	if !errors.Is(err, usecase.ErrUpstream) {
		t.Fatalf("expected ErrUpstream for 404, got %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("client retried a non-retryable status: got=%d requests want=1", got)
	}
}

func TestFetchLeagueWeekRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"schedule":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 2, resilience.CircuitBreakerConfig{})
	if _, err := c.FetchLeagueWeek(t.Context(), usecase.UpstreamCredential{}, 2025, "12345", 3); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := requests.Load(); got != 3 {
		t.Fatalf("unexpected request count: got=%d want=3", got)
	}
}

func TestFetchLeagueWeekTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	c := NewClient(ClientConfig{
		BaseURL:    server.URL,
		Timeout:    30 * time.Millisecond,
		MaxRetries: 0,
		Logger:     logging.NewNop(),
	})
	_, err := c.FetchLeagueWeek(t.Context(), usecase.UpstreamCredential{}, 2025, "12345", 3)
	if !errors.Is(err, usecase.ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
}

func TestFetchLeagueWeekCircuitOpens(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 0, resilience.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
		HalfOpenMaxReq:   1,
	})

	if _, err := c.FetchLeagueWeek(t.Context(), usecase.UpstreamCredential{}, 2025, "12345", 3); !errors.Is(err, usecase.ErrUpstream) {
		t.Fatalf("expected ErrUpstream from the failing feed, got %v", err)
	}
	before := requests.Load()

	// The breaker is open now; the second call must not reach the feed.
	if _, err := c.FetchLeagueWeek(t.Context(), usecase.UpstreamCredential{}, 2025, "12345", 3); !errors.Is(err, usecase.ErrUpstream) {
		t.Fatalf("expected ErrUpstream from the open breaker, got %v", err)
	}
	if got := requests.Load(); got != before {
		t.Fatalf("open breaker let a request through: got=%d want=%d", got, before)
	}
}

func TestFetchLeagueWeekInputValidation(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "http://unused.invalid", 0, resilience.CircuitBreakerConfig{})
	if _, err := c.FetchLeagueWeek(t.Context(), usecase.UpstreamCredential{}, 2025, "  ", 3); err == nil {
		t.Fatal("expected an error for a blank league id")
	}
	if _, err := c.FetchLeagueWeek(t.Context(), usecase.UpstreamCredential{}, 0, "12345", 3); err == nil {
		t.Fatal("expected an error for a non-positive season")
	}
}
