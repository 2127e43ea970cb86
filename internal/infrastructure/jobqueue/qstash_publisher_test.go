package jobqueue

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fortifiedfantasy/duels/internal/platform/logging"
)

type capturedPublish struct {
	path    string
	headers http.Header
	body    string
}

func newBrokerServer(t *testing.T, status int, captured *capturedPublish) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read publish body: %v", err)
		}
		captured.path = r.URL.Path
		captured.headers = r.Header.Clone()
		captured.body = string(body)
		w.WriteHeader(status)
	}))
}

func newTestPublisher(brokerURL string, retries int) *QStashPublisher {
	return NewQStashPublisher(QStashPublisherConfig{
		BaseURL:          brokerURL,
		Token:            "qs-token",
		TargetBaseURL:    "https://duels.example.com",
		Retries:          retries,
		InternalJobToken: "job-token",
		Timeout:          2 * time.Second,
	}, logging.NewNop())
}

func TestScheduleSettlePublishes(t *testing.T) {
	t.Parallel()

	var captured capturedPublish
	server := newBrokerServer(t, http.StatusCreated, &captured)
	defer server.Close()

	p := newTestPublisher(server.URL, 3)
	if err := p.ScheduleSettle(t.Context(), "ch-42", 90*time.Second); err != nil {
		t.Fatalf("schedule settle: %v", err)
	}

	if !strings.HasPrefix(captured.path, "/v2/publish/") {
		t.Fatalf("publish path missing the broker prefix: %s", captured.path)
	}
	if !strings.HasSuffix(captured.path, "/v1/internal/jobs/settle-due") {
		t.Fatalf("publish path missing the callback target: %s", captured.path)
	}
	if got := captured.headers.Get("Authorization"); got != "Bearer qs-token" {
		t.Fatalf("unexpected authorization header: %q", got)
	}
	if got := captured.headers.Get("Upstash-Method"); got != "POST" {
		t.Fatalf("unexpected upstash method: %q", got)
	}
	if got := captured.headers.Get("Upstash-Retries"); got != "3" {
		t.Fatalf("unexpected retries header: %q", got)
	}
	if got := captured.headers.Get("Upstash-Delay"); got != "90s" {
		t.Fatalf("unexpected delay header: %q", got)
	}
	if got := captured.headers.Get("Upstash-Deduplication-Id"); got != "settle:ch-42" {
		t.Fatalf("unexpected deduplication id: %q", got)
	}
	if got := captured.headers.Get("Upstash-Forward-X-Internal-Job-Token"); got != "job-token" {
		t.Fatalf("unexpected forwarded job token: %q", got)
	}
	if captured.body != `{"challengeIds":["ch-42"]}` {
		t.Fatalf("unexpected payload: %s", captured.body)
	}
}

func TestEnqueueOmitsOptionalHeaders(t *testing.T) {
	t.Parallel()

	var captured capturedPublish
	server := newBrokerServer(t, http.StatusOK, &captured)
	defer server.Close()

	p := newTestPublisher(server.URL, 0)
	if err := p.Enqueue(t.Context(), "jobs/one-off", nil, 0, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for _, header := range []string{"Upstash-Retries", "Upstash-Delay", "Upstash-Deduplication-Id"} {
		if got := captured.headers.Get(header); got != "" {
			t.Fatalf("%s must be absent when unset, got %q", header, got)
		}
	}
	if !strings.HasSuffix(captured.path, "/jobs/one-off") {
		t.Fatalf("path not normalized with a leading slash: %s", captured.path)
	}
	if captured.body != "{}" {
		t.Fatalf("nil payload must publish an empty object, got %s", captured.body)
	}
}

func TestEnqueueRejectsBrokerFailure(t *testing.T) {
	t.Parallel()

	var captured capturedPublish
	server := newBrokerServer(t, http.StatusTooManyRequests, &captured)
	defer server.Close()

	p := newTestPublisher(server.URL, 0)
	err := p.Enqueue(t.Context(), "/v1/internal/jobs/settle-due", settleJobPayload{ChallengeIDs: []string{"ch-1"}}, 0, "")
	if err == nil {
		t.Fatal("expected an error for a non-2xx publish status")
	}
	if !strings.Contains(err.Error(), "status=429") {
		t.Fatalf("error must carry the broker status: %v", err)
	}
}

func TestEnqueueValidatesConfiguration(t *testing.T) {
	t.Parallel()

	p := newTestPublisher("", 0)
	if err := p.Enqueue(t.Context(), "/jobs/x", nil, 0, ""); err == nil {
		t.Fatal("expected an error without a broker base url")
	}

	p = newTestPublisher("http://broker.local", 0)
	if err := p.Enqueue(t.Context(), "   ", nil, 0, ""); err == nil {
		t.Fatal("expected an error for a blank job path")
	}
}

func TestNormalizeDelay(t *testing.T) {
	t.Parallel()

	cases := map[time.Duration]string{
		0:                       "0s",
		-time.Second:            "0s",
		time.Second:             "1s",
		90 * time.Second:        "90s",
		1500 * time.Millisecond: "2s",
	}
	for in, want := range cases {
		if got := normalizeDelay(in); got != want {
			t.Fatalf("normalizeDelay(%s): got=%s want=%s", in, got, want)
		}
	}
}
