package jobqueue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fortifiedfantasy/duels/internal/platform/logging"
)

// QStashPublisher enqueues deferred HTTP callbacks through a QStash-compatible
// publisher API. The broker POSTs the payload back to this service's internal
// job routes after the requested delay.
type QStashPublisher struct {
	client           *fasthttp.Client
	baseURL          string
	token            string
	targetBaseURL    string
	retries          int
	internalJobToken string
	timeout          time.Duration
	logger           *logging.Logger
}

type QStashPublisherConfig struct {
	BaseURL          string
	Token            string
	TargetBaseURL    string
	Retries          int
	InternalJobToken string
	Timeout          time.Duration
}

func NewQStashPublisher(cfg QStashPublisherConfig, logger *logging.Logger) *QStashPublisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &QStashPublisher{
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		baseURL:          strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:            strings.TrimSpace(cfg.Token),
		targetBaseURL:    strings.TrimRight(strings.TrimSpace(cfg.TargetBaseURL), "/"),
		retries:          cfg.Retries,
		internalJobToken: strings.TrimSpace(cfg.InternalJobToken),
		timeout:          timeout,
		logger:           logger,
	}
}

// ScheduleSettle enqueues a settle callback for one challenge. The
// deduplication id keeps repeated lock transitions from fanning out into
// duplicate jobs; settlement itself is idempotent regardless.
func (p *QStashPublisher) ScheduleSettle(ctx context.Context, challengeID string, delay time.Duration) error {
	payload := settleJobPayload{ChallengeIDs: []string{challengeID}}
	return p.Enqueue(ctx, "/v1/internal/jobs/settle-due", payload, delay, "settle:"+challengeID)
}

type settleJobPayload struct {
	ChallengeIDs []string `json:"challengeIds"`
}

func (p *QStashPublisher) Enqueue(ctx context.Context, path string, payload any, delay time.Duration, deduplicationID string) error {
	path = "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "/" {
		return fmt.Errorf("job path is required")
	}
	if p.baseURL == "" || p.targetBaseURL == "" {
		return fmt.Errorf("job queue base urls are not configured")
	}

	targetURL := p.targetBaseURL + path
	publishURL := p.baseURL + "/v2/publish/" + targetURL

	if payload == nil {
		payload = map[string]any{}
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("jobqueue.publish_url", publishURL),
			attribute.String("jobqueue.path", path),
			attribute.String("jobqueue.deduplication_id", deduplicationID),
		)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(publishURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.SetContentType("application/json")
	req.Header.Set("Upstash-Method", fasthttp.MethodPost)
	if p.retries > 0 {
		req.Header.Set("Upstash-Retries", fmt.Sprintf("%d", p.retries))
	}
	if delay > 0 {
		req.Header.Set("Upstash-Delay", normalizeDelay(delay))
	}
	if deduplicationID != "" {
		req.Header.Set("Upstash-Deduplication-Id", deduplicationID)
	}
	if p.internalJobToken != "" {
		req.Header.Set("Upstash-Forward-X-Internal-Job-Token", p.internalJobToken)
	}
	req.SetBodyRaw(body)

	deadline := time.Now().Add(p.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := p.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("publish job %s: %w", path, err)
	}

	status := resp.StatusCode()
	if status/100 != 2 {
		return fmt.Errorf("publish job %s: status=%d body=%s", path, status, snippet(resp.Body(), 4096))
	}

	p.logger.InfoContext(ctx, "job published",
		"path", path,
		"delay", normalizeDelay(delay),
		"deduplication_id", deduplicationID,
	)
	return nil
}

func normalizeDelay(delay time.Duration) string {
	if delay <= 0 {
		return "0s"
	}
	return fmt.Sprintf("%ds", int64(delay.Round(time.Second).Seconds()))
}

func snippet(body []byte, limit int) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if len(body) > limit {
		body = body[:limit]
	}
	_, _ = buf.Write(body)
	return strings.TrimSpace(buf.String())
}
