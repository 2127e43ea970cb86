package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fortifiedfantasy/duels/internal/usecase"
)

type donationWebhookRequest struct {
	PaymentID   string `json:"paymentId" validate:"required"`
	AmountCents int64  `json:"amountCents" validate:"required,gt=0"`
	Currency    string `json:"currency"`
	DonorEmail  string `json:"donorEmail"`
	MemberHint  string `json:"memberHint"`
	OccurredAt  string `json:"occurredAt"`
}

func (h *Handler) DonationWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.DonationWebhook")
	defer span.End()

	var req donationWebhookRequest
	raw, err := h.decodeBody(r, &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	occurredAt := time.Now().UTC()
	if strings.TrimSpace(req.OccurredAt) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(req.OccurredAt))
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: occurredAt must be RFC 3339", usecase.ErrBadArgs))
			return
		}
		occurredAt = parsed
	}

	recorded, err := h.donationService.Ingest(ctx, usecase.DonationIngestInput{
		PaymentID:   strings.TrimSpace(req.PaymentID),
		AmountCents: req.AmountCents,
		Currency:    strings.TrimSpace(req.Currency),
		DonorEmail:  strings.TrimSpace(req.DonorEmail),
		MemberHint:  strings.TrimSpace(req.MemberHint),
		OccurredAt:  occurredAt,
		RawPayload:  raw,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "donation ingest failed", "payment_id", req.PaymentID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, struct {
		PaymentID string `json:"paymentId"`
		Credited  bool   `json:"credited"`
	}{PaymentID: recorded.PaymentID, Credited: recorded.Credited()})
}

func (h *Handler) SyncDonations(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SyncDonations")
	defer span.End()

	credited, err := h.donationService.Sync(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "donation sync failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, struct {
		Credited int `json:"credited"`
	}{Credited: credited})
}
