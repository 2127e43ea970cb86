package httpapi

import (
	"net/http"
)

type settleDueJobRequest struct {
	ChallengeIDs []string `json:"challengeIds" validate:"required,min=1,dive,required"`
	Workers      int      `json:"workers" validate:"gte=0"`
}

func (h *Handler) RunSettleDueJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunSettleDueJob")
	defer span.End()

	var req settleDueJobRequest
	if _, err := h.decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := h.settlementService.SettleDue(ctx, req.ChallengeIDs, req.Workers); err != nil {
		h.logger.ErrorContext(ctx, "settle-due job failed", "count", len(req.ChallengeIDs), "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, struct {
		Processed int `json:"processed"`
	}{Processed: len(req.ChallengeIDs)})
}
