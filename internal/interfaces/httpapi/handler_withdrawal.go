package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fortifiedfantasy/duels/internal/usecase"
)

type requestWithdrawalRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Method      string `json:"method" validate:"required"`
	Destination string `json:"destination" validate:"required"`
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RequestWithdrawal")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: missing principal", usecase.ErrUnauthorized))
		return
	}

	var req requestWithdrawalRequest
	if _, err := h.decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	created, err := h.withdrawalService.Request(ctx, principal, req.Amount, strings.TrimSpace(req.Method), strings.TrimSpace(req.Destination))
	if err != nil {
		h.logger.WarnContext(ctx, "withdrawal request failed", "member_id", principal.MemberID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusCreated, struct {
		Withdrawal withdrawalDTO `json:"withdrawal"`
	}{Withdrawal: withdrawalToDTO(created)})
}

type payWithdrawalRequest struct {
	WithdrawalID string `json:"withdrawalId" validate:"required"`
	ExtRef       string `json:"extRef"`
}

func (h *Handler) PayWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.PayWithdrawal")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: missing principal", usecase.ErrUnauthorized))
		return
	}

	var req payWithdrawalRequest
	if _, err := h.decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	paid, err := h.withdrawalService.Pay(ctx, principal, strings.TrimSpace(req.WithdrawalID), strings.TrimSpace(req.ExtRef))
	if err != nil {
		h.logger.WarnContext(ctx, "withdrawal pay failed", "withdrawal_id", req.WithdrawalID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, struct {
		Withdrawal withdrawalDTO `json:"withdrawal"`
	}{Withdrawal: withdrawalToDTO(paid)})
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListWithdrawals")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: missing principal", usecase.ErrUnauthorized))
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	withdrawals, err := h.withdrawalService.ListByMember(ctx, principal.MemberID, limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	items := make([]withdrawalDTO, 0, len(withdrawals))
	for _, wd := range withdrawals {
		items = append(items, withdrawalToDTO(wd))
	}

	writeSuccess(ctx, w, http.StatusOK, struct {
		Withdrawals []withdrawalDTO `json:"withdrawals"`
	}{Withdrawals: items})
}
