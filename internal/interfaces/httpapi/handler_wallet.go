package httpapi

import (
	"fmt"
	"net/http"

	"github.com/fortifiedfantasy/duels/internal/domain/ledger"
	"github.com/fortifiedfantasy/duels/internal/usecase"
)

func (h *Handler) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetWalletBalance")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: missing principal", usecase.ErrUnauthorized))
		return
	}

	balance, err := h.walletService.Balance(ctx, principal.MemberID)
	if err != nil {
		h.logger.ErrorContext(ctx, "balance lookup failed", "member_id", principal.MemberID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, struct {
		Balance ledger.Balance `json:"balance"`
	}{Balance: balance})
}

func (h *Handler) ListWalletLedger(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListWalletLedger")
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

	entries, err := h.walletService.Recent(ctx, principal.MemberID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "ledger listing failed", "member_id", principal.MemberID, "error", err)
		writeError(ctx, w, err)
		return
	}

	items := make([]ledgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		items = append(items, ledgerEntryToDTO(e))
	}

	writeSuccess(ctx, w, http.StatusOK, struct {
		Entries []ledgerEntryDTO `json:"entries"`
	}{Entries: items})
}
