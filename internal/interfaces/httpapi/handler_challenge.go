package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fortifiedfantasy/duels/internal/domain/challenge"
	"github.com/fortifiedfantasy/duels/internal/usecase"
)

type createChallengeRequest struct {
	ClientID         string `json:"clientId"`
	Season           int    `json:"season" validate:"gte=0"`
	Week             int    `json:"week" validate:"gte=0"`
	ScoringProfileID string `json:"scoringProfileId"`
	Stake            int64  `json:"stake" validate:"gte=0"`
}

func (h *Handler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CreateChallenge")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: missing principal", usecase.ErrUnauthorized))
		return
	}

	var req createChallengeRequest
	if _, err := h.decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	created, err := h.challengeService.Create(ctx, principal, usecase.ClaimInput{
		ClientID:         strings.TrimSpace(req.ClientID),
		Season:           req.Season,
		Week:             req.Week,
		ScoringProfileID: strings.TrimSpace(req.ScoringProfileID),
		Stake:            req.Stake,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "create challenge failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusCreated, struct {
		Challenge challengeDTO `json:"challenge"`
	}{Challenge: challengeToDTO(created)})
}

type claimRequest struct {
	Side         int       `json:"side" validate:"required,oneof=1 2"`
	PlatformCode string    `json:"platform"`
	Season       int       `json:"season" validate:"gte=0"`
	Week         int       `json:"week" validate:"gte=0"`
	LeagueID     string    `json:"leagueId" validate:"required"`
	TeamID       string    `json:"teamId" validate:"required"`
	TeamName     string    `json:"teamName"`
	Stake        int64     `json:"stake" validate:"gte=0"`
	Force        bool      `json:"force"`
	Lineup       []slotDTO `json:"lineup" validate:"dive"`
	Bench        []slotDTO `json:"bench" validate:"dive"`
}

func (h *Handler) ClaimChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ClaimChallenge")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: missing principal", usecase.ErrUnauthorized))
		return
	}

	var req claimRequest
	if _, err := h.decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	agg, err := h.challengeService.Claim(ctx, principal, claimInputFromRequest(r.PathValue("challengeID"), "", req))
	if err != nil {
		h.logger.WarnContext(ctx, "claim failed", "challenge_id", r.PathValue("challengeID"), "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, aggregateToBody(agg))
}

type claimLockRequest struct {
	ChallengeID string `json:"challengeId"`
	ClientID    string `json:"clientId"`
	claimRequest
	ScoringProfileID string `json:"scoringProfileId"`
}

func (h *Handler) ClaimLockChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ClaimLockChallenge")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: missing principal", usecase.ErrUnauthorized))
		return
	}

	var req claimLockRequest
	if _, err := h.decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	in := claimInputFromRequest(req.ChallengeID, req.ClientID, req.claimRequest)
	in.ScoringProfileID = strings.TrimSpace(req.ScoringProfileID)

	agg, err := h.challengeService.ClaimLock(ctx, principal, in)
	if err != nil {
		h.logger.WarnContext(ctx, "claim-lock failed", "challenge_id", req.ChallengeID, "client_id", req.ClientID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, aggregateToBody(agg))
}

type lockRequest struct {
	Side   int       `json:"side" validate:"required,oneof=1 2"`
	Lineup []slotDTO `json:"lineup" validate:"required,min=1,dive"`
	Bench  []slotDTO `json:"bench" validate:"dive"`
}

func (h *Handler) LockChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.LockChallenge")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: missing principal", usecase.ErrUnauthorized))
		return
	}

	var req lockRequest
	if _, err := h.decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	challengeID := r.PathValue("challengeID")
	agg, err := h.challengeService.Lock(ctx, principal, challengeID, req.Side, slotsToDomain(req.Lineup), slotsToDomain(req.Bench))
	if err != nil {
		h.logger.WarnContext(ctx, "lock failed", "challenge_id", challengeID, "side", req.Side, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, aggregateToBody(agg))
}

func (h *Handler) ScoreChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ScoreChallenge")
	defer span.End()

	challengeID := r.PathValue("challengeID")
	outcome, err := h.settlementService.Settle(ctx, challengeID)
	if err != nil {
		h.logger.WarnContext(ctx, "settle failed", "challenge_id", challengeID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, struct {
		Outcome usecase.SettlementOutcome `json:"outcome"`
	}{Outcome: outcome})
}

func (h *Handler) VoidChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.VoidChallenge")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: missing principal", usecase.ErrUnauthorized))
		return
	}

	challengeID := r.PathValue("challengeID")
	agg, err := h.challengeService.Void(ctx, principal, challengeID)
	if err != nil {
		h.logger.WarnContext(ctx, "void failed", "challenge_id", challengeID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, aggregateToBody(agg))
}

func (h *Handler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetChallenge")
	defer span.End()

	challengeID := r.PathValue("challengeID")
	agg, err := h.challengeService.Get(ctx, challengeID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, aggregateToBody(agg))
}

func (h *Handler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListChallenges")
	defer span.End()

	season, err := queryInt(r, "season")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	challenges, err := h.challengeService.List(ctx, challenge.Filter{
		Season:   season,
		LeagueID: strings.TrimSpace(r.URL.Query().Get("leagueId")),
		TeamID:   strings.TrimSpace(r.URL.Query().Get("teamId")),
		Limit:    limit,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	items := make([]challengeDTO, 0, len(challenges))
	for _, c := range challenges {
		items = append(items, challengeToDTO(c))
	}

	writeSuccess(ctx, w, http.StatusOK, struct {
		Challenges []challengeDTO `json:"challenges"`
	}{Challenges: items})
}

func claimInputFromRequest(challengeID, clientID string, req claimRequest) usecase.ClaimInput {
	return usecase.ClaimInput{
		ChallengeID:  strings.TrimSpace(challengeID),
		ClientID:     strings.TrimSpace(clientID),
		Side:         req.Side,
		PlatformCode: strings.TrimSpace(req.PlatformCode),
		Season:       req.Season,
		Week:         req.Week,
		LeagueID:     strings.TrimSpace(req.LeagueID),
		TeamID:       strings.TrimSpace(req.TeamID),
		TeamName:     strings.TrimSpace(req.TeamName),
		Stake:        req.Stake,
		Force:        req.Force,
		Lineup:       slotsToDomain(req.Lineup),
		Bench:        slotsToDomain(req.Bench),
	}
}
