package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/fortifiedfantasy/duels/internal/domain/challenge"
	"github.com/fortifiedfantasy/duels/internal/domain/hold"
	"github.com/fortifiedfantasy/duels/internal/domain/ledger"
	"github.com/fortifiedfantasy/duels/internal/domain/withdrawal"
	"github.com/fortifiedfantasy/duels/internal/platform/logging"
	"github.com/fortifiedfantasy/duels/internal/usecase"
)

const maxRequestBody = 1 << 20

type Handler struct {
	challengeService  *usecase.ChallengeService
	settlementService *usecase.SettlementService
	walletService     *usecase.WalletService
	withdrawalService *usecase.WithdrawalService
	donationService   *usecase.DonationService
	logger            *logging.Logger
	validator         *validator.Validate
}

func NewHandler(
	challengeService *usecase.ChallengeService,
	settlementService *usecase.SettlementService,
	walletService *usecase.WalletService,
	withdrawalService *usecase.WithdrawalService,
	donationService *usecase.DonationService,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		challengeService:  challengeService,
		settlementService: settlementService,
		walletService:     walletService,
		withdrawalService: withdrawalService,
		donationService:   donationService,
		logger:            logger,
		validator:         validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody reads, decodes, and validates a JSON request body. The raw
// bytes come back too so webhook handlers can persist the original payload.
func (h *Handler) decodeBody(r *http.Request, dst any) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read request body: %v", usecase.ErrBadArgs, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: request body is required", usecase.ErrBadArgs)
	}
	if err := sonic.Unmarshal(raw, dst); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON body: %v", usecase.ErrBadArgs, err)
	}
	if err := h.validator.Struct(dst); err != nil {
		return nil, fmt.Errorf("%w: %v", usecase.ErrBadArgs, err)
	}
	return raw, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: query parameter %s must be an integer", usecase.ErrBadArgs, key)
	}
	return value, nil
}

type slotDTO struct {
	PlayerID string   `json:"playerId" validate:"required"`
	SlotID   int      `json:"slot" validate:"gte=0"`
	Pts      *float64 `json:"pts,omitempty"`
}

func slotsToDomain(slots []slotDTO) []challenge.Slot {
	if slots == nil {
		return nil
	}
	out := make([]challenge.Slot, 0, len(slots))
	for _, s := range slots {
		out = append(out, challenge.Slot{PlayerID: s.PlayerID, SlotID: s.SlotID, Pts: s.Pts})
	}
	return out
}

func slotsToDTO(slots []challenge.Slot) []slotDTO {
	out := make([]slotDTO, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotDTO{PlayerID: s.PlayerID, SlotID: s.SlotID, Pts: s.Pts})
	}
	return out
}

type challengeDTO struct {
	ID               string `json:"id"`
	ClientID         string `json:"clientId,omitempty"`
	Season           int    `json:"season"`
	Week             int    `json:"week"`
	ScoringProfileID string `json:"scoringProfileId,omitempty"`
	Status           string `json:"status"`
	StakePoints      int64  `json:"stakePoints"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

type sideDTO struct {
	Side          int       `json:"side"`
	PlatformCode  string    `json:"platform,omitempty"`
	Season        int       `json:"season"`
	LeagueID      string    `json:"leagueId"`
	TeamID        string    `json:"teamId"`
	TeamName      string    `json:"teamName,omitempty"`
	OwnerMemberID string    `json:"ownerMemberId"`
	Lineup        []slotDTO `json:"lineup,omitempty"`
	Bench         []slotDTO `json:"bench,omitempty"`
	LockedAt      string    `json:"lockedAt,omitempty"`
	PointsFinal   *float64  `json:"pointsFinal,omitempty"`
}

type eventDTO struct {
	ID            int64  `json:"id"`
	Type          string `json:"type"`
	ActorMemberID string `json:"actorMemberId,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

type aggregateBody struct {
	Challenge challengeDTO `json:"challenge"`
	Sides     []sideDTO    `json:"sides"`
	Events    []eventDTO   `json:"events,omitempty"`
}

func challengeToDTO(c challenge.Challenge) challengeDTO {
	return challengeDTO{
		ID:               c.ID,
		ClientID:         c.ClientID,
		Season:           c.Season,
		Week:             c.Week,
		ScoringProfileID: c.ScoringProfileID,
		Status:           string(c.Status),
		StakePoints:      c.StakePoints,
		CreatedAt:        c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func sideToDTO(s challenge.Side) sideDTO {
	dto := sideDTO{
		Side:          s.Side,
		PlatformCode:  s.PlatformCode,
		Season:        s.Season,
		LeagueID:      s.LeagueID,
		TeamID:        s.TeamID,
		TeamName:      s.TeamName,
		OwnerMemberID: s.OwnerMemberID,
		Lineup:        slotsToDTO(s.Lineup),
		Bench:         slotsToDTO(s.Bench),
		PointsFinal:   s.PointsFinal,
	}
	if s.LockedAt != nil {
		dto.LockedAt = s.LockedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func aggregateToBody(agg usecase.ChallengeAggregate) aggregateBody {
	sides := make([]sideDTO, 0, len(agg.Sides))
	for _, s := range agg.Sides {
		sides = append(sides, sideToDTO(s))
	}
	events := make([]eventDTO, 0, len(agg.Events))
	for _, e := range agg.Events {
		events = append(events, eventDTO{
			ID:            e.ID,
			Type:          string(e.Type),
			ActorMemberID: e.ActorMemberID,
			CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return aggregateBody{
		Challenge: challengeToDTO(agg.Challenge),
		Sides:     sides,
		Events:    events,
	}
}

type ledgerEntryDTO struct {
	ID        string `json:"id"`
	Delta     int64  `json:"delta"`
	Kind      string `json:"kind"`
	Source    string `json:"source,omitempty"`
	SourceID  string `json:"sourceId,omitempty"`
	Memo      string `json:"memo,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func ledgerEntryToDTO(e ledger.Entry) ledgerEntryDTO {
	return ledgerEntryDTO{
		ID:        e.ID,
		Delta:     e.Delta,
		Kind:      string(e.Kind),
		Source:    e.Source,
		SourceID:  e.SourceID,
		Memo:      e.Memo,
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type holdDTO struct {
	ID        string `json:"id"`
	MemberID  string `json:"memberId"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func holdToDTO(h hold.Hold) holdDTO {
	return holdDTO{
		ID:        h.ID,
		MemberID:  h.MemberID,
		Amount:    h.Amount,
		Status:    string(h.Status),
		CreatedAt: h.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type withdrawalDTO struct {
	ID           string `json:"id"`
	MemberID     string `json:"memberId"`
	AmountPoints int64  `json:"amountPoints"`
	Method       string `json:"method"`
	Destination  string `json:"destination"`
	Status       string `json:"status"`
	ExtRef       string `json:"extRef,omitempty"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

func withdrawalToDTO(w withdrawal.Withdrawal) withdrawalDTO {
	return withdrawalDTO{
		ID:           w.ID,
		MemberID:     w.MemberID,
		AmountPoints: w.AmountPoints,
		Method:       w.Method,
		Destination:  w.Destination,
		Status:       string(w.Status),
		ExtRef:       w.ExtRef,
		CreatedAt:    w.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    w.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
