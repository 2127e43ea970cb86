package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fortifiedfantasy/duels/internal/domain/hold"
	"github.com/fortifiedfantasy/duels/internal/domain/ledger"
	idgen "github.com/fortifiedfantasy/duels/internal/platform/id"
	"github.com/fortifiedfantasy/duels/internal/platform/logging"
)

const (
	recentEntriesDefault = 20
	recentEntriesMax     = 100
)

// WalletService owns the points ledger and the holds that reserve it.
// Every financial effect goes through Post, which is idempotent on the
// entry's fingerprint.
type WalletService struct {
	tx      TxManager
	ledgers ledger.Repository
	holds   hold.Repository
	ids     idgen.Generator
	logger  *logging.Logger
	now     func() time.Time
}

func NewWalletService(
	tx TxManager,
	ledgers ledger.Repository,
	holds hold.Repository,
	ids idgen.Generator,
	logger *logging.Logger,
) *WalletService {
	if logger == nil {
		logger = logging.Default()
	}
	return &WalletService{
		tx:      tx,
		ledgers: ledgers,
		holds:   holds,
		ids:     ids,
		logger:  logger,
		now:     time.Now,
	}
}

// Post records a signed delta. A duplicate idempotency key returns the
// pre-existing entry; callers treat that as success.
func (s *WalletService) Post(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.WalletService.Post")
	defer span.End()

	entry.MemberID = strings.TrimSpace(entry.MemberID)
	entry.IdempotencyKey = strings.TrimSpace(entry.IdempotencyKey)
	if entry.Currency == "" {
		entry.Currency = ledger.CurrencyPoints
	}

	if entry.MemberID == "" {
		return ledger.Entry{}, fmt.Errorf("%w: member id is required", ErrBadArgs)
	}
	if entry.Currency != ledger.CurrencyPoints {
		return ledger.Entry{}, fmt.Errorf("%w: unsupported currency %q", ErrBadArgs, entry.Currency)
	}
	if entry.Delta == 0 {
		return ledger.Entry{}, fmt.Errorf("%w: delta cannot be zero", ErrBadArgs)
	}
	if entry.IdempotencyKey == "" {
		return ledger.Entry{}, fmt.Errorf("%w: idempotency key is required", ErrBadArgs)
	}

	if entry.ID == "" {
		newID, err := s.ids.NewID()
		if err != nil {
			return ledger.Entry{}, fmt.Errorf("generate ledger entry id: %w", err)
		}
		entry.ID = newID
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	stored, inserted, err := s.ledgers.Insert(ctx, entry)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	if !inserted {
		s.logger.DebugContext(ctx, "ledger posting collided on idempotency key, returning existing entry",
			"idempotency_key", entry.IdempotencyKey,
			"member_id", entry.MemberID,
		)
	}

	return stored, nil
}

// Balance reads posted, locked and available amounts in one snapshot.
func (s *WalletService) Balance(ctx context.Context, memberID string) (ledger.Balance, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.WalletService.Balance")
	defer span.End()

	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return ledger.Balance{}, fmt.Errorf("%w: member id is required", ErrBadArgs)
	}

	var out ledger.Balance
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		posted, err := s.ledgers.PostedSum(ctx, memberID)
		if err != nil {
			return fmt.Errorf("sum ledger entries: %w", err)
		}
		locked, err := s.holds.ActiveSum(ctx, memberID)
		if err != nil {
			return fmt.Errorf("sum active holds: %w", err)
		}
		out = ledger.Balance{Posted: posted, Locked: locked, Available: posted - locked}
		return nil
	})
	if err != nil {
		return ledger.Balance{}, err
	}

	return out, nil
}

// Recent returns the newest ledger entries for a member, newest first.
func (s *WalletService) Recent(ctx context.Context, memberID string, limit int) ([]ledger.Entry, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.WalletService.Recent")
	defer span.End()

	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, fmt.Errorf("%w: member id is required", ErrBadArgs)
	}
	if limit <= 0 {
		limit = recentEntriesDefault
	}
	if limit > recentEntriesMax {
		limit = recentEntriesMax
	}

	entries, err := s.ledgers.ListRecent(ctx, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent ledger entries: %w", err)
	}
	return entries, nil
}

// PlaceHold reserves amount points against a reference. It is idempotent on
// (member, ref): an active hold for the same reference is returned instead
// of stacking a second reservation. Fails when available funds are short.
func (s *WalletService) PlaceHold(ctx context.Context, memberID string, amount int64, refType, refID string) (hold.Hold, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.WalletService.PlaceHold")
	defer span.End()

	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return hold.Hold{}, fmt.Errorf("%w: member id is required", ErrBadArgs)
	}
	if amount <= 0 {
		return hold.Hold{}, fmt.Errorf("%w: hold amount must be positive", ErrBadArgs)
	}
	if refType == "" || refID == "" {
		return hold.Hold{}, fmt.Errorf("%w: hold reference is required", ErrBadArgs)
	}

	var placed hold.Hold
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.holds.ListByRef(ctx, refType, refID)
		if err != nil {
			return fmt.Errorf("list holds by ref: %w", err)
		}
		for _, h := range existing {
			if h.MemberID == memberID && h.Active() {
				placed = h
				return nil
			}
		}

		posted, err := s.ledgers.PostedSum(ctx, memberID)
		if err != nil {
			return fmt.Errorf("sum ledger entries: %w", err)
		}
		locked, err := s.holds.ActiveSum(ctx, memberID)
		if err != nil {
			return fmt.Errorf("sum active holds: %w", err)
		}
		if posted-locked < amount {
			return fmt.Errorf("%w: need %d points, %d available", ErrInsufficientFunds, amount, posted-locked)
		}

		holdID, err := s.ids.NewID()
		if err != nil {
			return fmt.Errorf("generate hold id: %w", err)
		}
		placed = hold.Hold{
			ID:        holdID,
			MemberID:  memberID,
			Amount:    amount,
			Status:    hold.StatusHeld,
			RefType:   refType,
			RefID:     refID,
			CreatedAt: s.now().UTC(),
		}
		if err := s.holds.Insert(ctx, placed); err != nil {
			return fmt.Errorf("insert hold: %w", err)
		}
		return nil
	})
	if err != nil {
		return hold.Hold{}, err
	}

	return placed, nil
}

// CaptureHold converts a reservation into an actual debit. The ledger entry
// and the status flip happen in one transaction; both the idempotency key
// and the status guard block a double capture.
func (s *WalletService) CaptureHold(ctx context.Context, holdID string) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.WalletService.CaptureHold")
	defer span.End()

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		h, found, err := s.holds.GetForUpdate(ctx, holdID)
		if err != nil {
			return fmt.Errorf("get hold for update: %w", err)
		}
		if !found {
			return fmt.Errorf("%w: hold %s", ErrNotFound, holdID)
		}
		if h.Status == hold.StatusCaptured {
			return nil
		}
		if h.Status == hold.StatusReleased {
			return fmt.Errorf("%w: hold %s already released", ErrBadState, holdID)
		}

		ref := h.RefType + ":" + h.RefID
		if _, err := s.Post(ctx, ledger.Entry{
			MemberID:       h.MemberID,
			Delta:          -h.Amount,
			Kind:           ledger.KindStakeCaptured,
			Source:         h.RefType,
			SourceID:       h.RefID,
			Memo:           "stake captured",
			IdempotencyKey: ledger.IdempotencyKey(string(ledger.KindStakeCaptured), ref, h.MemberID, h.Amount),
		}); err != nil {
			return err
		}

		now := s.now().UTC()
		moved, err := s.holds.Transition(ctx, holdID, hold.StatusHeld, hold.StatusCaptured, now)
		if err != nil {
			return fmt.Errorf("mark hold captured: %w", err)
		}
		if !moved {
			return fmt.Errorf("%w: hold %s changed state during capture", ErrBadState, holdID)
		}
		return nil
	})
}

// ReleaseHold frees a reservation with no ledger effect.
func (s *WalletService) ReleaseHold(ctx context.Context, holdID string) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.WalletService.ReleaseHold")
	defer span.End()

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		h, found, err := s.holds.GetForUpdate(ctx, holdID)
		if err != nil {
			return fmt.Errorf("get hold for update: %w", err)
		}
		if !found {
			return fmt.Errorf("%w: hold %s", ErrNotFound, holdID)
		}
		if h.Status == hold.StatusReleased {
			return nil
		}
		if h.Status == hold.StatusCaptured {
			return fmt.Errorf("%w: hold %s already captured", ErrBadState, holdID)
		}

		moved, err := s.holds.Transition(ctx, holdID, hold.StatusHeld, hold.StatusReleased, s.now().UTC())
		if err != nil {
			return fmt.Errorf("mark hold released: %w", err)
		}
		if !moved {
			return fmt.Errorf("%w: hold %s changed state during release", ErrBadState, holdID)
		}
		return nil
	})
}

// HoldsForRef lists holds attached to a reference (settlement uses it to
// find the two stake holds for a challenge).
func (s *WalletService) HoldsForRef(ctx context.Context, refType, refID string) ([]hold.Hold, error) {
	holds, err := s.holds.ListByRef(ctx, refType, refID)
	if err != nil {
		return nil, fmt.Errorf("list holds by ref: %w", err)
	}
	return holds, nil
}
