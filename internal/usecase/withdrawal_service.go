package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fortifiedfantasy/duels/internal/domain/ledger"
	"github.com/fortifiedfantasy/duels/internal/domain/member"
	"github.com/fortifiedfantasy/duels/internal/domain/withdrawal"
	idgen "github.com/fortifiedfantasy/duels/internal/platform/id"
	"github.com/fortifiedfantasy/duels/internal/platform/logging"
)

// WithdrawalSource tags ledger entries posted by the pay step.
const WithdrawalSource = "withdrawal"

// WithdrawalService runs the two-phase payout flow: request reserves
// nothing, pay debits the ledger exactly once.
type WithdrawalService struct {
	tx          TxManager
	withdrawals withdrawal.Repository
	wallet      *WalletService
	ids         idgen.Generator
	methods     map[string]struct{}
	logger      *logging.Logger
	now         func() time.Time
}

func NewWithdrawalService(
	tx TxManager,
	withdrawals withdrawal.Repository,
	wallet *WalletService,
	ids idgen.Generator,
	allowedMethods []string,
	logger *logging.Logger,
) *WithdrawalService {
	if logger == nil {
		logger = logging.Default()
	}
	methods := make(map[string]struct{}, len(allowedMethods))
	for _, m := range allowedMethods {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			methods[m] = struct{}{}
		}
	}
	return &WithdrawalService{
		tx:          tx,
		withdrawals: withdrawals,
		wallet:      wallet,
		ids:         ids,
		methods:     methods,
		logger:      logger,
		now:         time.Now,
	}
}

// Request opens a withdrawal in status requested. No hold is placed and the
// ledger is untouched; the available balance only shifts on pay.
func (s *WithdrawalService) Request(ctx context.Context, actor member.Principal, amount int64, method, destination string) (withdrawal.Withdrawal, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.WithdrawalService.Request")
	defer span.End()

	method = strings.ToLower(strings.TrimSpace(method))
	destination = strings.TrimSpace(destination)
	if amount <= 0 {
		return withdrawal.Withdrawal{}, fmt.Errorf("%w: amount must be positive", ErrBadArgs)
	}
	if _, ok := s.methods[method]; !ok {
		return withdrawal.Withdrawal{}, fmt.Errorf("%w: method %q is not allowed", ErrBadArgs, method)
	}
	if destination == "" {
		return withdrawal.Withdrawal{}, fmt.Errorf("%w: destination is required", ErrBadArgs)
	}

	var out withdrawal.Withdrawal
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		balance, err := s.wallet.Balance(ctx, actor.MemberID)
		if err != nil {
			return err
		}
		if balance.Available < amount {
			return fmt.Errorf("%w: need %d points, %d available", ErrInsufficientFunds, amount, balance.Available)
		}

		id, err := s.ids.NewID()
		if err != nil {
			return fmt.Errorf("generate withdrawal id: %w", err)
		}
		now := s.now().UTC()
		out = withdrawal.Withdrawal{
			ID:           id,
			MemberID:     actor.MemberID,
			AmountPoints: amount,
			Method:       method,
			Destination:  destination,
			Status:       withdrawal.StatusRequested,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.withdrawals.Insert(ctx, out); err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return withdrawal.Withdrawal{}, err
	}

	s.logger.InfoContext(ctx, "withdrawal requested",
		"withdrawal_id", out.ID,
		"member_id", out.MemberID,
		"amount_points", out.AmountPoints,
		"method", out.Method,
	)
	return out, nil
}

// Pay marks a requested or approved withdrawal as paid and debits the
// ledger. The idempotency key is derived from the withdrawal itself, so a
// crash between the posting and the status flip cannot double-debit on
// retry. Administrative only.
func (s *WithdrawalService) Pay(ctx context.Context, actor member.Principal, withdrawalID, extRef string) (withdrawal.Withdrawal, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.WithdrawalService.Pay")
	defer span.End()

	if !actor.Admin {
		return withdrawal.Withdrawal{}, fmt.Errorf("%w: pay requires administrative identity", ErrForbidden)
	}
	withdrawalID = strings.TrimSpace(withdrawalID)
	if withdrawalID == "" {
		return withdrawal.Withdrawal{}, fmt.Errorf("%w: withdrawal id is required", ErrBadArgs)
	}

	var out withdrawal.Withdrawal
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, found, err := s.withdrawals.GetForUpdate(ctx, withdrawalID)
		if err != nil {
			return fmt.Errorf("get withdrawal for update: %w", err)
		}
		if !found {
			return fmt.Errorf("%w: withdrawal %s", ErrNotFound, withdrawalID)
		}
		if !w.Payable() {
			return fmt.Errorf("%w: withdrawal %s is %s", ErrBadState, withdrawalID, w.Status)
		}

		// Request reserved nothing, so the balance may have been spent or
		// locked since. Re-check before the debit posts.
		balance, err := s.wallet.Balance(ctx, w.MemberID)
		if err != nil {
			return err
		}
		if balance.Available < w.AmountPoints {
			return fmt.Errorf("%w: need %d points, %d available", ErrInsufficientFunds, w.AmountPoints, balance.Available)
		}

		if _, err := s.wallet.Post(ctx, ledger.Entry{
			MemberID:       w.MemberID,
			Delta:          -w.AmountPoints,
			Kind:           ledger.KindWithdrawal,
			Source:         WithdrawalSource,
			SourceID:       w.ID,
			Memo:           fmt.Sprintf("withdrawal via %s", w.Method),
			IdempotencyKey: ledger.IdempotencyKey(string(ledger.KindWithdrawal), w.ID, w.MemberID, w.AmountPoints),
		}); err != nil {
			return err
		}

		now := s.now().UTC()
		if err := s.withdrawals.SetStatus(ctx, w.ID, withdrawal.StatusPaid, strings.TrimSpace(extRef), now); err != nil {
			return fmt.Errorf("mark withdrawal paid: %w", err)
		}
		w.Status = withdrawal.StatusPaid
		w.ExtRef = strings.TrimSpace(extRef)
		w.UpdatedAt = now
		out = w
		return nil
	})
	if err != nil {
		return withdrawal.Withdrawal{}, err
	}

	s.logger.InfoContext(ctx, "withdrawal paid",
		"withdrawal_id", out.ID,
		"member_id", out.MemberID,
		"amount_points", out.AmountPoints,
		"ext_ref", out.ExtRef,
	)
	return out, nil
}

// ListByMember returns recent withdrawals for one member.
func (s *WithdrawalService) ListByMember(ctx context.Context, memberID string, limit int) ([]withdrawal.Withdrawal, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.WithdrawalService.ListByMember")
	defer span.End()

	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, fmt.Errorf("%w: member id is required", ErrBadArgs)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, err := s.withdrawals.ListByMember(ctx, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	return items, nil
}
