package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fortifiedfantasy/duels/internal/domain/donation"
	"github.com/fortifiedfantasy/duels/internal/domain/ledger"
	"github.com/fortifiedfantasy/duels/internal/platform/logging"
)

// DonationSource tags ledger entries created from ingested payments.
const DonationSource = "donation"

// MemberResolver maps a donation to a member account. Implementations look
// at the processor's member hint first and fall back to a verified donor
// email. An empty member id with a nil error means "unmappable for now".
type MemberResolver interface {
	ResolveMember(ctx context.Context, memberHint, donorEmail string) (string, error)
}

// MemberResolverFunc adapts a function to MemberResolver.
type MemberResolverFunc func(ctx context.Context, memberHint, donorEmail string) (string, error)

func (f MemberResolverFunc) ResolveMember(ctx context.Context, memberHint, donorEmail string) (string, error) {
	return f(ctx, memberHint, donorEmail)
}

// HintResolver treats a non-empty member hint as the member id itself.
// The donation processor stores the party handle in the hint field.
type HintResolver struct{}

func (HintResolver) ResolveMember(_ context.Context, memberHint, _ string) (string, error) {
	return strings.TrimSpace(memberHint), nil
}

// DonationIngestInput is one payment delivered by the processor webhook.
type DonationIngestInput struct {
	PaymentID   string
	AmountCents int64
	Currency    string
	DonorEmail  string
	MemberHint  string
	OccurredAt  time.Time
	RawPayload  []byte
}

// DonationService records external donations idempotently and credits
// points once a donor can be mapped to a member.
type DonationService struct {
	tx              TxManager
	donations       donation.Repository
	wallet          *WalletService
	resolver        MemberResolver
	pointsPerDollar int64
	logger          *logging.Logger
	now             func() time.Time
}

func NewDonationService(
	tx TxManager,
	donations donation.Repository,
	wallet *WalletService,
	resolver MemberResolver,
	pointsPerDollar int64,
	logger *logging.Logger,
) *DonationService {
	if logger == nil {
		logger = logging.Default()
	}
	if resolver == nil {
		resolver = HintResolver{}
	}
	return &DonationService{
		tx:              tx,
		donations:       donations,
		wallet:          wallet,
		resolver:        resolver,
		pointsPerDollar: pointsPerDollar,
		logger:          logger,
		now:             time.Now,
	}
}

// Ingest upserts a payment by its external id and credits points when the
// donor maps to a member. Redelivered webhooks collide on payment id and on
// the ledger idempotency key, so the credit lands at most once.
func (s *DonationService) Ingest(ctx context.Context, in DonationIngestInput) (donation.Donation, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.DonationService.Ingest")
	defer span.End()

	in.PaymentID = strings.TrimSpace(in.PaymentID)
	if in.PaymentID == "" {
		return donation.Donation{}, fmt.Errorf("%w: payment id is required", ErrBadArgs)
	}
	if in.AmountCents <= 0 {
		return donation.Donation{}, fmt.Errorf("%w: amount must be positive", ErrBadArgs)
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = s.now().UTC()
	}

	var out donation.Donation
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		stored, err := s.donations.Upsert(ctx, donation.Donation{
			PaymentID:   in.PaymentID,
			AmountCents: in.AmountCents,
			Currency:    in.Currency,
			DonorEmail:  strings.TrimSpace(in.DonorEmail),
			MemberHint:  strings.TrimSpace(in.MemberHint),
			OccurredAt:  in.OccurredAt.UTC(),
			RawPayload:  in.RawPayload,
			CreatedAt:   s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("upsert donation: %w", err)
		}

		out, err = s.creditIfMappable(ctx, stored)
		return err
	})
	if err != nil {
		return donation.Donation{}, err
	}

	return out, nil
}

// Sync retries the donor→member mapping for stored uncredited donations and
// credits the ones that now match. Safe to run repeatedly.
func (s *DonationService) Sync(ctx context.Context) (int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.DonationService.Sync")
	defer span.End()

	credited := 0
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		pending, err := s.donations.ListUncredited(ctx, 500)
		if err != nil {
			return fmt.Errorf("list uncredited donations: %w", err)
		}
		for _, d := range pending {
			after, err := s.creditIfMappable(ctx, d)
			if err != nil {
				return err
			}
			if after.Credited() {
				credited++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "donation sync finished", "credited", credited)
	return credited, nil
}

func (s *DonationService) creditIfMappable(ctx context.Context, d donation.Donation) (donation.Donation, error) {
	if d.Credited() {
		return d, nil
	}

	memberID, err := s.resolver.ResolveMember(ctx, d.MemberHint, d.DonorEmail)
	if err != nil {
		return donation.Donation{}, fmt.Errorf("resolve donation member: %w", err)
	}
	if memberID == "" {
		// Stored for later reconciliation via Sync.
		return d, nil
	}

	points := donation.CreditPoints(d.AmountCents, s.pointsPerDollar)
	if points > 0 {
		if _, err := s.wallet.Post(ctx, ledger.Entry{
			MemberID:       memberID,
			Delta:          points,
			Kind:           ledger.KindDonationCredit,
			Source:         DonationSource,
			SourceID:       d.PaymentID,
			Memo:           fmt.Sprintf("donation %d cents %s", d.AmountCents, d.Currency),
			IdempotencyKey: ledger.IdempotencyKey(DonationSource, d.PaymentID, "", 0),
		}); err != nil {
			return donation.Donation{}, err
		}
	}

	if err := s.donations.MarkCredited(ctx, d.PaymentID, memberID); err != nil {
		return donation.Donation{}, fmt.Errorf("mark donation credited: %w", err)
	}
	d.CreditedMemberID = memberID

	s.logger.InfoContext(ctx, "donation credited",
		"payment_id", d.PaymentID,
		"member_id", memberID,
		"points", points,
	)
	return d, nil
}
