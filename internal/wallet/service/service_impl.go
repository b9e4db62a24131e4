package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/clock"
	"github.com/smallbiznis/uplink/internal/config"
	"github.com/smallbiznis/uplink/internal/errs"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	"github.com/smallbiznis/uplink/internal/ledger/posting"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	memberservice "github.com/smallbiznis/uplink/internal/member/service"
	"github.com/smallbiznis/uplink/internal/notification"
	obsmetrics "github.com/smallbiznis/uplink/internal/observability/metrics"
	"github.com/smallbiznis/uplink/internal/ratelimit"
	"github.com/smallbiznis/uplink/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Plan       *config.CompensationConfigHolder
	Repo       domain.Repository
	Members    memberdomain.Repository
	Poster     *posting.Poster
	Limiter    *ratelimit.WalletLimiter `optional:"true"`
	Notifier   notification.Notifier    `optional:"true"`
	ObsMetrics *obsmetrics.Metrics      `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	plan       *config.CompensationConfigHolder
	repo       domain.Repository
	members    memberdomain.Repository
	poster     *posting.Poster
	limiter    *ratelimit.WalletLimiter
	notifier   notification.Notifier
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("wallet.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		plan:       p.Plan,
		repo:       p.Repo,
		members:    p.Members,
		poster:     p.Poster,
		limiter:    p.Limiter,
		notifier:   p.Notifier,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error) {
	result, posted, err := s.transfer(ctx, req)
	if err != nil {
		s.obsMetrics.RecordTransfer(ctx, errs.Code(err))
		if !errs.IsValidation(err) {
			s.log.Error("transfer failed", zap.String("sender_id", req.SenderID.String()), zap.Error(err))
		}
		return domain.TransferResult{}, err
	}
	s.obsMetrics.RecordTransfer(ctx, "completed")
	s.log.Info("transfer completed",
		zap.String("transfer_id", result.TransferID.String()),
		zap.String("sender_id", req.SenderID.String()),
		zap.String("recipient_id", result.RecipientID.String()),
		zap.Int64("amount", result.Amount),
	)
	notification.Dispatch(ctx, s.notifier, s.log, posted.Notices()...)
	return result, nil
}

func (s *Service) transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, posting.Result, error) {
	plan := s.plan.Get()
	if req.Amount < plan.TransferMin || req.Amount > plan.TransferMax {
		return domain.TransferResult{}, posting.Result{}, fmt.Errorf("%w: transfers must be between %d and %d",
			errs.ErrInvalidAmount, plan.TransferMin, plan.TransferMax)
	}
	if len(req.Note) > ledgerdomain.MaxNoteLen {
		return domain.TransferResult{}, posting.Result{}, fmt.Errorf("%w: note exceeds %d bytes", errs.ErrInvalidRequest, ledgerdomain.MaxNoteLen)
	}
	decision, err := s.limiter.Allow(ctx, req.SenderID)
	if err != nil {
		return domain.TransferResult{}, posting.Result{}, err
	}
	if !decision.Allowed {
		return domain.TransferResult{}, posting.Result{}, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, decision.RetryAfter)
	}

	var (
		result domain.TransferResult
		posted posting.Result
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recipient, err := memberservice.Resolve(ctx, tx, s.members, req.Recipient)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return domain.ErrRecipientMissing
			}
			return err
		}
		if recipient.ID == req.SenderID {
			return errs.ErrSelfTransfer
		}

		sender, recipient, err := s.lockPair(ctx, tx, req.SenderID, recipient.ID)
		if err != nil {
			return err
		}
		if !sender.IsActive {
			return fmt.Errorf("%w: sender", errs.ErrInactiveMember)
		}
		if !recipient.IsActive {
			return fmt.Errorf("%w: recipient", errs.ErrInactiveMember)
		}
		if sender.Balance < req.Amount {
			return errs.ErrInsufficientFunds
		}

		ok, err := s.members.Debit(ctx, tx, sender.ID, req.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return errs.ErrInsufficientFunds
		}

		id := s.genID.Generate()
		key := "transfer:" + id.String()
		note := req.Note
		if note == "" {
			note = "transfer from " + sender.Handle
		}
		posted, err = s.poster.Post(ctx, tx, ledgerdomain.Entry{
			EntryKey:    key,
			ExternalRef: key,
			SourceType:  ledgerdomain.SourceTransfer,
			SourceID:    id,
			BuyerID:     &sender.ID,
			EarnerID:    &recipient.ID,
			Amount:      req.Amount,
			Type:        ledgerdomain.CommissionP2P,
			Note:        note,
		})
		if err != nil {
			return err
		}
		result = domain.TransferResult{
			TransferID:  id,
			RecipientID: recipient.ID,
			Amount:      req.Amount,
			NewBalance:  sender.Balance - req.Amount,
		}
		return nil
	})
	return result, posted, err
}

// lockPair locks both members in ascending id order.
func (s *Service) lockPair(ctx context.Context, tx *gorm.DB, senderID, recipientID snowflake.ID) (*memberdomain.Member, *memberdomain.Member, error) {
	first, second := senderID, recipientID
	if second < first {
		first, second = second, first
	}
	a, err := s.members.FindByIDForUpdate(ctx, tx, first)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.members.FindByIDForUpdate(ctx, tx, second)
	if err != nil {
		return nil, nil, err
	}
	if first != senderID {
		a, b = b, a
	}
	if a == nil {
		return nil, nil, domain.ErrSenderMissing
	}
	if b == nil {
		return nil, nil, domain.ErrRecipientMissing
	}
	return a, b, nil
}

func (s *Service) RequestWithdrawal(ctx context.Context, memberID snowflake.ID, amount int64) (domain.WithdrawalResult, error) {
	log := s.log.With(zap.String("member_id", memberID.String()), zap.Int64("amount", amount))

	plan := s.plan.Get()
	if amount < plan.WithdrawalMin {
		return domain.WithdrawalResult{}, fmt.Errorf("%w: minimum withdrawal is %d", errs.ErrInvalidAmount, plan.WithdrawalMin)
	}
	decision, err := s.limiter.Allow(ctx, memberID)
	if err != nil {
		return domain.WithdrawalResult{}, err
	}
	if !decision.Allowed {
		return domain.WithdrawalResult{}, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, decision.RetryAfter)
	}

	var withdrawal domain.Withdrawal
	var remaining int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := s.members.FindByIDForUpdate(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return domain.ErrMemberMissing
		}
		if member.Balance < amount {
			return errs.ErrInsufficientFunds
		}
		if member.WalletAddress == "" {
			return errs.ErrMissingWallet
		}

		ok, err := s.members.Withdraw(ctx, tx, member.ID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return errs.ErrInsufficientFunds
		}

		now := s.clock.Now()
		withdrawal = domain.Withdrawal{
			ID:            s.genID.Generate(),
			MemberID:      member.ID,
			Amount:        amount,
			WalletAddress: member.WalletAddress,
			Status:        domain.WithdrawalPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.InsertWithdrawal(ctx, tx, &withdrawal); err != nil {
			return err
		}
		remaining = member.Balance - amount
		return nil
	})
	if err != nil {
		if !errs.IsValidation(err) {
			log.Error("withdrawal failed", zap.Error(err))
		}
		return domain.WithdrawalResult{}, err
	}

	log.Info("withdrawal requested", zap.String("withdrawal_id", withdrawal.ID.String()))
	notification.Dispatch(ctx, s.notifier, s.log, notification.Notice{
		Event:    notification.EventWithdrawalRequested,
		MemberID: memberID,
		Data: map[string]any{
			"amount":         amount,
			"wallet_address": withdrawal.WalletAddress,
			"withdrawal_id":  withdrawal.ID.String(),
		},
	})
	return domain.WithdrawalResult{
		WithdrawalID:     withdrawal.ID,
		Amount:           amount,
		RemainingBalance: remaining,
	}, nil
}

func (s *Service) ListWithdrawals(ctx context.Context, memberID snowflake.ID) ([]domain.Withdrawal, error) {
	return s.repo.ListWithdrawals(ctx, s.db, memberID)
}
