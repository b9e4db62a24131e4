package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/clock"
	"github.com/smallbiznis/uplink/internal/config"
	"github.com/smallbiznis/uplink/internal/errs"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	"github.com/smallbiznis/uplink/internal/ledger/posting"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	"github.com/smallbiznis/uplink/internal/membership/domain"
	"github.com/smallbiznis/uplink/internal/notification"
	obsmetrics "github.com/smallbiznis/uplink/internal/observability/metrics"
	"github.com/smallbiznis/uplink/internal/payment"
	paymentdomain "github.com/smallbiznis/uplink/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatchSize = 100

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	AppConfig  config.Config
	Plan       *config.CompensationConfigHolder
	Repo       domain.Repository
	Members    memberdomain.Repository
	Ledger     ledgerdomain.Service
	Poster     *posting.Poster
	Verifier   paymentdomain.Verifier
	Notifier   notification.Notifier `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	platformWallet string
	plan           *config.CompensationConfigHolder
	repo           domain.Repository
	members        memberdomain.Repository
	ledger         ledgerdomain.Service
	poster         *posting.Poster
	verifier       paymentdomain.Verifier
	notifier       notification.Notifier
	obsMetrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("membership.service"),
		clock:          p.Clock,
		platformWallet: p.AppConfig.PlatformWallet,
		plan:           p.Plan,
		repo:           p.Repo,
		members:        p.Members,
		ledger:         p.Ledger,
		poster:         p.Poster,
		verifier:       p.Verifier,
		notifier:       p.Notifier,
		obsMetrics:     p.ObsMetrics,
	}
}

// ProcessMembershipPayment activates memberID once the fee paid to its sponsor
// (or the platform for organic members) is verified.
func (s *Service) ProcessMembershipPayment(ctx context.Context, memberID snowflake.ID, externalRef string) (domain.ActivationResult, error) {
	ref := strings.TrimSpace(externalRef)
	log := s.log.With(
		zap.String("member_id", memberID.String()),
		zap.String("external_ref", ref),
	)

	member, err := s.members.FindByID(ctx, s.db, memberID)
	if err != nil {
		return domain.ActivationResult{}, err
	}
	if member == nil {
		return domain.ActivationResult{}, domain.ErrMemberMissing
	}
	if member.IsActive {
		return domain.ActivationResult{}, errs.ErrAlreadyActive
	}
	var sponsor *memberdomain.Member
	if member.HasSponsor() {
		sponsor, err = s.members.FindByID(ctx, s.db, *member.SponsorID)
		if err != nil {
			return domain.ActivationResult{}, err
		}
	}
	recipient := s.platformWallet
	if sponsor != nil && sponsor.WalletAddress != "" {
		recipient = sponsor.WalletAddress
	}

	plan := s.plan.Get()
	fee := plan.MembershipFee
	if err := payment.Confirm(ctx, s.ledger, s.verifier, log, ref, recipient, fee); err != nil {
		s.obsMetrics.RecordExternalPayment(ctx, string(ledgerdomain.PaymentKindMembership), errs.Code(err))
		return domain.ActivationResult{}, err
	}

	result := domain.ActivationResult{MemberID: member.ID}
	var posted posting.Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.Claim(ctx, tx, ledgerdomain.ExternalPayment{
			Ref:               ref,
			Kind:              ledgerdomain.PaymentKindMembership,
			MemberID:          member.ID,
			ExpectedRecipient: recipient,
			ExpectedAmount:    fee,
		}); err != nil {
			return err
		}

		activated, err := s.members.Activate(ctx, tx, member.ID)
		if err != nil {
			return err
		}
		if !activated {
			return errs.ErrAlreadyActive
		}
		now := s.clock.Now()
		result.NextRenewalDate = now.Add(plan.RenewalPeriod())
		if err := s.repo.Schedule(ctx, tx, member.ID, now, result.NextRenewalDate); err != nil {
			return err
		}

		entry := ledgerdomain.Entry{
			EntryKey:    ref + ":membership",
			ExternalRef: ref,
			SourceType:  ledgerdomain.SourceMembership,
			SourceID:    member.ID,
			BuyerID:     &member.ID,
			Amount:      fee,
			Type:        ledgerdomain.CommissionMembership,
			Note:        "membership fee absorbed by platform",
		}
		if sponsor != nil {
			entry.EarnerID = &sponsor.ID
			entry.Note = "membership fee paid to sponsor"
			result.SponsorID = &sponsor.ID
			if err := s.members.IncrementReferralCount(ctx, tx, sponsor.ID); err != nil {
				return err
			}
		}
		posted, err = s.poster.Post(ctx, tx, entry)
		if err != nil {
			return err
		}
		for _, a := range posted.Activations {
			result.CascadeActivations = append(result.CascadeActivations, a.MemberID)
		}
		return s.ledger.MarkProcessed(ctx, tx, ref)
	})
	if err != nil {
		s.obsMetrics.RecordExternalPayment(ctx, string(ledgerdomain.PaymentKindMembership), errs.Code(err))
		if !errs.IsValidation(err) {
			log.Error("membership payment failed", zap.Error(err))
		}
		return domain.ActivationResult{}, err
	}
	s.obsMetrics.RecordExternalPayment(ctx, string(ledgerdomain.PaymentKindMembership), "processed")

	log.Info("membership activated", zap.Int("cascade_activations", len(result.CascadeActivations)))
	notices := append([]notification.Notice{{
		Event:    notification.EventMembershipActivated,
		MemberID: member.ID,
		Data:     map[string]any{"next_renewal_date": result.NextRenewalDate},
	}}, posted.Notices()...)
	notification.Dispatch(ctx, s.notifier, s.log, notices...)
	return result, nil
}

type renewalOutcome string

const (
	outcomeNone    renewalOutcome = "none"
	outcomeRenewed renewalOutcome = "renewed"
	outcomeWarned  renewalOutcome = "warned"
	outcomeGrace   renewalOutcome = "grace_started"
	outcomeLapsed  renewalOutcome = "lapsed"
	outcomeFailed  renewalOutcome = "failed"
)

// RunRenewalSweep walks every active member whose renewal is near, due or in
// grace. Each member is settled in its own transaction so one failure does not
// hold back the rest.
func (s *Service) RunRenewalSweep(ctx context.Context) (domain.SweepResult, error) {
	var result domain.SweepResult
	plan := s.plan.Get()
	horizon := s.clock.Now().Add(plan.WarningWindow())

	var afterID snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ids, err := s.repo.ListCandidates(ctx, s.db, horizon, afterID, sweepBatchSize)
		if err != nil {
			return result, err
		}
		for _, id := range ids {
			outcome, notices, err := s.renew(ctx, id, plan)
			if err != nil {
				s.log.Error("renewal failed", zap.String("member_id", id.String()), zap.Error(err))
				outcome = outcomeFailed
			}
			switch outcome {
			case outcomeRenewed:
				result.Renewed = append(result.Renewed, id)
			case outcomeWarned:
				result.Warned = append(result.Warned, id)
			case outcomeGrace:
				result.GraceStarted = append(result.GraceStarted, id)
			case outcomeLapsed:
				result.Lapsed = append(result.Lapsed, id)
			case outcomeFailed:
				result.Failed = append(result.Failed, id)
			}
			notification.Dispatch(ctx, s.notifier, s.log, notices...)
		}
		if len(ids) < sweepBatchSize {
			break
		}
		afterID = ids[len(ids)-1]
	}

	s.obsMetrics.RecordRenewal(ctx, string(outcomeRenewed), len(result.Renewed))
	s.obsMetrics.RecordRenewal(ctx, string(outcomeWarned), len(result.Warned))
	s.obsMetrics.RecordRenewal(ctx, string(outcomeGrace), len(result.GraceStarted))
	s.obsMetrics.RecordRenewal(ctx, string(outcomeLapsed), len(result.Lapsed))
	s.obsMetrics.RecordRenewal(ctx, string(outcomeFailed), len(result.Failed))

	s.log.Info("renewal sweep finished",
		zap.Int("renewed", len(result.Renewed)),
		zap.Int("warned", len(result.Warned)),
		zap.Int("grace_started", len(result.GraceStarted)),
		zap.Int("lapsed", len(result.Lapsed)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// renew settles one member with its member and renewal rows locked. The
// returned notices are only meaningful once the transaction has committed.
func (s *Service) renew(ctx context.Context, memberID snowflake.ID, plan config.CompensationConfig) (renewalOutcome, []notification.Notice, error) {
	outcome := outcomeNone
	var notices []notification.Notice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		outcome = outcomeNone
		notices = nil

		member, err := s.members.FindByIDForUpdate(ctx, tx, memberID)
		if err != nil {
			return err
		}
		renewal, err := s.repo.FindForUpdate(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if member == nil || renewal == nil || !member.IsActive {
			return nil
		}

		now := s.clock.Now()
		fee := plan.MembershipFee
		funded := member.Balance >= fee
		due := !now.Before(renewal.NextRenewalDate)

		switch {
		case (due || renewal.InGracePeriod) && funded:
			posted, next, err := s.charge(ctx, tx, member, renewal, plan, now)
			if err != nil {
				return err
			}
			if next.IsZero() {
				return nil
			}
			outcome = outcomeRenewed
			notices = append(notices, notification.Notice{
				Event:    notification.EventMembershipRenewed,
				MemberID: member.ID,
				Data:     map[string]any{"fee": fee, "next_renewal_date": next},
			})
			notices = append(notices, posted.Notices()...)

		case renewal.InGracePeriod:
			start := now
			if renewal.GracePeriodStart != nil {
				start = *renewal.GracePeriodStart
			}
			if now.Before(start.Add(plan.GraceWindow())) {
				return nil
			}
			if _, err := s.members.Deactivate(ctx, tx, member.ID); err != nil {
				return err
			}
			if err := s.repo.ClearGrace(ctx, tx, member.ID, now); err != nil {
				return err
			}
			outcome = outcomeLapsed
			notices = append(notices, notification.Notice{
				Event:    notification.EventMembershipLapsed,
				MemberID: member.ID,
				Data:     map[string]any{"grace_started": start},
			})

		case due:
			started, err := s.repo.StartGrace(ctx, tx, member.ID, now)
			if err != nil || !started {
				return err
			}
			outcome = outcomeGrace
			notices = append(notices, notification.Notice{
				Event:    notification.EventGracePeriodStarted,
				MemberID: member.ID,
				Data: map[string]any{
					"fee":      fee,
					"balance":  member.Balance,
					"deadline": now.Add(plan.GraceWindow()),
				},
			})

		case !funded && !now.Add(plan.WarningWindow()).Before(renewal.NextRenewalDate):
			warned, err := s.repo.MarkWarned(ctx, tx, member.ID, now)
			if err != nil || !warned {
				return err
			}
			outcome = outcomeWarned
			notices = append(notices, notification.Notice{
				Event:    notification.EventRenewalLowBalance,
				MemberID: member.ID,
				Data: map[string]any{
					"fee":          fee,
					"balance":      member.Balance,
					"renewal_date": renewal.NextRenewalDate,
				},
			})
		}
		return nil
	})
	if err != nil {
		return outcomeFailed, nil, err
	}
	return outcome, notices, nil
}

// charge debits the fee and pays it to the sponsor, or the platform when there
// is none. A zero next date means the debit lost a race and nothing changed.
func (s *Service) charge(ctx context.Context, tx *gorm.DB, member *memberdomain.Member, renewal *domain.Renewal, plan config.CompensationConfig, now time.Time) (posting.Result, time.Time, error) {
	fee := plan.MembershipFee
	ok, err := s.members.Debit(ctx, tx, member.ID, fee)
	if err != nil || !ok {
		return posting.Result{}, time.Time{}, err
	}

	next := renewal.NextRenewalDate.Add(plan.RenewalPeriod())
	if !next.After(now) {
		next = now.Add(plan.RenewalPeriod())
	}

	key := fmt.Sprintf("renewal:%s:%d", member.ID, renewal.TotalRenewals+1)
	entry := ledgerdomain.Entry{
		EntryKey:    key,
		ExternalRef: key,
		SourceType:  ledgerdomain.SourceRenewal,
		SourceID:    member.ID,
		BuyerID:     &member.ID,
		Amount:      fee,
		Type:        ledgerdomain.CommissionMembershipRenewal,
		Note:        "membership renewal absorbed by platform",
	}
	if member.HasSponsor() {
		sponsor, err := s.members.FindByID(ctx, tx, *member.SponsorID)
		if err != nil {
			return posting.Result{}, time.Time{}, err
		}
		if sponsor != nil {
			entry.EarnerID = &sponsor.ID
			entry.Note = "membership renewal paid to sponsor"
		}
	}
	posted, err := s.poster.Post(ctx, tx, entry)
	if err != nil {
		return posting.Result{}, time.Time{}, err
	}
	if err := s.repo.MarkRenewed(ctx, tx, member.ID, now, next); err != nil {
		return posting.Result{}, time.Time{}, err
	}
	return posted, next, nil
}

func (s *Service) Status(ctx context.Context, memberID snowflake.ID) (domain.Status, error) {
	renewal, err := s.repo.Find(ctx, s.db, memberID)
	if err != nil {
		return domain.Status{}, err
	}
	if renewal == nil {
		return domain.Status{}, nil
	}
	next := renewal.NextRenewalDate
	return domain.Status{
		Scheduled:        true,
		NextRenewalDate:  &next,
		InGracePeriod:    renewal.InGracePeriod,
		GracePeriodStart: renewal.GracePeriodStart,
		TotalRenewals:    renewal.TotalRenewals,
	}, nil
}
