package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/clock"
	"github.com/smallbiznis/uplink/internal/config"
	"github.com/smallbiznis/uplink/internal/course/domain"
	"github.com/smallbiznis/uplink/internal/errs"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	"github.com/smallbiznis/uplink/internal/ledger/posting"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	"github.com/smallbiznis/uplink/internal/notification"
	obsmetrics "github.com/smallbiznis/uplink/internal/observability/metrics"
	passupdomain "github.com/smallbiznis/uplink/internal/passup/domain"
	"github.com/smallbiznis/uplink/internal/payment"
	paymentdomain "github.com/smallbiznis/uplink/internal/payment/domain"
	"github.com/smallbiznis/uplink/internal/sponsorgraph"
	"github.com/smallbiznis/uplink/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	AppConfig  config.Config
	Plan       *config.CompensationConfigHolder
	Members    memberdomain.Repository
	PassUp     passupdomain.Service
	Ledger     ledgerdomain.Service
	Poster     *posting.Poster
	Verifier   paymentdomain.Verifier
	Notifier   notification.Notifier `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	platformWallet string
	plan           *config.CompensationConfigHolder
	members        memberdomain.Repository
	passup         passupdomain.Service
	ledger         ledgerdomain.Service
	poster         *posting.Poster
	verifier       paymentdomain.Verifier
	notifier       notification.Notifier
	obsMetrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("course.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		platformWallet: p.AppConfig.PlatformWallet,
		plan:           p.Plan,
		members:        p.Members,
		passup:         p.PassUp,
		ledger:         p.Ledger,
		poster:         p.Poster,
		verifier:       p.Verifier,
		notifier:       p.Notifier,
		obsMetrics:     p.ObsMetrics,
	}
}

// award is the single recipient of a course sale.
type award struct {
	earner   *memberdomain.Member
	kind     ledgerdomain.CommissionType
	depth    int
	note     string
	outcome  domain.Outcome
	consumed []snowflake.ID
}

func (s *Service) ProcessTierPurchase(ctx context.Context, buyerID, tierID snowflake.ID, externalRef string) (domain.PurchaseResult, error) {
	ref := strings.TrimSpace(externalRef)
	log := s.log.With(
		zap.String("member_id", buyerID.String()),
		zap.String("tier_id", tierID.String()),
		zap.String("external_ref", ref),
	)

	buyer, err := s.members.FindByID(ctx, s.db, buyerID)
	if err != nil {
		return domain.PurchaseResult{}, err
	}
	if buyer == nil {
		return domain.PurchaseResult{}, memberdomain.ErrMemberMissing
	}
	tier, err := s.members.FindTier(ctx, s.db, tierID)
	if err != nil {
		return domain.PurchaseResult{}, err
	}
	if tier == nil {
		return domain.PurchaseResult{}, memberdomain.ErrTierMissing
	}
	if tier.Kind != memberdomain.TierKindCourse {
		return domain.PurchaseResult{}, domain.ErrNotCourseTier
	}
	owned, err := s.members.HasPurchase(ctx, s.db, buyerID, tierID)
	if err != nil {
		return domain.PurchaseResult{}, err
	}
	if owned {
		return domain.PurchaseResult{}, errs.ErrAlreadyOwned
	}
	if err := payment.Confirm(ctx, s.ledger, s.verifier, log, ref, s.platformWallet, tier.Price); err != nil {
		s.obsMetrics.RecordExternalPayment(ctx, string(ledgerdomain.PaymentKindCourse), errs.Code(err))
		return domain.PurchaseResult{}, err
	}

	result := domain.PurchaseResult{TierID: tier.ID, Amount: tier.Price}
	var posted posting.Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.Claim(ctx, tx, ledgerdomain.ExternalPayment{
			Ref:               ref,
			Kind:              ledgerdomain.PaymentKindCourse,
			MemberID:          buyer.ID,
			ExpectedRecipient: s.platformWallet,
			ExpectedAmount:    tier.Price,
		}); err != nil {
			return err
		}

		purchase := memberdomain.Purchase{
			ID:          s.genID.Generate(),
			MemberID:    buyer.ID,
			TierID:      tier.ID,
			TierKind:    tier.Kind,
			TierLevel:   tier.Level,
			AmountPaid:  tier.Price,
			ExternalRef: ref,
			CreatedAt:   s.clock.Now(),
		}
		if err := s.members.InsertPurchase(ctx, tx, &purchase); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return errs.ErrAlreadyOwned
			}
			return err
		}
		result.PurchaseID = purchase.ID

		a, err := s.decide(ctx, tx, buyer, tier)
		if err != nil {
			return err
		}

		entry := ledgerdomain.Entry{
			EntryKey:    ref + ":course",
			ExternalRef: ref,
			SourceType:  ledgerdomain.SourceCoursePurchase,
			SourceID:    purchase.ID,
			BuyerID:     &buyer.ID,
			TierID:      &tier.ID,
			Amount:      tier.Price,
			Type:        a.kind,
			Depth:       a.depth,
			Note:        a.note,
		}
		if a.earner != nil {
			entry.EarnerID = &a.earner.ID
		}
		if len(a.consumed) > 0 {
			qualifiers := make([]string, 0, len(a.consumed))
			for _, id := range a.consumed {
				qualifiers = append(qualifiers, id.String())
			}
			entry.Metadata = datatypes.JSONMap{"consumed_qualifiers": qualifiers}
		}

		posted, err = s.poster.Post(ctx, tx, entry)
		if err != nil {
			return err
		}
		result.Outcome = a.outcome
		result.Distribution = posted.Entries
		result.Consumed = a.consumed
		result.Activations = posted.Activations

		return s.ledger.MarkProcessed(ctx, tx, ref)
	})
	if err != nil {
		s.obsMetrics.RecordExternalPayment(ctx, string(ledgerdomain.PaymentKindCourse), errs.Code(err))
		if !errs.IsValidation(err) {
			log.Error("course purchase failed", zap.Error(err))
		}
		return domain.PurchaseResult{}, err
	}
	s.obsMetrics.RecordExternalPayment(ctx, string(ledgerdomain.PaymentKindCourse), "processed")

	log.Info("course purchase processed",
		zap.String("outcome", string(result.Outcome)),
		zap.Int("consumed", len(result.Consumed)),
		zap.Int("activations", len(result.Activations)),
	)
	notification.Dispatch(ctx, s.notifier, s.log, posted.Notices()...)
	return result, nil
}

// decide applies the pass-up rules for one sale of tier to buyer inside tx.
func (s *Service) decide(ctx context.Context, tx *gorm.DB, buyer *memberdomain.Member, tier *memberdomain.Tier) (award, error) {
	if !buyer.HasSponsor() {
		return award{kind: ledgerdomain.CommissionPlatform, outcome: domain.OutcomeOrganic, note: "organic purchase"}, nil
	}
	sponsor, err := s.members.FindByID(ctx, tx, *buyer.SponsorID)
	if err != nil {
		return award{}, err
	}
	if sponsor == nil {
		return award{kind: ledgerdomain.CommissionPlatform, outcome: domain.OutcomeOrganic, note: "sponsor not found"}, nil
	}

	sale, err := s.passup.RecordSale(ctx, tx, sponsor.ID, tier.ID)
	if err != nil {
		return award{}, err
	}
	if sale.First {
		return s.passUp(ctx, tx, sponsor, tier)
	}

	owns, err := s.members.OwnsTierLevel(ctx, tx, sponsor.ID, tier.Kind, tier.Level)
	if err != nil {
		return award{}, err
	}
	if owns {
		return award{
			earner:  sponsor,
			kind:    ledgerdomain.CommissionDirectSale,
			outcome: domain.OutcomeCredited,
			note:    fmt.Sprintf("sale #%d at %s", sale.Tracker.SalesCount, tier.Name),
		}, nil
	}

	res, err := sponsorgraph.Walk(ctx, memberdomain.GraphLookup(tx, s.members), sponsor.SponsorID,
		func(ctx context.Context, n sponsorgraph.Node, _ int) (bool, error) {
			if n.IsAdmin {
				return true, nil
			}
			return s.members.OwnsTierLevel(ctx, tx, n.ID, tier.Kind, tier.Level)
		},
		s.plan.Get().WalkerMaxDepth,
	)
	if err != nil {
		return award{}, err
	}
	if res.Exhausted() {
		return award{
			kind:    ledgerdomain.CommissionPlatform,
			outcome: domain.OutcomeChainExhausted,
			note:    fmt.Sprintf("sponsor %s unqualified and no qualified upline (%s)", sponsor.Handle, res.Reason),
		}, nil
	}
	earner, err := s.earner(ctx, tx, res.Match.ID)
	if err != nil {
		return award{}, err
	}
	return award{
		earner:  earner,
		kind:    ledgerdomain.CommissionQualificationSkip,
		depth:   res.Depth,
		outcome: domain.OutcomeCredited,
		note:    fmt.Sprintf("sponsor %s unqualified, skipped %d levels", sponsor.Handle, res.Depth),
	}, nil
}

// passUp routes the sponsor's first sale at tier upward. The walk only reads;
// the untouched qualifiers it passes are consumed afterwards, in walk order.
func (s *Service) passUp(ctx context.Context, tx *gorm.DB, sponsor *memberdomain.Member, tier *memberdomain.Tier) (award, error) {
	untouched := make(map[snowflake.ID]bool)
	res, err := sponsorgraph.Walk(ctx, memberdomain.GraphLookup(tx, s.members), sponsor.SponsorID,
		func(ctx context.Context, n sponsorgraph.Node, _ int) (bool, error) {
			if n.IsAdmin {
				return true, nil
			}
			owns, err := s.members.OwnsTierLevel(ctx, tx, n.ID, tier.Kind, tier.Level)
			if err != nil || !owns {
				return false, err
			}
			tracker, err := s.passup.Get(ctx, tx, n.ID, tier.ID)
			if err != nil {
				return false, err
			}
			if tracker.HasHistory() {
				return true, nil
			}
			untouched[n.ID] = true
			return false, nil
		},
		s.plan.Get().WalkerMaxDepth,
	)
	if err != nil {
		return award{}, err
	}

	var consumed []snowflake.ID
	for i, node := range res.Visited {
		if !untouched[node.ID] {
			continue
		}
		ok, err := s.passup.ConsumeFirstSale(ctx, tx, node.ID, tier.ID)
		if err != nil {
			return award{}, err
		}
		if !ok {
			// Gained history since the walk read it, so it qualifies now.
			earner, err := s.earner(ctx, tx, node.ID)
			if err != nil {
				return award{}, err
			}
			return award{
				earner:   earner,
				kind:     ledgerdomain.CommissionPassUp,
				depth:    i + 1,
				outcome:  domain.OutcomeCredited,
				consumed: consumed,
				note:     fmt.Sprintf("pass-up of %s's first %s sale", sponsor.Handle, tier.Name),
			}, nil
		}
		consumed = append(consumed, node.ID)
	}

	if res.Exhausted() {
		return award{
			kind:     ledgerdomain.CommissionPlatform,
			outcome:  domain.OutcomeChainExhausted,
			consumed: consumed,
			note:     fmt.Sprintf("pass-up of %s's first %s sale found no qualified upline (%s)", sponsor.Handle, tier.Name, res.Reason),
		}, nil
	}
	earner, err := s.earner(ctx, tx, res.Match.ID)
	if err != nil {
		return award{}, err
	}
	return award{
		earner:   earner,
		kind:     ledgerdomain.CommissionPassUp,
		depth:    res.Depth,
		outcome:  domain.OutcomeCredited,
		consumed: consumed,
		note:     fmt.Sprintf("pass-up of %s's first %s sale", sponsor.Handle, tier.Name),
	}, nil
}

func (s *Service) earner(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*memberdomain.Member, error) {
	m, err := s.members.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("qualified upline vanished during walk")
	}
	return m, nil
}
