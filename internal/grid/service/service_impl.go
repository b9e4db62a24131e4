package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/clock"
	"github.com/smallbiznis/uplink/internal/config"
	"github.com/smallbiznis/uplink/internal/errs"
	"github.com/smallbiznis/uplink/internal/grid/domain"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	"github.com/smallbiznis/uplink/internal/ledger/posting"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	"github.com/smallbiznis/uplink/internal/notification"
	obsmetrics "github.com/smallbiznis/uplink/internal/observability/metrics"
	"github.com/smallbiznis/uplink/internal/payment"
	paymentdomain "github.com/smallbiznis/uplink/internal/payment/domain"
	"github.com/smallbiznis/uplink/internal/sponsorgraph"
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
	genID          *snowflake.Node
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
		log:            p.Log.Named("grid.service"),
		genID:          p.GenID,
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

func (s *Service) ProcessGridPurchase(ctx context.Context, buyerID, tierID snowflake.ID, externalRef string) (domain.PurchaseResult, error) {
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
	if !buyer.IsActive {
		return domain.PurchaseResult{}, errs.ErrInactiveMember
	}
	tier, err := s.members.FindTier(ctx, s.db, tierID)
	if err != nil {
		return domain.PurchaseResult{}, err
	}
	if tier == nil {
		return domain.PurchaseResult{}, memberdomain.ErrTierMissing
	}
	if tier.Kind != memberdomain.TierKindGrid {
		return domain.PurchaseResult{}, domain.ErrNotGridTier
	}
	owner, err := s.owner(ctx, buyer)
	if err != nil {
		return domain.PurchaseResult{}, err
	}
	if owner == buyer.ID {
		return domain.PurchaseResult{}, domain.ErrOwnGrid
	}
	if err := payment.Confirm(ctx, s.ledger, s.verifier, log, ref, s.platformWallet, tier.Price); err != nil {
		s.obsMetrics.RecordExternalPayment(ctx, string(ledgerdomain.PaymentKindGrid), errs.Code(err))
		return domain.PurchaseResult{}, err
	}

	plan := s.plan.Get()
	var (
		result    domain.PurchaseResult
		posted    posting.Result
		completed *domain.Grid
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.Claim(ctx, tx, ledgerdomain.ExternalPayment{
			Ref:               ref,
			Kind:              ledgerdomain.PaymentKindGrid,
			MemberID:          buyer.ID,
			ExpectedRecipient: s.platformWallet,
			ExpectedAmount:    tier.Price,
		}); err != nil {
			return err
		}

		grid, depth, err := s.place(ctx, tx, plan, owner, tier)
		if err != nil {
			return err
		}

		var entries []ledgerdomain.Entry
		var sourceID snowflake.ID
		if grid == nil {
			result.Outcome = domain.OutcomeCapacityExceeded
			entries = []ledgerdomain.Entry{{
				EntryKey: ref + ":grid:platform",
				Amount:   tier.Price,
				Type:     ledgerdomain.CommissionPlatform,
				Note:     "no grid capacity in upline",
			}}
		} else {
			info, done, err := s.seat(ctx, tx, plan, grid, buyer.ID, ref, tier.Price, depth > 1)
			if err != nil {
				return err
			}
			if done {
				completed = grid
			}
			result.Seat = info
			sourceID = info.GridID

			ancestors, err := sponsorgraph.Chain(ctx, memberdomain.GraphLookup(tx, s.members), buyer.SponsorID, len(plan.LevelBps))
			if err != nil {
				return err
			}
			ids := make([]snowflake.ID, 0, len(ancestors))
			for _, a := range ancestors {
				ids = append(ids, a.ID)
			}
			entries = Split(ref, tier.Price, plan, ids)
			result.Outcome = domain.OutcomeSettled
			if len(ancestors) < len(plan.LevelBps) {
				result.Outcome = domain.OutcomeChainExhausted
			}
		}

		var placement datatypes.JSONMap
		if result.Seat != nil {
			placement = datatypes.JSONMap{
				"grid_id":       result.Seat.GridID.String(),
				"grid_advance":  result.Seat.Advance,
				"seat_level":    result.Seat.Level,
				"seat_position": result.Seat.Position,
				"overspill":     result.Seat.IsOverspill,
			}
		}
		for i := range entries {
			entries[i].Metadata = placement
			entries[i].ExternalRef = ref
			entries[i].SourceType = ledgerdomain.SourceGridFill
			entries[i].SourceID = sourceID
			entries[i].BuyerID = &buyer.ID
			entries[i].TierID = &tier.ID
		}
		posted, err = s.poster.Post(ctx, tx, entries...)
		if err != nil {
			return err
		}
		result.Distribution = posted.Entries
		result.Activations = posted.Activations

		return s.ledger.MarkProcessed(ctx, tx, ref)
	})
	if err != nil {
		s.obsMetrics.RecordExternalPayment(ctx, string(ledgerdomain.PaymentKindGrid), errs.Code(err))
		if !errs.IsValidation(err) {
			log.Error("grid purchase failed", zap.Error(err))
		}
		return domain.PurchaseResult{}, err
	}
	s.obsMetrics.RecordExternalPayment(ctx, string(ledgerdomain.PaymentKindGrid), "processed")

	fields := []zap.Field{zap.String("outcome", string(result.Outcome))}
	if result.Seat != nil {
		fields = append(fields,
			zap.String("grid_id", result.Seat.GridID.String()),
			zap.Int("level", result.Seat.Level),
			zap.Int("position", result.Seat.Position),
			zap.Bool("overspill", result.Seat.IsOverspill),
		)
	}
	log.Info("grid purchase processed", fields...)

	notices := posted.Notices()
	if completed != nil {
		notices = append(notices, notification.Notice{
			Event:    notification.EventGridCompleted,
			MemberID: completed.OwnerID,
			Data: map[string]any{
				"grid_id": completed.ID.String(),
				"advance": completed.Advance,
				"revenue": completed.RevenueTotal + tier.Price,
			},
		})
	}
	notification.Dispatch(ctx, s.notifier, s.log, notices...)
	return result, nil
}

// owner is the member whose grid receives the buyer: the sponsor, or the
// platform admin for organic buyers.
func (s *Service) owner(ctx context.Context, buyer *memberdomain.Member) (snowflake.ID, error) {
	if buyer.HasSponsor() {
		return *buyer.SponsorID, nil
	}
	admin, err := s.members.FindAdmin(ctx, s.db)
	if err != nil {
		return 0, err
	}
	if admin == nil {
		return 0, fmt.Errorf("%w: platform admin", errs.ErrNotFound)
	}
	return admin.ID, nil
}

// place finds the grid that takes the next seat, starting at owner and
// overspilling upward when the owner has run out of cycles. A nil grid means
// no member in the upline can host the seat.
func (s *Service) place(ctx context.Context, tx *gorm.DB, plan config.CompensationConfig, owner snowflake.ID, tier *memberdomain.Tier) (*domain.Grid, int, error) {
	var host *domain.Grid
	res, err := sponsorgraph.Walk(ctx, memberdomain.GraphLookup(tx, s.members), &owner,
		func(ctx context.Context, n sponsorgraph.Node, _ int) (bool, error) {
			g, err := s.openGrid(ctx, tx, plan, n.ID, tier.ID)
			if err != nil || g == nil {
				return false, err
			}
			host = g
			return true, nil
		},
		plan.WalkerMaxDepth,
	)
	if err != nil {
		return nil, 0, err
	}
	if res.Exhausted() {
		s.log.Warn("grid capacity exhausted",
			zap.String("owner_id", owner.String()),
			zap.String("tier_id", tier.ID.String()),
			zap.String("reason", string(res.Reason)),
		)
		return nil, 0, nil
	}
	return host, res.Depth, nil
}

// openGrid returns memberID's open grid at tier, creating the next cycle when
// the cycle limit allows it.
func (s *Service) openGrid(ctx context.Context, tx *gorm.DB, plan config.CompensationConfig, memberID, tierID snowflake.ID) (*domain.Grid, error) {
	g, err := s.repo.FindOpenForUpdate(ctx, tx, memberID, tierID)
	if err != nil || g != nil {
		return g, err
	}
	cycles, err := s.repo.CountByOwnerTier(ctx, tx, memberID, tierID)
	if err != nil {
		return nil, err
	}
	if plan.MaxGridCycles > 0 && cycles >= plan.MaxGridCycles {
		return nil, nil
	}
	if _, err := s.insertGrid(ctx, tx, plan, memberID, tierID, cycles+1); err != nil {
		return nil, err
	}
	return s.repo.FindOpenForUpdate(ctx, tx, memberID, tierID)
}

func (s *Service) insertGrid(ctx context.Context, tx *gorm.DB, plan config.CompensationConfig, ownerID, tierID snowflake.ID, advance int) (bool, error) {
	now := s.clock.Now()
	return s.repo.Insert(ctx, tx, &domain.Grid{
		ID:        s.genID.Generate(),
		OwnerID:   ownerID,
		TierID:    tierID,
		Advance:   advance,
		Width:     plan.GridWidth,
		Depth:     plan.GridDepth,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// seat claims the next slot of grid for memberID and seals the grid when it fills.
func (s *Service) seat(ctx context.Context, tx *gorm.DB, plan config.CompensationConfig, grid *domain.Grid, memberID snowflake.ID, ref string, amount int64, overspill bool) (*domain.SeatInfo, bool, error) {
	now := s.clock.Now()
	ok, err := s.repo.ClaimSeat(ctx, tx, grid.ID, grid.SeatsFilled, amount, now)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, domain.ErrSeatRace
	}
	level, position := domain.Slot(grid.SeatsFilled, grid.Width)
	if err := s.repo.InsertSeat(ctx, tx, &domain.Seat{
		ID:          s.genID.Generate(),
		GridID:      grid.ID,
		MemberID:    memberID,
		Level:       level,
		Position:    position,
		IsOverspill: overspill,
		ExternalRef: ref,
		Amount:      amount,
		CreatedAt:   now,
	}); err != nil {
		return nil, false, err
	}
	if err := s.members.IncrementTeamSize(ctx, tx, grid.OwnerID); err != nil {
		return nil, false, err
	}

	filled := grid.SeatsFilled + 1
	done := filled >= grid.Capacity()
	if done {
		if _, err := s.repo.MarkComplete(ctx, tx, grid.ID, now); err != nil {
			return nil, false, err
		}
		if plan.MaxGridCycles == 0 || grid.Advance < plan.MaxGridCycles {
			if _, err := s.insertGrid(ctx, tx, plan, grid.OwnerID, grid.TierID, grid.Advance+1); err != nil {
				return nil, false, err
			}
		}
	}
	return &domain.SeatInfo{
		GridID:      grid.ID,
		OwnerID:     grid.OwnerID,
		Advance:     grid.Advance,
		Level:       level,
		Position:    position,
		IsOverspill: overspill,
		SeatsFilled: filled,
		Completed:   done,
	}, done, nil
}

func (s *Service) ListGrids(ctx context.Context, ownerID snowflake.ID) ([]domain.Grid, error) {
	return s.repo.ListByOwner(ctx, s.db, ownerID)
}

func (s *Service) GridSeats(ctx context.Context, gridID snowflake.ID) (domain.Layout, error) {
	grid, err := s.repo.FindByID(ctx, s.db, gridID)
	if err != nil {
		return domain.Layout{}, err
	}
	if grid == nil {
		return domain.Layout{}, domain.ErrGridMissing
	}
	seats, err := s.repo.ListSeats(ctx, s.db, gridID)
	if err != nil {
		return domain.Layout{}, err
	}
	layout := domain.Layout{Grid: *grid, Levels: make(map[int][]domain.Seat, grid.Depth)}
	for _, seat := range seats {
		layout.Levels[seat.Level] = append(layout.Levels[seat.Level], seat)
	}
	return layout, nil
}
