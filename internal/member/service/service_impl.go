package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/uplink/internal/clock"
	"github.com/smallbiznis/uplink/internal/config"
	"github.com/smallbiznis/uplink/internal/errs"
	"github.com/smallbiznis/uplink/internal/member/domain"
	"github.com/smallbiznis/uplink/internal/sponsorgraph"
	"github.com/smallbiznis/uplink/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Config *config.CompensationConfigHolder
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	cfg   *config.CompensationConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("member.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		cfg:   p.Config,
	}
}

// NormalizeHandle maps user input to the stored handle form.
func NormalizeHandle(raw string) string {
	return slug.Make(strings.TrimPrefix(strings.TrimSpace(raw), "@"))
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Member, error) {
	handle := NormalizeHandle(req.Handle)
	if handle == "" || len(handle) > domain.MaxHandleLen {
		return nil, domain.ErrInvalidHandle
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && (!strings.Contains(email, "@") || len(email) > domain.MaxEmailLen) {
		return nil, domain.ErrInvalidEmail
	}
	wallet := strings.TrimSpace(req.WalletAddress)
	if len(wallet) > domain.MaxWalletAddressLen {
		return nil, domain.ErrInvalidWallet
	}

	var sponsorID *snowflake.ID
	if strings.TrimSpace(req.SponsorRef) != "" {
		sponsor, err := s.ResolveHandle(ctx, req.SponsorRef)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return nil, domain.ErrSponsorAbsent
			}
			return nil, err
		}
		id := sponsor.ID
		sponsorID = &id
	}

	now := s.clock.Now()
	member := &domain.Member{
		ID:            s.genID.Generate(),
		Handle:        handle,
		Email:         email,
		WalletAddress: wallet,
		SponsorID:     sponsorID,
		IsAdmin:       req.IsAdmin,
		IsActive:      req.IsAdmin,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Insert(ctx, s.db, member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, errs.ErrHandleTaken
		}
		return nil, err
	}

	s.log.Info("member registered",
		zap.String("member_id", member.ID.String()),
		zap.String("handle", member.Handle),
		zap.Bool("organic", sponsorID == nil),
	)
	return member, nil
}

// AssignSponsor attaches a sponsor to a member registered without one.
// The sponsor link is permanent and may not close a cycle.
func (s *Service) AssignSponsor(ctx context.Context, memberID, sponsorID snowflake.ID) error {
	if memberID == sponsorID {
		return errs.ErrSponsorCycle
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := s.repo.FindByIDForUpdate(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return domain.ErrMemberMissing
		}
		if member.HasSponsor() {
			return errs.ErrSponsorAssigned
		}
		sponsor, err := s.repo.FindByID(ctx, tx, sponsorID)
		if err != nil {
			return err
		}
		if sponsor == nil {
			return domain.ErrSponsorAbsent
		}

		cycle, err := sponsorgraph.Reaches(ctx, domain.GraphLookup(tx, s.repo), sponsorID, memberID, s.cfg.Get().WalkerMaxDepth)
		if err != nil {
			return err
		}
		if cycle {
			return errs.ErrSponsorCycle
		}

		ok, err := s.repo.SetSponsor(ctx, tx, memberID, sponsorID)
		if err != nil {
			return err
		}
		if !ok {
			return errs.ErrSponsorAssigned
		}
		return nil
	})
}

func (s *Service) SetWalletAddress(ctx context.Context, memberID snowflake.ID, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errs.ErrMissingWallet
	}
	if len(address) > domain.MaxWalletAddressLen {
		return domain.ErrInvalidWallet
	}
	member, err := s.Get(ctx, memberID)
	if err != nil {
		return err
	}
	return s.repo.SetWalletAddress(ctx, s.db, member.ID, address)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Member, error) {
	member, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrMemberMissing
	}
	return member, nil
}

// ResolveHandle accepts a numeric member id, a handle, or an @handle.
func (s *Service) ResolveHandle(ctx context.Context, handleOrID string) (*domain.Member, error) {
	return Resolve(ctx, s.db, s.repo, handleOrID)
}

// Resolve is ResolveHandle against an explicit handle, for use inside transactions.
func Resolve(ctx context.Context, tx *gorm.DB, repo domain.Repository, handleOrID string) (*domain.Member, error) {
	raw := strings.TrimSpace(handleOrID)
	if raw == "" {
		return nil, domain.ErrMemberMissing
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
		member, err := repo.FindByID(ctx, tx, snowflake.ID(id))
		if err != nil {
			return nil, err
		}
		if member != nil {
			return member, nil
		}
	}
	handle := NormalizeHandle(raw)
	if handle == "" {
		return nil, domain.ErrMemberMissing
	}
	member, err := repo.FindByHandle(ctx, tx, handle)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrMemberMissing
	}
	return member, nil
}

func (s *Service) OwnsTier(ctx context.Context, memberID, tierID snowflake.ID) (bool, error) {
	tier, err := s.GetTier(ctx, tierID)
	if err != nil {
		return false, err
	}
	return s.repo.OwnsTierLevel(ctx, s.db, memberID, tier.Kind, tier.Level)
}

func (s *Service) GetTier(ctx context.Context, id snowflake.ID) (*domain.Tier, error) {
	tier, err := s.repo.FindTier(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, domain.ErrTierMissing
	}
	return tier, nil
}

func (s *Service) ListTiers(ctx context.Context, kind domain.TierKind) ([]domain.Tier, error) {
	return s.repo.ListTiers(ctx, s.db, kind)
}
