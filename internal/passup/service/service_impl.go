package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/clock"
	"github.com/smallbiznis/uplink/internal/passup/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("passup.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) RecordSale(ctx context.Context, tx *gorm.DB, memberID, tierID snowflake.ID) (domain.Sale, error) {
	now := s.clock.Now()
	if err := s.repo.Ensure(ctx, tx, memberID, tierID, now); err != nil {
		return domain.Sale{}, err
	}
	if err := s.repo.IncrementSales(ctx, tx, memberID, tierID, now); err != nil {
		return domain.Sale{}, err
	}
	first, err := s.repo.MarkFirstPassedUp(ctx, tx, memberID, tierID, now)
	if err != nil {
		return domain.Sale{}, err
	}
	tracker, err := s.repo.Find(ctx, tx, memberID, tierID)
	if err != nil {
		return domain.Sale{}, err
	}
	if tracker == nil {
		return domain.Sale{}, gorm.ErrRecordNotFound
	}

	s.log.Debug("sale recorded",
		zap.String("member_id", memberID.String()),
		zap.String("tier_id", tierID.String()),
		zap.Int("sales_count", tracker.SalesCount),
		zap.Bool("first", first),
	)
	return domain.Sale{Tracker: *tracker, First: first}, nil
}

func (s *Service) ConsumeFirstSale(ctx context.Context, tx *gorm.DB, memberID, tierID snowflake.ID) (bool, error) {
	now := s.clock.Now()
	if err := s.repo.Ensure(ctx, tx, memberID, tierID, now); err != nil {
		return false, err
	}
	return s.repo.ConsumeUntouched(ctx, tx, memberID, tierID, now)
}

func (s *Service) Get(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID) (domain.Tracker, error) {
	tracker, err := s.repo.Find(ctx, db, memberID, tierID)
	if err != nil {
		return domain.Tracker{}, err
	}
	if tracker == nil {
		return domain.Tracker{MemberID: memberID, TierID: tierID}, nil
	}
	return *tracker, nil
}

func (s *Service) ListByMember(ctx context.Context, memberID snowflake.ID) ([]domain.Tracker, error) {
	return s.repo.ListByMember(ctx, s.db, memberID)
}
