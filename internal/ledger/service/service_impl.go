package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/clock"
	"github.com/smallbiznis/uplink/internal/errs"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/uplink/internal/observability/metrics"
	"github.com/smallbiznis/uplink/pkg/db"
	"github.com/smallbiznis/uplink/pkg/db/pagination"
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
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func validRef(ref string) bool {
	return ref != "" && len(ref) <= ledgerdomain.MaxExternalRefLen
}

func (s *Service) HasProcessed(ctx context.Context, ref string) (bool, error) {
	ref = strings.TrimSpace(ref)
	if !validRef(ref) {
		return false, ledgerdomain.ErrInvalidExternalRef
	}
	payment, err := s.repo.FindPayment(ctx, s.db, ref)
	if err != nil {
		return false, err
	}
	return payment != nil, nil
}

func (s *Service) Claim(ctx context.Context, tx *gorm.DB, payment ledgerdomain.ExternalPayment) error {
	payment.Ref = strings.TrimSpace(payment.Ref)
	if !validRef(payment.Ref) {
		return ledgerdomain.ErrInvalidExternalRef
	}
	if payment.ExpectedAmount < 0 {
		return ledgerdomain.ErrNegativeAmount
	}
	payment.Status = ledgerdomain.PaymentStatusVerified
	if payment.VerifiedAt.IsZero() {
		payment.VerifiedAt = s.clock.Now()
	}
	payment.ProcessedAt = nil

	claimed, err := s.repo.ClaimPayment(ctx, tx, &payment)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return errs.ErrDuplicateExternalReference
		}
		return err
	}
	if !claimed {
		return errs.ErrDuplicateExternalReference
	}
	return nil
}

func (s *Service) MarkProcessed(ctx context.Context, tx *gorm.DB, ref string) error {
	return s.repo.MarkProcessed(ctx, tx, ref, s.clock.Now())
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry *ledgerdomain.Entry) error {
	if entry == nil {
		return ledgerdomain.ErrInvalidEntryKey
	}
	if !entry.Type.Valid() {
		return ledgerdomain.ErrInvalidCommissionType
	}
	if !entry.SourceType.Valid() {
		return ledgerdomain.ErrInvalidSourceType
	}
	if entry.Amount < 0 {
		return ledgerdomain.ErrNegativeAmount
	}
	entry.EntryKey = strings.TrimSpace(entry.EntryKey)
	if entry.EntryKey == "" || len(entry.EntryKey) > ledgerdomain.MaxEntryKeyLen {
		return ledgerdomain.ErrInvalidEntryKey
	}
	if !validRef(strings.TrimSpace(entry.ExternalRef)) {
		return ledgerdomain.ErrInvalidExternalRef
	}

	entry.ID = s.genID.Generate()
	entry.CreatedAt = s.clock.Now()

	inserted, err := s.repo.InsertEntry(ctx, tx, entry)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return fmt.Errorf("%w: entry %s", errs.ErrDuplicateExternalReference, entry.EntryKey)
		}
		return err
	}
	if !inserted {
		return fmt.Errorf("%w: entry %s", errs.ErrDuplicateExternalReference, entry.EntryKey)
	}

	s.obsMetrics.RecordCommission(ctx, string(entry.Type), string(entry.SourceType), entry.Amount)
	s.log.Debug("ledger entry recorded",
		zap.String("entry_key", entry.EntryKey),
		zap.String("external_ref", entry.ExternalRef),
		zap.String("commission_type", string(entry.Type)),
		zap.Int64("amount", entry.Amount),
		zap.String("earner_id", earnerLabel(entry.EarnerID)),
	)
	return nil
}

func (s *Service) ListByEarner(ctx context.Context, earnerID snowflake.ID, page pagination.Pagination) ([]ledgerdomain.Entry, pagination.PageInfo, error) {
	after, err := page.After()
	if err != nil {
		return nil, pagination.PageInfo{}, fmt.Errorf("%w: %v", errs.ErrInvalidRequest, err)
	}
	var afterID snowflake.ID
	if after != "" {
		parsed, err := strconv.ParseInt(after, 10, 64)
		if err != nil {
			return nil, pagination.PageInfo{}, fmt.Errorf("%w: page token", errs.ErrInvalidRequest)
		}
		afterID = snowflake.ID(parsed)
	}

	limit := page.Limit()
	items, err := s.repo.ListByEarner(ctx, s.db, earnerID, afterID, limit+1)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	return pagination.Trim(items, limit, func(e ledgerdomain.Entry) string { return e.ID.String() })
}

func (s *Service) ListByExternalRef(ctx context.Context, ref string) ([]ledgerdomain.Entry, error) {
	return s.repo.ListByExternalRef(ctx, s.db, strings.TrimSpace(ref))
}

func (s *Service) SumByExternalRef(ctx context.Context, ref string, sources ...ledgerdomain.SourceType) (int64, error) {
	return s.repo.SumByExternalRef(ctx, s.db, strings.TrimSpace(ref), sources)
}

func (s *Service) EarningsByType(ctx context.Context, earnerID snowflake.ID) (map[ledgerdomain.CommissionType]int64, error) {
	return s.repo.SumByEarnerAndType(ctx, s.db, earnerID)
}

func (s *Service) PlatformTotal(ctx context.Context) (int64, error) {
	return s.repo.PlatformTotal(ctx, s.db)
}

func earnerLabel(id *snowflake.ID) string {
	if id == nil {
		return "platform"
	}
	return id.String()
}
