package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	// HasProcessed is the pre-write idempotency check.
	HasProcessed(ctx context.Context, ref string) (bool, error)
	// Claim reserves ref inside tx; a second claim fails with ErrDuplicateExternalReference.
	Claim(ctx context.Context, tx *gorm.DB, payment ExternalPayment) error
	MarkProcessed(ctx context.Context, tx *gorm.DB, ref string) error
	// Record appends entry inside tx and fills its ID and CreatedAt.
	Record(ctx context.Context, tx *gorm.DB, entry *Entry) error

	ListByEarner(ctx context.Context, earnerID snowflake.ID, page pagination.Pagination) ([]Entry, pagination.PageInfo, error)
	ListByExternalRef(ctx context.Context, ref string) ([]Entry, error)
	SumByExternalRef(ctx context.Context, ref string, sources ...SourceType) (int64, error)
	EarningsByType(ctx context.Context, earnerID snowflake.ID) (map[CommissionType]int64, error)
	PlatformTotal(ctx context.Context) (int64, error)
}
