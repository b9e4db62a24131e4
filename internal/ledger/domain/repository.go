package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	ClaimPayment(ctx context.Context, db *gorm.DB, payment *ExternalPayment) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, ref string, at time.Time) error
	FindPayment(ctx context.Context, db *gorm.DB, ref string) (*ExternalPayment, error)

	InsertEntry(ctx context.Context, db *gorm.DB, entry *Entry) (bool, error)
	ListByEarner(ctx context.Context, db *gorm.DB, earnerID snowflake.ID, afterID snowflake.ID, limit int) ([]Entry, error)
	ListByExternalRef(ctx context.Context, db *gorm.DB, ref string) ([]Entry, error)
	SumByExternalRef(ctx context.Context, db *gorm.DB, ref string, sources []SourceType) (int64, error)
	SumByEarnerAndType(ctx context.Context, db *gorm.DB, earnerID snowflake.ID) (map[CommissionType]int64, error)
	PlatformTotal(ctx context.Context, db *gorm.DB) (int64, error)
}
