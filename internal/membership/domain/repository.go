package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Schedule starts or restarts the renewal clock after an activation.
	Schedule(ctx context.Context, db *gorm.DB, memberID snowflake.ID, activatedAt, next time.Time) error
	Find(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*Renewal, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*Renewal, error)
	// ListCandidates returns active members whose renewal is inside horizon or who are in grace.
	ListCandidates(ctx context.Context, db *gorm.DB, horizon time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error)

	MarkRenewed(ctx context.Context, db *gorm.DB, memberID snowflake.ID, renewedAt, next time.Time) error
	StartGrace(ctx context.Context, db *gorm.DB, memberID snowflake.ID, at time.Time) (bool, error)
	ClearGrace(ctx context.Context, db *gorm.DB, memberID snowflake.ID, at time.Time) error
	MarkWarned(ctx context.Context, db *gorm.DB, memberID snowflake.ID, at time.Time) (bool, error)
}
