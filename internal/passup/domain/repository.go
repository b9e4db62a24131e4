package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Ensure(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID, at time.Time) error
	Find(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID) (*Tracker, error)
	IncrementSales(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID, at time.Time) error
	// MarkFirstPassedUp flips first_passed_up; false means another writer already did.
	MarkFirstPassedUp(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID, at time.Time) (bool, error)
	// ConsumeUntouched claims a tracker with no history as passed up with one sale.
	ConsumeUntouched(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID, at time.Time) (bool, error)
	ListByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID) ([]Tracker, error)
}
