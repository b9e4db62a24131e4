package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert creates grid unless (owner, tier, advance) already exists.
	Insert(ctx context.Context, db *gorm.DB, grid *Grid) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Grid, error)
	FindOpenForUpdate(ctx context.Context, db *gorm.DB, ownerID, tierID snowflake.ID) (*Grid, error)
	CountByOwnerTier(ctx context.Context, db *gorm.DB, ownerID, tierID snowflake.ID) (int, error)
	// ClaimSeat bumps seats_filled from expected to expected+1.
	ClaimSeat(ctx context.Context, db *gorm.DB, gridID snowflake.ID, expected int, amount int64, at time.Time) (bool, error)
	MarkComplete(ctx context.Context, db *gorm.DB, gridID snowflake.ID, at time.Time) (bool, error)
	InsertSeat(ctx context.Context, db *gorm.DB, seat *Seat) error
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Grid, error)
	ListSeats(ctx context.Context, db *gorm.DB, gridID snowflake.ID) ([]Seat, error)
}
