package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists members, the tier catalogue and course ownership.
// Every method takes the handle to run on so callers can pass a transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, member *Member) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Member, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Member, error)
	FindByHandle(ctx context.Context, db *gorm.DB, handle string) (*Member, error)
	FindAdmin(ctx context.Context, db *gorm.DB) (*Member, error)

	SetSponsor(ctx context.Context, db *gorm.DB, id, sponsorID snowflake.ID) (bool, error)
	SetWalletAddress(ctx context.Context, db *gorm.DB, id snowflake.ID, address string) error
	IncrementReferralCount(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	IncrementTeamSize(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	Credit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, earning bool) error
	Debit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error)
	Withdraw(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error)
	Activate(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	ActivateWithFee(ctx context.Context, db *gorm.DB, id snowflake.ID, fee int64) (bool, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	FindTier(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tier, error)
	ListTiers(ctx context.Context, db *gorm.DB, kind TierKind) ([]Tier, error)

	InsertPurchase(ctx context.Context, db *gorm.DB, purchase *Purchase) error
	HasPurchase(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID) (bool, error)
	OwnsTierLevel(ctx context.Context, db *gorm.DB, memberID snowflake.ID, kind TierKind, level int) (bool, error)
	ListPurchases(ctx context.Context, db *gorm.DB, memberID snowflake.ID) ([]Purchase, error)
}
