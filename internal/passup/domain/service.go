package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// RecordSale counts a sale for the sponsor inside tx. Exactly one sale per
	// (member, tier) ever reports First.
	RecordSale(ctx context.Context, tx *gorm.DB, memberID, tierID snowflake.ID) (Sale, error)
	// ConsumeFirstSale spends an untouched qualifier's first pass-up. It returns
	// false when the tracker gained history since it was read.
	ConsumeFirstSale(ctx context.Context, tx *gorm.DB, memberID, tierID snowflake.ID) (bool, error)
	// Get reads through db, which may be a transaction. A missing tracker is returned zeroed.
	Get(ctx context.Context, db *gorm.DB, memberID, tierID snowflake.ID) (Tracker, error)
	ListByMember(ctx context.Context, memberID snowflake.ID) ([]Tracker, error)
}
