package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	ProcessTierPurchase(ctx context.Context, buyerID, tierID snowflake.ID, externalRef string) (PurchaseResult, error)
}
