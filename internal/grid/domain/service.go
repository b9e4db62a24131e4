package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	ProcessGridPurchase(ctx context.Context, buyerID, tierID snowflake.ID, externalRef string) (PurchaseResult, error)
	ListGrids(ctx context.Context, ownerID snowflake.ID) ([]Grid, error)
	GridSeats(ctx context.Context, gridID snowflake.ID) (Layout, error)
}
