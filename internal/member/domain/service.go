package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Member, error)
	AssignSponsor(ctx context.Context, memberID, sponsorID snowflake.ID) error
	SetWalletAddress(ctx context.Context, memberID snowflake.ID, address string) error
	Get(ctx context.Context, id snowflake.ID) (*Member, error)
	ResolveHandle(ctx context.Context, handleOrID string) (*Member, error)
	OwnsTier(ctx context.Context, memberID, tierID snowflake.ID) (bool, error)
	GetTier(ctx context.Context, id snowflake.ID) (*Tier, error)
	ListTiers(ctx context.Context, kind TierKind) ([]Tier, error)
}

type RegisterRequest struct {
	Handle        string
	Email         string
	WalletAddress string
	// SponsorRef is a sponsor handle or id; empty registers an organic member.
	SponsorRef string
	IsAdmin    bool
}
