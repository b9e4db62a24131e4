package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Column widths shared by validation.
const (
	MaxHandleLen        = 64
	MaxEmailLen         = 255
	MaxWalletAddressLen = 128
)

// Member is a participant in the sponsor forest. Balance is in minor units and never negative.
type Member struct {
	ID                    snowflake.ID  `gorm:"primaryKey"`
	Handle                string        `gorm:"size:64;not null;uniqueIndex"`
	Email                 string        `gorm:"size:255;not null;default:''"`
	WalletAddress         string        `gorm:"size:128;not null;default:''"`
	SponsorID             *snowflake.ID `gorm:"index"`
	Balance               int64         `gorm:"not null;default:0"`
	TotalEarned           int64         `gorm:"not null;default:0"`
	TotalWithdrawn        int64         `gorm:"not null;default:0"`
	IsActive              bool          `gorm:"not null;default:false"`
	IsAdmin               bool          `gorm:"not null;default:false"`
	PersonalReferralCount int           `gorm:"not null;default:0"`
	TeamSize              int           `gorm:"not null;default:0"`
	CreatedAt             time.Time     `gorm:"not null"`
	UpdatedAt             time.Time     `gorm:"not null"`
}

func (Member) TableName() string { return "members" }

// HasSponsor reports whether the member was referred by someone.
func (m *Member) HasSponsor() bool {
	return m != nil && m.SponsorID != nil && *m.SponsorID != 0
}

type TierKind string

const (
	TierKindCourse TierKind = "course"
	TierKindGrid   TierKind = "grid"
)

// Tier is a priced catalogue entry. The catalogue is seeded and read-only at runtime.
type Tier struct {
	ID    snowflake.ID `gorm:"primaryKey"`
	Kind  TierKind     `gorm:"size:16;not null;uniqueIndex:ux_tiers_kind_level,priority:1"`
	Level int          `gorm:"not null;uniqueIndex:ux_tiers_kind_level,priority:2"`
	Name  string       `gorm:"type:text;not null"`
	Price int64        `gorm:"not null"`
}

func (Tier) TableName() string { return "tiers" }

// Purchase records ownership of a course tier. One row per (member, tier).
type Purchase struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	MemberID    snowflake.ID `gorm:"not null;uniqueIndex:ux_purchases_member_tier,priority:1"`
	TierID      snowflake.ID `gorm:"not null;uniqueIndex:ux_purchases_member_tier,priority:2"`
	TierKind    TierKind     `gorm:"size:16;not null"`
	TierLevel   int          `gorm:"not null"`
	AmountPaid  int64        `gorm:"not null"`
	ExternalRef string       `gorm:"size:128;not null;uniqueIndex"`
	CreatedAt   time.Time    `gorm:"not null"`
}

func (Purchase) TableName() string { return "purchases" }
