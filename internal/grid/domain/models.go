package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/cascade"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
)

// Grid is one fixed-capacity placement cycle of an owner at a tier.
type Grid struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	OwnerID      snowflake.ID `gorm:"not null;uniqueIndex:ux_grids_owner_tier_advance,priority:1"`
	TierID       snowflake.ID `gorm:"not null;uniqueIndex:ux_grids_owner_tier_advance,priority:2"`
	Advance      int          `gorm:"not null;uniqueIndex:ux_grids_owner_tier_advance,priority:3"`
	Width        int          `gorm:"not null"`
	Depth        int          `gorm:"not null"`
	SeatsFilled  int          `gorm:"not null;default:0"`
	RevenueTotal int64        `gorm:"not null;default:0"`
	IsComplete   bool         `gorm:"not null;default:false;index"`
	CompletedAt  *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (Grid) TableName() string { return "grids" }

func (g *Grid) Capacity() int {
	return g.Width * g.Depth
}

func (g *Grid) HasRoom() bool {
	return !g.IsComplete && g.SeatsFilled < g.Capacity()
}

// Slot maps the zero-based fill index n to its level and position. Levels fill
// left to right before the next level opens.
func Slot(n, width int) (level, position int) {
	return n/width + 1, n%width + 1
}

type Seat struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	GridID      snowflake.ID `gorm:"not null;uniqueIndex:ux_grid_seats_slot,priority:1"`
	MemberID    snowflake.ID `gorm:"not null;index"`
	Level       int          `gorm:"not null;uniqueIndex:ux_grid_seats_slot,priority:2"`
	Position    int          `gorm:"not null;uniqueIndex:ux_grid_seats_slot,priority:3"`
	IsOverspill bool         `gorm:"not null;default:false"`
	ExternalRef string       `gorm:"size:128;not null;uniqueIndex"`
	Amount      int64        `gorm:"not null"`
	CreatedAt   time.Time    `gorm:"not null"`
}

func (Seat) TableName() string { return "grid_seats" }

type Outcome string

const (
	OutcomeSettled          Outcome = "settled"
	OutcomeChainExhausted   Outcome = "chain_exhausted"
	OutcomeCapacityExceeded Outcome = "capacity_exceeded"
)

type SeatInfo struct {
	GridID      snowflake.ID `json:"grid_id"`
	OwnerID     snowflake.ID `json:"owner_id"`
	Advance     int          `json:"advance"`
	Level       int          `json:"level"`
	Position    int          `json:"position"`
	IsOverspill bool         `json:"is_overspill"`
	SeatsFilled int          `json:"seats_filled"`
	Completed   bool         `json:"completed"`
}

type PurchaseResult struct {
	Seat         *SeatInfo            `json:"seat,omitempty"`
	Distribution []ledgerdomain.Entry `json:"distribution"`
	Outcome      Outcome              `json:"outcome"`
	Activations  []cascade.Activation `json:"activations,omitempty"`
}

// Layout is a grid with its seats grouped by level.
type Layout struct {
	Grid   Grid           `json:"grid"`
	Levels map[int][]Seat `json:"levels"`
}
