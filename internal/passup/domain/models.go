package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tracker counts a member's sales at one tier. SalesCount never decreases and
// FirstPassedUp only ever moves from false to true.
type Tracker struct {
	MemberID      snowflake.ID `gorm:"primaryKey"`
	TierID        snowflake.ID `gorm:"primaryKey"`
	SalesCount    int          `gorm:"not null;default:0"`
	FirstPassedUp bool         `gorm:"not null;default:false"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

func (Tracker) TableName() string { return "passup_trackers" }

// HasHistory reports whether the tracker already sold or passed up at its tier.
func (t *Tracker) HasHistory() bool {
	return t != nil && (t.FirstPassedUp || t.SalesCount > 0)
}

// Sale is the outcome of recording one sale on a sponsor's tracker.
type Sale struct {
	Tracker Tracker
	// First is true when this sale consumed the member's first pass-up.
	First bool
}
