package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Renewal is the membership billing schedule of one member.
type Renewal struct {
	MemberID           snowflake.ID `gorm:"primaryKey"`
	NextRenewalDate    time.Time    `gorm:"not null;index"`
	LastRenewedAt      *time.Time
	InGracePeriod      bool `gorm:"not null;default:false"`
	GracePeriodStart   *time.Time
	TotalRenewals      int `gorm:"not null;default:0"`
	LowBalanceWarnedAt *time.Time
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (Renewal) TableName() string { return "membership_renewals" }

// SweepResult lists the members touched by one renewal sweep, per outcome.
type SweepResult struct {
	Renewed      []snowflake.ID `json:"renewed"`
	Warned       []snowflake.ID `json:"warned"`
	GraceStarted []snowflake.ID `json:"grace_started"`
	Lapsed       []snowflake.ID `json:"lapsed"`
	Failed       []snowflake.ID `json:"failed,omitempty"`
}

type ActivationResult struct {
	MemberID           snowflake.ID   `json:"member_id"`
	SponsorID          *snowflake.ID  `json:"sponsor_id,omitempty"`
	CascadeActivations []snowflake.ID `json:"cascade_activations"`
	NextRenewalDate    time.Time      `json:"next_renewal_date"`
}

// Status is the read-only renewal view used by member stats.
type Status struct {
	Scheduled        bool       `json:"scheduled"`
	NextRenewalDate  *time.Time `json:"next_renewal_date,omitempty"`
	InGracePeriod    bool       `json:"in_grace_period"`
	GracePeriodStart *time.Time `json:"grace_period_start,omitempty"`
	TotalRenewals    int        `json:"total_renewals"`
}
