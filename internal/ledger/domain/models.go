package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// CommissionType is the closed set of reasons a ledger entry exists.
type CommissionType string

const (
	CommissionDirectSale        CommissionType = "direct_sale"
	CommissionPassUp            CommissionType = "pass_up"
	CommissionQualificationSkip CommissionType = "qualification_skip"
	CommissionUniLevel          CommissionType = "uni_level"
	CommissionPlatform          CommissionType = "platform"
	CommissionMembership        CommissionType = "membership"
	CommissionMembershipRenewal CommissionType = "membership_renewal"
	CommissionMembershipAuto    CommissionType = "membership_auto"
	CommissionP2P               CommissionType = "p2p"
)

func (t CommissionType) Valid() bool {
	switch t {
	case CommissionDirectSale,
		CommissionPassUp,
		CommissionQualificationSkip,
		CommissionUniLevel,
		CommissionPlatform,
		CommissionMembership,
		CommissionMembershipRenewal,
		CommissionMembershipAuto,
		CommissionP2P:
		return true
	default:
		return false
	}
}

// IsEarning reports whether a credit of this type counts toward TotalEarned.
// Transfers move existing balance and are not earnings.
func (t CommissionType) IsEarning() bool {
	return t.Valid() && t != CommissionP2P
}

type SourceType string

const (
	SourceCoursePurchase SourceType = "course_purchase"
	SourceGridFill       SourceType = "grid_fill"
	SourceMembership     SourceType = "membership"
	SourceRenewal        SourceType = "renewal"
	SourceCascade        SourceType = "cascade"
	SourceTransfer       SourceType = "transfer"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceCoursePurchase, SourceGridFill, SourceMembership, SourceRenewal, SourceCascade, SourceTransfer:
		return true
	default:
		return false
	}
}

// Column widths shared by validation.
const (
	MaxExternalRefLen = 128
	MaxEntryKeyLen    = 191
	MaxNoteLen        = 255
)

// Entry is an immutable ledger row. A nil EarnerID means the platform earned it.
type Entry struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	EntryKey    string            `gorm:"size:191;not null;uniqueIndex"`
	ExternalRef string            `gorm:"size:128;not null;index"`
	SourceType  SourceType        `gorm:"size:32;not null;index"`
	SourceID    snowflake.ID      `gorm:"not null;default:0"`
	BuyerID     *snowflake.ID     `gorm:"index"`
	EarnerID    *snowflake.ID     `gorm:"index"`
	TierID      *snowflake.ID     `gorm:""`
	Amount      int64             `gorm:"not null"`
	Type        CommissionType    `gorm:"size:32;not null"`
	Depth       int               `gorm:"not null;default:0"`
	Note        string            `gorm:"size:255;not null;default:''"`
	Metadata    datatypes.JSONMap
	CreatedAt   time.Time         `gorm:"not null"`
}

func (Entry) TableName() string { return "ledger_entries" }

// IsPlatform reports whether the platform is the earner.
func (e Entry) IsPlatform() bool {
	return e.EarnerID == nil
}

type PaymentKind string

const (
	PaymentKindCourse     PaymentKind = "course"
	PaymentKindGrid       PaymentKind = "grid"
	PaymentKindMembership PaymentKind = "membership"
	PaymentKindRenewal    PaymentKind = "renewal"
	PaymentKindTransfer   PaymentKind = "transfer"
	PaymentKindWithdrawal PaymentKind = "withdrawal"
)

type PaymentStatus string

const (
	PaymentStatusVerified  PaymentStatus = "verified"
	PaymentStatusProcessed PaymentStatus = "processed"
)

// ExternalPayment is the engine-wide idempotency record. A ref is claimed and
// processed inside the same transaction as the writes it guards.
type ExternalPayment struct {
	Ref               string        `gorm:"primaryKey;size:128"`
	Kind              PaymentKind   `gorm:"size:32;not null"`
	MemberID          snowflake.ID  `gorm:"not null;index"`
	ExpectedRecipient string        `gorm:"size:128;not null;default:''"`
	ExpectedAmount    int64         `gorm:"not null"`
	Status            PaymentStatus `gorm:"size:32;not null"`
	VerifiedAt        time.Time     `gorm:"not null"`
	ProcessedAt       *time.Time
}

func (ExternalPayment) TableName() string { return "external_payments" }
