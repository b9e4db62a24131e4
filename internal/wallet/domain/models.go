package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)

// Withdrawal is a payout request. Funds leave the balance when it is created.
type Withdrawal struct {
	ID            snowflake.ID     `gorm:"primaryKey"`
	MemberID      snowflake.ID     `gorm:"not null;index"`
	Amount        int64            `gorm:"not null"`
	WalletAddress string           `gorm:"size:128;not null"`
	Status        WithdrawalStatus `gorm:"size:32;not null;index"`
	CreatedAt     time.Time        `gorm:"not null"`
	UpdatedAt     time.Time        `gorm:"not null"`
}

func (Withdrawal) TableName() string { return "withdrawals" }

type TransferRequest struct {
	SenderID snowflake.ID
	// Recipient is a handle or a member id.
	Recipient string
	Amount    int64
	Note      string
}

type TransferResult struct {
	TransferID  snowflake.ID `json:"transfer_id"`
	RecipientID snowflake.ID `json:"recipient_id"`
	Amount      int64        `json:"amount"`
	NewBalance  int64        `json:"new_balance"`
}

type WithdrawalResult struct {
	WithdrawalID     snowflake.ID `json:"withdrawal_id"`
	Amount           int64        `json:"amount"`
	RemainingBalance int64        `json:"remaining_balance"`
}
