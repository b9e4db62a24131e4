package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertWithdrawal(ctx context.Context, db *gorm.DB, w *Withdrawal) error
	ListWithdrawals(ctx context.Context, db *gorm.DB, memberID snowflake.ID) ([]Withdrawal, error)
}
