package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/wallet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertWithdrawal(ctx context.Context, db *gorm.DB, w *domain.Withdrawal) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO withdrawals (id, member_id, amount, wallet_address, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID,
		w.MemberID,
		w.Amount,
		w.WalletAddress,
		w.Status,
		w.CreatedAt,
		w.UpdatedAt,
	).Error
}

func (r *repo) ListWithdrawals(ctx context.Context, db *gorm.DB, memberID snowflake.ID) ([]domain.Withdrawal, error) {
	var items []domain.Withdrawal
	err := db.WithContext(ctx).Raw(
		`SELECT id, member_id, amount, wallet_address, status, created_at, updated_at
		 FROM withdrawals WHERE member_id = ? ORDER BY id DESC`,
		memberID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
