package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	RequestWithdrawal(ctx context.Context, memberID snowflake.ID, amount int64) (WithdrawalResult, error)
	ListWithdrawals(ctx context.Context, memberID snowflake.ID) ([]Withdrawal, error)
}
