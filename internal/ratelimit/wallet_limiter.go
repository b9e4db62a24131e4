package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/uplink/internal/config"
	"go.uber.org/zap"
)

const keyWalletMember = "wallet:member:%s"

// WalletLimiter throttles member-initiated balance movements (transfers and
// withdrawals). It fails open: redis errors are logged and the request proceeds.
type WalletLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewWalletLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *WalletLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil || limitCfg.TransferPerSecond <= 0 || limitCfg.TransferBurst <= 0 {
		return nil
	}
	return &WalletLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.TransferPerSecond,
		burst:  limitCfg.TransferBurst,
		log:    log.Named("ratelimit.wallet"),
	}
}

func (l *WalletLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *WalletLimiter) Allow(ctx context.Context, memberID snowflake.ID) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	d, err := l.bucket.Allow(ctx, fmt.Sprintf(keyWalletMember, memberID.String()), l.rate, l.burst)
	if err != nil {
		l.log.Warn("wallet rate limit check failed", zap.String("member_id", memberID.String()), zap.Error(err))
		return Decision{Allowed: true}, nil
	}
	return d, nil
}
