package scheduler

import (
	"context"
	"time"

	obsmetrics "github.com/smallbiznis/uplink/internal/observability/metrics"
	"go.uber.org/zap"
)

const lockPrefix = "scheduler:"

func lockKey(job string) string {
	return lockPrefix + job
}

// withLock runs fn while holding the job's lease. A missing locker grants every lease.
func (s *Scheduler) withLock(ctx context.Context, job string, fn func(ctx context.Context) error) error {
	key := lockKey(job)
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return obsmetrics.ErrLockHeld
	}
	defer func() {
		// the job context may already be done; release on a fresh deadline
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.logger(ctx).Warn("scheduler.lock.release.failed",
				zap.String("job", job),
				zap.Error(err),
			)
		}
	}()
	return fn(ctx)
}
