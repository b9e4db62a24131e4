package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/clock"
	membershipdomain "github.com/smallbiznis/uplink/internal/membership/domain"
	obsmetrics "github.com/smallbiznis/uplink/internal/observability/metrics"
	"github.com/smallbiznis/uplink/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobRenewalSweep = "renewal_sweep"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Membership membershipdomain.Service
	Locker     *ratelimit.Locker `optional:"true"`
	Config     Config            `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	membership membershipdomain.Service
	locker     *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Membership == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		membership: p.Membership,
		locker:     p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	skipped := errors.Is(err, obsmetrics.ErrLockHeld)
	if owner {
		if err != nil && !skipped && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	if skipped {
		schedMetrics.IncJobSkipped(name)
		log.Info("job skipped, lock held elsewhere")
		return nil
	}

	// deadline is a soft timeout; the next tick resumes the work
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobRenewalSweep, func(ctx context.Context) error {
			return s.runJob(ctx, JobRenewalSweep, s.cfg.JobTimeout, s.RenewalSweepJob)
		}},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// RenewalSweepJob runs one renewal sweep while holding the cluster-wide sweep lease.
func (s *Scheduler) RenewalSweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRenewalSweep)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	return s.withLock(ctx, JobRenewalSweep, func(ctx context.Context) error {
		res, err := s.membership.RunRenewalSweep(ctx)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.renewal.sweep.failed", JobRenewalSweep, err)
			return err
		}

		schedMetrics := obsmetrics.Scheduler()
		outcomes := map[string][]snowflake.ID{
			"renewed":       res.Renewed,
			"warned":        res.Warned,
			"grace_started": res.GraceStarted,
			"lapsed":        res.Lapsed,
			"failed":        res.Failed,
		}
		for outcome, ids := range outcomes {
			schedMetrics.AddBatchProcessed(JobRenewalSweep, outcome, len(ids))
			run.AddProcessed(len(ids))
		}
		for _, id := range res.Failed {
			s.logSchedulerError(ctx, run, "scheduler.renewal.member.failed", JobRenewalSweep,
				errRenewalFailed, zap.String("member_id", idString(id)))
		}
		return nil
	})
}

var errRenewalFailed = errors.New("renewal_failed")
