package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "lock_held", err: fmt.Errorf("renewal sweep: %w", ErrLockHeld), want: SchedulerJobReasonLockHeld},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	assert.True(t, IsSchedulerErrorRetryable(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsSchedulerErrorRetryable(errors.New("boom")))
}

func TestSchedulerMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "uplink-test", Environment: "test"})

	m.IncJobRun("renewal_sweep")
	m.IncJobRun("renewal_sweep")
	m.IncJobError("renewal_sweep", context.DeadlineExceeded)
	m.AddBatchProcessed("renewal_sweep", "renewed", 3)
	m.AddBatchProcessed("renewal_sweep", "lapsed", 0)
	m.IncJobSkipped("renewal_sweep")
	m.ObserveJobDuration("renewal_sweep", time.Second)
	m.ObserveRunLoopLag(-time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.jobRuns.WithLabelValues("renewal_sweep")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobErrors.WithLabelValues("renewal_sweep", SchedulerJobReasonDeadlineExceeded)))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.batchProcessed.WithLabelValues("renewal_sweep", "renewed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobSkipped.WithLabelValues("renewal_sweep")))
}

func TestNilSchedulerMetrics(t *testing.T) {
	var m *SchedulerMetrics
	m.IncJobRun("x")
	m.IncJobError("x", errors.New("boom"))
	m.AddBatchProcessed("x", "renewed", 1)
}
