package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/uplink/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithExternalRef(context.Background(), "0xabc")
	ctx = obscontext.WithMemberID(ctx, "42")
	ctx = obscontext.WithOperation(ctx, "tier_purchase")

	WithContext(ctx, base).Info("posted")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "0xabc", fields["external_ref"])
	assert.Equal(t, "42", fields["member_id"])
	assert.Equal(t, "tier_purchase", fields["operation"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContextWithoutFieldsReturnsBase(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}

func TestGormOperationFromSQL(t *testing.T) {
	assert.Equal(t, "UPDATE", operationFromSQL("UPDATE members SET balance = balance - ?"))
	assert.Equal(t, "SELECT", operationFromSQL("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
