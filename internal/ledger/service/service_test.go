package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/errs"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	"github.com/smallbiznis/uplink/internal/ledger/repository"
	"github.com/smallbiznis/uplink/internal/testutil"
	"github.com/smallbiznis/uplink/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newLedger(t *testing.T) (*testutil.Env, ledgerdomain.Service) {
	t.Helper()
	env := testutil.New(t)
	return env, NewService(Params{
		DB:    env.DB,
		Log:   env.Log,
		GenID: env.Node,
		Clock: env.Clock,
		Repo:  repository.Provide(),
	})
}

func entry(key, ref string, earner *snowflake.ID, amount int64, kind ledgerdomain.CommissionType) ledgerdomain.Entry {
	return ledgerdomain.Entry{
		EntryKey:    key,
		ExternalRef: ref,
		SourceType:  ledgerdomain.SourceCoursePurchase,
		EarnerID:    earner,
		Amount:      amount,
		Type:        kind,
	}
}

func TestClaimIsSingleUse(t *testing.T) {
	env, svc := newLedger(t)
	ctx := context.Background()
	payment := ledgerdomain.ExternalPayment{
		Ref:            "0xpay",
		Kind:           ledgerdomain.PaymentKindCourse,
		MemberID:       1,
		ExpectedAmount: 100,
	}

	processed, err := svc.HasProcessed(ctx, "0xpay")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, env.DB.Transaction(func(tx *gorm.DB) error {
		if err := svc.Claim(ctx, tx, payment); err != nil {
			return err
		}
		return svc.MarkProcessed(ctx, tx, "0xpay")
	}))

	processed, err = svc.HasProcessed(ctx, " 0xpay ")
	require.NoError(t, err)
	assert.True(t, processed)

	err = svc.Claim(ctx, env.DB, payment)
	assert.ErrorIs(t, err, errs.ErrDuplicateExternalReference)

	_, err = svc.HasProcessed(ctx, "  ")
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
}

func TestClaimRolledBackWithItsTransaction(t *testing.T) {
	env, svc := newLedger(t)
	ctx := context.Background()

	boom := fmt.Errorf("write failed")
	err := env.DB.Transaction(func(tx *gorm.DB) error {
		if err := svc.Claim(ctx, tx, ledgerdomain.ExternalPayment{Ref: "0xretry", Kind: ledgerdomain.PaymentKindGrid}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	processed, err := svc.HasProcessed(ctx, "0xretry")
	require.NoError(t, err)
	assert.False(t, processed, "a rolled back claim leaves the reference retryable")
}

func TestRecordValidates(t *testing.T) {
	env, svc := newLedger(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		entry ledgerdomain.Entry
		want  error
	}{
		{"unknown type", entry("k1", "r", nil, 1, "bonus"), errs.ErrInvalidRequest},
		{"negative", entry("k2", "r", nil, -1, ledgerdomain.CommissionPlatform), errs.ErrInvalidAmount},
		{"no key", entry(" ", "r", nil, 1, ledgerdomain.CommissionPlatform), errs.ErrInvalidRequest},
		{"no ref", entry("k3", "", nil, 1, ledgerdomain.CommissionPlatform), errs.ErrInvalidRequest},
		{"long ref", entry("k5", strings.Repeat("r", ledgerdomain.MaxExternalRefLen+1), nil, 1, ledgerdomain.CommissionPlatform), errs.ErrInvalidRequest},
		{"long key", entry(strings.Repeat("k", ledgerdomain.MaxEntryKeyLen+1), "r", nil, 1, ledgerdomain.CommissionPlatform), errs.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := tc.entry
			assert.ErrorIs(t, svc.Record(ctx, env.DB, &e), tc.want)
		})
	}

	bad := entry("k4", "r", nil, 1, ledgerdomain.CommissionPlatform)
	bad.SourceType = "gift"
	assert.ErrorIs(t, svc.Record(ctx, env.DB, &bad), errs.ErrInvalidRequest)
}

func TestRecordRejectsDuplicateKey(t *testing.T) {
	env, svc := newLedger(t)
	ctx := context.Background()

	first := entry("ref:course", "ref", nil, 100, ledgerdomain.CommissionPlatform)
	require.NoError(t, svc.Record(ctx, env.DB, &first))
	assert.NotZero(t, first.ID)
	assert.Equal(t, env.Clock.Now(), first.CreatedAt)

	again := entry("ref:course", "ref", nil, 100, ledgerdomain.CommissionPlatform)
	assert.ErrorIs(t, svc.Record(ctx, env.DB, &again), errs.ErrDuplicateExternalReference)

	entries, err := svc.ListByExternalRef(ctx, "ref")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAggregates(t *testing.T) {
	env, svc := newLedger(t)
	ctx := context.Background()
	m := env.Member(t, "earner", nil)

	for _, e := range []ledgerdomain.Entry{
		entry("a:direct", "a", &m.ID, 800, ledgerdomain.CommissionDirectSale),
		entry("a:level:1", "a", &m.ID, 300, ledgerdomain.CommissionUniLevel),
		entry("a:platform", "a", nil, 900, ledgerdomain.CommissionPlatform),
		entry("b:course", "b", &m.ID, 1000, ledgerdomain.CommissionPassUp),
	} {
		e := e
		require.NoError(t, svc.Record(ctx, env.DB, &e))
	}

	byType, err := svc.EarningsByType(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, map[ledgerdomain.CommissionType]int64{
		ledgerdomain.CommissionDirectSale: 800,
		ledgerdomain.CommissionUniLevel:   300,
		ledgerdomain.CommissionPassUp:     1000,
	}, byType)

	total, err := svc.SumByExternalRef(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), total)

	total, err = svc.SumByExternalRef(ctx, "a", ledgerdomain.SourceCascade)
	require.NoError(t, err)
	assert.Zero(t, total)

	platform, err := svc.PlatformTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(900), platform)
}

func TestListByEarnerPages(t *testing.T) {
	env, svc := newLedger(t)
	ctx := context.Background()
	m := env.Member(t, "earner", nil)
	for i := 0; i < 5; i++ {
		e := entry(fmt.Sprintf("p%d", i), "p", &m.ID, int64(i+1), ledgerdomain.CommissionDirectSale)
		require.NoError(t, svc.Record(ctx, env.DB, &e))
	}

	first, info, err := svc.ListByEarner(ctx, m.ID, pagination.Pagination{PageSize: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.True(t, info.HasMore)

	rest, info, err := svc.ListByEarner(ctx, m.ID, pagination.Pagination{PageSize: 3, PageToken: info.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.False(t, info.HasMore)

	seen := map[snowflake.ID]bool{}
	for _, e := range append(first, rest...) {
		assert.False(t, seen[e.ID])
		seen[e.ID] = true
	}

	_, _, err = svc.ListByEarner(ctx, m.ID, pagination.Pagination{PageToken: "%%%"})
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
}
