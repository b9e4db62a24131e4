package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/config"
	"github.com/smallbiznis/uplink/internal/errs"
	"github.com/smallbiznis/uplink/internal/grid/domain"
	"github.com/smallbiznis/uplink/internal/grid/repository"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	"github.com/smallbiznis/uplink/internal/ledger/posting"
	"github.com/smallbiznis/uplink/internal/notification"
	"github.com/smallbiznis/uplink/internal/payment/adapters/static"
	"github.com/smallbiznis/uplink/internal/seed"
	"github.com/smallbiznis/uplink/internal/testutil"
	"github.com/smallbiznis/uplink/internal/testutil/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	gridTier1 = seed.GridTierID(1)
	gridTier4 = seed.GridTierID(4)
)

func newGrid(t *testing.T, mutate ...func(*config.CompensationConfig)) (*stack.Stack, *Service) {
	t.Helper()
	st := stack.New(testutil.New(t, mutate...))
	svc := New(Params{
		DB:        st.DB,
		Log:       st.Log,
		GenID:     st.Node,
		Clock:     st.Clock,
		AppConfig: st.AppConfig,
		Plan:      st.Plan,
		Repo:      repository.Provide(),
		Members:   st.MemberRepo,
		Ledger:    st.Ledger,
		Poster:    st.Poster,
		Verifier:  st.Verifier,
		Notifier:  st.Notifier,
	}).(*Service)
	return st, svc
}

func smallGrid(width, depth, cycles int) func(*config.CompensationConfig) {
	return func(c *config.CompensationConfig) {
		c.GridWidth = width
		c.GridDepth = depth
		c.MaxGridCycles = cycles
	}
}

func byKey(entries []ledgerdomain.Entry) map[string]ledgerdomain.Entry {
	out := make(map[string]ledgerdomain.Entry, len(entries))
	for _, e := range entries {
		out[e.EntryKey] = e
	}
	return out
}

func TestSplitConservesPrice(t *testing.T) {
	plan := config.DefaultCompensationConfig()
	for _, price := range []int64{0, 1, 999, 2000, 20_000, 100_001} {
		for ancestors := 0; ancestors <= 9; ancestors++ {
			chain := testChain(ancestors)
			entries := Split("ref", price, plan, chain)
			require.Len(t, entries, len(plan.LevelBps)+2)
			assert.Equal(t, price, posting.Total(entries), "price %d with %d ancestors", price, ancestors)
		}
	}
}

func TestSplitShortUpline(t *testing.T) {
	plan := config.DefaultCompensationConfig()
	chain := testChain(3)

	entries := byKey(Split("0xgrid", 20_000, plan, chain))

	direct := entries["0xgrid:grid:direct"]
	assert.Equal(t, int64(8000), direct.Amount)
	assert.Equal(t, ledgerdomain.CommissionDirectSale, direct.Type)
	assert.Equal(t, chain[0], *direct.EarnerID)

	for level, want := range map[int]int64{1: 3000, 2: 2000, 3: 1600} {
		e := entries[levelKey("0xgrid", level)]
		assert.Equal(t, want, e.Amount)
		assert.Equal(t, ledgerdomain.CommissionUniLevel, e.Type)
		assert.Equal(t, level, e.Depth)
		assert.Equal(t, chain[level-1], *e.EarnerID)
	}

	var absorbed int64
	for level := 4; level <= 8; level++ {
		e := entries[levelKey("0xgrid", level)]
		assert.True(t, e.IsPlatform())
		assert.Equal(t, ledgerdomain.CommissionPlatform, e.Type)
		absorbed += e.Amount
	}
	assert.Equal(t, int64(4400), absorbed)
	assert.Equal(t, int64(1000), entries["0xgrid:grid:platform"].Amount)
}

func TestSplitWithoutSponsorPaysPlatformOnly(t *testing.T) {
	entries := Split("organic", 2000, config.DefaultCompensationConfig(), nil)
	for _, e := range entries {
		assert.True(t, e.IsPlatform(), e.EntryKey)
	}
}

func TestSplitRoundingGoesToPlatformFee(t *testing.T) {
	entries := byKey(Split("dust", 999, config.DefaultCompensationConfig(), testChain(8)))
	// 999 * 500 / 10000 rounds to 49; the remainder of every other share lands here too.
	assert.Greater(t, entries["dust:grid:platform"].Amount, int64(49))
}

func TestPurchaseWithThreeAncestors(t *testing.T) {
	st, svc := newGrid(t)
	root := st.Member(t, "root", nil, testutil.Active)
	mid := st.Member(t, "mid", &root, testutil.Active)
	s := st.Member(t, "sponsor", &mid, testutil.Active)
	b := st.Member(t, "buyer", &s, testutil.Active)

	res, err := svc.ProcessGridPurchase(context.Background(), b.ID, gridTier4, "0xscenario")
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeChainExhausted, res.Outcome)
	require.NotNil(t, res.Seat)
	assert.Equal(t, s.ID, res.Seat.OwnerID)
	assert.Equal(t, 1, res.Seat.Advance)
	assert.Equal(t, 1, res.Seat.Level)
	assert.Equal(t, 1, res.Seat.Position)
	assert.False(t, res.Seat.IsOverspill)

	assert.Equal(t, int64(20_000), posting.Total(res.Distribution))
	assert.Equal(t, int64(11_000), st.Reload(t, s.ID).Balance)
	assert.Equal(t, int64(2000), st.Reload(t, mid.ID).Balance)
	assert.Equal(t, int64(1600), st.Reload(t, root.ID).Balance)
	assert.Equal(t, int64(14_600), st.SumBalances(t))

	var platform int64
	for _, e := range st.Entries(t, "0xscenario") {
		if e.IsPlatform() {
			platform += e.Amount
		}
	}
	assert.Equal(t, int64(5400), platform)
	assert.Equal(t, 1, st.Reload(t, s.ID).TeamSize)
	assert.Equal(t, 4, st.Notifier.Count(notification.EventCommissionEarned))
}

func TestGridCompletionOpensSuccessor(t *testing.T) {
	st, svc := newGrid(t, smallGrid(2, 2, 0))
	s := st.Member(t, "sponsor", &st.Admin, testutil.Active)
	ctx := context.Background()

	want := [][2]int{{1, 1}, {1, 2}, {2, 1}, {2, 2}, {1, 1}}
	var last domain.PurchaseResult
	for i, slot := range want {
		b := st.Member(t, fmt.Sprintf("buyer%d", i), &s, testutil.Active)
		res, err := svc.ProcessGridPurchase(ctx, b.ID, gridTier1, fmt.Sprintf("0xfill%d", i))
		require.NoError(t, err)
		require.NotNil(t, res.Seat)
		assert.Equal(t, slot[0], res.Seat.Level, "seat %d", i)
		assert.Equal(t, slot[1], res.Seat.Position, "seat %d", i)
		assert.Equal(t, i == 3, res.Seat.Completed, "seat %d", i)
		last = res
	}
	assert.Equal(t, 2, last.Seat.Advance)

	grids, err := svc.ListGrids(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, grids, 2)
	assert.Equal(t, 2, grids[0].Advance)
	assert.False(t, grids[0].IsComplete)
	assert.Equal(t, 1, grids[0].SeatsFilled)
	assert.True(t, grids[1].IsComplete)
	assert.NotNil(t, grids[1].CompletedAt)
	assert.Equal(t, 4, grids[1].SeatsFilled)
	assert.Equal(t, int64(8000), grids[1].RevenueTotal)

	layout, err := svc.GridSeats(ctx, grids[1].ID)
	require.NoError(t, err)
	assert.Len(t, layout.Levels, 2)
	assert.Len(t, layout.Levels[1], 2)
	assert.Len(t, layout.Levels[2], 2)

	assert.Equal(t, 5, st.Reload(t, s.ID).TeamSize)
	assert.Equal(t, 1, st.Notifier.Count(notification.EventGridCompleted))
}

func TestFullGridOverspillsToUpline(t *testing.T) {
	st, svc := newGrid(t, smallGrid(2, 1, 1))
	g := st.Member(t, "grand", &st.Admin, testutil.Active)
	s := st.Member(t, "sponsor", &g, testutil.Active)
	ctx := context.Background()

	for _, ref := range []string{"0xo1", "0xo2"} {
		b := st.Member(t, "b"+ref, &s, testutil.Active)
		_, err := svc.ProcessGridPurchase(ctx, b.ID, gridTier1, ref)
		require.NoError(t, err)
	}

	b := st.Member(t, "spill", &s, testutil.Active)
	res, err := svc.ProcessGridPurchase(ctx, b.ID, gridTier1, "0xo3")
	require.NoError(t, err)
	require.NotNil(t, res.Seat)
	assert.Equal(t, g.ID, res.Seat.OwnerID)
	assert.True(t, res.Seat.IsOverspill)

	// Commissions still follow the occupant's own upline.
	entries := byKey(res.Distribution)
	assert.Equal(t, s.ID, *entries["0xo3:grid:direct"].EarnerID)

	var stored ledgerdomain.Entry
	require.NoError(t, st.DB.Where("entry_key = ?", "0xo3:grid:direct").First(&stored).Error)
	assert.Equal(t, res.Seat.GridID.String(), stored.Metadata["grid_id"])
	assert.Equal(t, true, stored.Metadata["overspill"])
	assert.Equal(t, json.Number("1"), stored.Metadata["seat_level"])

	grids, err := svc.ListGrids(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, grids, 1, "cycle limit stops successor grids")
}

func TestNoCapacityAnywhereSendsPriceToPlatform(t *testing.T) {
	st, svc := newGrid(t, smallGrid(1, 1, 1))
	root := st.Member(t, "root", nil, testutil.Active)
	s := st.Member(t, "sponsor", &root, testutil.Active)
	ctx := context.Background()

	for _, ref := range []string{"0xc1", "0xc2"} {
		b := st.Member(t, "b"+ref, &s, testutil.Active)
		_, err := svc.ProcessGridPurchase(ctx, b.ID, gridTier1, ref)
		require.NoError(t, err)
	}
	before := st.SumBalances(t)

	b := st.Member(t, "late", &s, testutil.Active)
	res, err := svc.ProcessGridPurchase(ctx, b.ID, gridTier1, "0xc3")
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeCapacityExceeded, res.Outcome)
	assert.Nil(t, res.Seat)
	require.Len(t, res.Distribution, 1)
	assert.True(t, res.Distribution[0].IsPlatform())
	assert.Equal(t, int64(2000), res.Distribution[0].Amount)
	assert.Equal(t, before, st.SumBalances(t))
}

func TestOrganicBuyerJoinsAdminGrid(t *testing.T) {
	st, svc := newGrid(t)
	b := st.Member(t, "organic", nil, testutil.Active)

	res, err := svc.ProcessGridPurchase(context.Background(), b.ID, gridTier1, "0xorganic")
	require.NoError(t, err)
	require.NotNil(t, res.Seat)
	assert.Equal(t, st.Admin.ID, res.Seat.OwnerID)
	for _, e := range res.Distribution {
		assert.True(t, e.IsPlatform(), e.EntryKey)
	}
}

func TestGridRejections(t *testing.T) {
	st, svc := newGrid(t)
	s := st.Member(t, "sponsor", &st.Admin, testutil.Active)
	inactive := st.Member(t, "sleeper", &s)
	b := st.Member(t, "buyer", &s, testutil.Active)
	ctx := context.Background()

	_, err := svc.ProcessGridPurchase(ctx, inactive.ID, gridTier1, "0xr1")
	assert.ErrorIs(t, err, errs.ErrInactiveMember)

	_, err = svc.ProcessGridPurchase(ctx, b.ID, seed.CourseTierID(1), "0xr2")
	assert.ErrorIs(t, err, errs.ErrInvalidTier)

	_, err = svc.ProcessGridPurchase(ctx, st.Admin.ID, gridTier1, "0xr3")
	assert.ErrorIs(t, err, domain.ErrOwnGrid)

	_, err = svc.ProcessGridPurchase(ctx, b.ID, gridTier1, " ")
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)

	svc.verifier = static.DenyAll()
	_, err = svc.ProcessGridPurchase(ctx, b.ID, gridTier1, "0xr4")
	assert.ErrorIs(t, err, errs.ErrVerificationFailed)

	grids, err := svc.ListGrids(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, grids)

	_, err = svc.GridSeats(ctx, 42)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGridDuplicateReference(t *testing.T) {
	st, svc := newGrid(t)
	s := st.Member(t, "sponsor", &st.Admin, testutil.Active)
	b := st.Member(t, "buyer", &s, testutil.Active)
	ctx := context.Background()

	_, err := svc.ProcessGridPurchase(ctx, b.ID, gridTier1, "0xsame")
	require.NoError(t, err)
	before := st.SumBalances(t)
	entries := len(st.Entries(t, "0xsame"))

	_, err = svc.ProcessGridPurchase(ctx, b.ID, gridTier1, "0xsame")
	assert.ErrorIs(t, err, errs.ErrDuplicateExternalReference)
	assert.Equal(t, before, st.SumBalances(t))
	assert.Len(t, st.Entries(t, "0xsame"), entries)

	grids, err := svc.ListGrids(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, grids, 1)
	assert.Equal(t, 1, grids[0].SeatsFilled)
}

func TestInactiveAncestorIsActivatedByGridCredit(t *testing.T) {
	st, svc := newGrid(t)
	s := st.Member(t, "sponsor", &st.Admin, testutil.Balance(1500))
	b := st.Member(t, "buyer", &s, testutil.Active)

	res, err := svc.ProcessGridPurchase(context.Background(), b.ID, gridTier1, "0xwake")
	require.NoError(t, err)

	require.Len(t, res.Activations, 1)
	sponsor := st.Reload(t, s.ID)
	assert.True(t, sponsor.IsActive)
	// 1500 + 800 direct + 300 level one - 2000 fee
	assert.Equal(t, int64(600), sponsor.Balance)
}

func testChain(n int) []snowflake.ID {
	out := make([]snowflake.ID, n)
	for i := range out {
		out[i] = snowflake.ID(1000 + i)
	}
	return out
}

func levelKey(ref string, level int) string {
	return fmt.Sprintf("%s:grid:level:%d", ref, level)
}
