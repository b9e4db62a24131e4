package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/course/domain"
	"github.com/smallbiznis/uplink/internal/errs"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	"github.com/smallbiznis/uplink/internal/notification"
	passupdomain "github.com/smallbiznis/uplink/internal/passup/domain"
	"github.com/smallbiznis/uplink/internal/payment/adapters/static"
	"github.com/smallbiznis/uplink/internal/seed"
	"github.com/smallbiznis/uplink/internal/testutil"
	"github.com/smallbiznis/uplink/internal/testutil/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tier1 = seed.CourseTierID(1)

const tier1Price = int64(10_000)

func newCourse(t *testing.T) (*stack.Stack, *Service) {
	t.Helper()
	st := stack.New(testutil.New(t))
	svc := New(Params{
		DB:        st.DB,
		Log:       st.Log,
		GenID:     st.Node,
		Clock:     st.Clock,
		AppConfig: st.AppConfig,
		Plan:      st.Plan,
		Members:   st.MemberRepo,
		PassUp:    st.PassUp,
		Ledger:    st.Ledger,
		Poster:    st.Poster,
		Verifier:  st.Verifier,
		Notifier:  st.Notifier,
	}).(*Service)
	return st, svc
}

func withHistory(t *testing.T, st *stack.Stack, m memberdomain.Member, tierID snowflake.ID, sales int) {
	t.Helper()
	require.NoError(t, st.DB.Create(&passupdomain.Tracker{
		MemberID:      m.ID,
		TierID:        tierID,
		SalesCount:    sales,
		FirstPassedUp: true,
		UpdatedAt:     st.Clock.Now(),
	}).Error)
}

func tracker(t *testing.T, st *stack.Stack, m memberdomain.Member) passupdomain.Tracker {
	t.Helper()
	tr, err := st.PassUp.Get(context.Background(), st.DB, m.ID, tier1)
	require.NoError(t, err)
	return tr
}

func requireSingleEntry(t *testing.T, res domain.PurchaseResult) ledgerdomain.Entry {
	t.Helper()
	require.Len(t, res.Distribution, 1)
	assert.Equal(t, tier1Price, res.Distribution[0].Amount)
	return res.Distribution[0]
}

func TestFirstSalePassesUpToQualifiedGrandsponsor(t *testing.T) {
	st, svc := newCourse(t)
	g := st.Member(t, "grand", &st.Admin, testutil.Active)
	st.Own(t, g, tier1)
	withHistory(t, st, g, tier1, 3)
	s := st.Member(t, "sponsor", &g, testutil.Active)
	st.Own(t, s, tier1)
	b := st.Member(t, "buyer", &s)

	res, err := svc.ProcessTierPurchase(context.Background(), b.ID, tier1, "0xref1")
	require.NoError(t, err)

	entry := requireSingleEntry(t, res)
	require.NotNil(t, entry.EarnerID)
	assert.Equal(t, g.ID, *entry.EarnerID)
	assert.Equal(t, ledgerdomain.CommissionPassUp, entry.Type)
	assert.Equal(t, 1, entry.Depth)
	assert.Equal(t, domain.OutcomeCredited, res.Outcome)

	assert.Equal(t, tier1Price, st.Reload(t, g.ID).Balance)
	assert.Zero(t, st.Reload(t, s.ID).Balance)

	tr := tracker(t, st, s)
	assert.True(t, tr.FirstPassedUp)
	assert.Equal(t, 1, tr.SalesCount)
	assert.Contains(t, st.Notifier.Events(g.ID), notification.EventCommissionEarned)
}

func TestSecondSaleIsKeptByQualifiedSponsor(t *testing.T) {
	st, svc := newCourse(t)
	g := st.Member(t, "grand", &st.Admin, testutil.Active)
	st.Own(t, g, tier1)
	withHistory(t, st, g, tier1, 1)
	s := st.Member(t, "sponsor", &g, testutil.Active)
	st.Own(t, s, tier1)
	b1 := st.Member(t, "first", &s)
	b2 := st.Member(t, "second", &s)
	ctx := context.Background()

	_, err := svc.ProcessTierPurchase(ctx, b1.ID, tier1, "0xa")
	require.NoError(t, err)
	res, err := svc.ProcessTierPurchase(ctx, b2.ID, tier1, "0xb")
	require.NoError(t, err)

	entry := requireSingleEntry(t, res)
	require.NotNil(t, entry.EarnerID)
	assert.Equal(t, s.ID, *entry.EarnerID)
	assert.Equal(t, ledgerdomain.CommissionDirectSale, entry.Type)
	assert.Equal(t, 0, entry.Depth)
	assert.Equal(t, tier1Price, st.Reload(t, s.ID).Balance)

	tr := tracker(t, st, s)
	assert.True(t, tr.FirstPassedUp)
	assert.Equal(t, 2, tr.SalesCount)
}

func TestConcurrentSalesPassUpOnlyTheFirst(t *testing.T) {
	st, svc := newCourse(t)
	g := st.Member(t, "grand", &st.Admin, testutil.Active)
	st.Own(t, g, tier1)
	withHistory(t, st, g, tier1, 1)
	s := st.Member(t, "sponsor", &g, testutil.Active)
	st.Own(t, s, tier1)

	const sales = 8
	buyers := make([]memberdomain.Member, sales)
	for i := range buyers {
		buyers[i] = st.Member(t, fmt.Sprintf("buyer%d", i), &s)
	}

	results := make([]domain.PurchaseResult, sales)
	failures := make([]error, sales)
	var wg sync.WaitGroup
	for i := range buyers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], failures[i] = svc.ProcessTierPurchase(context.Background(), buyers[i].ID, tier1, fmt.Sprintf("0xrush%d", i))
		}(i)
	}
	wg.Wait()

	passUps, direct := 0, 0
	for i := range results {
		require.NoError(t, failures[i])
		entry := requireSingleEntry(t, results[i])
		switch entry.Type {
		case ledgerdomain.CommissionPassUp:
			passUps++
			assert.Equal(t, g.ID, *entry.EarnerID)
		case ledgerdomain.CommissionDirectSale:
			direct++
			assert.Equal(t, s.ID, *entry.EarnerID)
		default:
			t.Errorf("unexpected commission type %s", entry.Type)
		}
	}
	assert.Equal(t, 1, passUps)
	assert.Equal(t, sales-1, direct)

	tr := tracker(t, st, s)
	assert.True(t, tr.FirstPassedUp)
	assert.Equal(t, sales, tr.SalesCount)
	assert.Equal(t, tier1Price, st.Reload(t, g.ID).Balance)
	assert.Equal(t, (sales-1)*tier1Price, st.Reload(t, s.ID).Balance)
}

func TestPassUpConsumesUntouchedQualifiers(t *testing.T) {
	st, svc := newCourse(t)
	a := st.Member(t, "alpha", &st.Admin, testutil.Active)
	st.Own(t, a, tier1)
	u := st.Member(t, "upper", &a, testutil.Active)
	st.Own(t, u, tier1)
	n := st.Member(t, "nonowner", &u, testutil.Active)
	s := st.Member(t, "sponsor", &n, testutil.Active)
	b := st.Member(t, "buyer", &s)

	res, err := svc.ProcessTierPurchase(context.Background(), b.ID, tier1, "0xconsume")
	require.NoError(t, err)

	entry := requireSingleEntry(t, res)
	require.NotNil(t, entry.EarnerID)
	assert.Equal(t, st.Admin.ID, *entry.EarnerID)
	assert.Equal(t, ledgerdomain.CommissionPassUp, entry.Type)
	assert.Equal(t, 4, entry.Depth)
	assert.Equal(t, []snowflake.ID{u.ID, a.ID}, res.Consumed)

	var stored ledgerdomain.Entry
	require.NoError(t, st.DB.Where("entry_key = ?", "0xconsume:course").First(&stored).Error)
	assert.Equal(t, []any{u.ID.String(), a.ID.String()}, stored.Metadata["consumed_qualifiers"])

	for _, m := range []memberdomain.Member{u, a} {
		tr := tracker(t, st, m)
		assert.True(t, tr.FirstPassedUp, m.Handle)
		assert.Equal(t, 1, tr.SalesCount, m.Handle)
	}
	walked := tracker(t, st, n)
	assert.False(t, walked.HasHistory(), "non-owners are walked past untouched")
}

func TestConsumedQualifierKeepsLaterPassUps(t *testing.T) {
	st, svc := newCourse(t)
	a := st.Member(t, "alpha", &st.Admin, testutil.Active)
	st.Own(t, a, tier1)
	s1 := st.Member(t, "s1", &a, testutil.Active)
	s2 := st.Member(t, "s2", &a, testutil.Active)
	ctx := context.Background()

	// s1's first sale consumes a's untouched credit and lands on the admin.
	_, err := svc.ProcessTierPurchase(ctx, st.Member(t, "b1", &s1).ID, tier1, "0x1")
	require.NoError(t, err)
	// a now has history, so s2's first sale stops at a.
	res, err := svc.ProcessTierPurchase(ctx, st.Member(t, "b2", &s2).ID, tier1, "0x2")
	require.NoError(t, err)

	entry := requireSingleEntry(t, res)
	require.NotNil(t, entry.EarnerID)
	assert.Equal(t, a.ID, *entry.EarnerID)
	assert.Empty(t, res.Consumed)
}

func TestUnqualifiedSponsorSkipsToQualifiedUpline(t *testing.T) {
	st, svc := newCourse(t)
	g := st.Member(t, "grand", &st.Admin, testutil.Active)
	st.Own(t, g, tier1)
	s := st.Member(t, "sponsor", &g, testutil.Active)
	withHistory(t, st, s, tier1, 1)
	b := st.Member(t, "buyer", &s)

	res, err := svc.ProcessTierPurchase(context.Background(), b.ID, tier1, "0xskip")
	require.NoError(t, err)

	entry := requireSingleEntry(t, res)
	require.NotNil(t, entry.EarnerID)
	assert.Equal(t, g.ID, *entry.EarnerID)
	assert.Equal(t, ledgerdomain.CommissionQualificationSkip, entry.Type)
	assert.Equal(t, 1, entry.Depth)
	assert.Equal(t, 2, tracker(t, st, s).SalesCount)
}

func TestOwningHigherTierQualifies(t *testing.T) {
	st, svc := newCourse(t)
	s := st.Member(t, "sponsor", &st.Admin, testutil.Active)
	st.Own(t, s, seed.CourseTierID(3))
	withHistory(t, st, s, tier1, 1)
	b := st.Member(t, "buyer", &s)

	res, err := svc.ProcessTierPurchase(context.Background(), b.ID, tier1, "0xhigher")
	require.NoError(t, err)
	entry := requireSingleEntry(t, res)
	assert.Equal(t, ledgerdomain.CommissionDirectSale, entry.Type)
}

func TestOrganicPurchaseGoesToPlatform(t *testing.T) {
	st, svc := newCourse(t)
	b := st.Member(t, "organic", nil)

	res, err := svc.ProcessTierPurchase(context.Background(), b.ID, tier1, "0xorganic")
	require.NoError(t, err)

	entry := requireSingleEntry(t, res)
	assert.Nil(t, entry.EarnerID)
	assert.Equal(t, ledgerdomain.CommissionPlatform, entry.Type)
	assert.Equal(t, domain.OutcomeOrganic, res.Outcome)
}

func TestExhaustedPassUpGoesToPlatform(t *testing.T) {
	st, svc := newCourse(t)
	root := st.Member(t, "root", nil, testutil.Active)
	s := st.Member(t, "sponsor", &root, testutil.Active)
	b := st.Member(t, "buyer", &s)

	res, err := svc.ProcessTierPurchase(context.Background(), b.ID, tier1, "0xexhausted")
	require.NoError(t, err)

	entry := requireSingleEntry(t, res)
	assert.Nil(t, entry.EarnerID)
	assert.Equal(t, domain.OutcomeChainExhausted, res.Outcome)
	assert.Zero(t, st.SumBalances(t))
}

func TestDuplicateReferenceIsRejectedWithoutSideEffects(t *testing.T) {
	st, svc := newCourse(t)
	s := st.Member(t, "sponsor", &st.Admin, testutil.Active)
	b := st.Member(t, "buyer", &s)
	ctx := context.Background()

	_, err := svc.ProcessTierPurchase(ctx, b.ID, tier1, "0xdup")
	require.NoError(t, err)
	before := st.SumBalances(t)
	entries := len(st.Entries(t, "0xdup"))

	_, err = svc.ProcessTierPurchase(ctx, b.ID, seed.CourseTierID(2), "0xdup")
	assert.ErrorIs(t, err, errs.ErrDuplicateExternalReference)
	assert.Equal(t, "DuplicateExternalReference", errs.Code(err))
	assert.Equal(t, before, st.SumBalances(t))
	assert.Len(t, st.Entries(t, "0xdup"), entries)

	owned, err := st.MemberRepo.HasPurchase(ctx, st.DB, b.ID, seed.CourseTierID(2))
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestRejections(t *testing.T) {
	st, svc := newCourse(t)
	s := st.Member(t, "sponsor", &st.Admin, testutil.Active)
	b := st.Member(t, "buyer", &s)
	st.Own(t, b, tier1)
	ctx := context.Background()

	_, err := svc.ProcessTierPurchase(ctx, b.ID, tier1, "0xowned")
	assert.ErrorIs(t, err, errs.ErrAlreadyOwned)

	_, err = svc.ProcessTierPurchase(ctx, b.ID, seed.GridTierID(1), "0xgrid")
	assert.ErrorIs(t, err, errs.ErrInvalidTier)

	_, err = svc.ProcessTierPurchase(ctx, b.ID, 999, "0xmissing")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.ProcessTierPurchase(ctx, 12345, tier1, "0xnobody")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	svc.verifier = static.DenyAll()
	_, err = svc.ProcessTierPurchase(ctx, b.ID, seed.CourseTierID(2), "0xunverified")
	assert.ErrorIs(t, err, errs.ErrVerificationFailed)
	assert.Empty(t, st.Entries(t, "0xunverified"))
	untouched := tracker(t, st, s)
	assert.False(t, untouched.HasHistory())
}

func TestCreditCascadesIntoInactiveEarner(t *testing.T) {
	st, svc := newCourse(t)
	g := st.Member(t, "grand", &st.Admin)
	st.Own(t, g, tier1)
	withHistory(t, st, g, tier1, 1)
	s := st.Member(t, "sponsor", &g, testutil.Active)
	b := st.Member(t, "buyer", &s)
	fee := st.Plan.Get().MembershipFee

	res, err := svc.ProcessTierPurchase(context.Background(), b.ID, tier1, "0xcascade")
	require.NoError(t, err)

	require.Len(t, res.Activations, 1)
	assert.Equal(t, g.ID, res.Activations[0].MemberID)

	grand := st.Reload(t, g.ID)
	assert.True(t, grand.IsActive)
	assert.Equal(t, tier1Price-fee, grand.Balance)
	assert.Equal(t, fee, st.Reload(t, st.Admin.ID).Balance)
	assert.Equal(t, 1, st.Reload(t, st.Admin.ID).PersonalReferralCount)

	var course int64
	for _, e := range st.Entries(t, "0xcascade") {
		if e.SourceType == ledgerdomain.SourceCoursePurchase {
			course += e.Amount
		}
	}
	assert.Equal(t, tier1Price, course)
	assert.Contains(t, st.Notifier.Events(g.ID), notification.EventMemberAutoActivated)
}
