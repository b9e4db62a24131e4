package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/errs"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	"github.com/smallbiznis/uplink/internal/membership/domain"
	"github.com/smallbiznis/uplink/internal/notification"
	"github.com/smallbiznis/uplink/internal/payment/adapters/static"
	"github.com/smallbiznis/uplink/internal/testutil"
	"github.com/smallbiznis/uplink/internal/testutil/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fee = int64(2000)
	day = 24 * time.Hour
)

func newMembership(t *testing.T) (*stack.Stack, *Service) {
	t.Helper()
	st := stack.New(testutil.New(t))
	svc := New(Params{
		DB:        st.DB,
		Log:       st.Log,
		Clock:     st.Clock,
		AppConfig: st.AppConfig,
		Plan:      st.Plan,
		Repo:      st.Renewals,
		Members:   st.MemberRepo,
		Ledger:    st.Ledger,
		Poster:    st.Poster,
		Verifier:  st.Verifier,
		Notifier:  st.Notifier,
	}).(*Service)
	return st, svc
}

// schedule puts m on a renewal clock that falls due at next.
func schedule(t *testing.T, st *stack.Stack, m memberdomain.Member, next time.Time) {
	t.Helper()
	require.NoError(t, st.Renewals.Schedule(context.Background(), st.DB, m.ID, st.Clock.Now(), next))
}

func renewal(t *testing.T, st *stack.Stack, m memberdomain.Member) domain.Renewal {
	t.Helper()
	r, err := st.Renewals.Find(context.Background(), st.DB, m.ID)
	require.NoError(t, err)
	require.NotNil(t, r)
	return *r
}

func TestMembershipPaymentPaysSponsor(t *testing.T) {
	st, svc := newMembership(t)
	s := st.Member(t, "sponsor", &st.Admin, testutil.Active, testutil.Wallet("0xsponsor"))
	m := st.Member(t, "newbie", &s)

	res, err := svc.ProcessMembershipPayment(context.Background(), m.ID, "0xjoin")
	require.NoError(t, err)

	calls := st.Verifier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "0xsponsor", calls[0].Recipient)
	assert.Equal(t, fee, calls[0].Amount)

	assert.True(t, st.Reload(t, m.ID).IsActive)
	require.NotNil(t, res.SponsorID)
	assert.Equal(t, s.ID, *res.SponsorID)
	assert.True(t, st.Clock.Now().Add(30*day).Equal(res.NextRenewalDate))
	assert.True(t, renewal(t, st, m).NextRenewalDate.Equal(res.NextRenewalDate))

	sponsor := st.Reload(t, s.ID)
	assert.Equal(t, fee, sponsor.Balance)
	assert.Equal(t, fee, sponsor.TotalEarned)
	assert.Equal(t, 1, sponsor.PersonalReferralCount)

	entries := st.Entries(t, "0xjoin")
	require.Len(t, entries, 1)
	assert.Equal(t, ledgerdomain.CommissionMembership, entries[0].Type)
	assert.Equal(t, s.ID, *entries[0].EarnerID)
	assert.Contains(t, st.Notifier.Events(m.ID), notification.EventMembershipActivated)
}

func TestOrganicMembershipPaysPlatform(t *testing.T) {
	st, svc := newMembership(t)
	m := st.Member(t, "organic", nil)

	res, err := svc.ProcessMembershipPayment(context.Background(), m.ID, "0xorganic")
	require.NoError(t, err)
	assert.Nil(t, res.SponsorID)
	assert.Equal(t, stack.PlatformWallet, st.Verifier.Calls()[0].Recipient)

	entries := st.Entries(t, "0xorganic")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsPlatform())
	assert.Zero(t, st.SumBalances(t))
}

func TestSponsorWithoutWalletIsPaidThroughPlatform(t *testing.T) {
	st, svc := newMembership(t)
	s := st.Member(t, "sponsor", &st.Admin, testutil.Active)
	m := st.Member(t, "newbie", &s)

	_, err := svc.ProcessMembershipPayment(context.Background(), m.ID, "0xnowallet")
	require.NoError(t, err)
	assert.Equal(t, stack.PlatformWallet, st.Verifier.Calls()[0].Recipient)
	assert.Equal(t, fee, st.Reload(t, s.ID).Balance)
}

func TestMembershipFeeCascadesThroughInactiveSponsor(t *testing.T) {
	st, svc := newMembership(t)
	y := st.Member(t, "y", &st.Admin, testutil.Active)
	x := st.Member(t, "x", &y, testutil.Balance(1500))
	m := st.Member(t, "newbie", &x)

	res, err := svc.ProcessMembershipPayment(context.Background(), m.ID, "0xwave")
	require.NoError(t, err)

	assert.Equal(t, []snowflake.ID{x.ID}, res.CascadeActivations)
	sponsor := st.Reload(t, x.ID)
	assert.True(t, sponsor.IsActive)
	assert.Equal(t, int64(1500), sponsor.Balance)
	assert.Equal(t, fee, st.Reload(t, y.ID).Balance)
	assert.Equal(t, 1, st.Reload(t, y.ID).PersonalReferralCount)

	cascade, err := st.Renewals.Find(context.Background(), st.DB, x.ID)
	require.NoError(t, err)
	assert.NotNil(t, cascade, "auto-activation starts a renewal schedule")
}

func TestMembershipRejections(t *testing.T) {
	st, svc := newMembership(t)
	active := st.Member(t, "active", &st.Admin, testutil.Active)
	a := st.Member(t, "a", &active)
	b := st.Member(t, "b", &active)
	ctx := context.Background()

	_, err := svc.ProcessMembershipPayment(ctx, active.ID, "0xr1")
	assert.ErrorIs(t, err, errs.ErrAlreadyActive)

	_, err = svc.ProcessMembershipPayment(ctx, 777, "0xr2")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.ProcessMembershipPayment(ctx, a.ID, "0xshared")
	require.NoError(t, err)
	_, err = svc.ProcessMembershipPayment(ctx, b.ID, "0xshared")
	assert.ErrorIs(t, err, errs.ErrDuplicateExternalReference)
	assert.False(t, st.Reload(t, b.ID).IsActive)

	svc.verifier = static.DenyAll()
	_, err = svc.ProcessMembershipPayment(ctx, b.ID, "0xr3")
	assert.ErrorIs(t, err, errs.ErrVerificationFailed)
	assert.False(t, st.Reload(t, b.ID).IsActive)
}

func TestSweepRenewsFundedMember(t *testing.T) {
	st, svc := newMembership(t)
	s := st.Member(t, "sponsor", &st.Admin, testutil.Active)
	m := st.Member(t, "member", &s, testutil.Active, testutil.Balance(5000))
	due := st.Clock.Now().Add(-time.Hour)
	schedule(t, st, m, due)

	res, err := svc.RunRenewalSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, len(res.Renewed))
	assert.Equal(t, m.ID, res.Renewed[0])
	assert.Equal(t, int64(3000), st.Reload(t, m.ID).Balance)
	assert.Equal(t, fee, st.Reload(t, s.ID).Balance)

	r := renewal(t, st, m)
	assert.Equal(t, 1, r.TotalRenewals)
	assert.True(t, r.NextRenewalDate.Equal(due.Add(30*day)))
	require.NotNil(t, r.LastRenewedAt)

	entries := st.Entries(t, "renewal:"+m.ID.String()+":1")
	require.Len(t, entries, 1)
	assert.Equal(t, ledgerdomain.CommissionMembershipRenewal, entries[0].Type)
	assert.Contains(t, st.Notifier.Events(m.ID), notification.EventMembershipRenewed)

	again, err := svc.RunRenewalSweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again.Renewed, "next renewal is a period away")
}

func TestSweepWarnsOncePerShortfall(t *testing.T) {
	st, svc := newMembership(t)
	m := st.Member(t, "member", &st.Admin, testutil.Active, testutil.Balance(100))
	schedule(t, st, m, st.Clock.Now().Add(2*day))
	ctx := context.Background()

	res, err := svc.RunRenewalSweep(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Warned, 1)

	res, err = svc.RunRenewalSweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Warned)
	assert.Equal(t, 1, st.Notifier.Count(notification.EventRenewalLowBalance))
}

func TestSweepSkipsFundedMemberBeforeDueDate(t *testing.T) {
	st, svc := newMembership(t)
	m := st.Member(t, "member", &st.Admin, testutil.Active, testutil.Balance(5000))
	schedule(t, st, m, st.Clock.Now().Add(2*day))

	res, err := svc.RunRenewalSweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Warned)
	assert.Empty(t, res.Renewed)
	assert.Equal(t, int64(5000), st.Reload(t, m.ID).Balance)
}

func TestSweepGraceThenLapse(t *testing.T) {
	st, svc := newMembership(t)
	m := st.Member(t, "member", &st.Admin, testutil.Active)
	schedule(t, st, m, st.Clock.Now().Add(-time.Hour))
	ctx := context.Background()

	res, err := svc.RunRenewalSweep(ctx)
	require.NoError(t, err)
	assert.Len(t, res.GraceStarted, 1)
	r := renewal(t, st, m)
	assert.True(t, r.InGracePeriod)
	require.NotNil(t, r.GracePeriodStart)

	st.Clock.Advance(4 * day)
	res, err = svc.RunRenewalSweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.GraceStarted)
	assert.Empty(t, res.Lapsed)

	st.Clock.Advance(day)
	res, err = svc.RunRenewalSweep(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Lapsed, 1)
	assert.False(t, st.Reload(t, m.ID).IsActive)
	assert.False(t, renewal(t, st, m).InGracePeriod)

	res, err = svc.RunRenewalSweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Lapsed, "inactive members are not swept")
	assert.Equal(t, 1, st.Notifier.Count(notification.EventMembershipLapsed))
}

func TestSweepRenewsMemberFundedDuringGrace(t *testing.T) {
	st, svc := newMembership(t)
	m := st.Member(t, "member", nil, testutil.Active)
	schedule(t, st, m, st.Clock.Now().Add(-time.Hour))
	ctx := context.Background()

	_, err := svc.RunRenewalSweep(ctx)
	require.NoError(t, err)
	require.NoError(t, st.MemberRepo.Credit(ctx, st.DB, m.ID, fee, false))

	res, err := svc.RunRenewalSweep(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Renewed, 1)

	r := renewal(t, st, m)
	assert.False(t, r.InGracePeriod)
	assert.Nil(t, r.GracePeriodStart)
	assert.True(t, r.NextRenewalDate.After(st.Clock.Now()))
	assert.Zero(t, st.Reload(t, m.ID).Balance)
}

func TestStatus(t *testing.T) {
	st, svc := newMembership(t)
	m := st.Member(t, "member", nil)
	ctx := context.Background()

	status, err := svc.Status(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, status.Scheduled)

	_, err = svc.ProcessMembershipPayment(ctx, m.ID, "0xstatus")
	require.NoError(t, err)
	status, err = svc.Status(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, status.Scheduled)
	require.NotNil(t, status.NextRenewalDate)
	assert.Zero(t, status.TotalRenewals)
}
