package posting

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/cascade"
	"github.com/smallbiznis/uplink/internal/errs"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/uplink/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/uplink/internal/ledger/service"
	memberrepo "github.com/smallbiznis/uplink/internal/member/repository"
	membershiprepo "github.com/smallbiznis/uplink/internal/membership/repository"
	"github.com/smallbiznis/uplink/internal/notification"
	"github.com/smallbiznis/uplink/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPoster(t *testing.T) (*testutil.Env, *Poster) {
	t.Helper()
	env := testutil.New(t)
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:    env.DB,
		Log:   env.Log,
		GenID: env.Node,
		Clock: env.Clock,
		Repo:  ledgerrepo.Provide(),
	})
	members := memberrepo.Provide(env.Clock)
	return env, New(Params{
		Log:     env.Log,
		Ledger:  ledger,
		Members: members,
		Cascade: cascade.New(cascade.Params{
			Log:      env.Log,
			Clock:    env.Clock,
			Config:   env.Plan,
			Ledger:   ledger,
			Members:  members,
			Renewals: membershiprepo.Provide(),
		}),
	})
}

func earning(key string, earner *snowflake.ID, amount int64, kind ledgerdomain.CommissionType) ledgerdomain.Entry {
	return ledgerdomain.Entry{
		EntryKey:    key,
		ExternalRef: "0xpost",
		SourceType:  ledgerdomain.SourceGridFill,
		EarnerID:    earner,
		Amount:      amount,
		Type:        kind,
	}
}

func TestPostCreditsEarnersAndCascades(t *testing.T) {
	env, poster := newPoster(t)
	ctx := context.Background()

	sponsor := env.Member(t, "sponsor", nil, testutil.Active)
	earner := env.Member(t, "earner", &sponsor, testutil.Balance(1500))

	var res Result
	require.NoError(t, env.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = poster.Post(ctx, tx,
			earning("0xpost:direct", &earner.ID, 800, ledgerdomain.CommissionDirectSale),
			earning("0xpost:level:1", &earner.ID, 300, ledgerdomain.CommissionUniLevel),
			earning("0xpost:platform", nil, 900, ledgerdomain.CommissionPlatform),
		)
		return err
	}))

	require.Len(t, res.Entries, 3)
	assert.Equal(t, int64(2000), Total(res.Entries))
	require.Len(t, res.Activations, 1)
	assert.Equal(t, earner.ID, res.Activations[0].MemberID)

	got := env.Reload(t, earner.ID)
	assert.True(t, got.IsActive)
	assert.Equal(t, int64(1500+800+300-2000), got.Balance)
	assert.Equal(t, int64(1100), got.TotalEarned)
	assert.Equal(t, int64(2000), env.Reload(t, sponsor.ID).Balance)

	cascaded, err := ledgerrepo.Provide().ListByExternalRef(ctx, env.DB, "0xpost")
	require.NoError(t, err)
	keys := make([]string, 0, len(cascaded))
	for _, e := range cascaded {
		keys = append(keys, e.EntryKey)
	}
	assert.Contains(t, keys, "0xpost:direct_cascade_1")
}

func TestConcurrentCreditsActivateOnce(t *testing.T) {
	env, poster := newPoster(t)
	ctx := context.Background()
	fee := env.Plan.Get().MembershipFee

	sponsor := env.Member(t, "sponsor", nil, testutil.Active)
	earner := env.Member(t, "earner", &sponsor)

	const credits = 6
	amount := fee + 500
	results := make([]Result, credits)
	failures := make([]error, credits)

	var wg sync.WaitGroup
	for i := 0; i < credits; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := earning(fmt.Sprintf("0xrace%d:direct", i), &earner.ID, amount, ledgerdomain.CommissionDirectSale)
			entry.ExternalRef = fmt.Sprintf("0xrace%d", i)
			failures[i] = env.DB.Transaction(func(tx *gorm.DB) error {
				var err error
				results[i], err = poster.Post(ctx, tx, entry)
				return err
			})
		}(i)
	}
	wg.Wait()

	activations := 0
	for i := 0; i < credits; i++ {
		require.NoError(t, failures[i])
		activations += len(results[i].Activations)
	}
	assert.Equal(t, 1, activations)

	got := env.Reload(t, earner.ID)
	assert.True(t, got.IsActive)
	assert.Equal(t, credits*amount-fee, got.Balance)
	assert.Equal(t, credits*amount, got.TotalEarned)

	up := env.Reload(t, sponsor.ID)
	assert.Equal(t, fee, up.Balance)
	assert.Equal(t, 1, up.PersonalReferralCount)

	var auto int64
	require.NoError(t, env.DB.Model(&ledgerdomain.Entry{}).
		Where("type = ? AND source_id = ?", ledgerdomain.CommissionMembershipAuto, earner.ID).
		Count(&auto).Error)
	assert.Equal(t, int64(1), auto)
}

func TestPostRollsBackOnDuplicateKey(t *testing.T) {
	env, poster := newPoster(t)
	ctx := context.Background()
	m := env.Member(t, "m", nil, testutil.Active)

	err := env.DB.Transaction(func(tx *gorm.DB) error {
		_, err := poster.Post(ctx, tx,
			earning("0xpost:direct", &m.ID, 500, ledgerdomain.CommissionDirectSale),
			earning("0xpost:direct", &m.ID, 500, ledgerdomain.CommissionDirectSale),
		)
		return err
	})
	require.ErrorIs(t, err, errs.ErrDuplicateExternalReference)
	assert.Zero(t, env.Reload(t, m.ID).Balance)
	assert.Empty(t, env.Entries(t, "0xpost"))
}

func TestNotices(t *testing.T) {
	earner := snowflake.ID(7)
	friend := snowflake.ID(8)
	res := Result{
		Entries: []ledgerdomain.Entry{
			earning("k1", &earner, 800, ledgerdomain.CommissionDirectSale),
			earning("k2", nil, 200, ledgerdomain.CommissionPlatform),
			earning("k3", &earner, 0, ledgerdomain.CommissionUniLevel),
			earning("k4", &friend, 100, ledgerdomain.CommissionP2P),
		},
		Activations: []cascade.Activation{{MemberID: earner, Depth: 1, Fee: 2000}},
	}

	notices := res.Notices()
	require.Len(t, notices, 3)
	assert.Equal(t, notification.EventCommissionEarned, notices[0].Event)
	assert.Equal(t, int64(800), notices[0].Data["amount"])
	assert.Equal(t, notification.EventTransferReceived, notices[1].Event)
	assert.Equal(t, friend, notices[1].MemberID)
	assert.Equal(t, notification.EventMemberAutoActivated, notices[2].Event)
	assert.Equal(t, int64(2000), notices[2].Data["fee"])
}
