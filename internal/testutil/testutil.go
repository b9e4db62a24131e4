// Package testutil builds in-memory fixtures for service tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/uplink/internal/clock"
	"github.com/smallbiznis/uplink/internal/config"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	"github.com/smallbiznis/uplink/internal/migration"
	"github.com/smallbiznis/uplink/internal/seed"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// Epoch is the fake clock's starting instant in every fixture.
var Epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type Env struct {
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock *clock.FakeClock
	Plan  *config.CompensationConfigHolder
	Log   *zap.Logger
	Admin memberdomain.Member
}

// NewDB opens an isolated in-memory database with the full schema.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:uplink_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(migration.Models()...))
	return db
}

// New returns a seeded environment: tier catalogue plus platform admin.
// mutate adjusts the default compensation plan before it is frozen.
func New(t testing.TB, mutate ...func(*config.CompensationConfig)) *Env {
	t.Helper()
	db := NewDB(t)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	plan := config.DefaultCompensationConfig()
	for _, fn := range mutate {
		fn(&plan)
	}
	holder, err := config.NewStaticCompensationConfigHolder(plan)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, seed.EnsureCatalogue(ctx, db))
	admin, err := seed.EnsurePlatformAdmin(ctx, db, node, "0xplatform")
	require.NoError(t, err)

	return &Env{
		DB:    db,
		Node:  node,
		Clock: clock.NewFakeClock(Epoch),
		Plan:  holder,
		Log:   zap.NewNop(),
		Admin: admin,
	}
}

type MemberOption func(*memberdomain.Member)

func Active(m *memberdomain.Member) { m.IsActive = true }

func Balance(amount int64) MemberOption {
	return func(m *memberdomain.Member) { m.Balance = amount }
}

func Wallet(address string) MemberOption {
	return func(m *memberdomain.Member) { m.WalletAddress = address }
}

func Admin(m *memberdomain.Member) {
	m.IsAdmin = true
	m.IsActive = true
}

// Member inserts a member directly. A nil sponsor makes an organic member.
func (e *Env) Member(t testing.TB, handle string, sponsor *memberdomain.Member, opts ...MemberOption) memberdomain.Member {
	t.Helper()
	now := e.Clock.Now()
	m := memberdomain.Member{
		ID:        e.Node.Generate(),
		Handle:    handle,
		Email:     handle + "@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sponsor != nil {
		id := sponsor.ID
		m.SponsorID = &id
	}
	for _, opt := range opts {
		opt(&m)
	}
	require.NoError(t, e.DB.Create(&m).Error)
	return m
}

// Chain creates n members, each sponsored by the previous one, starting under top.
// The returned slice is ordered top-down.
func (e *Env) Chain(t testing.TB, prefix string, top *memberdomain.Member, n int, opts ...MemberOption) []memberdomain.Member {
	t.Helper()
	out := make([]memberdomain.Member, 0, n)
	parent := top
	for i := 0; i < n; i++ {
		m := e.Member(t, fmt.Sprintf("%s%d", prefix, i), parent, opts...)
		out = append(out, m)
		parent = &out[len(out)-1]
	}
	return out
}

// Own records a course purchase without running any compensation.
func (e *Env) Own(t testing.TB, member memberdomain.Member, tierID snowflake.ID) {
	t.Helper()
	var tier memberdomain.Tier
	require.NoError(t, e.DB.First(&tier, "id = ?", tierID).Error)
	require.NoError(t, e.DB.Create(&memberdomain.Purchase{
		ID:          e.Node.Generate(),
		MemberID:    member.ID,
		TierID:      tier.ID,
		TierKind:    tier.Kind,
		TierLevel:   tier.Level,
		AmountPaid:  tier.Price,
		ExternalRef: fmt.Sprintf("seed-%d", e.Node.Generate()),
		CreatedAt:   e.Clock.Now(),
	}).Error)
}

// Reload reads the member's current row.
func (e *Env) Reload(t testing.TB, id snowflake.ID) memberdomain.Member {
	t.Helper()
	var m memberdomain.Member
	require.NoError(t, e.DB.First(&m, "id = ?", id).Error)
	return m
}

// Entries returns every ledger entry for ref in insertion order.
func (e *Env) Entries(t testing.TB, ref string) []ledgerdomain.Entry {
	t.Helper()
	var out []ledgerdomain.Entry
	require.NoError(t, e.DB.Where("external_ref = ?", ref).Order("id ASC").Find(&out).Error)
	return out
}

// SumBalances totals every member balance, the platform excluded.
func (e *Env) SumBalances(t testing.TB) int64 {
	t.Helper()
	var total int64
	require.NoError(t, e.DB.Raw(`SELECT COALESCE(SUM(balance), 0) FROM members`).Scan(&total).Error)
	return total
}
