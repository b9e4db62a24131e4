// Package stack wires the shared compensation core over a testutil.Env.
package stack

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/cascade"
	"github.com/smallbiznis/uplink/internal/config"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	"github.com/smallbiznis/uplink/internal/ledger/posting"
	ledgerrepository "github.com/smallbiznis/uplink/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/uplink/internal/ledger/service"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	memberrepository "github.com/smallbiznis/uplink/internal/member/repository"
	memberservice "github.com/smallbiznis/uplink/internal/member/service"
	membershipdomain "github.com/smallbiznis/uplink/internal/membership/domain"
	membershiprepository "github.com/smallbiznis/uplink/internal/membership/repository"
	"github.com/smallbiznis/uplink/internal/notification"
	passupdomain "github.com/smallbiznis/uplink/internal/passup/domain"
	passuprepository "github.com/smallbiznis/uplink/internal/passup/repository"
	passupservice "github.com/smallbiznis/uplink/internal/passup/service"
	"github.com/smallbiznis/uplink/internal/payment/adapters/static"
	"github.com/smallbiznis/uplink/internal/testutil"
)

const PlatformWallet = "0xplatform"

type Stack struct {
	*testutil.Env

	AppConfig  config.Config
	MemberRepo memberdomain.Repository
	Members    memberdomain.Service
	LedgerRepo ledgerdomain.Repository
	Ledger     ledgerdomain.Service
	PassUp     passupdomain.Service
	Renewals   membershipdomain.Repository
	Cascade    *cascade.Cascader
	Poster     *posting.Poster
	Verifier   *static.Verifier
	Notifier   *Recorder
}

func New(env *testutil.Env) *Stack {
	s := &Stack{
		Env:        env,
		AppConfig:  config.Config{Environment: "test", PlatformWallet: PlatformWallet},
		MemberRepo: memberrepository.Provide(env.Clock),
		LedgerRepo: ledgerrepository.Provide(),
		Renewals:   membershiprepository.Provide(),
		Verifier:   static.AllowAll(),
		Notifier:   &Recorder{},
	}
	s.Members = memberservice.New(memberservice.Params{
		DB:     env.DB,
		Log:    env.Log,
		GenID:  env.Node,
		Clock:  env.Clock,
		Repo:   s.MemberRepo,
		Config: env.Plan,
	})
	s.Ledger = ledgerservice.NewService(ledgerservice.Params{
		DB:    env.DB,
		Log:   env.Log,
		GenID: env.Node,
		Clock: env.Clock,
		Repo:  s.LedgerRepo,
	})
	s.PassUp = passupservice.New(passupservice.Params{
		DB:    env.DB,
		Log:   env.Log,
		Clock: env.Clock,
		Repo:  passuprepository.Provide(),
	})
	s.Cascade = cascade.New(cascade.Params{
		Log:      env.Log,
		Clock:    env.Clock,
		Config:   env.Plan,
		Ledger:   s.Ledger,
		Members:  s.MemberRepo,
		Renewals: s.Renewals,
	})
	s.Poster = posting.New(posting.Params{
		Log:     env.Log,
		Ledger:  s.Ledger,
		Members: s.MemberRepo,
		Cascade: s.Cascade,
	})
	return s
}

// Recorder keeps every notice it is handed.
type Recorder struct {
	mu      sync.Mutex
	notices []notification.Notice
}

func (r *Recorder) Notify(_ context.Context, event notification.Event, memberID snowflake.ID, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notification.Notice{Event: event, MemberID: memberID, Data: data})
	return nil
}

func (r *Recorder) Events(memberID snowflake.ID) []notification.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notification.Event
	for _, n := range r.notices {
		if n.MemberID == memberID {
			out = append(out, n.Event)
		}
	}
	return out
}

func (r *Recorder) Count(event notification.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, notice := range r.notices {
		if notice.Event == event {
			n++
		}
	}
	return n
}
