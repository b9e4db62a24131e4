// Package posting applies a distribution plan: it appends the ledger entries,
// credits member balances and runs the activation cascade for every credited member.
package posting

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/cascade"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	"github.com/smallbiznis/uplink/internal/notification"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Ledger  ledgerdomain.Service
	Members memberdomain.Repository
	Cascade *cascade.Cascader
}

type Poster struct {
	log     *zap.Logger
	ledger  ledgerdomain.Service
	members memberdomain.Repository
	cascade *cascade.Cascader
}

func New(p Params) *Poster {
	return &Poster{
		log:     p.Log.Named("ledger.posting"),
		ledger:  p.Ledger,
		members: p.Members,
		cascade: p.Cascade,
	}
}

type Result struct {
	Entries     []ledgerdomain.Entry
	Activations []cascade.Activation
}

// Post records entries in order inside tx. Platform entries only touch the ledger.
func (p *Poster) Post(ctx context.Context, tx *gorm.DB, entries ...ledgerdomain.Entry) (Result, error) {
	res := Result{Entries: make([]ledgerdomain.Entry, 0, len(entries))}

	type credited struct {
		id          snowflake.ID
		externalRef string
		sourceRef   string
	}
	var recipients []credited
	seen := make(map[snowflake.ID]struct{})

	for i := range entries {
		entry := entries[i]
		if err := p.ledger.Record(ctx, tx, &entry); err != nil {
			return Result{}, err
		}
		res.Entries = append(res.Entries, entry)

		if entry.EarnerID == nil || entry.Amount == 0 {
			continue
		}
		if err := p.members.Credit(ctx, tx, *entry.EarnerID, entry.Amount, entry.Type.IsEarning()); err != nil {
			return Result{}, err
		}
		if _, ok := seen[*entry.EarnerID]; !ok {
			seen[*entry.EarnerID] = struct{}{}
			recipients = append(recipients, credited{
				id:          *entry.EarnerID,
				externalRef: entry.ExternalRef,
				sourceRef:   entry.EntryKey,
			})
		}
	}

	for _, r := range recipients {
		activations, err := p.cascade.Run(ctx, tx, r.id, r.externalRef, r.sourceRef)
		if err != nil {
			return Result{}, err
		}
		res.Activations = append(res.Activations, activations...)
	}
	return res, nil
}

// Total sums the amounts of entries.
func Total(entries []ledgerdomain.Entry) int64 {
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	return sum
}

// Notices describes every credit and activation in r for delivery after commit.
func (r Result) Notices() []notification.Notice {
	var out []notification.Notice
	for _, e := range r.Entries {
		if e.EarnerID == nil || e.Amount == 0 {
			continue
		}
		event := notification.EventCommissionEarned
		if e.Type == ledgerdomain.CommissionP2P {
			event = notification.EventTransferReceived
		}
		out = append(out, notification.Notice{
			Event:    event,
			MemberID: *e.EarnerID,
			Data: map[string]any{
				"amount":          e.Amount,
				"commission_type": string(e.Type),
				"depth":           e.Depth,
				"external_ref":    e.ExternalRef,
			},
		})
	}
	for _, a := range r.Activations {
		out = append(out, notification.Notice{
			Event:    notification.EventMemberAutoActivated,
			MemberID: a.MemberID,
			Data:     map[string]any{"depth": a.Depth, "fee": a.Fee},
		})
	}
	return out
}
