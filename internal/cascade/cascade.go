// Package cascade auto-activates inactive members whose balance covers the
// membership fee and forwards that fee up the sponsor chain.
package cascade

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/clock"
	"github.com/smallbiznis/uplink/internal/config"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	membershipdomain "github.com/smallbiznis/uplink/internal/membership/domain"
	obsmetrics "github.com/smallbiznis/uplink/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Activation is one member activated by a cascade hop.
type Activation struct {
	MemberID snowflake.ID  `json:"member_id"`
	Depth    int           `json:"depth"`
	Fee      int64         `json:"fee"`
	PaidTo   *snowflake.ID `json:"paid_to,omitempty"`
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Config     *config.CompensationConfigHolder
	Ledger     ledgerdomain.Service
	Members    memberdomain.Repository
	Renewals   membershipdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Cascader struct {
	log        *zap.Logger
	clock      clock.Clock
	cfg        *config.CompensationConfigHolder
	ledger     ledgerdomain.Service
	members    memberdomain.Repository
	renewals   membershipdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Cascader {
	return &Cascader{
		log:        p.Log.Named("cascade"),
		clock:      p.Clock,
		cfg:        p.Config,
		ledger:     p.Ledger,
		members:    p.Members,
		renewals:   p.Renewals,
		obsMetrics: p.ObsMetrics,
	}
}

var Module = fx.Module("cascade",
	fx.Provide(New),
)

// Run cascades from recipient, who has just been credited inside tx.
// Each hop is keyed "<sourceRef>_cascade_<depth>" in the ledger.
func (c *Cascader) Run(ctx context.Context, tx *gorm.DB, recipientID snowflake.ID, externalRef, sourceRef string) ([]Activation, error) {
	plan := c.cfg.Get()
	fee := plan.MembershipFee

	var activations []Activation
	visited := make(map[snowflake.ID]struct{})
	current := recipientID
	for depth := 1; depth <= plan.CascadeMaxDepth; depth++ {
		if _, seen := visited[current]; seen {
			break
		}
		visited[current] = struct{}{}

		member, err := c.members.FindByIDForUpdate(ctx, tx, current)
		if err != nil {
			return nil, err
		}
		if member == nil || member.IsActive || member.Balance < fee {
			break
		}

		activated, err := c.members.ActivateWithFee(ctx, tx, current, fee)
		if err != nil {
			return nil, err
		}
		if !activated {
			break
		}

		now := c.clock.Now()
		if err := c.renewals.Schedule(ctx, tx, current, now, now.Add(plan.RenewalPeriod())); err != nil {
			return nil, err
		}

		var sponsorID *snowflake.ID
		if member.HasSponsor() {
			sponsor, err := c.members.FindByID(ctx, tx, *member.SponsorID)
			if err != nil {
				return nil, err
			}
			if sponsor != nil {
				id := sponsor.ID
				sponsorID = &id
			}
		}

		payer := current
		note := "auto-activation fee absorbed by platform"
		if sponsorID != nil {
			note = "auto-activation fee forwarded to sponsor"
		}
		if err := c.ledger.Record(ctx, tx, &ledgerdomain.Entry{
			EntryKey:    fmt.Sprintf("%s_cascade_%d", sourceRef, depth),
			ExternalRef: externalRef,
			SourceType:  ledgerdomain.SourceCascade,
			SourceID:    current,
			BuyerID:     &payer,
			EarnerID:    sponsorID,
			Amount:      fee,
			Type:        ledgerdomain.CommissionMembershipAuto,
			Depth:       depth,
			Note:        note,
		}); err != nil {
			return nil, err
		}

		activations = append(activations, Activation{
			MemberID: current,
			Depth:    depth,
			Fee:      fee,
			PaidTo:   sponsorID,
		})
		c.log.Info("member auto-activated",
			zap.String("member_id", current.String()),
			zap.Int("depth", depth),
			zap.String("external_ref", externalRef),
		)

		if sponsorID == nil {
			break
		}
		if err := c.members.Credit(ctx, tx, *sponsorID, fee, true); err != nil {
			return nil, err
		}
		if err := c.members.IncrementReferralCount(ctx, tx, *sponsorID); err != nil {
			return nil, err
		}
		current = *sponsorID
	}

	c.obsMetrics.RecordCascadeActivations(ctx, len(activations))
	return activations, nil
}
