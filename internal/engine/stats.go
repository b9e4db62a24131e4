package engine

import (
	"context"

	"github.com/bwmarrin/snowflake"
	griddomain "github.com/smallbiznis/uplink/internal/grid/domain"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	membershipdomain "github.com/smallbiznis/uplink/internal/membership/domain"
	passupdomain "github.com/smallbiznis/uplink/internal/passup/domain"
)

// Stats is the read-only view of one member.
type Stats struct {
	Result
	Member     *memberdomain.Member                  `json:"member,omitempty"`
	OwnedTiers []memberdomain.Purchase               `json:"owned_tiers,omitempty"`
	Earnings   map[ledgerdomain.CommissionType]int64 `json:"earnings,omitempty"`
	Sales      []passupdomain.Tracker                `json:"sales,omitempty"`
	Renewal    membershipdomain.Status               `json:"renewal"`
	Grids      []GridSummary                         `json:"grids,omitempty"`
}

type GridSummary struct {
	GridID       snowflake.ID `json:"grid_id"`
	TierID       snowflake.ID `json:"tier_id"`
	Advance      int          `json:"advance"`
	SeatsFilled  int          `json:"seats_filled"`
	Capacity     int          `json:"capacity"`
	RevenueTotal int64        `json:"revenue_total"`
	IsComplete   bool         `json:"is_complete"`
}

func (e *Engine) MemberStats(ctx context.Context, memberID snowflake.ID) Stats {
	ctx, done := e.operation(ctx, "member_stats", memberID, "")
	stats, err := e.memberStats(ctx, memberID)
	done(err)
	if err != nil {
		return Stats{Result: failed(err)}
	}
	stats.Success = true
	return stats
}

func (e *Engine) memberStats(ctx context.Context, memberID snowflake.ID) (Stats, error) {
	member, err := e.members.Get(ctx, memberID)
	if err != nil {
		return Stats{}, err
	}
	owned, err := e.memberRepo.ListPurchases(ctx, e.db, memberID)
	if err != nil {
		return Stats{}, err
	}
	earnings, err := e.ledger.EarningsByType(ctx, memberID)
	if err != nil {
		return Stats{}, err
	}
	sales, err := e.passup.ListByMember(ctx, memberID)
	if err != nil {
		return Stats{}, err
	}
	renewal, err := e.membership.Status(ctx, memberID)
	if err != nil {
		return Stats{}, err
	}
	grids, err := e.grid.ListGrids(ctx, memberID)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Member:     member,
		OwnedTiers: owned,
		Earnings:   earnings,
		Sales:      sales,
		Renewal:    renewal,
		Grids:      summarize(grids),
	}, nil
}

func summarize(grids []griddomain.Grid) []GridSummary {
	out := make([]GridSummary, 0, len(grids))
	for i := range grids {
		g := &grids[i]
		out = append(out, GridSummary{
			GridID:       g.ID,
			TierID:       g.TierID,
			Advance:      g.Advance,
			SeatsFilled:  g.SeatsFilled,
			Capacity:     g.Capacity(),
			RevenueTotal: g.RevenueTotal,
			IsComplete:   g.IsComplete,
		})
	}
	return out
}
