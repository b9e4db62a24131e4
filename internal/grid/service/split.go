package service

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/config"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
)

const basisPoints = 10_000

// share returns the bps portion of amount, rounded down.
func share(amount, bps int64) int64 {
	return amount * bps / basisPoints
}

// Split divides one seat fill of price among the occupant's ancestors, nearest first.
// Shares nobody can take go to the platform, and the platform fee absorbs the
// rounding remainder so the entries always sum to price.
func Split(ref string, price int64, plan config.CompensationConfig, ancestors []snowflake.ID) []ledgerdomain.Entry {
	out := make([]ledgerdomain.Entry, 0, len(plan.LevelBps)+2)
	var paid int64

	direct := ledgerdomain.Entry{
		EntryKey: ref + ":grid:direct",
		Amount:   share(price, plan.DirectBps),
	}
	if len(ancestors) > 0 {
		direct.EarnerID = idPtr(ancestors[0])
		direct.Type = ledgerdomain.CommissionDirectSale
		direct.Note = "direct share of seat fill"
	} else {
		direct.Type = ledgerdomain.CommissionPlatform
		direct.Note = "direct share absorbed, occupant has no sponsor"
	}
	out = append(out, direct)
	paid += direct.Amount

	for i, bps := range plan.LevelBps {
		level := i + 1
		entry := ledgerdomain.Entry{
			EntryKey: fmt.Sprintf("%s:grid:level:%d", ref, level),
			Amount:   share(price, bps),
			Depth:    level,
		}
		if i < len(ancestors) {
			entry.EarnerID = idPtr(ancestors[i])
			entry.Type = ledgerdomain.CommissionUniLevel
			entry.Note = fmt.Sprintf("level %d share of seat fill", level)
		} else {
			entry.Type = ledgerdomain.CommissionPlatform
			entry.Note = fmt.Sprintf("level %d absorbed, upline ends at %d", level, len(ancestors))
		}
		out = append(out, entry)
		paid += entry.Amount
	}

	out = append(out, ledgerdomain.Entry{
		EntryKey: ref + ":grid:platform",
		Amount:   price - paid,
		Type:     ledgerdomain.CommissionPlatform,
		Note:     "platform fee",
	})
	return out
}

func idPtr(id snowflake.ID) *snowflake.ID {
	return &id
}
