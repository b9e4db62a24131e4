package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/cascade"
	ledgerdomain "github.com/smallbiznis/uplink/internal/ledger/domain"
)

type Outcome string

const (
	// OutcomeCredited means a member earned the sale.
	OutcomeCredited Outcome = "credited"
	// OutcomeOrganic means the buyer had no sponsor.
	OutcomeOrganic Outcome = "organic"
	// OutcomeChainExhausted means no qualified upline was found.
	OutcomeChainExhausted Outcome = "chain_exhausted"
)

type PurchaseResult struct {
	PurchaseID   snowflake.ID         `json:"purchase_id"`
	TierID       snowflake.ID         `json:"tier_id"`
	Amount       int64                `json:"amount"`
	Outcome      Outcome              `json:"outcome"`
	Distribution []ledgerdomain.Entry `json:"distribution"`
	Consumed     []snowflake.ID       `json:"consumed,omitempty"`
	Activations  []cascade.Activation `json:"activations,omitempty"`
}
