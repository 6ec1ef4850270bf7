package domain

import (
	"strings"
	"time"
)

// Address identifies a ledger participant (a user, a liquidator or the engine itself).
type Address string

// IsZero reports whether the address is blank.
func (a Address) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}

func (a Address) String() string {
	return string(a)
}

// Asset is a fungible token admitted as collateral.
type Asset struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Feed     string `json:"feed"` // price source identifier
}

// EventType names a committed ledger mutation.
type EventType string

const (
	EventDeposited  EventType = "COLLATERAL_DEPOSITED"
	EventRedeemed   EventType = "COLLATERAL_REDEEMED"
	EventMinted     EventType = "DEBT_MINTED"
	EventBurned     EventType = "DEBT_BURNED"
	EventLiquidated EventType = "LIQUIDATION"
)

// Event is emitted once per committed operation. Amounts are base-10 integer strings in
// native units (collateral) or 18-decimal units (debt).
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	User      Address   `json:"user"`
	Actor     Address   `json:"actor,omitempty"` // redeem recipient, burn payer or liquidator
	Asset     string    `json:"asset,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Debt      string    `json:"debt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
