package markets

import "time"

// Market describes one admitted collateral asset.
type Market struct {
	ID             string     `json:"id"`
	Symbol         string     `json:"symbol"`
	Decimals       uint8      `json:"decimals"`
	Feed           string     `json:"feed"`
	PriceUsd       string     `json:"priceUsd,omitempty"`
	PriceError     string     `json:"priceError,omitempty"`
	TotalDeposited string     `json:"totalDeposited"`
	TotalValueUsd  string     `json:"totalValueUsd,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// RiskParams are the protocol-wide parameters, as human ratios.
type RiskParams struct {
	Stablecoin           string `json:"stablecoin"`
	LiquidationThreshold string `json:"liquidationThreshold"` // minimum collateral ratio, e.g. "1.5"
	LiquidationBonus     string `json:"liquidationBonus"`     // e.g. "0.1"
	MinHealthFactor      string `json:"minHealthFactor"`
	TotalDebt            string `json:"totalDebt"`
}

type Catalog struct {
	Markets []Market   `json:"markets"`
	Params  RiskParams `json:"params"`
}
