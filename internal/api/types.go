package api

import (
	"github.com/leafsii/dsc-ledger/internal/accounts"
	"github.com/leafsii/dsc-ledger/internal/repository"
)

// Amounts in requests are human decimal strings. Collateral amounts use the asset's
// decimals, debt amounts use 18.

type CollateralRequest struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type DebtRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type PositionRequest struct {
	User       string `json:"user"`
	Asset      string `json:"asset"`
	Collateral string `json:"collateral"`
	Debt       string `json:"debt"`
}

type LiquidationRequest struct {
	Liquidator  string `json:"liquidator"`
	User        string `json:"user"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

type FaucetRequest struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// OperationResponse acknowledges a committed mutation. Account is the refreshed view
// of the affected user and is omitted when it cannot be valued right now.
type OperationResponse struct {
	Operation string            `json:"operation"`
	User      string            `json:"user"`
	Account   *accounts.Account `json:"account,omitempty"`
}

type LiquidationDTO struct {
	Liquidator         string            `json:"liquidator"`
	User               string            `json:"user"`
	Asset              string            `json:"asset"`
	DebtCovered        string            `json:"debtCovered"`
	SeizeUsd           string            `json:"seizeUsd"`
	CollateralSeized   string            `json:"collateralSeized"`
	Capped             bool              `json:"capped"`
	HealthFactorBefore string            `json:"healthFactorBefore"`
	Account            *accounts.Account `json:"account,omitempty"`
}

type FaucetDTO struct {
	Address  string `json:"address"`
	Asset    string `json:"asset"`
	Credited string `json:"credited"`
	Wallet   string `json:"wallet"`
}

type UsdValueDTO struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	Usd    string `json:"usd"`
}

type AccountEventsDTO struct {
	Address    string                   `json:"address"`
	Items      []repository.StoredEvent `json:"items"`
	NextCursor string                   `json:"nextCursor,omitempty"`
}

type HealthDTO struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
