package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/leafsii/dsc-ledger/internal/accounts"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

func address(s string) domain.Address {
	return domain.Address(strings.TrimSpace(s))
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req CollateralRequest
	if !h.decode(w, r, &req) {
		return
	}
	asset, ok := h.lookupAsset(w, req.Asset)
	if !ok {
		return
	}
	amount, ok := h.parseAmount(w, "amount", req.Amount, asset.Decimals)
	if !ok {
		return
	}

	user := address(req.User)
	if err := h.engine.Deposit(r.Context(), user, asset.ID, amount); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeOperation(w, r, "deposit", user)
}

func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req CollateralRequest
	if !h.decode(w, r, &req) {
		return
	}
	asset, ok := h.lookupAsset(w, req.Asset)
	if !ok {
		return
	}
	amount, ok := h.parseAmount(w, "amount", req.Amount, asset.Decimals)
	if !ok {
		return
	}

	user := address(req.User)
	if err := h.engine.Redeem(r.Context(), user, asset.ID, amount); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeOperation(w, r, "redeem", user)
}

func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	var req DebtRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, ok := h.parseAmount(w, "amount", req.Amount, calc.PrecisionDecimals)
	if !ok {
		return
	}

	user := address(req.User)
	if err := h.engine.Mint(r.Context(), user, amount); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeOperation(w, r, "mint", user)
}

func (h *Handler) Burn(w http.ResponseWriter, r *http.Request) {
	var req DebtRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, ok := h.parseAmount(w, "amount", req.Amount, calc.PrecisionDecimals)
	if !ok {
		return
	}

	user := address(req.User)
	if err := h.engine.Burn(r.Context(), user, amount); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeOperation(w, r, "burn", user)
}

// OpenPosition deposits collateral and mints debt against it in one operation.
func (h *Handler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !h.decode(w, r, &req) {
		return
	}
	asset, ok := h.lookupAsset(w, req.Asset)
	if !ok {
		return
	}
	collateral, ok := h.parseAmount(w, "collateral", req.Collateral, asset.Decimals)
	if !ok {
		return
	}
	debt, ok := h.parseAmount(w, "debt", req.Debt, calc.PrecisionDecimals)
	if !ok {
		return
	}

	user := address(req.User)
	if err := h.engine.DepositAndMint(r.Context(), user, asset.ID, collateral, debt); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeOperation(w, r, "open", user)
}

// ClosePosition burns debt and redeems collateral in one operation.
func (h *Handler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !h.decode(w, r, &req) {
		return
	}
	asset, ok := h.lookupAsset(w, req.Asset)
	if !ok {
		return
	}
	collateral, ok := h.parseAmount(w, "collateral", req.Collateral, asset.Decimals)
	if !ok {
		return
	}
	debt, ok := h.parseAmount(w, "debt", req.Debt, calc.PrecisionDecimals)
	if !ok {
		return
	}

	user := address(req.User)
	if err := h.engine.RedeemForBurn(r.Context(), user, asset.ID, collateral, debt); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeOperation(w, r, "close", user)
}

func (h *Handler) Liquidate(w http.ResponseWriter, r *http.Request) {
	var req LiquidationRequest
	if !h.decode(w, r, &req) {
		return
	}
	asset, ok := h.lookupAsset(w, req.Asset)
	if !ok {
		return
	}
	debtToCover, ok := h.parseAmount(w, "debtToCover", req.DebtToCover, calc.PrecisionDecimals)
	if !ok {
		return
	}

	liquidator, user := address(req.Liquidator), address(req.User)
	res, err := h.engine.Liquidate(r.Context(), liquidator, user, asset.ID, debtToCover)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.logger.Infow("Liquidation executed",
		"liquidator", liquidator,
		"user", user,
		"asset", asset.ID,
		"debt_covered", res.DebtCovered.Dec(),
		"collateral_seized", res.CollateralSeized.Dec(),
		"capped", res.Capped(),
	)

	h.writeJSON(w, http.StatusOK, LiquidationDTO{
		Liquidator:         liquidator.String(),
		User:               user.String(),
		Asset:              asset.ID,
		DebtCovered:        calc.ToDecimal(res.DebtCovered, calc.PrecisionDecimals).String(),
		SeizeUsd:           calc.ToDecimal(res.SeizeUsd, calc.PrecisionDecimals).String(),
		CollateralSeized:   calc.ToDecimal(res.CollateralSeized, asset.Decimals).String(),
		Capped:             res.Capped(),
		HealthFactorBefore: calc.FormatHealthFactor(res.HealthFactorBefore),
		Account:            h.freshAccount(r.Context(), user, liquidator),
	})
}

// Faucet credits collateral tokens to a development wallet.
func (h *Handler) Faucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if !h.decode(w, r, &req) {
		return
	}
	asset, ok := h.lookupAsset(w, req.Asset)
	if !ok {
		return
	}
	amount, ok := h.parseAmount(w, "amount", req.Amount, asset.Decimals)
	if !ok {
		return
	}
	to := address(req.Address)
	if to.IsZero() {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "address is required")
		return
	}
	if amount.IsZero() {
		h.writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be greater than zero")
		return
	}

	if err := h.faucet.Credit(r.Context(), asset.ID, to, amount); err != nil {
		h.writeError(w, http.StatusInternalServerError, "FAUCET_ERROR", err.Error())
		return
	}
	wallet, err := h.faucet.BalanceOf(r.Context(), asset.ID, to)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "FAUCET_ERROR", err.Error())
		return
	}

	h.logger.Infow("Faucet credit", "address", to, "asset", asset.ID, "amount", req.Amount)
	h.writeJSON(w, http.StatusOK, FaucetDTO{
		Address:  to.String(),
		Asset:    asset.ID,
		Credited: calc.ToDecimal(amount, asset.Decimals).String(),
		Wallet:   calc.ToDecimal(wallet, asset.Decimals).String(),
	})
}

func (h *Handler) writeOperation(w http.ResponseWriter, r *http.Request, op string, user domain.Address) {
	h.writeJSON(w, http.StatusOK, OperationResponse{
		Operation: op,
		User:      user.String(),
		Account:   h.freshAccount(r.Context(), user),
	})
}

// freshAccount drops the cached views of the touched accounts and rebuilds the first.
// The journal invalidates them too, but only after its next flush.
func (h *Handler) freshAccount(ctx context.Context, user domain.Address, others ...domain.Address) *accounts.Account {
	if h.cache != nil {
		keys := []string{user.String()}
		for _, o := range others {
			keys = append(keys, o.String())
		}
		if err := h.cache.InvalidateAccounts(ctx, keys...); err != nil {
			h.logger.Warnw("Failed to invalidate account cache", "user", user, "error", err)
		}
	}
	account, err := h.accountSvc.Get(ctx, user)
	if err != nil {
		h.logger.Warnw("Account view unavailable after operation", "user", user, "error", err)
		return nil
	}
	return account
}
