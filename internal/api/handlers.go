package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/accounts"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/leafsii/dsc-ledger/internal/engine"
	"github.com/leafsii/dsc-ledger/internal/markets"
	"github.com/leafsii/dsc-ledger/internal/repository"
	"github.com/leafsii/dsc-ledger/internal/store"
	"github.com/leafsii/dsc-ledger/internal/ws"
	"go.uber.org/zap"
)

const (
	maxBodyBytes  = 1 << 20
	readyzTimeout = 2 * time.Second
)

// MetricsInterface defines the interface for metrics recording
type MetricsInterface interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
	IncrementConnections(ctx context.Context)
	DecrementConnections(ctx context.Context)
}

// Faucet credits development wallets.
type Faucet interface {
	Credit(ctx context.Context, asset string, to domain.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, asset string, holder domain.Address) (*uint256.Int, error)
}

type Handler struct {
	engine     *engine.Engine
	accountSvc *accounts.Service
	marketsSvc *markets.Service
	events     repository.EventStore
	cache      *store.Cache
	faucet     Faucet
	sseHandler *SSEHandler
	hub        *ws.Hub
	logger     *zap.SugaredLogger
	metrics    MetricsInterface
}

// NewHandler wires the HTTP surface. faucet is nil outside development; hub may be nil
// when WebSocket streaming is off.
func NewHandler(
	eng *engine.Engine,
	accountSvc *accounts.Service,
	marketsSvc *markets.Service,
	events repository.EventStore,
	cache *store.Cache,
	faucet Faucet,
	hub *ws.Hub,
	logger *zap.SugaredLogger,
	metrics MetricsInterface,
) *Handler {
	return &Handler{
		engine:     eng,
		accountSvc: accountSvc,
		marketsSvc: marketsSvc,
		events:     events,
		cache:      cache,
		faucet:     faucet,
		sseHandler: NewSSEHandler(cache, logger, metrics),
		hub:        hub,
		logger:     logger,
		metrics:    metrics,
	}
}

// Health and ops endpoints
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Readyz reports ready when the cache and the event store answer.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
	defer cancel()

	dto := HealthDTO{Status: "ok", Checks: map[string]string{}}
	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			dto.Status = "unavailable"
			dto.Checks[name] = err.Error()
			return
		}
		dto.Checks[name] = "ok"
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.events != nil {
		check("events", h.events.Ping)
	}

	status := http.StatusOK
	if dto.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, dto)
}

// Protocol endpoints
func (h *Handler) GetParams(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.marketsSvc.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "MARKETS_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, catalog.Params)
}

func (h *Handler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.marketsSvc.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "MARKETS_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, catalog)
}

func (h *Handler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "asset")
	market, ok := h.marketsSvc.Get(r.Context(), id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "MARKET_NOT_FOUND", fmt.Sprintf("no market for %q", id))
		return
	}
	h.writeJSON(w, http.StatusOK, market)
}

// Conversions
func (h *Handler) GetUsdValue(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.lookupAsset(w, chi.URLParam(r, "asset"))
	if !ok {
		return
	}
	amount, ok := h.parseAmount(w, "amount", r.URL.Query().Get("amount"), asset.Decimals)
	if !ok {
		return
	}

	usd, err := h.engine.GetUsdValue(r.Context(), asset.ID, amount)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, UsdValueDTO{
		Asset:  asset.ID,
		Amount: calc.ToDecimal(amount, asset.Decimals).String(),
		Usd:    calc.ToDecimal(usd, calc.PrecisionDecimals).String(),
	})
}

func (h *Handler) GetAssetAmount(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.lookupAsset(w, chi.URLParam(r, "asset"))
	if !ok {
		return
	}
	usd, ok := h.parseAmount(w, "usd", r.URL.Query().Get("usd"), calc.PrecisionDecimals)
	if !ok {
		return
	}

	amount, err := h.engine.GetAssetAmountForUsd(r.Context(), asset.ID, usd)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, UsdValueDTO{
		Asset:  asset.ID,
		Amount: calc.ToDecimal(amount, asset.Decimals).String(),
		Usd:    calc.ToDecimal(usd, calc.PrecisionDecimals).String(),
	})
}

// Accounts
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	user := domain.Address(strings.TrimSpace(chi.URLParam(r, "address")))
	if user.IsZero() {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "address is required")
		return
	}

	account, err := h.accountSvc.Get(r.Context(), user)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

func (h *Handler) GetAccountEvents(w http.ResponseWriter, r *http.Request) {
	user := domain.Address(strings.TrimSpace(chi.URLParam(r, "address")))
	if user.IsZero() {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "address is required")
		return
	}

	limit := repository.DefaultPageSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	items, next, err := h.events.ListByAccount(r.Context(), user, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			h.writeError(w, http.StatusBadRequest, "INVALID_CURSOR", err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, "EVENTS_ERROR", err.Error())
		return
	}
	if items == nil {
		items = []repository.StoredEvent{}
	}

	h.writeJSON(w, http.StatusOK, AccountEventsDTO{
		Address:    user.String(),
		Items:      items,
		NextCursor: next,
	})
}

// SSE endpoint
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseHandler.HandleSSE(w, r)
}

func (h *Handler) lookupAsset(w http.ResponseWriter, id string) (domain.Asset, bool) {
	for _, a := range h.engine.CollateralAssets() {
		if a.ID == id {
			return a, true
		}
	}
	h.writeEngineError(w, fmt.Errorf("%w: %s", engine.ErrUnsupportedAsset, id))
	return domain.Asset{}, false
}

func (h *Handler) parseAmount(w http.ResponseWriter, field, value string, decimals uint8) (*uint256.Int, bool) {
	if strings.TrimSpace(value) == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", field+" is required")
		return nil, false
	}
	amount, err := calc.ParseAmount(strings.TrimSpace(value), decimals)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", fmt.Sprintf("invalid %s: %v", field, err))
		return nil, false
	}
	return amount, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// Utility methods
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warnw("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("API error", "code", code, "message", message, "status", status)
	} else {
		h.logger.Debugw("API error", "code", code, "message", message, "status", status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := ErrorResponse{
		Code:    code,
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	h.writeError(w, status, code, err.Error())
}
