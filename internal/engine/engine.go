// Package engine is the position accounting and liquidation core. It owns the collateral
// and debt ledgers, values positions through the oracle adapter and moves tokens through
// the custodian and issuance authority.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/assets"
	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/leafsii/dsc-ledger/internal/ledger"
	"github.com/leafsii/dsc-ledger/internal/oracle"
	"go.uber.org/zap"
)

// Custodian holds deposited collateral tokens. A false return is a failure.
type Custodian interface {
	TransferIn(ctx context.Context, asset string, from domain.Address, amount *uint256.Int) (bool, error)
	TransferOut(ctx context.Context, asset string, to domain.Address, amount *uint256.Int) (bool, error)
	BalanceOf(ctx context.Context, asset string, holder domain.Address) (*uint256.Int, error)
}

// IssuanceAuthority is the stablecoin token. Pull has transferFrom semantics into the
// engine's own account and Burn destroys tokens held by the engine.
type IssuanceAuthority interface {
	Mint(ctx context.Context, to domain.Address, amount *uint256.Int) (bool, error)
	Burn(ctx context.Context, amount *uint256.Int) error
	BalanceOf(ctx context.Context, holder domain.Address) (*uint256.Int, error)
	Pull(ctx context.Context, from domain.Address, amount *uint256.Int) (bool, error)
	Transfer(ctx context.Context, to domain.Address, amount *uint256.Int) (bool, error)
	TotalIssued(ctx context.Context) (*uint256.Int, error)
}

// EventSink receives one event per committed operation. Emit is called while the engine
// lock is held and must not block.
type EventSink interface {
	Emit(ctx context.Context, event domain.Event)
}

// Recorder receives operation metrics.
type Recorder interface {
	RecordOperation(ctx context.Context, op string, result string, duration time.Duration)
	RecordLiquidation(ctx context.Context, asset string, debtCovered, collateralSeized float64)
}

type Config struct {
	Assets    *assets.Registry
	Prices    oracle.PriceSource
	Custodian Custodian
	Issuer    IssuanceAuthority
	IssuerID  string
}

type Options struct {
	Logger  *zap.SugaredLogger
	Events  EventSink
	Metrics Recorder
	Clock   func() time.Time

	// RequireHealthImprovement rejects liquidations that leave the user's health factor
	// at or below its starting value. Off by default.
	RequireHealthImprovement bool
}

type Engine struct {
	mu sync.RWMutex

	registry  *assets.Registry
	oracle    *oracle.Adapter
	custodian Custodian
	issuer    IssuanceAuthority
	issuerID  string

	collateral *ledger.CollateralLedger
	debt       *ledger.DebtLedger

	events   EventSink
	recorder Recorder
	logger   *zap.SugaredLogger
	now      func() time.Time

	requireHealthImprovement bool
}

func New(cfg Config, opts Options) (*Engine, error) {
	if cfg.Assets == nil || cfg.Prices == nil || cfg.Custodian == nil || cfg.Issuer == nil {
		return nil, fmt.Errorf("%w: missing collaborator", ErrZeroIdentifier)
	}
	if strings.TrimSpace(cfg.IssuerID) == "" {
		return nil, fmt.Errorf("%w: issuer id", ErrZeroIdentifier)
	}

	e := &Engine{
		registry:                 cfg.Assets,
		oracle:                   oracle.NewAdapter(cfg.Prices, cfg.Assets),
		custodian:                cfg.Custodian,
		issuer:                   cfg.Issuer,
		issuerID:                 cfg.IssuerID,
		collateral:               ledger.NewCollateralLedger(),
		debt:                     ledger.NewDebtLedger(),
		events:                   opts.Events,
		recorder:                 opts.Metrics,
		logger:                   opts.Logger,
		now:                      opts.Clock,
		requireHealthImprovement: opts.RequireHealthImprovement,
	}
	if e.events == nil {
		e.events = nopSink{}
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop().Sugar()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

type opKey struct{}

type activeOp struct {
	engine *Engine
	name   string
}

func (e *Engine) running(ctx context.Context) (activeOp, bool) {
	op, ok := ctx.Value(opKey{}).(activeOp)
	if !ok || op.engine != e {
		return activeOp{}, false
	}
	return op, true
}

// begin takes the write lock for a mutating operation and returns a context tagged with
// it. Collaborators receive the tagged context; any mutation arriving with it is rejected
// instead of deadlocking on the lock. The returned func must be deferred with a pointer
// to the operation's error.
func (e *Engine) begin(ctx context.Context, op string) (context.Context, func(*error), error) {
	if cur, ok := e.running(ctx); ok {
		e.logger.Warnw("Rejected reentrant engine call", "op", op, "running", cur.name)
		e.recorder.RecordOperation(ctx, op, string(KindReentrancy), 0)
		return ctx, nil, fmt.Errorf("%w: %s during %s", ErrReentrantCall, op, cur.name)
	}

	start := e.now()
	e.mu.Lock()
	tagged := context.WithValue(ctx, opKey{}, activeOp{engine: e, name: op})

	return tagged, func(errp *error) {
		e.mu.Unlock()

		result := "ok"
		if *errp != nil {
			result = string(KindOf(*errp))
			e.logger.Debugw("Engine operation failed", "op", op, "kind", result, "error", *errp)
		}
		e.recorder.RecordOperation(ctx, op, result, e.now().Sub(start))
	}, nil
}

// view takes the read lock unless ctx already belongs to a running operation of this
// engine, in which case the caller holds the lock.
func (e *Engine) view(ctx context.Context) (context.Context, func()) {
	if _, ok := e.running(ctx); ok {
		return ctx, func() {}
	}
	e.mu.RLock()
	return context.WithValue(ctx, opKey{}, activeOp{engine: e, name: "view"}), e.mu.RUnlock
}

func (e *Engine) emit(ctx context.Context, ev domain.Event) {
	ev.ID = uuid.NewString()
	ev.Timestamp = e.now().UTC()
	e.events.Emit(ctx, ev)
}

func (e *Engine) requireAsset(asset string) (domain.Asset, error) {
	info, ok := e.registry.Get(asset)
	if !ok {
		return domain.Asset{}, fmt.Errorf("%w: %s", ErrUnsupportedAsset, asset)
	}
	return info, nil
}

func requireAddress(addrs ...domain.Address) error {
	for _, a := range addrs {
		if a.IsZero() {
			return ErrZeroAddress
		}
	}
	return nil
}

func requireAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// collaboratorFailure folds the boolean-success protocol into one error.
func collaboratorFailure(kind error, what string, ok bool, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %w", kind, what, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s returned false", kind, what)
	}
	return nil
}

type nopSink struct{}

func (nopSink) Emit(context.Context, domain.Event) {}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(context.Context, string, string, time.Duration) {}

func (nopRecorder) RecordLiquidation(context.Context, string, float64, float64) {}
