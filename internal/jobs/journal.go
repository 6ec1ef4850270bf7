package jobs

import (
	"context"
	"time"

	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/leafsii/dsc-ledger/internal/metrics"
	"github.com/leafsii/dsc-ledger/internal/repository"
	"github.com/leafsii/dsc-ledger/internal/store"
	"go.uber.org/zap"
)

// EventPublisher forwards events to an external broker.
type EventPublisher interface {
	Publish(ctx context.Context, e domain.Event) error
}

type JournalConfig struct {
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
	// ShutdownTimeout bounds the final flush after Run's context ends.
	ShutdownTimeout time.Duration
}

func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		Buffer:          1024,
		BatchSize:       64,
		FlushInterval:   200 * time.Millisecond,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Journal is the engine's event sink. Emit only enqueues; Run persists each batch to
// the event store, invalidates and notifies the affected accounts through the cache
// and forwards events to the broker.
type Journal struct {
	events    chan domain.Event
	repo      repository.EventStore
	cache     *store.Cache
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	config    JournalConfig
}

// NewJournal wires the sinks. cache, publisher and metrics may be nil.
func NewJournal(repo repository.EventStore, cache *store.Cache, publisher EventPublisher, metrics *metrics.Metrics, logger *zap.SugaredLogger, config JournalConfig) *Journal {
	def := DefaultJournalConfig()
	if config.Buffer <= 0 {
		config.Buffer = def.Buffer
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = def.FlushInterval
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	return &Journal{
		events:    make(chan domain.Event, config.Buffer),
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		config:    config,
	}
}

// Emit satisfies engine.EventSink. A full buffer drops the event.
func (j *Journal) Emit(ctx context.Context, e domain.Event) {
	select {
	case j.events <- e:
	default:
		j.logger.Errorw("Journal buffer full, dropping event", "id", e.ID, "type", e.Type, "user", e.User)
		if j.metrics != nil {
			j.metrics.RecordJournalDrop(ctx)
		}
	}
}

// Run drains events until ctx is done, then flushes what is still buffered.
func (j *Journal) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]domain.Event, 0, j.config.BatchSize)
	for {
		select {
		case <-ctx.Done():
			j.shutdown(batch)
			return ctx.Err()
		case e := <-j.events:
			batch = append(batch, e)
			if len(batch) >= j.config.BatchSize {
				j.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (j *Journal) shutdown(batch []domain.Event) {
drain:
	for {
		select {
		case e := <-j.events:
			batch = append(batch, e)
		default:
			break drain
		}
	}
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.config.ShutdownTimeout)
	defer cancel()
	j.flush(ctx, batch)
	j.logger.Infow("Journal flushed on shutdown", "events", len(batch))
}

func (j *Journal) flush(ctx context.Context, batch []domain.Event) {
	if err := j.repo.Append(ctx, batch...); err != nil {
		j.logger.Errorw("Failed to persist events", "count", len(batch), "error", err)
	}

	for _, e := range batch {
		accounts := []string{string(e.User)}
		if !e.Actor.IsZero() {
			accounts = append(accounts, string(e.Actor))
		}

		if j.cache != nil {
			if err := j.cache.InvalidateAccounts(ctx, accounts...); err != nil {
				j.logger.Warnw("Failed to invalidate cached accounts", "accounts", accounts, "error", err)
			}
			if err := j.cache.PublishEvent(ctx, e, accounts...); err != nil {
				j.logger.Warnw("Failed to publish event", "id", e.ID, "error", err)
			}
		}

		if j.publisher != nil {
			if err := j.publisher.Publish(ctx, e); err != nil {
				// Non-fatal: consumers can page the journal instead
				j.logger.Warnw("Outbound publish failed", "id", e.ID, "type", e.Type, "error", err)
			}
		}
	}

	j.logger.Debugw("Flushed journal batch", "count", len(batch))
}
