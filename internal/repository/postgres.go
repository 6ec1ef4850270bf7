package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/leafsii/dsc-ledger/internal/domain"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps the journal in the events table created by the sql/ migrations.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// OpenPostgres connects through the pgx stdlib driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewPostgresStore(db, logger), nil
}

func NewPostgresStore(db *sql.DB, logger *zap.SugaredLogger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

const insertEvent = `
	INSERT INTO events (id, type, user_addr, actor, asset, amount, debt, ts)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING
`

func nullableNumeric(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *PostgresStore) Append(ctx context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		_, err = stmt.ExecContext(ctx,
			e.ID,
			string(e.Type),
			string(e.User),
			string(e.Actor),
			e.Asset,
			nullableNumeric(e.Amount),
			nullableNumeric(e.Debt),
			e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to store event %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if s.logger != nil {
		s.logger.Debugw("Stored batch of events", "count", len(events))
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, account domain.Address, limit int, cursor string) ([]StoredEvent, string, error) {
	before, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = ClampLimit(limit)

	query := `
		SELECT seq, id::text, type, user_addr, actor, asset, COALESCE(amount::text, ''), COALESCE(debt::text, ''), ts
		FROM events
		WHERE (user_addr = $1 OR actor = $1)
		AND ($2::bigint = 0 OR seq < $2::bigint)
		ORDER BY seq DESC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, string(account), before, limit+1) // +1 to check if there are more
	if err != nil {
		return nil, "", fmt.Errorf("failed to query account events: %w", err)
	}
	defer rows.Close()

	events := make([]StoredEvent, 0, limit)
	var hasMore bool

	for rows.Next() {
		if len(events) >= limit {
			hasMore = true
			break
		}

		var (
			e                      StoredEvent
			eventType, user, actor string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &eventType, &user, &actor, &e.Asset, &e.Amount, &e.Debt, &e.Timestamp); err != nil {
			return nil, "", fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = domain.EventType(eventType)
		e.User = domain.Address(user)
		e.Actor = domain.Address(actor)
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("row iteration error: %w", err)
	}

	var next string
	if hasMore && len(events) > 0 {
		next = formatCursor(events[len(events)-1].Seq)
	}
	return events, next, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
