// Package repository persists the journal of committed ledger events.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/leafsii/dsc-ledger/internal/domain"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

var ErrInvalidCursor = errors.New("invalid cursor")

// StoredEvent is a journaled event with its store-assigned sequence number.
type StoredEvent struct {
	Seq int64 `json:"seq"`
	domain.Event
}

// EventStore appends events and pages through an account's history, newest first.
// An account's history holds the events where it is the user or the actor.
type EventStore interface {
	Append(ctx context.Context, events ...domain.Event) error
	ListByAccount(ctx context.Context, account domain.Address, limit int, cursor string) ([]StoredEvent, string, error)
	Ping(ctx context.Context) error
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}

// Cursors are the sequence number of the last event on the previous page.
func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return seq, nil
}

func formatCursor(seq int64) string {
	return strconv.FormatInt(seq, 10)
}

// accountsOf lists the histories an event belongs to.
func accountsOf(e domain.Event) []domain.Address {
	if e.Actor.IsZero() || e.Actor == e.User {
		return []domain.Address{e.User}
	}
	return []domain.Address{e.User, e.Actor}
}
