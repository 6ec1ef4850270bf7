package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/leafsii/dsc-ledger/pkg/kv"
)

const (
	keyJournalSeq     = "dsc:journal:seq"
	keyJournalAccount = "dsc:journal:account:"

	// DefaultRetention is how many events each account list keeps.
	DefaultRetention = 1000

	scanWindow int64 = 128
)

// KVStore keeps the journal in a kv.Store: one list per account plus a sequence
// counter. Only the newest Retention events of each account are kept.
type KVStore struct {
	store     kv.Store
	retention int64
}

func NewKVStore(store kv.Store, retention int) *KVStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &KVStore{store: store, retention: int64(retention)}
}

func (s *KVStore) Append(ctx context.Context, events ...domain.Event) error {
	for _, e := range events {
		seq, err := s.store.IncrBy(ctx, keyJournalSeq, 1)
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		data, err := json.Marshal(StoredEvent{Seq: seq, Event: e})
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", e.ID, err)
		}

		for _, account := range accountsOf(e) {
			key := keyJournalAccount + string(account)
			n, err := s.store.RPush(ctx, key, data)
			if err != nil {
				return fmt.Errorf("failed to store event %s: %w", e.ID, err)
			}
			if n > s.retention {
				if err := s.store.LTrim(ctx, key, -s.retention, -1); err != nil {
					return fmt.Errorf("failed to trim journal: %w", err)
				}
			}
		}
	}
	return nil
}

func (s *KVStore) ListByAccount(ctx context.Context, account domain.Address, limit int, cursor string) ([]StoredEvent, string, error) {
	before, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = ClampLimit(limit)

	key := keyJournalAccount + string(account)
	n, err := s.store.LLen(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read journal length: %w", err)
	}

	// Read newest first in windows so a page does not load the whole list.
	events := make([]StoredEvent, 0, limit)
	var hasMore bool
	for end := n - 1; end >= 0 && !hasMore; end -= scanWindow {
		start := max(end-scanWindow+1, 0)
		raw, err := s.store.LRange(ctx, key, start, end)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read journal: %w", err)
		}
		for i := len(raw) - 1; i >= 0; i-- {
			var e StoredEvent
			if err := json.Unmarshal(raw[i], &e); err != nil {
				return nil, "", fmt.Errorf("failed to unmarshal event: %w", err)
			}
			if before != 0 && e.Seq >= before {
				continue
			}
			if len(events) >= limit {
				hasMore = true
				break
			}
			events = append(events, e)
		}
	}

	var next string
	if hasMore {
		next = formatCursor(events[len(events)-1].Seq)
	}
	return events, next, nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
