package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/leafsii/dsc-ledger/pkg/kv"
)

// Store is an in-memory implementation of the kv.Store interface
type Store struct {
	mu          sync.Mutex
	strings     map[string][]byte
	lists       map[string][][]byte
	expirations map[string]time.Time

	janitorInterval time.Duration
	janitorStop     chan struct{}
	janitorDone     chan struct{}
	closeOnce       sync.Once
}

// New creates a new in-memory store. A positive janitorInterval starts a background
// sweep of expired keys.
func New(janitorInterval time.Duration) *Store {
	s := &Store{
		strings:         make(map[string][]byte),
		lists:           make(map[string][][]byte),
		expirations:     make(map[string]time.Time),
		janitorInterval: janitorInterval,
		janitorStop:     make(chan struct{}),
		janitorDone:     make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor()
	} else {
		close(s.janitorDone)
	}

	return s
}

func (s *Store) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.janitorStop:
			return
		}
	}
}

func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, expiry := range s.expirations {
		if now.After(expiry) {
			s.deleteKey(key)
		}
	}
}

// expire drops key if its TTL has passed. Caller holds s.mu.
func (s *Store) expire(key string) {
	if expiry, ok := s.expirations[key]; ok && time.Now().After(expiry) {
		s.deleteKey(key)
	}
}

// deleteKey removes key and its TTL. Caller holds s.mu.
func (s *Store) deleteKey(key string) bool {
	_, isString := s.strings[key]
	_, isList := s.lists[key]
	delete(s.strings, key)
	delete(s.lists, key)
	delete(s.expirations, key)
	return isString || isList
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl ...time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteKey(key)
	s.strings[key] = append([]byte(nil), value...)
	if len(ttl) > 0 && ttl[0] > 0 {
		s.expirations[key] = time.Now().Add(ttl[0])
	}
	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire(key)
	if _, isList := s.lists[key]; isList {
		return nil, kv.ErrWrongType
	}
	value, exists := s.strings[key]
	if !exists {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *Store) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, key := range keys {
		s.expire(key)
		if s.deleteKey(key) {
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) Exists(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, key := range keys {
		s.expire(key)
		if _, ok := s.strings[key]; ok {
			n++
		} else if _, ok := s.lists[key]; ok {
			n++
		}
	}
	return n, nil
}

func (s *Store) IncrBy(_ context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire(key)
	if _, isList := s.lists[key]; isList {
		return 0, kv.ErrWrongType
	}

	var current int64
	if value, exists := s.strings[key]; exists {
		parsed, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return 0, kv.ErrWrongType
		}
		current = parsed
	}

	current += n
	s.strings[key] = []byte(strconv.FormatInt(current, 10))
	return current, nil
}

func (s *Store) RPush(_ context.Context, key string, values ...[]byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire(key)
	if _, isString := s.strings[key]; isString {
		return 0, kv.ErrWrongType
	}
	for _, v := range values {
		s.lists[key] = append(s.lists[key], append([]byte(nil), v...))
	}
	return int64(len(s.lists[key])), nil
}

// LRange follows Redis index semantics: negative indices count from the end and a
// missing key is an empty list.
func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire(key)
	if _, isString := s.strings[key]; isString {
		return nil, kv.ErrWrongType
	}

	list := s.lists[key]
	start, stop, ok := normalizeRange(int64(len(list)), start, stop)
	if !ok {
		return [][]byte{}, nil
	}

	result := make([][]byte, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		result = append(result, append([]byte(nil), list[i]...))
	}
	return result, nil
}

func (s *Store) LLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire(key)
	if _, isString := s.strings[key]; isString {
		return 0, kv.ErrWrongType
	}
	return int64(len(s.lists[key])), nil
}

// LTrim keeps only the elements in [start, stop].
func (s *Store) LTrim(_ context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire(key)
	list, exists := s.lists[key]
	if !exists {
		return nil
	}
	start, stop, ok := normalizeRange(int64(len(list)), start, stop)
	if !ok {
		s.deleteKey(key)
		return nil
	}
	s.lists[key] = append([][]byte(nil), list[start:stop+1]...)
	return nil
}

// Ping always returns nil for the in-memory store (always available)
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close stops the background janitor and drops all data.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.janitorInterval > 0 {
			close(s.janitorStop)
			<-s.janitorDone
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.strings = make(map[string][]byte)
		s.lists = make(map[string][][]byte)
		s.expirations = make(map[string]time.Time)
	})
	return nil
}

func normalizeRange(n, start, stop int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
