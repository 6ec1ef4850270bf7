// Package kv provides a small Redis-like key-value store abstraction with in-memory
// and Redis-backed implementations.
//
// The Store interface covers strings with TTL, counters and lists, which is what the
// cache fallback and the key-value event journal need. Backends register themselves
// with RegisterBackend from their package init, so importing a backend package is
// enough to make it selectable:
//
//	import _ "github.com/leafsii/dsc-ledger/pkg/kv/memory"
//
//	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendMemory})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
// The in-memory implementation expires keys lazily on access and in a background
// janitor. The Redis adapter wraps go-redis/v9.
package kv
