package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leafsii/dsc-ledger/internal/domain"
	memkv "github.com/leafsii/dsc-ledger/pkg/kv/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func event(t domain.EventType, user, actor domain.Address, amount string) domain.Event {
	return domain.Event{
		ID:        uuid.NewString(),
		Type:      t,
		User:      user,
		Actor:     actor,
		Asset:     "WETH",
		Amount:    amount,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// runEventStoreTests exercises any EventStore whose history starts empty for the
// accounts used here.
func runEventStoreTests(t *testing.T, store EventStore, prefix string) {
	ctx := context.Background()
	alice := domain.Address(prefix + "alice")
	bob := domain.Address(prefix + "bob")

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Append(ctx, event(domain.EventDeposited, alice, "", fmt.Sprint(i))))
	}
	require.NoError(t, store.Append(ctx, event(domain.EventLiquidated, alice, bob, "6")))

	t.Run("NewestFirstWithCursor", func(t *testing.T) {
		page, next, err := store.ListByAccount(ctx, alice, 4, "")
		require.NoError(t, err)
		require.Len(t, page, 4)
		assert.Equal(t, domain.EventLiquidated, page[0].Type)
		assert.Equal(t, "6", page[0].Amount)
		assert.Equal(t, "3", page[3].Amount)
		require.NotEmpty(t, next)

		for i := 1; i < len(page); i++ {
			assert.Greater(t, page[i-1].Seq, page[i].Seq)
		}

		rest, next, err := store.ListByAccount(ctx, alice, 4, next)
		require.NoError(t, err)
		require.Len(t, rest, 2)
		assert.Equal(t, "2", rest[0].Amount)
		assert.Equal(t, "1", rest[1].Amount)
		assert.Empty(t, next)
	})

	t.Run("ActorSeesLiquidation", func(t *testing.T) {
		page, next, err := store.ListByAccount(ctx, bob, 10, "")
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, alice, page[0].User)
		assert.Equal(t, bob, page[0].Actor)
		assert.Empty(t, next)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		page, next, err := store.ListByAccount(ctx, domain.Address(prefix+"nobody"), 10, "")
		require.NoError(t, err)
		assert.Empty(t, page)
		assert.Empty(t, next)
	})

	t.Run("InvalidCursor", func(t *testing.T) {
		_, _, err := store.ListByAccount(ctx, alice, 10, "abc")
		assert.True(t, errors.Is(err, ErrInvalidCursor))
	})

	assert.NoError(t, store.Ping(ctx))
}

func TestKVStore(t *testing.T) {
	runEventStoreTests(t, NewKVStore(memkv.New(0), 0), "")
}

func TestKVStoreRetention(t *testing.T) {
	ctx := context.Background()
	store := NewKVStore(memkv.New(0), 3)

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Append(ctx, event(domain.EventMinted, "carol", "", fmt.Sprint(i))))
	}

	page, next, err := store.ListByAccount(ctx, "carol", 10, "")
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "5", page[0].Amount)
	assert.Equal(t, "3", page[2].Amount)
	assert.Empty(t, next)
}

func TestKVStorePagesAcrossReadWindows(t *testing.T) {
	ctx := context.Background()
	store := NewKVStore(memkv.New(0), 0)

	const total = 300
	for i := 1; i <= total; i++ {
		require.NoError(t, store.Append(ctx, event(domain.EventDeposited, "dave", "", fmt.Sprint(i))))
	}

	var seen []StoredEvent
	cursor := ""
	for {
		page, next, err := store.ListByAccount(ctx, "dave", 70, cursor)
		require.NoError(t, err)
		seen = append(seen, page...)
		if next == "" {
			break
		}
		cursor = next
	}

	require.Len(t, seen, total)
	for i, e := range seen {
		assert.Equal(t, fmt.Sprint(total-i), e.Amount)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DSC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DSC_TEST_POSTGRES_DSN not set, skipping Postgres tests")
	}

	store, err := OpenPostgres(context.Background(), dsn, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer store.Close()

	runEventStoreTests(t, store, uuid.NewString()[:8]+"-")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, ClampLimit(0))
	assert.Equal(t, DefaultPageSize, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxPageSize, ClampLimit(MaxPageSize+1))
}

func TestParseCursor(t *testing.T) {
	seq, err := parseCursor("")
	require.NoError(t, err)
	assert.Zero(t, seq)

	seq, err = parseCursor("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)

	for _, bad := range []string{"0", "-1", "1:2"} {
		_, err := parseCursor(bad)
		assert.True(t, errors.Is(err, ErrInvalidCursor), bad)
	}
}
