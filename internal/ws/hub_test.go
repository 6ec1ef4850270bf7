package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leafsii/dsc-ledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingMetrics struct {
	open atomic.Int32
}

func (m *countingMetrics) IncrementConnections(context.Context) { m.open.Add(1) }
func (m *countingMetrics) DecrementConnections(context.Context) { m.open.Add(-1) }

type hubFixture struct {
	hub     *Hub
	cache   *store.Cache
	metrics *countingMetrics
	url     string
}

func newHubFixture(t *testing.T, origins ...string) *hubFixture {
	t.Helper()
	logger := zap.NewNop().Sugar()
	cache := store.NewMemoryCache(logger, nil)
	t.Cleanup(func() { cache.Close() })

	metrics := &countingMetrics{}
	hub := NewHub(cache, logger, metrics, []string{"ETH/USD"}, origins)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &hubFixture{hub: hub, cache: cache, metrics: metrics, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (f *hubFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var v map[string]interface{}
	require.NoError(t, conn.ReadJSON(&v))
	return v
}

func subscribe(t *testing.T, conn *websocket.Conn, req SubscriptionRequest) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(req))
	ack := readJSON(t, conn)
	require.Equal(t, req.Type+"d", ack["type"])
}

func TestHubRoutesByTopicAndAddress(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	alice := f.dial(t)
	subscribe(t, alice, SubscriptionRequest{Type: "subscribe", Address: "alice"})
	watcher := f.dial(t)
	subscribe(t, watcher, SubscriptionRequest{Type: "subscribe", Topics: []string{TopicPrices}})

	require.NoError(t, f.cache.PublishEvent(ctx, map[string]string{"type": "DEBT_MINTED", "user": "bob"}, "bob"))
	require.NoError(t, f.cache.PublishEvent(ctx, map[string]string{"type": "LIQUIDATION", "user": "carol", "actor": "alice"}, "carol", "alice"))
	require.NoError(t, f.cache.Publish(ctx, store.PriceKey("ETH/USD"), map[string]string{"price": "1999"}))

	// bob's event is skipped, the liquidation names alice as actor
	msg := readJSON(t, alice)
	assert.Equal(t, TopicEvents, msg["topic"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "LIQUIDATION", data["type"])

	msg = readJSON(t, watcher)
	assert.Equal(t, TopicPrices, msg["topic"])
	assert.Equal(t, store.PriceKey("ETH/USD"), msg["channel"])
}

func TestHubUnsubscribe(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	conn := f.dial(t)
	subscribe(t, conn, SubscriptionRequest{Type: "subscribe", Topics: []string{TopicAlerts, TopicEvents}})
	subscribe(t, conn, SubscriptionRequest{Type: "unsubscribe", Topics: []string{TopicEvents}})

	require.NoError(t, f.cache.PublishEvent(ctx, map[string]string{"user": "bob"}, "bob"))
	require.NoError(t, f.cache.Publish(ctx, store.ChannelAlerts, map[string]string{"user": "bob"}))

	msg := readJSON(t, conn)
	assert.Equal(t, TopicAlerts, msg["topic"])
}

func TestHubCountsConnections(t *testing.T) {
	f := newHubFixture(t)

	conn := f.dial(t)
	subscribe(t, conn, SubscriptionRequest{Type: "subscribe", Topics: []string{TopicEvents}})
	assert.Equal(t, int32(1), f.metrics.open.Load())

	conn.Close()
	assert.Eventually(t, func() bool { return f.metrics.open.Load() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubRejectsUnknownOrigin(t *testing.T) {
	f := newHubFixture(t, "http://localhost:3000")

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(f.url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(f.url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestAccountsIn(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, accountsIn(`{"user":"a","actor":"b"}`))
	assert.Equal(t, []string{"a"}, accountsIn(`{"user":"a","actor":"a"}`))
	assert.Nil(t, accountsIn(`not json`))
}

func TestTopicOf(t *testing.T) {
	assert.Equal(t, TopicEvents, topicOf(store.ChannelEvents))
	assert.Equal(t, TopicAlerts, topicOf(store.ChannelAlerts))
	assert.Equal(t, TopicPrices, topicOf(store.PriceKey("BTC/USD")))
	assert.Equal(t, "", topicOf(store.UserEventsChannel("alice")))
}
