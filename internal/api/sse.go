package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/leafsii/dsc-ledger/internal/store"
	"go.uber.org/zap"
)

const defaultHeartbeat = 30 * time.Second

// SSEHandler streams cache pubsub messages as server-sent events.
type SSEHandler struct {
	cache     *store.Cache
	logger    *zap.SugaredLogger
	metrics   MetricsInterface
	heartbeat time.Duration
}

func NewSSEHandler(cache *store.Cache, logger *zap.SugaredLogger, metrics MetricsInterface) *SSEHandler {
	return &SSEHandler{
		cache:     cache,
		logger:    logger,
		metrics:   metrics,
		heartbeat: defaultHeartbeat,
	}
}

// HandleSSE subscribes to the channels named by ?topics=events,alerts,prices plus
// ?address= and ?feed=. Without topics it streams every ledger event.
func (h *SSEHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	query := r.URL.Query()
	channels := mapTopicsToChannels(parseTopics(query.Get("topics")), query.Get("address"), query.Get("feed"))

	// Create context that cancels when client disconnects
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.cache.Subscribe(ctx, channels...)
	defer sub.Close()

	if h.metrics != nil {
		h.metrics.IncrementConnections(ctx)
		defer h.metrics.DecrementConnections(context.Background())
	}
	h.logger.Debugw("SSE connection established", "channels", channels, "in_memory", h.cache.IsInMemoryMode())

	h.sendEvent(w, flusher, "connected", "0", map[string]interface{}{"channels": channels})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected")
			return

		case <-heartbeat.C:
			h.sendEvent(w, flusher, "heartbeat", "ping", map[string]interface{}{
				"timestamp": time.Now().Unix(),
			})

		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}

			var data interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &data); err != nil {
				h.logger.Warnw("Failed to parse message payload", "channel", msg.Channel, "error", err)
				continue
			}
			h.sendEvent(w, flusher, channelToEventType(msg.Channel), msg.Channel, data)
		}
	}
}

func parseTopics(param string) []string {
	if param == "" {
		return nil
	}
	var topics []string
	for _, t := range strings.Split(param, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

func mapTopicsToChannels(topics []string, address, feed string) []string {
	channels := make([]string, 0, len(topics)+1)
	for _, topic := range topics {
		switch topic {
		case "events":
			channels = append(channels, store.ChannelEvents)
		case "alerts":
			channels = append(channels, store.ChannelAlerts)
		case "prices":
			if feed != "" {
				channels = append(channels, store.PriceKey(feed))
			}
		}
	}
	if address != "" {
		channels = append(channels, store.UserEventsChannel(address))
	}
	if len(channels) == 0 {
		channels = append(channels, store.ChannelEvents)
	}
	return channels
}

func channelToEventType(channel string) string {
	switch {
	case channel == store.ChannelEvents:
		return "ledger_event"
	case channel == store.ChannelAlerts:
		return "health_alert"
	case strings.HasPrefix(channel, store.ChannelEvents+":"):
		return "account_event"
	case strings.HasPrefix(channel, store.KeyPrice+":"):
		return "price_update"
	default:
		return "update"
	}
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType, id string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Errorw("Failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "id: %s\n", id)
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
