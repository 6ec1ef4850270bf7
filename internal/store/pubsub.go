package store

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

const subscriptionBuffer = 100

// Message is a payload received on a pubsub channel.
type Message struct {
	Channel string
	Payload string
}

// Subscription delivers messages until closed. The channel is closed afterwards.
type Subscription interface {
	Channel() <-chan *Message
	Close() error
}

type redisSubscription struct {
	pubsub *redis.PubSub
	msgs   chan *Message
	done   chan struct{}
	once   sync.Once
}

func newRedisSubscription(ctx context.Context, pubsub *redis.PubSub) *redisSubscription {
	s := &redisSubscription{
		pubsub: pubsub,
		msgs:   make(chan *Message, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go s.forward(ctx)
	return s
}

func (s *redisSubscription) forward(ctx context.Context) {
	defer close(s.msgs)
	in := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.msgs <- &Message{Channel: msg.Channel, Payload: msg.Payload}:
			case <-s.done:
				return
			case <-ctx.Done():
				s.Close()
				return
			}
		}
	}
}

func (s *redisSubscription) Channel() <-chan *Message {
	return s.msgs
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

// memorySubscription is a Subscription served by a PubSubHub.
type memorySubscription struct {
	channels map[string]bool
	msgChan  chan *Message
	closeCh  chan struct{}
	closed   bool
	mu       sync.RWMutex
}

func newMemorySubscription(channels []string) *memorySubscription {
	channelMap := make(map[string]bool, len(channels))
	for _, ch := range channels {
		channelMap[ch] = true
	}

	return &memorySubscription{
		channels: channelMap,
		msgChan:  make(chan *Message, subscriptionBuffer),
		closeCh:  make(chan struct{}),
	}
}

func (m *memorySubscription) Channel() <-chan *Message {
	return m.msgChan
}

func (m *memorySubscription) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.closeCh)
		close(m.msgChan)
	}
	return nil
}

// sendMessage never blocks; a full buffer drops the message.
func (m *memorySubscription) sendMessage(msg *Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed || !m.channels[msg.Channel] {
		return
	}

	select {
	case m.msgChan <- msg:
	default:
	}
}

// PubSubHub is an in-process stand-in for Redis pubsub.
type PubSubHub struct {
	subscribers map[string][]*memorySubscription
	mu          sync.RWMutex
}

func NewPubSubHub() *PubSubHub {
	return &PubSubHub{
		subscribers: make(map[string][]*memorySubscription),
	}
}

func (h *PubSubHub) Subscribe(ctx context.Context, channels ...string) Subscription {
	sub := newMemorySubscription(channels)

	h.mu.Lock()
	for _, channel := range channels {
		h.subscribers[channel] = append(h.subscribers[channel], sub)
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closeCh:
		}
		h.remove(sub, channels)
	}()

	return sub
}

func (h *PubSubHub) remove(sub *memorySubscription, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, channel := range channels {
		subscribers := h.subscribers[channel]
		for i, s := range subscribers {
			if s == sub {
				h.subscribers[channel] = append(subscribers[:i:i], subscribers[i+1:]...)
				break
			}
		}
		if len(h.subscribers[channel]) == 0 {
			delete(h.subscribers, channel)
		}
	}
}

// Publish sends payload to every current subscriber of channel.
func (h *PubSubHub) Publish(channel, payload string) {
	h.mu.RLock()
	subscribers := make([]*memorySubscription, len(h.subscribers[channel]))
	copy(subscribers, h.subscribers[channel])
	h.mu.RUnlock()

	msg := &Message{Channel: channel, Payload: payload}
	for _, sub := range subscribers {
		sub.sendMessage(msg)
	}
}

// subscriberCount is used by tests to observe hub cleanup.
func (h *PubSubHub) subscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[channel])
}
