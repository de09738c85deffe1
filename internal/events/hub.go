package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/saeid-a/CareMarketBack/internal/idgen"
	"go.uber.org/zap"
)

type subscription struct {
	id      uint64
	handler Handler
}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[Topic][]subscription
	nextID      uint64

	ids         idgen.Generator
	now         func() time.Time
	broadcaster Broadcaster
	logger      *zap.Logger
}

type Option func(*Hub)

func WithBroadcaster(b Broadcaster) Option {
	return func(h *Hub) { h.broadcaster = b }
}

func WithIDGenerator(g idgen.Generator) Option {
	return func(h *Hub) { h.ids = g }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func NewHub(logger *zap.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		subscribers: make(map[Topic][]subscription),
		ids:         idgen.UUID{},
		now:         time.Now,
		logger:      logger.Named("events"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetBroadcaster swaps the cross-context channel. Passing nil disables it.
func (h *Hub) SetBroadcaster(b Broadcaster) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcaster = b
}

func (h *Hub) Subscribe(topic Topic, handler Handler) (func(), error) {
	if !topic.Valid() {
		return nil, fmt.Errorf("subscribe %q: %w", topic, ErrUnknownTopic)
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %q: nil handler", topic)
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subscribers[topic] = append(h.subscribers[topic], subscription{id: id, handler: handler})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(topic, id) })
	}, nil
}

func (h *Hub) remove(topic Topic, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[topic]
	for i, sub := range subs {
		if sub.id == id {
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			h.subscribers[topic] = next
			return
		}
	}
}

// SubscriberCount is the number of live handlers for topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}

func (h *Hub) Publish(ctx context.Context, topic Topic, payload any) (Event, error) {
	if !topic.Valid() {
		return Event{}, fmt.Errorf("publish %q: %w", topic, ErrUnknownTopic)
	}

	evt := Event{
		ID:        h.ids.NewID(),
		Topic:     topic,
		Timestamp: h.now().UTC(),
		Payload:   payload,
	}

	h.mu.RLock()
	subs := h.subscribers[topic]
	broadcaster := h.broadcaster
	h.mu.RUnlock()

	for _, sub := range subs {
		h.dispatch(ctx, sub, evt)
	}

	if broadcaster != nil {
		if err := broadcaster.Broadcast(ctx, evt); err != nil {
			h.logger.Warn("cross-context broadcast failed",
				zap.String("topic", string(topic)),
				zap.String("event_id", evt.ID),
				zap.Error(err))
		}
	}

	return evt, nil
}

func (h *Hub) dispatch(ctx context.Context, sub subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("event handler panicked",
				zap.String("topic", string(evt.Topic)),
				zap.String("event_id", evt.ID),
				zap.Uint64("subscription", sub.id),
				zap.Any("panic", r))
		}
	}()

	if err := sub.handler(ctx, evt); err != nil {
		h.logger.Warn("event handler failed",
			zap.String("topic", string(evt.Topic)),
			zap.String("event_id", evt.ID),
			zap.Uint64("subscription", sub.id),
			zap.Error(err))
	}
}
