// Package hub fans rehydrated events out to live subscriptions.
//
// Every subscription owns a bounded FIFO. Publish never waits for a
// subscriber: when a subscription's buffer is full its oldest queued event
// is discarded and the subscription's drop counter grows, so a slow reader
// only degrades its own stream.
package hub

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/pkg/telemetry"
)

// ErrClosed is returned by Next once the subscription has been closed
var ErrClosed = errors.New("hub: subscription closed")

// Hub is a process-wide multicast of events
type Hub struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	logger     *zap.Logger

	dropped     metric.Int64Counter
	subscribers metric.Int64UpDownCounter
}

// New creates a hub whose subscriptions buffer up to bufferSize events
func New(bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize < 1 {
		bufferSize = 1
	}

	meter := telemetry.Meter()
	dropped, _ := meter.Int64Counter("hub_events_dropped_total",
		metric.WithDescription("Events discarded because a subscriber buffer was full"))
	subscribers, _ := meter.Int64UpDownCounter("hub_subscribers",
		metric.WithDescription("Live hub subscriptions"))

	return &Hub{
		subs:        make(map[uint64]*Subscription),
		bufferSize:  bufferSize,
		logger:      logger.With(zap.String("component", "hub")),
		dropped:     dropped,
		subscribers: subscribers,
	}
}

// Publish delivers ev to every current subscription without blocking
func (h *Hub) Publish(ev events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.push(ev) {
			h.dropped.Add(context.Background(), 1)
		}
	}
}

// Subscribe registers a new subscription. It does not replay past events.
func (h *Hub) Subscribe() *Subscription {
	sub, _ := h.SubscribeWith(nil)
	return sub
}

// SubscribeWith runs snapshot and registers the subscription while holding
// the hub exclusively, so every event published after the snapshot was
// taken reaches the subscription. If snapshot fails nothing is registered.
func (h *Hub) SubscribeWith(snapshot func() error) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if snapshot != nil {
		if err := snapshot(); err != nil {
			return nil, err
		}
	}

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		hub:    h,
		buf:    make([]events.Event, 0, h.bufferSize),
		size:   h.bufferSize,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	h.subs[sub.id] = sub
	h.subscribers.Add(context.Background(), 1)

	h.logger.Debug("Subscription opened", zap.Uint64("subscription", sub.id), zap.Int("subscribers", len(h.subs)))
	return sub, nil
}

// Len returns the number of live subscriptions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[id]; !ok {
		return
	}
	delete(h.subs, id)
	h.subscribers.Add(context.Background(), -1)
	h.logger.Debug("Subscription closed", zap.Uint64("subscription", id), zap.Int("subscribers", len(h.subs)))
}

// Subscription is one reader's cursor into the hub
type Subscription struct {
	id  uint64
	hub *Hub

	mu      sync.Mutex
	buf     []events.Event
	size    int
	dropped uint64

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// ID identifies the subscription within its hub
func (s *Subscription) ID() uint64 {
	return s.id
}

// push queues ev and reports whether an older event had to be discarded
func (s *Subscription) push(ev events.Event) bool {
	s.mu.Lock()
	dropped := false
	if len(s.buf) == s.size {
		copy(s.buf, s.buf[1:])
		s.buf = s.buf[:len(s.buf)-1]
		s.dropped++
		dropped = true
	}
	s.buf = append(s.buf, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (s *Subscription) pop() (events.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 {
		return nil, false
	}
	ev := s.buf[0]
	s.buf[0] = nil
	s.buf = s.buf[1:]
	if len(s.buf) == 0 {
		s.buf = make([]events.Event, 0, s.size)
	}
	return ev, true
}

// Next returns the next queued event, waiting until one arrives, ctx is
// done, or the subscription is closed.
func (s *Subscription) Next(ctx context.Context) (events.Event, error) {
	for {
		select {
		case <-s.done:
			return nil, ErrClosed
		default:
		}

		if ev, ok := s.pop(); ok {
			return ev, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrClosed
		case <-s.notify:
		}
	}
}

// Dropped returns how many events were discarded for this subscription
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close deregisters the subscription and unblocks Next. It is idempotent.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.hub.remove(s.id)
	})
}
