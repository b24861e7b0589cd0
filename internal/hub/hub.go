// Package hub is the in-process broker that fans position and geofence events
// out to subscribers.
//
// A Hub is created explicitly and owned by whoever wires the service; there is
// no package level broker. Publish delivers one copy of the event to every
// subscription that was active when it started and returns once all callbacks
// have finished. Subscriber failures are reported to the hub's ErrorSink and
// never reach the publisher.
//
// A handler must not synchronously publish to a topic it is itself subscribed
// to: deliveries to one subscription are serialized, so that publish would wait
// on itself. Hand such work to a goroutine instead.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"assettracker/internal/model"
	"assettracker/internal/observability"
	"assettracker/internal/util"
)

// Topic names a stream of events
type Topic string

const (
	TopicPositionUpdate Topic = "positionUpdate"
	TopicGeofenceEvent  Topic = "geofenceEvent"
)

const defaultMaxConcurrency = 32

var (
	ErrClosed       = errors.New("hub closed")
	ErrUnknownTopic = errors.New("unknown topic")
	ErrPayloadType  = errors.New("payload type does not match topic")
	ErrNilHandler   = errors.New("nil handler")
)

// payloadCheck reports whether a payload is acceptable for a topic
type payloadCheck func(any) bool

var topics = map[Topic]payloadCheck{
	TopicPositionUpdate: func(p any) bool { _, ok := p.(model.PositionUpdate); return ok },
	TopicGeofenceEvent:  func(p any) bool { _, ok := p.(model.GeofenceEvent); return ok },
}

// Event is one published message as seen by a handler
type Event struct {
	Topic       Topic
	Payload     any
	PublishedAt time.Time
}

// Handler receives events for one subscription. A returned error or a panic
// is reported to the hub's ErrorSink.
type Handler func(ctx context.Context, ev Event) error

type Option func(*Hub)

func WithErrorSink(sink ErrorSink) Option {
	return func(h *Hub) {
		if sink != nil {
			h.sink = sink
		}
	}
}

// WithMaxConcurrency bounds how many callbacks one Publish runs at once
func WithMaxConcurrency(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxConcurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[Topic][]*Subscription // replaced wholesale on every change
	closed bool

	sink           ErrorSink
	maxConcurrency int
	logger         *slog.Logger
}

func New(opts ...Option) *Hub {
	h := &Hub{
		subs:           map[Topic][]*Subscription{},
		maxConcurrency: defaultMaxConcurrency,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub")
	if h.sink == nil {
		h.sink = NewLogSink(h.logger)
	}
	return h
}

// Subscribe registers handler for topic. The subscription is live as soon as
// Subscribe returns.
func (h *Hub) Subscribe(topic Topic, handler Handler) (*Subscription, error) {
	if _, ok := topics[topic]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	s := newSubscription(h, topic, util.ShortID(), handler)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	current := h.subs[topic]
	next := make([]*Subscription, len(current), len(current)+1)
	copy(next, current)
	h.subs[topic] = append(next, s)
	return s, nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.subs[s.topic]
	next := make([]*Subscription, 0, len(current))
	for _, other := range current {
		if other != s {
			next = append(next, other)
		}
	}
	if len(next) == 0 {
		delete(h.subs, s.topic)
		return
	}
	h.subs[s.topic] = next
}

// Publish delivers payload to every active subscriber of topic and waits for
// all of them. It fails only for hub level problems: a closed hub, an unknown
// topic or a payload of the wrong type.
func (h *Hub) Publish(ctx context.Context, topic Topic, payload any) error {
	check, ok := topics[topic]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	if !check(payload) {
		return fmt.Errorf("%w: %T on %q", ErrPayloadType, payload, topic)
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	snapshot := h.subs[topic]
	h.mu.RUnlock()

	start := time.Now()
	defer observability.ObservePublishLatency(start)
	observability.HubPublished.WithLabelValues(string(topic)).Inc()

	ev := Event{Topic: topic, Payload: payload, PublishedAt: start}

	switch len(snapshot) {
	case 0:
		return nil
	case 1:
		snapshot[0].deliver(ctx, ev)
		return nil
	}

	p := pool.New().WithMaxGoroutines(h.maxConcurrency)
	for _, s := range snapshot {
		p.Go(func() {
			s.deliver(ctx, ev)
		})
	}
	p.Wait()
	return nil
}

func (h *Hub) PublishPosition(ctx context.Context, u model.PositionUpdate) error {
	return h.Publish(ctx, TopicPositionUpdate, u)
}

func (h *Hub) PublishGeofence(ctx context.Context, ev model.GeofenceEvent) error {
	return h.Publish(ctx, TopicGeofenceEvent, ev)
}

func (h *Hub) report(err *SubscriberError) {
	observability.SubscriberErrors.WithLabelValues(string(err.Topic)).Inc()
	h.sink.HandleSubscriberError(err)
}

// Close deactivates every subscription. Later publishes and subscribes fail
// with ErrClosed; Unsubscribe on an old subscription is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	all := h.subs
	h.subs = map[Topic][]*Subscription{}
	h.mu.Unlock()

	n := 0
	for _, list := range all {
		for _, s := range list {
			s.deactivate()
			n++
		}
	}
	h.logger.Info("hub closed", "subscriptions", n)
}

// Stats returns the number of active subscriptions per topic
func (h *Hub) Stats() map[Topic]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[Topic]int, len(h.subs))
	for topic, list := range h.subs {
		out[topic] = len(list)
	}
	return out
}

// OnPosition adapts a typed callback to a Handler
func OnPosition(fn func(ctx context.Context, u model.PositionUpdate) error) Handler {
	return func(ctx context.Context, ev Event) error {
		u, ok := ev.Payload.(model.PositionUpdate)
		if !ok {
			return fmt.Errorf("%w: %T", ErrPayloadType, ev.Payload)
		}
		return fn(ctx, u)
	}
}

// OnGeofence adapts a typed callback to a Handler
func OnGeofence(fn func(ctx context.Context, ev model.GeofenceEvent) error) Handler {
	return func(ctx context.Context, ev Event) error {
		g, ok := ev.Payload.(model.GeofenceEvent)
		if !ok {
			return fmt.Errorf("%w: %T", ErrPayloadType, ev.Payload)
		}
		return fn(ctx, g)
	}
}
