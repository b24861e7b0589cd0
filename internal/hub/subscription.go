package hub

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"github.com/tevino/abool/v2"

	"assettracker/internal/observability"
)

// Subscription is the handle returned by Subscribe
type Subscription struct {
	id      string
	topic   Topic
	handler Handler
	hub     *Hub

	active *abool.AtomicBool
	// serializes deliveries; Unsubscribe never takes it
	deliverMu sync.Mutex
}

func newSubscription(h *Hub, topic Topic, id string, handler Handler) *Subscription {
	return &Subscription{
		id:      id,
		topic:   topic,
		handler: handler,
		hub:     h,
		active:  abool.NewBool(true),
	}
}

func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) Topic() Topic {
	return s.topic
}

func (s *Subscription) Active() bool {
	return s.active.IsSet()
}

// Unsubscribe stops deliveries. Once it returns, no Publish that starts later
// reaches this subscription; a publish already in progress may still run the
// callback. It never waits for callbacks.
// It is safe to call more than once or from inside the subscription's own
// handler, and it is a no-op after the hub is closed.
func (s *Subscription) Unsubscribe() {
	if !s.active.SetToIf(true, false) {
		return
	}
	s.hub.remove(s)
}

func (s *Subscription) deactivate() {
	s.active.UnSet()
}

func (s *Subscription) deliver(ctx context.Context, ev Event) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if !s.active.IsSet() {
		return
	}
	observability.HubDeliveries.WithLabelValues(string(s.topic)).Inc()

	var err error
	var pc panics.Catcher
	pc.Try(func() {
		err = s.handler(ctx, ev)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	if err != nil {
		s.hub.report(&SubscriberError{Topic: s.topic, SubscriptionID: s.id, Err: err})
	}
}
