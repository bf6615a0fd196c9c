package event

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/revview/internal/event/topic"
)

// Subscription is a registered handler.
type Subscription struct {
	id       string
	pattern  topic.Topic
	handler  Handler
	priority Priority
	seq      uint64
	active   atomic.Bool
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() string { return s.id }

// IsActive returns false once the subscription has been removed.
func (s *Subscription) IsActive() bool { return s.active.Load() }

// SubscriptionOption configures a subscription.
type SubscriptionOption func(*Subscription)

// WithPriority sets the handler priority.
func WithPriority(p Priority) SubscriptionOption {
	return func(s *Subscription) { s.priority = p }
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithErrorHandler sets the function receiving handler failures.
func WithErrorHandler(h ErrorHandler) BusOption {
	return func(b *Bus) { b.onError = h }
}

// Bus delivers events synchronously to every subscription whose pattern
// matches the event's topic, in priority order then subscription order.
// Handlers run in the publisher's goroutine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	seq    uint64
	closed bool

	onError ErrorHandler

	published atomic.Uint64
	delivered atomic.Uint64
	errors    atomic.Uint64
	panics    atomic.Uint64
}

// NewBus creates a new event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{subs: make(map[string]*Subscription)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for events whose topic matches pattern.
func (b *Bus) Subscribe(pattern topic.Topic, handler Handler, opts ...SubscriptionOption) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if !pattern.IsValid() {
		return nil, ErrInvalidTopic
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	b.seq++
	sub := &Subscription{
		id:       uuid.NewString(),
		pattern:  pattern,
		handler:  handler,
		priority: PriorityNormal,
		seq:      b.seq,
	}
	for _, opt := range opts {
		opt(sub)
	}
	sub.active.Store(true)
	b.subs[sub.id] = sub
	return sub, nil
}

// SubscribeFunc is a convenience method for subscribing with a function handler.
func (b *Bus) SubscribeFunc(pattern topic.Topic, fn HandlerFunc, opts ...SubscriptionOption) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.Subscribe(pattern, fn, opts...)
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return ErrSubscriptionNotFound
	}
	sub.active.Store(false)
	delete(b.subs, sub.id)
	return nil
}

// Publish delivers event to every matching handler before returning.
// Handler failures do not stop delivery; they are counted and passed to
// the error handler.
func (b *Bus) Publish(ctx context.Context, event any) error {
	tp, ok := event.(TopicProvider)
	if !ok || tp.EventTopic() == "" {
		return ErrInvalidEvent
	}
	eventTopic := tp.EventTopic()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	var matched []*Subscription
	for _, sub := range b.subs {
		if eventTopic.Matches(sub.pattern) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	b.published.Add(1)
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].priority != matched[j].priority {
			return matched[i].priority < matched[j].priority
		}
		return matched[i].seq < matched[j].seq
	})

	for _, sub := range matched {
		if !sub.IsActive() {
			continue
		}
		if err := b.deliver(ctx, sub, eventTopic, event); err != nil {
			b.report(err)
			continue
		}
		b.delivered.Add(1)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, sub *Subscription, t topic.Topic, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			err = &PanicError{
				SubscriptionID: sub.id,
				Topic:          t.String(),
				Value:          r,
				Stack:          string(debug.Stack()),
			}
		}
	}()

	if err := sub.handler.Handle(ctx, event); err != nil {
		b.errors.Add(1)
		return &HandlerError{SubscriptionID: sub.id, Topic: t.String(), Err: err}
	}
	return nil
}

func (b *Bus) report(err error) {
	if b.onError != nil {
		b.onError(err)
	}
}

// Close removes every subscription and rejects further use.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		sub.active.Store(false)
		delete(b.subs, id)
	}
	b.closed = true
}

// Stats returns current bus statistics.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	active := len(b.subs)
	b.mu.RUnlock()
	return Stats{
		EventsPublished:   b.published.Load(),
		EventsDelivered:   b.delivered.Load(),
		HandlerErrors:     b.errors.Load(),
		HandlerPanics:     b.panics.Load(),
		ActiveSubscribers: active,
	}
}
