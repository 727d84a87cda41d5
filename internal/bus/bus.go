// Package bus implements the in-process topic bus: glob-pattern pub/sub
// with either synchronous (publisher-thread) or asynchronous (single
// dedicated delivery worker) dispatch. It is the one collaborator every
// other core component talks through — Poll Feeds publish snapshots and
// lifecycle events onto it, and subscribers (such as the cross-source
// comparator) react to them.
package bus

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler processes one Event. A Handler that panics is never allowed to
// take down the bus: invoke recovers the panic and logs it with the topic
// and subscription id, without propagating it to the publisher.
type Handler func(Event)

// Event is one message flowing through the bus.
type Event struct {
	Topic     string
	Source    string
	Payload   any
	Timestamp time.Time
}

// Subscription is the handle returned by Subscribe, passed back to
// Unsubscribe to remove it. Its zero value is not a valid subscription.
type Subscription struct {
	id      string
	pattern string
}

type subscription struct {
	Subscription
	handler Handler
}

// Mode selects how matched handlers are invoked.
type Mode int

const (
	// Sync invokes every matched handler on the publisher's goroutine, in
	// subscription-registration order. Publish returns once every handler
	// has returned.
	Sync Mode = iota
	// Async enqueues every matched (subscription, event) pair on an
	// unbounded FIFO drained by exactly one dedicated delivery goroutine.
	// Publish returns immediately.
	Async
)

// Bus is a thread-safe pub/sub dispatcher. The zero value is not usable;
// construct with New.
type Bus struct {
	mode Mode
	log  *slog.Logger

	mu   sync.Mutex
	subs []subscription

	// async delivery queue: a classic condvar-guarded unbounded FIFO,
	// drained by exactly one worker started in New when mode == Async.
	qmu    sync.Mutex
	qcond  *sync.Cond
	queue  *list.List
	closed bool
}

type queued struct {
	sub   subscription
	event Event
}

// New constructs a Bus in the given dispatch mode. Async mode starts its
// single delivery goroutine immediately; there is no separate Start call.
func New(mode Mode, log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	b := &Bus{mode: mode, log: log}
	if mode == Async {
		b.queue = list.New()
		b.qcond = sync.NewCond(&b.qmu)
		go b.deliveryLoop()
	}
	return b
}

// Subscribe registers handler to be invoked for every future Publish whose
// topic matches pattern (glob syntax: '*' matches any run of characters
// including dots, '?' matches exactly one character). Duplicate
// (pattern, handler) registrations are permitted; each receives every
// matching event independently.
func (b *Bus) Subscribe(pattern string, handler Handler) Subscription {
	sub := subscription{
		Subscription: Subscription{id: uuid.NewString(), pattern: pattern},
		handler:      handler,
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub.Subscription
}

// Unsubscribe removes the given subscription. It is a no-op if the
// subscription is already absent (already removed, or from a different
// bus instance).
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == sub.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish builds an Event with timestamp = now and dispatches it to every
// subscription whose pattern matches topic at the moment Publish is
// called. Subscriptions added or removed concurrently never affect that
// snapshot: the matching set is read once, under the lock, before any
// handler runs.
func (b *Bus) Publish(topic, source string, payload any) {
	event := Event{Topic: topic, Source: source, Payload: payload, Timestamp: time.Now()}

	b.mu.Lock()
	matched := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if matchGlob(s.pattern, topic) {
			matched = append(matched, s)
		}
	}
	b.mu.Unlock()

	switch b.mode {
	case Async:
		b.enqueueAll(matched, event)
	default:
		for _, s := range matched {
			b.invoke(s, event)
		}
	}
}

// PublishEvent publishes a pre-built Event's fields. Equivalent to calling
// Publish with the event's Topic/Source/Payload — the Timestamp on event
// is discarded in favor of a fresh now, matching Publish's contract.
func (b *Bus) PublishEvent(event Event) {
	b.Publish(event.Topic, event.Source, event.Payload)
}

func (b *Bus) invoke(s subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("bus: handler panicked", "topic", event.Topic, "subscription", s.id, "panic", r)
		}
	}()
	s.handler(event)
}

func (b *Bus) enqueueAll(subs []subscription, event Event) {
	if len(subs) == 0 {
		return
	}
	b.qmu.Lock()
	for _, s := range subs {
		b.queue.PushBack(queued{sub: s, event: event})
	}
	b.qmu.Unlock()
	b.qcond.Signal()
}

// deliveryLoop is the bus's single async delivery worker. Exactly one
// goroutine ever runs this loop for a given Bus, so handlers registered
// for async delivery never run concurrently with each other.
func (b *Bus) deliveryLoop() {
	for {
		b.qmu.Lock()
		for b.queue.Len() == 0 && !b.closed {
			b.qcond.Wait()
		}
		if b.queue.Len() == 0 && b.closed {
			b.qmu.Unlock()
			return
		}
		front := b.queue.Remove(b.queue.Front()).(queued)
		b.qmu.Unlock()

		b.invoke(front.sub, front.event)
	}
}

// Close signals the async delivery worker to exit once its queue has
// drained — events already enqueued are still delivered, nothing is
// discarded. It is a no-op for a Sync bus. Close itself does not block;
// callers that need to wait for drain completion must synchronize
// separately (e.g. via a sentinel event).
func (b *Bus) Close() {
	if b.mode != Async {
		return
	}
	b.qmu.Lock()
	b.closed = true
	b.qmu.Unlock()
	b.qcond.Broadcast()
}
