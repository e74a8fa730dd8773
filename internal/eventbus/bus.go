// Package eventbus is a minimal concrete shape for the upstream event bus
// spec.md §6 names as a consumed (out of scope) collaborator: the core only
// ever subscribes to SERVER_AUTHENTICATED. It is generalized from the
// teacher's internal/event_manager/event_manager.go — same subscriber map
// guarded by one mutex, same buffered-queue-plus-fan-out-goroutine shape —
// narrowed from the teacher's full RCON/log event taxonomy (keyed by
// uuid.UUID server IDs with structured per-event-type payloads) to the
// single integer-keyed event this daemon's core actually consumes.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType identifies the kind of event carried on the bus.
type EventType string

// EventTypeServerAuthenticated is the only event spec.md §6 says the core
// consumes: it fires once an RCON session is authenticated out-of-band
// (e.g. by an admin-triggered connect), and the scheduler's event bridge
// reacts to it by running an immediate monitor pass.
const EventTypeServerAuthenticated EventType = "SERVER_AUTHENTICATED"

// Event is a single published notification.
type Event struct {
	Type      EventType
	ServerID  int
	Timestamp time.Time
}

type subscriber struct {
	types   map[EventType]struct{}
	channel chan Event
}

// Bus is a small pub/sub fan-out, safe for concurrent Publish/Subscribe/
// Unsubscribe from multiple goroutines.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*subscriber
	queue       chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBus starts the bus's fan-out goroutine, matching the teacher's
// NewEventManager's "start processEvents in the background" shape.
func NewBus(ctx context.Context, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	ctx, cancel := context.WithCancel(ctx)

	b := &Bus{
		subscribers: make(map[uuid.UUID]*subscriber),
		queue:       make(chan Event, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
	go b.run()
	return b
}

// Publish enqueues an event for fan-out; it never blocks the caller — a
// full queue drops the event with a warning, matching the teacher's
// PublishEvent behavior.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case b.queue <- evt:
	default:
		log.Warn().Str("eventType", string(evt.Type)).Int("serverID", evt.ServerID).Msg("eventbus: queue full, dropping event")
	}
}

// Subscribe registers a new subscriber filtered to the given types (empty
// ⇒ all types) and returns its id plus a receive-only channel of matching
// events. Call Unsubscribe(id) to stop receiving and release resources.
func (b *Bus) Subscribe(types []EventType, channelSize int) (uuid.UUID, <-chan Event) {
	if channelSize <= 0 {
		channelSize = 16
	}

	set := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}

	sub := &subscriber{types: set, channel: make(chan Event, channelSize)}
	id := uuid.New()

	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()

	return id, sub.channel
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// for an unknown id.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(sub.channel)
}

// Shutdown stops the fan-out goroutine and closes every subscriber channel.
func (b *Bus) Shutdown() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.channel)
		delete(b.subscribers, id)
	}
}

func (b *Bus) run() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case evt := <-b.queue:
			b.distribute(evt)
		}
	}
}

func (b *Bus) distribute(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subscribers {
		if len(sub.types) > 0 {
			if _, ok := sub.types[evt.Type]; !ok {
				continue
			}
		}
		select {
		case sub.channel <- evt:
		default:
			log.Warn().Str("subscriberID", id.String()).Str("eventType", string(evt.Type)).Msg("eventbus: subscriber channel full, dropping event")
		}
	}
}
