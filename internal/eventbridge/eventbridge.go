// Package eventbridge wires the upstream SERVER_AUTHENTICATED event to an
// immediate monitor pass, per spec.md §4.9's design note on resolving the
// scheduler/monitoring-executor cyclic dependency via explicit composition:
// cmd/sentineld constructs the monitoring executor and hands it both to
// this bridge and to the scheduler's executor table. The scheduler does not
// construct or own it, and the bridge never reaches back into the scheduler.
package eventbridge

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codycody31/rcon-sentinel/internal/eventbus"
)

// Monitor is the subset of executors.MonitoringExecutor the bridge calls.
type Monitor interface {
	ConnectToServerImmediately(ctx context.Context, serverID int, hasRconCredentials bool) error
}

// ServerRepo resolves the hasRconCredentials gate ConnectToServerImmediately
// requires, per spec.md §4.8.
type ServerRepo interface {
	HasRconCredentials(ctx context.Context, serverID int) (bool, error)
}

// Subscriber is the subset of eventbus.Bus the bridge needs.
type Subscriber interface {
	Subscribe(types []eventbus.EventType, channelSize int) (uuid.UUID, <-chan eventbus.Event)
	Unsubscribe(id uuid.UUID)
}

// Bridge subscribes to SERVER_AUTHENTICATED and, on the next tick,
// schedules Monitor.ConnectToServerImmediately for the reported server.
// Its failure is logged, never propagated, per spec.md §4.9.
type Bridge struct {
	bus     Subscriber
	monitor Monitor
	servers ServerRepo

	mu     sync.Mutex
	subID  uuid.UUID
	cancel context.CancelFunc
}

// New builds a Bridge. servers may be nil, in which case every event is
// treated as hasRconCredentials=true.
func New(bus Subscriber, monitor Monitor, servers ServerRepo) *Bridge {
	return &Bridge{bus: bus, monitor: monitor, servers: servers}
}

// Start subscribes to the bus and begins dispatching events. Safe to call
// only once per Bridge instance between Start/Stop pairs.
func (b *Bridge) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	id, ch := b.bus.Subscribe([]eventbus.EventType{eventbus.EventTypeServerAuthenticated}, 32)

	b.mu.Lock()
	b.subID = id
	b.cancel = cancel
	b.mu.Unlock()

	go b.run(runCtx, ch)
}

// Stop unsubscribes from the bus and stops the dispatch loop.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	id := b.subID
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.bus.Unsubscribe(id)
}

func (b *Bridge) run(ctx context.Context, ch <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			// Dispatched on the next tick of its own goroutine rather than
			// inline, so a slow connect attempt never stalls delivery of
			// the next queued authentication event.
			go b.handle(evt.ServerID)
		}
	}
}

func (b *Bridge) handle(serverID int) {
	hasRcon := true
	if b.servers != nil {
		var err error
		hasRcon, err = b.servers.HasRconCredentials(context.Background(), serverID)
		if err != nil {
			log.Warn().Int("serverID", serverID).Err(err).Msg("eventbridge: failed to resolve hasRconCredentials")
			return
		}
	}

	if err := b.monitor.ConnectToServerImmediately(context.Background(), serverID, hasRcon); err != nil {
		log.Warn().Int("serverID", serverID).Err(err).Msg("eventbridge: immediate connect failed")
	}
}
