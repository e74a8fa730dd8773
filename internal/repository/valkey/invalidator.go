// Package valkey provides the cross-instance cache-invalidation channel
// commandresolver.CacheInvalidator needs, per spec.md §4.5's note that
// multiple daemon instances sharing one config store must invalidate each
// other's resolved-command memoization cache. It is grounded in
// internal/valkey/client.go's Config/NewClient shape, extended with the
// pub/sub primitives that client never needed.
package valkey

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"
)

const invalidationChannel = "rcon-sentinel:command-cache:invalidate"

const (
	invalidateAll = "*"
)

// Config holds the Valkey connection parameters, identical in shape to
// internal/valkey/client.go's Config.
type Config struct {
	Host     string
	Port     int
	Password string
	Database int
}

// Invalidator publishes and listens for command-cache invalidation
// messages on a shared Valkey pub/sub channel, so that clearing the cache
// on one daemon instance propagates to its peers.
type Invalidator struct {
	client valkey.Client

	mu       sync.Mutex
	handlers []func(serverID int, clearAll bool)

	cancel context.CancelFunc
}

// NewInvalidator connects to Valkey and begins listening for invalidation
// messages in the background. Call Close to stop listening.
func NewInvalidator(cfg Config) (*Invalidator, error) {
	address := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	opts := valkey.ClientOption{
		InitAddress: []string{address},
		SelectDB:    cfg.Database,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("valkey invalidator: create client: %w", err)
	}

	inv := &Invalidator{client: client}

	ctx, cancel := context.WithCancel(context.Background())
	inv.cancel = cancel
	go inv.listen(ctx)

	return inv, nil
}

// OnInvalidate registers a callback invoked whenever a peer instance
// publishes an invalidation message. clearAll is true for a full-cache
// clear; otherwise serverID names the single server whose cached entries
// should be dropped.
func (inv *Invalidator) OnInvalidate(fn func(serverID int, clearAll bool)) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.handlers = append(inv.handlers, fn)
}

// PublishClearAll satisfies commandresolver.CacheInvalidator.
func (inv *Invalidator) PublishClearAll(ctx context.Context) error {
	cmd := inv.client.B().Publish().Channel(invalidationChannel).Message(invalidateAll).Build()
	return inv.client.Do(ctx, cmd).Error()
}

// PublishClearServer satisfies commandresolver.CacheInvalidator.
func (inv *Invalidator) PublishClearServer(ctx context.Context, serverID int) error {
	cmd := inv.client.B().Publish().Channel(invalidationChannel).Message(fmt.Sprintf("%d", serverID)).Build()
	return inv.client.Do(ctx, cmd).Error()
}

// Close stops the background listener and closes the underlying client.
func (inv *Invalidator) Close() {
	if inv.cancel != nil {
		inv.cancel()
	}
	inv.client.Close()
}

func (inv *Invalidator) listen(ctx context.Context) {
	for ctx.Err() == nil {
		err := inv.client.Receive(ctx, inv.client.B().Subscribe().Channel(invalidationChannel).Build(), func(msg valkey.PubSubMessage) {
			inv.dispatch(msg.Message)
		})
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("valkey invalidator: subscription ended, resubscribing")
		}
	}
}

func (inv *Invalidator) dispatch(payload string) {
	clearAll := payload == invalidateAll

	var serverID int
	if !clearAll {
		if _, err := fmt.Sscanf(payload, "%d", &serverID); err != nil {
			log.Warn().Str("payload", payload).Msg("valkey invalidator: malformed invalidation payload")
			return
		}
	}

	inv.mu.Lock()
	handlers := make([]func(int, bool), len(inv.handlers))
	copy(handlers, inv.handlers)
	inv.mu.Unlock()

	for _, h := range handlers {
		h(serverID, clearAll)
	}
}
