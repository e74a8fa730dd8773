// Package commandresolver maps (serverId, logicalKind) to a concrete
// server-mod command string via a layered lookup, with memoization and
// capability inference, per spec.md §4.5. The layered-fallback shape and
// the memoization-cache-keyed-by-composite-key pattern are grounded in
// the teacher's command dispatch in internal/rcon_manager/rcon_manager.go
// (ExecuteCommandWithOptions), adapted from "retry a command" bookkeeping
// to "cache a resolved command string" bookkeeping.
package commandresolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ConfigRepo is the out-of-scope external collaborator spec.md §6 names
// as ServerConfigRepo: layered string lookups, each returning ("", false)
// when absent.
type ConfigRepo interface {
	GetServerConfig(ctx context.Context, serverID int, key string) (string, bool)
	GetModDefault(ctx context.Context, game, key string) (string, bool)
	GetServerConfigDefault(ctx context.Context, key string) (string, bool)
}

// GameLookup resolves a serverId to the game tag ConfigRepo.GetModDefault
// needs; it is a thin seam so the resolver doesn't depend on ServerRepo
// directly.
type GameLookup interface {
	GameTagFor(serverID int) string
}

const literalFallback = "say"

// Capabilities describes what a resolved command string supports.
type Capabilities struct {
	SupportsBatch      bool
	MaxBatchSize       int
	RequiresHashPrefix bool
}

var capabilityTable = []struct {
	prefixes []string
	caps     Capabilities
}{
	{[]string{"hlx_amx_bulkpsay", "amx_bulkpsay"}, Capabilities{SupportsBatch: true, MaxBatchSize: 8, RequiresHashPrefix: true}},
	{[]string{"hlx_sm_psay"}, Capabilities{SupportsBatch: true, MaxBatchSize: 32}},
	{[]string{"hlx_amx_psay"}, Capabilities{MaxBatchSize: 1, RequiresHashPrefix: true}},
	{[]string{"ms_psay", "hlx_psay", "ma_hlx_psay"}, Capabilities{MaxBatchSize: 1}},
	{[]string{"amx_psay", "amx_say", "amx_tell", "amx_pm"}, Capabilities{MaxBatchSize: 1, RequiresHashPrefix: true}},
}

// classifyCapabilities returns the longest matching prefix's capability
// row, or the default {false, 1, false} if nothing matches.
func classifyCapabilities(command string) Capabilities {
	best := Capabilities{MaxBatchSize: 1}
	bestLen := -1

	for _, row := range capabilityTable {
		for _, prefix := range row.prefixes {
			if strings.HasPrefix(command, prefix) && len(prefix) > bestLen {
				best = row.caps
				bestLen = len(prefix)
			}
		}
	}
	return best
}

type cacheKey struct {
	serverID int
	kind     string
}

// Resolver implements the layered command resolution described above.
// CacheInvalidator, when set, is notified on every clear so peer
// instances sharing the same backing config can drop their own copies.
type Resolver struct {
	repo       ConfigRepo
	games      GameLookup
	invalidate CacheInvalidator

	mu       sync.Mutex
	commands map[cacheKey]string
	caps     map[cacheKey]Capabilities
	inflight singleflight.Group
}

// CacheInvalidator publishes cache-clear notifications to other
// instances sharing the same config store, via valkey pub/sub.
type CacheInvalidator interface {
	PublishClearAll(ctx context.Context) error
	PublishClearServer(ctx context.Context, serverID int) error
}

// New builds a Resolver. invalidator may be nil for a single-instance
// deployment with no cross-instance cache to invalidate.
func New(repo ConfigRepo, games GameLookup, invalidator CacheInvalidator) *Resolver {
	return &Resolver{
		repo:       repo,
		games:      games,
		invalidate: invalidator,
		commands:   make(map[cacheKey]string),
		caps:       make(map[cacheKey]Capabilities),
	}
}

// GetCommand resolves (serverID, kind) to a concrete command string,
// consulting the layered lookup only on a cache miss.
func (r *Resolver) GetCommand(ctx context.Context, serverID int, kind string) (string, Capabilities) {
	key := cacheKey{serverID: serverID, kind: kind}

	r.mu.Lock()
	if cmd, ok := r.commands[key]; ok {
		caps := r.caps[key]
		r.mu.Unlock()
		return cmd, caps
	}
	r.mu.Unlock()

	// singleflight collapses concurrent first-time resolutions for the
	// same (serverID, kind) into exactly one downstream repository read,
	// per spec.md §8's command-resolver memoization property.
	groupKey := fmt.Sprintf("%d:%s", serverID, kind)
	v, _, _ := r.inflight.Do(groupKey, func() (interface{}, error) {
		r.mu.Lock()
		if cmd, ok := r.commands[key]; ok {
			caps := r.caps[key]
			r.mu.Unlock()
			return resolved{cmd, caps}, nil
		}
		r.mu.Unlock()

		cmd := r.resolve(ctx, serverID, kind)
		caps := classifyCapabilities(cmd)

		r.mu.Lock()
		r.commands[key] = cmd
		r.caps[key] = caps
		r.mu.Unlock()

		return resolved{cmd, caps}, nil
	})

	res := v.(resolved)
	return res.command, res.caps
}

type resolved struct {
	command string
	caps    Capabilities
}

// resolve runs the four-layer fallback from spec.md §4.5. Empty or
// whitespace-only values at each layer are treated as absent.
func (r *Resolver) resolve(ctx context.Context, serverID int, kind string) string {
	if v, ok := r.repo.GetServerConfig(ctx, serverID, kind); ok && nonEmpty(v) {
		return v
	}

	game := ""
	if r.games != nil {
		game = r.games.GameTagFor(serverID)
	}
	if game != "" {
		if v, ok := r.repo.GetModDefault(ctx, game, kind); ok && nonEmpty(v) {
			return v
		}
	}

	if v, ok := r.repo.GetServerConfigDefault(ctx, kind); ok && nonEmpty(v) {
		return v
	}

	return literalFallback
}

func nonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

// ClearCache evicts every memoized command and capability entry, and
// notifies peer instances if a CacheInvalidator is configured.
func (r *Resolver) ClearCache(ctx context.Context) {
	r.ClearCacheLocal()

	if r.invalidate != nil {
		r.invalidate.PublishClearAll(ctx)
	}
}

// ClearServerCache evicts only entries whose key begins with serverID, and
// notifies peer instances if a CacheInvalidator is configured.
func (r *Resolver) ClearServerCache(ctx context.Context, serverID int) {
	r.ClearServerCacheLocal(serverID)

	if r.invalidate != nil {
		r.invalidate.PublishClearServer(ctx, serverID)
	}
}

// ClearCacheLocal evicts every memoized entry without publishing a
// cross-instance invalidation notice. Used by the CacheInvalidator's
// receive side to apply a peer's invalidation without echoing it back.
func (r *Resolver) ClearCacheLocal() {
	r.mu.Lock()
	r.commands = make(map[cacheKey]string)
	r.caps = make(map[cacheKey]Capabilities)
	r.mu.Unlock()
}

// ClearServerCacheLocal evicts serverID's entries without publishing a
// cross-instance invalidation notice.
func (r *Resolver) ClearServerCacheLocal(serverID int) {
	r.mu.Lock()
	for key := range r.commands {
		if key.serverID == serverID {
			delete(r.commands, key)
			delete(r.caps, key)
		}
	}
	r.mu.Unlock()
}
