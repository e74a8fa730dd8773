// Package retrycontroller implements the per-server three-state failure
// backoff machine from spec.md §4.4: HEALTHY -> BACKING_OFF -> DORMANT.
// It is pure in-memory state, grounded in the same "single mutex-guarded
// map, one entry per key" shape the teacher uses for its connection map in
// internal/rcon_manager/rcon_manager.go, generalized to failure-state
// bookkeeping instead of live connections.
package retrycontroller

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Status is one of the three states a server's failure record can be in.
type Status string

const (
	StatusHealthy    Status = "HEALTHY"
	StatusBackingOff Status = "BACKING_OFF"
	StatusDormant    Status = "DORMANT"
)

// State is the tracked failure record for one serverId. A serverId absent
// from the controller's map is implicitly HEALTHY.
type State struct {
	ServerID            int
	ConsecutiveFailures int
	LastFailureAt       time.Time
	NextRetryAt         time.Time
	Status              Status
}

// Config tunes the backoff schedule. Zero-value fields fall back to the
// spec.md §4.4 defaults via applyDefaults.
type Config struct {
	MaxConsecutiveFailures int
	BackoffMultiplier      int
	MaxBackoffMinutes      int
	DormantRetryMinutes    int

	// OnTransition, if set, is invoked whenever a server's Status changes.
	// Used by internal/alerting to post a Discord notification when a
	// server enters or leaves DORMANT. Called after the controller's lock
	// is released, in the calling goroutine — callers that need the
	// notification off the hot path should make their handler
	// non-blocking (e.g. send over a buffered channel).
	OnTransition func(serverID int, from, to Status)
}

const baseDelaySeconds = 30

func (c Config) applyDefaults() Config {
	if c.MaxConsecutiveFailures == 0 {
		c.MaxConsecutiveFailures = 10
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2
	}
	if c.MaxBackoffMinutes == 0 {
		c.MaxBackoffMinutes = 30
	}
	if c.DormantRetryMinutes == 0 {
		c.DormantRetryMinutes = 60
	}
	return c
}

// Stats is the aggregate view exposed by GetStats. HealthyServers is left
// for the caller to fill in (totalKnownServers - TotalServersInFailureState)
// since the controller only tracks servers that have failed at least once;
// per the invariant in spec.md §3, a HEALTHY server is never in the map.
type Stats struct {
	TotalServersInFailureState int
	HealthyServers             int
	BackingOffServers          int
	DormantServers             int
}

// nowFunc is swappable in tests; production code always uses time.Now.
type nowFunc func() time.Time

// Controller is safe for concurrent use across distinct serverIds.
type Controller struct {
	cfg Config
	now nowFunc

	mu     sync.Mutex
	states map[int]*State
}

// New builds a Controller with the given tunables (zero-value fields take
// spec.md §4.4 defaults).
func New(cfg Config) *Controller {
	return &Controller{
		cfg:    cfg.applyDefaults(),
		now:    time.Now,
		states: make(map[int]*State),
	}
}

// RecordFailure increments consecutiveFailures for serverId, recomputes
// nextRetryAt and status, and logs on a status transition.
func (c *Controller) RecordFailure(serverID int) State {
	c.mu.Lock()

	now := c.now()
	st, ok := c.states[serverID]
	prevStatus := StatusHealthy
	if !ok {
		st = &State{ServerID: serverID}
		c.states[serverID] = st
	} else {
		prevStatus = st.Status
	}

	st.ConsecutiveFailures++
	st.LastFailureAt = now
	st.NextRetryAt = c.calculateNextRetry(st.ConsecutiveFailures, now)
	st.Status = c.determineRetryStatus(st.ConsecutiveFailures)

	result := *st
	transitioned := st.Status != prevStatus
	c.mu.Unlock()

	if transitioned {
		log.Warn().
			Int("serverId", serverID).
			Str("from", string(prevStatus)).
			Str("to", string(result.Status)).
			Int("consecutiveFailures", result.ConsecutiveFailures).
			Time("nextRetryAt", result.NextRetryAt).
			Msg("retry controller status transition")

		if c.cfg.OnTransition != nil {
			c.cfg.OnTransition(serverID, prevStatus, result.Status)
		}
	}

	return result
}

// calculateNextRetry implements spec.md §4.4's two-branch formula.
func (c *Controller) calculateNextRetry(n int, now time.Time) time.Time {
	if n >= c.cfg.MaxConsecutiveFailures {
		return now.Add(time.Duration(c.cfg.DormantRetryMinutes) * time.Minute)
	}

	multiplier := 1
	for i := 0; i < n-1; i++ {
		multiplier *= c.cfg.BackoffMultiplier
	}
	delaySeconds := baseDelaySeconds * multiplier
	maxSeconds := c.cfg.MaxBackoffMinutes * 60
	if delaySeconds > maxSeconds {
		delaySeconds = maxSeconds
	}
	return now.Add(time.Duration(delaySeconds) * time.Second)
}

// determineRetryStatus maps a failure count to a Status per spec.md §4.4.
func (c *Controller) determineRetryStatus(n int) Status {
	switch {
	case n == 0:
		return StatusHealthy
	case n < c.cfg.MaxConsecutiveFailures:
		return StatusBackingOff
	default:
		return StatusDormant
	}
}

// ShouldRetry reports whether a server in the given state is eligible for
// another attempt right now.
func (c *Controller) ShouldRetry(serverID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[serverID]
	if !ok {
		return true
	}
	if st.Status == StatusHealthy {
		return true
	}
	return !st.NextRetryAt.IsZero() && !c.now().Before(st.NextRetryAt)
}

// ResetFailureState removes serverId's tracking entry, logging "recovered"
// iff it had accumulated failures.
func (c *Controller) ResetFailureState(serverID int) {
	c.mu.Lock()

	st, ok := c.states[serverID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.states, serverID)
	prevStatus := st.Status
	priorFailures := st.ConsecutiveFailures
	c.mu.Unlock()

	if priorFailures > 0 {
		log.Info().Int("serverId", serverID).Int("priorFailures", priorFailures).Msg("server recovered")
	}

	if prevStatus != StatusHealthy && c.cfg.OnTransition != nil {
		c.cfg.OnTransition(serverID, prevStatus, StatusHealthy)
	}
}

// GetFailureState returns the current state and whether serverId is
// tracked at all (absent ⇒ implicitly HEALTHY).
func (c *Controller) GetFailureState(serverID int) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[serverID]
	if !ok {
		return State{ServerID: serverID, Status: StatusHealthy}, false
	}
	return *st, true
}

// GetStats aggregates the tracked states.
func (c *Controller) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{}
	for _, st := range c.states {
		stats.TotalServersInFailureState++
		switch st.Status {
		case StatusBackingOff:
			stats.BackingOffServers++
		case StatusDormant:
			stats.DormantServers++
		}
	}
	return stats
}
