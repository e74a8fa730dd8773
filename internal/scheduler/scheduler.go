// Package scheduler owns cron-driven scheduled commands: server filtering,
// per-server concurrency caps, retries, and execution history, per spec.md
// §4.9. It is grounded in arkeep-io-arkeep/server/internal/scheduler/
// scheduler.go's gocron-wrapping shape (one gocron job per config entry,
// tagged by ID, addJob/runJob split between "how a tick is scheduled" and
// "what happens on a tick"), generalized from arkeep's single backup-policy
// job type to this spec's server-filtered, concurrency-capped, multi-server
// fan-out per tick.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/codycody31/rcon-sentinel/internal/eventbridge"
	"github.com/codycody31/rcon-sentinel/internal/executors"
	"github.com/codycody31/rcon-sentinel/internal/models"
	"github.com/codycody31/rcon-sentinel/internal/rconerrors"
)

const historyCap = 100

// ServerRepo is the out-of-scope ServerRepo.findActiveServersWithRcon
// collaborator from spec.md §6.
type ServerRepo interface {
	FindActiveServersWithRcon(ctx context.Context) ([]models.ServerInfo, error)
}

// Config is the ScheduleConfig configuration surface from spec.md §6.
type Config struct {
	Enabled                bool
	DefaultTimeoutMs       int
	DefaultRetryOnFailure  bool
	DefaultMaxRetries      int
	HistoryRetentionHours  int
	MaxConcurrentPerServer int
}

func (c Config) applyDefaults() Config {
	if c.MaxConcurrentPerServer <= 0 {
		c.MaxConcurrentPerServer = 1
	}
	if c.DefaultTimeoutMs <= 0 {
		c.DefaultTimeoutMs = 10_000
	}
	return c
}

// ScheduleJob is the runtime record owning one ScheduledCommand, its cron
// handle, running stats, and a bounded circular history, per spec.md §3.
type ScheduleJob struct {
	command models.ScheduledCommand

	mu      sync.Mutex
	stats   models.JobStats
	history []models.ScheduleExecutionResult
}

func (j *ScheduleJob) recordResult(res models.ScheduleExecutionResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.stats.Total++
	if res.Status == models.ExecutionSuccess {
		j.stats.Successful++
	} else {
		j.stats.Failed++
	}
	j.stats.LastExecutionStart = res.StartTime
	j.stats.LastExecutionEnd = res.EndTime
	j.stats.LastExecutionDuration = res.Duration

	j.history = append(j.history, res)
	if len(j.history) > historyCap {
		j.history = j.history[len(j.history)-historyCap:]
	}
}

// Stats returns a snapshot of this job's running tally.
func (j *ScheduleJob) Stats() models.JobStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// History returns a copy of the most recent (at most 100) execution results.
func (j *ScheduleJob) History() []models.ScheduleExecutionResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.ScheduleExecutionResult, len(j.history))
	copy(out, j.history)
	return out
}

// Scheduler is the state machine (stopped -> started -> stopped) from
// spec.md §4.9.
type Scheduler struct {
	cfg     Config
	servers ServerRepo
	bridge  *eventbridge.Bridge

	mu      sync.Mutex
	running bool
	execs   map[models.CommandKind]executors.Executor
	jobs    map[string]*ScheduleJob

	concMu    sync.Mutex
	semas     map[int]*semaphore.Weighted
	executing map[string]map[int]struct{} // scheduleID -> serverIDs currently executing

	cron gocron.Scheduler
}

// New builds a Scheduler bound to servers for the active-server lookup and
// (optionally) bridge for the SERVER_AUTHENTICATED immediate-monitor hook.
func New(cfg Config, servers ServerRepo, bridge *eventbridge.Bridge) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, rconerrors.Wrap(rconerrors.KindExecutionFailed, err, "scheduler: create gocron scheduler")
	}

	return &Scheduler{
		cfg:       cfg.applyDefaults(),
		servers:   servers,
		bridge:    bridge,
		execs:     make(map[models.CommandKind]executors.Executor),
		jobs:      make(map[string]*ScheduleJob),
		semas:     make(map[int]*semaphore.Weighted),
		executing: make(map[string]map[int]struct{}),
		cron:      cron,
	}, nil
}

// RegisterExecutor makes e available to schedules whose command type
// matches e.Type(). Call before Start.
func (s *Scheduler) RegisterExecutor(e executors.Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs[e.Type()] = e
}

// Start is a no-op if already started or if cfg.Enabled is false. It
// registers every enabled schedule, starts all cron handles, and
// subscribes the event bridge (if any) to SERVER_AUTHENTICATED.
func (s *Scheduler) Start(ctx context.Context, schedules []models.ScheduledCommand) error {
	s.mu.Lock()
	if s.running || !s.cfg.Enabled {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	for _, sched := range schedules {
		if !sched.Enabled {
			continue
		}
		if err := s.RegisterSchedule(sched); err != nil {
			log.Warn().Str("scheduleID", sched.ID).Err(err).Msg("scheduler: failed to register schedule at startup")
		}
	}

	s.cron.Start()

	if s.bridge != nil {
		s.bridge.Start(ctx)
	}

	log.Info().Int("schedules", len(s.jobs)).Msg("scheduler started")
	return nil
}

// Stop unsubscribes the event bridge, stops every cron task (tolerating
// individual stop errors), and clears all maps.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	jobIDs := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		jobIDs = append(jobIDs, id)
	}
	s.jobs = make(map[string]*ScheduleJob)
	s.mu.Unlock()

	if s.bridge != nil {
		s.bridge.Stop()
	}

	for _, id := range jobIDs {
		if err := s.cron.RemoveByTags(id); err != nil {
			log.Warn().Str("scheduleID", id).Err(err).Msg("scheduler: error removing cron task on stop")
		}
	}
	if err := s.cron.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("scheduler: error shutting down cron scheduler")
	}

	s.concMu.Lock()
	s.executing = make(map[string]map[int]struct{})
	s.semas = make(map[int]*semaphore.Weighted)
	s.concMu.Unlock()

	log.Info().Msg("scheduler stopped")
}

// RegisterSchedule validates and registers one ScheduledCommand, per
// spec.md §4.9. Malformed or unresolvable schedules are skipped with a
// warning rather than returned as a hard error, with two exceptions: a
// duplicate ID, which is a caller bug and surfaces as SCHEDULE_ALREADY_EXISTS,
// and a cron expression gocron.NewJob rejects, which surfaces as
// INVALID_CRON_EXPRESSION.
func (s *Scheduler) RegisterSchedule(sched models.ScheduledCommand) error {
	s.mu.Lock()
	if _, exists := s.jobs[sched.ID]; exists {
		s.mu.Unlock()
		return rconerrors.New(rconerrors.KindScheduleAlreadyExists, "scheduler: schedule %q already registered", sched.ID)
	}
	s.mu.Unlock()

	if !validCronExpression(sched.CronExpression) {
		log.Warn().Str("scheduleID", sched.ID).Str("cron", sched.CronExpression).Msg("scheduler: invalid cron expression, skipping schedule")
		return nil
	}

	s.mu.Lock()
	executor, ok := s.execs[sched.Command.Type]
	s.mu.Unlock()
	if !ok {
		log.Warn().Str("scheduleID", sched.ID).Str("type", string(sched.Command.Type)).Msg("scheduler: no executor for command type, skipping schedule")
		return nil
	}

	if !executor.Validate(sched) {
		log.Warn().Str("scheduleID", sched.ID).Msg("scheduler: schedule failed executor validation, skipping")
		return nil
	}

	job := &ScheduleJob{command: sched}
	withSeconds := len(strings.Fields(sched.CronExpression)) == 6

	scheduleID := sched.ID
	_, err := s.cron.NewJob(
		gocron.CronJob(sched.CronExpression, withSeconds),
		gocron.NewTask(func() { s.executeSchedule(scheduleID) }),
		gocron.WithTags(sched.ID),
	)
	if err != nil {
		return rconerrors.Wrap(rconerrors.KindInvalidCronExpression, err, "scheduler: register cron job for %q", sched.ID)
	}

	s.mu.Lock()
	s.jobs[sched.ID] = job
	s.mu.Unlock()

	return nil
}

// executeSchedule is the cron callback from spec.md §4.9: it runs one full
// fan-out pass across filtered, available servers for scheduleID.
func (s *Scheduler) executeSchedule(scheduleID string) {
	s.mu.Lock()
	job, ok := s.jobs[scheduleID]
	s.mu.Unlock()
	if !ok {
		return
	}

	timeout := time.Duration(s.cfg.DefaultTimeoutMs) * time.Millisecond
	if job.command.TimeoutMs != nil {
		timeout = time.Duration(*job.command.TimeoutMs) * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.executeScheduleForServers(ctx, job)
}

// ExecuteScheduleNow runs scheduleID's fan-out synchronously, without
// consulting the cron calendar, per spec.md §4.9.
func (s *Scheduler) ExecuteScheduleNow(ctx context.Context, scheduleID string) ([]models.ScheduleExecutionResult, error) {
	s.mu.Lock()
	running := s.running
	job, ok := s.jobs[scheduleID]
	s.mu.Unlock()

	if !running {
		return nil, rconerrors.New(rconerrors.KindSchedulerNotStarted, "scheduler: not started")
	}
	if !ok {
		return nil, rconerrors.New(rconerrors.KindScheduleNotFound, "scheduler: schedule %q not found", scheduleID)
	}

	return s.executeScheduleForServers(ctx, job), nil
}

// executeScheduleForServers implements steps 1-5 of spec.md §4.9's
// executeSchedule: fetch, filter twice, fan out concurrently, fold results
// into job stats and history.
func (s *Scheduler) executeScheduleForServers(ctx context.Context, job *ScheduleJob) []models.ScheduleExecutionResult {
	servers, err := s.servers.FindActiveServersWithRcon(ctx)
	if err != nil {
		log.Error().Str("scheduleID", job.command.ID).Err(err).Msg("scheduler: failed to list active RCON-capable servers")
		return nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]models.ScheduleExecutionResult, 0, len(servers))

	for _, srv := range servers {
		if !shouldExecuteOnServer(srv, job.command) {
			continue
		}
		if !s.canExecuteOnServer(job.command.ID, srv.ServerID) {
			continue
		}

		wg.Add(1)
		go func(srv models.ServerInfo) {
			defer wg.Done()
			res := s.executeOnServer(ctx, srv, job.command)

			mu.Lock()
			results = append(results, res)
			mu.Unlock()

			job.recordResult(res)
		}(srv)
	}
	wg.Wait()

	return results
}

// canExecuteOnServer rejects if scheduleID is already running on serverID,
// or the number of concurrent schedules on serverID has reached
// maxConcurrentPerServer, per spec.md §4.9. On success it reserves the slot;
// the caller must call releaseServer when the execution finishes.
func (s *Scheduler) canExecuteOnServer(scheduleID string, serverID int) bool {
	s.concMu.Lock()
	defer s.concMu.Unlock()

	set, ok := s.executing[scheduleID]
	if !ok {
		set = make(map[int]struct{})
		s.executing[scheduleID] = set
	}
	if _, already := set[serverID]; already {
		return false
	}

	sem, ok := s.semas[serverID]
	if !ok {
		sem = semaphore.NewWeighted(int64(s.cfg.MaxConcurrentPerServer))
		s.semas[serverID] = sem
	}
	if !sem.TryAcquire(1) {
		return false
	}

	set[serverID] = struct{}{}
	return true
}

func (s *Scheduler) releaseServer(scheduleID string, serverID int) {
	s.concMu.Lock()
	defer s.concMu.Unlock()

	if set, ok := s.executing[scheduleID]; ok {
		delete(set, serverID)
		if len(set) == 0 {
			delete(s.executing, scheduleID)
		}
	}
	if sem, ok := s.semas[serverID]; ok {
		sem.Release(1)
	}
}

// executeOnServer runs one (server, schedule) execution with retry, per
// spec.md §4.9's executeOnServer: track in-flight, run the executor, retry
// on error with exponential backoff capped at 10s, up to maxRetries
// additional attempts when retryOnFailure is set.
func (s *Scheduler) executeOnServer(ctx context.Context, srv models.ServerInfo, sched models.ScheduledCommand) models.ScheduleExecutionResult {
	defer s.releaseServer(sched.ID, srv.ServerID)

	start := time.Now()

	s.mu.Lock()
	executor, ok := s.execs[sched.Command.Type]
	s.mu.Unlock()
	if !ok {
		return models.ScheduleExecutionResult{
			ExecutionID: executionID(sched.ID, srv.ServerID, start),
			ServerID:    srv.ServerID,
			StartTime:   start,
			EndTime:     time.Now(),
			Status:      models.ExecutionFailed,
			Errors:      []string{"scheduler: no executor registered for command type"},
		}
	}

	maxRetries := s.cfg.DefaultMaxRetries
	if sched.MaxRetries != nil {
		maxRetries = *sched.MaxRetries
	}
	retryOnFailure := s.cfg.DefaultRetryOnFailure
	if sched.RetryOnFailure != nil {
		retryOnFailure = *sched.RetryOnFailure
	}

	attempts := 1
	if retryOnFailure && maxRetries > 0 {
		attempts += maxRetries
	}

	var (
		outcome executors.ExecutionOutcome
		lastErr error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		outcome, lastErr = executor.Execute(ctx, executors.ExecutionContext{Schedule: sched, Server: srv})
		if lastErr == nil || attempt == attempts {
			break
		}

		delay := time.Duration(1000<<(attempt-1)) * time.Millisecond
		if delay > 10*time.Second {
			delay = 10 * time.Second
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	end := time.Now()
	result := models.ScheduleExecutionResult{
		ExecutionID:      executionID(sched.ID, srv.ServerID, start),
		ServerID:         srv.ServerID,
		StartTime:        start,
		EndTime:          end,
		Duration:         end.Sub(start),
		ServersProcessed: outcome.ServersProcessed,
		CommandsSent:     outcome.CommandsSent,
	}
	if lastErr != nil {
		result.Status = models.ExecutionFailed
		result.Errors = []string{lastErr.Error()}
	} else {
		result.Status = models.ExecutionSuccess
	}
	return result
}

// JobStats returns the running tally for scheduleID, if registered.
func (s *Scheduler) JobStats(scheduleID string) (models.JobStats, bool) {
	s.mu.Lock()
	job, ok := s.jobs[scheduleID]
	s.mu.Unlock()
	if !ok {
		return models.JobStats{}, false
	}
	return job.Stats(), true
}

// JobHistory returns the most recent (at most 100) execution results for
// scheduleID, if registered.
func (s *Scheduler) JobHistory(scheduleID string) ([]models.ScheduleExecutionResult, bool) {
	s.mu.Lock()
	job, ok := s.jobs[scheduleID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return job.History(), true
}

// shouldExecuteOnServer applies a ScheduledCommand's ServerFilter, per
// spec.md §3: an absent filter matches every server; serverIds whitelists;
// excludeServerIds blacklists and is applied after the whitelist.
func shouldExecuteOnServer(srv models.ServerInfo, sched models.ScheduledCommand) bool {
	filter := sched.ServerFilter
	if filter == nil {
		return true
	}

	if len(filter.ServerIDs) > 0 {
		if _, ok := filter.ServerIDs[srv.ServerID]; !ok {
			return false
		}
	}
	if _, excluded := filter.ExcludeServerIDs[srv.ServerID]; excluded {
		return false
	}
	if filter.MinPlayers != nil && srv.Players < *filter.MinPlayers {
		return false
	}
	if filter.MaxPlayers != nil && srv.Players > *filter.MaxPlayers {
		return false
	}
	if len(filter.GameTypes) > 0 && !containsFold(filter.GameTypes, srv.GameTag) {
		return false
	}
	if len(filter.Tags) > 0 && !anyTagMatches(filter.Tags, srv.Tags) {
		return false
	}

	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func anyTagMatches(want, have []string) bool {
	for _, w := range want {
		if containsFold(have, w) {
			return true
		}
	}
	return false
}

func executionID(scheduleID string, serverID int, at time.Time) string {
	return fmt.Sprintf("%s-%d-%d", scheduleID, serverID, at.UnixMilli())
}

// validCronExpression accepts 5- or 6-field cron expressions, per spec.md
// §4.9; it does not validate each field's grammar beyond non-emptiness —
// malformed fields are caught by gocron.NewJob and reported as
// INVALID_CRON_EXPRESSION by RegisterSchedule's caller-visible path.
func validCronExpression(expr string) bool {
	fields := strings.Fields(expr)
	if len(fields) != 5 && len(fields) != 6 {
		return false
	}
	for _, f := range fields {
		if f == "" {
			return false
		}
	}
	return true
}
