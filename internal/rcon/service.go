// Package rcon owns authenticated RCON connections and serializes commands
// per server, per spec.md §4.3. The connection map and the per-server
// command queue are grounded in internal/rcon_manager/rcon_manager.go's
// connections map and CommandChan/processCommands worker, generalized from
// Squad's single-protocol setup to the two wire protocols this spec names
// (Source TCP via internal/protocol/sourcercon, GoldSource UDP via
// internal/protocol/goldsource), and from the teacher's fire-and-forget
// command queue to a queue whose worker owns exactly one protocol instance
// per server — mandatory for GoldSource's half-duplex UDP (spec.md §4.3),
// applied uniformly to Source too.
package rcon

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codycody31/rcon-sentinel/internal/models"
	"github.com/codycody31/rcon-sentinel/internal/protocol/goldsource"
	"github.com/codycody31/rcon-sentinel/internal/protocol/sourcercon"
	"github.com/codycody31/rcon-sentinel/internal/rconerrors"
)

// Protocol is the minimal surface both wire clients satisfy; the service
// never branches on concrete type after Connect chooses one.
type Protocol interface {
	Connect(ctx context.Context, address string, port int, password string) error
	Execute(ctx context.Context, command string) (string, error)
	IsConnected() bool
	Close() error
}

// sourceAdapter makes sourcercon.Client satisfy Protocol. goldsource.Client
// needs no adapter because its Close already returns error; sourcercon's
// Close does not.
type sourceAdapter struct{ *sourcercon.Client }

func (a sourceAdapter) Close() error {
	a.Client.Close()
	return nil
}

// CredentialsRepo is the out-of-scope collaborator spec.md §6 names as
// CredentialsRepo, the subset the RCON service needs.
type CredentialsRepo interface {
	GetRconCredentials(ctx context.Context, serverID int) (models.RconCredentials, bool, error)
}

const (
	defaultMaxRetries            = 3
	defaultConnectRetryCapMillis = 5000
	maxConnectionsPerServer      = 1
)

// connState tracks one server's live connection plus the serializer queue
// that owns it. The queue outlives the connection it wraps so in-flight
// commands drain even if the connection is torn down mid-batch, per the
// "don't merge the connection map and the queue map" note in spec.md §9.
//
// Teardown is signaled purely via ctx/cancel, never by closing queue: the
// teacher's internal/rcon_manager/rcon_manager.go never closes its
// CommandChan either, relying solely on context cancellation, because a
// channel close race between a sender and a closer is a send-on-closed-
// channel panic waiting to happen the moment two teardown paths (a failed
// command inside worker(), an explicit Disconnect) can fire concurrently.
// Cancelling ctx is safe to do any number of times from any number of
// goroutines.
type connState struct {
	mu                 sync.Mutex
	protocol           Protocol
	serverID           int
	isConnected        bool
	lastActivity       time.Time
	connectionAttempts int

	queue  chan queuedCommand
	ctx    context.Context
	cancel context.CancelFunc
}

type queuedCommand struct {
	ctx     context.Context
	command string
	replyC  chan commandResult
}

type commandResult struct {
	body string
	err  error
}

// Service is the RCON connection manager and per-server command
// serializer described in spec.md §4.3.
type Service struct {
	creds CredentialsRepo

	connectTimeout time.Duration
	commandTimeout time.Duration
	maxRetries     int

	mu    sync.Mutex
	conns map[int]*connState
}

// Option configures a Service at construction.
type Option func(*Service)

// WithTimeouts overrides the default connect (5s) and command (3s)
// timeouts from spec.md §5.
func WithTimeouts(connect, command time.Duration) Option {
	return func(s *Service) {
		if connect > 0 {
			s.connectTimeout = connect
		}
		if command > 0 {
			s.commandTimeout = command
		}
	}
}

// WithMaxRetries overrides the default connect retry count (3).
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// New builds a Service backed by creds for credential resolution.
func New(creds CredentialsRepo, opts ...Option) *Service {
	s := &Service{
		creds:          creds,
		connectTimeout: 5 * time.Second,
		commandTimeout: 3 * time.Second,
		maxRetries:     defaultMaxRetries,
		conns:          make(map[int]*connState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsConnected reports whether serverID has a live connection whose
// protocol also reports itself connected.
func (s *Service) IsConnected(serverID int) bool {
	s.mu.Lock()
	cs, ok := s.conns[serverID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.isConnected && cs.protocol != nil && cs.protocol.IsConnected()
}

// Connect resolves credentials and authenticates to serverID, retrying up
// to maxRetries times with delay min(1000*2^(attempt-1), 5000)ms between
// attempts, per spec.md §4.3. It is a no-op if already connected
// (maxConnectionsPerServer=1).
func (s *Service) Connect(ctx context.Context, serverID int) error {
	if s.IsConnected(serverID) {
		return nil
	}

	creds, found, err := s.creds.GetRconCredentials(ctx, serverID)
	if err != nil {
		return rconerrors.Wrap(rconerrors.KindConnectionFailed, err, "rcon: resolve credentials for server %d", serverID)
	}
	if !found || !creds.Valid() {
		return rconerrors.New(rconerrors.KindInvalidCredentials, "rcon: missing or incomplete credentials for server %d", serverID)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		protocol := s.newProtocol(creds.GameEngine)

		connectCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
		err := protocol.Connect(connectCtx, creds.Address, creds.Port, creds.RconPassword)
		cancel()

		if err == nil {
			s.register(serverID, protocol)
			return nil
		}

		lastErr = err
		if rconerrors.Is(err, rconerrors.KindAuthFailed) {
			// credentials won't change mid-run; retrying is pointless.
			return err
		}

		log.Warn().Int("serverID", serverID).Int("attempt", attempt).Err(err).Msg("rcon connect attempt failed")

		if attempt < s.maxRetries {
			delay := time.Duration(1000<<(attempt-1)) * time.Millisecond
			if delay > defaultConnectRetryCapMillis*time.Millisecond {
				delay = defaultConnectRetryCapMillis * time.Millisecond
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return rconerrors.Wrap(rconerrors.KindConnectionFailed, ctx.Err(), "rcon: connect cancelled for server %d", serverID)
			}
		}
	}

	return rconerrors.Wrap(rconerrors.KindConnectionFailed, lastErr, "rcon: connect to server %d failed after %d attempts", serverID, s.maxRetries)
}

func (s *Service) newProtocol(engine models.GameEngine) Protocol {
	if engine == models.EngineGoldSource {
		return goldsource.NewClient()
	}
	return sourceAdapter{sourcercon.NewClient()}
}

// register installs a freshly authenticated protocol instance and starts
// its serializer worker.
func (s *Service) register(serverID int, protocol Protocol) {
	ctx, cancel := context.WithCancel(context.Background())
	cs := &connState{
		serverID:     serverID,
		protocol:     protocol,
		isConnected:  true,
		lastActivity: time.Now(),
		queue:        make(chan queuedCommand, 64),
		ctx:          ctx,
		cancel:       cancel,
	}

	s.mu.Lock()
	s.conns[serverID] = cs
	s.mu.Unlock()

	go s.worker(cs)
}

// worker is the single consumer of serverID's command queue: it owns the
// one Protocol instance for this server and runs commands strictly FIFO,
// per spec.md §4.3/§5. A failed command replies with an error to its own
// caller and the worker proceeds to the next queued command — the chain
// never poisons. It exits on teardown's ctx cancellation rather than on a
// closed queue, since queue is never closed (see connState).
func (s *Service) worker(cs *connState) {
	for {
		select {
		case cmd := <-cs.queue:
			s.runQueued(cs, cmd)
		case <-cs.ctx.Done():
			return
		}
	}
}

func (s *Service) runQueued(cs *connState, cmd queuedCommand) {
	cs.mu.Lock()
	protocol := cs.protocol
	cs.mu.Unlock()

	if protocol == nil {
		cmd.replyC <- commandResult{err: rconerrors.New(rconerrors.KindNotConnected, "rcon: server %d has no active connection", cs.serverID)}
		return
	}

	execCtx, cancel := context.WithTimeout(cmd.ctx, s.commandTimeout)
	body, err := protocol.Execute(execCtx, cmd.command)
	cancel()

	cs.mu.Lock()
	cs.lastActivity = time.Now()
	cs.mu.Unlock()

	if err != nil && !isRconTyped(err) {
		err = rconerrors.Wrap(rconerrors.KindCommandFailed, err, "rcon: command %q failed on server %d", cmd.command, cs.serverID)
	}

	if err != nil {
		s.teardown(cs.serverID, cs)
	}

	cmd.replyC <- commandResult{body: body, err: err}
}

func isRconTyped(err error) bool {
	_, ok := rconerrors.KindOf(err)
	return ok
}

// Execute chains serverID's command onto its per-server FIFO, per spec.md
// §4.3/§8's serialization law: N submitted commands reach the underlying
// protocol exactly N times, in submission order, regardless of individual
// success or failure.
func (s *Service) Execute(ctx context.Context, serverID int, command string) (string, error) {
	if isBlank(command) {
		return "", rconerrors.Wrap(rconerrors.KindCommandFailed, rconerrors.ErrEmptyCommand, "rcon: empty command for server %d", serverID)
	}

	s.mu.Lock()
	cs, ok := s.conns[serverID]
	s.mu.Unlock()
	if !ok {
		return "", rconerrors.New(rconerrors.KindNotConnected, "rcon: server %d is not connected", serverID)
	}

	replyC := make(chan commandResult, 1)
	select {
	case cs.queue <- queuedCommand{ctx: ctx, command: command, replyC: replyC}:
	case <-cs.ctx.Done():
		return "", rconerrors.New(rconerrors.KindNotConnected, "rcon: server %d disconnected before command dispatch", serverID)
	case <-ctx.Done():
		return "", rconerrors.Wrap(rconerrors.KindCommandFailed, ctx.Err(), "rcon: command %q cancelled before dispatch", command)
	}

	select {
	case res := <-replyC:
		return res.body, res.err
	case <-ctx.Done():
		return "", rconerrors.Wrap(rconerrors.KindCommandFailed, ctx.Err(), "rcon: command %q cancelled awaiting reply", command)
	}
}

// Disconnect idempotently tears down serverID's connection; it is safe to
// call for a server with no known connection.
func (s *Service) Disconnect(serverID int) {
	s.mu.Lock()
	cs, ok := s.conns[serverID]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.teardown(serverID, cs)
}

// teardown closes the underlying protocol, drops the connection from the
// map, and cancels cs.ctx so worker() exits and any Execute call racing to
// enqueue onto cs.queue backs off instead. Only the caller that actually
// wins the map removal — there may be a concurrent worker-triggered and an
// explicit Disconnect racing for the same cs — closes the protocol, but
// cancel is called unconditionally since context.CancelFunc is safe to
// invoke any number of times from any number of goroutines (unlike
// close(chan), which panics on the second call or on a concurrent send).
func (s *Service) teardown(serverID int, cs *connState) {
	s.mu.Lock()
	current, ok := s.conns[serverID]
	won := ok && current == cs
	if won {
		delete(s.conns, serverID)
	}
	s.mu.Unlock()

	cs.cancel()

	if !won {
		return
	}

	cs.mu.Lock()
	protocol := cs.protocol
	cs.isConnected = false
	cs.protocol = nil
	cs.mu.Unlock()

	if protocol != nil {
		if err := protocol.Close(); err != nil {
			log.Debug().Int("serverID", serverID).Err(err).Msg("rcon: error closing protocol on teardown")
		}
	}
}

// DisconnectAll drains every known connection concurrently, per spec.md
// §4.3.
func (s *Service) DisconnectAll() {
	s.mu.Lock()
	ids := make([]int, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.Disconnect(id)
		}(id)
	}
	wg.Wait()
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
