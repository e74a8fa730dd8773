package sourcercon

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iamalone98/eventEmitter"
	"github.com/rs/zerolog/log"

	"github.com/codycody31/rcon-sentinel/internal/rconerrors"
)

// Transport-level event names, mirroring squad-rcon-go/rconEvents.
const (
	EventConnected = "connected"
	EventClose     = "close"
	EventError     = "error"
	EventData      = "data"
)

const (
	connectTimeout = 5 * time.Second
	commandTimeout = 3 * time.Second
)

type pendingRequest struct {
	id      int32
	body    strings.Builder
	resultC chan result
}

type result struct {
	body string
	err  error
}

// Client is a single authenticated Source RCON TCP connection to one
// server. It is not safe for concurrent Execute calls — the RCON service
// owns per-server serialization (spec.md §4.3); Client only guarantees that
// a socket error rejects whatever request is outstanding.
type Client struct {
	Emitter eventEmitter.EventEmitter

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	nextID    int32
	pending   *pendingRequest

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewClient returns an unconnected client. Call Connect before Execute.
func NewClient() *Client {
	return &Client{
		Emitter: eventEmitter.NewEventEmitter(),
		nextID:  1,
		done:    make(chan struct{}),
	}
}

// Connect dials address:port, performs the AUTH handshake and, on success,
// starts the background reader. It returns rconerrors-tagged errors per
// spec.md §4.1: CONNECTION_FAILED for dial/read failures, AUTH_FAILED when
// the server rejects the password, TIMEOUT if AUTH_RESPONSE never arrives.
func (c *Client) Connect(ctx context.Context, address string, port int, password string) error {
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return rconerrors.Wrap(rconerrors.KindConnectionFailed, err, "source rcon: dial %s:%d", address, port)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop()

	authID := c.nextRequestID()
	if _, err := conn.Write(Encode(authID, TypeAuth, password)); err != nil {
		c.teardown(err)
		return rconerrors.Wrap(rconerrors.KindConnectionFailed, err, "source rcon: write auth packet")
	}

	select {
	case res := <-c.awaitAuth(authID):
		if res.err != nil {
			c.teardown(res.err)
			return res.err
		}
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		c.Emitter.Emit(EventConnected, true)
		return nil
	case <-time.After(connectTimeout):
		err := rconerrors.New(rconerrors.KindTimeout, "source rcon: auth response timed out")
		c.teardown(err)
		return err
	case <-ctx.Done():
		err := rconerrors.Wrap(rconerrors.KindConnectionFailed, ctx.Err(), "source rcon: connect cancelled")
		c.teardown(err)
		return err
	}
}

// awaitAuth registers a one-shot pending request keyed by the auth packet id
// and returns the channel the reader will deliver the AUTH_RESPONSE on.
func (c *Client) awaitAuth(authID int32) chan result {
	req := &pendingRequest{id: authID, resultC: make(chan result, 1)}
	c.mu.Lock()
	c.pending = req
	c.mu.Unlock()
	return req.resultC
}

func (c *Client) nextRequestID() int32 {
	id := atomic.AddInt32(&c.nextID, 1)
	// wrap inside [0, 2^31-1) per spec.md §4.1, and keep ids positive so
	// they can never collide with the -1 AUTH_FAILED sentinel.
	if id <= 0 {
		atomic.StoreInt32(&c.nextID, 1)
		id = 1
	}
	return id
}

// IsConnected reports whether the socket is open and authentication
// succeeded.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.conn != nil
}

// Execute sends one EXECCOMMAND packet followed by the empty-packet
// reassembly marker and waits for the terminated response body. Empty or
// whitespace-only commands fail fast without touching the wire.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", rconerrors.Wrap(rconerrors.KindCommandFailed, rconerrors.ErrEmptyCommand, "source rcon: execute")
	}

	c.mu.Lock()
	if !c.connected || c.conn == nil {
		c.mu.Unlock()
		return "", rconerrors.New(rconerrors.KindNotConnected, "source rcon: not connected")
	}
	conn := c.conn
	id := c.nextRequestID()
	req := &pendingRequest{id: id, resultC: make(chan result, 1)}
	c.pending = req
	c.mu.Unlock()

	if _, err := conn.Write(Encode(id, TypeExecCommand, command)); err != nil {
		return "", rconerrors.Wrap(rconerrors.KindConnectionFailed, err, "source rcon: write command")
	}
	if _, err := conn.Write(Encode(emptyPacketID, TypeExecCommand, "")); err != nil {
		return "", rconerrors.Wrap(rconerrors.KindConnectionFailed, err, "source rcon: write reassembly marker")
	}

	select {
	case res := <-req.resultC:
		if res.err != nil {
			return "", res.err
		}
		return res.body, nil
	case <-time.After(commandTimeout):
		return "", rconerrors.New(rconerrors.KindTimeout, "source rcon: command %q timed out", command)
	case <-ctx.Done():
		return "", rconerrors.Wrap(rconerrors.KindTimeout, ctx.Err(), "source rcon: command %q cancelled", command)
	case <-c.done:
		return "", rconerrors.New(rconerrors.KindConnectionFailed, "source rcon: connection closed")
	}
}

// Close terminates the connection and rejects any outstanding request with
// CONNECTION_FAILED.
func (c *Client) Close() {
	c.teardown(rconerrors.New(rconerrors.KindConnectionFailed, "source rcon: closed"))
}

func (c *Client) teardown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		conn := c.conn
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()

		close(c.done)

		if pending != nil {
			pending.resultC <- result{err: rconerrors.Wrap(rconerrors.KindConnectionFailed, cause, "source rcon: in-flight request rejected")}
		}
		if conn != nil {
			conn.Close()
		}
		c.wg.Wait()
		c.Emitter.Emit(EventClose, true)
	})
}

// readLoop reassembles incoming bytes into whole packets by reading the
// size prefix, buffering incomplete tails until the next read — mirrors
// squad-rcon-go's byteParser, generalized from a single-byte reader to a
// buffered frame reader.
func (c *Client) readLoop() {
	defer c.wg.Done()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	reader := bufio.NewReader(conn)
	buf := make([]byte, 0, 4096)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		chunk := make([]byte, 4096)
		n, err := reader.Read(chunk)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			go c.teardown(rconerrors.Wrap(rconerrors.KindConnectionFailed, err, "source rcon: read"))
			return
		}
		buf = append(buf, chunk[:n]...)

		for {
			total, ok := PacketSize(buf)
			if !ok || len(buf) < total {
				break
			}
			frame := buf[:total]
			buf = buf[total:]

			pkt, decErr := Decode(frame)
			if decErr != nil {
				log.Warn().Err(decErr).Msg("source rcon: dropping malformed frame")
				continue
			}
			c.dispatch(pkt)
		}
	}
}

func (c *Client) dispatch(pkt Packet) {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()

	if pending == nil {
		return
	}

	switch pkt.Type {
	case TypeAuthResponse:
		// AUTH_RESPONSE shares the EXECCOMMAND type id (2) on the wire; it
		// is distinguished by arriving before the client is marked
		// connected and by its id matching the outstanding auth request.
		if c.IsConnected() {
			break
		}
		c.resolveAuth(pkt)
		return
	}

	if pkt.Type != TypeResponseValue {
		c.Emitter.Emit(EventData, pkt.Body)
		return
	}

	if IsFragmentTerminator(pkt) {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
		pending.resultC <- result{body: pending.body.String()}
		return
	}

	if pkt.ID == pending.id {
		pending.body.WriteString(pkt.Body)
	}
}

func (c *Client) resolveAuth(pkt Packet) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending == nil {
		return
	}

	if pkt.ID == -1 {
		pending.resultC <- result{err: rconerrors.New(rconerrors.KindAuthFailed, "source rcon: invalid password")}
		return
	}
	if pkt.ID != pending.id {
		pending.resultC <- result{err: rconerrors.New(rconerrors.KindAuthFailed, "source rcon: auth response id mismatch")}
		return
	}
	pending.resultC <- result{}
}
