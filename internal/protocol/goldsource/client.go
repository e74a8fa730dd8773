package goldsource

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/codycody31/rcon-sentinel/internal/rconerrors"
)

const (
	connectTimeout = 5 * time.Second
	commandTimeout = 3 * time.Second

	// fragmentTimeout bounds how long the client waits for the next chunk
	// of a split reply before giving up on reassembly. The reference
	// implementation cleans up fragments only on disconnect; spec.md's
	// Open Questions call for a concrete bound instead.
	fragmentTimeout = 2 * time.Second
)

// Client is a single GoldSource UDP RCON session. A session holds at most
// one challenge at a time and must refresh it after every disconnect.
type Client struct {
	mu        sync.Mutex
	conn      *net.UDPConn
	password  string
	challenge string
	connected bool
}

// NewClient returns an unconnected client.
func NewClient() *Client {
	return &Client{}
}

// Connect opens the UDP socket and fetches the initial challenge.
func (c *Client) Connect(ctx context.Context, address string, port int, password string) error {
	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return rconerrors.Wrap(rconerrors.KindConnectionFailed, err, "goldsource: resolve %s:%d", address, port)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return rconerrors.Wrap(rconerrors.KindConnectionFailed, err, "goldsource: dial %s:%d", address, port)
	}

	c.mu.Lock()
	c.conn = conn
	c.password = password
	c.connected = true
	c.mu.Unlock()

	if err := c.refreshChallenge(ctx); err != nil {
		c.Close()
		return err
	}

	return nil
}

// IsConnected reports whether the socket is open. Per spec.md §4.2,
// NOT_CONNECTED is raised on execute when the socket is absent or the
// challenge is missing, not on Connect itself.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.conn != nil
}

// refreshChallenge sends the challenge request and caches the returned
// token. It must be called again after any disconnect.
func (c *Client) refreshChallenge(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return rconerrors.New(rconerrors.KindNotConnected, "goldsource: no socket for challenge request")
	}

	if _, err := conn.Write(EncodeChallengeRequest()); err != nil {
		return rconerrors.Wrap(rconerrors.KindConnectionFailed, err, "goldsource: write challenge request")
	}

	datagram, err := c.readDatagram(ctx, conn, connectTimeout)
	if err != nil {
		return err
	}

	challenge, err := ParseChallengeResponse(datagram)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.challenge = challenge
	c.mu.Unlock()
	return nil
}

// Execute sends one rcon command and returns its (possibly reassembled)
// reply body. Empty/whitespace commands fail fast with COMMAND_FAILED.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", rconerrors.Wrap(rconerrors.KindCommandFailed, rconerrors.ErrEmptyCommand, "goldsource: execute")
	}

	c.mu.Lock()
	conn := c.conn
	challenge := c.challenge
	password := c.password
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil || challenge == "" {
		return "", rconerrors.New(rconerrors.KindNotConnected, "goldsource: not connected or missing challenge")
	}

	if _, err := conn.Write(EncodeExecRequest(challenge, password, command)); err != nil {
		return "", rconerrors.Wrap(rconerrors.KindConnectionFailed, err, "goldsource: write command")
	}

	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	return c.collectReply(cmdCtx, conn)
}

// collectReply reads datagrams until a complete reply is assembled:
// either a single unfragmented reply, or every fragment of a split reply
// in ascending index order, each fragment arriving within fragmentTimeout
// of the previous one.
func (c *Client) collectReply(ctx context.Context, conn *net.UDPConn) (string, error) {
	var fragments map[int][]byte
	var total int

	for {
		datagram, err := c.readDatagram(ctx, conn, fragmentTimeout)
		if err != nil {
			return "", err
		}

		if !isFragment(datagram) {
			body, err := decodeSingleReply(datagram)
			if err != nil {
				return "", err
			}
			return body, nil
		}

		frag, err := decodeFragment(datagram)
		if err != nil {
			return "", err
		}

		if fragments == nil {
			fragments = make(map[int][]byte, frag.total)
			total = frag.total
		}
		fragments[frag.index] = frag.payload

		if len(fragments) == total {
			var buf bytes.Buffer
			for i := 0; i < total; i++ {
				buf.Write(fragments[i])
			}
			return buf.String(), nil
		}
	}
}

// readDatagram reads one UDP datagram, honoring both ctx and a read
// deadline derived from timeout.
func (c *Client) readDatagram(ctx context.Context, conn *net.UDPConn, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetReadDeadline(deadline)

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, rconerrors.New(rconerrors.KindTimeout, "goldsource: read timed out")
		}
		return nil, rconerrors.Wrap(rconerrors.KindConnectionFailed, err, "goldsource: read")
	}
	return buf[:n], nil
}

// Close tears down the socket and forgets the cached challenge — it must
// be refreshed on the next Connect.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	c.challenge = ""
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
