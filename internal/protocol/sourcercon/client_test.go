package sourcercon

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

// fakeSourceServer accepts a single connection, reads the AUTH packet and
// replies with the same id (success) or -1 (failure), then echoes back
// whatever command body it receives wrapped in a RESPONSE_VALUE followed by
// the empty terminator.
func fakeSourceServer(t *testing.T, rejectAuth bool) (addr string, done chan struct{}) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done = make(chan struct{})

	go func() {
		defer close(done)
		defer ln.Close()

		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 4096)

		// AUTH packet.
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		authPkt, err := Decode(buf[:n])
		if err != nil {
			return
		}

		if rejectAuth {
			conn.Write(Encode(-1, TypeAuthResponse, ""))
			return
		}
		conn.Write(Encode(authPkt.ID, TypeAuthResponse, ""))

		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			cmdPkt, err := Decode(buf[:n])
			if err != nil {
				continue
			}
			if cmdPkt.Body == "" {
				continue
			}
			conn.Write(Encode(cmdPkt.ID, TypeResponseValue, cmdPkt.Body+"\x00\x00"))
			conn.Write(Encode(emptyPacketID, TypeResponseValue, ""))
		}
	}()

	return ln.Addr().String(), done
}

func TestConnectAuthSuccess(t *testing.T) {
	addr, done := fakeSourceServer(t, false)
	host, portStr, _ := net.SplitHostPort(addr)
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	c := NewClient()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Connect(ctx, host, port, "pw"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("expected IsConnected() == true after successful auth")
	}

	c.Close()
	<-done
}

func TestConnectAuthFailure(t *testing.T) {
	addr, done := fakeSourceServer(t, true)
	host, portStr, _ := net.SplitHostPort(addr)
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	c := NewClient()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = c.Connect(ctx, host, port, "wrong")
	if err == nil {
		t.Fatal("expected AUTH_FAILED error")
	}
	if !strings.Contains(err.Error(), "invalid password") {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.IsConnected() {
		t.Fatal("expected IsConnected() == false after failed auth")
	}
	<-done
}

func TestExecuteEmptyCommandFailsFast(t *testing.T) {
	c := NewClient()
	c.connected = true
	c.conn = &net.TCPConn{}

	_, err := c.Execute(context.Background(), "   ")
	if err == nil {
		t.Fatal("expected error for whitespace-only command")
	}
}

func TestExecuteNotConnected(t *testing.T) {
	c := NewClient()
	_, err := c.Execute(context.Background(), "status")
	if err == nil {
		t.Fatal("expected NOT_CONNECTED error")
	}
}
