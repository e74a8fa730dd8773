package goldsource

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"
)

// fakeGoldSourceServer answers a challenge request with "42" and then, for
// any rcon command, replies with the scripted reply datagrams verbatim.
func fakeGoldSourceServer(t *testing.T, replies [][]byte) (addr string, stop func()) {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	stopC := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for {
			conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
			n, raddr, err := conn.ReadFromUDP(buf)
			select {
			case <-stopC:
				return
			default:
			}
			if err != nil {
				continue
			}

			msg := string(buf[:n])
			if len(msg) >= 4 && msg[:4] == "\xFF\xFF\xFF\xFF" {
				rest := msg[4:]
				if len(rest) >= len("challenge rcon") && rest[:len("challenge rcon")] == "challenge rcon" {
					conn.WriteToUDP([]byte("\xFF\xFF\xFF\xFFchallenge rcon 42\n"), raddr)
					continue
				}
			}

			for _, reply := range replies {
				conn.WriteToUDP(reply, raddr)
			}
		}
	}()

	return conn.LocalAddr().String(), func() { close(stopC); conn.Close() }
}

func TestConnectFetchesChallenge(t *testing.T) {
	addr, stop := fakeGoldSourceServer(t, [][]byte{
		append([]byte{0xFF, 0xFF, 0xFF, 0xFF, legacyResponseType}, []byte("ok\n")...),
	})
	defer stop()

	host, portStr, _ := net.SplitHostPort(addr)
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	c := NewClient()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Connect(ctx, host, port, "pass"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("expected IsConnected() == true")
	}
	if c.challenge != "42" {
		t.Fatalf("challenge = %q, want 42", c.challenge)
	}
	c.Close()
}

func TestExecuteSingleDatagramReply(t *testing.T) {
	addr, stop := fakeGoldSourceServer(t, [][]byte{
		append([]byte{0xFF, 0xFF, 0xFF, 0xFF, legacyResponseType}, []byte("hostname: test\n")...),
	})
	defer stop()

	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)

	c := NewClient()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Connect(ctx, host, port, "pass"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	got, err := c.Execute(ctx, "status")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "hostname: test\n" {
		t.Fatalf("got %q", got)
	}
}

func TestExecuteFragmentedReply(t *testing.T) {
	frag0 := append([]byte{0xFE, 0xFF, 0xFF, 0xFF, 1, 0, 0, 0, 0x20}, []byte("hello ")...)
	frag1 := append([]byte{0xFE, 0xFF, 0xFF, 0xFF, 1, 0, 0, 0, 0x21}, []byte("world")...)

	addr, stop := fakeGoldSourceServer(t, [][]byte{frag0, frag1})
	defer stop()

	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)

	c := NewClient()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Connect(ctx, host, port, "pass"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	got, err := c.Execute(ctx, "status")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestExecuteEmptyCommandFailsFast(t *testing.T) {
	c := NewClient()
	c.connected = true
	c.challenge = "42"

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
