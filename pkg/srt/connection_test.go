package srt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func dialAndAccept(t *testing.T, cfg Config) (caller, server *Connection) {
	t.Helper()
	listenerSocket, err := NewUDPSocket("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listenerSocket.Close() })

	listener := Listen(cfg, listenerSocket)
	accepted := make(chan *Connection, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- conn
	}()

	callerSocket, err := NewUDPSocket("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { callerSocket.Close() })

	caller, err = Dial(cfg, callerSocket, listenerSocket.LocalAddr())
	require.NoError(t, err)
	t.Cleanup(func() { caller.Close() })

	select {
	case server = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("Accept: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not complete in time")
	}
	t.Cleanup(func() { server.Close() })
	return caller, server
}

// TestConnectionHandshakeAndDataRoundTrip drives a real Dial/Listen/Accept
// pair over loopback UDP and confirms an application message sent by the
// caller is reassembled and released to the server side.
func TestConnectionHandshakeAndDataRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	caller, server := dialAndAccept(t, cfg)

	require.NoError(t, caller.Send([]byte("hello srt")))

	received, err := server.Receive()
	require.NoError(t, err)
	require.Equal(t, "hello srt", string(received))

	stats := server.Stats()
	require.EqualValues(t, 1, stats.Receive.Received)
}

func TestConnectionStreamIDCarriedThroughHandshake(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.StreamID = "m=request,r=live/stream1"
	caller, server := dialAndAccept(t, cfg)

	require.Equal(t, StreamID("m=request,r=live/stream1"), caller.StreamID())
	require.Equal(t, "live/stream1", server.StreamID().Resource())
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	caller, _ := dialAndAccept(t, cfg)

	require.NoError(t, caller.Close())
	require.NoError(t, caller.Close())
	require.ErrorIs(t, caller.Send([]byte("x")), ErrClosed)
}
