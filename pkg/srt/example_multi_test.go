package srt

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestMultipleConnectionsSupervisedByErrgroup drives several independent
// Connections concurrently, one per caller, against a single Listener.
// Each Connection is single-threaded internally (spec section 5); running
// many of them side by side is the multi-connection case that section
// explicitly allows, and errgroup is the natural way to supervise a
// dynamic fan-out of goroutines and surface the first failure.
func TestMultipleConnectionsSupervisedByErrgroup(t *testing.T) {
	const n = 4
	listenerSocket, err := NewUDPSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer listenerSocket.Close()

	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	listener := Listen(cfg, listenerSocket)

	var g errgroup.Group
	received := make(chan string, n)

	g.Go(func() error {
		for i := 0; i < n; i++ {
			conn, err := listener.Accept()
			if err != nil {
				return err
			}
			g.Go(func() error {
				defer conn.Close()
				msg, err := conn.Receive()
				if err != nil {
					return err
				}
				received <- string(msg)
				return nil
			})
		}
		return nil
	})

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			sock, err := NewUDPSocket("127.0.0.1:0")
			if err != nil {
				return err
			}
			conn, err := Dial(cfg, sock, listenerSocket.LocalAddr())
			if err != nil {
				return err
			}
			defer conn.Close()
			return conn.Send([]byte(fmt.Sprintf("msg-%d", i)))
		})
	}

	require.NoError(t, g.Wait())
	close(received)

	got := map[string]bool{}
	for msg := range received {
		got[msg] = true
	}
	require.Len(t, got, n)
	for i := 0; i < n; i++ {
		require.True(t, got[fmt.Sprintf("msg-%d", i)], "missing message from caller %d", i)
	}
}
