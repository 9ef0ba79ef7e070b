package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	t.Run("acquire while open", func(t *testing.T) {
		var g guard
		release, ok := g.acquire()
		require.True(t, ok)
		release()
	})

	t.Run("close is idempotent", func(t *testing.T) {
		var g guard
		require.True(t, g.close())
		require.False(t, g.close())

		_, ok := g.acquire()
		require.False(t, ok)
	})

	t.Run("close waits for holders", func(t *testing.T) {
		var g guard
		release, ok := g.acquire()
		require.True(t, ok)

		closed := make(chan struct{})
		go func() {
			g.close()
			close(closed)
		}()

		select {
		case <-closed:
			t.Fatal("close returned while the guard was held")
		case <-time.After(50 * time.Millisecond):
		}

		release()
		<-closed

		_, ok = g.acquire()
		require.False(t, ok)
	})
}

func TestHandoffListener(t *testing.T) {
	t.Run("deliver and accept", func(t *testing.T) {
		l := newHandoffListener()
		client, server := net.Pipe()
		defer client.Close()
		defer server.Close()

		delivered := make(chan bool, 1)
		go func() { delivered <- l.deliver(server) }()

		conn, err := l.Accept()
		require.NoError(t, err)
		require.Same(t, server, conn)
		require.True(t, <-delivered)
	})

	t.Run("close unblocks both sides", func(t *testing.T) {
		l := newHandoffListener()
		_, server := net.Pipe()
		defer server.Close()

		require.NoError(t, l.Close())
		require.NoError(t, l.Close())

		_, err := l.Accept()
		require.ErrorIs(t, err, net.ErrClosed)
		require.False(t, l.deliver(server))
	})

	t.Run("address", func(t *testing.T) {
		l := newHandoffListener()
		require.NotNil(t, l.Addr())

		addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 443}
		l.addr = addr
		require.Equal(t, addr, l.Addr())
	})
}
