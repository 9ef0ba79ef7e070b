package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := newRegistry()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sess := newSession(server)
	require.Equal(t, StateAccepted, sess.State())
	require.Nil(t, sess.PeerCertificate())

	reg.add(server, sess)
	require.Equal(t, 1, reg.len())
	require.Same(t, sess, reg.lookup(sess.ID))
	require.Same(t, sess, reg.byConnection(server))
	require.Nil(t, reg.byConnection(client))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(withSessionHandle(context.Background(), sessionHandle{reg: reg, id: sess.ID}))

	got, ok := SessionFromRequest(r)
	require.True(t, ok)
	require.Same(t, sess, got)

	require.Same(t, sess, reg.remove(server))
	require.Nil(t, reg.remove(server))
	require.Equal(t, 0, reg.len())

	_, ok = SessionFromRequest(r)
	require.False(t, ok)
	require.Nil(t, PeerCertificate(r))
}

func TestSessionIDsAreUnique(t *testing.T) {
	_, server := net.Pipe()
	defer server.Close()

	seen := map[string]bool{}
	for range 100 {
		id := newSession(server).ID.String()
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateListening:       "listening",
		StateAccepted:        "accepted",
		StateHandshaking:     "handshaking",
		StateEstablished:     "established",
		StateHandshakeFailed: "handshake_failed",
		StateReading:         "reading",
		State(42):            "unknown",
	}

	for state, want := range tests {
		require.Equal(t, want, state.String())
	}
}
