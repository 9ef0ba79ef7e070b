package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	outcomeEstablished = metric.WithAttributes(attribute.String("outcome", "established"))
	outcomeFailed      = metric.WithAttributes(attribute.String("outcome", "failed"))
	certPresented      = metric.WithAttributes(attribute.Bool("presented", true))
	certAbsent         = metric.WithAttributes(attribute.Bool("presented", false))
)

// acceptBackOff mirrors the temporary error sleep of http.Server: 5ms doubling up to 1s.
func acceptBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = time.Second
	return bo
}

// acceptLoop hands every accepted connection to its own handshake goroutine and goes
// straight back to accepting.
func (s *Server) acceptLoop(ln net.Listener) error {
	bo := acceptBackOff()

	for {
		conn, err := ln.Accept()

		release, ok := s.guard.acquire()
		if !ok {
			if conn != nil {
				_ = conn.Close()
			}
			return ErrServerClosed
		}

		if err != nil {
			release()
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			s.metrics.AcceptErrorsTotal.Add(s.ctx, 1)
			s.errorHandler(&Session{LocalAddr: ln.Addr()}, fmt.Errorf("accept: %w", err))

			select {
			case <-time.After(bo.NextBackOff()):
			case <-s.ctx.Done():
				return ErrServerClosed
			}
			continue
		}
		bo.Reset()

		s.metrics.ConnectionsAcceptedTotal.Add(s.ctx, 1)
		s.handshakes.Add(1)
		release()

		go s.handshake(conn)
	}
}

type noDelayer interface {
	SetNoDelay(bool) error
}

// handshake runs the TLS handshake of raw and either hands the connection to the HTTP
// server or reports the failure. Nothing observable happens once Shutdown has begun.
func (s *Server) handshake(raw net.Conn) {
	defer s.handshakes.Done()

	// Go enables TCP_NODELAY by default, connections behind a LimitListener hide the method.
	if nd, ok := raw.(noDelayer); ok {
		_ = nd.SetNoDelay(true)
	}

	sess := newSession(raw)
	tlsConn := tls.Server(raw, s.tlsConfig)
	sess.conn = tlsConn
	sess.setState(StateHandshaking)

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.HandshakeTimeout)
	start := time.Now()
	err := tlsConn.HandshakeContext(ctx)
	cancel()
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	release, ok := s.guard.acquire()
	if !ok {
		_ = raw.Close()
		return
	}
	defer release()

	s.metrics.HandshakeDuration.Record(s.ctx, elapsed)

	if err != nil {
		sess.setState(StateHandshakeFailed)
		s.metrics.HandshakesTotal.Add(s.ctx, 1, outcomeFailed)
		_ = raw.Close()

		s.errorHandler(sess, &HandshakeError{SessionID: sess.ID, Remote: sess.Remote(), Err: err})
		return
	}

	sess.setState(StateEstablished)
	s.metrics.HandshakesTotal.Add(s.ctx, 1, outcomeEstablished)

	if sess.PeerCertificate() != nil {
		s.metrics.PeerCertificatesTotal.Add(s.ctx, 1, certPresented)
	} else {
		s.metrics.PeerCertificatesTotal.Add(s.ctx, 1, certAbsent)
	}

	s.sessions.add(tlsConn, sess)
	s.metrics.SessionsActive.Add(s.ctx, 1)

	if !s.handoff.deliver(tlsConn) {
		s.sessions.remove(tlsConn)
		s.metrics.SessionsActive.Add(s.ctx, -1)
		_ = raw.Close()
	}
}
