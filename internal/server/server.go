package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/softmtls/internal/pki"
	"github.com/wolfeidau/softmtls/internal/telemetry"
	"golang.org/x/net/netutil"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Config holds the listener and HTTP settings of a Server.
type Config struct {
	Identity *pki.Identity

	// HandshakeTimeout bounds the TLS handshake of each accepted connection.
	HandshakeTimeout time.Duration

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// MaxConnections caps concurrently open connections, 0 means no limit.
	MaxConnections int

	// SessionIDContext binds resumable sessions to the listening endpoint.
	SessionIDContext bool

	// ListenHost is the host used to derive the session id context. Defaults to the
	// host of the listener address.
	ListenHost string
}

func (c *Config) setDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = 8 * 1024 // 8KiB
	}
}

// ErrorHandler is called on accept and handshake errors. For handshake failures err is a
// *HandshakeError and the session is in StateHandshakeFailed.
type ErrorHandler func(s *Session, err error)

// Option configures a Server.
type Option func(*Server)

// WithErrorHandler replaces the default handler, which logs a warning.
// The handler runs on the connection goroutine and must not call Shutdown.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(s *Server) {
		s.errorHandler = fn
	}
}

// WithLogger sets the logger used by the default error handler and the HTTP server.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics overrides the metric instruments, mostly useful in tests.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server accepts TCP connections, completes a TLS handshake that requests but never
// requires a client certificate, and serves HTTP on the established connections.
type Server struct {
	cfg          Config
	errorHandler ErrorHandler
	logger       zerolog.Logger
	metrics      *telemetry.Metrics

	tlsConfig  *tls.Config
	httpServer *http.Server
	handoff    *handoffListener
	sessions   *registry
	guard      guard

	ctx    context.Context
	cancel context.CancelFunc

	handshakes sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	serving  bool
	closed   bool
}

// New creates a server presenting cfg.Identity and serving handler.
func New(cfg Config, handler http.Handler, opts ...Option) (*Server, error) {
	if cfg.Identity == nil || cfg.Identity.Certificate == nil || cfg.Identity.Key == nil {
		return nil, errors.New("server: identity with key and certificate is required")
	}
	if handler == nil {
		return nil, errors.New("server: handler is required")
	}
	cfg.setDefaults()

	s := &Server{
		cfg:      cfg,
		logger:   log.Logger,
		handoff:  newHandoffListener(),
		sessions: newRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.errorHandler == nil {
		s.errorHandler = s.logError
	}
	if s.metrics == nil {
		s.metrics = telemetry.GetMetrics()
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		ConnContext:       s.connContext,
		ConnState:         s.connState,
		ErrorLog:          stdlog.New(s.logger.With().Str("component", "http").Logger(), "", 0),
	}

	return s, nil
}

func (s *Server) logError(sess *Session, err error) {
	ev := s.logger.Warn().Err(err)
	if sess != nil {
		ev = ev.Str("remote", sess.Remote()).
			Str("session", sess.ID.String()).
			Stringer("state", sess.State())
	}
	ev.Msg("HTTPS error during request")
}

// Serve accepts connections on ln until Shutdown is called or ln fails. It always
// returns a non-nil error, ErrServerClosed after Shutdown.
//
// When ln fails or is closed by the caller, Serve stops handing connections to the HTTP
// server before returning. Sessions that were already established keep being served until
// their peer closes them or Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	if s.serving {
		s.mu.Unlock()
		return errors.New("server: already serving")
	}
	s.serving = true

	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	s.listener = ln
	s.handoff.addr = ln.Addr()

	var sidCtx []byte
	if s.cfg.SessionIDContext {
		sidCtx = s.sessionIDContext(ln.Addr())
	}
	s.tlsConfig = newTLSConfig(s.cfg.Identity, sidCtx)
	s.mu.Unlock()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("fingerprint", pki.Fingerprint(s.cfg.Identity.Certificate)).
		Bytes("session_id_context", sidCtx).
		Msg("serving HTTPS")

	go func() {
		err := s.httpServer.Serve(s.handoff)
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			s.logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	err := s.acceptLoop(ln)
	s.handshakes.Wait()
	_ = s.handoff.Close()
	return err
}

func (s *Server) sessionIDContext(addr net.Addr) []byte {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	if s.cfg.ListenHost != "" {
		host = s.cfg.ListenHost
	}
	return SessionIDContext(port, host)
}

// ListenAndServe listens on addr and serves until ctx is done, then shuts down.
// It returns nil after a shutdown triggered by ctx.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.ListenHost == "" {
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			s.cfg.ListenHost = host
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown: %w", err)
		}
		if err := <-errCh; !errors.Is(err, ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Shutdown stops accepting, abandons pending handshakes without notifying the error
// handler, and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.guard.close()
	s.cancel()

	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close listener: %w", err))
		}
	}

	_ = s.handoff.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}

	return errors.Join(errs...)
}

// Addr returns the listener address, nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveSessions returns the number of established sessions whose connection is still open.
func (s *Server) ActiveSessions() int {
	return s.sessions.len()
}

// PeerCertificate returns the client certificate of the connection that produced r,
// nil when none was presented or the connection is gone.
func (s *Server) PeerCertificate(r *http.Request) *x509.Certificate {
	return PeerCertificate(r)
}

func (s *Server) connContext(ctx context.Context, c net.Conn) context.Context {
	sess := s.sessions.byConnection(c)
	if sess == nil {
		return ctx
	}
	return withSessionHandle(ctx, sessionHandle{reg: s.sessions, id: sess.ID})
}

func (s *Server) connState(c net.Conn, state http.ConnState) {
	switch state {
	case http.StateActive:
		if sess := s.sessions.byConnection(c); sess != nil {
			sess.setState(StateReading)
		}
	case http.StateClosed, http.StateHijacked:
		if sess := s.sessions.remove(c); sess != nil {
			s.metrics.SessionsActive.Add(context.Background(), -1)
		}
	}
}
