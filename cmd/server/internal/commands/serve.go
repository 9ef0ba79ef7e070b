package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/softmtls/internal/logger"
	"github.com/wolfeidau/softmtls/internal/pki"
	"github.com/wolfeidau/softmtls/internal/server"
	"github.com/wolfeidau/softmtls/internal/ssmcerts"
	"github.com/wolfeidau/softmtls/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

type ServeCmd struct {
	// Listener configuration
	Listen           string        `help:"HTTPS listen address" default:"0.0.0.0:443" env:"SOFTMTLS_LISTEN"`
	HandshakeTimeout time.Duration `help:"maximum duration of a TLS handshake" default:"10s" env:"SOFTMTLS_HANDSHAKE_TIMEOUT"`
	MaxConnections   int           `help:"maximum concurrent connections, 0 for no limit" default:"0" env:"SOFTMTLS_MAX_CONNECTIONS"`
	SessionIDContext bool          `help:"bind resumable TLS sessions to the listen address" default:"false" env:"SOFTMTLS_SESSION_ID_CONTEXT"`

	// Identity configuration
	Cert    string `help:"path to TLS cert file, generated with the key when either is missing" default:"./.certs/cert.pem" env:"SOFTMTLS_TLS_CERT"`
	Key     string `help:"path to TLS key file" default:"./.certs/key.pem" env:"SOFTMTLS_TLS_KEY"`
	SSMCert string `name:"ssm-cert" help:"SSM parameter holding the PEM certificate, overrides --cert" default:"" env:"SOFTMTLS_SSM_CERT"`
	SSMKey  string `name:"ssm-key" help:"SSM parameter holding the PEM key, overrides --key" default:"" env:"SOFTMTLS_SSM_KEY"`

	// Client certificates
	Pin            []string `help:"client certificate (path or PEM) accepted on /secure, any presented certificate is accepted when none are pinned" env:"SOFTMTLS_PIN"`
	PinFingerprint []string `help:"base58 SHA-256 fingerprint of a client certificate accepted on /secure" env:"SOFTMTLS_PIN_FINGERPRINT"`

	// HTTP configuration
	CORSOrigins  []string `help:"allowed CORS origins" env:"SOFTMTLS_CORS_ORIGINS"`
	HealthListen string   `help:"plain HTTP health check listen address, disabled when empty" default:"" env:"SOFTMTLS_HEALTH_LISTEN"`
	Tracing      bool     `help:"enable tracing" default:"false" env:"SOFTMTLS_TRACING"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "softmtls",
			Version:     globals.Version,
			SampleRatio: 1,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
			shutdown = func(context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	id, err := c.loadIdentity(ctx)
	if err != nil {
		return err
	}

	pins, err := loadPins(c.Pin)
	if err != nil {
		return err
	}

	handler := newRouter(routerConfig{
		Logger:      log,
		Pins:        pins,
		PinnedFPs:   c.PinFingerprint,
		CORSOrigins: c.CORSOrigins,
		Tracing:     c.Tracing,
	})

	srv, err := server.New(server.Config{
		Identity:         id,
		HandshakeTimeout: c.HandshakeTimeout,
		MaxConnections:   c.MaxConnections,
		SessionIDContext: c.SessionIDContext,
	}, handler, server.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info().
		Str("listen", c.Listen).
		Str("fingerprint", pki.Fingerprint(id.Certificate)).
		Int("pinned_clients", len(pins)+len(c.PinFingerprint)).
		Msg("Listening for HTTPS connections")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(ctx, c.Listen)
	})

	if c.HealthListen != "" {
		g.Go(func() error {
			return serveHealth(ctx, log, c.HealthListen, srv)
		})
	}

	return g.Wait()
}

// loadIdentity prefers SSM when both parameters are set, otherwise it loads or creates
// the identity on disk.
func (c *ServeCmd) loadIdentity(ctx context.Context) (*pki.Identity, error) {
	ssmCfg := ssmcerts.Config{CertParam: c.SSMCert, KeyParam: c.SSMKey}
	if ssmCfg.Enabled() {
		loader, err := ssmcerts.NewFromDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		return loader.Load(ctx, ssmCfg)
	}
	if c.SSMCert != "" || c.SSMKey != "" {
		return nil, errors.New("both --ssm-cert and --ssm-key are required")
	}

	if err := ensureParentDirs(c.Key, c.Cert); err != nil {
		return nil, err
	}

	id, _, err := pki.LoadOrGenerate(c.Key, c.Cert)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	return id, nil
}

func serveHealth(ctx context.Context, log zerolog.Logger, addr string, srv *server.Server) error {
	mux := http.NewServeMux()
	mux.Handle("GET /health", healthHandler(srv.ActiveSessions))

	hs := configureHTTPServer(addr, mux)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", addr).Msg("Serving health checks")
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("health listener: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}
