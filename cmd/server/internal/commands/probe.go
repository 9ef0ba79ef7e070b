package commands

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/wolfeidau/softmtls/internal/logger"
	"github.com/wolfeidau/softmtls/internal/pki"
)

type ProbeCmd struct {
	URL     string        `help:"URL to request" default:"https://localhost/secure"`
	Cert    string        `help:"client certificate, path or inline PEM" default:""`
	Key     string        `help:"client private key, path or inline PEM" default:""`
	Timeout time.Duration `help:"request timeout" default:"10s"`
}

func (c *ProbeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	tlsConfig, err := c.tlsConfig()
	if err != nil {
		return err
	}

	client := &http.Client{
		Timeout:   c.Timeout,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	ev := log.Info().Int("status", resp.StatusCode).Bool("client_cert", len(tlsConfig.Certificates) > 0)
	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		ev = ev.Str("server_fingerprint", pki.Fingerprint(resp.TLS.PeerCertificates[0])).
			Bool("resumed", resp.TLS.DidResume)
	}
	ev.Msg("Probe complete")

	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func (c *ProbeCmd) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: true, // #nosec G402 - servers use self-signed identities
		MinVersion:         tls.VersionTLS12,
	}

	if c.Cert == "" && c.Key == "" {
		return cfg, nil
	}
	if c.Cert == "" || c.Key == "" {
		return nil, errors.New("both --cert and --key are required for a client certificate")
	}

	cert, err := pki.LoadCertificate(c.Cert)
	if err != nil {
		return nil, err
	}

	key, err := loadKey(c.Key)
	if err != nil {
		return nil, err
	}

	if err := pki.VerifyKeyPair(cert, key); err != nil {
		return nil, err
	}

	id := &pki.Identity{Key: key, Certificate: cert}
	cfg.Certificates = []tls.Certificate{id.TLSCertificate()}

	return cfg, nil
}
