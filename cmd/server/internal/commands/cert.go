package commands

import (
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wolfeidau/softmtls/internal/logger"
	"github.com/wolfeidau/softmtls/internal/pki"
)

type CertCmd struct {
	Generate CertGenerateCmd `cmd:"" help:"Generate and store a self-signed identity"`
	Inspect  CertInspectCmd  `cmd:"" help:"Print the details of a PEM certificate"`
}

type CertGenerateCmd struct {
	Key   string `help:"path to write the private key" default:"./.certs/key.pem" env:"SOFTMTLS_TLS_KEY"`
	Cert  string `help:"path to write the certificate" default:"./.certs/cert.pem" env:"SOFTMTLS_TLS_CERT"`
	Force bool   `help:"overwrite an existing identity" default:"false"`
}

func (c *CertGenerateCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)

	if pki.Exists(c.Key, c.Cert) && !c.Force {
		return fmt.Errorf("identity already exists at %s and %s, use --force to replace it", c.Key, c.Cert)
	}

	if err := ensureParentDirs(c.Key, c.Cert); err != nil {
		return err
	}

	id, err := pki.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate identity: %w", err)
	}

	if err := pki.Persist(id.Key, c.Key, id.Certificate, c.Cert); err != nil {
		return fmt.Errorf("failed to store identity: %w", err)
	}

	log.Info().
		Str("key", c.Key).
		Str("cert", c.Cert).
		Str("fingerprint", pki.Fingerprint(id.Certificate)).
		Msg("Identity generated")

	return nil
}

type CertInspectCmd struct {
	Source string `arg:"" help:"certificate file path or inline PEM"`
}

func (c *CertInspectCmd) Run(globals *Globals) error {
	cert, err := pki.LoadCertificate(c.Source)
	if err != nil {
		return err
	}
	return describe(os.Stdout, cert)
}

func describe(w io.Writer, cert *x509.Certificate) error {
	pub, err := pki.SerializePublicKey(cert)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "Subject:     %s\nIssuer:      %s\nSerial:      %s\nNot Before:  %s\nNot After:   %s\nAlgorithm:   %s\nFingerprint: %s\nSignature:   %s\n%s",
		cert.Subject,
		cert.Issuer,
		cert.SerialNumber,
		cert.NotBefore.UTC().Format(time.RFC3339),
		cert.NotAfter.UTC().Format(time.RFC3339),
		cert.SignatureAlgorithm,
		pki.Fingerprint(cert),
		hex.EncodeToString(pki.SignatureBytes(cert)),
		pub,
	)
	return err
}
