package http

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/softmtls/internal/pki"
)

// ErrCertificateNotPinned is returned by pinning verifiers for unknown certificates.
var ErrCertificateNotPinned = errors.New("client certificate is not trusted")

// CertificateLookup returns the client certificate of the connection behind r, nil when
// none was presented.
type CertificateLookup func(r *http.Request) *x509.Certificate

// VerifyFunc decides whether a presented client certificate is acceptable.
// The error message is returned to the client.
type VerifyFunc func(cert *x509.Certificate) error

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Status: status, Message: message})
}

// ClientCertificateFromContext returns the certificate accepted by RequireClientCertificate.
func ClientCertificateFromContext(ctx context.Context) *x509.Certificate {
	cert, _ := ctx.Value(clientCertificateContextKey).(*x509.Certificate)
	return cert
}

// RequireClientCertificate rejects requests whose connection did not present a client
// certificate (401) or whose certificate verify rejects (403). A nil verify accepts any
// certificate that was presented.
func RequireClientCertificate(lookup CertificateLookup, verify VerifyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cert := lookup(r)
			if cert == nil {
				log.Warn().Str("path", r.URL.Path).Str("remote", ExtractClientIP(r)).Msg("Missing client certificate")
				writeError(w, http.StatusUnauthorized, "client certificate required")
				return
			}

			if verify != nil {
				if err := verify(cert); err != nil {
					log.Warn().Err(err).
						Str("fingerprint", pki.Fingerprint(cert)).
						Str("subject", cert.Subject.String()).
						Msg("Client certificate rejected")
					writeError(w, http.StatusForbidden, err.Error())
					return
				}
			}

			ctx := context.WithValue(r.Context(), clientCertificateContextKey, cert)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PinnedSignatures accepts certificates whose signature matches one of certs.
func PinnedSignatures(certs ...*x509.Certificate) VerifyFunc {
	pinned := make([][]byte, 0, len(certs))
	for _, c := range certs {
		if sig := pki.SignatureBytes(c); len(sig) > 0 {
			pinned = append(pinned, sig)
		}
	}

	return func(cert *x509.Certificate) error {
		sig := pki.SignatureBytes(cert)
		if slices.ContainsFunc(pinned, func(p []byte) bool { return bytes.Equal(p, sig) }) {
			return nil
		}
		return ErrCertificateNotPinned
	}
}

// PinnedFingerprints accepts certificates whose pki.Fingerprint is one of fingerprints.
func PinnedFingerprints(fingerprints ...string) VerifyFunc {
	return func(cert *x509.Certificate) error {
		if slices.Contains(fingerprints, pki.Fingerprint(cert)) {
			return nil
		}
		return ErrCertificateNotPinned
	}
}
