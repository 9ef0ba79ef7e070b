package commands

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	httpmiddleware "github.com/wolfeidau/softmtls/internal/http"
	"github.com/wolfeidau/softmtls/internal/logger"
	"github.com/wolfeidau/softmtls/internal/pki"
	"github.com/wolfeidau/softmtls/internal/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type routerConfig struct {
	Logger      zerolog.Logger
	Pins        []*x509.Certificate
	PinnedFPs   []string
	CORSOrigins []string
	Tracing     bool

	// Lookup resolves the client certificate of a request, server.PeerCertificate when nil.
	Lookup httpmiddleware.CertificateLookup
}

type certificateInfo struct {
	Subject     string `json:"subject"`
	Issuer      string `json:"issuer"`
	Fingerprint string `json:"fingerprint"`
	NotAfter    string `json:"not_after"`
}

type indexResponse struct {
	ClientCertificate *certificateInfo `json:"client_certificate"`
	Session           string           `json:"session,omitempty"`
	ClientIP          string           `json:"client_ip"`
}

func newRouter(cfg routerConfig) http.Handler {
	lookup := cfg.Lookup
	if lookup == nil {
		lookup = server.PeerCertificate
	}

	verify := pinVerifier(cfg.Pins, cfg.PinnedFPs)

	mux := http.NewServeMux()

	// Public: reports what the connection presented, never rejects.
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		resp := indexResponse{
			ClientCertificate: describeCertificate(lookup(r)),
			ClientIP:          httpmiddleware.ClientIPFromContext(r.Context()),
		}
		if sess, ok := server.SessionFromRequest(r); ok {
			resp.Session = sess.ID.String()
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.Handle("GET /secure", httpmiddleware.RequireClientCertificate(lookup, verify)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cert := httpmiddleware.ClientCertificateFromContext(r.Context())
			cn, err := pki.ClientCommonName(cert)
			if err != nil {
				cn = pki.Fingerprint(cert)
			}
			writeJSON(w, http.StatusOK, map[string]string{
				"message": fmt.Sprintf("hello %s", cn),
			})
		})))

	mux.Handle("GET /health", healthHandler(nil))

	var h http.Handler = mux
	h = logger.RequestLogger(cfg.Logger)(h)
	h = httpmiddleware.ClientIPMiddleware()(h)
	h = gzhttp.GzipHandler(h)

	if len(cfg.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet},
			AllowCredentials: true,
		}).Handler(h)
	}

	if cfg.Tracing {
		h = otelhttp.NewHandler(h, "softmtls")
	}

	return h
}

func describeCertificate(cert *x509.Certificate) *certificateInfo {
	if cert == nil {
		return nil
	}
	return &certificateInfo{
		Subject:     cert.Subject.String(),
		Issuer:      cert.Issuer.String(),
		Fingerprint: pki.Fingerprint(cert),
		NotAfter:    cert.NotAfter.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// healthHandler reports ok, with the number of open sessions when sessions is not nil.
func healthHandler(sessions func() int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok"}
		if sessions != nil {
			resp["active_sessions"] = sessions()
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// pinVerifier accepts a certificate matching either a pinned certificate or a
// pinned fingerprint. It returns nil, accepting any certificate, when nothing is pinned.
func pinVerifier(pins []*x509.Certificate, fingerprints []string) httpmiddleware.VerifyFunc {
	var verifiers []httpmiddleware.VerifyFunc
	if len(pins) > 0 {
		verifiers = append(verifiers, httpmiddleware.PinnedSignatures(pins...))
	}
	if len(fingerprints) > 0 {
		verifiers = append(verifiers, httpmiddleware.PinnedFingerprints(fingerprints...))
	}

	switch len(verifiers) {
	case 0:
		return nil
	case 1:
		return verifiers[0]
	}

	return func(cert *x509.Certificate) error {
		var err error
		for _, verify := range verifiers {
			if err = verify(cert); err == nil {
				return nil
			}
		}
		return err
	}
}

// loadPins loads the pinned client certificates from paths or inline PEM.
func loadPins(sources []string) ([]*x509.Certificate, error) {
	pins := make([]*x509.Certificate, 0, len(sources))
	for _, src := range sources {
		cert, err := pki.LoadCertificate(src)
		if err != nil {
			return nil, fmt.Errorf("failed to load pinned certificate: %w", err)
		}
		pins = append(pins, cert)
	}
	return pins, nil
}
