package http

import (
	"crypto/x509"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/softmtls/internal/pki"
)

var (
	certsOnce sync.Once
	trusted   *x509.Certificate
	stranger  *x509.Certificate
	certsErr  error
)

func testCertificates(t *testing.T) (*x509.Certificate, *x509.Certificate) {
	t.Helper()
	certsOnce.Do(func() {
		var a, b *pki.Identity
		if a, certsErr = pki.Generate(); certsErr != nil {
			return
		}
		if b, certsErr = pki.Generate(); certsErr != nil {
			return
		}
		trusted, stranger = a.Certificate, b.Certificate
	})
	require.NoError(t, certsErr)
	return trusted, stranger
}

func fixedLookup(cert *x509.Certificate) CertificateLookup {
	return func(*http.Request) *x509.Certificate { return cert }
}

func TestRequireClientCertificate(t *testing.T) {
	trusted, stranger := testCertificates(t)

	tests := []struct {
		name        string
		presented   *x509.Certificate
		verify      VerifyFunc
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "no certificate",
			presented:   nil,
			verify:      PinnedSignatures(trusted),
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "client certificate required",
		},
		{
			name:        "unpinned certificate",
			presented:   stranger,
			verify:      PinnedSignatures(trusted),
			wantStatus:  http.StatusForbidden,
			wantMessage: ErrCertificateNotPinned.Error(),
		},
		{
			name:       "pinned certificate",
			presented:  trusted,
			verify:     PinnedSignatures(trusted),
			wantStatus: http.StatusOK,
		},
		{
			name:       "any certificate without verifier",
			presented:  stranger,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *x509.Certificate
			handler := RequireClientCertificate(fixedLookup(tt.presented), tt.verify)(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					seen = ClientCertificateFromContext(r.Context())
					w.WriteHeader(http.StatusOK)
				}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				require.Same(t, tt.presented, seen)
				return
			}

			require.Nil(t, seen)
			require.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Equal(t, tt.wantStatus, body.Status)
			require.Equal(t, tt.wantMessage, body.Message)
		})
	}
}

func TestRequireClientCertificate_body(t *testing.T) {
	handler := RequireClientCertificate(fixedLookup(nil), nil)(http.NotFoundHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.JSONEq(t, `{"status":401,"message":"client certificate required"}`, w.Body.String())
}

func TestPinnedFingerprints(t *testing.T) {
	trusted, stranger := testCertificates(t)

	verify := PinnedFingerprints(pki.Fingerprint(trusted))
	require.NoError(t, verify(trusted))
	require.ErrorIs(t, verify(stranger), ErrCertificateNotPinned)
}

func TestPinnedSignatures_empty(t *testing.T) {
	trusted, _ := testCertificates(t)

	verify := PinnedSignatures()
	require.ErrorIs(t, verify(trusted), ErrCertificateNotPinned)
}

func TestClientCertificateFromContext_missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Nil(t, ClientCertificateFromContext(r.Context()))
}
