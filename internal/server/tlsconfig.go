package server

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"slices"

	"github.com/wolfeidau/softmtls/internal/pki"
)

// MaxSessionIDContextLength is the longest session id context kept by SessionIDContext.
const MaxSessionIDContextLength = 32

const sessionContextTag = "sid-ctx:"

// SessionIDContext derives the session id context of a listening endpoint:
// "{port}:{host reversed byte by byte}", truncated to MaxSessionIDContextLength bytes.
// Reversing the host keeps its most distinctive trailing bytes inside the limit.
func SessionIDContext(port, host string) []byte {
	b := make([]byte, 0, len(port)+1+len(host))
	b = append(b, port...)
	b = append(b, ':')
	for i := len(host) - 1; i >= 0; i-- {
		b = append(b, host[i])
	}

	if len(b) > MaxSessionIDContextLength {
		b = b[:MaxSessionIDContextLength]
	}
	return b
}

// acceptAnyPeer is the peer verification predicate of every connection. Whether a client
// certificate is acceptable is decided per request by the HTTP layer.
func acceptAnyPeer([][]byte, [][]*x509.Certificate) error {
	return nil
}

// newTLSConfig builds the server TLS configuration. It requests a client certificate once
// per connection and never fails the handshake because of its absence.
//
// When sidCtx is not empty, session tickets are tagged with it and tickets without the
// tag are not resumed.
func newTLSConfig(id *pki.Identity, sidCtx []byte) *tls.Config {
	cfg := &tls.Config{
		Certificates:          []tls.Certificate{id.TLSCertificate()},
		ClientAuth:            tls.RequestClientCert,
		VerifyPeerCertificate: acceptAnyPeer,
		MinVersion:            tls.VersionTLS12,
		NextProtos:            []string{"http/1.1"},
	}

	if len(sidCtx) > 0 {
		bindSessionIDContext(cfg, sidCtx)
	}

	return cfg
}

func bindSessionIDContext(cfg *tls.Config, sidCtx []byte) {
	tag := append([]byte(sessionContextTag), sidCtx...)

	cfg.WrapSession = func(cs tls.ConnectionState, ss *tls.SessionState) ([]byte, error) {
		ss.Extra = append(ss.Extra, tag)
		return cfg.EncryptTicket(cs, ss)
	}

	cfg.UnwrapSession = func(identity []byte, cs tls.ConnectionState) (*tls.SessionState, error) {
		ss, err := cfg.DecryptTicket(identity, cs)
		if ss == nil || err != nil {
			return nil, err
		}

		if !slices.ContainsFunc(ss.Extra, func(e []byte) bool { return bytes.Equal(e, tag) }) {
			// issued for another endpoint, fall back to a full handshake
			return nil, nil
		}
		return ss, nil
	}
}
