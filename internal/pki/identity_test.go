package pki

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerate(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.pem")
	certPath := filepath.Join(dir, "cert.pem")

	first, generated, err := LoadOrGenerate(keyPath, certPath)
	require.NoError(t, err)
	require.True(t, generated)
	require.True(t, Exists(keyPath, certPath))

	second, generated, err := LoadOrGenerate(keyPath, certPath)
	require.NoError(t, err)
	require.False(t, generated)
	require.True(t, first.Certificate.Equal(second.Certificate))
	require.Equal(t, Fingerprint(first.Certificate), Fingerprint(second.Certificate))
}

func TestLoadOrGenerate_mismatchedPair(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.pem")
	certPath := filepath.Join(dir, "cert.pem")

	shared := testIdentity(t)
	other, err := Generate()
	require.NoError(t, err)

	// key from one identity, certificate from another
	require.NoError(t, Persist(other.Key, keyPath, shared.Certificate, certPath))
	require.True(t, Exists(keyPath, certPath))

	_, _, err = LoadOrGenerate(keyPath, certPath)
	require.ErrorIs(t, err, ErrKeyMismatch)
}

func TestTLSCertificate(t *testing.T) {
	id := testIdentity(t)

	tc := id.TLSCertificate()
	require.Len(t, tc.Certificate, 1)
	require.Equal(t, id.Certificate.Raw, tc.Certificate[0])
	require.Equal(t, id.Key, tc.PrivateKey)
	require.Same(t, id.Certificate, tc.Leaf)
}

func TestClientCommonName(t *testing.T) {
	cn, err := ClientCommonName(testIdentity(t).Certificate)
	require.NoError(t, err)
	require.Equal(t, "localhost", cn)

	_, err = ClientCommonName(&x509.Certificate{Subject: pkix.Name{}})
	require.ErrorIs(t, err, ErrNoCommonName)

	_, err = ClientCommonName(nil)
	require.ErrorIs(t, err, ErrNoCommonName)
}
