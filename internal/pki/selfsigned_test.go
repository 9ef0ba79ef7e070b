package pki

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	key := testIdentity(t).Key.(*rsa.PrivateKey)

	require.Equal(t, KeyBits, key.N.BitLen())
	require.Equal(t, 65537, key.E)
	require.NoError(t, key.Validate())
}

func TestGenerateSelfSigned(t *testing.T) {
	before := time.Now()
	id := testIdentity(t)
	cert := id.Certificate

	t.Run("issuer equals subject", func(t *testing.T) {
		require.True(t, bytes.Equal(cert.RawIssuer, cert.RawSubject))
		require.NoError(t, cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature))
	})

	t.Run("fixed subject", func(t *testing.T) {
		require.Equal(t, []string{"IT"}, cert.Subject.Country)
		require.Equal(t, []string{"GamesOnWhales"}, cert.Subject.Organization)
		require.Equal(t, "localhost", cert.Subject.CommonName)
	})

	t.Run("serial version and algorithm", func(t *testing.T) {
		require.Equal(t, 0, cert.SerialNumber.Cmp(big.NewInt(1)))
		require.Equal(t, 3, cert.Version)
		require.Equal(t, x509.SHA256WithRSA, cert.SignatureAlgorithm)
	})

	t.Run("validity window", func(t *testing.T) {
		require.False(t, cert.NotBefore.After(time.Now()))
		require.True(t, cert.NotAfter.After(before))
		require.Equal(t, 630720000*time.Second, cert.NotAfter.Sub(cert.NotBefore))
	})

	t.Run("bound to key", func(t *testing.T) {
		require.NoError(t, VerifyKeyPair(cert, id.Key))
	})
}

func TestGenerateSelfSigned_ecdsa(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	cert, err := GenerateSelfSigned(key)
	require.NoError(t, err)
	require.Equal(t, x509.ECDSAWithSHA256, cert.SignatureAlgorithm)
	require.NoError(t, VerifyKeyPair(cert, key))
}

func TestGenerateSelfSigned_nilKey(t *testing.T) {
	_, err := GenerateSelfSigned(nil)
	require.ErrorIs(t, err, ErrCertGen)
}
