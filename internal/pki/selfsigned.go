package pki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// ValidFor is the validity window of generated certificates: 20 years of 365 days.
const ValidFor = 630720000 * time.Second

// DefaultSubject is used as both subject and issuer of generated certificates.
var DefaultSubject = pkix.Name{
	Country:      []string{"IT"},
	Organization: []string{"GamesOnWhales"},
	CommonName:   "localhost",
}

// GenerateSelfSigned creates a self-signed X.509 v3 certificate for key with serial number 1,
// DefaultSubject as subject and issuer, and a validity of ValidFor starting now.
// The certificate is signed with SHA-256.
func GenerateSelfSigned(key crypto.Signer) (*x509.Certificate, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil private key", ErrCertGen)
	}

	sigAlg, err := sha256Algorithm(key.Public())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCertGen, err)
	}

	notBefore := time.Now().UTC().Truncate(time.Second)

	template := &x509.Certificate{
		SerialNumber:       big.NewInt(1),
		Subject:            DefaultSubject,
		NotBefore:          notBefore,
		NotAfter:           notBefore.Add(ValidFor),
		SignatureAlgorithm: sigAlg,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign certificate: %w", ErrCertGen, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse signed certificate: %w", ErrCertGen, err)
	}

	return cert, nil
}

func sha256Algorithm(pub crypto.PublicKey) (x509.SignatureAlgorithm, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		return x509.SHA256WithRSA, nil
	case *ecdsa.PublicKey:
		return x509.ECDSAWithSHA256, nil
	case ed25519.PublicKey:
		// Ed25519 hashes internally, there is no SHA-256 variant.
		return x509.PureEd25519, nil
	default:
		return x509.UnknownSignatureAlgorithm, fmt.Errorf("unsupported key type %T", pub)
	}
}
