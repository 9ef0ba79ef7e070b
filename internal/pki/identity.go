package pki

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Identity is a private key and the certificate it belongs to.
type Identity struct {
	Key         crypto.Signer
	Certificate *x509.Certificate
}

// Generate creates a fresh RSA key and a self-signed certificate for it.
func Generate() (*Identity, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	cert, err := GenerateSelfSigned(key)
	if err != nil {
		return nil, err
	}

	return &Identity{Key: key, Certificate: cert}, nil
}

// LoadIdentity loads the key and certificate from disk and checks that they belong together.
func LoadIdentity(keyPath, certPath string) (*Identity, error) {
	key, err := LoadKeyFile(keyPath)
	if err != nil {
		return nil, err
	}

	cert, err := LoadCertificateFile(certPath)
	if err != nil {
		return nil, err
	}

	if err := VerifyKeyPair(cert, key); err != nil {
		return nil, fmt.Errorf("%s and %s: %w", keyPath, certPath, err)
	}

	return &Identity{Key: key, Certificate: cert}, nil
}

// LoadOrGenerate loads the identity at keyPath/certPath when both files exist, otherwise it
// generates a new self-signed identity and persists it there. The returned bool is true when
// a new identity was generated.
func LoadOrGenerate(keyPath, certPath string) (*Identity, bool, error) {
	if Exists(keyPath, certPath) {
		id, err := LoadIdentity(keyPath, certPath)
		if err != nil {
			return nil, false, err
		}

		log.Debug().
			Str("key", keyPath).
			Str("cert", certPath).
			Str("fingerprint", Fingerprint(id.Certificate)).
			Msg("loaded existing identity")

		return id, false, nil
	}

	log.Info().Str("key", keyPath).Str("cert", certPath).Msg("generating self-signed identity")

	id, err := Generate()
	if err != nil {
		return nil, false, err
	}

	if err := Persist(id.Key, keyPath, id.Certificate, certPath); err != nil {
		return nil, false, err
	}

	log.Info().
		Str("fingerprint", Fingerprint(id.Certificate)).
		Time("not_after", id.Certificate.NotAfter).
		Msg("identity generated and stored")

	return id, true, nil
}

// TLSCertificate returns the identity in the form crypto/tls expects.
func (id *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{id.Certificate.Raw},
		PrivateKey:  id.Key,
		Leaf:        id.Certificate,
	}
}

// VerifyKeyPair checks that the public half of key is the public key of cert.
func VerifyKeyPair(cert *x509.Certificate, key crypto.Signer) error {
	if cert == nil || key == nil {
		return fmt.Errorf("%w: missing certificate or key", ErrKeyMismatch)
	}

	pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return fmt.Errorf("%w: unsupported public key type %T", ErrKeyMismatch, key.Public())
	}

	if !pub.Equal(cert.PublicKey) {
		return ErrKeyMismatch
	}

	return nil
}

// ClientCommonName returns the subject common name of cert.
func ClientCommonName(cert *x509.Certificate) (string, error) {
	if cert == nil || cert.Subject.CommonName == "" {
		return "", ErrNoCommonName
	}
	return cert.Subject.CommonName, nil
}
