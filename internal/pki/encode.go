package pki

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// SignatureBytes returns a copy of the raw signature of cert, or nil for a nil certificate.
// It is meant for identity comparison and pinning, not for verification.
func SignatureBytes(cert *x509.Certificate) []byte {
	if cert == nil {
		return nil
	}
	return bytes.Clone(cert.Signature)
}

// SerializePrivateKey encodes key as PKCS#8 "PRIVATE KEY" PEM text.
func SerializePrivateKey(key crypto.Signer) (string, error) {
	if key == nil {
		return "", errors.New("nil private key")
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to marshal private key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypePrivateKey, Bytes: der})), nil
}

// SerializePublicKey encodes the public key of cert as PKIX "PUBLIC KEY" PEM text.
func SerializePublicKey(cert *x509.Certificate) (string, error) {
	if cert == nil {
		return "", errors.New("nil certificate")
	}

	der, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypePublicKey, Bytes: der})), nil
}

// EncodeCertificate returns cert as "CERTIFICATE" PEM text.
func EncodeCertificate(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificate, Bytes: cert.Raw}))
}

// Fingerprint returns the Base58-encoded SHA-256 digest of the DER certificate.
func Fingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return base58.Encode(hash[:])
}
