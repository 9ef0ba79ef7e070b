package pki

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const (
	pemTypeCertificate   = "CERTIFICATE"
	pemTypePrivateKey    = "PRIVATE KEY"
	pemTypeRSAPrivateKey = "RSA PRIVATE KEY"
	pemTypeECPrivateKey  = "EC PRIVATE KEY"
	pemTypePublicKey     = "PUBLIC KEY"
)

// LoadCertificate loads a certificate from source, which is either inline PEM text
// or a path to a PEM file.
func LoadCertificate(source string) (*x509.Certificate, error) {
	if IsPEM(source) {
		return ParseCertificatePEM([]byte(source))
	}
	return LoadCertificateFile(source)
}

// IsPEM reports whether s looks like PEM text rather than a file path.
func IsPEM(s string) bool {
	return strings.Contains(s, "-----BEGIN ")
}

// LoadCertificateFile reads a PEM-encoded certificate from path.
func LoadCertificateFile(path string) (*x509.Certificate, error) {
	data, err := readPEMFile(path)
	if err != nil {
		return nil, err
	}

	cert, err := ParseCertificatePEM(data)
	if err != nil {
		return nil, fmt.Errorf("certificate %s: %w", path, err)
	}

	return cert, nil
}

// ParseCertificatePEM parses the first CERTIFICATE block in data.
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, err := decodePEM(data, pemTypeCertificate)
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse certificate: %w", ErrParse, err)
	}

	return cert, nil
}

// LoadKeyFile reads a PEM-encoded private key from path.
func LoadKeyFile(path string) (crypto.Signer, error) {
	data, err := readPEMFile(path)
	if err != nil {
		return nil, err
	}

	key, err := ParseKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("private key %s: %w", path, err)
	}

	return key, nil
}

// ParseKeyPEM parses a PKCS#8, PKCS#1 (RSA) or SEC 1 (EC) private key from PEM data.
func ParseKeyPEM(data []byte) (crypto.Signer, error) {
	block, err := decodePEM(data, pemTypePrivateKey, pemTypeRSAPrivateKey, pemTypeECPrivateKey)
	if err != nil {
		return nil, err
	}

	var key any
	switch block.Type {
	case pemTypeRSAPrivateKey:
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case pemTypeECPrivateKey:
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %w", ErrParse, err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported private key type %T", ErrParse, key)
	}

	return signer, nil
}

func readPEMFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 - caller-controlled path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrIO, path, err)
	}
	return data, nil
}

// decodePEM returns the first block in data whose type is one of types.
func decodePEM(data []byte, types ...string) (*pem.Block, error) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, fmt.Errorf("%w: no %s PEM block found", ErrParse, types[0])
		}
		for _, t := range types {
			if block.Type == t {
				return block, nil
			}
		}
	}
}
