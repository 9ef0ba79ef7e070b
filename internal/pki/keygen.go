package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
)

// KeyBits is the size of generated RSA keys. crypto/rsa always uses the F4 public exponent (65537).
const KeyBits = 2048

// GenerateKey generates a new 2048-bit RSA private key.
func GenerateKey() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyGen, err)
	}
	return key, nil
}
