package pki

import (
	"crypto"
	"crypto/x509"
	"errors"
	"os"
)

const (
	keyFileMode  os.FileMode = 0o600
	certFileMode os.FileMode = 0o644
)

// Persist writes key to keyPath and cert to certPath as PEM.
//
// The two writes are independent: if the certificate write fails after the key was
// written, the key file is left on disk and an error is returned. A *PersistError
// tells an open failure apart from an encode or write failure.
func Persist(key crypto.Signer, keyPath string, cert *x509.Certificate, certPath string) error {
	keyPEM, err := SerializePrivateKey(key)
	if err != nil {
		return &PersistError{Path: keyPath, Op: OpEncode, Err: err}
	}

	if cert == nil {
		return &PersistError{Path: certPath, Op: OpEncode, Err: errors.New("nil certificate")}
	}

	if err := writeFile(keyPath, []byte(keyPEM), keyFileMode); err != nil {
		return err
	}

	// #nosec G306 - certificates are public material
	return writeFile(certPath, []byte(EncodeCertificate(cert)), certFileMode)
}

// Exists reports whether both keyPath and certPath are present on disk.
// It does not check that the key belongs to the certificate, see VerifyKeyPair.
func Exists(keyPath, certPath string) bool {
	return fileExists(keyPath) && fileExists(certPath)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm) // #nosec G304 - caller-controlled path
	if err != nil {
		return &PersistError{Path: path, Op: OpOpen, Err: err}
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return &PersistError{Path: path, Op: OpWrite, Err: err}
	}

	if err := f.Close(); err != nil {
		return &PersistError{Path: path, Op: OpWrite, Err: err}
	}

	return nil
}
