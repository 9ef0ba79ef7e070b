package pki

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the identity store. Callers match them with errors.Is.
var (
	// ErrKeyGen is returned when a private key could not be generated.
	ErrKeyGen = errors.New("key generation failed")

	// ErrCertGen is returned when a certificate could not be created or signed.
	ErrCertGen = errors.New("certificate generation failed")

	// ErrIO is returned when a file could not be opened, read or written.
	ErrIO = errors.New("i/o failure")

	// ErrNotFound is returned when a certificate or key file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrParse is returned when PEM content is malformed or holds the wrong object.
	ErrParse = errors.New("parse failure")

	// ErrKeyMismatch is returned when a private key does not belong to a certificate.
	ErrKeyMismatch = errors.New("private key does not match certificate")

	// ErrNoCommonName is returned when a certificate subject has no common name.
	ErrNoCommonName = errors.New("certificate has no common name")
)

// PersistOp identifies the step of Persist that failed.
type PersistOp string

const (
	OpEncode PersistOp = "encode"
	OpOpen   PersistOp = "open"
	OpWrite  PersistOp = "write"
)

// PersistError reports which file and which step failed while persisting an identity.
// It matches ErrIO as well as the underlying cause.
type PersistError struct {
	Path string
	Op   PersistOp
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *PersistError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}
