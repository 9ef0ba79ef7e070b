package server

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown.
var ErrServerClosed = errors.New("server: server closed")

// HandshakeError is passed to the error handler when the TLS handshake of an accepted
// connection fails. The connection has already been closed.
type HandshakeError struct {
	SessionID uuid.UUID
	Remote    string
	Err       error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("tls handshake with %s failed: %v", e.Remote, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
