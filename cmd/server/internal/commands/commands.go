package commands

import (
	"crypto"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/wolfeidau/softmtls/internal/pki"
)

type Globals struct {
	Debug   bool
	Version string
}

// configureHTTPServer is used for the plain HTTP health listener, HTTPS goes through
// server.Server which applies the same limits.
func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// ensureParentDirs creates the directories holding the identity files.
func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
	}
	return nil
}

// loadKey reads a private key from a file path or inline PEM.
func loadKey(source string) (crypto.Signer, error) {
	if pki.IsPEM(source) {
		return pki.ParseKeyPEM([]byte(source))
	}
	return pki.LoadKeyFile(source)
}
