package pki

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	sharedOnce     sync.Once
	sharedIdentity *Identity
	sharedErr      error
)

// testIdentity returns an identity shared by the package tests, RSA generation is slow.
func testIdentity(t *testing.T) *Identity {
	t.Helper()
	sharedOnce.Do(func() {
		sharedIdentity, sharedErr = Generate()
	})
	require.NoError(t, sharedErr)
	return sharedIdentity
}
