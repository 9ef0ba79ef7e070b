package pki

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPersistRoundTrip(t *testing.T) {
	id := testIdentity(t)
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.pem")
	certPath := filepath.Join(dir, "cert.pem")

	require.NoError(t, Persist(id.Key, keyPath, id.Certificate, certPath))

	t.Run("key round trip", func(t *testing.T) {
		loaded, err := LoadKeyFile(keyPath)
		require.NoError(t, err)

		want, err := SerializePrivateKey(id.Key)
		require.NoError(t, err)
		got, err := SerializePrivateKey(loaded)
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("certificate round trip", func(t *testing.T) {
		loaded, err := LoadCertificateFile(certPath)
		require.NoError(t, err)
		require.Equal(t, EncodeCertificate(id.Certificate), EncodeCertificate(loaded))

		want, err := SerializePublicKey(id.Certificate)
		require.NoError(t, err)
		got, err := SerializePublicKey(loaded)
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("file modes", func(t *testing.T) {
		info, err := os.Stat(keyPath)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.pem")
	certPath := filepath.Join(dir, "cert.pem")

	require.False(t, Exists(keyPath, certPath))

	require.NoError(t, os.WriteFile(keyPath, []byte("key"), 0o600))
	require.False(t, Exists(keyPath, certPath))
	require.False(t, Exists(certPath, keyPath))

	require.NoError(t, os.WriteFile(certPath, []byte("cert"), 0o600))
	require.True(t, Exists(keyPath, certPath))

	require.NoError(t, os.Remove(keyPath))
	require.False(t, Exists(keyPath, certPath))
}

func TestPersistErrors(t *testing.T) {
	id := testIdentity(t)

	t.Run("key file cannot be opened", func(t *testing.T) {
		dir := t.TempDir()
		keyPath := filepath.Join(dir, "missing", "key.pem")
		certPath := filepath.Join(dir, "cert.pem")

		err := Persist(id.Key, keyPath, id.Certificate, certPath)
		require.ErrorIs(t, err, ErrIO)

		var perr *PersistError
		require.True(t, errors.As(err, &perr))
		require.Equal(t, OpOpen, perr.Op)
		require.Equal(t, keyPath, perr.Path)
		require.NoFileExists(t, certPath)
	})

	t.Run("certificate failure leaves key behind", func(t *testing.T) {
		dir := t.TempDir()
		keyPath := filepath.Join(dir, "key.pem")
		certPath := filepath.Join(dir, "missing", "cert.pem")

		err := Persist(id.Key, keyPath, id.Certificate, certPath)

		var perr *PersistError
		require.True(t, errors.As(err, &perr))
		require.Equal(t, OpOpen, perr.Op)
		require.Equal(t, certPath, perr.Path)
		require.FileExists(t, keyPath)
		require.False(t, Exists(keyPath, certPath))
	})

	t.Run("nothing to serialize", func(t *testing.T) {
		dir := t.TempDir()
		keyPath := filepath.Join(dir, "key.pem")

		err := Persist(nil, keyPath, id.Certificate, filepath.Join(dir, "cert.pem"))

		var perr *PersistError
		require.True(t, errors.As(err, &perr))
		require.Equal(t, OpEncode, perr.Op)
		require.NoFileExists(t, keyPath)
	})
}
