package keychain

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localmind/aegis/internal/vault/crypto"
)

func TestFileKeychain_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	kc := NewFileKeychain(filepath.Join(dir, "master.key"))

	has, err := kc.HasMasterKey()
	require.NoError(t, err)
	assert.False(t, has)

	key, err := crypto.RandomBytes(crypto.KeyLen)
	require.NoError(t, err)
	require.NoError(t, kc.SetMasterKey(key))

	has, err = kc.HasMasterKey()
	require.NoError(t, err)
	assert.True(t, has)

	got, err := kc.GetMasterKey()
	require.NoError(t, err)
	assert.Equal(t, key, got)

	require.NoError(t, kc.DeleteMasterKey())
	has, err = kc.HasMasterKey()
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFileKeychain_MissingKeyReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	kc := NewFileKeychain(filepath.Join(dir, "missing.key"))

	_, err := kc.GetMasterKey()
	assert.ErrorIs(t, err, ErrMasterKeyNotFound)
}

func TestFileKeychain_Overwrite(t *testing.T) {
	dir := t.TempDir()
	kc := NewFileKeychain(filepath.Join(dir, "master.key"))

	key1, _ := crypto.RandomBytes(crypto.KeyLen)
	key2, _ := crypto.RandomBytes(crypto.KeyLen)

	require.NoError(t, kc.SetMasterKey(key1))
	require.NoError(t, kc.SetMasterKey(key2))

	got, err := kc.GetMasterKey()
	require.NoError(t, err)
	assert.Equal(t, key2, got)
}

func TestDefaultFilePath(t *testing.T) {
	got := DefaultFilePath("/data/vault")
	assert.Equal(t, filepath.Join("/data/vault", "master.key"), got)
}
