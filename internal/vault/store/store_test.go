package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localmind/aegis/internal/vault/crypto"
	"github.com/localmind/aegis/pkg/models"
)

func testVault(t *testing.T) *Vault {
	t.Helper()
	key, err := crypto.RandomBytes(crypto.KeyLen)
	require.NoError(t, err)
	v, err := Open(filepath.Join(t.TempDir(), "vault.db"), key)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func TestCreateGetRoundTrip(t *testing.T) {
	v := testVault(t)

	cred := models.Credential{
		Key:      "github:token",
		Type:     models.CredentialOAuth,
		Data:     map[string]any{"access_token": "ghp_abc123"},
		Provider: "github",
		Scopes:   []string{"repo", "read:user"},
	}
	require.NoError(t, v.Create(cred))

	got, err := v.Get("github:token")
	require.NoError(t, err)
	assert.Equal(t, models.CredentialOAuth, got.Type)
	assert.Equal(t, "github", got.Provider)
	assert.ElementsMatch(t, cred.Scopes, got.Scopes)

	data, ok := got.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ghp_abc123", data["access_token"])
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	v := testVault(t)
	_, err := v.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDuplicateKeyFailsWithAlreadyExists(t *testing.T) {
	v := testVault(t)
	require.NoError(t, v.Create(models.Credential{Key: "k", Type: models.CredentialAPIKey, Data: "v1"}))

	err := v.Create(models.Credential{Key: "k", Type: models.CredentialAPIKey, Data: "v2"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := v.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Data)
}

func TestUpdateExistingKeyReplacesData(t *testing.T) {
	v := testVault(t)
	require.NoError(t, v.Create(models.Credential{Key: "k", Type: models.CredentialAPIKey, Data: "v1"}))
	require.NoError(t, v.Update(models.Credential{Key: "k", Type: models.CredentialAPIKey, Data: "v2"}))

	got, err := v.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Data)
}

func TestUpdateMissingKeyReturnsNotFound(t *testing.T) {
	v := testVault(t)
	err := v.Update(models.Credential{Key: "missing", Type: models.CredentialAPIKey, Data: "v"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	v := testVault(t)
	require.NoError(t, v.Create(models.Credential{Key: "k", Type: models.CredentialAPIKey, Data: "v"}))
	require.NoError(t, v.Delete("k"))
	require.NoError(t, v.Delete("k"))

	_, err := v.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFiltersByType(t *testing.T) {
	v := testVault(t)
	require.NoError(t, v.Create(models.Credential{Key: "a", Type: models.CredentialAPIKey, Data: "x", Provider: "github"}))
	require.NoError(t, v.Create(models.Credential{Key: "b", Type: models.CredentialOAuth, Data: "y", Provider: "slack"}))

	apiKeys, err := v.List(models.CredentialAPIKey)
	require.NoError(t, err)
	require.Len(t, apiKeys, 1)
	assert.Equal(t, "a", apiKeys[0].Key)

	all, err := v.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
