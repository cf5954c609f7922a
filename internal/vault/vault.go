// Package vault wires the master-key provider (internal/vault/keychain),
// the AEAD primitives (internal/vault/crypto), and the encrypted
// credential store (internal/vault/store) behind the single bootstrap
// contract spec §4.5 names: open_with_keychain(data_dir). Grounded on the
// Rust original's keychain.rs bootstrap sequence (try OS keychain, fall
// back to the encrypted file, generate on first run).
package vault

import (
	"fmt"
	"path/filepath"

	"github.com/localmind/aegis/internal/vault/crypto"
	"github.com/localmind/aegis/internal/vault/keychain"
	"github.com/localmind/aegis/internal/vault/store"
)

// OpenWithKeychain bootstraps or recovers the master key via the
// platform keychain provider (OS keychain first, encrypted-file fallback)
// and opens the credential store at data_dir/vault.db.
func OpenWithKeychain(dataDir string) (*store.Vault, error) {
	provider := keychain.Platform(dataDir)

	has, err := provider.HasMasterKey()
	if err != nil {
		return nil, fmt.Errorf("vault: checking master key: %w", err)
	}

	var masterKey []byte
	if has {
		masterKey, err = provider.GetMasterKey()
		if err != nil {
			return nil, fmt.Errorf("vault: loading master key: %w", err)
		}
	} else {
		masterKey, err = crypto.RandomBytes(crypto.KeyLen)
		if err != nil {
			return nil, fmt.Errorf("vault: generating master key: %w", err)
		}
		if err := provider.SetMasterKey(masterKey); err != nil {
			return nil, fmt.Errorf("vault: storing master key: %w", err)
		}
	}

	return store.Open(filepath.Join(dataDir, "vault.db"), masterKey)
}
