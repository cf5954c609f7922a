// Package keychain provides platform-aware storage for the vault's master
// encryption key: a real OS keychain where available, and an encrypted file
// fallback derived from machine-specific data everywhere else.
package keychain

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"

	"github.com/localmind/aegis/internal/vault/crypto"
)

var (
	ErrMasterKeyNotFound   = errors.New("keychain: master key not found")
	ErrMasterKeyCorrupted  = errors.New("keychain: master key file too small or corrupted")
	ErrKeychainUnavailable = errors.New("keychain: OS keychain unavailable")
)

// Provider abstracts over platform-specific secure storage for the vault's
// master key.
type Provider interface {
	GetMasterKey() ([]byte, error)
	SetMasterKey(key []byte) error
	HasMasterKey() (bool, error)
	DeleteMasterKey() error
}

// appSalt is mixed into the device-derived fallback key. Changing it
// invalidates every previously stored master key file.
var appSalt = []byte("aegis-vault-keychain-v1\x00\x00\x00\x00\x00\x00\x00\x00\x00")

func init() {
	if len(appSalt) != crypto.SaltLen {
		panic("keychain: appSalt must be crypto.SaltLen bytes")
	}
}

// FileKeychain is the cross-platform fallback: it stores the master key
// encrypted under a key derived from the hostname, username, and appSalt.
// File layout: salt[32] || nonce[12] || ciphertext+tag, mode 0600.
type FileKeychain struct {
	path string
}

// NewFileKeychain returns a FileKeychain that stores its key at path.
func NewFileKeychain(path string) *FileKeychain {
	return &FileKeychain{path: path}
}

// DefaultFilePath returns the conventional master key file location within
// a vault data directory.
func DefaultFilePath(dataDir string) string {
	return filepath.Join(dataDir, "master.key")
}

func (f *FileKeychain) deviceDerivedKey() []byte {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown-host"
	}
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME")
	}
	if username == "" {
		username = "unknown-user"
	}
	material := append([]byte(hostname+username), appSalt...)
	return crypto.DeriveKey(material, appSalt)
}

func (f *FileKeychain) GetMasterKey() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrMasterKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keychain: read master key file: %w", err)
	}
	if len(data) < crypto.SaltLen+crypto.NonceLen+16 {
		return nil, ErrMasterKeyCorrupted
	}
	rest := data[crypto.SaltLen:]
	deviceKey := f.deviceDerivedKey()
	plaintext, err := crypto.Open(rest, deviceKey)
	if err != nil {
		return nil, fmt.Errorf("keychain: decrypt master key: %w", err)
	}
	return plaintext, nil
}

func (f *FileKeychain) SetMasterKey(key []byte) error {
	deviceKey := f.deviceDerivedKey()
	sealed, err := crypto.Seal(key, deviceKey)
	if err != nil {
		return fmt.Errorf("keychain: seal master key: %w", err)
	}
	data := make([]byte, 0, crypto.SaltLen+len(sealed))
	data = append(data, appSalt...)
	data = append(data, sealed...)

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("keychain: create data dir: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("keychain: write master key file: %w", err)
	}
	return os.Chmod(f.path, 0o600)
}

func (f *FileKeychain) HasMasterKey() (bool, error) {
	_, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (f *FileKeychain) DeleteMasterKey() error {
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// OSKeychain stores the master key in the platform's real secret store
// (macOS Keychain, Windows Credential Manager, libsecret) via go-keyring.
type OSKeychain struct {
	service string
	account string
}

const (
	defaultService = "aegis.vault"
	defaultAccount = "master-key"
)

// NewOSKeychain returns an OSKeychain using the default service/account
// names. Use NewOSKeychainWithNames for isolated test instances.
func NewOSKeychain() *OSKeychain {
	return &OSKeychain{service: defaultService, account: defaultAccount}
}

func NewOSKeychainWithNames(service, account string) *OSKeychain {
	return &OSKeychain{service: service, account: account}
}

func (k *OSKeychain) GetMasterKey() ([]byte, error) {
	secret, err := keyring.Get(k.service, k.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrMasterKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeychainUnavailable, err)
	}
	return []byte(secret), nil
}

func (k *OSKeychain) SetMasterKey(key []byte) error {
	if err := keyring.Set(k.service, k.account, string(key)); err != nil {
		return fmt.Errorf("%w: %w", ErrKeychainUnavailable, err)
	}
	return nil
}

func (k *OSKeychain) HasMasterKey() (bool, error) {
	_, err := keyring.Get(k.service, k.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrKeychainUnavailable, err)
	}
	return true, nil
}

func (k *OSKeychain) DeleteMasterKey() error {
	err := keyring.Delete(k.service, k.account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrKeychainUnavailable, err)
	}
	return nil
}

// Platform returns the best available keychain provider for the running
// process: an OSKeychain when the platform secret store is reachable,
// falling back to FileKeychain under dataDir otherwise. The probe is a
// cheap HasMasterKey call; callers on a headless/CI box without a secret
// service transparently get the file fallback.
func Platform(dataDir string) Provider {
	osKeychain := NewOSKeychain()
	if _, err := osKeychain.HasMasterKey(); err == nil {
		slog.Default().With("component", "vault.keychain").Info("using OS keychain for master key storage")
		return osKeychain
	}
	path := DefaultFilePath(dataDir)
	slog.Default().With("component", "vault.keychain").Info("using file-based keychain for master key storage", "path", path)
	return NewFileKeychain(path)
}
