// Package crypto implements the vault's AEAD encryption and key derivation
// primitives: AES-256-GCM for record encryption, PBKDF2-HMAC-SHA256 for
// deriving keys from passphrases or device fingerprints.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeyLen is the AES-256 key size in bytes.
	KeyLen = 32
	// SaltLen is the PBKDF2 salt size in bytes.
	SaltLen = 32
	// NonceLen is the AES-GCM nonce size in bytes.
	NonceLen = 12
	// PBKDF2Iterations is the minimum iteration count for key derivation.
	PBKDF2Iterations = 100_000
)

var ErrShortCiphertext = errors.New("crypto: ciphertext shorter than nonce")

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("crypto: read random bytes: %w", err)
	}
	return buf, nil
}

// DeriveKey derives a KeyLen-byte key from arbitrary material and a salt
// using PBKDF2-HMAC-SHA256 with PBKDF2Iterations rounds.
func DeriveKey(material, salt []byte) []byte {
	return pbkdf2.Key(material, salt, PBKDF2Iterations, KeyLen, sha256.New)
}

// Encrypt seals plaintext under key with AES-256-GCM, returning a fresh
// random nonce and the ciphertext (which includes the auth tag).
func Encrypt(plaintext, key []byte) (nonce, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	nonce, err = RandomBytes(NonceLen)
	if err != nil {
		return nil, nil, err
	}
	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// Decrypt opens ciphertext sealed by Encrypt under key and nonce.
func Decrypt(nonce, ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, ErrShortCiphertext
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed: %w", err)
	}
	return plaintext, nil
}

// Seal is a convenience wrapper producing the on-disk layout used by the
// keychain and vault store: nonce || ciphertext+tag, with the caller
// responsible for prefixing any salt.
func Seal(plaintext, key []byte) ([]byte, error) {
	nonce, ciphertext, err := Encrypt(plaintext, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open reverses Seal given a blob laid out as nonce || ciphertext+tag.
func Open(blob, key []byte) ([]byte, error) {
	if len(blob) < NonceLen {
		return nil, ErrShortCiphertext
	}
	nonce, ciphertext := blob[:NonceLen], blob[NonceLen:]
	return Decrypt(nonce, ciphertext, key)
}
