// Package store implements the encrypted credential vault: a single-writer
// SQLite database holding ciphertext-only credential records, plus the
// policies and audit_log tables the policy engine shares with it.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/localmind/aegis/internal/vault/crypto"
	"github.com/localmind/aegis/pkg/models"
)

var (
	ErrNotFound = errors.New("vault: credential not found")
	// ErrAlreadyExists is returned by Create when a credential already
	// exists under the given key (spec §7: CredentialAlreadyExists).
	ErrAlreadyExists = errors.New("vault: credential already exists")
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	key         TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	salt        BLOB NOT NULL,
	sealed_data BLOB NOT NULL,
	scopes      TEXT,
	provider    TEXT,
	expires_at  INTEGER,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS policies (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	provider    TEXT NOT NULL,
	action      TEXT NOT NULL,
	resource    TEXT NOT NULL,
	decision    TEXT NOT NULL,
	rate_limit  INTEGER,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	provider    TEXT NOT NULL,
	action      TEXT NOT NULL,
	resource    TEXT,
	decision    TEXT NOT NULL,
	detail      TEXT,
	timestamp   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_provider_ts ON audit_log(provider, timestamp);
`

// Vault owns the single-writer SQLite connection shared by the credential
// store and the policy engine. All writes are serialised through mu because
// mattn/go-sqlite3 does not support concurrent writers on one connection.
type Vault struct {
	mu        sync.Mutex
	db        *sql.DB
	masterKey []byte
}

// Open opens (creating if necessary) the vault database at path, encrypting
// credential payloads under masterKey.
func Open(path string, masterKey []byte) (*Vault, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("vault: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // mattn/go-sqlite3 serialises writers; one connection avoids SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("vault: apply schema: %w", err)
	}
	return &Vault{db: db, masterKey: masterKey}, nil
}

// OpenInMemory opens a private in-memory vault, useful for tests.
func OpenInMemory(masterKey []byte) (*Vault, error) {
	return Open(":memory:", masterKey)
}

func (v *Vault) Close() error {
	return v.db.Close()
}

// DB exposes the underlying connection for the policy engine, which shares
// the same database and transactional context.
func (v *Vault) DB() *sql.DB {
	return v.db
}

// seal encrypts cred's Data payload under a freshly derived record key,
// returning the columns Create and Update both write.
func (v *Vault) seal(cred models.Credential) (salt, sealed, scopesJSON []byte, expiresAt sql.NullInt64, err error) {
	salt, err = crypto.RandomBytes(crypto.SaltLen)
	if err != nil {
		return nil, nil, nil, sql.NullInt64{}, err
	}
	recordKey := crypto.DeriveKey(v.masterKey, salt)

	plaintext, err := json.Marshal(cred.Data)
	if err != nil {
		return nil, nil, nil, sql.NullInt64{}, fmt.Errorf("vault: marshal credential data: %w", err)
	}
	sealed, err = crypto.Seal(plaintext, recordKey)
	if err != nil {
		return nil, nil, nil, sql.NullInt64{}, fmt.Errorf("vault: seal credential: %w", err)
	}

	scopesJSON, err = json.Marshal(cred.Scopes)
	if err != nil {
		return nil, nil, nil, sql.NullInt64{}, err
	}

	if cred.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: cred.ExpiresAt.Unix(), Valid: true}
	}
	return salt, sealed, scopesJSON, expiresAt, nil
}

// Create inserts a new credential, encrypting its Data payload. Plaintext
// exists only transiently in memory during this call. It returns
// ErrAlreadyExists if a credential is already stored under cred.Key (spec
// §4.5 store_credential; §8: repeated store with the same key fails).
func (v *Vault) Create(cred models.Credential) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	salt, sealed, scopes, expiresAt, err := v.seal(cred)
	if err != nil {
		return err
	}

	_, err = v.db.Exec(`
		INSERT INTO credentials (key, type, salt, sealed_data, scopes, provider, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.Key, string(cred.Type), salt, sealed, string(scopes), cred.Provider, expiresAt, time.Now().Unix(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("vault: insert credential: %w", err)
	}
	return nil
}

// Update overwrites the credential stored under cred.Key, re-encrypting its
// Data payload under a freshly derived salt. It returns ErrNotFound if no
// credential exists under that key (spec §4.5 update_credential).
func (v *Vault) Update(cred models.Credential) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	salt, sealed, scopes, expiresAt, err := v.seal(cred)
	if err != nil {
		return err
	}

	result, err := v.db.Exec(`
		UPDATE credentials SET
			type = ?, salt = ?, sealed_data = ?, scopes = ?, provider = ?, expires_at = ?
		WHERE key = ?`,
		string(cred.Type), salt, sealed, string(scopes), cred.Provider, expiresAt, cred.Key,
	)
	if err != nil {
		return fmt.Errorf("vault: update credential: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("vault: update credential: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get decrypts and returns the credential stored under key.
func (v *Vault) Get(key string) (*models.Credential, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	row := v.db.QueryRow(`SELECT type, salt, sealed_data, scopes, provider, expires_at, created_at FROM credentials WHERE key = ?`, key)

	var (
		credType             string
		salt, sealed         []byte
		scopesJSON, provider sql.NullString
		expiresAt            sql.NullInt64
		createdAt            int64
	)
	if err := row.Scan(&credType, &salt, &sealed, &scopesJSON, &provider, &expiresAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("vault: scan credential: %w", err)
	}
	return v.decode(key, credType, salt, sealed, scopesJSON, provider, expiresAt, createdAt)
}

// Delete removes the credential stored under key. A missing key is not an
// error: deletion is idempotent.
func (v *Vault) Delete(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.db.Exec(`DELETE FROM credentials WHERE key = ?`, key)
	return err
}

// List returns decrypted credential records, optionally filtered by
// credential type (spec §4.5: list_credentials(type_filter?)). An empty
// typeFilter returns every stored credential.
func (v *Vault) List(typeFilter models.CredentialType) ([]*models.Credential, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	query := `SELECT key, type, salt, sealed_data, scopes, provider, expires_at, created_at FROM credentials`
	args := []any{}
	if typeFilter != "" {
		query += ` WHERE type = ?`
		args = append(args, string(typeFilter))
	}
	query += ` ORDER BY key`

	rows, err := v.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		var (
			key, credType        string
			salt, sealed         []byte
			scopesJSON, provider sql.NullString
			expiresAt            sql.NullInt64
			createdAt            int64
		)
		if err := rows.Scan(&key, &credType, &salt, &sealed, &scopesJSON, &provider, &expiresAt, &createdAt); err != nil {
			return nil, err
		}
		cred, err := v.decode(key, credType, salt, sealed, scopesJSON, provider, expiresAt, createdAt)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// decode decrypts a scanned credential row into its public representation.
func (v *Vault) decode(key, credType string, salt, sealed []byte, scopesJSON, provider sql.NullString, expiresAt sql.NullInt64, createdAt int64) (*models.Credential, error) {
	recordKey := crypto.DeriveKey(v.masterKey, salt)
	plaintext, err := crypto.Open(sealed, recordKey)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt credential: %w", err)
	}
	var data any
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("vault: unmarshal credential data: %w", err)
	}

	cred := &models.Credential{
		Key:       key,
		Type:      models.CredentialType(credType),
		Data:      data,
		Provider:  provider.String,
		CreatedAt: time.Unix(createdAt, 0).UTC(),
	}
	if scopesJSON.Valid && scopesJSON.String != "" {
		_ = json.Unmarshal([]byte(scopesJSON.String), &cred.Scopes)
	}
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0).UTC()
		cred.ExpiresAt = &t
	}
	return cred, nil
}
