package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
	"github.com/ericfisherdev/adpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Access and refresh tokens are encrypted with AES-256-GCM before write and
// decrypted after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
	now func() time.Time
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (reads and writes return ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key, now: time.Now}
}

// Upsert stores the credential keyed by provider, replacing any existing row.
func (r *CredentialRepo) Upsert(ctx context.Context, cred model.Credential) error {
	accessToken, err := r.encrypt(cred.AccessToken)
	if err != nil {
		return err
	}

	var refreshToken string
	if cred.RefreshToken != "" {
		refreshToken, err = r.encrypt(cred.RefreshToken)
		if err != nil {
			return err
		}
	}

	scopes := cred.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	scopesJSON, err := json.Marshal(scopes)
	if err != nil {
		return fmt.Errorf("marshal scopes: %w", err)
	}

	var expiresAt sql.NullString
	if cred.ExpiresAt != nil {
		expiresAt = sql.NullString{String: formatTime(*cred.ExpiresAt), Valid: true}
	}

	updatedAt := cred.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}

	const query = `
		INSERT INTO credentials (
			provider, access_token, refresh_token, expires_at, account_id, scopes, is_active, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			account_id = excluded.account_id,
			scopes = excluded.scopes,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	_, err = r.db.Writer.ExecContext(ctx, query,
		string(cred.Provider), accessToken, refreshToken, expiresAt,
		cred.AccountID, string(scopesJSON), boolToInt(cred.IsActive), formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert credential %q: %w", cred.Provider, err)
	}
	return nil
}

// GetActive returns the active credential for provider, or (nil, nil) if none
// exists or the stored row is inactive.
func (r *CredentialRepo) GetActive(ctx context.Context, provider model.Provider) (*model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `
		SELECT provider, access_token, refresh_token, expires_at, account_id, scopes, is_active, updated_at
		FROM credentials
		WHERE provider = ? AND is_active = 1
	`

	cred, err := r.scanCredential(r.db.Reader.QueryRowContext(ctx, query, string(provider)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", provider, err)
	}
	return cred, nil
}

// List returns every stored credential with decrypted tokens, ordered by provider.
func (r *CredentialRepo) List(ctx context.Context) ([]model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `
		SELECT provider, access_token, refresh_token, expires_at, account_id, scopes, is_active, updated_at
		FROM credentials
		ORDER BY provider
	`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := r.scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// Deactivate marks the provider's credential inactive.
func (r *CredentialRepo) Deactivate(ctx context.Context, provider model.Provider) error {
	const query = `UPDATE credentials SET is_active = 0, updated_at = ? WHERE provider = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, formatTime(r.now()), string(provider))
	if err != nil {
		return fmt.Errorf("deactivate credential %q: %w", provider, err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (r *CredentialRepo) scanCredential(row rowScanner) (*model.Credential, error) {
	var (
		cred                      model.Credential
		provider, access, refresh string
		expiresAt                 sql.NullString
		scopesJSON, updatedAt     string
		isActive                  int
	)

	if err := row.Scan(&provider, &access, &refresh, &expiresAt, &cred.AccountID, &scopesJSON, &isActive, &updatedAt); err != nil {
		return nil, err
	}
	cred.Provider = model.Provider(provider)
	cred.IsActive = isActive == 1

	var err error
	if cred.AccessToken, err = r.decrypt(access); err != nil {
		return nil, fmt.Errorf("decrypt access token %q: %w", provider, err)
	}
	if refresh != "" {
		if cred.RefreshToken, err = r.decrypt(refresh); err != nil {
			return nil, fmt.Errorf("decrypt refresh token %q: %w", provider, err)
		}
	}

	if expiresAt.Valid && expiresAt.String != "" {
		t, err := parseTime(expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at for credential %q: %w", provider, err)
		}
		cred.ExpiresAt = &t
	}

	if err := json.Unmarshal([]byte(scopesJSON), &cred.Scopes); err != nil {
		return nil, fmt.Errorf("unmarshal scopes for credential %q: %w", provider, err)
	}

	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for credential %q: %w", provider, err)
	}

	return &cred, nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}

func (r *CredentialRepo) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
