package googleauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists OAuth tokens in SQLite. Access and refresh tokens are
// encrypted at rest with AES-256-GCM when an encryption key is set.
type Store struct {
	db  *sql.DB
	key string
}

// OpenStore opens or creates the token database. An empty encryption key
// stores tokens as plaintext.
func OpenStore(path, encryptionKey string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create token db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open token db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping token db: %w", err)
	}

	s := &Store{db: db, key: encryptionKey}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate token db: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS oauth_tokens (
		service TEXT PRIMARY KEY,
		access_token TEXT NOT NULL,
		refresh_token TEXT DEFAULT '',
		token_type TEXT DEFAULT 'Bearer',
		expires_at TEXT DEFAULT '',
		updated_at TEXT NOT NULL
	)`)
	return err
}

// Save stores or replaces the token for a service.
func (s *Store) Save(service string, tok *Token) error {
	accessEnc, err := encryptToken(tok.AccessToken, s.key)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refreshEnc, err := encryptToken(tok.RefreshToken, s.key)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	expiresAt := ""
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry.UTC().Format(time.RFC3339)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO oauth_tokens (service, access_token, refresh_token, token_type, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		service, accessEnc, refreshEnc, tok.TokenType, expiresAt,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// Load returns the decrypted token for a service, or nil when none is
// stored.
func (s *Store) Load(service string) (*Token, error) {
	row := s.db.QueryRow(
		`SELECT access_token, refresh_token, token_type, expires_at FROM oauth_tokens WHERE service = ?`,
		service,
	)

	var accessEnc, refreshEnc, tokenType, expiresAt string
	err := row.Scan(&accessEnc, &refreshEnc, &tokenType, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	access, err := decryptToken(accessEnc, s.key)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err := decryptToken(refreshEnc, s.key)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}

	tok := &Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenType,
	}
	if expiresAt != "" {
		if t, err := time.Parse(time.RFC3339, expiresAt); err == nil {
			tok.Expiry = t
		}
	}
	return tok, nil
}

// Delete removes the stored token for a service.
func (s *Store) Delete(service string) error {
	_, err := s.db.Exec(`DELETE FROM oauth_tokens WHERE service = ?`, service)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// encryptToken encrypts plaintext with AES-256-GCM. The key is derived
// from SHA-256 of the key string; the 12-byte nonce is prepended and the
// result hex-encoded. An empty key stores plaintext unchanged.
func encryptToken(plaintext, key string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if key == "" {
		return plaintext, nil
	}

	keyHash := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(keyHash[:])
	if err != nil {
		return "", fmt.Errorf("aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), nil
}

// decryptToken reverses encryptToken.
func decryptToken(ciphertextHex, key string) (string, error) {
	if ciphertextHex == "" {
		return "", nil
	}
	if key == "" {
		return ciphertextHex, nil
	}

	data, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("hex decode: %w", err)
	}

	keyHash := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(keyHash[:])
	if err != nil {
		return "", fmt.Errorf("aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}
