package session

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/eclosion/backend/internal/crypto"
)

// Credentials are the decrypted upstream login secrets plus the notes
// key. At rest every field is sealed under the user's passphrase with
// one shared salt per record.
type Credentials struct {
	Email     string
	Password  string
	MFASecret string
	NotesKey  string
}

// Repository stores the single credentials row.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// IsConfigured reports whether credentials have been set up.
func (r *Repository) IsConfigured() (bool, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM credentials WHERE id = 1").Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check credentials: %w", err)
	}
	return n > 0, nil
}

// Save seals the credentials under the cipher and upserts the singleton
// row. A missing notes key is generated here so every configured
// install has one.
func (r *Repository) Save(cipher *crypto.Cipher, creds Credentials) error {
	if creds.NotesKey == "" {
		key, err := crypto.GenerateNotesKey()
		if err != nil {
			return err
		}
		creds.NotesKey = key
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}

	email, err := cipher.EncryptWithSalt(creds.Email, salt)
	if err != nil {
		return fmt.Errorf("failed to encrypt email: %w", err)
	}
	password, err := cipher.EncryptWithSalt(creds.Password, salt)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}
	var mfa any
	if creds.MFASecret != "" {
		sealed, err := cipher.EncryptWithSalt(creds.MFASecret, salt)
		if err != nil {
			return fmt.Errorf("failed to encrypt MFA secret: %w", err)
		}
		mfa = sealed
	}
	notesKey, err := cipher.EncryptWithSalt(creds.NotesKey, salt)
	if err != nil {
		return fmt.Errorf("failed to encrypt notes key: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.Exec(`
        INSERT INTO credentials (id, salt, email_encrypted, password_encrypted,
            mfa_secret_encrypted, notes_key_encrypted, created_at, updated_at)
        VALUES (1, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            salt = excluded.salt,
            email_encrypted = excluded.email_encrypted,
            password_encrypted = excluded.password_encrypted,
            mfa_secret_encrypted = excluded.mfa_secret_encrypted,
            notes_key_encrypted = excluded.notes_key_encrypted,
            updated_at = excluded.updated_at
    `, salt, email, password, mfa, notesKey, now, now)
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Load decrypts the stored credentials with the presented passphrase.
// Returns nil when not configured; a wrong passphrase surfaces as
// crypto.ErrInvalidPassphrase.
func (r *Repository) Load(cipher *crypto.Cipher) (*Credentials, error) {
	var (
		salt, email, password string
		mfa, notesKey         sql.NullString
	)
	err := r.db.QueryRow(`
        SELECT salt, email_encrypted, password_encrypted,
            mfa_secret_encrypted, notes_key_encrypted
        FROM credentials WHERE id = 1
    `).Scan(&salt, &email, &password, &mfa, &notesKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	creds := &Credentials{}
	if creds.Email, err = cipher.Decrypt(email, salt); err != nil {
		return nil, err
	}
	if creds.Password, err = cipher.Decrypt(password, salt); err != nil {
		return nil, err
	}
	if mfa.Valid {
		if creds.MFASecret, err = cipher.Decrypt(mfa.String, salt); err != nil {
			return nil, err
		}
	}
	if notesKey.Valid {
		if creds.NotesKey, err = cipher.Decrypt(notesKey.String, salt); err != nil {
			return nil, err
		}
	}
	return creds, nil
}

// Delete removes the credentials row entirely.
func (r *Repository) Delete() error {
	if _, err := r.db.Exec("DELETE FROM credentials WHERE id = 1"); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}
