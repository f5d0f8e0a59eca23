package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"finledger/config"
	"finledger/crypto"
	"finledger/models"
	"finledger/vault"
)

// ErrNotFound marks updates that reference a row that does not exist.
var ErrNotFound = errors.New("not found")

// Store owns the connection to the embedded database file and the in-memory
// cipher state. It is a single exclusive handle: one operation at a time,
// owned by the composition root and passed down, never a package global.
type Store struct {
	db       *gorm.DB
	cipher   *crypto.Cipher
	vaultCfg vault.Config
	path     string // empty for the in-memory fallback
}

// Open opens (creating if absent) the store at the configured path, ensures
// the schema, runs pending migrations, and seeds defaults into an empty
// database. It degrades gracefully: if the full open fails it retries with a
// minimal schema-only store, then with an ephemeral in-memory store, so the
// application always starts. A migration validation failure is the one
// deliberate exception and is returned as-is.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	vc := vault.Load()
	path := cfg.Path()

	s, err := open(path, vc, cfg.LogMode, true)
	if err == nil {
		return s, nil
	}
	if errors.Is(err, ErrMigrationValidation) {
		// An unmigrated schema could corrupt later reads; fail loudly.
		return nil, err
	}
	log.Printf("store: open %s failed (%v), retrying with minimal schema", path, err)

	s, minErr := open(path, vc, cfg.LogMode, false)
	if minErr == nil {
		return s, nil
	}
	log.Printf("store: minimal open failed (%v), falling back to in-memory store", minErr)

	s, memErr := open("", vc, cfg.LogMode, true)
	if memErr != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func open(path string, vc vault.Config, logMode, full bool) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = path
	}

	gormLogger := logger.Default
	if !logMode {
		gormLogger = gormLogger.LogMode(logger.Silent)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	// One exclusive connection: every operation runs to completion on the
	// calling goroutine, and connection-scoped pragmas stay in effect.
	sqlDB.SetMaxOpenConns(1)
	_, _ = sqlDB.Exec("PRAGMA journal_mode = WAL;")
	_, _ = sqlDB.Exec("PRAGMA synchronous = NORMAL;")
	_, _ = sqlDB.Exec("PRAGMA foreign_keys = ON;")

	if err := EnsureSchema(db); err != nil {
		return nil, err
	}

	s := &Store{db: db, vaultCfg: vc, path: path}
	if !full {
		return s, nil
	}

	if err := runMigrations(db); err != nil {
		return nil, err
	}
	if err := s.seedDefaults(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) seedDefaults() error {
	var count int64
	if err := s.db.Model(&CategoryRow{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count categories: %w", err)
	}
	if count == 0 {
		for _, c := range models.DefaultCategories() {
			if err := s.InsertCategory(&c); err != nil {
				return fmt.Errorf("seed category %s: %w", c.ID, err)
			}
		}
	}

	if err := s.db.Model(&SettingsRow{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count user settings: %w", err)
	}
	if count == 0 {
		if err := s.SaveUserSettings(models.NewUserSettings()); err != nil {
			return fmt.Errorf("seed user settings: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying handle for the backup engine and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// Path returns the database file path, empty for the in-memory fallback.
func (s *Store) Path() string { return s.path }

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsEncrypted reports whether encryption is configured with a password set,
// independent of whether any row has been encrypted yet.
func (s *Store) IsEncrypted() bool {
	return s.vaultCfg.IsEncryptionReady()
}

// VerifyPassword checks a password against the vault configuration.
func (s *Store) VerifyPassword(password string) bool {
	return s.vaultCfg.VerifyPassword(password)
}

// VaultConfig returns a copy of the current encryption configuration.
func (s *Store) VaultConfig() vault.Config { return s.vaultCfg }

// InitializeEncryption performs first-time encryption setup: generate salt
// and verification hash, build the cipher, and run an encrypt/decrypt
// self-test before any state is persisted. A failure at any step leaves the
// vault configuration untouched.
func (s *Store) InitializeEncryption(password string) error {
	if s.vaultCfg.IsEncryptionReady() {
		return nil
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	hash, err := crypto.HashPassword(password, salt)
	if err != nil {
		return err
	}
	cipher, err := crypto.NewCipher(password, salt)
	if err != nil {
		return err
	}
	if err := cipher.SelfTest(); err != nil {
		return fmt.Errorf("encryption self test: %w", err)
	}

	if err := s.vaultCfg.SetCredentials(hash, salt); err != nil {
		return err
	}
	s.cipher = cipher
	log.Println("store: database encryption initialized")
	return nil
}

// SetEncryptionState reconstructs the in-memory cipher after a successful
// password verification (enabled=true) or clears it (enabled=false). It does
// not touch the vault configuration.
func (s *Store) SetEncryptionState(enabled bool, password, salt string) error {
	if !enabled {
		s.cipher = nil
		return nil
	}
	if password == "" || salt == "" {
		return fmt.Errorf("password and salt required for encryption")
	}
	cipher, err := crypto.NewCipher(password, salt)
	if err != nil {
		return err
	}
	s.cipher = cipher
	return nil
}

// DisableEncryption clears the vault configuration and the cipher.
func (s *Store) DisableEncryption() error {
	if err := s.vaultCfg.DisableEncryption(); err != nil {
		return err
	}
	s.cipher = nil
	return nil
}

// ReEnableEncryption returns the vault configuration to the "configured but
// no password" state; data stays unencrypted until a password is set.
func (s *Store) ReEnableEncryption() error {
	if err := s.vaultCfg.ReEnableEncryption(); err != nil {
		return err
	}
	s.cipher = nil
	return nil
}

// EncryptPayload encrypts a payload when a cipher is active, otherwise
// passes it through unchanged.
func (s *Store) EncryptPayload(data string) (string, error) {
	if s.cipher == nil {
		return data, nil
	}
	return s.cipher.Encrypt(data)
}

// DecryptPayload is the inverse of EncryptPayload. Decrypt failures are
// surfaced, never coerced into plaintext.
func (s *Store) DecryptPayload(data string) (string, error) {
	if s.cipher == nil {
		return data, nil
	}
	return s.cipher.Decrypt(data)
}
