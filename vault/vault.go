package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/zalando/go-keyring"

	"finledger/crypto"
)

// Fixed service/account identifier for the keystore entry.
const (
	keyringService = "FinledgerService"
	keyringUser    = "finledger"
)

// Config is the encryption configuration, persisted in the OS credential
// vault rather than the database so that it stays readable even when the
// database file is missing, corrupt, or its payloads are encrypted.
type Config struct {
	Enabled           bool   `json:"enabled"`
	PasswordHash      string `json:"password_hash,omitempty"`
	Salt              string `json:"salt,omitempty"`
	DatabaseEncrypted bool   `json:"database_encrypted"`
}

// DefaultConfig is the state of a fresh install: encryption wanted but no
// password set yet, nothing encrypted.
func DefaultConfig() Config {
	return Config{Enabled: true}
}

// Load reads the configuration from the keystore. An absent entry or any
// read error yields the default config: the vault fails open because the
// data itself is still protected by its own encryption.
func Load() Config {
	raw, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			log.Printf("vault: could not load encryption config from keystore: %v", err)
		}
		return DefaultConfig()
	}

	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		log.Printf("vault: malformed encryption config in keystore: %v", err)
		return DefaultConfig()
	}
	return cfg
}

// Save writes the full configuration back to the keystore. The keystore is
// already access-protected, so the JSON value is stored as-is.
func (c *Config) Save() error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal encryption config: %w", err)
	}
	if err := keyring.Set(keyringService, keyringUser, string(raw)); err != nil {
		return fmt.Errorf("save encryption config to keystore: %w", err)
	}
	return nil
}

// SetCredentials stores a verified hash/salt pair and marks the database as
// encrypted. Callers are expected to have self-tested the derived cipher
// first (see store.InitializeEncryption).
func (c *Config) SetCredentials(passwordHash, salt string) error {
	c.PasswordHash = passwordHash
	c.Salt = salt
	c.Enabled = true
	c.DatabaseEncrypted = true
	return c.Save()
}

// VerifyPassword checks a password against the stored hash.
func (c *Config) VerifyPassword(password string) bool {
	if c.PasswordHash == "" || c.Salt == "" {
		return false
	}
	return crypto.VerifyPassword(password, c.Salt, c.PasswordHash)
}

// IsEncryptionReady reports whether encryption is enabled and a password
// has been set. It says nothing about whether any row has been encrypted yet.
func (c *Config) IsEncryptionReady() bool {
	return c.Enabled && c.PasswordHash != "" && c.Salt != ""
}

// DisableEncryption clears the password and turns encryption off.
func (c *Config) DisableEncryption() error {
	c.Enabled = false
	c.PasswordHash = ""
	c.Salt = ""
	c.DatabaseEncrypted = false
	return c.Save()
}

// ReEnableEncryption returns to the "configured but no password" state.
// The database stays unencrypted until a password is set again.
func (c *Config) ReEnableEncryption() error {
	c.Enabled = true
	c.PasswordHash = ""
	c.Salt = ""
	c.DatabaseEncrypted = false
	return c.Save()
}
