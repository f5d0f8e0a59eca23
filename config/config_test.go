package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Database.File != "finledger.db" {
		t.Errorf("database file = %s", cfg.Database.File)
	}
	if cfg.Database.Dir == "" {
		t.Error("database dir should not be empty")
	}
	if cfg.Backup.Retain != 5 {
		t.Errorf("backup retain = %d, want 5", cfg.Backup.Retain)
	}
	if filepath.Base(cfg.Backup.AutoDir) != "auto_backups" {
		t.Errorf("auto backup dir = %s", cfg.Backup.AutoDir)
	}
	if cfg.Database.Path() != filepath.Join(cfg.Database.Dir, cfg.Database.File) {
		t.Errorf("path = %s", cfg.Database.Path())
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Database.File != "finledger.db" {
		t.Errorf("defaults should apply: %+v", cfg.Database)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte("database:\n  dir: /data/ledger\n  file: main.db\nbackup:\n  retain: 3\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Dir != "/data/ledger" || cfg.Database.File != "main.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Backup.Retain != 3 {
		t.Errorf("retain = %d, want 3", cfg.Backup.Retain)
	}
	// Unset keys keep their defaults.
	if filepath.Base(cfg.Backup.AutoDir) != "auto_backups" {
		t.Errorf("auto dir = %s", cfg.Backup.AutoDir)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed config should error")
	}
}
