package backup

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"finledger/config"
	"finledger/models"
	"finledger/store"
)

func testEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	keyring.MockInit()

	s, err := store.Open(config.DatabaseConfig{Dir: t.TempDir(), File: "test.db"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	e := NewEngine(s, config.BackupConfig{AutoDir: t.TempDir(), Retain: 2})
	return e, s
}

func rawSettingsJSON(t *testing.T, path string) string {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer closeDB(db)

	var raw string
	if err := db.Table("user_settings").Select("settings_json").
		Where("id = ?", 1).Scan(&raw).Error; err != nil {
		t.Fatalf("read settings from %s: %v", path, err)
	}
	return raw
}

func TestPortableBackupRestoreRoundTrip(t *testing.T) {
	e, s := testEngine(t)

	flow := models.NewFlow("salary")
	flow.Description = "keep me"
	if err := s.SaveFlow(flow); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "backup.db")
	if err := e.Backup(path, false); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if e.State() != Completed {
		t.Errorf("state = %v, want Completed", e.State())
	}

	// The outcome lands in the audit log.
	settings, err := s.LoadUserSettings()
	if err != nil {
		t.Fatal(err)
	}
	last := settings.LastSuccessfulBackup()
	if last == nil || last.FilePath != path {
		t.Errorf("history entry = %+v", last)
	}
	if last.FileSize == nil || *last.FileSize == 0 {
		t.Error("file size not recorded")
	}
	if settings.LastBackupPath != path {
		t.Errorf("last backup path = %s", settings.LastBackupPath)
	}

	// Diverge the live store, then restore.
	if err := s.DeleteFlow(flow.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveFlow(models.NewFlow("salary")); err != nil {
		t.Fatal(err)
	}

	if err := e.Restore(path, "", false); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	flows, err := s.LoadFlows()
	if err != nil {
		t.Fatal(err)
	}
	if len(flows) != 1 || flows[0].Description != "keep me" {
		t.Errorf("restored flows = %+v", flows)
	}
}

func TestEncryptedBackupPrecondition(t *testing.T) {
	e, s := testEngine(t)

	path := filepath.Join(t.TempDir(), "backup.db")
	err := e.Backup(path, true)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("got %v, want ErrPreconditionFailed", err)
	}
	if e.State() != Failed {
		t.Errorf("state = %v, want Failed", e.State())
	}

	// Failures are recorded too.
	settings, err := s.LoadUserSettings()
	if err != nil {
		t.Fatal(err)
	}
	if len(settings.BackupHistory) != 1 {
		t.Fatalf("history = %+v", settings.BackupHistory)
	}
	entry := settings.BackupHistory[0]
	if entry.Success || entry.ErrorMessage == "" {
		t.Errorf("entry = %+v", entry)
	}
	if settings.LastBackupPath != "" {
		t.Error("failed backup must not update last backup path")
	}
}

func TestPortableBackupDecryptsSettings(t *testing.T) {
	e, s := testEngine(t)
	if err := s.InitializeEncryption("secret123"); err != nil {
		t.Fatal(err)
	}
	settings := models.NewUserSettings()
	settings.ToggleCategoryVisibility("marker_category")
	if err := s.SaveUserSettings(settings); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "portable.db")
	if err := e.Backup(path, false); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	// A portable backup is readable without the password.
	raw := rawSettingsJSON(t, path)
	if !strings.Contains(raw, "marker_category") {
		t.Errorf("portable backup should hold plaintext settings, got %q", raw)
	}
}

func TestEncryptedBackupPreservesCiphertext(t *testing.T) {
	e, s := testEngine(t)
	if err := s.InitializeEncryption("secret123"); err != nil {
		t.Fatal(err)
	}
	settings := models.NewUserSettings()
	settings.ToggleCategoryVisibility("marker_category")
	if err := s.SaveUserSettings(settings); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "encrypted.db")
	if err := e.Backup(path, true); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	raw := rawSettingsJSON(t, path)
	if strings.Contains(raw, "marker_category") || strings.Contains(raw, "hidden_categories") {
		t.Errorf("encrypted backup leaks plaintext: %q", raw)
	}

	// The clone is still a readable store file, only its payload is opaque,
	// so the heuristic reports it unencrypted. Preserved as-is.
	if e.DetectEncrypted(path) {
		t.Error("page clone should pass the trivial-read heuristic")
	}
}

func TestDetectEncrypted(t *testing.T) {
	e, _ := testEngine(t)

	// Garbage is indistinguishable from an encrypted file.
	garbage := filepath.Join(t.TempDir(), "garbage.db")
	if err := os.WriteFile(garbage, []byte("this is not a database"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !e.DetectEncrypted(garbage) {
		t.Error("unreadable file should be treated as encrypted")
	}

	portable := filepath.Join(t.TempDir(), "portable.db")
	if err := e.Backup(portable, false); err != nil {
		t.Fatal(err)
	}
	if e.DetectEncrypted(portable) {
		t.Error("portable backup should be detected unencrypted")
	}
}

func TestRestoreGating(t *testing.T) {
	e, _ := testEngine(t)

	if err := e.Restore(filepath.Join(t.TempDir(), "missing.db"), "", false); err == nil {
		t.Error("missing file should fail")
	}

	garbage := filepath.Join(t.TempDir(), "garbage.db")
	if err := os.WriteFile(garbage, []byte("this is not a database"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := e.Restore(garbage, "", false)
	if !errors.Is(err, ErrPasswordRequired) {
		t.Errorf("got %v, want ErrPasswordRequired", err)
	}
	if e.State() != Failed {
		t.Errorf("state = %v, want Failed", e.State())
	}

	// A password against an unencrypted live store can never verify.
	if err := e.Restore(garbage, "whatever", false); err == nil ||
		errors.Is(err, ErrPasswordRequired) {
		t.Errorf("got %v, want verification failure", err)
	}

	// Forced recovery skips the gate but still can't read garbage.
	if err := e.Restore(garbage, "", true); err == nil {
		t.Error("forced restore of garbage should fail on read")
	}
}

func TestRestoreLeavesLiveStoreOnFailure(t *testing.T) {
	e, s := testEngine(t)

	flow := models.NewFlow("salary")
	flow.Description = "survivor"
	if err := s.SaveFlow(flow); err != nil {
		t.Fatal(err)
	}

	// A source built without primary keys can hold two flows with the same
	// id; the live insert then violates the constraint mid-swap.
	source := filepath.Join(t.TempDir(), "poisoned.db")
	db, err := gorm.Open(sqlite.Open(source), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, stmt := range []string{
		`CREATE TABLE categories (id TEXT, name TEXT, flow_type TEXT, fields TEXT,
			tax_deduction_allowed INTEGER, tax_deduction_default INTEGER)`,
		`CREATE TABLE flows (id TEXT, date TEXT, amount REAL, category_id TEXT,
			description TEXT, linked_flows TEXT, custom_fields TEXT, tax_deductible INTEGER)`,
		`CREATE TABLE user_settings (id INTEGER, settings_json TEXT)`,
		`INSERT INTO flows VALUES ('dup', '2024-01-01', 1, 'c', '', '[]', '{}', NULL)`,
		`INSERT INTO flows VALUES ('dup', '2024-01-02', 2, 'c', '', '[]', '{}', NULL)`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatal(err)
		}
	}
	closeDB(db)

	if err := e.Restore(source, "", false); err == nil {
		t.Fatal("duplicate ids should fail the restore")
	}

	flows, err := s.LoadFlows()
	if err != nil {
		t.Fatal(err)
	}
	if len(flows) != 1 || flows[0].Description != "survivor" {
		t.Errorf("live content not retained: %+v", flows)
	}
}

func TestStateMachine(t *testing.T) {
	e, _ := testEngine(t)

	if e.State() != Idle {
		t.Errorf("initial state = %v", e.State())
	}

	e.BeginTargetSelection()
	if e.State() != SelectingTarget {
		t.Errorf("state = %v, want SelectingTarget", e.State())
	}
	e.CancelTargetSelection()
	if e.State() != Idle {
		t.Errorf("state = %v, want Idle", e.State())
	}

	path := filepath.Join(t.TempDir(), "backup.db")
	if err := e.Backup(path, false); err != nil {
		t.Fatal(err)
	}
	if e.State() != Completed {
		t.Errorf("state = %v, want Completed", e.State())
	}
	if !strings.Contains(e.Status(), "successfully") {
		t.Errorf("status = %q", e.Status())
	}
}

func TestAutoBackup(t *testing.T) {
	e, s := testEngine(t)
	autoDir := t.TempDir()

	// Disabled by default: nothing happens.
	e.AutoBackup()
	if entries, _ := os.ReadDir(autoDir); len(entries) != 0 {
		t.Error("disabled auto backup should write nothing")
	}

	settings, err := s.LoadUserSettings()
	if err != nil {
		t.Fatal(err)
	}
	settings.AutoBackupEnabled = true
	settings.AutoBackupDir = autoDir
	if err := s.SaveUserSettings(settings); err != nil {
		t.Fatal(err)
	}

	e.AutoBackup()
	entries, err := os.ReadDir(autoDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files, want 1", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "auto_backup_") {
		t.Errorf("file name = %s", entries[0].Name())
	}
}

func TestAutoBackupCleanup(t *testing.T) {
	e, s := testEngine(t)
	autoDir := t.TempDir()

	settings, err := s.LoadUserSettings()
	if err != nil {
		t.Fatal(err)
	}
	settings.AutoBackupEnabled = true
	settings.AutoBackupDir = autoDir
	if err := s.SaveUserSettings(settings); err != nil {
		t.Fatal(err)
	}

	// Pre-seed old backups; their timestamps sort before anything current.
	for _, name := range []string{
		"auto_backup_20200101_000000_aaaa.db",
		"auto_backup_20200102_000000_bbbb.db",
		"auto_backup_20200103_000000_cccc.db",
		"unrelated.txt",
	} {
		if err := os.WriteFile(filepath.Join(autoDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	e.AutoBackup()

	entries, err := os.ReadDir(autoDir)
	if err != nil {
		t.Fatal(err)
	}
	var backups []string
	unrelated := false
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "auto_backup_") {
			backups = append(backups, entry.Name())
		}
		if entry.Name() == "unrelated.txt" {
			unrelated = true
		}
	}
	// Retain is 2: the fresh backup plus the newest old one survive.
	if len(backups) != 2 {
		t.Errorf("got %d auto backups, want 2: %v", len(backups), backups)
	}
	for _, name := range backups {
		if name == "auto_backup_20200101_000000_aaaa.db" || name == "auto_backup_20200102_000000_bbbb.db" {
			t.Errorf("oldest backup %s should have been removed", name)
		}
	}
	if !unrelated {
		t.Error("cleanup must not touch unrelated files")
	}
}
