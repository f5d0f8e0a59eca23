package backup

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"finledger/config"
	"finledger/models"
	"finledger/store"
)

var (
	// ErrPreconditionFailed 表示请求加密备份但数据库未启用加密。
	ErrPreconditionFailed = errors.New("encrypted backup requires an encrypted database")
	// ErrPasswordRequired 表示恢复加密备份时未提供密码、也未选择强制恢复。
	ErrPasswordRequired = errors.New("encrypted backup detected but no password provided")
)

// State is the lifecycle of a single backup or restore operation.
type State int

const (
	Idle State = iota
	SelectingTarget
	InProgress
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SelectingTarget:
		return "selecting target"
	case InProgress:
		return "in progress"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Engine 负责备份与恢复。同一时刻只允许一个操作在执行，
// InProgress 期间的重复调用是 no-op。
type Engine struct {
	store   *store.Store
	autoDir string
	retain  int
	state   State
	status  string
}

func NewEngine(st *store.Store, cfg config.BackupConfig) *Engine {
	retain := cfg.Retain
	if retain <= 0 {
		retain = 5
	}
	return &Engine{
		store:   st,
		autoDir: cfg.AutoDir,
		retain:  retain,
	}
}

func (e *Engine) State() State   { return e.state }
func (e *Engine) Status() string { return e.status }

// BeginTargetSelection marks that the UI is showing a file picker.
func (e *Engine) BeginTargetSelection() {
	if e.state != InProgress {
		e.state = SelectingTarget
		e.status = "Selecting target..."
	}
}

// CancelTargetSelection returns to Idle after a dismissed file picker.
func (e *Engine) CancelTargetSelection() {
	if e.state == SelectingTarget {
		e.state = Idle
		e.status = "Cancelled"
	}
}

// Backup writes a backup of the live store to path.
//
// encrypted=true performs a page-level clone that preserves stored payload
// bytes; reading the result requires the same password as the live store,
// and it fails with ErrPreconditionFailed when encryption is not active.
// encrypted=false builds a fresh portable database with all payloads
// decrypted. Either way the outcome is recorded in the backup history.
func (e *Engine) Backup(path string, encrypted bool) error {
	if e.state == InProgress {
		return nil
	}
	e.state = InProgress
	e.status = "Creating backup..."

	err := e.backup(path, encrypted)
	e.record(path, err)

	if err != nil {
		e.state = Failed
		e.status = fmt.Sprintf("Backup failed: %v", err)
		return err
	}
	e.state = Completed
	if encrypted {
		e.status = "Backup completed successfully (encrypted)"
	} else {
		e.status = "Backup completed successfully (unencrypted)"
	}
	return nil
}

func (e *Engine) backup(path string, encrypted bool) error {
	if encrypted {
		if !e.store.IsEncrypted() {
			return ErrPreconditionFailed
		}
		return e.store.PageClone(path)
	}
	return e.backupPortable(path)
}

// backupPortable 新建目标库，逐行复制并解密 settings，整体在一个事务里。
func (e *Engine) backupPortable(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replace backup target: %w", err)
	}

	target, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open backup target: %w", err)
	}
	defer closeDB(target)

	if err := store.EnsureSchema(target); err != nil {
		return err
	}

	categories, err := e.store.RawCategories()
	if err != nil {
		return err
	}
	flows, err := e.store.RawFlows()
	if err != nil {
		return err
	}
	settings, err := e.store.RawSettings()
	if err != nil {
		return err
	}
	if settings != nil {
		plain, err := e.store.DecryptPayload(settings.SettingsJSON)
		if err != nil {
			return fmt.Errorf("decrypt user settings for backup: %w", err)
		}
		settings.SettingsJSON = plain
	}

	return target.Transaction(func(tx *gorm.DB) error {
		for i := range categories {
			if err := tx.Create(&categories[i]).Error; err != nil {
				return fmt.Errorf("copy category %s: %w", categories[i].ID, err)
			}
		}
		for i := range flows {
			row := flows[i]
			row.Category = nil
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("copy flow %s: %w", row.ID, err)
			}
		}
		if settings != nil {
			row := store.SettingsRow{ID: 1, SettingsJSON: settings.SettingsJSON}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("copy user settings: %w", err)
			}
		}
		return nil
	})
}

// DetectEncrypted reports whether the file at path looks like an encrypted
// backup: it attempts a trivial read against the settings table, and any
// failure (including an unopenable or corrupt file) counts as encrypted.
// This is a best-effort heuristic, not a cryptographic proof.
func (e *Engine) DetectEncrypted(path string) bool {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return true
	}
	defer closeDB(db)

	var n int64
	if err := db.Table("user_settings").Count(&n).Error; err != nil {
		return true
	}
	return false
}

// Restore replaces the live store content with the backup at path.
//
// When the backup is detected as encrypted, a password must be supplied and
// is verified against the live encryption configuration, unless
// forceUnencrypted opts into recovery without one. Either way the content
// swap is a single transaction: on any failure the live store keeps its
// previous content. Callers must reload all in-memory state after success.
func (e *Engine) Restore(path, password string, forceUnencrypted bool) error {
	if e.state == InProgress {
		return nil
	}
	e.state = InProgress
	e.status = "Restoring backup..."

	err := e.restore(path, password, forceUnencrypted)
	if err != nil {
		e.state = Failed
		e.status = fmt.Sprintf("Restore failed: %v", err)
		return err
	}
	e.state = Completed
	e.status = "Backup restored successfully"
	return nil
}

func (e *Engine) restore(path, password string, forceUnencrypted bool) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("backup file does not exist: %s", path)
	}

	detectedEncrypted := e.DetectEncrypted(path)

	if detectedEncrypted && password == "" && !forceUnencrypted {
		return ErrPasswordRequired
	}

	if detectedEncrypted && password != "" {
		if !e.store.VerifyPassword(password) {
			return fmt.Errorf("password does not match current encryption configuration")
		}
		// Payload bytes are copied verbatim; the verified password keeps
		// decrypting them through the live cipher afterwards.
		return e.copyFrom(path, false)
	}

	// Unencrypted source, or forced unencrypted recovery: settings are
	// re-encrypted into the live store's current encryption mode.
	return e.copyFrom(path, true)
}

// copyFrom collects every row from the source into memory first, then swaps
// the live content in one transaction. Collect-then-clear-then-insert means
// a failing source read never leaves the live store partially cleared.
func (e *Engine) copyFrom(path string, reencryptSettings bool) error {
	source, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open backup source: %w", err)
	}
	defer closeDB(source)

	var categories []store.CategoryRow
	if err := source.Find(&categories).Error; err != nil {
		return fmt.Errorf("read categories from backup: %w", err)
	}
	var flows []store.FlowRow
	if err := source.Find(&flows).Error; err != nil {
		return fmt.Errorf("read flows from backup: %w", err)
	}

	var settings *store.SettingsRow
	var row store.SettingsRow
	switch err := source.First(&row, "id = ?", 1).Error; {
	case err == nil:
		if reencryptSettings {
			enc, err := e.store.EncryptPayload(row.SettingsJSON)
			if err != nil {
				return fmt.Errorf("re-encrypt user settings: %w", err)
			}
			row.SettingsJSON = enc
		}
		settings = &row
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no settings in the backup
	default:
		return fmt.Errorf("read user settings from backup: %w", err)
	}

	log.Printf("backup: restoring %d categories, %d flows from %s", len(categories), len(flows), path)
	return e.store.ReplaceAll(categories, flows, settings)
}

// record appends the outcome to the backup history and remembers the last
// backup path. History persistence is best-effort: a failure here is logged
// and never fails the backup itself.
func (e *Engine) record(path string, backupErr error) {
	settings, err := e.store.LoadUserSettings()
	if err != nil {
		log.Printf("backup: could not load settings to record history: %v", err)
		return
	}

	entry := models.BackupEntry{
		Timestamp: time.Now().UTC(),
		FilePath:  path,
		Success:   backupErr == nil,
	}
	if backupErr != nil {
		entry.ErrorMessage = backupErr.Error()
	} else {
		if info, err := os.Stat(path); err == nil {
			size := info.Size()
			entry.FileSize = &size
		}
		settings.LastBackupPath = path
	}
	settings.AddBackupEntry(entry)

	if err := e.store.SaveUserSettings(settings); err != nil {
		log.Printf("backup: could not save backup history: %v", err)
	}
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
