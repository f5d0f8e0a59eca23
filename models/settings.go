package models

import "time"

// MaxBackupHistory bounds the backup audit log; the oldest entry is evicted
// first.
const MaxBackupHistory = 10

// BackupEntry is one line of the backup audit log.
type BackupEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	FilePath     string    `json:"file_path"`
	FileSize     *int64    `json:"file_size,omitempty"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// UserSettings is the process-wide singleton settings row. It is stored as a
// JSON payload, encrypted at rest when encryption is active.
type UserSettings struct {
	HiddenCategories    []string      `json:"hidden_categories"`
	YearFilter          *int          `json:"year_filter,omitempty"`
	BackupHistory       []BackupEntry `json:"backup_history"`
	LastBackupPath      string        `json:"last_backup_path,omitempty"`
	AutoBackupEnabled   bool          `json:"auto_backup_enabled"`
	AutoBackupDir       string        `json:"auto_backup_dir,omitempty"`
	AutoBackupEncrypted bool          `json:"auto_backup_encrypted"`
}

func NewUserSettings() *UserSettings {
	return &UserSettings{
		HiddenCategories: []string{},
		BackupHistory:    []BackupEntry{},
	}
}

func (s *UserSettings) IsCategoryHidden(categoryID string) bool {
	for _, id := range s.HiddenCategories {
		if id == categoryID {
			return true
		}
	}
	return false
}

func (s *UserSettings) ToggleCategoryVisibility(categoryID string) {
	for i, id := range s.HiddenCategories {
		if id == categoryID {
			s.HiddenCategories = append(s.HiddenCategories[:i], s.HiddenCategories[i+1:]...)
			return
		}
	}
	s.HiddenCategories = append(s.HiddenCategories, categoryID)
}

// AddBackupEntry appends to the audit log, evicting the oldest entry once
// the log holds MaxBackupHistory items.
func (s *UserSettings) AddBackupEntry(e BackupEntry) {
	s.BackupHistory = append(s.BackupHistory, e)
	if len(s.BackupHistory) > MaxBackupHistory {
		s.BackupHistory = s.BackupHistory[len(s.BackupHistory)-MaxBackupHistory:]
	}
}

// LastSuccessfulBackup returns the most recent successful entry, or nil.
func (s *UserSettings) LastSuccessfulBackup() *BackupEntry {
	for i := len(s.BackupHistory) - 1; i >= 0; i-- {
		if s.BackupHistory[i].Success {
			return &s.BackupHistory[i]
		}
	}
	return nil
}
