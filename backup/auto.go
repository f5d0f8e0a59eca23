package backup

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const autoBackupPrefix = "auto_backup_"

// AutoBackup 在设置允许时自动备份一次，并按保留数清理旧文件。
// 自动备份是尽力而为的：任何失败只记录日志，绝不打断调用方。
func (e *Engine) AutoBackup() {
	settings, err := e.store.LoadUserSettings()
	if err != nil {
		log.Printf("backup: auto backup skipped, could not load settings: %v", err)
		return
	}
	if !settings.AutoBackupEnabled {
		return
	}

	dir := settings.AutoBackupDir
	if dir == "" {
		dir = e.autoDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("backup: auto backup skipped, could not create %s: %v", dir, err)
		return
	}

	name := fmt.Sprintf("%s%s_%s.db",
		autoBackupPrefix,
		time.Now().Format("20060102_150405"),
		uuid.NewString()[:8])
	path := filepath.Join(dir, name)

	encrypted := settings.AutoBackupEncrypted && e.store.IsEncrypted()
	if err := e.Backup(path, encrypted); err != nil {
		log.Printf("backup: auto backup failed: %v", err)
		return
	}
	log.Printf("backup: auto backup written to %s", path)

	if err := e.cleanupAutoBackups(dir); err != nil {
		log.Printf("backup: auto backup cleanup failed: %v", err)
	}
}

// cleanupAutoBackups removes the oldest auto backups in dir, keeping the
// retain newest. Only files matching the auto backup naming pattern are
// touched.
func (e *Engine) cleanupAutoBackups(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, autoBackupPrefix) && strings.HasSuffix(name, ".db") {
			names = append(names, name)
		}
	}
	if len(names) <= e.retain {
		return nil
	}

	// The timestamp in the name sorts lexicographically by age.
	sort.Strings(names)
	for _, name := range names[:len(names)-e.retain] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
		log.Printf("backup: removed old auto backup %s", name)
	}
	return nil
}
