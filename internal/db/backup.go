package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"
)

const backupPrefix = "semaphore_backup_"

// Backup writes an online copy of the sqlite database into dir using
// VACUUM INTO, named with a timestamp. Returns the backup file path.
// Only the sqlite driver supports backups; callers on MySQL should rely on
// server-side dumps instead.
func Backup(db *gorm.DB, dir string, now time.Time) (string, error) {
	if db.Dialector.Name() != "sqlite" {
		return "", fmt.Errorf("db: backup requires the sqlite driver, have %s", db.Dialector.Name())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("db: create backup dir %s: %w", dir, err)
	}

	name := backupPrefix + now.Format("20060102_150405") + ".db"
	path := filepath.Join(dir, name)

	if err := db.Exec("VACUUM INTO ?", path).Error; err != nil {
		return "", fmt.Errorf("db: vacuum into %s: %w", path, err)
	}
	return path, nil
}

// SweepBackups removes backup files in dir older than retention. Returns
// the number of files removed. A missing dir is not an error.
func SweepBackups(dir string, retention time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("db: read backup dir %s: %w", dir, err)
	}

	cutoff := now.Add(-retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, name)); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
