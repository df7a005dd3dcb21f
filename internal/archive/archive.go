package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	backupPrefix = "collection-"
	backupSuffix = ".anki2"
)

// DefaultDir is where backups go when no directory is configured
func DefaultDir(collectionPath string) string {
	return filepath.Join(filepath.Dir(collectionPath), "yomibackfill-backups")
}

// BackupCollection copies the collection file into dir with a timestamp
// and returns the backup path
func BackupCollection(collectionPath, dir string) (string, error) {
	// Check if the collection exists
	info, err := os.Stat(collectionPath)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("collection does not exist: %s", collectionPath)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat collection: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("collection path is a directory: %s", collectionPath)
	}

	if dir == "" {
		dir = DefaultDir(collectionPath)
	}

	// Create backup directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	// Generate timestamp
	timestamp := time.Now().Format("20060102-150405")
	backupPath := filepath.Join(dir, backupPrefix+timestamp+backupSuffix)

	// Check if backup already exists (two runs within a second)
	if _, err := os.Stat(backupPath); err == nil {
		timestamp = time.Now().Format("20060102-150405.000000")
		backupPath = filepath.Join(dir, backupPrefix+timestamp+backupSuffix)
	}

	if err := copyFile(collectionPath, backupPath); err != nil {
		os.Remove(backupPath)
		return "", fmt.Errorf("failed to back up collection: %w", err)
	}

	fmt.Printf("Collection backed up to: %s\n", backupPath)
	return backupPath, nil
}

// PruneBackups removes all but the newest keep backups in dir. Keep values
// below one disable pruning.
func PruneBackups(dir string, keep int) (int, error) {
	if keep < 1 {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, backupSuffix) {
			backups = append(backups, name)
		}
	}
	if len(backups) <= keep {
		return 0, nil
	}

	// Timestamped names sort chronologically
	sort.Strings(backups)
	removed := 0
	for _, name := range backups[:len(backups)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, fmt.Errorf("failed to remove old backup: %w", err)
		}
		removed++
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
