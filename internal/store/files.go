// Package store centralizes low-level filesystem reads and writes for the
// config file, the usage log, and ledger exports.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// PrivateFileMode is used for files that may hold secrets.
	PrivateFileMode os.FileMode = 0o600
	// PublicFileMode is used for exports and logs.
	PublicFileMode os.FileMode = 0o644
)

var (
	pathLocksMu sync.Mutex
	pathLocks   = map[string]*sync.Mutex{}
)

// ReadFile reads a file and returns it as a string. It holds the path lock
// so a concurrent AppendFile is never observed half-written.
func ReadFile(path string) (string, error) {
	cleanPath, err := cleanPath(path)
	if err != nil {
		return "", err
	}

	lock := lockForPath(cleanPath)
	lock.Lock()
	defer lock.Unlock()

	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// WriteFile atomically replaces a file's contents with the given mode.
// The temp file is synced before the rename so a crash never leaves a
// truncated target.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	cleanPath, err := cleanPath(path)
	if err != nil {
		return err
	}

	lock := lockForPath(cleanPath)
	lock.Lock()
	defer lock.Unlock()

	return writeLocked(cleanPath, data, perm)
}

// WriteFileIfMissing writes data only when path does not exist yet.
// It reports whether the file was created.
func WriteFileIfMissing(path string, data []byte, perm os.FileMode) (bool, error) {
	cleanPath, err := cleanPath(path)
	if err != nil {
		return false, err
	}

	lock := lockForPath(cleanPath)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(cleanPath); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat %q: %w", cleanPath, err)
	}
	if err := writeLocked(cleanPath, data, perm); err != nil {
		return false, err
	}
	return true, nil
}

// AppendFile appends bytes to a file, creating it if missing, and syncs
// before returning.
func AppendFile(path string, data []byte) error {
	cleanPath, err := cleanPath(path)
	if err != nil {
		return err
	}

	lock := lockForPath(cleanPath)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}

	f, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, PublicFileMode)
	if err != nil {
		return fmt.Errorf("open file %q for append: %w", cleanPath, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append file %q: %w", cleanPath, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync file %q: %w", cleanPath, err)
	}
	return nil
}

func writeLocked(cleanPath string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(cleanPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", cleanPath, err)
	}
	tempPath := tempFile.Name()
	defer func() {
		os.Remove(tempPath)
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("write temp file for %q: %w", cleanPath, err)
	}
	if err := tempFile.Chmod(perm); err != nil {
		tempFile.Close()
		return fmt.Errorf("chmod temp file for %q: %w", cleanPath, err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("sync temp file for %q: %w", cleanPath, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file for %q: %w", cleanPath, err)
	}
	if err := os.Rename(tempPath, cleanPath); err != nil {
		return fmt.Errorf("replace file %q: %w", cleanPath, err)
	}
	return nil
}

func lockForPath(path string) *sync.Mutex {
	pathLocksMu.Lock()
	defer pathLocksMu.Unlock()

	lock, ok := pathLocks[path]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	pathLocks[path] = lock
	return lock
}

func cleanPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("path is required")
	}
	return filepath.Clean(trimmed), nil
}
