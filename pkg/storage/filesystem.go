// Package storage holds the small set of filesystem primitives
// tinytorrentd needs outside the BitTorrent session itself: durable
// writes for metainfo sidecars and settings/state snapshots, plus the
// existence/hash/size checks the Alert Router and Move-on-Complete use
// to avoid redundant disk work.
package storage

import (
	"bufio"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path via a temp file in the same
// directory, fsync, chmod, then rename, so a crash or concurrent
// reader never observes a partially written file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := EnsureDir(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	// tmpFile is now the target; the deferred cleanup must not touch it.
	tmpFile = nil
	return nil
}

// EnsureDir creates path and any missing parents, succeeding silently
// if it already exists.
func EnsureDir(path string, perm os.FileMode) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// FileExists reports whether path names a regular file. It treats any
// stat error (missing path, permission denial) as "does not exist",
// which is what both of its callers — sidecar dedup in the Alert
// Router and collision avoidance in Move-on-Complete — want: when in
// doubt, proceed as though the destination is free and let the
// subsequent write surface the real error.
func FileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ComputeFileHash returns the SHA-256 digest of path's contents, used
// to tell whether a metainfo sidecar already on disk matches the blob
// the backend just re-learned, so a restart doesn't repeat an
// unnecessary fsync-rename for data that hasn't changed.
func ComputeFileHash(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("path cannot be empty")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}
	return hash.Sum(nil), nil
}

// GetFileSize returns path's size in bytes. Called before
// ComputeFileHash as a cheap mismatch check that skips hashing
// whenever the size alone proves the file differs.
func GetFileSize(path string) (int64, error) {
	if path == "" {
		return 0, errors.New("path cannot be empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory, not a file", path)
	}
	return info.Size(), nil
}
