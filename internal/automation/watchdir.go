// Package automation implements the Automation Agent: the watch-dir
// ingestion loop and the move-on-complete subscriber, per spec §4.7.
//
// Both halves are grounded on legacy/seeder/internal/watcher.go's
// debounce-and-move idiom, redirected from "seed a dropped package"
// to "ingest a dropped .torrent metainfo file".
package automation

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// stabilityWindow is how long a candidate file's size/mtime must
	// stay unchanged before it is handed to EnqueueTorrent, per §4.7.
	stabilityWindow = 3 * time.Second

	// maxTorrentFileSize skips files larger than this; a legitimate
	// .torrent metainfo file is never this large.
	maxTorrentFileSize = 64 << 20

	addedSuffix   = ".added"
	invalidSuffix = ".invalid"
)

// fileSnapshot tracks one candidate's observed size/mtime across
// polling ticks.
type fileSnapshot struct {
	size       int64
	modTime    time.Time
	lastChange time.Time
}

// WatchDir polls watchDir for stable *.torrent files and hands each
// one to EnqueueTorrent once it has stopped changing for
// stabilityWindow.
type WatchDir struct {
	dir            string
	enqueueTorrent func(path string, blob []byte) error
	log            *zap.Logger

	snapshots map[string]fileSnapshot
}

// NewWatchDir constructs a WatchDir poller. enqueueTorrent is called
// with the file's path and decoded bytes once a candidate goes
// stable; a non-nil return renames the file to .invalid.
func NewWatchDir(dir string, enqueueTorrent func(path string, blob []byte) error, log *zap.Logger) *WatchDir {
	return &WatchDir{
		dir:            dir,
		enqueueTorrent: enqueueTorrent,
		log:            log,
		snapshots:      make(map[string]fileSnapshot),
	}
}

// SetDir redirects the poller at a new directory, dropping any
// in-flight stability tracking for the old one. Used when the
// watch_dir setting changes at runtime.
func (w *WatchDir) SetDir(dir string) {
	w.dir = dir
	w.snapshots = make(map[string]fileSnapshot)
}

// Scan runs one polling pass, called from housekeeping at ≤2 s
// cadence per spec §4.13. Vanished candidates are garbage collected.
func (w *WatchDir) Scan(now time.Time) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.log.Warn("watch dir scan failed", zap.String("dir", w.dir), zap.Error(err))
		}
		return
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isTorrentFile(entry.Name()) {
			continue
		}
		name := entry.Name()
		seen[name] = true

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > maxTorrentFileSize {
			continue
		}

		w.observe(name, info.Size(), info.ModTime(), now)
	}

	for name := range w.snapshots {
		if !seen[name] {
			delete(w.snapshots, name)
		}
	}
}

func (w *WatchDir) observe(name string, size int64, modTime, now time.Time) {
	prev, tracked := w.snapshots[name]
	if !tracked || prev.size != size || !prev.modTime.Equal(modTime) {
		w.snapshots[name] = fileSnapshot{size: size, modTime: modTime, lastChange: now}
		return
	}

	if now.Sub(prev.lastChange) < stabilityWindow {
		return
	}

	delete(w.snapshots, name)
	w.ingest(filepath.Join(w.dir, name))
}

func (w *WatchDir) ingest(path string) {
	logger := w.log.With(zap.String("file", filepath.Base(path)))

	blob, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read stable candidate", zap.Error(err))
		}
		return
	}

	if err := w.enqueueTorrent(path, blob); err != nil {
		logger.Info("rejected watch-dir candidate", zap.Error(err))
		renameWithSuffix(path, invalidSuffix, logger)
		return
	}

	logger.Info("ingested watch-dir candidate")
	renameWithSuffix(path, addedSuffix, logger)
}

func renameWithSuffix(path, suffix string, logger *zap.Logger) {
	dest := path + suffix
	if err := os.Rename(path, dest); err != nil {
		logger.Warn("failed to rename watch-dir candidate", zap.String("dest", dest), zap.Error(err))
	}
}

func isTorrentFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".torrent")
}
