package automation

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tinytorrent/tinytorrentd/internal/eventbus"
	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/internal/session"
	"github.com/tinytorrent/tinytorrentd/pkg/storage"
)

// maxUniqueSuffix bounds the " (N)" collision search before
// MoveOnComplete gives up on a destination, per spec §4.7.
const maxUniqueSuffix = 1024

// TorrentLocation is what MoveOnComplete needs to know about a
// finished torrent to decide whether, and where, to move it.
type TorrentLocation struct {
	CurrentPath string // the torrent's current save path
	Name        string // leaf name used to build the destination path
}

// Locator resolves a finished torrent's current location. Implemented
// by the Engine Thread's torrent table.
type Locator interface {
	Location(hash model.InfoHash) (TorrentLocation, bool)
}

// SettingsView is the subset of CoreSettings MoveOnComplete consults.
type SettingsView func() (downloadPath, incompleteDir string, incompleteEnabled bool)

// MoveOnComplete subscribes to TorrentFinished and relocates a
// torrent's data from the incomplete directory to the completed
// directory, per spec §4.7.
type MoveOnComplete struct {
	backend  session.Backend
	locator  Locator
	settings SettingsView
	onMoved  func(hash model.InfoHash, newPath string)
	log      *zap.Logger

	mu           sync.Mutex
	pendingMoves map[model.InfoHash]string
}

// NewMoveOnComplete wires the subscriber onto bus and returns it.
func NewMoveOnComplete(bus *eventbus.Bus, backend session.Backend, locator Locator, settings SettingsView, onMoved func(model.InfoHash, string), log *zap.Logger) *MoveOnComplete {
	m := &MoveOnComplete{
		backend:      backend,
		locator:      locator,
		settings:     settings,
		onMoved:      onMoved,
		log:          log,
		pendingMoves: make(map[model.InfoHash]string),
	}

	bus.Subscribe(session.TopicTorrentFinished, func(ev eventbus.Event) {
		fe, ok := ev.(session.TorrentFinishedEvent)
		if !ok {
			return
		}
		m.onFinished(fe.Hash)
	})
	bus.Subscribe(session.TopicStorageMoveResult, func(ev eventbus.Event) {
		re, ok := ev.(session.StorageMoveResultEvent)
		if !ok {
			return
		}
		m.onMoveResult(re)
	})

	return m
}

func (m *MoveOnComplete) onFinished(hash model.InfoHash) {
	downloadPath, incompleteDir, incompleteEnabled := m.settings()
	if !incompleteEnabled || downloadPath == "" || incompleteDir == "" || downloadPath == incompleteDir {
		return
	}

	loc, ok := m.locator.Location(hash)
	if !ok || loc.CurrentPath != incompleteDir {
		return
	}

	dest, err := uniqueDestination(filepath.Join(downloadPath, loc.Name))
	if err != nil {
		m.log.Warn("move-on-complete could not find a free destination name",
			zap.String("name", loc.Name), zap.Error(err))
		return
	}

	m.mu.Lock()
	m.pendingMoves[hash] = dest
	m.mu.Unlock()

	if err := m.backend.MoveStorage(hash, dest); err != nil {
		m.mu.Lock()
		delete(m.pendingMoves, hash)
		m.mu.Unlock()
		m.log.Warn("move-on-complete failed to request storage move", zap.Error(err))
	}
}

func (m *MoveOnComplete) onMoveResult(ev session.StorageMoveResultEvent) {
	m.mu.Lock()
	dest, pending := m.pendingMoves[ev.Hash]
	if pending {
		delete(m.pendingMoves, ev.Hash)
	}
	m.mu.Unlock()

	if !pending {
		return
	}
	if ev.Err != nil {
		m.log.Warn("move-on-complete storage move failed", zap.Error(ev.Err))
		return
	}
	m.onMoved(ev.Hash, dest)
}

// uniqueDestination appends " (N)" before base's extension, for
// N = 1..maxUniqueSuffix, until a non-existent path is found. It does
// not create the destination's parent directory, per spec §9.
func uniqueDestination(base string) (string, error) {
	if !storage.FileExists(base) {
		return base, nil
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; n <= maxUniqueSuffix; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !storage.FileExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no unique destination found for %q after %d attempts", base, maxUniqueSuffix)
}
