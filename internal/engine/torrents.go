package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/internal/queue"
	"github.com/tinytorrent/tinytorrentd/internal/session"
)

// ingestWatchedTorrent is the Automation Agent's enqueueTorrent
// callback. It runs on the I/O worker goroutine that read the
// candidate file, so the actual add must cross back onto the Engine
// Thread via the command queue rather than touch the backend directly.
func (e *Engine) ingestWatchedTorrent(path string, blob []byte) error {
	future, err := queue.SubmitResult[int64](context.Background(), e.q, func() (int64, error) {
		return e.addTorrentMetainfo(blob, "")
	})
	if err != nil {
		return err
	}
	_, err = queue.Await[int64](context.Background(), future)
	return err
}

// effectiveSavePath picks the incomplete directory for a freshly added
// torrent when incomplete-dir relocation is enabled, else the download
// path, per spec §4.7.
func (e *Engine) effectiveSavePath() string {
	cfg := e.cfg.Get()
	if cfg.IncompleteEnabled && cfg.IncompleteDir != "" {
		return cfg.IncompleteDir
	}
	return cfg.DownloadPath
}

// addTorrentMagnet adds a magnet URI, runs only on the Engine Thread.
func (e *Engine) addTorrentMagnet(uri string, labels []string) (int64, error) {
	hash, err := e.backend.AddTorrentMagnet(context.Background(), uri)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	return e.registerNewTorrent(hash, model.PersistedTorrent{
		InfoHash:  hash,
		MagnetURI: uri,
		SavePath:  e.effectiveSavePath(),
		Labels:    labels,
		AddedAt:   time.Now().Unix(),
	}), nil
}

// addTorrentMetainfo adds a .torrent metainfo blob, runs only on the
// Engine Thread.
func (e *Engine) addTorrentMetainfo(blob []byte, label string) (int64, error) {
	hash, err := e.backend.AddTorrentMetainfo(context.Background(), blob)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	var labels []string
	if label != "" {
		labels = []string{label}
	}
	return e.registerNewTorrent(hash, model.PersistedTorrent{
		InfoHash:     hash,
		MetainfoBlob: blob,
		SavePath:     e.effectiveSavePath(),
		Labels:       labels,
		AddedAt:      time.Now().Unix(),
	}), nil
}

// registerNewTorrent assigns the torrent its stable RpcId, seeds the
// persisted record and the published snapshot record, and enqueues the
// initial database row.
func (e *Engine) registerNewTorrent(hash model.InfoHash, p model.PersistedTorrent) int64 {
	id, _ := e.ids.IDFor(hash)
	p.RpcID = id
	e.persisted[hash] = p

	t := e.snap.Torrent(hash)
	t.Overrides.Labels = p.Labels
	t.BumpRevision()

	e.store.UpsertTorrent(p)
	return id
}

// removeTorrentByID tears down a torrent: asks the backend to drop it
// (optionally deleting its data), then forgets it everywhere else.
func (e *Engine) removeTorrentByID(id int64, deleteData bool) error {
	hash, ok := e.ids.HashFor(id)
	if !ok {
		return ErrTorrentNotFound
	}
	if err := e.backend.RemoveTorrent(hash, deleteData); err != nil {
		return fmt.Errorf("%w: %v", ErrPerTorrentFault, err)
	}
	delete(e.persisted, hash)
	e.ids.Forget(hash)
	e.store.DeleteTorrent(hash)
	return nil
}

// handleFor resolves a stable RpcId to its live backend handle,
// distinguishing an unknown id from a known id whose handle has not
// (yet) been reattached by the backend.
func (e *Engine) handleFor(id int64) (session.Handle, model.InfoHash, error) {
	hash, ok := e.ids.HashFor(id)
	if !ok {
		return nil, model.InfoHash{}, ErrTorrentNotFound
	}
	h, ok := e.backend.Handle(hash)
	if !ok {
		return nil, hash, ErrTorrentNotFound
	}
	return h, hash, nil
}

// moveLocationByID requests a storage move for one torrent, rejecting
// a second request while one is already pending, per spec §4.7/§9.
func (e *Engine) moveLocationByID(id int64, newPath string) error {
	if newPath == "" {
		return ErrInvalidPath
	}
	_, hash, err := e.handleFor(id)
	if err != nil {
		return err
	}
	t := e.snap.Torrent(hash)
	if t.PendingMoveTo != "" {
		return fmt.Errorf("%w: move already in progress", ErrPerTorrentFault)
	}
	if err := e.backend.MoveStorage(hash, newPath); err != nil {
		return fmt.Errorf("%w: %v", ErrPerTorrentFault, err)
	}
	t.PendingMoveTo = newPath
	t.BumpRevision()
	return nil
}

// reorderQueue implements queue-move-{top,bottom,up,down}: it reads
// every handle's current queue position, computes the id's new index,
// and reassigns positions for every handle whose index shifted.
func (e *Engine) reorderQueue(id int64, move func(positions []model.InfoHash, idx int) []model.InfoHash) error {
	_, hash, err := e.handleFor(id)
	if err != nil {
		return err
	}

	handles := e.backend.TorrentHandles()
	positions := make([]model.InfoHash, len(handles))
	byHash := make(map[model.InfoHash]session.Handle, len(handles))
	for _, h := range handles {
		s := h.Stats()
		if s.QueuePosition < 0 || s.QueuePosition >= len(handles) {
			continue
		}
		positions[s.QueuePosition] = h.InfoHash()
		byHash[h.InfoHash()] = h
	}

	idx := -1
	for i, h := range positions {
		if h == hash {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: torrent has no queue position", ErrPerTorrentFault)
	}

	reordered := move(positions, idx)
	for pos, h := range reordered {
		if handle, ok := byHash[h]; ok {
			handle.SetQueuePosition(pos)
		}
	}
	return nil
}

func queueMoveTop(positions []model.InfoHash, idx int) []model.InfoHash {
	h := positions[idx]
	out := append([]model.InfoHash{h}, append(append([]model.InfoHash{}, positions[:idx]...), positions[idx+1:]...)...)
	return out
}

func queueMoveBottom(positions []model.InfoHash, idx int) []model.InfoHash {
	h := positions[idx]
	rest := append(append([]model.InfoHash{}, positions[:idx]...), positions[idx+1:]...)
	return append(rest, h)
}

func queueMoveUp(positions []model.InfoHash, idx int) []model.InfoHash {
	if idx == 0 {
		return positions
	}
	out := append([]model.InfoHash{}, positions...)
	out[idx-1], out[idx] = out[idx], out[idx-1]
	return out
}

func queueMoveDown(positions []model.InfoHash, idx int) []model.InfoHash {
	if idx >= len(positions)-1 {
		return positions
	}
	out := append([]model.InfoHash{}, positions...)
	out[idx+1], out[idx] = out[idx], out[idx+1]
	return out
}
