package session

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tinytorrent/tinytorrentd/internal/eventbus"
	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/pkg/storage"
)

// Router is the Alert Router named in spec §4.1: a switch over Alert
// kinds that publishes at most one eventbus event per alert (an error
// alert for a hash already latched in the batch publishes none) and
// performs the side effects the table names (metadata fsync-rename,
// first-wins error latching per hash).
type Router struct {
	bus *eventbus.Bus
	log *zap.Logger

	metadataDir string

	// latched records which hashes already had an error recorded this
	// drain batch; the first alert in a batch wins, per spec §4.1's
	// tie-break rule. It is reset at the start of every Route call.
	latched map[model.InfoHash]bool
}

// NewRouter constructs a Router that fsync-renames received metainfo
// into metadataDir.
func NewRouter(bus *eventbus.Bus, metadataDir string, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{bus: bus, log: log.Named("alert_router"), metadataDir: metadataDir}
}

// Route drains one batch of alerts (as returned by Backend.PopAlerts)
// and dispatches each to at most one eventbus publish plus its side
// effects.
func (r *Router) Route(alerts []Alert) {
	r.latched = make(map[model.InfoHash]bool)

	for _, a := range alerts {
		switch v := a.(type) {
		case StateUpdate:
			r.bus.Publish(TopicStateUpdate, StateUpdateEvent{Hashes: v.Hashes})

		case TorrentFinished:
			r.bus.Publish(TopicTorrentFinished, TorrentFinishedEvent{Hash: v.Hash})

		case MetadataReceived:
			r.handleMetadataReceived(v)

		case SaveResumeDataOK:
			r.bus.Publish(TopicResumeDataReady, ResumeDataReadyEvent{Hash: v.Hash, Params: v.Params})

		case SaveResumeDataFailed:
			r.log.Warn("save resume data failed", zap.String("hash", v.Hash.String()), zap.Error(v.Err))
			r.bus.Publish(TopicResumeDataReady, ResumeDataReadyEvent{Hash: v.Hash, Err: v.Err})

		case ListenSucceeded:
			r.bus.Publish(TopicListenStatus, ListenStatusEvent{Interface: v.Interface})

		case ListenFailed:
			r.bus.Publish(TopicListenStatus, ListenStatusEvent{Err: v.Err})

		case StorageMoved:
			r.bus.Publish(TopicStorageMoveResult, StorageMoveResultEvent{Hash: v.Hash, NewPath: v.NewPath})

		case StorageMovedFailed:
			r.bus.Publish(TopicStorageMoveResult, StorageMoveResultEvent{Hash: v.Hash, Err: v.Err})

		case FileError:
			r.latchError(v.Hash, "file", v.Err)
		case TrackerError:
			r.latchError(v.Hash, "tracker", v.Err)
		case FastresumeRejected:
			r.latchError(v.Hash, "fastresume", v.Err)
		case PortmapError:
			r.bus.Publish(TopicListenStatus, ListenStatusEvent{Err: fmt.Errorf("portmap: %w", v.Err)})

		case TorrentAddFailed:
			r.bus.Publish(TopicTorrentAddFailed, TorrentAddFailedEvent{Hash: v.Hash, Err: v.Err})
		}
	}
}

func (r *Router) latchError(hash model.InfoHash, source string, err error) {
	if r.latched[hash] {
		return
	}
	r.latched[hash] = true
	r.bus.Publish(TopicTorrentError, TorrentErrorEvent{Hash: hash, Source: source, Err: err})
}

// handleMetadataReceived fsync-renames the metainfo blob into its
// sidecar path. A torrent reattached from a persisted MetainfoBlob (or
// MetadataFilePath) re-learns its own metadata from the backend on
// every restart, which would otherwise mean rewriting an identical
// sidecar file every time the daemon starts; sidecarUpToDate short
// circuits that by comparing size and content hash before touching
// disk.
func (r *Router) handleMetadataReceived(v MetadataReceived) {
	path := filepath.Join(r.metadataDir, v.Hash.String()+".torrent")

	if sidecarUpToDate(path, v.MetainfoBlob) {
		r.bus.Publish(TopicMetadataPersisted, MetadataPersistedEvent{Hash: v.Hash, Path: path})
		return
	}

	if err := storage.AtomicWriteFile(path, v.MetainfoBlob, 0o644); err != nil {
		r.log.Error("failed to persist metainfo", zap.String("hash", v.Hash.String()), zap.Error(err))
		r.latchError(v.Hash, "metadata", err)
		return
	}
	r.bus.Publish(TopicMetadataPersisted, MetadataPersistedEvent{Hash: v.Hash, Path: path})
}

// sidecarUpToDate reports whether path already holds blob's exact
// bytes, checking the cheap size comparison before paying for a hash
// of the on-disk file.
func sidecarUpToDate(path string, blob []byte) bool {
	if !storage.FileExists(path) {
		return false
	}
	size, err := storage.GetFileSize(path)
	if err != nil || size != int64(len(blob)) {
		return false
	}
	existing, err := storage.ComputeFileHash(path)
	if err != nil {
		return false
	}
	want := sha256.Sum256(blob)
	return bytes.Equal(existing, want[:])
}
