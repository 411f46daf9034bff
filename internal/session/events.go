package session

import "github.com/tinytorrent/tinytorrentd/internal/model"

// Event bus topics published by the Alert Router, per spec §4.1's
// alert/effect table.
const (
	TopicStateUpdate        = "session.state_update"
	TopicTorrentFinished    = "session.torrent_finished"
	TopicMetadataPersisted  = "session.metadata_persisted"
	TopicResumeDataReady    = "session.resume_data_ready"
	TopicListenStatus       = "session.listen_status"
	TopicStorageMoveResult  = "session.storage_move_result"
	TopicTorrentError       = "session.torrent_error"
	TopicTorrentAddFailed   = "session.torrent_add_failed"
)

// StateUpdateEvent is published for every drained state-update alert.
type StateUpdateEvent struct {
	Hashes []model.InfoHash
}

// TorrentFinishedEvent is published when a torrent completes; the
// Automation Agent's move-on-complete handler subscribes to this.
type TorrentFinishedEvent struct {
	Hash model.InfoHash
}

// MetadataPersistedEvent fires once a magnet torrent's metainfo has
// been fsync-renamed into the metadata directory.
type MetadataPersistedEvent struct {
	Hash model.InfoHash
	Path string
}

// ResumeDataReadyEvent carries resume parameters, or the failure, for
// a single infohash. Exactly one of Params/Err is set.
type ResumeDataReadyEvent struct {
	Hash   model.InfoHash
	Params []byte
	Err    error
}

// ListenStatusEvent reports the TCP listen socket's current state.
type ListenStatusEvent struct {
	Interface string
	Err       error
}

// StorageMoveResultEvent finalises or cancels a pending move-on-complete.
type StorageMoveResultEvent struct {
	Hash    model.InfoHash
	NewPath string
	Err     error
}

// TorrentErrorEvent records a per-torrent fault (first-wins per tick).
type TorrentErrorEvent struct {
	Hash   model.InfoHash
	Source string
	Err    error
}

// TorrentAddFailedEvent fires when a session-level add could not
// construct a handle; downstream removes the hash from persistence.
type TorrentAddFailedEvent struct {
	Hash model.InfoHash
	Err  error
}
