package session

import "github.com/tinytorrent/tinytorrentd/internal/model"

// Alert is the tagged-variant alert sum type named in spec §9's Design
// Notes ("replaces the current C++ alert-class hierarchy with tagged
// variants"). Concrete alert kinds implement it with a marker method.
type Alert interface {
	alert()
}

// StateUpdate batches the hashes whose observable status changed this
// tick, per spec §4.1.
type StateUpdate struct {
	Hashes []model.InfoHash
}

// TorrentFinished fires when a torrent completes downloading all
// wanted data.
type TorrentFinished struct {
	Hash model.InfoHash
}

// MetadataReceived fires once a magnet/info-hash-only torrent's
// metainfo has arrived.
type MetadataReceived struct {
	Hash         model.InfoHash
	MetainfoBlob []byte
}

// SaveResumeDataOK carries the serialized resume parameters for hash.
type SaveResumeDataOK struct {
	Hash   model.InfoHash
	Params []byte
}

// SaveResumeDataFailed fires when resume-data generation failed.
type SaveResumeDataFailed struct {
	Hash model.InfoHash
	Err  error
}

// ListenSucceeded fires when the session's TCP listen socket binds (or
// rebinds) successfully.
type ListenSucceeded struct {
	Interface string
}

// ListenFailed fires when the session's TCP listen socket fails to
// bind.
type ListenFailed struct {
	Err error
}

// FileError fires on a per-file I/O error for a torrent.
type FileError struct {
	Hash model.InfoHash
	Err  error
}

// TrackerError fires on a tracker announce failure for a torrent.
type TrackerError struct {
	Hash model.InfoHash
	Err  error
}

// PortmapError fires on a UPnP/NAT-PMP port-mapping failure.
type PortmapError struct {
	Err error
}

// StorageMoved fires once a move-storage operation completes.
type StorageMoved struct {
	Hash    model.InfoHash
	NewPath string
}

// StorageMovedFailed fires when a move-storage operation fails.
type StorageMovedFailed struct {
	Hash model.InfoHash
	Err  error
}

// FastresumeRejected fires when a torrent's persisted resume state was
// rejected (forcing a full recheck).
type FastresumeRejected struct {
	Hash model.InfoHash
	Err  error
}

// TorrentAddFailed fires when AddTorrent* could not construct a
// handle for the given source.
type TorrentAddFailed struct {
	Hash model.InfoHash
	Err  error
}

func (StateUpdate) alert()         {}
func (TorrentFinished) alert()     {}
func (MetadataReceived) alert()    {}
func (SaveResumeDataOK) alert()    {}
func (SaveResumeDataFailed) alert() {}
func (ListenSucceeded) alert()     {}
func (ListenFailed) alert()        {}
func (FileError) alert()           {}
func (TrackerError) alert()        {}
func (PortmapError) alert()        {}
func (StorageMoved) alert()        {}
func (StorageMovedFailed) alert()  {}
func (FastresumeRejected) alert()  {}
func (TorrentAddFailed) alert()    {}

// AlertBufferCapacity is the fixed-capacity alert buffer from spec
// §4.1.
const AlertBufferCapacity = 65536
