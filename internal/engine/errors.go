package engine

import "errors"

// Sentinel errors implementing the error taxonomy from spec §7. RPC
// layers above the Engine Thread map these onto their own wire-level
// error codes.
var (
	// ErrInvalidURI covers a magnet URI or metainfo blob the backend
	// could not parse.
	ErrInvalidURI = errors.New("engine: invalid torrent uri or metainfo")

	// ErrInvalidPath covers a save path or move-location destination
	// that failed validation.
	ErrInvalidPath = errors.New("engine: invalid path")

	// ErrTorrentNotFound is returned when a command names an RpcId with
	// no live torrent behind it.
	ErrTorrentNotFound = errors.New("engine: torrent not found")

	// ErrPerTorrentFault wraps a tracker, file or storage-move failure
	// scoped to a single torrent (spec §7's PerTorrentFault).
	ErrPerTorrentFault = errors.New("engine: per-torrent operation failed")

	// ErrSessionFault wraps a backend-session-wide failure (spec §7's
	// SessionFault).
	ErrSessionFault = errors.New("engine: session operation failed")

	// ErrPersistenceFault wraps a persistence-layer failure (spec §7's
	// PersistenceFault).
	ErrPersistenceFault = errors.New("engine: persistence operation failed")

	// ErrShutdownTimeout is returned (logged, never fatal) when the
	// resume-data shutdown deadline expired before every pending save
	// completed.
	ErrShutdownTimeout = errors.New("engine: shutdown timed out waiting for resume data")
)
