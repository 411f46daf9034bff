// Package session owns the BitTorrent backend session and routes its
// asynchronous alerts into internal events, per spec §4.1. It is the
// only package that imports github.com/anacrolix/torrent directly;
// everything above it talks to the Backend/Handle interfaces so the
// rest of the engine stays testable against a fake.
package session

import (
	"context"

	"github.com/tinytorrent/tinytorrentd/internal/model"
)

// HandleStats is the subset of a live torrent's observable state the
// Snapshot Builder and policies need each tick.
type HandleStats struct {
	Name string

	GotMetadata bool
	Checking    bool

	TotalWanted     int64
	TotalWantedDone int64

	DownloadRate int64
	UploadRate   int64

	UploadedTotal   int64
	DownloadedTotal int64

	PeerCount int
	SeedCount int

	QueuePosition int
}

// Handle is an opaque reference to a torrent owned by the backend
// session, per the GLOSSARY. It replaces libtorrent's torrent_handle.
type Handle interface {
	InfoHash() model.InfoHash
	Stats() HandleStats

	Pause()
	Resume()
	IsPaused() bool

	SetSequential(enabled bool)
	SetSuperSeeding(enabled bool)

	VerifyData()
	Reannounce()

	SetFileWanted(fileIndex int, wanted bool)
	SetQueuePosition(pos int)

	SetRateLimits(down, up model.RateLimit)

	AddTrackers(urls []string)
	RemoveTrackers(urls []string)
	ReplaceTrackers(urls []string)
}

// SettingsPack is the subset of CoreSettings the backend can apply
// live, per spec §4.2 ("apply the corresponding settings-pack subset
// to the Session").
type SettingsPack struct {
	Settings   model.CoreSettings
	Categories map[model.SettingsCategory]bool
}

// IPFilterRule is one parsed blocklist entry.
type IPFilterRule struct {
	Start, End [16]byte // IPv4 addresses are stored in the low 4 bytes
	Blocked    bool
}

// Backend is the SessionBackend capability named in spec §4.1/§9: the
// opaque BitTorrent engine the core drives. Implementations must never
// be called from more than one goroutine at a time — the Engine Thread
// is the sole caller, per spec §5.
type Backend interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	AddTorrentMagnet(ctx context.Context, magnetURI string) (model.InfoHash, error)
	AddTorrentMetainfo(ctx context.Context, blob []byte) (model.InfoHash, error)
	AddTorrentInfoHash(ctx context.Context, hash model.InfoHash) error
	RemoveTorrent(hash model.InfoHash, deleteData bool) error

	// ApplyResumeData restores the queue position and pause/sequential
	// state a prior RequestSaveResumeData captured for hash, which must
	// already have been added via one of the AddTorrent* calls above.
	// Per spec §4.9/§6, this is what makes fast-resume data meaningful
	// across a restart rather than a write-only record.
	ApplyResumeData(hash model.InfoHash, data []byte) error

	TorrentHandles() []Handle
	Handle(hash model.InfoHash) (Handle, bool)

	MoveStorage(hash model.InfoHash, newPath string) error

	ApplySettings(pack SettingsPack) error
	SetIPFilter(rules []IPFilterRule) error

	// RequestSaveResumeData asks the backend to (re)serialize resume
	// parameters for hash; completion is observed as a
	// SaveResumeDataOK/Failed alert, per spec §4.9.
	RequestSaveResumeData(hash model.InfoHash)

	WriteSessionState() ([]byte, error)

	// PopAlerts drains up to AlertBufferCapacity pending alerts, per
	// spec §4.1.
	PopAlerts() []Alert
}
