package model

import "time"

// BandwidthPriority mirrors Transmission's torrent-level priority enum.
type BandwidthPriority int

const (
	PriorityLow    BandwidthPriority = -1
	PriorityNormal BandwidthPriority = 0
	PriorityHigh   BandwidthPriority = 1
)

// TorrentFault records a non-fatal per-torrent error: tracker, file or
// storage-move failures per spec §7 (PerTorrentFault).
type TorrentFault struct {
	Source  string // "file" | "tracker" | "storage"
	Message string
}

// TorrentOverrides are the optional per-torrent policy knobs from
// spec §3; a nil pointer on the owning Torrent means "use the global
// setting."
type TorrentOverrides struct {
	SeedRatioLimit   *float64
	SeedRatioEnabled *bool
	SeedIdleLimitMin *int
	SeedIdleEnabled  *bool

	BandwidthPriority *BandwidthPriority
	DownloadLimit     *RateLimit
	UploadLimit       *RateLimit

	Labels []string
}

// Torrent is the engine-owned record for a single torrent, per spec §3.
type Torrent struct {
	InfoHash InfoHash
	RpcID    int64

	Overrides TorrentOverrides

	Revision uint64
	Error    *TorrentFault

	PendingMoveTo string // non-empty while a move-storage is in flight

	Sequential   bool
	SuperSeeding bool

	// Policy bookkeeping, engine-only (never published).
	RatioTriggered bool
	LastActivity   time.Time
}

// BumpRevision increments the observable-change counter, satisfying
// the monotonicity invariant in spec §3/§8.
func (t *Torrent) BumpRevision() {
	t.Revision++
}
