package model

// StateTag is the torrent state-tag vocabulary from spec §4.4.
type StateTag string

const (
	StateCheckingFiles      StateTag = "checking-files"
	StateDownloadingMeta    StateTag = "downloading-metadata"
	StateDownloading        StateTag = "downloading"
	StateFinished           StateTag = "finished"
	StateSeeding            StateTag = "seeding"
	StateCheckingResumeData StateTag = "checking-resume-data"
	StateUnknown            StateTag = "unknown"
)

// TransmissionStatus returns the Transmission RPC status code for a
// torrent, implementing the mapping table in spec §4.4: paused maps to
// 0 regardless of the underlying state tag.
func TransmissionStatus(tag StateTag, paused bool) int {
	if paused {
		return 0
	}
	switch tag {
	case StateCheckingFiles, StateCheckingResumeData:
		return 2
	case StateDownloading, StateDownloadingMeta:
		return 4
	case StateFinished, StateSeeding:
		return 6
	default:
		return 0
	}
}

// ClassifyState derives the state tag from a handle's raw observable
// flags, per spec §4.4's state-tag vocabulary. checking is true while
// a hash/resume-data check is in progress; checkingResume
// distinguishes a resume-data check from a full recheck. A completed
// torrent that is paused is "finished"; a completed torrent that is
// not paused is "seeding".
func ClassifyState(gotMetadata, checking, checkingResume, completed, paused bool) StateTag {
	switch {
	case !gotMetadata:
		return StateDownloadingMeta
	case checkingResume:
		return StateCheckingResumeData
	case checking:
		return StateCheckingFiles
	case completed && paused:
		return StateFinished
	case completed:
		return StateSeeding
	default:
		return StateDownloading
	}
}

// TorrentSnapshot is the published, immutable read view of one torrent.
type TorrentSnapshot struct {
	ID       int64
	InfoHash string // hex
	Name     string

	State          StateTag
	StatusCode     int
	Progress       float64
	TotalWanted    int64
	TotalWantedDone int64

	DownloadRate int64 // bytes/sec
	UploadRate   int64

	UploadedTotal   int64
	DownloadedTotal int64

	QueuePosition int

	PeerCount int
	SeedCount int

	ETA   int64 // seconds, -1 if unknown
	Ratio float64

	Paused       bool
	Sequential   bool
	SuperSeeding bool
	IsStalled    bool

	Labels            []string
	BandwidthPriority BandwidthPriority
	DownloadLimit     RateLimit
	UploadLimit       RateLimit

	Error *TorrentFault

	Revision uint64
}

// SessionTotals aggregates session-wide rates and per-state counts.
type SessionTotals struct {
	DownloadRate int64
	UploadRate   int64

	CountByState map[StateTag]int
}

// SessionSnapshot is the published read view exposed to RPC, per
// spec §3/§4.4. It is treated as immutable once published.
type SessionSnapshot struct {
	Torrents []TorrentSnapshot
	Totals   SessionTotals

	Cumulative SessionStatistics
	Current    SessionStatistics

	FreeSpaceBytes int64

	ListenError string
}

// ETA computes the estimated time to completion, implementing the
// formula in spec §4.4: -1 when the download rate is <= 0, else the
// ceiling of remaining bytes over rate.
func ETA(totalWanted, totalWantedDone, downloadRate int64) int64 {
	if downloadRate <= 0 {
		return -1
	}
	remaining := totalWanted - totalWantedDone
	if remaining < 0 {
		remaining = 0
	}
	eta := remaining / downloadRate
	if remaining%downloadRate != 0 {
		eta++
	}
	return eta
}

// Ratio computes upload/download, defined as 0 when nothing has been
// downloaded yet, per spec §4.4.
func Ratio(uploaded, downloaded int64) float64 {
	if downloaded <= 0 {
		return 0
	}
	return float64(uploaded) / float64(downloaded)
}
