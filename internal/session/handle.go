package session

import (
	ltorrent "github.com/anacrolix/torrent"

	"github.com/tinytorrent/tinytorrentd/internal/model"
)

// libtorrentHandle adapts a *torrent.Torrent to the Handle interface.
// anacrolix/torrent has no native pause/sequential/super-seed
// primitives on the torrent itself, so those toggles are tracked in
// the shared trackedState rather than on the handle itself: the
// backend hands out a fresh libtorrentHandle on every Handle() call,
// and without that indirection a Pause() would be forgotten the
// instant the caller's handle went out of scope.
type libtorrentHandle struct {
	t  *ltorrent.Torrent
	st *trackedState
}

func (h *libtorrentHandle) InfoHash() model.InfoHash {
	return model.InfoHash(h.t.InfoHash())
}

func (h *libtorrentHandle) Stats() HandleStats {
	stats := h.t.Stats()
	hs := HandleStats{
		Name:        h.t.Name(),
		GotMetadata: h.t.Info() != nil,
		Checking:    false,

		DownloadedTotal: stats.BytesReadData.Int64(),
		UploadedTotal:   stats.BytesWrittenData.Int64(),

		PeerCount: stats.ActivePeers,
		SeedCount: stats.ConnectedSeeders,
	}
	if info := h.t.Info(); info != nil {
		hs.TotalWanted = info.TotalLength()
		hs.TotalWantedDone = h.t.BytesCompleted()
	}

	h.st.mu.Lock()
	hs.QueuePosition = h.st.queuePos
	h.st.mu.Unlock()
	return hs
}

func (h *libtorrentHandle) Pause() {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	if h.st.paused {
		return
	}
	h.st.paused = true
	h.t.CancelPieces(0, h.t.NumPieces())
	h.t.SetMaxEstablishedConns(0)
}

func (h *libtorrentHandle) Resume() {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	if !h.st.paused {
		return
	}
	h.st.paused = false
	h.t.SetMaxEstablishedConns(ltorrent.NewDefaultClientConfig().EstablishedConnsPerTorrent)
	h.t.DownloadAll()
}

func (h *libtorrentHandle) IsPaused() bool {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	return h.st.paused
}

func (h *libtorrentHandle) SetSequential(enabled bool) {
	h.st.mu.Lock()
	h.st.sequential = enabled
	h.st.mu.Unlock()
	// anacrolix/torrent only exposes per-piece priorities, not a single
	// global sequential toggle. Approximate sequential mode by raising
	// every piece to PiecePriorityNow; pieces are not ranked by index,
	// and disabling the mode leaves those priorities unchanged.
	if info := h.t.Info(); info != nil && enabled {
		for i := 0; i < h.t.NumPieces(); i++ {
			h.t.Piece(i).SetPriority(ltorrent.PiecePriorityNow)
		}
	}
}

func (h *libtorrentHandle) SetSuperSeeding(enabled bool) {
	h.st.mu.Lock()
	h.st.superSeeding = enabled
	h.st.mu.Unlock()
}

func (h *libtorrentHandle) VerifyData() {
	h.t.VerifyData()
}

func (h *libtorrentHandle) Reannounce() {
	h.t.AnnounceRequest(ltorrent.AnnounceNone)
}

func (h *libtorrentHandle) SetFileWanted(fileIndex int, wanted bool) {
	files := h.t.Files()
	if fileIndex < 0 || fileIndex >= len(files) {
		return
	}
	if wanted {
		files[fileIndex].SetPriority(ltorrent.PiecePriorityNormal)
	} else {
		files[fileIndex].SetPriority(ltorrent.PiecePriorityNone)
	}
}

func (h *libtorrentHandle) SetQueuePosition(pos int) {
	h.st.mu.Lock()
	h.st.queuePos = pos
	h.st.mu.Unlock()
}

// SetRateLimits is a no-op here: anacrolix/torrent only exposes
// client-wide rate limiters, not per-torrent ones, so per-torrent
// limits are recorded by the caller but not enforced by this backend.
func (h *libtorrentHandle) SetRateLimits(down, up model.RateLimit) {}

func (h *libtorrentHandle) AddTrackers(urls []string) {
	announceList := make([][]string, len(urls))
	for i, u := range urls {
		announceList[i] = []string{u}
	}
	h.t.AddTrackers(announceList)
}

func (h *libtorrentHandle) RemoveTrackers(urls []string) {
	// anacrolix/torrent does not support removing individual trackers
	// from a running torrent, so this is a no-op and the announce list
	// is left unchanged.
}

func (h *libtorrentHandle) ReplaceTrackers(urls []string) {
	announceList := make([][]string, len(urls))
	for i, u := range urls {
		announceList[i] = []string{u}
	}
	h.t.SetAnnounceList(announceList)
}
