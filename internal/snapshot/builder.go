// Package snapshot builds the published, lock-free-readable
// SessionSnapshot from live backend handles each Engine Thread tick.
package snapshot

import (
	"sync/atomic"
	"time"

	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/internal/policy"
	"github.com/tinytorrent/tinytorrentd/internal/session"
)

// Builder assembles SessionSnapshot values and publishes them via an
// atomic pointer, satisfying the lock-free-read requirement named in
// spec §5. It owns the per-id caches the Snapshot Builder component
// description requires (revisions, priorities, limits, activity) and
// prunes them when a handle disappears.
type Builder struct {
	ids *model.IDTable

	published atomic.Pointer[model.SessionSnapshot]

	cachedRevision map[int64]uint64
	cachedSnapshot map[int64]model.TorrentSnapshot

	torrents map[int64]*model.Torrent

	freeSpaceBytes int64
	listenError    string

	cumulative model.SessionStatistics
	current    model.SessionStatistics
}

// NewBuilder constructs a Builder over the given hash↔id table.
func NewBuilder(ids *model.IDTable) *Builder {
	return &Builder{
		ids:            ids,
		cachedRevision: make(map[int64]uint64),
		cachedSnapshot: make(map[int64]model.TorrentSnapshot),
		torrents:       make(map[int64]*model.Torrent),
	}
}

// Torrent returns (creating if absent) the engine-owned record for
// hash, assigning an id via the IDTable on first observation.
func (b *Builder) Torrent(hash model.InfoHash) *model.Torrent {
	id, _ := b.ids.IDFor(hash)
	t, ok := b.torrents[id]
	if !ok {
		t = &model.Torrent{InfoHash: hash, RpcID: id, LastActivity: time.Now()}
		b.torrents[id] = t
	}
	return t
}

// SetFreeSpace records the latest disk-space probe result, refreshed
// by housekeeping whenever its 5 s dirty-state flush runs.
func (b *Builder) SetFreeSpace(bytes int64) { b.freeSpaceBytes = bytes }

// SetListenError records the session's current TCP listen error, or
// clears it when err is empty.
func (b *Builder) SetListenError(err string) { b.listenError = err }

// SetStatistics records the cumulative/current-window transfer
// statistics the next Build call publishes alongside the per-torrent
// view, per spec §4.3/§4.4.
func (b *Builder) SetStatistics(cumulative, current model.SessionStatistics) {
	b.cumulative = cumulative
	b.current = current
}

// Build runs per tick: assigns/looks up RpcIds, enforces per-torrent
// seed policy, reuses cached TorrentSnapshots when the revision is
// unchanged, and purges ids no longer backed by a live handle. The
// result is published atomically and also returned.
func (b *Builder) Build(handles []session.Handle, global model.CoreSettings, now time.Time) *model.SessionSnapshot {
	live := make(map[int64]bool, len(handles))
	totals := model.SessionTotals{CountByState: make(map[model.StateTag]int)}
	out := make([]model.TorrentSnapshot, 0, len(handles))

	for _, h := range handles {
		hash := h.InfoHash()
		if hash.IsZero() {
			continue
		}
		t := b.Torrent(hash)
		live[t.RpcID] = true

		policy.EnforceSeedLimits(t, h, global, now)

		var ts model.TorrentSnapshot
		if cachedRev, ok := b.cachedRevision[t.RpcID]; ok && cachedRev == t.Revision {
			ts = b.cachedSnapshot[t.RpcID]
		} else {
			ts = buildTorrentSnapshot(t, h, global)
			b.cachedRevision[t.RpcID] = t.Revision
			b.cachedSnapshot[t.RpcID] = ts
		}

		out = append(out, ts)
		totals.DownloadRate += ts.DownloadRate
		totals.UploadRate += ts.UploadRate
		totals.CountByState[ts.State]++
	}

	b.prune(live)

	snap := &model.SessionSnapshot{
		Torrents:       out,
		Totals:         totals,
		Cumulative:     b.cumulative,
		Current:        b.current,
		FreeSpaceBytes: b.freeSpaceBytes,
		ListenError:    b.listenError,
	}
	b.published.Store(snap)
	return snap
}

// Published returns the most recently published snapshot without
// blocking on the Engine Thread, for RPC readers.
func (b *Builder) Published() *model.SessionSnapshot {
	return b.published.Load()
}

// prune removes cache entries (and the Builder's own torrent records)
// for ids no longer present among live handles.
func (b *Builder) prune(live map[int64]bool) {
	for id := range b.torrents {
		if !live[id] {
			delete(b.torrents, id)
			delete(b.cachedRevision, id)
			delete(b.cachedSnapshot, id)
		}
	}
}

func buildTorrentSnapshot(t *model.Torrent, h session.Handle, global model.CoreSettings) model.TorrentSnapshot {
	stats := h.Stats()
	paused := h.IsPaused()
	completed := stats.GotMetadata && stats.TotalWanted > 0 && stats.TotalWantedDone >= stats.TotalWanted
	state := model.ClassifyState(stats.GotMetadata, stats.Checking, false, completed, paused)

	ts := model.TorrentSnapshot{
		ID:              t.RpcID,
		InfoHash:        t.InfoHash.String(),
		Name:            stats.Name,
		State:           state,
		StatusCode:      model.TransmissionStatus(state, paused),
		Progress:        progress(stats.TotalWantedDone, stats.TotalWanted),
		TotalWanted:     stats.TotalWanted,
		TotalWantedDone: stats.TotalWantedDone,
		DownloadRate:    stats.DownloadRate,
		UploadRate:      stats.UploadRate,
		UploadedTotal:   stats.UploadedTotal,
		DownloadedTotal: stats.DownloadedTotal,
		QueuePosition:   stats.QueuePosition,
		PeerCount:       stats.PeerCount,
		SeedCount:       stats.SeedCount,
		ETA:             model.ETA(stats.TotalWanted, stats.TotalWantedDone, stats.DownloadRate),
		Ratio:           model.Ratio(stats.UploadedTotal, stats.DownloadedTotal),
		Paused:          paused,
		Sequential:      t.Sequential,
		SuperSeeding:    t.SuperSeeding,
		IsStalled:       isStalled(stats, completed, global),
		Labels:          t.Overrides.Labels,
		Error:           t.Error,
		Revision:        t.Revision,
	}
	if p := t.Overrides.BandwidthPriority; p != nil {
		ts.BandwidthPriority = *p
	}
	if l := t.Overrides.DownloadLimit; l != nil {
		ts.DownloadLimit = *l
	}
	if l := t.Overrides.UploadLimit; l != nil {
		ts.UploadLimit = *l
	}
	return ts
}

// isStalled implements the supplemented queue-stalled detection
// feature: a queued torrent whose position has reached the active
// slot count for its direction (download vs. seed) is stalled, per
// SessionService.cpp's original semantics.
func isStalled(stats session.HandleStats, completed bool, global model.CoreSettings) bool {
	if !global.QueueStalledEnabled {
		return false
	}
	if completed {
		return global.SeedQueueSize > 0 && stats.QueuePosition >= global.SeedQueueSize
	}
	return global.DownloadQueueSize > 0 && stats.QueuePosition >= global.DownloadQueueSize
}

func progress(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) / float64(total)
	if p > 1 {
		return 1
	}
	return p
}
