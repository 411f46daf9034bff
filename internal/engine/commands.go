package engine

import (
	"context"
	"fmt"

	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/internal/queue"
)

// Commands is the RPC-facing surface of the Engine Thread: one method
// per operation named in spec §6. Every method that touches the
// backend session or mutates engine state submits a closure through
// the command queue rather than acting directly, preserving the
// single-caller invariant on session.Backend; read-only methods that
// only need the published snapshot or the persistence store's own
// synchronized methods bypass the queue.
type Commands struct {
	e *Engine
}

// AddTorrentMagnet adds a torrent from a magnet URI.
func (c *Commands) AddTorrentMagnet(ctx context.Context, uri string, labels []string) (int64, error) {
	if uri == "" {
		return 0, ErrInvalidURI
	}
	return c.submit(ctx, func() (int64, error) {
		return c.e.addTorrentMagnet(uri, labels)
	})
}

// AddTorrentMetainfo adds a torrent from a .torrent metainfo blob.
func (c *Commands) AddTorrentMetainfo(ctx context.Context, blob []byte, label string) (int64, error) {
	if len(blob) == 0 {
		return 0, ErrInvalidURI
	}
	return c.submit(ctx, func() (int64, error) {
		return c.e.addTorrentMetainfo(blob, label)
	})
}

// Remove removes a torrent, optionally deleting its downloaded data.
func (c *Commands) Remove(ctx context.Context, id int64, deleteData bool) error {
	return c.run(ctx, func() error {
		return c.e.removeTorrentByID(id, deleteData)
	})
}

// Start resumes a paused torrent.
func (c *Commands) Start(ctx context.Context, id int64) error {
	return c.withHandle(ctx, id, func(h handle) error {
		h.Resume()
		return nil
	})
}

// Stop pauses a torrent.
func (c *Commands) Stop(ctx context.Context, id int64) error {
	return c.withHandle(ctx, id, func(h handle) error {
		h.Pause()
		return nil
	})
}

// Verify requests a full hash recheck.
func (c *Commands) Verify(ctx context.Context, id int64) error {
	return c.withHandle(ctx, id, func(h handle) error {
		h.VerifyData()
		return nil
	})
}

// Reannounce forces a tracker reannounce.
func (c *Commands) Reannounce(ctx context.Context, id int64) error {
	return c.withHandle(ctx, id, func(h handle) error {
		h.Reannounce()
		return nil
	})
}

// QueueMoveTop moves a torrent to the front of its queue.
func (c *Commands) QueueMoveTop(ctx context.Context, id int64) error {
	return c.run(ctx, func() error { return c.e.reorderQueue(id, queueMoveTop) })
}

// QueueMoveBottom moves a torrent to the back of its queue.
func (c *Commands) QueueMoveBottom(ctx context.Context, id int64) error {
	return c.run(ctx, func() error { return c.e.reorderQueue(id, queueMoveBottom) })
}

// QueueMoveUp moves a torrent one position earlier in its queue.
func (c *Commands) QueueMoveUp(ctx context.Context, id int64) error {
	return c.run(ctx, func() error { return c.e.reorderQueue(id, queueMoveUp) })
}

// QueueMoveDown moves a torrent one position later in its queue.
func (c *Commands) QueueMoveDown(ctx context.Context, id int64) error {
	return c.run(ctx, func() error { return c.e.reorderQueue(id, queueMoveDown) })
}

// ToggleFileSelection marks one file of a torrent wanted or unwanted.
func (c *Commands) ToggleFileSelection(ctx context.Context, id int64, fileIndex int, wanted bool) error {
	return c.withHandle(ctx, id, func(h handle) error {
		h.SetFileWanted(fileIndex, wanted)
		return nil
	})
}

// SetSequential toggles sequential download order for one torrent.
func (c *Commands) SetSequential(ctx context.Context, id int64, enabled bool) error {
	return c.withHandle(ctx, id, func(h handle) error {
		h.SetSequential(enabled)
		c.e.snap.Torrent(h.InfoHash()).Sequential = enabled
		return nil
	})
}

// SetSuperSeeding toggles super-seeding mode for one torrent.
func (c *Commands) SetSuperSeeding(ctx context.Context, id int64, enabled bool) error {
	return c.withHandle(ctx, id, func(h handle) error {
		h.SetSuperSeeding(enabled)
		c.e.snap.Torrent(h.InfoHash()).SuperSeeding = enabled
		return nil
	})
}

// MoveLocation relocates a torrent's data to a new save path.
func (c *Commands) MoveLocation(ctx context.Context, id int64, newPath string) error {
	return c.run(ctx, func() error { return c.e.moveLocationByID(id, newPath) })
}

// SetDownloadPath updates the global default download directory.
func (c *Commands) SetDownloadPath(ctx context.Context, path string) error {
	return c.run(ctx, func() error { return c.e.cfg.SetDownloadPath(path) })
}

// SetListenPort updates the session's listen interface.
func (c *Commands) SetListenPort(ctx context.Context, iface string) error {
	return c.run(ctx, func() error { return c.e.cfg.SetListenInterface(iface) })
}

// SetLimits updates the global download/upload rate limits.
func (c *Commands) SetLimits(ctx context.Context, down, up model.RateLimit) error {
	return c.run(ctx, func() error {
		_, err := c.e.cfg.Update(model.SettingsDelta{DownloadLimit: &down, UploadLimit: &up})
		return err
	})
}

// SetPeerLimits updates the global and per-torrent peer connection caps.
func (c *Commands) SetPeerLimits(ctx context.Context, global, perTorrent int) error {
	return c.run(ctx, func() error {
		_, err := c.e.cfg.Update(model.SettingsDelta{PeerLimit: &global, PeerLimitPerTorrent: &perTorrent})
		return err
	})
}

// AddTrackers appends tracker URLs to one torrent.
func (c *Commands) AddTrackers(ctx context.Context, id int64, urls []string) error {
	return c.withHandle(ctx, id, func(h handle) error {
		h.AddTrackers(urls)
		return nil
	})
}

// RemoveTrackers passes tracker URLs to one torrent's handle for
// removal. The anacrolix-backed handle ignores the call, so with
// LibtorrentBackend no tracker is removed.
func (c *Commands) RemoveTrackers(ctx context.Context, id int64, urls []string) error {
	return c.withHandle(ctx, id, func(h handle) error {
		h.RemoveTrackers(urls)
		return nil
	})
}

// ReplaceTrackers replaces a torrent's entire tracker list.
func (c *Commands) ReplaceTrackers(ctx context.Context, id int64, urls []string) error {
	return c.withHandle(ctx, id, func(h handle) error {
		h.ReplaceTrackers(urls)
		return nil
	})
}

// SetTorrentSeedLimits sets a torrent's per-torrent seed-ratio/idle
// overrides; a nil pointer means "clear the override, use the global
// setting" per spec §3.
func (c *Commands) SetTorrentSeedLimits(ctx context.Context, id int64, ratioLimit *float64, ratioEnabled *bool, idleLimitMin *int, idleEnabled *bool) error {
	return c.run(ctx, func() error {
		_, hash, err := c.e.handleFor(id)
		if err != nil {
			return err
		}
		t := c.e.snap.Torrent(hash)
		t.Overrides.SeedRatioLimit = ratioLimit
		t.Overrides.SeedRatioEnabled = ratioEnabled
		t.Overrides.SeedIdleLimitMin = idleLimitMin
		t.Overrides.SeedIdleEnabled = idleEnabled
		t.RatioTriggered = false
		t.BumpRevision()
		return nil
	})
}

// SetBandwidthPriority sets a torrent's bandwidth priority override.
func (c *Commands) SetBandwidthPriority(ctx context.Context, id int64, priority model.BandwidthPriority) error {
	return c.run(ctx, func() error {
		_, hash, err := c.e.handleFor(id)
		if err != nil {
			return err
		}
		t := c.e.snap.Torrent(hash)
		t.Overrides.BandwidthPriority = &priority
		t.BumpRevision()
		return nil
	})
}

// SetBandwidthLimits sets a torrent's per-torrent rate-limit overrides
// and pushes them to the live handle.
func (c *Commands) SetBandwidthLimits(ctx context.Context, id int64, down, up model.RateLimit) error {
	return c.withHandle(ctx, id, func(h handle) error {
		h.SetRateLimits(down, up)
		t := c.e.snap.Torrent(h.InfoHash())
		t.Overrides.DownloadLimit = &down
		t.Overrides.UploadLimit = &up
		t.BumpRevision()
		return nil
	})
}

// SetLabels replaces a torrent's label set.
func (c *Commands) SetLabels(ctx context.Context, id int64, labels []string) error {
	return c.run(ctx, func() error {
		hash, ok := c.e.ids.HashFor(id)
		if !ok {
			return ErrTorrentNotFound
		}
		t := c.e.snap.Torrent(hash)
		t.Overrides.Labels = labels
		t.BumpRevision()

		if p, ok := c.e.persisted[hash]; ok {
			p.Labels = labels
			c.e.persisted[hash] = p
			c.e.store.UpdateLabels(hash, labels)
		}
		return nil
	})
}

// RequestBlocklistReload triggers an off-thread reparse of the
// blocklist file, dispatched to the I/O worker pool per spec §4.8. It
// reports whether the reload was accepted, not whether it ultimately
// succeeded — failures are logged, matching Manager.Reload's contract.
func (c *Commands) RequestBlocklistReload(ctx context.Context) (bool, error) {
	c.e.io.Submit(ctx, "blocklist-reload", func(ctx context.Context) error {
		return c.e.blocker.Reload(ctx)
	})
	return true, nil
}

// HistoryQuery resamples the speed-history table over [start, end].
func (c *Commands) HistoryQuery(start, end, step int64) ([]model.HistoryBucket, error) {
	return c.e.hist.Query(start, end, step)
}

// HistoryClear wipes history older than olderThan, or all of it when
// olderThan is nil.
func (c *Commands) HistoryClear(ctx context.Context, olderThan *int64) error {
	return c.run(ctx, func() error {
		if olderThan == nil {
			c.e.store.DeleteSpeedHistoryAll()
		} else {
			c.e.store.DeleteSpeedHistoryBefore(*olderThan)
		}
		return nil
	})
}

// TorrentList returns every torrent in the most recently published
// snapshot, a lock-free read per spec §5.
func (c *Commands) TorrentList() []model.TorrentSnapshot {
	snap := c.e.snap.Published()
	if snap == nil {
		return nil
	}
	return snap.Torrents
}

// TorrentDetail returns one torrent's snapshot view, if present.
func (c *Commands) TorrentDetail(id int64) (model.TorrentSnapshot, bool) {
	snap := c.e.snap.Published()
	if snap == nil {
		return model.TorrentSnapshot{}, false
	}
	for _, t := range snap.Torrents {
		if t.ID == id {
			return t, true
		}
	}
	return model.TorrentSnapshot{}, false
}

// Snapshot returns the full published session view.
func (c *Commands) Snapshot() *model.SessionSnapshot {
	return c.e.snap.Published()
}

// Shutdown requests a graceful daemon shutdown, per spec §4.9.
func (c *Commands) Shutdown(ctx context.Context) error {
	return c.e.RequestShutdown(ctx)
}

// handle is the subset of session.Handle the per-torrent command
// helpers need; satisfied structurally by session.Handle.
type handle interface {
	InfoHash() model.InfoHash
	Pause()
	Resume()
	SetSequential(enabled bool)
	SetSuperSeeding(enabled bool)
	VerifyData()
	Reannounce()
	SetFileWanted(fileIndex int, wanted bool)
	SetRateLimits(down, up model.RateLimit)
	AddTrackers(urls []string)
	RemoveTrackers(urls []string)
	ReplaceTrackers(urls []string)
}

// withHandle resolves id to a live backend handle on the Engine
// Thread and runs fn against it, bumping the torrent's published
// revision afterward so the next snapshot reflects the change.
func (c *Commands) withHandle(ctx context.Context, id int64, fn func(h handle) error) error {
	return c.run(ctx, func() error {
		h, hash, err := c.e.handleFor(id)
		if err != nil {
			return err
		}
		if err := fn(h); err != nil {
			return fmt.Errorf("%w: %v", ErrPerTorrentFault, err)
		}
		c.e.snap.Torrent(hash).BumpRevision()
		return nil
	})
}

// run submits fn as a fire-and-forget-result command and blocks for
// its completion, for operations whose only output is success/failure.
func (c *Commands) run(ctx context.Context, fn func() error) error {
	future, err := queue.SubmitResult[struct{}](ctx, c.e.q, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if err != nil {
		return err
	}
	_, err = queue.Await[struct{}](ctx, future)
	return err
}

// submit runs fn on the Engine Thread and returns its typed result.
func (c *Commands) submit(ctx context.Context, fn func() (int64, error)) (int64, error) {
	future, err := queue.SubmitResult[int64](ctx, c.e.q, fn)
	if err != nil {
		return 0, err
	}
	return queue.Await[int64](ctx, future)
}
