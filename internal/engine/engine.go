// Package engine implements the Engine Thread: the single goroutine
// that owns the BitTorrent backend session, the hash↔id table, and
// every piece of mutable daemon state, per spec §4.12/§5/§9. Nothing
// outside this package ever calls session.Backend directly; everything
// reaches the backend by submitting a closure through the bounded
// command queue, exposed to callers as Commands.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/tinytorrent/tinytorrentd/internal/automation"
	"github.com/tinytorrent/tinytorrentd/internal/blocklist"
	"github.com/tinytorrent/tinytorrentd/internal/config"
	"github.com/tinytorrent/tinytorrentd/internal/eventbus"
	"github.com/tinytorrent/tinytorrentd/internal/history"
	"github.com/tinytorrent/tinytorrentd/internal/ioworker"
	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/internal/persistence"
	"github.com/tinytorrent/tinytorrentd/internal/policy"
	"github.com/tinytorrent/tinytorrentd/internal/queue"
	"github.com/tinytorrent/tinytorrentd/internal/session"
	"github.com/tinytorrent/tinytorrentd/internal/snapshot"
	"github.com/tinytorrent/tinytorrentd/internal/statesvc"
)

const (
	// idleSleepDefault is idle_sleep_ms from spec §4.12's
	// wait_for_work(idle_sleep_ms, shutdown_flag): how long the Engine
	// Thread blocks for new work when it has none outstanding.
	idleSleepDefault = 250 * time.Millisecond

	// housekeepCadence bounds how often step 6 of the loop actually
	// runs its body, per spec §4.13 ("fires at <= 2s cadence").
	housekeepCadence = 2 * time.Second

	// dirtyFlushInterval is the minimum gap between housekeeping's
	// soft flush of session statistics, per spec §4.13.
	dirtyFlushInterval = 5 * time.Second

	// resumeDataQuietPeriod and resumeDataHardDeadline are two legs of
	// the three-way shutdown deadline from spec §4.9.
	resumeDataQuietPeriod  = 5 * time.Second
	resumeDataHardDeadline = 10 * time.Second

	// lowDiskSpaceThreshold is the free-space floor below which
	// housekeeping logs a warning once per probe.
	lowDiskSpaceThreshold = 1 << 30
)

// Engine owns every piece of engine-thread-confined state: the
// backend session, the hash<->id bijection, the published snapshot,
// and the background subsystems (history, automation, blocklist,
// persistence) that it drives each tick.
type Engine struct {
	log *zap.Logger

	ids     *model.IDTable
	cfg     *config.Service
	backend session.Backend
	router  *session.Router
	bus     *eventbus.Bus
	snap    *snapshot.Builder
	stats   *statesvc.Service
	q       *queue.Queue
	alt     policy.AltSpeedScheduler
	hist    *history.Agent
	watch   *automation.WatchDir
	moveOn  *automation.MoveOnComplete
	blocker *blocklist.Manager
	io      *ioworker.Service
	store   *persistence.Store

	// persisted is the engine's authoritative record of each torrent's
	// on-disk identity (save path, source, labels), mirrored to the
	// Persistence Manager. The observable/policy state for the same
	// hash lives in the *model.Torrent the Snapshot Builder owns.
	persisted map[model.InfoHash]model.PersistedTorrent

	listenErr      string
	freeSpaceBytes int64

	watchDirPath   string
	blocklistPath  string

	lastTick       time.Time
	lastHousekeep  time.Time
	lastDirtyFlush time.Time

	shutdownRequested  bool
	shutdownStartedAt  time.Time
	resumeSaveInFlight bool
	pendingResumeSaves map[model.InfoHash]bool
	lastResumeAlert    time.Time

	done chan struct{}
}

// Deps bundles the already-constructed subsystems New wires together.
// WatchDir, MoveOnComplete and the Blocklist Manager are constructed
// internally by New (they each need the Engine itself as a
// collaborator), not supplied here.
type Deps struct {
	Log *zap.Logger

	IDs     *model.IDTable
	Config  *config.Service
	Backend session.Backend
	Router  *session.Router
	Bus     *eventbus.Bus
	Snap    *snapshot.Builder
	Stats   *statesvc.Service
	Queue   *queue.Queue
	History *history.Agent
	IO      *ioworker.Service
	Store   *persistence.Store

	Persisted map[model.InfoHash]model.PersistedTorrent
}

// New constructs an Engine from already-wired dependencies, builds
// the Automation Agent and Blocklist Manager around it, and
// subscribes its alert handlers to the event bus.
func New(d Deps) *Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	persisted := d.Persisted
	if persisted == nil {
		persisted = make(map[model.InfoHash]model.PersistedTorrent)
	}
	e := &Engine{
		log:                log.Named("engine"),
		ids:                d.IDs,
		cfg:                d.Config,
		backend:            d.Backend,
		router:             d.Router,
		bus:                d.Bus,
		snap:               d.Snap,
		stats:              d.Stats,
		q:                  d.Queue,
		hist:               d.History,
		io:                 d.IO,
		store:              d.Store,
		persisted:          persisted,
		pendingResumeSaves: make(map[model.InfoHash]bool),
		done:               make(chan struct{}),
	}

	e.watchDirPath = d.Config.Get().WatchDir
	e.blocklistPath = d.Config.Get().BlocklistPath

	e.watch = automation.NewWatchDir(e.watchDirPath, e.ingestWatchedTorrent, log.Named("watchdir"))
	e.moveOn = automation.NewMoveOnComplete(d.Bus, d.Backend, e, e.settingsView, func(model.InfoHash, string) {}, log.Named("move_on_complete"))
	e.blocker = blocklist.NewManager(e.blocklistPath, d.Backend, func(fn func()) {
		_ = e.q.Submit(context.Background(), fn)
	}, log.Named("blocklist"))

	e.wireEvents()
	return e
}

// Commands returns the RPC-facing command surface bound to this
// engine's queue, per spec §6.
func (e *Engine) Commands() *Commands {
	return &Commands{e: e}
}

// Snapshot returns the most recently published session snapshot
// without touching the Engine Thread.
func (e *Engine) Snapshot() *model.SessionSnapshot {
	return e.snap.Published()
}

// Run is the Engine Thread's main loop: the nine steps named verbatim
// in spec §4.12. It returns once the shutdown deadline is satisfied or
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	e.lastTick = time.Now()

	for {
		now := time.Now()

		// 1. If shutdown requested and resume save not in flight,
		// start resume save.
		if e.shutdownRequested && !e.resumeSaveInFlight {
			e.startResumeSave(now)
		}

		// 2. Recompute alt-speed active state; apply if changed or
		// forced.
		if active, changed := e.alt.Tick(now, e.cfg.Get(), false); changed {
			e.applyAltSpeed(active)
		}

		// 3. Drain command queue (best-effort).
		e.drainCommands()

		// 4. Drain alerts.
		e.drainAlerts()

		// 5. Update snapshot.
		e.updateSnapshot(now)

		// 6. Housekeeping (throttled to housekeepCadence).
		if now.Sub(e.lastHousekeep) >= housekeepCadence {
			e.lastHousekeep = now
			e.housekeep(now)
		}

		// 7. Debounced settings flush: forced immediately on
		// shutdown, otherwise left to persistence.Store's debounce
		// timer (FlushSettingsDebounced).
		if e.shutdownRequested {
			e.cfg.FlushNow()
		}

		// 8. Evaluate shutdown-exit predicates.
		if e.shutdownRequested && e.resumeSaveComplete(now) {
			return
		}

		// 9. Otherwise sleep with wait_for_work(idle_sleep_ms,
		// shutdown_flag): wake early on a new command, ctx
		// cancellation, or the idle timeout.
		select {
		case <-ctx.Done():
			return
		case t := <-e.q.Tasks():
			t()
		case <-time.After(idleSleepDefault):
		}
	}
}

// Done is closed once Run returns.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) drainCommands() {
	for {
		t, ok := e.q.DrainOne()
		if !ok {
			return
		}
		t()
	}
}

func (e *Engine) drainAlerts() {
	alerts := e.backend.PopAlerts()
	if len(alerts) == 0 {
		return
	}
	e.router.Route(alerts)
}

func (e *Engine) updateSnapshot(now time.Time) {
	handles := e.backend.TorrentHandles()

	var totalDown, totalUp uint64
	for _, h := range handles {
		s := h.Stats()
		if s.DownloadedTotal > 0 {
			totalDown += uint64(s.DownloadedTotal)
		}
		if s.UploadedTotal > 0 {
			totalUp += uint64(s.UploadedTotal)
		}
	}

	elapsed := int64(now.Sub(e.lastTick) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	e.lastTick = now

	deltaDown, deltaUp := e.stats.Tick(totalDown, totalUp, elapsed)
	e.hist.Sample(now, deltaDown, deltaUp)

	e.snap.SetFreeSpace(e.freeSpaceBytes)
	e.snap.SetListenError(e.listenErr)
	e.snap.SetStatistics(e.stats.Cumulative(), e.stats.CurrentWindow())
	e.snap.Build(handles, e.cfg.Get(), now)
}

// housekeep runs the three bullets named in spec §4.13.
func (e *Engine) housekeep(now time.Time) {
	cfg := e.cfg.Get()

	if cfg.WatchDir != e.watchDirPath {
		e.watchDirPath = cfg.WatchDir
		e.watch.SetDir(e.watchDirPath)
	}
	if cfg.BlocklistPath != e.blocklistPath {
		e.blocklistPath = cfg.BlocklistPath
		e.blocker.SetPath(e.blocklistPath)
	}

	if cfg.WatchDirEnabled && e.watch != nil {
		e.io.Submit(context.Background(), "watchdir-scan", func(ctx context.Context) error {
			e.watch.Scan(time.Now())
			return nil
		})
	}

	if now.Sub(e.lastDirtyFlush) >= dirtyFlushInterval {
		e.lastDirtyFlush = now
		if e.stats.DirtyAndClear() {
			e.flushSessionStatistics()
		}
		if cfg.DownloadPath != "" {
			if free, err := ioworker.FreeSpaceBytes(cfg.DownloadPath); err == nil {
				e.freeSpaceBytes = int64(free)
				if free < lowDiskSpaceThreshold {
					e.log.Warn("low disk space",
						zap.String("path", cfg.DownloadPath),
						zap.String("free", humanize.Bytes(free)))
				}
			}
		}
	}

	e.hist.MaintainRetention(now)
}

func (e *Engine) flushSessionStatistics() {
	cum := e.stats.Cumulative()
	e.store.SetSetting("uploadedBytes", fmt.Sprintf("%d", cum.UploadedBytes))
	e.store.SetSetting("downloadedBytes", fmt.Sprintf("%d", cum.DownloadedBytes))
	e.store.SetSetting("secondsActive", fmt.Sprintf("%d", cum.SecondsActive))
	e.store.SetSetting("sessionCount", fmt.Sprintf("%d", cum.SessionCount))
}

func (e *Engine) applyAltSpeed(active bool) {
	cfg := e.cfg.Get()
	down, up := cfg.DownloadLimit, cfg.UploadLimit
	if active {
		down = model.RateLimit{Enabled: true, KBps: cfg.AltSpeedDownload}
		up = model.RateLimit{Enabled: true, KBps: cfg.AltSpeedUpload}
	}
	effective := cfg
	effective.DownloadLimit, effective.UploadLimit = down, up

	if err := e.backend.ApplySettings(session.SettingsPack{
		Settings:   effective,
		Categories: map[model.SettingsCategory]bool{model.CategoryNetwork: true},
	}); err != nil {
		e.log.Warn("failed to apply alt-speed limits", zap.Error(err))
	}
}

// Location implements automation.Locator over the engine's persisted
// torrent table.
func (e *Engine) Location(hash model.InfoHash) (automation.TorrentLocation, bool) {
	p, ok := e.persisted[hash]
	if !ok {
		return automation.TorrentLocation{}, false
	}
	name := filepath.Base(p.SavePath)
	if h, ok := e.backend.Handle(hash); ok {
		if stats := h.Stats(); stats.Name != "" {
			name = stats.Name
		}
	}
	return automation.TorrentLocation{CurrentPath: p.SavePath, Name: name}, true
}

// settingsView implements automation.SettingsView over config.Service.
func (e *Engine) settingsView() (downloadPath, incompleteDir string, incompleteEnabled bool) {
	cfg := e.cfg.Get()
	return cfg.DownloadPath, cfg.IncompleteDir, cfg.IncompleteEnabled
}
