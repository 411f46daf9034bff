// Package history implements the History Agent: it accumulates
// session-wide speed samples into interval-aligned buckets, seals
// them to persistence, and answers ranged queries, per spec §4.6.
package history

import (
	"sync"
	"time"

	"github.com/tinytorrent/tinytorrentd/internal/model"
)

// Persister is the subset of persistence.Store the agent needs,
// defined locally (as config.SettingsPersister is) to avoid an import
// dependency on the storage engine.
type Persister interface {
	InsertSpeedHistory(b model.HistoryBucket)
	DeleteSpeedHistoryBefore(cutoff int64)
	QuerySpeedHistory(t0, t1, step int64) ([]model.HistoryBucket, error)
}

// task is the Agent's own single-purpose worker queue, matching the
// one-goroutine-per-concern idiom from legacy/seeder/internal/watcher.
type task func()

// Agent owns one worker goroutine draining its own task channel,
// per §5 ("History worker — owns bucket sealing and retention").
type Agent struct {
	persister Persister
	cfg       model.HistoryConfig

	mu      sync.Mutex
	current model.HistoryBucket
	hasData bool

	lastRetention time.Time

	tasks chan task
	done  chan struct{}
}

// NewAgent constructs an Agent and starts its worker goroutine.
func NewAgent(persister Persister, cfg model.HistoryConfig) *Agent {
	a := &Agent{
		persister: persister,
		cfg:       cfg,
		tasks:     make(chan task, 64),
		done:      make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Agent) run() {
	for t := range a.tasks {
		t()
	}
	close(a.done)
}

// Close stops the worker goroutine after draining pending tasks.
func (a *Agent) Close() {
	close(a.tasks)
	<-a.done
}

// Sample folds one tick's deltas into the current bucket, sealing and
// enqueueing the previous bucket once the sampling interval boundary
// is crossed, per spec §3/§4.6.
func (a *Agent) Sample(now time.Time, deltaDown, deltaUp uint64) {
	if !a.cfg.Enabled {
		return
	}
	aligned := model.AlignBucketTimestamp(now.Unix(), int64(a.cfg.IntervalSec))

	a.mu.Lock()
	if !a.hasData {
		a.current = model.HistoryBucket{Timestamp: aligned}
		a.hasData = true
	} else if a.current.Timestamp != aligned {
		sealed := a.current
		a.current = model.HistoryBucket{Timestamp: aligned}
		a.enqueueSeal(sealed)
	}

	a.current.DownloadedTotal += int64(deltaDown)
	a.current.UploadedTotal += int64(deltaUp)
	if int64(deltaDown) > a.current.PeakDown {
		a.current.PeakDown = int64(deltaDown)
	}
	if int64(deltaUp) > a.current.PeakUp {
		a.current.PeakUp = int64(deltaUp)
	}
	a.mu.Unlock()
}

func (a *Agent) enqueueSeal(b model.HistoryBucket) {
	select {
	case a.tasks <- func() { a.persister.InsertSpeedHistory(b) }:
	default:
		// Worker queue saturated; seal synchronously rather than drop
		// a sample.
		a.persister.InsertSpeedHistory(b)
	}
}

// MaintainRetention prunes buckets older than retention_days, run at
// most once per hour from housekeeping, per spec §4.13.
func (a *Agent) MaintainRetention(now time.Time) {
	if a.cfg.RetentionDays <= 0 {
		return
	}
	a.mu.Lock()
	if !a.lastRetention.IsZero() && now.Sub(a.lastRetention) < time.Hour {
		a.mu.Unlock()
		return
	}
	a.lastRetention = now
	a.mu.Unlock()

	cutoff := now.AddDate(0, 0, -a.cfg.RetentionDays).Unix()
	select {
	case a.tasks <- func() { a.persister.DeleteSpeedHistoryBefore(cutoff) }:
	default:
		a.persister.DeleteSpeedHistoryBefore(cutoff)
	}
}

// Query resamples history synchronously via the persistence store's
// range query, per spec §4.6.
func (a *Agent) Query(t0, t1, step int64) ([]model.HistoryBucket, error) {
	return a.persister.QuerySpeedHistory(t0, t1, step)
}
