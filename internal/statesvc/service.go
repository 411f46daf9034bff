// Package statesvc aggregates session-wide transfer statistics:
// cumulative totals and the current-window deltas derived from them.
package statesvc

import (
	"sync"

	"github.com/tinytorrent/tinytorrentd/internal/model"
)

// Service tracks cumulative upload/download/active-time counters and
// derives per-tick deltas from the backend's raw cumulative totals,
// per spec §4.3.
type Service struct {
	mu sync.Mutex

	cumulative model.SessionStatistics

	// windowStartDown/windowStartUp are the raw backend cumulative
	// totals observed when the current session started, used to
	// derive "current window" statistics distinct from all-time ones.
	windowStartDown uint64
	windowStartUp   uint64

	lastDown uint64
	lastUp   uint64

	dirty bool
}

// NewService seeds the service from persisted lifetime statistics.
func NewService(persisted model.SessionStatistics) *Service {
	return &Service{cumulative: persisted}
}

// Tick folds one tick's raw cumulative totals (as reported by the
// backend) into the running statistics. A total lower than the last
// observed value indicates a counter reset (e.g. session restart) and
// is clamped to avoid a negative delta, per spec §4.3.
func (s *Service) Tick(downloadedTotal, uploadedTotal uint64, elapsedSec int64) (deltaDown, deltaUp uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deltaDown = clampedDelta(s.lastDown, downloadedTotal)
	deltaUp = clampedDelta(s.lastUp, uploadedTotal)

	s.lastDown = downloadedTotal
	s.lastUp = uploadedTotal

	s.cumulative = s.cumulative.Add(int64(deltaDown), int64(deltaUp), elapsedSec)
	s.dirty = true
	return deltaDown, deltaUp
}

func clampedDelta(prev, now uint64) uint64 {
	if now < prev {
		return now
	}
	return now - prev
}

// Cumulative returns a copy of the all-time accumulated statistics.
func (s *Service) Cumulative() model.SessionStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cumulative
}

// CurrentWindow returns statistics accumulated since the window
// baseline was last reset via ResetWindow.
func (s *Service) CurrentWindow() model.SessionStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SessionStatistics{
		DownloadedBytes: int64(s.lastDown - s.windowStartDown),
		UploadedBytes:   int64(s.lastUp - s.windowStartUp),
		SecondsActive:   s.cumulative.SecondsActive,
	}
}

// ResetWindow rebases the current-window baseline to the latest
// observed cumulative totals, used when a "reset current stats" RPC
// command is issued.
func (s *Service) ResetWindow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windowStartDown = s.lastDown
	s.windowStartUp = s.lastUp
}

// DirtyAndClear reports whether statistics changed since the last
// call and clears the flag; engine housekeeping uses this for its 5 s
// soft-flush policy.
func (s *Service) DirtyAndClear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.dirty
	s.dirty = false
	return d
}
