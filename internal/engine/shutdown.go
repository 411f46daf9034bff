package engine

import (
	"context"
	"time"
)

// RequestShutdown marks the Engine for graceful shutdown and returns
// once the request has been accepted onto the command queue. The
// actual resume-data save and exit sequence run on the Engine Thread
// per spec §4.9/§4.12.
func (e *Engine) RequestShutdown(ctx context.Context) error {
	return e.q.Submit(ctx, func() {
		if e.shutdownRequested {
			return
		}
		e.shutdownRequested = true
		e.shutdownStartedAt = time.Now()
	})
}

// startResumeSave kicks off a save-resume-data request for every
// torrent the engine currently tracks, per spec §4.9's first step.
func (e *Engine) startResumeSave(now time.Time) {
	e.resumeSaveInFlight = true
	e.lastResumeAlert = now

	for _, hash := range e.ids.Hashes() {
		e.pendingResumeSaves[hash] = true
		e.backend.RequestSaveResumeData(hash)
	}
}

// resumeSaveComplete implements the three-way shutdown deadline from
// spec §4.9: the pending set has emptied, 5s have passed since the
// last resume-data alert, or the hard 10s deadline since the shutdown
// request has elapsed.
func (e *Engine) resumeSaveComplete(now time.Time) bool {
	if len(e.pendingResumeSaves) == 0 {
		return true
	}
	if now.Sub(e.lastResumeAlert) >= resumeDataQuietPeriod {
		return true
	}
	return now.Sub(e.shutdownStartedAt) >= resumeDataHardDeadline
}
