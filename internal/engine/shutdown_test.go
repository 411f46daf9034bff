package engine

import (
	"testing"
	"time"
)

func TestResumeSaveCompleteWhenPendingSetEmpty(t *testing.T) {
	e, _ := newTestEngine(t)
	e.shutdownStartedAt = time.Now()
	e.lastResumeAlert = time.Now()

	if !e.resumeSaveComplete(time.Now()) {
		t.Fatalf("expected resumeSaveComplete to be true with no pending saves")
	}
}

func TestResumeSaveCompleteAfterQuietPeriod(t *testing.T) {
	e, _ := newTestEngine(t)
	now := time.Now()
	e.shutdownStartedAt = now
	e.pendingResumeSaves[[20]byte{1}] = true
	e.lastResumeAlert = now.Add(-resumeDataQuietPeriod - time.Second)

	if !e.resumeSaveComplete(now) {
		t.Fatalf("expected resumeSaveComplete to be true once the quiet period has elapsed")
	}
}

func TestResumeSaveCompleteBeforeHardDeadline(t *testing.T) {
	e, _ := newTestEngine(t)
	now := time.Now()
	e.shutdownStartedAt = now
	e.pendingResumeSaves[[20]byte{1}] = true
	e.lastResumeAlert = now

	if e.resumeSaveComplete(now) {
		t.Fatalf("expected resumeSaveComplete to be false while a save is pending and within deadline")
	}
}

func TestResumeSaveCompleteAtHardDeadline(t *testing.T) {
	e, _ := newTestEngine(t)
	now := time.Now()
	e.shutdownStartedAt = now.Add(-resumeDataHardDeadline - time.Second)
	e.pendingResumeSaves[[20]byte{1}] = true
	e.lastResumeAlert = now

	if !e.resumeSaveComplete(now) {
		t.Fatalf("expected resumeSaveComplete to be true once the hard deadline has elapsed")
	}
}

func TestStartResumeSaveRequestsEveryTrackedTorrent(t *testing.T) {
	e, backend := newTestEngine(t)
	runEngine(t, e)
	addTestTorrent(t, e)

	if err := e.Commands().Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	<-e.Done()

	if len(backend.resumeSaves) == 0 {
		t.Fatalf("expected the backend to have received at least one resume-data request")
	}
}

func TestRequestShutdownIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	runEngine(t, e)

	if err := e.Commands().Shutdown(t.Context()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := e.Commands().Shutdown(t.Context()); err != nil {
		t.Fatalf("second Shutdown should be a harmless no-op, got: %v", err)
	}
	<-e.Done()
}
