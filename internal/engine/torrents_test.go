package engine

import (
	"reflect"
	"testing"

	"github.com/tinytorrent/tinytorrentd/internal/model"
)

func seqHashes(n int) []model.InfoHash {
	out := make([]model.InfoHash, n)
	for i := range out {
		out[i][0] = byte(i + 1)
	}
	return out
}

func TestQueueMoveTop(t *testing.T) {
	positions := seqHashes(4)
	got := queueMoveTop(positions, 2)
	want := []model.InfoHash{positions[2], positions[0], positions[1], positions[3]}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("queueMoveTop: got %v, want %v", got, want)
	}
}

func TestQueueMoveBottom(t *testing.T) {
	positions := seqHashes(4)
	got := queueMoveBottom(positions, 1)
	want := []model.InfoHash{positions[0], positions[2], positions[3], positions[1]}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("queueMoveBottom: got %v, want %v", got, want)
	}
}

func TestQueueMoveUpAtFrontIsNoOp(t *testing.T) {
	positions := seqHashes(3)
	got := queueMoveUp(positions, 0)
	if !reflect.DeepEqual(got, positions) {
		t.Fatalf("queueMoveUp at index 0 should be a no-op, got %v", got)
	}
}

func TestQueueMoveUpSwapsWithPredecessor(t *testing.T) {
	positions := seqHashes(3)
	got := queueMoveUp(positions, 2)
	want := []model.InfoHash{positions[0], positions[2], positions[1]}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("queueMoveUp: got %v, want %v", got, want)
	}
}

func TestQueueMoveDownAtBackIsNoOp(t *testing.T) {
	positions := seqHashes(3)
	got := queueMoveDown(positions, 2)
	if !reflect.DeepEqual(got, positions) {
		t.Fatalf("queueMoveDown at the last index should be a no-op, got %v", got)
	}
}

func TestIngestWatchedTorrentAddsToBackend(t *testing.T) {
	e, backend := newTestEngine(t)
	runEngine(t, e)

	if err := e.ingestWatchedTorrent("/watch/example.torrent", []byte("example-blob")); err != nil {
		t.Fatalf("ingestWatchedTorrent: %v", err)
	}
	if len(backend.order) != 1 {
		t.Fatalf("expected the watched torrent to be added to the backend, got %d handles", len(backend.order))
	}
}

func TestEffectiveSavePathUsesDownloadPathWhenIncompleteDisabled(t *testing.T) {
	e, _ := newTestEngine(t)
	runEngine(t, e)

	if err := e.Commands().SetDownloadPath(t.Context(), "/data/complete"); err != nil {
		t.Fatalf("SetDownloadPath: %v", err)
	}
	if got := e.effectiveSavePath(); got != "/data/complete" {
		t.Fatalf("expected the default download path with incomplete dir disabled, got %q", got)
	}
}

func TestRemoveTorrentByIDUnknownIDReturnsNotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	runEngine(t, e)

	if err := e.Commands().Remove(t.Context(), 42, false); err != ErrTorrentNotFound {
		t.Fatalf("expected ErrTorrentNotFound, got %v", err)
	}
}
