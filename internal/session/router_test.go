package session

import (
	"errors"
	"os"
	"testing"

	"github.com/tinytorrent/tinytorrentd/internal/eventbus"
	"github.com/tinytorrent/tinytorrentd/internal/model"
)

func testHash(b byte) model.InfoHash {
	var h model.InfoHash
	h[0] = b
	return h
}

func TestRouterFirstErrorWinsPerBatch(t *testing.T) {
	bus := eventbus.New()
	var received []TorrentErrorEvent
	bus.Subscribe(TopicTorrentError, func(ev eventbus.Event) {
		received = append(received, ev.(TorrentErrorEvent))
	})

	r := NewRouter(bus, t.TempDir(), nil)
	hash := testHash(1)
	r.Route([]Alert{
		FileError{Hash: hash, Err: errors.New("first")},
		TrackerError{Hash: hash, Err: errors.New("second")},
	})

	if len(received) != 1 {
		t.Fatalf("expected exactly one latched error, got %d", len(received))
	}
	if received[0].Source != "file" {
		t.Fatalf("expected first alert to win, got source %q", received[0].Source)
	}
}

func TestRouterLatchResetsPerBatch(t *testing.T) {
	bus := eventbus.New()
	count := 0
	bus.Subscribe(TopicTorrentError, func(eventbus.Event) { count++ })

	r := NewRouter(bus, t.TempDir(), nil)
	hash := testHash(2)
	r.Route([]Alert{FileError{Hash: hash, Err: errors.New("a")}})
	r.Route([]Alert{FileError{Hash: hash, Err: errors.New("b")}})

	if count != 2 {
		t.Fatalf("expected the latch to reset between batches, got %d events", count)
	}
}

func TestRouterMetadataReceivedWritesFile(t *testing.T) {
	dir := t.TempDir()
	bus := eventbus.New()
	var persisted MetadataPersistedEvent
	bus.Subscribe(TopicMetadataPersisted, func(ev eventbus.Event) {
		persisted = ev.(MetadataPersistedEvent)
	})

	r := NewRouter(bus, dir, nil)
	hash := testHash(3)
	r.Route([]Alert{MetadataReceived{Hash: hash, MetainfoBlob: []byte("hello")}})

	if persisted.Path == "" {
		t.Fatalf("expected a metadata-persisted event")
	}
	data, err := os.ReadFile(persisted.Path)
	if err != nil {
		t.Fatalf("read persisted metainfo: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected metainfo contents: %q", data)
	}
}

func TestRouterStateUpdatePublishesBatch(t *testing.T) {
	bus := eventbus.New()
	var got StateUpdateEvent
	bus.Subscribe(TopicStateUpdate, func(ev eventbus.Event) {
		got = ev.(StateUpdateEvent)
	})

	r := NewRouter(bus, t.TempDir(), nil)
	hashes := []model.InfoHash{testHash(4), testHash(5)}
	r.Route([]Alert{StateUpdate{Hashes: hashes}})

	if len(got.Hashes) != 2 {
		t.Fatalf("expected 2 hashes in state update, got %d", len(got.Hashes))
	}
}
