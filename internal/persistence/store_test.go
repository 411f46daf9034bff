package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytorrent/tinytorrentd/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndLoadTorrents(t *testing.T) {
	s := openTestStore(t)

	hash, err := model.ParseInfoHash("0102030405060708090a0b0c0d0e0f1011121314")
	if err != nil {
		t.Fatalf("ParseInfoHash: %v", err)
	}
	pt := model.PersistedTorrent{
		InfoHash: hash,
		MagnetURI: "magnet:?xt=urn:btih:0102030405060708090a0b0c0d0e0f1011121314",
		SavePath: "/downloads",
		Labels:   []string{"linux", "iso"},
		AddedAt:  1234,
		RpcID:    1,
	}
	s.UpsertTorrent(pt)
	time.Sleep(50 * time.Millisecond)

	loaded, err := s.LoadTorrents()
	if err != nil {
		t.Fatalf("LoadTorrents: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 torrent, got %d", len(loaded))
	}
	if loaded[0].InfoHash != hash || loaded[0].SavePath != "/downloads" {
		t.Fatalf("unexpected loaded torrent: %+v", loaded[0])
	}
	if len(loaded[0].Labels) != 2 {
		t.Fatalf("expected 2 labels, got %v", loaded[0].Labels)
	}
}

func TestDeleteTorrentRemovesRow(t *testing.T) {
	s := openTestStore(t)
	hash, _ := model.ParseInfoHash("aabbccddeeff00112233445566778899aabbccdd")
	s.UpsertTorrent(model.PersistedTorrent{InfoHash: hash, MagnetURI: "magnet:?xt=x", AddedAt: 1})
	time.Sleep(30 * time.Millisecond)

	s.DeleteTorrent(hash)
	time.Sleep(30 * time.Millisecond)

	loaded, err := s.LoadTorrents()
	if err != nil {
		t.Fatalf("LoadTorrents: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected torrent to be deleted, got %d rows", len(loaded))
	}
}

func TestQuerySpeedHistoryFiltersByRangeAndStep(t *testing.T) {
	s := openTestStore(t)
	for _, ts := range []int64{0, 60, 90, 120, 180} {
		s.InsertSpeedHistory(model.HistoryBucket{Timestamp: ts, DownloadedTotal: ts})
	}
	time.Sleep(50 * time.Millisecond)

	buckets, err := s.QuerySpeedHistory(0, 180, 60)
	if err != nil {
		t.Fatalf("QuerySpeedHistory: %v", err)
	}
	if len(buckets) != 4 {
		t.Fatalf("expected 4 buckets aligned to step 60 (0,60,120,180), got %d: %+v", len(buckets), buckets)
	}
}

func TestFlushSettingsDebouncedWritesAfterDelay(t *testing.T) {
	s := openTestStore(t)
	settings := model.DefaultCoreSettings()
	settings.ListenInterface = "0.0.0.0:7000"

	s.FlushSettingsDebounced(settings, true)

	if _, ok, _ := s.GetSetting("listenInterface"); ok {
		t.Fatalf("expected debounced flush to not have written yet")
	}

	time.Sleep(600 * time.Millisecond)
	val, ok, err := s.GetSetting("listenInterface")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if !ok || val != "0.0.0.0:7000" {
		t.Fatalf("expected listenInterface to be flushed, got (%q, %v)", val, ok)
	}
}

func TestFlushSettingsForcedWritesImmediately(t *testing.T) {
	s := openTestStore(t)
	settings := model.DefaultCoreSettings()
	settings.DownloadPath = "/forced"

	s.FlushSettingsDebounced(settings, false)
	time.Sleep(50 * time.Millisecond)

	val, ok, err := s.GetSetting("downloadPath")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if !ok || val != "/forced" {
		t.Fatalf("expected immediate flush, got (%q, %v)", val, ok)
	}
}

func TestLoadSettingsMergesOntoBase(t *testing.T) {
	s := openTestStore(t)
	s.SetSetting("downloadPath", "/custom")
	time.Sleep(30 * time.Millisecond)

	base := model.DefaultCoreSettings()
	merged, err := s.LoadSettings(base)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if merged.DownloadPath != "/custom" {
		t.Fatalf("expected merged download path /custom, got %q", merged.DownloadPath)
	}
	if merged.ListenInterface != base.ListenInterface {
		t.Fatalf("expected untouched keys to keep base value")
	}
}
