package snapshot

import (
	"testing"
	"time"

	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/internal/session"
)

type fakeHandle struct {
	hash  model.InfoHash
	stats session.HandleStats
	paused bool
}

func (f *fakeHandle) InfoHash() model.InfoHash          { return f.hash }
func (f *fakeHandle) Stats() session.HandleStats        { return f.stats }
func (f *fakeHandle) Pause()                            { f.paused = true }
func (f *fakeHandle) Resume()                           { f.paused = false }
func (f *fakeHandle) IsPaused() bool                    { return f.paused }
func (f *fakeHandle) SetSequential(bool)                {}
func (f *fakeHandle) SetSuperSeeding(bool)              {}
func (f *fakeHandle) VerifyData()                       {}
func (f *fakeHandle) Reannounce()                       {}
func (f *fakeHandle) SetFileWanted(int, bool)           {}
func (f *fakeHandle) SetQueuePosition(int)              {}
func (f *fakeHandle) SetRateLimits(model.RateLimit, model.RateLimit) {}
func (f *fakeHandle) AddTrackers([]string)              {}
func (f *fakeHandle) RemoveTrackers([]string)           {}
func (f *fakeHandle) ReplaceTrackers([]string)          {}

func hashOf(b byte) model.InfoHash {
	var h model.InfoHash
	h[0] = b
	return h
}

func TestBuildAssignsIdsAndAggregatesTotals(t *testing.T) {
	ids := model.NewIDTable()
	builder := NewBuilder(ids)

	h1 := &fakeHandle{hash: hashOf(1), stats: session.HandleStats{
		GotMetadata: true, TotalWanted: 100, TotalWantedDone: 50, DownloadRate: 10,
	}}
	h2 := &fakeHandle{hash: hashOf(2), stats: session.HandleStats{
		GotMetadata: true, TotalWanted: 100, TotalWantedDone: 100, UploadRate: 5,
	}}

	snap := builder.Build([]session.Handle{h1, h2}, model.DefaultCoreSettings(), time.Now())

	if len(snap.Torrents) != 2 {
		t.Fatalf("expected 2 torrents, got %d", len(snap.Torrents))
	}
	if snap.Totals.DownloadRate != 10 || snap.Totals.UploadRate != 5 {
		t.Fatalf("unexpected totals: %+v", snap.Totals)
	}
	if builder.Published() != snap {
		t.Fatalf("expected Published() to return the just-built snapshot")
	}
}

func TestBuildReusesCachedSnapshotWhenRevisionUnchanged(t *testing.T) {
	ids := model.NewIDTable()
	builder := NewBuilder(ids)
	h := &fakeHandle{hash: hashOf(3), stats: session.HandleStats{Name: "first"}}

	builder.Build([]session.Handle{h}, model.DefaultCoreSettings(), time.Now())
	h.stats.Name = "changed-but-revision-not-bumped"
	snap := builder.Build([]session.Handle{h}, model.DefaultCoreSettings(), time.Now())

	if snap.Torrents[0].Name != "first" {
		t.Fatalf("expected cached snapshot to be reused when revision is unchanged, got %q", snap.Torrents[0].Name)
	}
}

func TestBuildPrunesMissingHandles(t *testing.T) {
	ids := model.NewIDTable()
	builder := NewBuilder(ids)
	h := &fakeHandle{hash: hashOf(4)}

	builder.Build([]session.Handle{h}, model.DefaultCoreSettings(), time.Now())
	if len(builder.torrents) != 1 {
		t.Fatalf("expected 1 tracked torrent before pruning")
	}

	builder.Build(nil, model.DefaultCoreSettings(), time.Now())
	if len(builder.torrents) != 0 {
		t.Fatalf("expected pruning to drop the vanished handle's torrent record")
	}
}
