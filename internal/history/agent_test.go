package history

import (
	"sync"
	"testing"
	"time"

	"github.com/tinytorrent/tinytorrentd/internal/model"
)

type fakePersister struct {
	mu       sync.Mutex
	inserted []model.HistoryBucket
	cutoffs  []int64
}

func (f *fakePersister) InsertSpeedHistory(b model.HistoryBucket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, b)
}

func (f *fakePersister) DeleteSpeedHistoryBefore(cutoff int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
}

func (f *fakePersister) QuerySpeedHistory(t0, t1, step int64) ([]model.HistoryBucket, error) {
	return nil, nil
}

func (f *fakePersister) snapshot() []model.HistoryBucket {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.HistoryBucket, len(f.inserted))
	copy(out, f.inserted)
	return out
}

func TestSampleAccumulatesWithinBucket(t *testing.T) {
	p := &fakePersister{}
	cfg := model.HistoryConfig{Enabled: true, IntervalSec: 60}
	a := NewAgent(p, cfg)
	defer a.Close()

	base := time.Unix(120, 0)
	a.Sample(base, 10, 5)
	a.Sample(base.Add(10*time.Second), 20, 1)

	if a.current.DownloadedTotal != 30 || a.current.UploadedTotal != 6 {
		t.Fatalf("expected accumulated bucket, got %+v", a.current)
	}
	if a.current.PeakDown != 20 {
		t.Fatalf("expected peak down 20, got %d", a.current.PeakDown)
	}
}

func TestSampleSealsOnBoundaryCrossing(t *testing.T) {
	p := &fakePersister{}
	cfg := model.HistoryConfig{Enabled: true, IntervalSec: 60}
	a := NewAgent(p, cfg)
	defer a.Close()

	a.Sample(time.Unix(100, 0), 10, 0)
	a.Sample(time.Unix(165, 0), 5, 0)

	deadline := time.Now().Add(time.Second)
	for len(p.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	sealed := p.snapshot()
	if len(sealed) != 1 {
		t.Fatalf("expected 1 sealed bucket, got %d", len(sealed))
	}
	if sealed[0].Timestamp != 60 || sealed[0].DownloadedTotal != 10 {
		t.Fatalf("unexpected sealed bucket: %+v", sealed[0])
	}
}

func TestSampleNoOpWhenDisabled(t *testing.T) {
	p := &fakePersister{}
	a := NewAgent(p, model.HistoryConfig{Enabled: false, IntervalSec: 60})
	defer a.Close()

	a.Sample(time.Unix(100, 0), 10, 0)
	if a.hasData {
		t.Fatalf("expected no accumulation while disabled")
	}
}

func TestMaintainRetentionRunsAtMostOncePerHour(t *testing.T) {
	p := &fakePersister{}
	a := NewAgent(p, model.HistoryConfig{Enabled: true, IntervalSec: 60, RetentionDays: 7})
	defer a.Close()

	now := time.Unix(100000, 0)
	a.MaintainRetention(now)
	a.MaintainRetention(now.Add(time.Minute))

	deadline := time.Now().Add(time.Second)
	for len(p.snapshot()) == 0 && len(p.cutoffs) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.cutoffs) != 1 {
		t.Fatalf("expected retention to run once within the hour, got %d calls", len(p.cutoffs))
	}
}
