package policy

import (
	"testing"
	"time"

	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/internal/session"
)

func TestAltSpeedScheduleWithinWindow(t *testing.T) {
	var s AltSpeedScheduler
	cfg := model.CoreSettings{
		AltSpeedTime: model.AltSpeedSchedule{
			TimeEnabled: true,
			BeginMin:    60,  // 01:00
			EndMin:      120, // 02:00
		},
	}
	now := time.Date(2026, 1, 5, 1, 30, 0, 0, time.UTC) // Monday, 01:30
	if !s.Active(now, cfg) {
		t.Fatalf("expected active within [begin, end) window")
	}

	now = time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC)
	if s.Active(now, cfg) {
		t.Fatalf("expected inactive outside window")
	}
}

func TestAltSpeedScheduleWrapsMidnight(t *testing.T) {
	var s AltSpeedScheduler
	cfg := model.CoreSettings{
		AltSpeedTime: model.AltSpeedSchedule{
			TimeEnabled: true,
			BeginMin:    22 * 60,
			EndMin:      6 * 60,
		},
	}
	now := time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC)
	if !s.Active(now, cfg) {
		t.Fatalf("expected active late at night within wrapped window")
	}
	now = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	if s.Active(now, cfg) {
		t.Fatalf("expected inactive at noon outside wrapped window")
	}
}

func TestAltSpeedBeginEqualsEndAlwaysActive(t *testing.T) {
	var s AltSpeedScheduler
	cfg := model.CoreSettings{
		AltSpeedTime: model.AltSpeedSchedule{TimeEnabled: true, BeginMin: 300, EndMin: 300},
	}
	now := time.Date(2026, 1, 5, 4, 0, 0, 0, time.UTC)
	if !s.Active(now, cfg) {
		t.Fatalf("begin==end should mean always active while enabled")
	}
}

func TestAltSpeedDayMask(t *testing.T) {
	var s AltSpeedScheduler
	cfg := model.CoreSettings{
		AltSpeedTime: model.AltSpeedSchedule{
			TimeEnabled: true,
			BeginMin:    0,
			EndMin:      23 * 60,
			DayMask:     1 << 1, // Monday only
		},
	}
	monday := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	if !s.Active(monday, cfg) {
		t.Fatalf("expected active on masked Monday")
	}
	tuesday := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	if s.Active(tuesday, cfg) {
		t.Fatalf("expected inactive on unmasked Tuesday")
	}
}

func TestAltSpeedEnabledOverridesSchedule(t *testing.T) {
	var s AltSpeedScheduler
	cfg := model.CoreSettings{AltSpeedEnabled: true}
	if !s.Active(time.Now(), cfg) {
		t.Fatalf("alt_speed_enabled=true should always be active regardless of schedule")
	}
}

// fakeHandle is a minimal session.Handle for policy tests.
type fakeHandle struct {
	stats  session.HandleStats
	paused bool
}

func (f *fakeHandle) InfoHash() model.InfoHash          { return model.InfoHash{} }
func (f *fakeHandle) Stats() session.HandleStats        { return f.stats }
func (f *fakeHandle) Pause()                            { f.paused = true }
func (f *fakeHandle) Resume()                           { f.paused = false }
func (f *fakeHandle) IsPaused() bool                    { return f.paused }
func (f *fakeHandle) SetSequential(bool)                {}
func (f *fakeHandle) SetSuperSeeding(bool)               {}
func (f *fakeHandle) VerifyData()                       {}
func (f *fakeHandle) Reannounce()                        {}
func (f *fakeHandle) SetFileWanted(int, bool)            {}
func (f *fakeHandle) SetQueuePosition(int)               {}
func (f *fakeHandle) SetRateLimits(model.RateLimit, model.RateLimit) {}
func (f *fakeHandle) AddTrackers([]string)               {}
func (f *fakeHandle) RemoveTrackers([]string)            {}
func (f *fakeHandle) ReplaceTrackers([]string)           {}

func TestEnforceSeedLimitsPausesAtRatio(t *testing.T) {
	h := &fakeHandle{stats: session.HandleStats{
		GotMetadata: true, TotalWanted: 100, TotalWantedDone: 100,
		UploadedTotal: 200, DownloadedTotal: 100,
	}}
	tr := &model.Torrent{}
	global := model.CoreSettings{SeedRatioEnabled: true, SeedRatioLimit: 2.0}

	EnforceSeedLimits(tr, h, global, time.Now())

	if !h.paused {
		t.Fatalf("expected handle paused once ratio >= limit")
	}
	if !tr.RatioTriggered {
		t.Fatalf("expected RatioTriggered latched")
	}
}

func TestEnforceSeedLimitsIdlePause(t *testing.T) {
	h := &fakeHandle{stats: session.HandleStats{
		GotMetadata: true, TotalWanted: 100, TotalWantedDone: 100,
	}}
	tr := &model.Torrent{LastActivity: time.Now().Add(-10 * time.Minute)}
	global := model.CoreSettings{SeedIdleEnabled: true, SeedIdleLimitMin: 5}

	EnforceSeedLimits(tr, h, global, time.Now())

	if !h.paused {
		t.Fatalf("expected handle paused once idle past limit")
	}
}

func TestEnforceSeedLimitsOverrideWinsOverGlobal(t *testing.T) {
	h := &fakeHandle{stats: session.HandleStats{
		GotMetadata: true, TotalWanted: 100, TotalWantedDone: 100,
		UploadedTotal: 50, DownloadedTotal: 100,
	}}
	disabled := false
	tr := &model.Torrent{Overrides: model.TorrentOverrides{SeedRatioEnabled: &disabled}}
	global := model.CoreSettings{SeedRatioEnabled: true, SeedRatioLimit: 0.1}

	EnforceSeedLimits(tr, h, global, time.Now())

	if h.paused {
		t.Fatalf("per-torrent override disabling ratio enforcement should win over global")
	}
}
