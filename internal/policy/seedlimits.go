package policy

import (
	"time"

	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/internal/session"
)

// EnforceSeedLimits implements the ratio/idle enforcement in spec
// §4.11. Per-torrent overrides win over the global CoreSettings;
// pausing is latched (RatioTriggered) to avoid repeated Pause() calls
// until ratio enforcement is disabled for the torrent, which resets
// the latch. The ratio dropping back below the limit does not reset it.
func EnforceSeedLimits(t *model.Torrent, h session.Handle, global model.CoreSettings, now time.Time) {
	stats := h.Stats()

	ratioEnabled, ratioLimit := resolveRatio(t.Overrides, global)
	idleEnabled, idleLimit := resolveIdle(t.Overrides, global)

	if stats.DownloadRate > 0 || stats.UploadRate > 0 {
		t.LastActivity = now
	}

	if !ratioEnabled {
		t.RatioTriggered = false
	}

	completed := stats.GotMetadata && stats.TotalWanted > 0 && stats.TotalWantedDone >= stats.TotalWanted
	if !completed {
		return
	}

	if ratioEnabled && !t.RatioTriggered {
		ratio := model.Ratio(stats.UploadedTotal, stats.DownloadedTotal)
		if ratio >= ratioLimit {
			h.Pause()
			t.RatioTriggered = true
		}
	}

	if idleEnabled && !h.IsPaused() {
		if now.Sub(t.LastActivity) >= time.Duration(idleLimit)*time.Minute {
			h.Pause()
		}
	}
}

func resolveRatio(ov model.TorrentOverrides, global model.CoreSettings) (enabled bool, limit float64) {
	enabled, limit = global.SeedRatioEnabled, global.SeedRatioLimit
	if ov.SeedRatioEnabled != nil {
		enabled = *ov.SeedRatioEnabled
	}
	if ov.SeedRatioLimit != nil {
		limit = *ov.SeedRatioLimit
	}
	return enabled, limit
}

func resolveIdle(ov model.TorrentOverrides, global model.CoreSettings) (enabled bool, limitMin int) {
	enabled, limitMin = global.SeedIdleEnabled, global.SeedIdleLimitMin
	if ov.SeedIdleEnabled != nil {
		enabled = *ov.SeedIdleEnabled
	}
	if ov.SeedIdleLimitMin != nil {
		limitMin = *ov.SeedIdleLimitMin
	}
	return enabled, limitMin
}
