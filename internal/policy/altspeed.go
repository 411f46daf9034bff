// Package policy implements the session-wide and per-torrent policies
// that run on the Engine Thread each tick: the alt-speed scheduler and
// seed-ratio/idle enforcement.
package policy

import (
	"time"

	"github.com/tinytorrent/tinytorrentd/internal/model"
)

// AltSpeedScheduler evaluates whether the alt-speed limit set should
// be active, per spec §4.10.
type AltSpeedScheduler struct {
	lastActive bool
}

// Active implements the predicate literally: enabled OR the
// time-window test passes. The time-window test is true when
// time_enabled is set, the current local minute-of-day falls in
// [begin, end) (wrapping past midnight when begin > end), and the
// day-of-week bit is set in the mask (zero mask ⇒ all days). Per the
// begin==end Open Question, that case is treated as "always active
// while time_enabled".
func (AltSpeedScheduler) Active(now time.Time, cfg model.CoreSettings) bool {
	if cfg.AltSpeedEnabled {
		return true
	}
	return scheduleMatches(now, cfg.AltSpeedTime)
}

func scheduleMatches(now time.Time, sched model.AltSpeedSchedule) bool {
	if !sched.TimeEnabled {
		return false
	}
	if !dayMatches(now, sched.DayMask) {
		return false
	}

	minute := now.Hour()*60 + now.Minute()

	if sched.BeginMin == sched.EndMin {
		return true
	}
	if sched.BeginMin < sched.EndMin {
		return minute >= sched.BeginMin && minute < sched.EndMin
	}
	// Wraps past midnight: active outside [end, begin).
	return minute >= sched.BeginMin || minute < sched.EndMin
}

func dayMatches(now time.Time, mask uint) bool {
	if mask == 0 {
		return true
	}
	bit := uint(now.Weekday()) // time.Sunday == 0, matching spec's Sun=0 convention
	return mask&(1<<bit) != 0
}

// Tick recomputes the active state and reports whether a transition
// occurred (edge trigger), which callers use to decide whether to
// (re)apply the active limit set even without a forced flag.
func (s *AltSpeedScheduler) Tick(now time.Time, cfg model.CoreSettings, force bool) (active bool, changed bool) {
	active = s.Active(now, cfg)
	changed = force || active != s.lastActive
	s.lastActive = active
	return active, changed
}
