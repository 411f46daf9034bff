package persistence

import (
	"strconv"
	"time"

	"github.com/tinytorrent/tinytorrentd/internal/model"
)

// FlushSettingsDebounced implements config.SettingsPersister: a 500 ms
// debounce when debounce is true, an immediate flush when false
// (forced on shutdown), per spec §4.2/§4.5.
func (s *Store) FlushSettingsDebounced(settings model.CoreSettings, debounce bool) {
	s.settingsMu.Lock()
	s.pendingSettings = settings
	if !debounce {
		if s.settingsTimer != nil {
			s.settingsTimer.Stop()
		}
		s.settingsMu.Unlock()
		s.flushSettings(settings)
		return
	}
	if s.settingsTimer != nil {
		s.settingsTimer.Stop()
	}
	s.settingsTimer = time.AfterFunc(settingsFlushDebounce, func() {
		s.settingsMu.Lock()
		pending := s.pendingSettings
		s.settingsMu.Unlock()
		s.flushSettings(pending)
	})
	s.settingsMu.Unlock()
}

// settingsFlushDebounce mirrors config.FlushDebounce; kept local to
// avoid an import cycle (config depends on the SettingsPersister
// interface this file satisfies).
const settingsFlushDebounce = 500 * time.Millisecond

func (s *Store) flushSettings(settings model.CoreSettings) {
	for key, value := range settingsAsKV(settings) {
		s.SetSetting(key, value)
	}
}

// settingsAsKV implements the setting-key table from spec §6.
func settingsAsKV(c model.CoreSettings) map[string]string {
	b := func(v bool) string {
		if v {
			return "1"
		}
		return "0"
	}
	i := strconv.Itoa
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

	return map[string]string{
		"listenInterface":        c.ListenInterface,
		"historyEnabled":         b(c.History.Enabled),
		"historyInterval":        i(c.History.IntervalSec),
		"historyRetentionDays":   i(c.History.RetentionDays),
		"altSpeedEnabled":        b(c.AltSpeedEnabled),
		"altSpeedTime":           b(c.AltSpeedTime.TimeEnabled),
		"altSpeedTimeBegin":      i(c.AltSpeedTime.BeginMin),
		"altSpeedTimeEnd":        i(c.AltSpeedTime.EndMin),
		"altSpeedTimeDay":        i(int(c.AltSpeedTime.DayMask)),
		"altSpeedDownload":       i(c.AltSpeedDownload),
		"altSpeedUpload":         i(c.AltSpeedUpload),
		"seedRatioLimit":         f(c.SeedRatioLimit),
		"seedRatioEnabled":       b(c.SeedRatioEnabled),
		"seedIdleEnabled":        b(c.SeedIdleEnabled),
		"seedIdleLimit":          i(c.SeedIdleLimitMin),
		"peerLimit":              i(c.PeerLimit),
		"peerLimitPerTorrent":    i(c.PeerLimitPerTorrent),
		"dhtEnabled":             b(c.DHTEnabled),
		"pexEnabled":             b(c.PEXEnabled),
		"lpdEnabled":             b(c.LPDEnabled),
		"utpEnabled":             b(c.UTPEnabled),
		"downloadQueueSize":      i(c.DownloadQueueSize),
		"seedQueueSize":          i(c.SeedQueueSize),
		"queueStalledEnabled":    b(c.QueueStalledEnabled),
		"renamePartialFiles":     b(c.RenamePartialFiles),
		"downloadPath":           c.DownloadPath,
		"incompleteDir":          c.IncompleteDir,
		"incompleteDirEnabled":   b(c.IncompleteEnabled),
		"watchDir":               c.WatchDir,
		"watchDirEnabled":        b(c.WatchDirEnabled),
		"proxyType":              i(int(c.Proxy.Type)),
		"proxyHost":              c.Proxy.Host,
		"proxyPort":              i(c.Proxy.Port),
		"proxyAuthEnabled":       b(c.Proxy.AuthEnabled),
		"proxyUsername":          c.Proxy.Username,
		"proxyPassword":          c.Proxy.Password,
		"proxyPeerConnections":   b(c.Proxy.PeerConnections),
		"blocklistPath":          c.BlocklistPath,
	}
}

// settingsFromKV reconstructs a CoreSettings delta from persisted
// key/value pairs, merged onto base (so absent keys keep defaults),
// per spec §6/§9's startup restore path.
func settingsFromKV(base model.CoreSettings, kv map[string]string) model.CoreSettings {
	s := base

	if v, ok := kv["listenInterface"]; ok {
		s.ListenInterface = v
	}
	if v, ok := kv["historyEnabled"]; ok {
		s.History.Enabled = v == "1"
	}
	if v, ok := kv["historyInterval"]; ok {
		s.History.IntervalSec = atoiOr(v, s.History.IntervalSec)
	}
	if v, ok := kv["historyRetentionDays"]; ok {
		s.History.RetentionDays = atoiOr(v, s.History.RetentionDays)
	}
	if v, ok := kv["altSpeedEnabled"]; ok {
		s.AltSpeedEnabled = v == "1"
	}
	if v, ok := kv["altSpeedTime"]; ok {
		s.AltSpeedTime.TimeEnabled = v == "1"
	}
	if v, ok := kv["altSpeedTimeBegin"]; ok {
		s.AltSpeedTime.BeginMin = atoiOr(v, s.AltSpeedTime.BeginMin)
	}
	if v, ok := kv["altSpeedTimeEnd"]; ok {
		s.AltSpeedTime.EndMin = atoiOr(v, s.AltSpeedTime.EndMin)
	}
	if v, ok := kv["altSpeedTimeDay"]; ok {
		s.AltSpeedTime.DayMask = uint(atoiOr(v, int(s.AltSpeedTime.DayMask)))
	}
	if v, ok := kv["altSpeedDownload"]; ok {
		s.AltSpeedDownload = atoiOr(v, s.AltSpeedDownload)
	}
	if v, ok := kv["altSpeedUpload"]; ok {
		s.AltSpeedUpload = atoiOr(v, s.AltSpeedUpload)
	}
	if v, ok := kv["seedRatioLimit"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.SeedRatioLimit = f
		}
	}
	if v, ok := kv["seedRatioEnabled"]; ok {
		s.SeedRatioEnabled = v == "1"
	}
	if v, ok := kv["seedIdleEnabled"]; ok {
		s.SeedIdleEnabled = v == "1"
	}
	if v, ok := kv["seedIdleLimit"]; ok {
		s.SeedIdleLimitMin = atoiOr(v, s.SeedIdleLimitMin)
	}
	if v, ok := kv["peerLimit"]; ok {
		s.PeerLimit = atoiOr(v, s.PeerLimit)
	}
	if v, ok := kv["peerLimitPerTorrent"]; ok {
		s.PeerLimitPerTorrent = atoiOr(v, s.PeerLimitPerTorrent)
	}
	if v, ok := kv["dhtEnabled"]; ok {
		s.DHTEnabled = v == "1"
	}
	if v, ok := kv["pexEnabled"]; ok {
		s.PEXEnabled = v == "1"
	}
	if v, ok := kv["lpdEnabled"]; ok {
		s.LPDEnabled = v == "1"
	}
	if v, ok := kv["utpEnabled"]; ok {
		s.UTPEnabled = v == "1"
	}
	if v, ok := kv["downloadQueueSize"]; ok {
		s.DownloadQueueSize = atoiOr(v, s.DownloadQueueSize)
	}
	if v, ok := kv["seedQueueSize"]; ok {
		s.SeedQueueSize = atoiOr(v, s.SeedQueueSize)
	}
	if v, ok := kv["queueStalledEnabled"]; ok {
		s.QueueStalledEnabled = v == "1"
	}
	if v, ok := kv["renamePartialFiles"]; ok {
		s.RenamePartialFiles = v == "1"
	}
	if v, ok := kv["downloadPath"]; ok {
		s.DownloadPath = v
	}
	if v, ok := kv["incompleteDir"]; ok {
		s.IncompleteDir = v
	}
	if v, ok := kv["incompleteDirEnabled"]; ok {
		s.IncompleteEnabled = v == "1"
	}
	if v, ok := kv["watchDir"]; ok {
		s.WatchDir = v
	}
	if v, ok := kv["watchDirEnabled"]; ok {
		s.WatchDirEnabled = v == "1"
	}
	if v, ok := kv["blocklistPath"]; ok {
		s.BlocklistPath = v
	}

	return s
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// LoadSettings reads every persisted setting key synchronously and
// merges it onto base, for startup restore.
func (s *Store) LoadSettings(base model.CoreSettings) (model.CoreSettings, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return base, err
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return base, err
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return base, err
	}
	return settingsFromKV(base, kv), nil
}
