package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/internal/session"
)

// SettingsPersister is the subset of persistence.Store the
// Configuration Service needs: a debounced settings flush, forced
// immediately when debounce is false. Defined here (rather than
// imported from internal/persistence) so config has no dependency on
// the storage engine — persistence.Store satisfies this structurally.
type SettingsPersister interface {
	FlushSettingsDebounced(settings model.CoreSettings, debounce bool)
}

// FlushDebounce is the 500 ms settings-flush debounce named in spec §4.2.
const FlushDebounce = 500 * time.Millisecond

// Service holds the effective CoreSettings behind the documented
// reader-writer discipline: many readers via Get, a single writer via
// Update, which must only ever be called from the Engine Thread.
type Service struct {
	mu       sync.RWMutex
	settings model.CoreSettings

	backend   session.Backend
	persister SettingsPersister
}

// NewService seeds the service with an initial settings value.
func NewService(initial model.CoreSettings, backend session.Backend, persister SettingsPersister) *Service {
	return &Service{settings: initial, backend: backend, persister: persister}
}

// Get returns a copy of the current effective settings.
func (s *Service) Get() model.CoreSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies delta, computing which categories changed, pushing
// the corresponding SettingsPack subset to the backend, and
// scheduling a debounced persistence flush, per spec §4.2.
func (s *Service) Update(delta model.SettingsDelta) (model.CoreSettings, error) {
	s.mu.Lock()
	next, changed := s.settings.Apply(delta)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return model.CoreSettings{}, fmt.Errorf("config: invalid settings: %w", err)
	}
	s.settings = next
	s.mu.Unlock()

	if len(changed) > 0 && s.backend != nil {
		if err := s.backend.ApplySettings(session.SettingsPack{Settings: next, Categories: changed}); err != nil {
			return model.CoreSettings{}, fmt.Errorf("config: apply settings to session: %w", err)
		}
	}

	if s.persister != nil {
		s.persister.FlushSettingsDebounced(next, true)
	}
	return next, nil
}

// FlushNow forces an immediate (non-debounced) settings flush, used on
// shutdown.
func (s *Service) FlushNow() {
	if s.persister == nil {
		return
	}
	s.persister.FlushSettingsDebounced(s.Get(), false)
}

// SetListenInterface normalises host:port / bracketed [host]:port
// forms (default port 6881, default host 0.0.0.0), per spec §4.2.
func (s *Service) SetListenInterface(raw string) error {
	host, port, err := normalizeListenInterface(raw)
	if err != nil {
		return err
	}
	iface := net.JoinHostPort(host, strconv.Itoa(port))
	_, err = s.Update(model.SettingsDelta{ListenInterface: &iface})
	return err
}

func normalizeListenInterface(raw string) (host string, port int, err error) {
	if raw == "" {
		return "0.0.0.0", 6881, nil
	}
	h, p, splitErr := net.SplitHostPort(raw)
	if splitErr != nil {
		// No port supplied; treat the whole value as a host.
		h = raw
		p = ""
	}
	if h == "" {
		h = "0.0.0.0"
	}
	if p == "" {
		return h, 6881, nil
	}
	n, convErr := strconv.Atoi(p)
	if convErr != nil || n < 1 || n > 65535 {
		return "", 0, fmt.Errorf("config: invalid listen port %q", p)
	}
	return h, n, nil
}

// SetDownloadPath, SetIncompleteDir, SetWatchDir and SetMetadataDir
// create the target directory if absent, rejecting the change without
// mutating state on failure, per spec §4.2.

func (s *Service) SetDownloadPath(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("config: create download path: %w", err)
	}
	_, err := s.Update(model.SettingsDelta{DownloadPath: &path})
	return err
}

func (s *Service) SetIncompleteDir(path string, enabled bool) error {
	if enabled {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("config: create incomplete dir: %w", err)
		}
	}
	_, err := s.Update(model.SettingsDelta{IncompleteDir: &path, IncompleteEnabled: &enabled})
	return err
}

func (s *Service) SetWatchDir(path string, enabled bool) error {
	if enabled {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("config: create watch dir: %w", err)
		}
	}
	_, err := s.Update(model.SettingsDelta{WatchDir: &path, WatchDirEnabled: &enabled})
	return err
}

func (s *Service) SetMetadataDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("config: create metadata dir: %w", err)
	}
	_, err := s.Update(model.SettingsDelta{MetadataDir: &path})
	return err
}
