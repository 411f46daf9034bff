package blocklist

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tinytorrent/tinytorrentd/internal/session"
)

// EngineEnqueuer schedules fn to run on the Engine Thread. The engine
// supplies a closure that submits fn to its command queue.
type EngineEnqueuer func(fn func())

// Manager owns the on-disk blocklist path and reloads it off the
// Engine Thread, applying the parsed rules back on the Engine Thread
// via Backend.SetIPFilter, per spec §4.8/§9.
type Manager struct {
	path    string
	backend session.Backend
	enqueue EngineEnqueuer
	log     *zap.Logger
}

// NewManager constructs a Manager for the blocklist file at path.
func NewManager(path string, backend session.Backend, enqueue EngineEnqueuer, log *zap.Logger) *Manager {
	return &Manager{path: path, backend: backend, enqueue: enqueue, log: log}
}

// SetPath redirects the manager at a new blocklist file; callers must
// still invoke Reload to actually (re)apply it.
func (m *Manager) SetPath(path string) { m.path = path }

// Reload parses the blocklist file off the Engine Thread (the caller
// is expected to run this from the I/O worker pool) and, once parsed,
// enqueues a command that installs the result via Backend.SetIPFilter
// on the Engine Thread.
func (m *Manager) Reload(ctx context.Context) error {
	if m.path == "" {
		m.enqueue(func() {
			if err := m.backend.SetIPFilter(nil); err != nil {
				m.log.Warn("failed to clear IP filter", zap.Error(err))
			}
		})
		return nil
	}

	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.enqueue(func() {
				if err := m.backend.SetIPFilter(nil); err != nil {
					m.log.Warn("failed to clear IP filter", zap.Error(err))
				}
			})
			return nil
		}
		return fmt.Errorf("open blocklist %q: %w", m.path, err)
	}
	defer f.Close()

	filter, err := Parse(f)
	if err != nil {
		return fmt.Errorf("parse blocklist %q: %w", m.path, err)
	}

	m.log.Info("blocklist parsed", zap.String("path", m.path), zap.Int("rules", len(filter.Rules)))

	m.enqueue(func() {
		if err := m.backend.SetIPFilter(filter.Rules); err != nil {
			m.log.Warn("failed to apply IP filter", zap.Error(err))
		}
	})
	return nil
}
