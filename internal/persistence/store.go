// Package persistence is the write-behind SQLite store named in spec
// §4.5/§6: a settings key/value table, a torrents table, and a
// speed_history table, all mutated from a single background writer
// goroutine so the Engine Thread does not wait on disk I/O, except
// when the writer's queue is full and a write runs synchronously.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"github.com/tinytorrent/tinytorrentd/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS torrents (
	info_hash          TEXT PRIMARY KEY,
	magnet_uri         TEXT NOT NULL DEFAULT '',
	metainfo_blob      BLOB,
	metadata_file_path TEXT NOT NULL DEFAULT '',
	save_path          TEXT NOT NULL DEFAULT '',
	paused             INTEGER NOT NULL DEFAULT 0,
	labels             TEXT NOT NULL DEFAULT '[]',
	added_at           INTEGER NOT NULL DEFAULT 0,
	rpc_id             INTEGER NOT NULL DEFAULT 0,
	resume_data        BLOB
);
CREATE TABLE IF NOT EXISTS speed_history (
	timestamp        INTEGER PRIMARY KEY,
	downloaded_total INTEGER NOT NULL,
	uploaded_total   INTEGER NOT NULL,
	peak_down        INTEGER NOT NULL,
	peak_up          INTEGER NOT NULL
);
`

// task is one write-behind unit of work, run exclusively on the
// writer goroutine against the real *sql.DB.
type task func(db *sql.DB) error

// Store is the Persistence Manager. It keeps no in-memory cache of
// the stored rows: reads such as LoadTorrents and GetSetting query the
// database directly, so they see a write only after the writer
// goroutine has applied it.
type Store struct {
	db     *sql.DB
	log    *zap.Logger
	tasks  chan task
	wg     sync.WaitGroup
	cancel context.CancelFunc

	settingsMu      sync.Mutex
	settingsTimer   *time.Timer
	pendingSettings model.CoreSettings
}

// Open creates (or reuses) the SQLite database at path and starts the
// write-behind worker goroutine.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serialises writes; avoid pool contention on a single file

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: apply schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:     db,
		log:    log.Named("persistence"),
		tasks:  make(chan task, 256),
		cancel: cancel,
	}
	s.wg.Add(1)
	go s.writer(ctx)
	return s, nil
}

// writer is the single background goroutine that owns all database
// mutations, per the write-behind discipline in spec §5.
func (s *Store) writer(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.tasks:
			if err := t(s.db); err != nil {
				s.log.Error("persistence write failed", zap.Error(err))
			}
		}
	}
}

func (s *Store) enqueue(t task) {
	select {
	case s.tasks <- t:
	default:
		// The writer is backed up; run synchronously rather than drop
		// the mutation, trading a momentary Engine Thread stall for
		// never losing a write.
		if err := t(s.db); err != nil {
			s.log.Error("persistence write failed (synchronous fallback)", zap.Error(err))
		}
	}
}

// Close stops the writer goroutine and closes the database handle.
func (s *Store) Close() error {
	s.settingsMu.Lock()
	if s.settingsTimer != nil {
		s.settingsTimer.Stop()
	}
	s.settingsMu.Unlock()

	s.cancel()
	s.wg.Wait()
	return s.db.Close()
}

// GetSetting reads a single key synchronously (settings are read
// rarely and only at startup merge time, so this bypasses the queue).
func (s *Store) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("persistence: get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting enqueues a single key/value upsert.
func (s *Store) SetSetting(key, value string) {
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`INSERT INTO settings(key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		return err
	})
}

// UpsertTorrent enqueues an idempotent insert-or-replace of one
// torrent row.
func (s *Store) UpsertTorrent(t model.PersistedTorrent) {
	labels, _ := json.Marshal(t.Labels)
	hash := t.InfoHash.String()
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`INSERT INTO torrents
			(info_hash, magnet_uri, metainfo_blob, metadata_file_path, save_path, paused, labels, added_at, rpc_id, resume_data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(info_hash) DO UPDATE SET
				magnet_uri = excluded.magnet_uri,
				metainfo_blob = excluded.metainfo_blob,
				metadata_file_path = excluded.metadata_file_path,
				save_path = excluded.save_path,
				paused = excluded.paused,
				labels = excluded.labels,
				added_at = excluded.added_at,
				rpc_id = excluded.rpc_id,
				resume_data = excluded.resume_data`,
			hash, t.MagnetURI, t.MetainfoBlob, t.MetadataFilePath, t.SavePath,
			boolToInt(t.Paused), string(labels), t.AddedAt, t.RpcID, t.ResumeData)
		return err
	})
}

// DeleteTorrent enqueues removal of one torrent row by infohash.
func (s *Store) DeleteTorrent(hash model.InfoHash) {
	h := hash.String()
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM torrents WHERE info_hash = ?`, h)
		return err
	})
}

// UpdateRpcID enqueues a single-column update, used once at startup
// when the IDTable assigns an id to a torrent restored without one.
func (s *Store) UpdateRpcID(hash model.InfoHash, id int64) {
	h := hash.String()
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE torrents SET rpc_id = ? WHERE info_hash = ?`, id, h)
		return err
	})
}

// UpdateSavePath enqueues a save-path update, used when a move-storage
// completes.
func (s *Store) UpdateSavePath(hash model.InfoHash, path string) {
	h := hash.String()
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE torrents SET save_path = ? WHERE info_hash = ?`, path, h)
		return err
	})
}

// UpdateLabels enqueues a labels update.
func (s *Store) UpdateLabels(hash model.InfoHash, labels []string) {
	h := hash.String()
	blob, _ := json.Marshal(labels)
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE torrents SET labels = ? WHERE info_hash = ?`, string(blob), h)
		return err
	})
}

// UpdateMetadata enqueues the metadata-file-path/blob pair written
// once a magnet torrent's metainfo has been fsync-renamed to disk.
func (s *Store) UpdateMetadata(hash model.InfoHash, path string, blob []byte) {
	h := hash.String()
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE torrents SET metadata_file_path = ?, metainfo_blob = ? WHERE info_hash = ?`, path, blob, h)
		return err
	})
}

// UpdateResumeData enqueues a resume-data blob update.
func (s *Store) UpdateResumeData(hash model.InfoHash, blob []byte) {
	h := hash.String()
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE torrents SET resume_data = ? WHERE info_hash = ?`, blob, h)
		return err
	})
}

// LoadTorrents reads every persisted torrent synchronously, for
// startup cache population.
func (s *Store) LoadTorrents() ([]model.PersistedTorrent, error) {
	rows, err := s.db.Query(`SELECT info_hash, magnet_uri, metainfo_blob, metadata_file_path,
		save_path, paused, labels, added_at, rpc_id, resume_data FROM torrents`)
	if err != nil {
		return nil, fmt.Errorf("persistence: load torrents: %w", err)
	}
	defer rows.Close()

	var out []model.PersistedTorrent
	for rows.Next() {
		var (
			hexHash      string
			paused       int
			labelsJSON   string
			metainfoBlob []byte
			resumeData   []byte
			t            model.PersistedTorrent
		)
		if err := rows.Scan(&hexHash, &t.MagnetURI, &metainfoBlob, &t.MetadataFilePath,
			&t.SavePath, &paused, &labelsJSON, &t.AddedAt, &t.RpcID, &resumeData); err != nil {
			return nil, fmt.Errorf("persistence: scan torrent row: %w", err)
		}
		hash, err := model.ParseInfoHash(hexHash)
		if err != nil {
			return nil, fmt.Errorf("persistence: parse stored infohash %q: %w", hexHash, err)
		}
		t.InfoHash = hash
		t.Paused = paused != 0
		t.MetainfoBlob = metainfoBlob
		t.ResumeData = resumeData
		_ = json.Unmarshal([]byte(labelsJSON), &t.Labels)
		out = append(out, t)
	}
	return out, rows.Err()
}

// LoadSessionStatistics reads the cumulative counters persisted as
// settings keys, per spec §6's setting-key list.
func (s *Store) LoadSessionStatistics() (model.SessionStatistics, error) {
	var stats model.SessionStatistics
	for key, dst := range map[string]*int64{
		"uploadedBytes":   &stats.UploadedBytes,
		"downloadedBytes": &stats.DownloadedBytes,
		"secondsActive":   &stats.SecondsActive,
		"sessionCount":    &stats.SessionCount,
	} {
		val, ok, err := s.GetSetting(key)
		if err != nil {
			return stats, err
		}
		if ok {
			fmt.Sscanf(val, "%d", dst)
		}
	}
	return stats, nil
}

// InsertSpeedHistory enqueues one sealed bucket.
func (s *Store) InsertSpeedHistory(b model.HistoryBucket) {
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`INSERT INTO speed_history
			(timestamp, downloaded_total, uploaded_total, peak_down, peak_up)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(timestamp) DO UPDATE SET
				downloaded_total = excluded.downloaded_total,
				uploaded_total = excluded.uploaded_total,
				peak_down = excluded.peak_down,
				peak_up = excluded.peak_up`,
			b.Timestamp, b.DownloadedTotal, b.UploadedTotal, b.PeakDown, b.PeakUp)
		return err
	})
}

// QuerySpeedHistory returns buckets with t0 <= timestamp <= t1 and
// timestamp % step == 0, per the Testable Property in spec §8.
func (s *Store) QuerySpeedHistory(t0, t1, step int64) ([]model.HistoryBucket, error) {
	rows, err := s.db.Query(`SELECT timestamp, downloaded_total, uploaded_total, peak_down, peak_up
		FROM speed_history WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC`, t0, t1)
	if err != nil {
		return nil, fmt.Errorf("persistence: query speed history: %w", err)
	}
	defer rows.Close()

	var out []model.HistoryBucket
	for rows.Next() {
		var b model.HistoryBucket
		if err := rows.Scan(&b.Timestamp, &b.DownloadedTotal, &b.UploadedTotal, &b.PeakDown, &b.PeakUp); err != nil {
			return nil, fmt.Errorf("persistence: scan speed history row: %w", err)
		}
		if step > 0 && b.Timestamp%step != 0 {
			continue
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteSpeedHistoryBefore enqueues retention pruning.
func (s *Store) DeleteSpeedHistoryBefore(cutoff int64) {
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM speed_history WHERE timestamp < ?`, cutoff)
		return err
	})
}

// DeleteSpeedHistoryAll enqueues a full history wipe, for the RPC
// history-clear(older_than=nil) case.
func (s *Store) DeleteSpeedHistoryAll() {
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM speed_history`)
		return err
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
