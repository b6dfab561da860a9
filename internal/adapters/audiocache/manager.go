// Package audiocache stores downloaded audio bytes in a local sqlite
// database keyed by song id, with a small in-memory LRU in front for
// hot reads. The cache is a performance and offline optimization only:
// every fault degrades to a miss or a no-op so callers fall back to
// direct-from-remote playback.
package audiocache

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/cutiefunny/musclecat/internal/ports"
	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

const hotEntries = 8

// Manager is the sqlite-backed audio cache.
type Manager struct {
	log    *zap.Logger
	db     *sql.DB
	hot    *lru.Cache[string, []byte]
	client *http.Client

	mu    sync.Mutex
	known map[string]struct{}
}

var _ ports.AudioCache = (*Manager)(nil)

// New opens (or creates) the cache database at dbPath.
func New(log *zap.Logger, dbPath string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS audio (
		song_id TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	hot, err := lru.New[string, []byte](hotEntries)
	if err != nil {
		db.Close()
		return nil, err
	}

	m := &Manager{
		log:    log,
		db:     db,
		hot:    hot,
		client: &http.Client{Timeout: 60 * time.Second},
		known:  map[string]struct{}{},
	}
	m.loadKnownIDs()
	return m, nil
}

// Close closes the database.
func (m *Manager) Close() error {
	return m.db.Close()
}

// Get returns cached bytes for a song id, or a miss. Faults are logged
// and reported as a miss.
func (m *Manager) Get(songID string) ([]byte, bool) {
	if data, ok := m.hot.Get(songID); ok {
		return data, true
	}

	var data []byte
	err := m.db.QueryRow(`SELECT data FROM audio WHERE song_id = ?`, songID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		m.log.Warn("cache read failed", zap.String("song", songID), zap.Error(err))
		return nil, false
	}
	m.hot.Add(songID, data)
	return data, true
}

// Put stores bytes for a song id, best-effort.
func (m *Manager) Put(songID string, data []byte) {
	_, err := m.db.Exec(
		`INSERT INTO audio (song_id, data, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(song_id) DO UPDATE SET data = excluded.data, created_at = excluded.created_at`,
		songID, data, time.Now().UnixMilli(),
	)
	if err != nil {
		m.log.Warn("cache write failed", zap.String("song", songID), zap.Error(err))
		return
	}
	m.hot.Add(songID, data)
	m.mu.Lock()
	m.known[songID] = struct{}{}
	m.mu.Unlock()
}

// Remove deletes a cached entry, best-effort.
func (m *Manager) Remove(songID string) {
	if _, err := m.db.Exec(`DELETE FROM audio WHERE song_id = ?`, songID); err != nil {
		m.log.Warn("cache delete failed", zap.String("song", songID), zap.Error(err))
	}
	m.hot.Remove(songID)
	m.mu.Lock()
	delete(m.known, songID)
	m.mu.Unlock()
}

// ListIDs enumerates known cached song ids; empty on fault.
func (m *Manager) ListIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.known))
	for id := range m.known {
		ids = append(ids, id)
	}
	return ids
}

// DownloadAndCache fetches song.Src and stores the bytes. On any fault
// it logs and leaves the song un-cached; playback already proceeded
// directly from the remote URL, so the failure is non-fatal.
func (m *Manager) DownloadAndCache(ctx context.Context, song jukebox.Song) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, song.Src, nil)
	if err != nil {
		m.log.Warn("cache download failed", zap.String("song", song.ID), zap.Error(err))
		return
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Warn("cache download failed", zap.String("song", song.ID), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.log.Warn("cache download failed",
			zap.String("song", song.ID),
			zap.Error(fmt.Errorf("unexpected status %d", resp.StatusCode)))
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		m.log.Warn("cache download failed", zap.String("song", song.ID), zap.Error(err))
		return
	}
	m.Put(song.ID, data)
	m.log.Debug("cached song", zap.String("song", song.ID), zap.Int("bytes", len(data)))
}

func (m *Manager) loadKnownIDs() {
	rows, err := m.db.Query(`SELECT song_id FROM audio`)
	if err != nil {
		m.log.Warn("cache key scan failed", zap.Error(err))
		return
	}
	defer rows.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		m.known[id] = struct{}{}
	}
}
