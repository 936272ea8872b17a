package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const journalBatchSize = 100

// Journal is an optional SQLite record of every item that reached a terminal
// state. Writes are buffered and flushed in batches.
type Journal struct {
	db   *sql.DB
	path string

	mu      sync.Mutex
	pending []JournalEntry
	done    chan struct{}
	stopped bool
}

// JournalEntry is one recorded item outcome.
type JournalEntry struct {
	FinishedAt time.Time
	ModTime    time.Time
	RunID      string
	Path       string
	Algorithm  string
	Mode       string
	Digest     string
	State      string
	Status     string
	Size       int64
	Duration   time.Duration
}

// DefaultJournalPath returns $XDG_STATE_HOME/beamsum/journal.db, falling
// back to ~/.local/state.
func DefaultJournalPath() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "beamsum-journal.db")
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "beamsum", "journal.db")
}

// OpenJournal opens or creates the journal at path. An empty path uses
// DefaultJournalPath.
func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		path = DefaultJournalPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{db: db, path: path, done: make(chan struct{})}
	if err := j.init(); err != nil {
		db.Close()
		return nil, err
	}

	go j.flushLoop()
	return j, nil
}

func (j *Journal) init() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			path        TEXT NOT NULL,
			algorithm   TEXT NOT NULL,
			mode        TEXT NOT NULL,
			size        INTEGER NOT NULL,
			mtime       INTEGER NOT NULL,
			digest      TEXT NOT NULL,
			state       TEXT NOT NULL,
			status      TEXT NOT NULL,
			duration    INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS results_path ON results (path);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Record queues the outcome of a terminal item.
func (j *Journal) Record(runID string, mode Mode, it *Item) error {
	path, err := filepath.Abs(it.Path)
	if err != nil {
		path = it.Path
	}
	e := JournalEntry{
		FinishedAt: time.Now(),
		ModTime:    it.ModTime,
		RunID:      runID,
		Path:       path,
		Algorithm:  it.Algorithm.String(),
		Mode:       mode.String(),
		Digest:     it.Digest,
		State:      it.State().String(),
		Status:     it.Status,
		Size:       it.Size,
		Duration:   it.Duration,
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = append(j.pending, e)
	if len(j.pending) >= journalBatchSize {
		return j.flushLocked()
	}
	return nil
}

// Flush writes queued entries to the database.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushLocked()
}

func (j *Journal) flushLocked() error {
	if len(j.pending) == 0 {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO results
		(run_id, path, algorithm, mode, size, mtime, digest, state, status, duration, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range j.pending {
		var mtime int64
		if !e.ModTime.IsZero() {
			mtime = e.ModTime.UnixNano()
		}
		if _, err := stmt.Exec(e.RunID, e.Path, e.Algorithm, e.Mode, e.Size, mtime,
			e.Digest, e.State, e.Status, int64(e.Duration), e.FinishedAt.UnixNano()); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", e.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	j.pending = j.pending[:0]
	return nil
}

func (j *Journal) flushLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.mu.Lock()
			_ = j.flushLocked()
			j.mu.Unlock()
		}
	}
}

// History returns the recorded outcomes for path, newest first. A limit of
// zero or less returns every entry.
func (j *Journal) History(path string, limit int) ([]JournalEntry, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := j.db.Query(`SELECT run_id, path, algorithm, mode, size, mtime, digest,
		state, status, duration, finished_at
		FROM results WHERE path = ? ORDER BY finished_at DESC, id DESC LIMIT ?`, path, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e                         JournalEntry
			mtime, duration, finished int64
		)
		if err := rows.Scan(&e.RunID, &e.Path, &e.Algorithm, &e.Mode, &e.Size, &mtime,
			&e.Digest, &e.State, &e.Status, &duration, &finished); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if mtime != 0 {
			e.ModTime = time.Unix(0, mtime)
		}
		e.Duration = time.Duration(duration)
		e.FinishedAt = time.Unix(0, finished)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return out, nil
}

// LastDigest returns the most recent successful digest recorded for path
// with alg.
func (j *Journal) LastDigest(path string, alg Algorithm) (string, bool, error) {
	entries, err := j.History(path, 0)
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.Algorithm == alg.String() && e.State == Success.String() && e.Digest != "" {
			return e.Digest, true, nil
		}
	}
	return "", false, nil
}

// Close flushes pending writes and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if !j.stopped {
		j.stopped = true
		close(j.done)
	}
	err := j.flushLocked()
	j.mu.Unlock()
	if cerr := j.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }
