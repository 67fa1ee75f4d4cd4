// Package history archives script versions across patch operations so
// a debugger can show what a script looked like before any given edit.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrVersionNotFound indicates the requested version doesn't exist
var ErrVersionNotFound = errors.New("version not found")

// Version is one archived script version.
type Version struct {
	ID         string
	Script     string
	Sequence   int
	Source     string
	Patched    bool // false for the initial load
	RecordedAt time.Time
}

// Store handles SQLite storage for script versions
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates a version store backed by the database at path. The
// special path ":memory:" keeps everything in process memory.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS script_versions (
		id TEXT PRIMARY KEY,
		script TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		source TEXT NOT NULL,
		patched INTEGER NOT NULL,
		recorded_at TIMESTAMP NOT NULL,
		UNIQUE(script, sequence)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record archives one version of a script and returns it with its
// assigned sequence number.
func (s *Store) Record(script, source string, patched bool) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq sql.NullInt64
	err := s.db.QueryRow(
		"SELECT MAX(sequence) FROM script_versions WHERE script = ?", script,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("reading sequence: %w", err)
	}

	v := &Version{
		ID:         uuid.NewString(),
		Script:     script,
		Sequence:   int(seq.Int64) + 1,
		Source:     source,
		Patched:    patched,
		RecordedAt: time.Now().UTC(),
	}

	_, err = s.db.Exec(
		`INSERT INTO script_versions (id, script, sequence, source, patched, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.Script, v.Sequence, v.Source, v.Patched, v.RecordedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("recording version: %w", err)
	}
	return v, nil
}

// Latest returns the most recent archived version of a script.
func (s *Store) Latest(script string) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT id, script, sequence, source, patched, recorded_at
		 FROM script_versions WHERE script = ?
		 ORDER BY sequence DESC LIMIT 1`, script)
	return scanVersion(row)
}

// At returns a specific archived version of a script.
func (s *Store) At(script string, sequence int) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT id, script, sequence, source, patched, recorded_at
		 FROM script_versions WHERE script = ? AND sequence = ?`,
		script, sequence)
	return scanVersion(row)
}

// List returns all versions of a script in order of recording.
func (s *Store) List(script string) ([]*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, script, sequence, source, patched, recorded_at
		 FROM script_versions WHERE script = ? ORDER BY sequence`, script)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var out []*Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.Script, &v.Sequence, &v.Source, &v.Patched, &v.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func scanVersion(row *sql.Row) (*Version, error) {
	var v Version
	err := row.Scan(&v.ID, &v.Script, &v.Sequence, &v.Source, &v.Patched, &v.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning version: %w", err)
	}
	return &v, nil
}
