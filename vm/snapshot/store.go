package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chazu/ecmavm/vm"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrUnitNotFound indicates no snapshot is stored under the requested name.
var ErrUnitNotFound = errors.New("snapshot: unit not found")

var log = commonlog.GetLogger("ecmavm.snapshot")

// Entry describes a stored snapshot.
type Entry struct {
	ID      uuid.UUID
	Name    string
	Size    int
	Created time.Time
}

// Store is a SQLite-backed snapshot store.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening store: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		data BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: creating table: %w", err)
	}

	log.Debugf("opened store %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database file of the store.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores img under name, replacing any snapshot with the same name, and
// returns the new snapshot id.
func (s *Store) Put(name string, img *vm.UnitImage) (uuid.UUID, error) {
	snap := New(name, img)
	data, err := Marshal(snap)
	if err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return uuid.Nil, fmt.Errorf("snapshot: put %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM snapshots WHERE name = ?", name); err != nil {
		return uuid.Nil, fmt.Errorf("snapshot: put %s: %w", name, err)
	}
	_, err = tx.Exec(
		"INSERT INTO snapshots (id, name, data, created) VALUES (?, ?, ?, ?)",
		snap.ID.String(), name, data, time.Now().UnixNano(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("snapshot: put %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("snapshot: put %s: %w", name, err)
	}

	log.Infof("stored %s as %s (%d bytes)", name, snap.ID, len(data))
	return snap.ID, nil
}

// Get loads the snapshot stored under name.
func (s *Store) Get(name string) (*Snapshot, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM snapshots WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, name)
		}
		return nil, fmt.Errorf("snapshot: get %s: %w", name, err)
	}
	return Unmarshal(data)
}

// List returns the stored snapshots ordered by name.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT id, name, length(data), created FROM snapshots ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id      string
			e       Entry
			created int64
		)
		if err := rows.Scan(&id, &e.Name, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("snapshot: list: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("snapshot: list: bad id for %s: %w", e.Name, err)
		}
		e.Created = time.Unix(0, created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	return entries, nil
}

// Delete removes the snapshot stored under name.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM snapshots WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("snapshot: delete %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("snapshot: delete %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnitNotFound, name)
	}
	return nil
}
