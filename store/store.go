// Package store keeps a catalog of named linked images in a SQLite
// database. Images are stored in their canonical CBOR encoding together with
// their digest.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/cellemit/static"
	"github.com/chazu/cellemit/vm/dist"
)

var log = commonlog.GetLogger("cellemit.store")

// ErrImageNotFound indicates the requested image doesn't exist.
var ErrImageNotFound = errors.New("image not found")

// Entry describes one stored image.
type Entry struct {
	Name    string
	Digest  string
	Cells   int
	SavedAt time.Time
}

// Store is an image catalog backed by SQLite. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the catalog at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS images (
		name     TEXT PRIMARY KEY,
		digest   TEXT NOT NULL,
		cells    INTEGER NOT NULL,
		data     BLOB NOT NULL,
		saved_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	log.Debugf("opened image store %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores img under name, replacing any previous image of that name.
func (s *Store) Save(name string, img *static.Image) (Entry, error) {
	data, err := dist.MarshalImage(img)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding image %s: %w", name, err)
	}
	sum, err := dist.Sum(img)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Name: name, Digest: sum.String(), Cells: len(img.Cells), SavedAt: time.Now().UTC().Truncate(time.Second)}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO images (name, digest, cells, data, saved_at) VALUES (?, ?, ?, ?, ?)",
		e.Name, e.Digest, e.Cells, data, e.SavedAt.Unix(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("saving image %s: %w", name, err)
	}
	log.Infof("saved image %s (%s)", name, e.Digest[:12])
	return e, nil
}

// Load retrieves the named image and verifies its digest.
func (s *Store) Load(name string) (*static.Image, error) {
	var (
		digest string
		data   []byte
	)
	err := s.db.QueryRow("SELECT digest, data FROM images WHERE name = ?", name).Scan(&digest, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, name)
		}
		return nil, fmt.Errorf("querying image %s: %w", name, err)
	}
	img, err := dist.UnmarshalImage(data)
	if err != nil {
		return nil, fmt.Errorf("image %s: %w", name, err)
	}
	sum, err := dist.Sum(img)
	if err != nil {
		return nil, err
	}
	if sum.String() != digest {
		return nil, fmt.Errorf("image %s: %w: digest %s, recorded %s", name, dist.ErrMalformed, sum, digest)
	}
	return img, nil
}

// List returns every stored image ordered by name.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT name, digest, cells, saved_at FROM images ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			saved int64
		)
		if err := rows.Scan(&e.Name, &e.Digest, &e.Cells, &saved); err != nil {
			return nil, fmt.Errorf("scanning image row: %w", err)
		}
		e.SavedAt = time.Unix(saved, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes the named image.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec("DELETE FROM images WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting image %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrImageNotFound, name)
	}
	log.Infof("deleted image %s", name)
	return nil
}
