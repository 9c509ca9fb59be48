// Package store persists scene snapshots in SQLite. Each entity is one row
// holding its JSON-encoded snapshot; rows keep the scene's creation order.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/chazu/plantview/pkg/component"
	"github.com/chazu/plantview/pkg/graph"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DefaultPath is used when Open is given an empty path.
const DefaultPath = "plantview.db"

// ErrEmpty is returned by Load when no scene has been saved.
var ErrEmpty = errors.New("store: no scene saved")

// Store is a SQLite-backed scene store. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	log  *log.Logger

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open opens or creates the database at path, creating parent directories
// as needed.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("store: create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entities (
		seq     INTEGER PRIMARY KEY,
		id      TEXT NOT NULL UNIQUE,
		kind    TEXT NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create entities table: %w", err)
	}
	s := &Store{db: db, path: path, log: log.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Save replaces the stored scene with snap in one transaction.
func (s *Store) Save(ctx context.Context, snap component.Snapshot) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities`); err != nil {
		return fmt.Errorf("store: clear entities: %w", err)
	}
	for i, es := range snap.Entities {
		data, err := json.Marshal(es)
		if err != nil {
			return fmt.Errorf("store: encode %s: %w", es.ID.Short(), err)
		}
		kind, err := es.Kind.MarshalText()
		if err != nil {
			return fmt.Errorf("store: encode %s: %w", es.ID.Short(), err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entities(seq,id,kind,payload) VALUES(?,?,?,?)
			 ON CONFLICT(id) DO UPDATE SET seq=excluded.seq, kind=excluded.kind, payload=excluded.payload`,
			i, es.ID.String(), string(kind), data); err != nil {
			return fmt.Errorf("store: insert %s: %w", es.ID.Short(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	s.log.Info("scene saved", "path", s.path, "entities", len(snap.Entities))
	return nil
}

// Load reads the stored scene. It returns ErrEmpty when nothing is saved.
func (s *Store) Load(ctx context.Context) (component.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM entities ORDER BY seq`)
	if err != nil {
		return component.Snapshot{}, fmt.Errorf("store: select entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snap component.Snapshot
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return component.Snapshot{}, fmt.Errorf("store: scan: %w", err)
		}
		var es component.EntitySnapshot
		if err := json.Unmarshal(payload, &es); err != nil {
			return component.Snapshot{}, fmt.Errorf("store: decode %s: %w", id, err)
		}
		if want, err := graph.ParseID(id); err != nil || want != es.ID {
			return component.Snapshot{}, fmt.Errorf("store: row %s holds entity %s", id, es.ID)
		}
		snap.Entities = append(snap.Entities, es)
	}
	if err := rows.Err(); err != nil {
		return component.Snapshot{}, fmt.Errorf("store: read rows: %w", err)
	}
	if len(snap.Entities) == 0 {
		return component.Snapshot{}, ErrEmpty
	}
	s.log.Info("scene loaded", "path", s.path, "entities", len(snap.Entities))
	return snap, nil
}

// SaveScene exports sc and saves it.
func (s *Store) SaveScene(ctx context.Context, sc *component.Scene) error {
	snap, err := sc.Export()
	if err != nil {
		return err
	}
	return s.Save(ctx, snap)
}

// LoadScene loads the stored snapshot and imports it into a new scene.
func (s *Store) LoadScene(ctx context.Context, opts ...component.Option) (*component.Scene, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return component.Import(snap, opts...)
}

// Count returns the number of stored entities.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
