// Package cache stores encoded tile images in memory and on disk.
package cache

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/tile"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

const (
	// ErrTypeStore is the error type of a failed cache store operation.
	ErrTypeStore = "cache_store"

	// DefaultMemorySize is the number of tiles kept in memory.
	DefaultMemorySize = 1024

	// Memory is the path of a store that is not persisted.
	Memory = ":memory:"
)

const schema = `
CREATE TABLE IF NOT EXISTS layer_tiles (
	layer      TEXT    NOT NULL,
	srs        TEXT    NOT NULL,
	level      INTEGER NOT NULL,
	x          INTEGER NOT NULL,
	y          INTEGER NOT NULL,
	code       INTEGER NOT NULL,
	data       BLOB    NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (layer, srs, level, x, y)
);
CREATE INDEX IF NOT EXISTS layer_tiles_code ON layer_tiles (layer, srs, code);
`

// Key identifies a cached tile. Tiles of different profiles never share a
// key.
type Key struct {
	Layer string
	SRS   string
	Level uint32
	X     uint32
	Y     uint32
}

// KeyOf returns the key of the tile of a layer at the given address.
func KeyOf(layer string, a tile.Address) Key {
	var srs string
	if a.Profile != nil {
		srs = strings.ToUpper(a.Profile.SRS)
	}

	return Key{
		Layer: layer,
		SRS:   srs,
		Level: a.Level,
		X:     a.X,
		Y:     a.Y,
	}
}

// Entry is an encoded tile and the time it was stored.
type Entry struct {
	Data    []byte
	Created time.Time
}

// Store is an in-memory LRU in front of a SQLite database. It is safe for
// concurrent use.
type Store struct {
	memory *lru.Cache[Key, Entry]
	db     *sql.DB
}

// Open opens or creates the SQLite database at path. The memory size is the
// number of tiles kept in memory.
func Open(ctx context.Context, path string, memorySize int) (*Store, error) {
	if memorySize <= 0 {
		memorySize = DefaultMemorySize
	}

	memory, err := lru.New[Key, Entry](memorySize)
	if err != nil {
		return nil, errors.New("creating memory cache failed").
			WithType(ErrTypeStore).
			Wrap(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New("opening cache database failed").
			WithType(ErrTypeStore).
			WithTag("path", path).
			Wrap(err)
	}

	// SQLite serializes writes; in-memory databases only live on one
	// connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.New("creating cache schema failed").
			WithType(ErrTypeStore).
			WithTag("path", path).
			Wrap(err)
	}

	return &Store{
		memory: memory,
		db:     db,
	}, nil
}

// Get returns the cached entry for the given key.
func (s *Store) Get(ctx context.Context, k Key) (Entry, bool, error) {
	if e, ok := s.memory.Get(k); ok {
		return e, true, nil
	}

	var (
		e       Entry
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, created_at FROM layer_tiles WHERE layer = ? AND srs = ? AND level = ? AND x = ? AND y = ?`,
		k.Layer, k.SRS, k.Level, k.X, k.Y,
	).Scan(&e.Data, &created)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.New("reading cached tile failed").
			WithType(ErrTypeStore).
			WithTag("layer", k.Layer).
			Wrap(err)
	}
	e.Created = time.Unix(0, created)

	s.memory.Add(k, e)
	return e, true, nil
}

// Put stores the encoded tile of a layer at the given address.
func (s *Store) Put(ctx context.Context, layer string, a tile.Address, data []byte) error {
	code, err := tile.Code(a)
	if err != nil {
		return errors.New("computing tile code failed").
			WithType(ErrTypeStore).
			WithTag("tile", a.String()).
			Wrap(err)
	}

	k := KeyOf(layer, a)
	e := Entry{
		Data:    data,
		Created: time.Now(),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO layer_tiles (layer, srs, level, x, y, code, data, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		k.Layer, k.SRS, k.Level, k.X, k.Y, int64(code), data, e.Created.UnixNano(),
	); err != nil {
		return errors.New("writing cached tile failed").
			WithType(ErrTypeStore).
			WithTag("layer", layer).
			WithTag("tile", a.String()).
			Wrap(err)
	}

	s.memory.Add(k, e)
	return nil
}

// Purge removes every tile of a layer.
func (s *Store) Purge(ctx context.Context, layer string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM layer_tiles WHERE layer = ?`, layer); err != nil {
		return errors.New("purging cached tiles failed").
			WithType(ErrTypeStore).
			WithTag("layer", layer).
			Wrap(err)
	}

	for _, k := range s.memory.Keys() {
		if k.Layer == layer {
			s.memory.Remove(k)
		}
	}
	return nil
}

// Len returns the number of tiles persisted for a layer.
func (s *Store) Len(ctx context.Context, layer string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM layer_tiles WHERE layer = ?`, layer).Scan(&n); err != nil {
		return 0, errors.New("counting cached tiles failed").
			WithType(ErrTypeStore).
			WithTag("layer", layer).
			Wrap(err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.memory.Purge()
	return s.db.Close()
}
