// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ledgerdb is the Persistence Store: a single embedded relational
// database, accessed through database/sql against the pure-Go
// modernc.org/sqlite driver, that holds every piece of durable ledger
// state (blocks, transactions, spent-output markers, and generated key
// material). A Store serializes mutating access behind an internal lock
// so that a ledger operation's reads and writes are always applied inside
// one *sql.Tx.
package ledgerdb

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	// Register the pure-Go SQLite driver under the name "sqlite".
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const metaKeyGenesisTime = "genesis_time"

// Store is a single handle onto the Persistence Store. Two Store values
// may point at the same underlying file; per spec.md's "clone" semantics,
// the second Open call to an existing, non-empty file attaches to it
// rather than reinitializing it.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	loc string
}

// Open opens the database file at path, creating and initializing it
// (genesis block, migrations) if it does not already exist or is empty.
// An empty path, or the literal string ":memory:", opens an ephemeral
// in-memory store that always starts from genesis. networkMagic is folded
// into the genesis header so that two networks never collide on the same
// genesis block id.
func Open(path string, networkMagic uint32) (*Store, error) {
	dsn, ephemeral := dataSourceName(path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeError(ErrDatabase, "failed to open sqlite handle", err)
	}
	// The mock serializes all access itself; a single connection avoids
	// SQLITE_BUSY from the driver's own pool under concurrent callers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, loc: path}

	initialized, err := s.hasSchema()
	if err != nil {
		db.Close()
		return nil, err
	}
	if !initialized {
		if err := s.applyMigrations(); err != nil {
			db.Close()
			return nil, err
		}
		if err := s.initGenesis(networkMagic); err != nil {
			db.Close()
			return nil, err
		}
		log.Infof("Initialized new ledger store at %s", describeLoc(path, ephemeral))
	} else {
		log.Infof("Attached to existing ledger store at %s", describeLoc(path, ephemeral))
	}

	return s, nil
}

func describeLoc(path string, ephemeral bool) string {
	if ephemeral {
		return "<in-memory>"
	}
	return path
}

func dataSourceName(path string) (dsn string, ephemeral bool) {
	if path == "" || path == ":memory:" {
		// A private in-memory database per handle, so two ephemeral
		// stores never share state; it lives as long as the handle's one
		// pooled connection.
		return ":memory:", true
	}
	return "file:" + path + "?cache=shared&_pragma=foreign_keys(1)", false
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return storeError(ErrDatabase, "failed to close sqlite handle", err)
	}
	return nil
}

func (s *Store) hasSchema() (bool, error) {
	var name string
	err := s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'meta'`,
	).Scan(&name)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, storeError(ErrDatabase, "failed to probe schema", err)
	default:
		return true, nil
	}
}

// applyMigrations runs every embedded *.up.sql file in lexicographic
// order, the way cmd/merge-sql-schemas walks a migrations directory
// against an in-memory handle before extracting a consolidated schema.
func (s *Store) applyMigrations() error {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return storeError(ErrDatabase, "failed to list migrations", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return storeError(ErrDatabase, fmt.Sprintf("failed to read migration %s", name), err)
		}
		if _, err := s.db.Exec(string(body)); err != nil {
			return storeError(ErrDatabase, fmt.Sprintf("failed to apply migration %s", name), err)
		}
		log.Debugf("Applied migration %s", name)
	}
	return nil
}

func (s *Store) initGenesis(networkMagic uint32) error {
	now := time.Now()
	return s.WriteTx(func(tx *sql.Tx) error {
		if err := setMeta(tx, metaKeyGenesisTime, fmt.Sprintf("%d", now.Unix())); err != nil {
			return err
		}
		genesisID := GenesisBlockID(networkMagic, now)
		return InsertBlock(tx, &BlockRecord{
			Height:      0,
			BlockID:     genesisID,
			PrevBlockID: ZeroHash,
			MerkleRoot:  ZeroHash,
			Timestamp:   now,
			MinedAt:     now,
		})
	})
}

// GenesisTime returns the wall-clock time the store was first
// initialized, used as the base for the deterministic block-timestamp
// schedule (genesis time + height*10min).
func (s *Store) GenesisTime() (time.Time, error) {
	var t time.Time
	err := s.ReadTx(func(tx *sql.Tx) error {
		v, err := getMeta(tx, metaKeyGenesisTime)
		if err != nil {
			return err
		}
		var unix int64
		if _, scanErr := fmt.Sscanf(v, "%d", &unix); scanErr != nil {
			return storeError(ErrCorrupt, "genesis_time meta value is not an integer", scanErr)
		}
		t = time.Unix(unix, 0)
		return nil
	})
	return t, err
}

// WriteTx runs fn inside a single *sql.Tx under the store's exclusive
// write lock, committing on success and rolling back on any error so
// that a failed validation never leaves partial state (spec.md section
// 4.1).
func (s *Store) WriteTx(fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return storeError(ErrDatabase, "failed to begin write transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeError(ErrDatabase, "failed to commit write transaction", err)
	}
	return nil
}

// ReadTx runs fn inside a read-only *sql.Tx under the store's shared
// read lock, always rolling back since no write is ever performed.
func (s *Store) ReadTx(fn func(*sql.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.Begin()
	if err != nil {
		return storeError(ErrDatabase, "failed to begin read transaction", err)
	}
	defer tx.Rollback()
	return fn(tx)
}
