// Package badger implements store.Store on BadgerDB (LSM tree).
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"payscope/pkg/errs"
	"payscope/pkg/store"
)

// Record key prefixes. Each record class gets its own keyspace.
const (
	prefixSession = byte('s')
	prefixFile    = byte('f')
	prefixJob     = byte('j')
)

// Store implements store.Store using BadgerDB.
type Store struct {
	db *badger.DB
}

// Config holds BadgerDB configuration.
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = conservative default)
	MaxMemoryMB int64
}

// New opens a BadgerDB-backed record store.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// Metadata records are tiny and low-volume; keep Badger's memory
	// footprint far below its defaults.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumCompactors(2).
		WithValueThreshold(1024).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{db: db}, nil
}

// PutSession creates or replaces a session record.
func (s *Store) PutSession(ctx context.Context, rec *store.SessionRecord) error {
	return s.put(ctx, makeKey(prefixSession, rec.ID), rec)
}

// GetSession returns the session or a NotFound error.
func (s *Store) GetSession(ctx context.Context, id string) (*store.SessionRecord, error) {
	var rec store.SessionRecord
	if err := s.get(ctx, makeKey(prefixSession, id), &rec); err != nil {
		return nil, notFoundIfMissing(err, "session", id)
	}
	// Hash collision guard: the key is only 8 bytes of the ID's hash.
	if rec.ID != id {
		return nil, errs.New(errs.KindNotFound, "store", "session %q not found", id)
	}
	return &rec, nil
}

// PutFile creates a file record.
func (s *Store) PutFile(ctx context.Context, rec *store.FileRecord) error {
	return s.put(ctx, makeKey(prefixFile, rec.ID), rec)
}

// GetFile returns the file record or a NotFound error.
func (s *Store) GetFile(ctx context.Context, id string) (*store.FileRecord, error) {
	var rec store.FileRecord
	if err := s.get(ctx, makeKey(prefixFile, id), &rec); err != nil {
		return nil, notFoundIfMissing(err, "file", id)
	}
	if rec.ID != id {
		return nil, errs.New(errs.KindNotFound, "store", "file %q not found", id)
	}
	return &rec, nil
}

// GetJob returns the job for a file or a NotFound error.
func (s *Store) GetJob(ctx context.Context, fileID string) (*store.JobRecord, error) {
	var rec store.JobRecord
	if err := s.get(ctx, makeKey(prefixJob, fileID), &rec); err != nil {
		return nil, notFoundIfMissing(err, "job", fileID)
	}
	if rec.FileID != fileID {
		return nil, errs.New(errs.KindNotFound, "store", "job %q not found", fileID)
	}
	return &rec, nil
}

// UpdateJob applies fn inside a Badger read-write transaction. Badger
// serializes conflicting transactions, so the read-modify-write is a true
// compare-and-swap: two concurrent queued->running transitions cannot both
// commit.
func (s *Store) UpdateJob(ctx context.Context, fileID string, fn func(cur *store.JobRecord) (*store.JobRecord, error)) (*store.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := makeKey(prefixJob, fileID)
	var updated *store.JobRecord

	err := s.db.Update(func(txn *badger.Txn) error {
		var cur *store.JobRecord
		item, err := txn.Get(key)
		switch {
		case err == nil:
			var rec store.JobRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("failed to decode job record: %w", err)
			}
			if rec.FileID == fileID {
				cur = &rec
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// first update creates the record
		default:
			return err
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil {
			// fn declined the update; leave the record untouched
			updated = cur
			return nil
		}
		updated = next

		value, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode job record: %w", err)
		}
		return txn.Set(key, value)
	})
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return nil, errs.Wrap(err, errs.KindUnavailable, "store", "job record contended")
		}
		return nil, err
	}
	return updated, nil
}

// ListSessions returns all session records, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]*store.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sessions []*store.SessionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixSession}

		it := txn.NewIterator(opts)
		defer it.Close()

		var iterCount int
		for it.Rewind(); it.Valid(); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}

			var rec store.SessionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			sessions = append(sessions, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Close shuts down BadgerDB cleanly.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection.
func (s *Store) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

func (s *Store) put(ctx context.Context, key []byte, rec interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *Store) get(ctx context.Context, key []byte, rec interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, rec)
		})
	})
}

func notFoundIfMissing(err error, kind, id string) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return errs.New(errs.KindNotFound, "store", "%s %q not found", kind, id)
	}
	return err
}

// makeKey builds a record key: [prefix (1 byte)][id hash (8 bytes)].
func makeKey(prefix byte, id string) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:9], xxhash.Sum64String(id))
	return key
}
