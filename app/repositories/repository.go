package repositories

import (
	"fmt"
	"io"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Store owns the badger database and the repositories built on it.
type Store struct {
	db       *badger.DB
	dbPath   string
	isTestDB bool

	Posts    *BadgerPostRepository
	Users    *BadgerUserRepository
	Sessions *BadgerSessionRepository
	Views    *BadgerViewRepository
}

// Open opens (or creates) the database at path. An empty path or "test_db"
// opens a throwaway database in a fresh temporary directory.
func Open(path string) (*Store, error) {
	isTest := false
	if path == "" || path == "test_db" {
		tempPath, err := os.MkdirTemp("", "biostar_test_db_")
		if err != nil {
			return nil, fmt.Errorf("error creating temp dir: %w", err)
		}
		path = tempPath
		isTest = true
	}
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithNumVersionsToKeep(1)
	if isTest {
		opts = opts.WithSyncWrites(false).WithNumGoroutines(1)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	store := NewStore(db)
	store.dbPath = path
	store.isTestDB = isTest
	return store, nil
}

// NewStore wraps an already opened database.
func NewStore(db *badger.DB) *Store {
	return &Store{
		db:       db,
		Posts:    NewBadgerPostRepository(db),
		Users:    NewBadgerUserRepository(db),
		Sessions: NewBadgerSessionRepository(db),
		Views:    NewBadgerViewRepository(db),
	}
}

// DB exposes the underlying database.
func (s *Store) DB() *badger.DB {
	return s.db
}

// Backup writes a full backup of the database to w.
func (s *Store) Backup(w io.Writer) error {
	_, err := s.db.Backup(w, 0)
	return err
}

// Load restores a backup produced by Backup.
func (s *Store) Load(r io.Reader) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic occurred during restore: %v", rec)
		}
	}()
	if err := s.resetSequences(); err != nil {
		return err
	}
	return s.db.Load(r, 4)
}

// Clear drops every key.
func (s *Store) Clear() error {
	if err := s.resetSequences(); err != nil {
		return err
	}
	return s.db.DropAll()
}

// resetSequences drops the id leases so the next id is read from the stored
// sequence keys again.
func (s *Store) resetSequences() error {
	if err := s.releaseSequences(); err != nil {
		return err
	}
	s.Posts.seq = newSequence(s.db, PostSeqKey)
	s.Users.seq = newSequence(s.db, UserSeqKey)
	return nil
}

func (s *Store) releaseSequences() error {
	if err := s.Posts.seq.release(); err != nil {
		return fmt.Errorf("failed to release post ids: %w", err)
	}
	if err := s.Users.seq.release(); err != nil {
		return fmt.Errorf("failed to release user ids: %w", err)
	}
	return nil
}

// Close closes the database and removes throwaway test databases.
func (s *Store) Close() error {
	if err := s.releaseSequences(); err != nil {
		return err
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	if s.isTestDB {
		if err := os.RemoveAll(s.dbPath); err != nil {
			return fmt.Errorf("failed to cleanup test database: %w", err)
		}
	}
	return nil
}
