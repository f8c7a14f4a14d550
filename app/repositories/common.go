package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const (
	// Key prefixes for different entity types
	PostKeyPrefix     = "post:"
	PostUIDKeyPrefix  = "postuid:"
	ThreadKeyPrefix   = "thread:"
	UserKeyPrefix     = "user:"
	UsernameKeyPrefix = "username:"
	SessionKeyPrefix  = "session:"
	ViewKeyPrefix     = "view:"

	// Sequence keys for auto-incrementing IDs
	PostSeqKey = "seq:post"
	UserSeqKey = "seq:user"
)

// IDs are zero padded so that badger's lexicographic key order matches numeric order.
func idKey(prefix string, id int) []byte {
	return []byte(fmt.Sprintf("%s%010d", prefix, id))
}

func postKey(id int) []byte {
	return idKey(PostKeyPrefix, id)
}

func threadPrefix(rootID int) []byte {
	return []byte(fmt.Sprintf("%s%010d:", ThreadKeyPrefix, rootID))
}

func threadKey(rootID, id int) []byte {
	return []byte(fmt.Sprintf("%s%010d:%010d", ThreadKeyPrefix, rootID, id))
}

// maxTxnRetries bounds how often a write is replayed after badger reports
// that a concurrent transaction changed a key it read.
const maxTxnRetries = 100

// update runs fn in a read-write transaction and replays it on ErrConflict.
// fn must reset any state it sets, since it may run more than once.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxTxnRetries, err)
}

// sequence hands out ids from a badger Sequence leased on first use.
type sequence struct {
	db   *badger.DB
	key  []byte
	once sync.Once
	seq  *badger.Sequence
	err  error
}

func newSequence(db *badger.DB, key string) *sequence {
	return &sequence{db: db, key: []byte(key)}
}

// next returns the next id, starting at 1.
func (s *sequence) next() (int, error) {
	s.once.Do(func() {
		s.seq, s.err = s.db.GetSequence(s.key, 100)
	})
	if s.err != nil {
		return 0, fmt.Errorf("failed to lease %s: %w", s.key, s.err)
	}
	n, err := s.seq.Next()
	if err != nil {
		return 0, err
	}
	return int(n) + 1, nil
}

// release hands unused ids back so the next process continues without a gap.
func (s *sequence) release() error {
	if s.seq == nil {
		return nil
	}
	return s.seq.Release()
}

// getEntity loads the JSON value stored under key, mapping a missing key to ErrNotFound.
func getEntity(txn *badger.Txn, key []byte, entity interface{}) error {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return unmarshalEntity(val, entity)
	})
}

// getString loads a plain string value (used by secondary indexes).
func getString(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// marshalEntity marshals an entity to JSON
func marshalEntity(entity interface{}) ([]byte, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}
	return data, nil
}

// unmarshalEntity unmarshals JSON data into an entity
func unmarshalEntity(data []byte, entity interface{}) error {
	if err := json.Unmarshal(data, entity); err != nil {
		return fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return nil
}
