package repositories

import (
	"fmt"
	"time"

	"biostar/app/models"

	"github.com/dgraph-io/badger/v4"
)

// BadgerViewRepository remembers recent post views per address using expiring keys.
type BadgerViewRepository struct {
	db *badger.DB
}

// NewBadgerViewRepository creates a new BadgerViewRepository
func NewBadgerViewRepository(db *badger.DB) *BadgerViewRepository {
	return &BadgerViewRepository{db: db}
}

// RecordView implements ViewRepository. Marking the address and bumping the
// post's view count happen in one transaction.
func (r *BadgerViewRepository) RecordView(postID int, ip string, window time.Duration) (bool, error) {
	if ip == "" {
		ip = "0.0.0.0"
	}
	key := []byte(fmt.Sprintf("%s%010d:%s", ViewKeyPrefix, postID, ip))
	counted := false
	err := update(r.db, func(txn *badger.Txn) error {
		counted = false
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		entry := badger.NewEntry(key, []byte(time.Now().UTC().Format(time.RFC3339)))
		if window > 0 {
			entry = entry.WithTTL(window)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		if err := modifyPost(txn, postID, func(post *models.Post) {
			post.ViewCount++
		}); err != nil {
			return err
		}
		counted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return counted, nil
}
