package repositories

import (
	"time"

	"biostar/app/models"

	"github.com/dgraph-io/badger/v4"
)

// BadgerSessionRepository stores sessions as badger entries that expire with the session.
type BadgerSessionRepository struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerSessionRepository creates a new BadgerSessionRepository
func NewBadgerSessionRepository(db *badger.DB) *BadgerSessionRepository {
	return &BadgerSessionRepository{db: db, now: time.Now}
}

// Create stores a session; ExpiresAt must be in the future.
func (r *BadgerSessionRepository) Create(session *models.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return ErrNotFound
	}
	data, err := marshalEntity(session)
	if err != nil {
		return err
	}
	return update(r.db, func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(SessionKeyPrefix+session.Token), data).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// Get returns a live session; expired sessions are reported as ErrNotFound.
func (r *BadgerSessionRepository) Get(token string) (*models.Session, error) {
	var session models.Session
	err := r.db.View(func(txn *badger.Txn) error {
		return getEntity(txn, []byte(SessionKeyPrefix+token), &session)
	})
	if err != nil {
		return nil, err
	}
	// badger expiry has second granularity
	if session.Expired(r.now()) {
		return nil, ErrNotFound
	}
	return &session, nil
}

// Delete removes a session; deleting an unknown token is not an error.
func (r *BadgerSessionRepository) Delete(token string) error {
	return update(r.db, func(txn *badger.Txn) error {
		return txn.Delete([]byte(SessionKeyPrefix + token))
	})
}
