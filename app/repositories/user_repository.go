package repositories

import (
	"strconv"
	"strings"

	"biostar/app/models"

	"github.com/dgraph-io/badger/v4"
)

// BadgerUserRepository implements UserRepository using BadgerDB
type BadgerUserRepository struct {
	db  *badger.DB
	seq *sequence
}

// NewBadgerUserRepository creates a new BadgerUserRepository
func NewBadgerUserRepository(db *badger.DB) *BadgerUserRepository {
	return &BadgerUserRepository{db: db, seq: newSequence(db, UserSeqKey)}
}

func usernameKey(username string) []byte {
	return []byte(UsernameKeyPrefix + strings.ToLower(username))
}

// Create stores a new user; usernames are unique regardless of case.
func (r *BadgerUserRepository) Create(user *models.User) error {
	id, err := r.seq.next()
	if err != nil {
		return err
	}
	err = update(r.db, func(txn *badger.Txn) error {
		if _, err := txn.Get(usernameKey(user.Username)); err == nil {
			return ErrDuplicate
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		stored := *user
		stored.ID = id
		data, err := marshalEntity(&stored)
		if err != nil {
			return err
		}
		if err := txn.Set(idKey(UserKeyPrefix, id), data); err != nil {
			return err
		}
		return txn.Set(usernameKey(user.Username), []byte(strconv.Itoa(id)))
	})
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

// GetByID retrieves a user by ID
func (r *BadgerUserRepository) GetByID(id int) (*models.User, error) {
	var user models.User
	err := r.db.View(func(txn *badger.Txn) error {
		return getEntity(txn, idKey(UserKeyPrefix, id), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername retrieves a user by case-insensitive username
func (r *BadgerUserRepository) GetByUsername(username string) (*models.User, error) {
	var user models.User
	err := r.db.View(func(txn *badger.Txn) error {
		idStr, err := getString(txn, usernameKey(username))
		if err != nil {
			return err
		}
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return err
		}
		return getEntity(txn, idKey(UserKeyPrefix, id), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update rewrites an existing user. Usernames cannot be changed.
func (r *BadgerUserRepository) Update(user *models.User) error {
	return update(r.db, func(txn *badger.Txn) error {
		var existing models.User
		if err := getEntity(txn, idKey(UserKeyPrefix, user.ID), &existing); err != nil {
			return err
		}
		user.Username = existing.Username

		data, err := marshalEntity(user)
		if err != nil {
			return err
		}
		return txn.Set(idKey(UserKeyPrefix, user.ID), data)
	})
}
