package repositories

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"biostar/app/models"

	"github.com/dgraph-io/badger/v4"
)

// BadgerPostRepository implements PostRepository using BadgerDB.
//
// Besides the post itself three keys are kept per post:
//
//	post:<id>            JSON encoded post
//	postuid:<uid>        id, for lookups by public identifier
//	thread:<root>:<id>   empty, lists a thread in id order
type BadgerPostRepository struct {
	db  *badger.DB
	seq *sequence
}

// NewBadgerPostRepository creates a new BadgerPostRepository
func NewBadgerPostRepository(db *badger.DB) *BadgerPostRepository {
	return &BadgerPostRepository{db: db, seq: newSequence(db, PostSeqKey)}
}

// Create stores a new post. A post without a root becomes the root of its own thread.
func (r *BadgerPostRepository) Create(post *models.Post) error {
	id, err := r.seq.next()
	if err != nil {
		return err
	}
	var stored models.Post
	err = update(r.db, func(txn *badger.Txn) error {
		stored = *post
		return insertPost(txn, id, &stored)
	})
	if err != nil {
		return err
	}
	*post = stored
	return nil
}

// CreateReply stores an answer or comment and bumps the counter it feeds in
// the same transaction: the root's reply count for answers, the parent's
// comment count for comments.
func (r *BadgerPostRepository) CreateReply(reply *models.Post) error {
	if reply.RootID == 0 || reply.ParentID == 0 {
		return fmt.Errorf("reply %q has no parent", reply.UID)
	}
	id, err := r.seq.next()
	if err != nil {
		return err
	}
	var stored models.Post
	err = update(r.db, func(txn *badger.Txn) error {
		stored = *reply
		if err := insertPost(txn, id, &stored); err != nil {
			return err
		}
		if stored.Type == models.TypeAnswer {
			return modifyPost(txn, stored.RootID, func(root *models.Post) {
				root.ReplyCount++
				root.LastEditAt = stored.CreatedAt
				root.LastEditUserID = stored.AuthorID
			})
		}
		return modifyPost(txn, stored.ParentID, func(parent *models.Post) {
			parent.CommentCount++
		})
	})
	if err != nil {
		return err
	}
	*reply = stored
	return nil
}

// RecountAnswers sets the reply count of a root to its number of open answers.
func (r *BadgerPostRepository) RecountAnswers(rootID int) (int, error) {
	count := 0
	err := update(r.db, func(txn *badger.Txn) error {
		count = 0
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := threadPrefix(rootID)
		var ids []int
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := strconv.Atoi(strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
			if err != nil {
				it.Close()
				return err
			}
			ids = append(ids, id)
		}
		it.Close()

		for _, id := range ids {
			var post models.Post
			if err := getEntity(txn, postKey(id), &post); err != nil {
				return err
			}
			if post.Type == models.TypeAnswer && post.IsOpen() {
				count++
			}
		}
		return modifyPost(txn, rootID, func(root *models.Post) {
			root.ReplyCount = count
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// insertPost writes a new post and its index keys under id.
func insertPost(txn *badger.Txn, id int, post *models.Post) error {
	uidKey := []byte(PostUIDKeyPrefix + post.UID)
	if _, err := txn.Get(uidKey); err == nil {
		return ErrDuplicate
	} else if err != badger.ErrKeyNotFound {
		return err
	}

	post.ID = id
	if post.RootID == 0 {
		post.RootID = id
	}
	if post.ParentID == 0 {
		post.ParentID = id
	}

	data, err := marshalEntity(post)
	if err != nil {
		return err
	}
	if err := txn.Set(postKey(id), data); err != nil {
		return err
	}
	if err := txn.Set(uidKey, []byte(strconv.Itoa(id))); err != nil {
		return err
	}
	return txn.Set(threadKey(post.RootID, id), nil)
}

// modifyPost loads post id, applies fn and writes it back.
func modifyPost(txn *badger.Txn, id int, fn func(post *models.Post)) error {
	var post models.Post
	if err := getEntity(txn, postKey(id), &post); err != nil {
		return err
	}
	fn(&post)
	data, err := marshalEntity(&post)
	if err != nil {
		return err
	}
	return txn.Set(postKey(id), data)
}

// GetByID retrieves a post by ID
func (r *BadgerPostRepository) GetByID(id int) (*models.Post, error) {
	var post models.Post
	err := r.db.View(func(txn *badger.Txn) error {
		return getEntity(txn, postKey(id), &post)
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// GetByUID retrieves a post by its public identifier
func (r *BadgerPostRepository) GetByUID(uid string) (*models.Post, error) {
	var post models.Post
	err := r.db.View(func(txn *badger.Txn) error {
		idStr, err := getString(txn, []byte(PostUIDKeyPrefix+uid))
		if err != nil {
			return err
		}
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return err
		}
		return getEntity(txn, postKey(id), &post)
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Update updates an existing post. The uid and thread of a post never change,
// and the view, reply and comment counters are only moved by the operations
// that own them.
func (r *BadgerPostRepository) Update(post *models.Post) error {
	return update(r.db, func(txn *badger.Txn) error {
		var existing models.Post
		if err := getEntity(txn, postKey(post.ID), &existing); err != nil {
			return err
		}
		post.UID = existing.UID
		post.RootID = existing.RootID
		post.ParentID = existing.ParentID
		post.ViewCount = existing.ViewCount
		post.ReplyCount = existing.ReplyCount
		post.CommentCount = existing.CommentCount

		data, err := marshalEntity(post)
		if err != nil {
			return err
		}
		return txn.Set(postKey(post.ID), data)
	})
}

// Delete removes a post and its index entries
func (r *BadgerPostRepository) Delete(id int) error {
	return update(r.db, func(txn *badger.Txn) error {
		var post models.Post
		if err := getEntity(txn, postKey(id), &post); err != nil {
			return err
		}
		if err := txn.Delete(postKey(id)); err != nil {
			return err
		}
		if err := txn.Delete([]byte(PostUIDKeyPrefix + post.UID)); err != nil {
			return err
		}
		return txn.Delete(threadKey(post.RootID, id))
	})
}

// ListTopLevel retrieves a page of thread starters
func (r *BadgerPostRepository) ListTopLevel(limit, offset int, includeDeleted bool, tags models.TagQuery) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(PostKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var post models.Post
			err := it.Item().Value(func(val []byte) error {
				return unmarshalEntity(val, &post)
			})
			if err != nil {
				return err
			}
			if !post.IsTopLevel() || (post.IsDeleted() && !includeDeleted) {
				continue
			}
			if !tags.IsZero() && (!post.IsOpen() || !tags.Matches(post.Tags())) {
				continue
			}
			posts = append(posts, &post)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Sticky != posts[j].Sticky {
			return posts[i].Sticky
		}
		return posts[i].LastEditAt.After(posts[j].LastEditAt)
	})

	if offset >= len(posts) {
		return []*models.Post{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(posts) {
		end = len(posts)
	}
	return posts[offset:end], nil
}

// ListThread retrieves the root post and all of its descendants
func (r *BadgerPostRepository) ListThread(rootID int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := threadPrefix(rootID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			id, err := strconv.Atoi(strings.TrimPrefix(key, string(prefix)))
			if err != nil {
				return err
			}
			var post models.Post
			if err := getEntity(txn, postKey(id), &post); err != nil {
				return err
			}
			posts = append(posts, &post)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}
