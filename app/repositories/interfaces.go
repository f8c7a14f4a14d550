package repositories

import (
	"errors"
	"time"

	"biostar/app/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// PostRepository defines the interface for post data access
type PostRepository interface {
	Create(post *models.Post) error
	GetByID(id int) (*models.Post, error)
	GetByUID(uid string) (*models.Post, error)
	// Update rewrites a post. Its uid, thread links and counters are kept.
	Update(post *models.Post) error
	Delete(id int) error
	// CreateReply stores an answer or comment and, atomically with it, bumps
	// the root's reply count (answers) or the parent's comment count (comments).
	CreateReply(reply *models.Post) error
	// RecountAnswers stores and returns the number of open answers under rootID.
	RecountAnswers(rootID int) (int, error)
	// ListTopLevel returns thread starters, sticky first, then most recently edited.
	// Deleted posts are skipped unless includeDeleted is set. A non-zero tag
	// query keeps only open posts it matches.
	ListTopLevel(limit, offset int, includeDeleted bool, tags models.TagQuery) ([]*models.Post, error)
	// ListThread returns every post whose root is rootID, including the root, by ID.
	ListThread(rootID int) ([]*models.Post, error)
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id int) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	Update(user *models.User) error
}

// SessionRepository stores login sessions until they expire.
type SessionRepository interface {
	Create(session *models.Session) error
	Get(token string) (*models.Session, error)
	Delete(token string) error
}

// ViewRepository deduplicates post views per client address.
type ViewRepository interface {
	// RecordView returns true when ip has not viewed postID within window,
	// in which case the post's view count has been incremented.
	RecordView(postID int, ip string, window time.Duration) (bool, error)
}
