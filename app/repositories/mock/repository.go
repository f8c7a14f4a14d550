package mock

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"biostar/app/models"
	"biostar/app/repositories"
)

type PostRepository struct {
	posts  map[int]*models.Post
	nextID int
	mutex  sync.RWMutex
}

type UserRepository struct {
	users  map[int]*models.User
	nextID int
	mutex  sync.RWMutex
}

type SessionRepository struct {
	sessions map[string]*models.Session
	mutex    sync.RWMutex
}

type ViewRepository struct {
	posts *PostRepository
	seen  map[string]time.Time
	mutex sync.Mutex
}

func NewPostRepository() *PostRepository {
	return &PostRepository{
		posts:  make(map[int]*models.Post),
		nextID: 1,
	}
}

func (m *PostRepository) Clear() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.posts = make(map[int]*models.Post)
	m.nextID = 1
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:  make(map[int]*models.User),
		nextID: 1,
	}
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]*models.Session)}
}

// NewViewRepository counts views into the posts held by posts.
func NewViewRepository(posts *PostRepository) *ViewRepository {
	return &ViewRepository{posts: posts, seen: make(map[string]time.Time)}
}

// Stored values are copies so callers cannot mutate repository state without Update.
func copyPost(p *models.Post) *models.Post {
	c := *p
	return &c
}

// PostRepository implementation
func (m *PostRepository) Create(post *models.Post) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, existing := range m.posts {
		if existing.UID == post.UID {
			return repositories.ErrDuplicate
		}
	}
	post.ID = m.nextID
	m.nextID++
	if post.RootID == 0 {
		post.RootID = post.ID
	}
	if post.ParentID == 0 {
		post.ParentID = post.ID
	}
	m.posts[post.ID] = copyPost(post)
	return nil
}

func (m *PostRepository) GetByID(id int) (*models.Post, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	post, exists := m.posts[id]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	return copyPost(post), nil
}

func (m *PostRepository) GetByUID(uid string) (*models.Post, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, post := range m.posts {
		if post.UID == uid {
			return copyPost(post), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *PostRepository) Update(post *models.Post) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	existing, exists := m.posts[post.ID]
	if !exists {
		return repositories.ErrNotFound
	}
	post.UID = existing.UID
	post.RootID = existing.RootID
	post.ParentID = existing.ParentID
	post.ViewCount = existing.ViewCount
	post.ReplyCount = existing.ReplyCount
	post.CommentCount = existing.CommentCount
	m.posts[post.ID] = copyPost(post)
	return nil
}

func (m *PostRepository) CreateReply(reply *models.Post) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if reply.RootID == 0 || reply.ParentID == 0 {
		return fmt.Errorf("reply %q has no parent", reply.UID)
	}
	root, ok := m.posts[reply.RootID]
	if !ok {
		return repositories.ErrNotFound
	}
	parent, ok := m.posts[reply.ParentID]
	if !ok {
		return repositories.ErrNotFound
	}
	for _, existing := range m.posts {
		if existing.UID == reply.UID {
			return repositories.ErrDuplicate
		}
	}
	reply.ID = m.nextID
	m.nextID++
	m.posts[reply.ID] = copyPost(reply)
	if reply.Type == models.TypeAnswer {
		root.ReplyCount++
		root.LastEditAt = reply.CreatedAt
		root.LastEditUserID = reply.AuthorID
	} else {
		parent.CommentCount++
	}
	return nil
}

func (m *PostRepository) RecountAnswers(rootID int) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	root, ok := m.posts[rootID]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	count := 0
	for _, post := range m.posts {
		if post.RootID == rootID && post.IsAnswer() && post.IsOpen() {
			count++
		}
	}
	root.ReplyCount = count
	return count, nil
}

func (m *PostRepository) Delete(id int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.posts[id]; !exists {
		return repositories.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

func (m *PostRepository) ListTopLevel(limit, offset int, includeDeleted bool, tags models.TagQuery) ([]*models.Post, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var posts []*models.Post
	for _, post := range m.posts {
		if !post.IsTopLevel() || (post.IsDeleted() && !includeDeleted) {
			continue
		}
		if !tags.IsZero() && (!post.IsOpen() || !tags.Matches(post.Tags())) {
			continue
		}
		posts = append(posts, copyPost(post))
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].Sticky != posts[j].Sticky {
			return posts[i].Sticky
		}
		if !posts[i].LastEditAt.Equal(posts[j].LastEditAt) {
			return posts[i].LastEditAt.After(posts[j].LastEditAt)
		}
		return posts[i].ID > posts[j].ID
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

func (m *PostRepository) ListThread(rootID int) ([]*models.Post, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var posts []*models.Post
	for _, post := range m.posts {
		if post.RootID == rootID {
			posts = append(posts, copyPost(post))
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].ID < posts[j].ID
	})
	return posts, nil
}

// UserRepository implementation
func (m *UserRepository) Create(user *models.User) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, user.Username) {
			return repositories.ErrDuplicate
		}
	}
	user.ID = m.nextID
	m.nextID++
	c := *user
	m.users[user.ID] = &c
	return nil
}

func (m *UserRepository) GetByID(id int) (*models.User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	user, exists := m.users[id]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	c := *user
	return &c, nil
}

func (m *UserRepository) GetByUsername(username string) (*models.User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, user := range m.users {
		if strings.EqualFold(user.Username, username) {
			c := *user
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *UserRepository) Update(user *models.User) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	existing, exists := m.users[user.ID]
	if !exists {
		return repositories.ErrNotFound
	}
	user.Username = existing.Username
	c := *user
	m.users[user.ID] = &c
	return nil
}

// SessionRepository implementation
func (m *SessionRepository) Create(session *models.Session) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if session.Expired(time.Now()) {
		return repositories.ErrNotFound
	}
	c := *session
	m.sessions[session.Token] = &c
	return nil
}

func (m *SessionRepository) Get(token string) (*models.Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	session, exists := m.sessions[token]
	if !exists || session.Expired(time.Now()) {
		return nil, repositories.ErrNotFound
	}
	c := *session
	return &c, nil
}

func (m *SessionRepository) Delete(token string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, token)
	return nil
}

// ViewRepository implementation
func (m *ViewRepository) RecordView(postID int, ip string, window time.Duration) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if ip == "" {
		ip = "0.0.0.0"
	}
	key := fmt.Sprintf("%d:%s", postID, ip)
	now := time.Now()
	if last, ok := m.seen[key]; ok && now.Sub(last) < window {
		return false, nil
	}

	m.posts.mutex.Lock()
	defer m.posts.mutex.Unlock()
	post, ok := m.posts.posts[postID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	post.ViewCount++
	m.seen[key] = now
	return true, nil
}
