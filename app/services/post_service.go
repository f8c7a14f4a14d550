package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"biostar/app/markdown"
	"biostar/app/models"
	"biostar/app/repositories"
)

// DefaultViewWindow is how long a repeat visit from one address is not counted again.
const DefaultViewWindow = 5 * time.Minute

// PostService handles business logic for forum posts
type PostService struct {
	postRepo   repositories.PostRepository
	userRepo   repositories.UserRepository
	viewRepo   repositories.ViewRepository
	viewWindow time.Duration
	now        func() time.Time
}

// NewPostService creates a new PostService
func NewPostService(postRepo repositories.PostRepository, userRepo repositories.UserRepository, viewRepo repositories.ViewRepository) *PostService {
	return &PostService{
		postRepo:   postRepo,
		userRepo:   userRepo,
		viewRepo:   viewRepo,
		viewWindow: DefaultViewWindow,
		now:        time.Now,
	}
}

// SetViewWindow changes the view deduplication window.
func (s *PostService) SetViewWindow(d time.Duration) {
	s.viewWindow = d
}

// CreatePost starts a new thread.
func (s *PostService) CreatePost(author *models.User, form *models.PostForm) (*models.Post, error) {
	if !author.IsAuthenticated() {
		return nil, ErrForbidden
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}

	html, err := markdown.Render(form.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to render content: %w", err)
	}

	post := &models.Post{
		Title:     form.Title,
		Type:      form.Type,
		Status:    models.StatusOpen,
		AuthorID:  author.ID,
		Content:   form.Content,
		HTML:      html,
		TagVal:    tagValue(form.Type, form.Tags),
		CreatedAt: s.now(),
	}
	post.BeforeCreate()
	if err := post.Validate(); err != nil {
		return nil, fmt.Errorf("invalid post: %w", err)
	}
	if err := s.postRepo.Create(post); err != nil {
		return nil, err
	}
	post.Author = author
	return post, nil
}

// tagValue normalises tags; top-level posts other than questions always carry their type as a tag.
func tagValue(typ models.PostType, text string) string {
	tags := models.SplitTags(text)
	if typ.IsTopLevel() && typ != models.TypeQuestion {
		required := typ.Slug()
		found := false
		for _, tag := range tags {
			if tag == required {
				found = true
				break
			}
		}
		if !found {
			tags = append(tags, required)
		}
	}
	return strings.Join(tags, ",")
}

// CreateAnswer adds a reply to the post named by form.ParentUID. Replies to a
// top-level post are answers, replies to answers or comments are comments.
func (s *PostService) CreateAnswer(author *models.User, form *models.AnswerForm) (*models.Post, error) {
	if !author.IsAuthenticated() {
		return nil, ErrForbidden
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}

	parent, err := s.postRepo.GetByUID(form.ParentUID)
	if err != nil {
		return nil, err
	}
	if parent.IsDeleted() {
		return nil, repositories.ErrNotFound
	}
	root := parent
	if !parent.IsRoot() {
		if root, err = s.postRepo.GetByID(parent.RootID); err != nil {
			return nil, fmt.Errorf("failed to load thread root: %w", err)
		}
	}
	if !root.IsOpen() {
		return nil, ErrPostClosed
	}

	typ := models.TypeComment
	if parent.IsTopLevel() {
		typ = models.TypeAnswer
	}

	html, err := markdown.Render(form.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to render content: %w", err)
	}

	now := s.now()
	reply := &models.Post{
		Title:     fmt.Sprintf("%s: %s", typ.String()[:1], truncate(root.Title, 80)),
		Type:      typ,
		Status:    models.StatusOpen,
		AuthorID:  author.ID,
		RootID:    root.ID,
		ParentID:  parent.ID,
		Content:   form.Content,
		HTML:      html,
		CreatedAt: now,
	}
	reply.BeforeCreate()
	if err := reply.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reply: %w", err)
	}
	if err := s.postRepo.CreateReply(reply); err != nil {
		return nil, err
	}

	reply.Author = author
	return reply, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// GetThread loads the thread containing the post uid. Deleted posts are only
// visible to moderators.
func (s *PostService) GetThread(uid string, viewer *models.User) (*Thread, error) {
	focus, err := s.postRepo.GetByUID(uid)
	if err != nil {
		return nil, err
	}
	moderator := viewer.CanModerate()
	if focus.IsDeleted() && !moderator {
		return nil, repositories.ErrNotFound
	}

	posts, err := s.postRepo.ListThread(focus.RootID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}

	visible := posts[:0]
	for _, post := range posts {
		if post.IsDeleted() && !moderator {
			continue
		}
		visible = append(visible, post)
	}
	sortThread(visible)
	if err := s.attachAuthors(visible); err != nil {
		return nil, err
	}

	thread := &Thread{Tree: BuildTree(visible)}
	for _, post := range visible {
		switch {
		case post.ID == focus.RootID:
			thread.Post = post
		case post.IsAnswer():
			thread.Answers = append(thread.Answers, post)
		}
		if post.ID == focus.ID {
			thread.Focus = post
		}
	}
	if thread.Post == nil {
		return nil, repositories.ErrNotFound
	}
	return thread, nil
}

// sortThread orders posts by type, accepted first, then votes, then age.
func sortThread(posts []*models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.HasAccepted != b.HasAccepted {
			return a.HasAccepted
		}
		if a.VoteCount != b.VoteCount {
			return a.VoteCount > b.VoteCount
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func (s *PostService) attachAuthors(posts []*models.Post) error {
	cache := make(map[int]*models.User)
	for _, post := range posts {
		user, ok := cache[post.AuthorID]
		if !ok {
			var err error
			user, err = s.userRepo.GetByID(post.AuthorID)
			if err != nil && !errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("failed to load author %d: %w", post.AuthorID, err)
			}
			cache[post.AuthorID] = user
		}
		post.Author = user
	}
	return nil
}

// RecordView counts a view of post from ip once per view window and reports
// whether the view was counted.
func (s *PostService) RecordView(post *models.Post, ip string) (bool, error) {
	counted, err := s.viewRepo.RecordView(post.ID, ip, s.viewWindow)
	if err != nil || !counted {
		return false, err
	}
	fresh, err := s.postRepo.GetByID(post.ID)
	if err != nil {
		return false, err
	}
	post.ViewCount = fresh.ViewCount
	return true, nil
}

// ListPosts retrieves a page of thread starters. A non-empty tag query such
// as "bwa,samtools" or "rna-seq+deseq2!" narrows the page to open posts.
func (s *PostService) ListPosts(page, perPage int, viewer *models.User, tags string) ([]*models.Post, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	posts, err := s.postRepo.ListTopLevel(perPage, offset, viewer.CanModerate(), models.ParseTagQuery(tags))
	if err != nil {
		return nil, err
	}
	if err := s.attachAuthors(posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Moderate changes the status of a post. Only moderators may do this.
func (s *PostService) Moderate(moderator *models.User, uid string, status models.PostStatus) (*models.Post, error) {
	if !moderator.CanModerate() {
		return nil, ErrForbidden
	}
	post, err := s.postRepo.GetByUID(uid)
	if err != nil {
		return nil, err
	}

	post.Status = status
	post.LastEditAt = s.now()
	post.LastEditUserID = moderator.ID
	if err := s.postRepo.Update(post); err != nil {
		return nil, err
	}

	if post.IsAnswer() {
		if _, err := s.postRepo.RecountAnswers(post.RootID); err != nil {
			return nil, err
		}
	}
	return post, nil
}
