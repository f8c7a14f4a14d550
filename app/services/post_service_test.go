package services

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"biostar/app/models"
	"biostar/app/repositories"
	"biostar/app/repositories/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	service   *PostService
	posts     *mock.PostRepository
	users     *mock.UserRepository
	author    *models.User
	moderator *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		posts: mock.NewPostRepository(),
		users: mock.NewUserRepository(),
	}
	f.service = NewPostService(f.posts, f.users, mock.NewViewRepository(f.posts))

	f.author = &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}
	require.NoError(t, f.users.Create(f.author))
	f.moderator = &models.User{Username: "mod", Email: "mod@example.com", PasswordHash: "x", IsModerator: true}
	require.NoError(t, f.users.Create(f.moderator))
	return f
}

func (f *fixture) question(t *testing.T) *models.Post {
	t.Helper()
	post, err := f.service.CreatePost(f.author, &models.PostForm{
		Title:   "How do I align reads?",
		Type:    models.TypeQuestion,
		Tags:    "bwa, alignment",
		Content: "I have paired end reads and a reference genome.",
	})
	require.NoError(t, err)
	return post
}

func (f *fixture) reply(t *testing.T, parentUID, content string) *models.Post {
	t.Helper()
	post, err := f.service.CreateAnswer(f.author, &models.AnswerForm{ParentUID: parentUID, Content: content})
	require.NoError(t, err)
	return post
}

func TestPostService(t *testing.T) {
	t.Run("create post", func(t *testing.T) {
		f := newFixture(t)
		post := f.question(t)

		assert.Equal(t, 1, post.ID)
		assert.Equal(t, post.ID, post.RootID)
		assert.Equal(t, post.ID, post.ParentID)
		assert.Equal(t, models.StatusOpen, post.Status)
		assert.Equal(t, "bwa,alignment", post.TagVal)
		assert.Contains(t, post.HTML, "<p>I have paired end reads")
		assert.NotEmpty(t, post.UID)
		assert.Same(t, f.author, post.Author)
	})

	t.Run("non question posts carry their type as a tag", func(t *testing.T) {
		f := newFixture(t)
		post, err := f.service.CreatePost(f.author, &models.PostForm{
			Title:   "Postdoc position in genomics",
			Type:    models.TypeJob,
			Tags:    "postdoc",
			Content: "We are hiring a postdoc to work on genomes.",
		})
		require.NoError(t, err)
		assert.Equal(t, "postdoc,job", post.TagVal)
	})

	t.Run("multi word types are tagged with one slug", func(t *testing.T) {
		f := newFixture(t)
		post, err := f.service.CreatePost(f.author, &models.PostForm{
			Title:   "Sequencing core open house",
			Type:    models.TypeBoard,
			Tags:    "events",
			Content: "The sequencing core opens its doors on Friday.",
		})
		require.NoError(t, err)
		assert.Equal(t, "events,bulletin-board", post.TagVal)
		assert.Equal(t, []string{"events", "bulletin-board"}, post.Tags())

		posts, err := f.service.ListPosts(1, 10, nil, "bulletin-board")
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.Equal(t, post.ID, posts[0].ID)
	})

	t.Run("anonymous users cannot post", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreatePost(nil, &models.PostForm{Title: "Valid title", Content: "Valid content here"})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("validation errors", func(t *testing.T) {
		f := newFixture(t)
		form := &models.PostForm{Title: "", Content: "short"}
		_, err := f.service.CreatePost(f.author, form)
		assert.ErrorIs(t, err, models.ErrInvalidForm)
		assert.True(t, form.Errors.Has("title"))
		assert.True(t, form.Errors.Has("content"))
	})

	t.Run("answer and comment", func(t *testing.T) {
		f := newFixture(t)
		question := f.question(t)
		answer := f.reply(t, question.UID, "Use bwa mem with default settings.")
		comment := f.reply(t, answer.UID, "Which version of bwa though?")

		assert.Equal(t, models.TypeAnswer, answer.Type)
		assert.Equal(t, question.ID, answer.RootID)
		assert.Equal(t, question.ID, answer.ParentID)
		assert.True(t, strings.HasPrefix(answer.Title, "A: How do I align"))

		assert.Equal(t, models.TypeComment, comment.Type)
		assert.Equal(t, question.ID, comment.RootID)
		assert.Equal(t, answer.ID, comment.ParentID)
		assert.True(t, strings.HasPrefix(comment.Title, "C: "))

		root, err := f.posts.GetByID(question.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, root.ReplyCount)

		parent, err := f.posts.GetByID(answer.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, parent.CommentCount)
	})

	t.Run("closed threads refuse replies", func(t *testing.T) {
		f := newFixture(t)
		question := f.question(t)
		answer := f.reply(t, question.UID, "Use bwa mem with default settings.")

		_, err := f.service.Moderate(f.moderator, question.UID, models.StatusClosed)
		require.NoError(t, err)

		_, err = f.service.CreateAnswer(f.author, &models.AnswerForm{ParentUID: question.UID, Content: "A late answer to this."})
		assert.ErrorIs(t, err, ErrPostClosed)
		_, err = f.service.CreateAnswer(f.author, &models.AnswerForm{ParentUID: answer.UID, Content: "A late comment to this."})
		assert.ErrorIs(t, err, ErrPostClosed)
	})

	t.Run("reply to missing parent", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreateAnswer(f.author, &models.AnswerForm{ParentUID: "nope", Content: "Some valid content."})
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("empty answer is a form error", func(t *testing.T) {
		f := newFixture(t)
		question := f.question(t)
		form := &models.AnswerForm{ParentUID: question.UID, Content: "   "}
		_, err := f.service.CreateAnswer(f.author, form)
		assert.ErrorIs(t, err, models.ErrInvalidForm)
		assert.True(t, form.Errors.Has("content"))
	})

	t.Run("get thread", func(t *testing.T) {
		f := newFixture(t)
		question := f.question(t)
		first := f.reply(t, question.UID, "First answer with some detail.")
		second := f.reply(t, question.UID, "Second answer with more detail.")
		comment := f.reply(t, first.UID, "A comment on the first answer.")

		stored, err := f.posts.GetByID(second.ID)
		require.NoError(t, err)
		stored.VoteCount = 5
		require.NoError(t, f.posts.Update(stored))

		thread, err := f.service.GetThread(comment.UID, nil)
		require.NoError(t, err)
		assert.Equal(t, question.ID, thread.Post.ID)
		assert.Equal(t, comment.ID, thread.Focus.ID)
		require.Len(t, thread.Answers, 2)
		assert.Equal(t, second.ID, thread.Answers[0].ID, "higher votes sort first")
		assert.Equal(t, first.ID, thread.Answers[1].ID)
		require.Len(t, thread.Tree.Children(first.ID), 1)
		assert.Equal(t, comment.ID, thread.Tree.Children(first.ID)[0].ID)
		assert.Empty(t, thread.Tree.Children(second.ID))
		assert.Equal(t, "alice", thread.Post.Author.Username)
	})

	t.Run("deleted posts are hidden from regular users", func(t *testing.T) {
		f := newFixture(t)
		question := f.question(t)
		answer := f.reply(t, question.UID, "An answer that gets deleted.")
		_, err := f.service.Moderate(f.moderator, answer.UID, models.StatusDeleted)
		require.NoError(t, err)

		thread, err := f.service.GetThread(question.UID, f.author)
		require.NoError(t, err)
		assert.Empty(t, thread.Answers)
		assert.Equal(t, 0, thread.Post.ReplyCount)

		thread, err = f.service.GetThread(question.UID, f.moderator)
		require.NoError(t, err)
		assert.Len(t, thread.Answers, 1)

		_, err = f.service.GetThread(answer.UID, nil)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("moderation requires a moderator", func(t *testing.T) {
		f := newFixture(t)
		question := f.question(t)
		_, err := f.service.Moderate(f.author, question.UID, models.StatusClosed)
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = f.service.Moderate(nil, question.UID, models.StatusClosed)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("record view once per window", func(t *testing.T) {
		f := newFixture(t)
		question := f.question(t)

		counted, err := f.service.RecordView(question, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, counted)
		counted, err = f.service.RecordView(question, "10.0.0.1")
		require.NoError(t, err)
		assert.False(t, counted)
		counted, err = f.service.RecordView(question, "10.0.0.2")
		require.NoError(t, err)
		assert.True(t, counted)

		assert.Equal(t, 2, question.ViewCount)
		stored, err := f.posts.GetByID(question.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.ViewCount)

		f.service.SetViewWindow(0)
		counted, err = f.service.RecordView(question, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, counted)
	})

	t.Run("list posts", func(t *testing.T) {
		f := newFixture(t)
		base := time.Now()
		for i := 0; i < 5; i++ {
			f.service.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
			f.question(t)
		}

		posts, err := f.service.ListPosts(1, 3, nil, "") // page 1, 3 per page
		assert.NoError(t, err)
		assert.Equal(t, 3, len(posts))
		assert.Equal(t, 5, posts[0].ID, "most recently active first")

		posts, err = f.service.ListPosts(2, 3, nil, "") // page 2, 3 per page
		assert.NoError(t, err)
		assert.Equal(t, 2, len(posts))
	})

	t.Run("list posts by tag", func(t *testing.T) {
		f := newFixture(t)
		create := func(title, tags string) *models.Post {
			post, err := f.service.CreatePost(f.author, &models.PostForm{
				Title:   title,
				Type:    models.TypeQuestion,
				Tags:    tags,
				Content: "Some question body that is long enough.",
			})
			require.NoError(t, err)
			return post
		}
		bwa := create("Aligning with bwa", "bwa, alignment")
		star := create("Aligning with star", "star, alignment, rna-seq")
		closed := create("Old bwa question", "bwa")
		_, err := f.service.Moderate(f.moderator, closed.UID, models.StatusClosed)
		require.NoError(t, err)

		titles := func(query string) []string {
			posts, err := f.service.ListPosts(1, 10, f.moderator, query)
			require.NoError(t, err)
			var out []string
			for _, post := range posts {
				out = append(out, post.Title)
				assert.NotNil(t, post.Author)
			}
			return out
		}
		assert.ElementsMatch(t, []string{bwa.Title}, titles("BWA"))
		assert.ElementsMatch(t, []string{bwa.Title, star.Title}, titles("alignment"))
		assert.ElementsMatch(t, []string{star.Title}, titles("alignment+bwa!"))
		assert.ElementsMatch(t, []string{star.Title}, titles("alignment bwa!"), "a decoded '+' separates terms")
		assert.ElementsMatch(t, []string{bwa.Title, star.Title}, titles("bwa,star"))
		assert.Len(t, titles(""), 3, "no query lists every thread")
	})
}

func TestConcurrentRepliesAndViews(t *testing.T) {
	store, err := repositories.Open("")
	require.NoError(t, err)
	defer store.Close()

	service := NewPostService(store.Posts, store.Users, store.Views)
	author := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}
	require.NoError(t, store.Users.Create(author))

	root, err := service.CreatePost(author, &models.PostForm{
		Title:   "How do I align reads?",
		Type:    models.TypeQuestion,
		Tags:    "bwa",
		Content: "I have paired end reads and a reference genome.",
	})
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*workers)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := service.CreateAnswer(author, &models.AnswerForm{
				ParentUID: root.UID,
				Content:   fmt.Sprintf("Answer number %d with some detail.", i),
			})
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			view := *root
			_, err := service.RecordView(&view, fmt.Sprintf("10.0.1.%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	thread, err := service.GetThread(root.UID, author)
	require.NoError(t, err)
	assert.Len(t, thread.Answers, workers)
	assert.Equal(t, workers, thread.Post.ReplyCount)
	assert.Equal(t, workers, thread.Post.ViewCount)
}

func TestBuildTree(t *testing.T) {
	posts := []*models.Post{
		{ID: 1, ParentID: 1, Type: models.TypeQuestion},
		{ID: 2, ParentID: 1, Type: models.TypeAnswer},
		{ID: 3, ParentID: 2, Type: models.TypeComment},
		{ID: 4, ParentID: 3, Type: models.TypeComment},
		{ID: 5, ParentID: 2, Type: models.TypeComment},
	}
	tree := BuildTree(posts)

	assert.Equal(t, 3, tree.Size())
	assert.Empty(t, tree.Children(1))
	assert.Len(t, tree.Children(2), 2)
	assert.Len(t, tree.Children(3), 1)
	assert.Nil(t, Tree(nil).Children(1))
}
