package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"biostar/app/middleware"
	"biostar/app/models"
	"biostar/app/repositories/mock"
	"biostar/app/services"
	"biostar/app/views"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	postService *services.PostService
	authService *services.AuthService
	router      *mux.Router
	alice       *models.User
	moderator   *models.User
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	templates, err := LoadTemplates(views.FS)
	require.NoError(t, err)

	postRepo := mock.NewPostRepository()
	userRepo := mock.NewUserRepository()
	env := &testEnv{
		postService: services.NewPostService(postRepo, userRepo, mock.NewViewRepository(postRepo)),
		authService: services.NewAuthService(userRepo, mock.NewSessionRepository(), time.Hour),
	}
	env.alice, err = env.authService.CreateUser("alice", "alice@example.com", "password1", false)
	require.NoError(t, err)
	env.moderator, err = env.authService.CreateUser("mod", "mod@example.com", "password2", true)
	require.NoError(t, err)

	pc := NewPostController(env.postService, templates)
	ac := NewAuthController(env.authService, templates, false)

	router := mux.NewRouter()
	router.HandleFunc("/", pc.Index).Methods("GET")
	router.HandleFunc("/post/new", pc.New).Methods("GET", "POST")
	router.HandleFunc("/post_view/{uid}", pc.Show).Methods("GET")
	router.HandleFunc("/post_view/{uid}", pc.Answer).Methods("POST")
	router.HandleFunc("/post_view/{uid}/moderate", pc.Moderate).Methods("POST")
	router.HandleFunc("/markdown/preview", pc.Preview).Methods("POST")
	router.HandleFunc("/api/post/{uid}", pc.APIShow).Methods("GET")
	router.HandleFunc("/api/posts", pc.Index).Methods("GET")
	router.HandleFunc("/accounts/login", ac.Login).Methods("GET", "POST")
	router.HandleFunc("/accounts/logout", ac.Logout).Methods("POST")
	router.HandleFunc("/accounts/signup", ac.Signup).Methods("GET", "POST")
	env.router = router
	return env
}

// do performs a request as user; a nil user is anonymous.
func (e *testEnv) do(method, path string, form url.Values, user *models.User) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), user))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) question(t *testing.T) *models.Post {
	t.Helper()
	post, err := e.postService.CreatePost(e.alice, &models.PostForm{
		Title:   "How do I call variants?",
		Type:    models.TypeQuestion,
		Tags:    "gatk",
		Content: "I have aligned BAM files and need a **VCF**.",
	})
	require.NoError(t, err)
	return post
}

const (
	answerForm   = `class="answer-form"`
	closedNotice = "This thread is not open"
	loginPrompt  = "to add an answer"
)

func TestAnswerPanel(t *testing.T) {
	env := setupTestEnv(t)
	open := env.question(t)
	closed := env.question(t)
	_, err := env.postService.Moderate(env.moderator, closed.UID, models.StatusClosed)
	require.NoError(t, err)

	tests := []struct {
		name       string
		post       *models.Post
		user       *models.User
		wantForm   bool
		wantClosed bool
		wantLogin  bool
	}{
		{name: "open post, logged in", post: open, user: env.alice, wantForm: true},
		{name: "open post, anonymous", post: open, wantLogin: true},
		{name: "closed post, logged in", post: closed, user: env.alice, wantClosed: true},
		{name: "closed post, moderator", post: closed, user: env.moderator, wantClosed: true},
		{name: "closed post, anonymous", post: closed, wantClosed: true, wantLogin: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("GET", "/post_view/"+tt.post.UID, nil, tt.user)
			require.Equal(t, http.StatusOK, w.Code)
			body := w.Body.String()

			assert.Equal(t, tt.wantForm, strings.Contains(body, answerForm))
			assert.Equal(t, tt.wantClosed, strings.Contains(body, closedNotice))
			assert.Equal(t, tt.wantLogin, strings.Contains(body, loginPrompt))
			if tt.wantForm {
				assert.Contains(t, body, `name="parent_uid" value="`+tt.post.UID+`"`)
				assert.Contains(t, body, `action="/post_view/`+tt.post.UID+`"`)
			}
		})
	}
}

func TestPostController(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("show thread", func(t *testing.T) {
		post := env.question(t)
		answer, err := env.postService.CreateAnswer(env.alice, &models.AnswerForm{ParentUID: post.UID, Content: "Try bcftools call -mv."})
		require.NoError(t, err)
		_, err = env.postService.CreateAnswer(env.alice, &models.AnswerForm{ParentUID: answer.UID, Content: "Works for haploid too?"})
		require.NoError(t, err)

		w := env.do("GET", "/post_view/"+post.UID, nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "How do I call variants?")
		assert.Contains(t, body, "<strong>VCF</strong>")
		assert.Contains(t, body, "1 Answer")
		assert.Contains(t, body, "Works for haploid too?")
		assert.Contains(t, body, "gatk")
		assert.Equal(t, 1, strings.Count(body, `<h1 class="title">`))
	})

	t.Run("comment link redirects to thread", func(t *testing.T) {
		post := env.question(t)
		answer, err := env.postService.CreateAnswer(env.alice, &models.AnswerForm{ParentUID: post.UID, Content: "An answer worth linking."})
		require.NoError(t, err)

		w := env.do("GET", "/post_view/"+answer.UID, nil, nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/post_view/"+post.UID+"#"+answer.UID, w.Header().Get("Location"))
	})

	t.Run("unknown post", func(t *testing.T) {
		w := env.do("GET", "/post_view/missing", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("post answer", func(t *testing.T) {
		post := env.question(t)
		form := url.Values{"parent_uid": {post.UID}, "content": {"Use the HaplotypeCaller."}}

		w := env.do("POST", "/post_view/"+post.UID, form, env.alice)
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/post_view/"+post.UID+"#"))

		thread, err := env.postService.GetThread(post.UID, nil)
		require.NoError(t, err)
		require.Len(t, thread.Answers, 1)
		assert.Equal(t, "Use the HaplotypeCaller.", thread.Answers[0].Content)
	})

	t.Run("post answer anonymously", func(t *testing.T) {
		post := env.question(t)
		form := url.Values{"parent_uid": {post.UID}, "content": {"Anonymous answer text."}}

		w := env.do("POST", "/post_view/"+post.UID, form, nil)
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/accounts/login?next="))
	})

	t.Run("post invalid answer", func(t *testing.T) {
		post := env.question(t)
		form := url.Values{"parent_uid": {post.UID}, "content": {""}}

		w := env.do("POST", "/post_view/"+post.UID, form, env.alice)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "content is required")
		assert.Contains(t, w.Body.String(), answerForm)
	})

	t.Run("post answer to closed thread", func(t *testing.T) {
		post := env.question(t)
		_, err := env.postService.Moderate(env.moderator, post.UID, models.StatusClosed)
		require.NoError(t, err)
		form := url.Values{"parent_uid": {post.UID}, "content": {"Too late for this."}}

		w := env.do("POST", "/post_view/"+post.UID, form, env.alice)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), closedNotice)
		assert.NotContains(t, w.Body.String(), answerForm)
	})

	t.Run("index", func(t *testing.T) {
		w := env.do("GET", "/", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "How do I call variants?")
		assert.Contains(t, w.Body.String(), "Sign up")
	})

	t.Run("api index", func(t *testing.T) {
		w := env.do("GET", "/api/posts?per_page=2", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Posts []models.Post `json:"posts"`
			Page  int           `json:"page"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Len(t, response.Posts, 2)
		assert.Equal(t, 1, response.Page)
	})

	t.Run("api show", func(t *testing.T) {
		post := env.question(t)
		w := env.do("GET", "/api/post/"+post.UID, nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Post    models.Post   `json:"post"`
			Answers []models.Post `json:"answers"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, post.UID, response.Post.UID)
		assert.Empty(t, response.Answers)
	})

	t.Run("api show missing", func(t *testing.T) {
		w := env.do("GET", "/api/post/missing", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), `"error"`)
	})

	t.Run("new post", func(t *testing.T) {
		w := env.do("GET", "/post/new", nil, nil)
		assert.Equal(t, http.StatusSeeOther, w.Code)

		w = env.do("GET", "/post/new", nil, env.alice)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Bulletin Board")

		form := url.Values{"title": {"Best aligner in 2026?"}, "type": {"3"}, "tags": {"alignment"}, "content": {"Which aligner do people use these days?"}}
		w = env.do("POST", "/post/new", form, env.alice)
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/post_view/"))

		form.Set("title", "")
		w = env.do("POST", "/post/new", form, env.alice)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "title is required")
	})

	t.Run("moderate", func(t *testing.T) {
		post := env.question(t)
		form := url.Values{"status": {"Closed"}}

		w := env.do("POST", "/post_view/"+post.UID+"/moderate", form, env.alice)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = env.do("POST", "/post_view/"+post.UID+"/moderate", url.Values{"status": {"bogus"}}, env.moderator)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = env.do("POST", "/post_view/"+post.UID+"/moderate", form, env.moderator)
		assert.Equal(t, http.StatusSeeOther, w.Code)

		thread, err := env.postService.GetThread(post.UID, nil)
		require.NoError(t, err)
		assert.Equal(t, models.StatusClosed, thread.Post.Status)
	})

	t.Run("moderation form only for moderators", func(t *testing.T) {
		post := env.question(t)
		w := env.do("GET", "/post_view/"+post.UID, nil, env.alice)
		assert.NotContains(t, w.Body.String(), `class="moderate"`)

		w = env.do("GET", "/post_view/"+post.UID, nil, env.moderator)
		assert.Contains(t, w.Body.String(), `class="moderate"`)
	})

	t.Run("markdown preview", func(t *testing.T) {
		w := env.do("POST", "/markdown/preview", url.Values{"content": {"**bold** <script>alert(1)</script>"}}, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "<strong>bold</strong>")
		assert.NotContains(t, w.Body.String(), "<script>")
	})
}

func newRequestWithCookie(method, path string, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.AddCookie(cookie)
	return req
}

func serve(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestCommentForms(t *testing.T) {
	env := setupTestEnv(t)
	post := env.question(t)
	answer, err := env.postService.CreateAnswer(env.alice, &models.AnswerForm{ParentUID: post.UID, Content: "Run the HaplotypeCaller in GVCF mode."})
	require.NoError(t, err)

	commentForm := `class="comment-form" method="post" action="/post_view/` + post.UID + `"`
	parentField := `name="parent_uid" value="` + answer.UID + `"`

	t.Run("shown per answer to logged in users", func(t *testing.T) {
		body := env.do("GET", "/post_view/"+post.UID, nil, env.alice).Body.String()
		assert.Equal(t, 1, strings.Count(body, commentForm))
		assert.Contains(t, body, parentField)
	})

	t.Run("hidden from anonymous users", func(t *testing.T) {
		body := env.do("GET", "/post_view/"+post.UID, nil, nil).Body.String()
		assert.NotContains(t, body, `class="comment-form"`)
	})

	t.Run("posting adds a comment under the answer", func(t *testing.T) {
		form := url.Values{"parent_uid": {answer.UID}, "content": {"Does that work with ploidy two?"}}
		w := env.do("POST", "/post_view/"+post.UID, form, env.alice)
		assert.Equal(t, http.StatusSeeOther, w.Code)

		thread, err := env.postService.GetThread(post.UID, nil)
		require.NoError(t, err)
		comments := thread.Tree.Children(answer.ID)
		require.Len(t, comments, 1)
		assert.Equal(t, models.TypeComment, comments[0].Type)
	})

	t.Run("hidden on closed threads", func(t *testing.T) {
		_, err := env.postService.Moderate(env.moderator, post.UID, models.StatusClosed)
		require.NoError(t, err)
		body := env.do("GET", "/post_view/"+post.UID, nil, env.alice).Body.String()
		assert.NotContains(t, body, `class="comment-form"`)
	})
}

func TestIndexByTag(t *testing.T) {
	env := setupTestEnv(t)
	create := func(title, tags string) *models.Post {
		post, err := env.postService.CreatePost(env.alice, &models.PostForm{
			Title:   title,
			Type:    models.TypeQuestion,
			Tags:    tags,
			Content: "A question body that is long enough.",
		})
		require.NoError(t, err)
		return post
	}
	create("Calling variants with gatk", "gatk, variants")
	create("Calling variants with bcftools", "bcftools, variants")
	create("Counting reads", "featurecounts")

	t.Run("tag links lead to filtered index", func(t *testing.T) {
		body := env.do("GET", "/", nil, nil).Body.String()
		assert.Contains(t, body, `href="/?tag=gatk"`)

		w := env.do("GET", "/?tag=gatk", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		body = w.Body.String()
		assert.Contains(t, body, "Tagged: gatk")
		assert.Contains(t, body, "Calling variants with gatk")
		assert.NotContains(t, body, "Calling variants with bcftools")
		assert.NotContains(t, body, "Counting reads")
	})

	t.Run("exclusion", func(t *testing.T) {
		body := env.do("GET", "/?tag=variants%2Bgatk!", nil, nil).Body.String()
		assert.Contains(t, body, "Calling variants with bcftools")
		assert.NotContains(t, body, "Calling variants with gatk")
	})

	t.Run("pagination keeps the tag", func(t *testing.T) {
		body := env.do("GET", "/?tag=variants&per_page=1", nil, nil).Body.String()
		assert.Regexp(t, `href="/\?page=2(&|&amp;)tag=variants">Next`, body)
	})

	t.Run("no match", func(t *testing.T) {
		body := env.do("GET", "/?tag=salmon", nil, nil).Body.String()
		assert.Contains(t, body, "No open posts match this tag.")
	})

	t.Run("api", func(t *testing.T) {
		w := env.do("GET", "/api/posts?tag=variants", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Posts []models.Post `json:"posts"`
			Tag   string        `json:"tag"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Len(t, response.Posts, 2)
		assert.Equal(t, "variants", response.Tag)
	})
}
