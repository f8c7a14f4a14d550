package controllers

import (
	"errors"
	"html/template"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"biostar/app/markdown"
	"biostar/app/middleware"
	"biostar/app/models"
	"biostar/app/services"

	"github.com/gorilla/mux"
)

// DefaultPerPage is the number of threads on one index page.
const DefaultPerPage = 25

// PostController handles HTTP requests for forum threads
type PostController struct {
	renderer
	postService *services.PostService
}

// NewPostController creates a new PostController
func NewPostController(postService *services.PostService, templates map[string]*template.Template) *PostController {
	return &PostController{
		renderer:    renderer{templates: templates},
		postService: postService,
	}
}

// IndexPage lists thread starters.
type IndexPage struct {
	Layout
	Posts    []*models.Post
	Tag      string
	Page     int
	PrevPage int
	NextPage int
	HasMore  bool
}

// ThreadPage renders one thread with the answer panel.
type ThreadPage struct {
	Layout
	Thread *services.Thread
	Form   *models.AnswerForm
}

// NewPostPage renders the new post form.
type NewPostPage struct {
	Layout
	Form  *models.PostForm
	Types []models.PostType
}

func pagination(r *http.Request) (int, int) {
	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	perPage := DefaultPerPage
	if perPageStr := r.URL.Query().Get("per_page"); perPageStr != "" {
		if pp, err := strconv.Atoi(perPageStr); err == nil && pp > 0 && pp <= 100 {
			perPage = pp
		}
	}
	return page, perPage
}

// Index handles listing the latest threads
func (pc *PostController) Index(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	viewer := middleware.CurrentUser(r.Context())
	tag := strings.TrimSpace(r.URL.Query().Get("tag"))

	posts, err := pc.postService.ListPosts(page, perPage, viewer, tag)
	if err != nil {
		sendError(w, r, "Failed to fetch posts: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if isAPI(r) {
		sendJSON(w, map[string]interface{}{
			"posts": posts,
			"page":  page,
			"tag":   tag,
		})
		return
	}

	title := "Latest"
	if tag != "" {
		title = "Tagged: " + tag
	}
	pc.render(w, r, "index", http.StatusOK, IndexPage{
		Layout:   newLayout(r, title),
		Posts:    posts,
		Tag:      tag,
		Page:     page,
		PrevPage: page - 1,
		NextPage: page + 1,
		HasMore:  len(posts) == perPage,
	})
}

// Show renders a thread. Links to answers and comments redirect to the
// thread with an anchor.
func (pc *PostController) Show(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	viewer := middleware.CurrentUser(r.Context())

	thread, err := pc.postService.GetThread(uid, viewer)
	if err != nil {
		sendError(w, r, "Post not found", statusFor(err))
		return
	}
	if thread.Focus != nil && thread.Focus.ID != thread.Post.ID {
		http.Redirect(w, r, "/post_view/"+thread.Post.UID+"#"+thread.Focus.UID, http.StatusFound)
		return
	}

	if _, err := pc.postService.RecordView(thread.Post, middleware.ClientIP(r)); err != nil {
		log.Printf("failed to record view of %s: %v", thread.Post.UID, err)
	}

	pc.renderThread(w, r, thread, &models.AnswerForm{ParentUID: thread.Post.UID}, http.StatusOK)
}

func (pc *PostController) renderThread(w http.ResponseWriter, r *http.Request, thread *services.Thread, form *models.AnswerForm, status int) {
	pc.render(w, r, "view", status, ThreadPage{
		Layout: newLayout(r, thread.Post.DisplayTitle()),
		Thread: thread,
		Form:   form,
	})
}

// Answer handles the answer form posted to a thread.
func (pc *PostController) Answer(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	viewer := middleware.CurrentUser(r.Context())
	if !viewer.IsAuthenticated() {
		http.Redirect(w, r, loginURL("/post_view/"+uid), http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		sendError(w, r, "Failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}
	form := &models.AnswerForm{
		ParentUID: r.FormValue("parent_uid"),
		Content:   r.FormValue("content"),
	}
	if form.ParentUID == "" {
		form.ParentUID = uid
	}

	reply, err := pc.postService.CreateAnswer(viewer, form)
	switch {
	case err == nil:
		http.Redirect(w, r, "/post_view/"+uid+"#"+reply.UID, http.StatusSeeOther)
	case errors.Is(err, models.ErrInvalidForm), errors.Is(err, services.ErrPostClosed):
		thread, terr := pc.postService.GetThread(uid, viewer)
		if terr != nil {
			sendError(w, r, "Post not found", statusFor(terr))
			return
		}
		pc.renderThread(w, r, thread, form, statusFor(err))
	default:
		sendError(w, r, "Failed to add answer: "+err.Error(), statusFor(err))
	}
}

// New renders and handles the form for starting a thread.
func (pc *PostController) New(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.CurrentUser(r.Context())
	if !viewer.IsAuthenticated() {
		http.Redirect(w, r, loginURL("/post/new"), http.StatusSeeOther)
		return
	}

	form := &models.PostForm{}
	if r.Method != http.MethodPost {
		pc.renderNew(w, r, form, http.StatusOK)
		return
	}

	if err := r.ParseForm(); err != nil {
		sendError(w, r, "Failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}
	form.Title = r.FormValue("title")
	form.Tags = r.FormValue("tags")
	form.Content = r.FormValue("content")
	if typ, err := strconv.Atoi(r.FormValue("type")); err == nil {
		form.Type = models.PostType(typ)
	}

	post, err := pc.postService.CreatePost(viewer, form)
	if errors.Is(err, models.ErrInvalidForm) {
		pc.renderNew(w, r, form, http.StatusBadRequest)
		return
	}
	if err != nil {
		sendError(w, r, "Failed to create post: "+err.Error(), statusFor(err))
		return
	}
	http.Redirect(w, r, "/post_view/"+post.UID, http.StatusSeeOther)
}

func (pc *PostController) renderNew(w http.ResponseWriter, r *http.Request, form *models.PostForm, status int) {
	pc.render(w, r, "new", status, NewPostPage{
		Layout: newLayout(r, "New Post"),
		Form:   form,
		Types:  models.TopLevelTypes(),
	})
}

// Moderate changes the status of a post.
func (pc *PostController) Moderate(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	viewer := middleware.CurrentUser(r.Context())

	status, err := models.ParseStatus(r.FormValue("status"))
	if err != nil {
		sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	post, err := pc.postService.Moderate(viewer, uid, status)
	if err != nil {
		sendError(w, r, "Failed to moderate post: "+err.Error(), statusFor(err))
		return
	}

	if isAPI(r) {
		sendJSON(w, post)
		return
	}
	http.Redirect(w, r, "/post_view/"+post.UID, http.StatusSeeOther)
}

// Preview renders posted markdown to sanitised HTML. The markdown is either
// the "content" form field or the raw request body.
func (pc *PostController) Preview(w http.ResponseWriter, r *http.Request) {
	var text string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		text = r.FormValue("content")
	} else {
		body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
		if err != nil {
			sendError(w, r, "Failed to read body", http.StatusBadRequest)
			return
		}
		text = string(body)
	}

	html, err := markdown.Render(text)
	if err != nil {
		sendError(w, r, "Failed to render markdown", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, html)
}

// APIShow returns a thread as JSON.
func (pc *PostController) APIShow(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	thread, err := pc.postService.GetThread(uid, middleware.CurrentUser(r.Context()))
	if err != nil {
		sendError(w, r, "Post not found", statusFor(err))
		return
	}

	var comments []*models.Post
	for _, children := range thread.Tree {
		comments = append(comments, children...)
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].ID < comments[j].ID })
	sendJSON(w, map[string]interface{}{
		"post":     thread.Post,
		"answers":  thread.Answers,
		"comments": comments,
	})
}
