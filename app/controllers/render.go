package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"biostar/app/middleware"
	"biostar/app/models"
	"biostar/app/repositories"
	"biostar/app/services"

	"github.com/dustin/go-humanize"
)

// pages maps a template name to the page file rendered inside the layout.
var pages = map[string]string{
	"index":  "posts/index.html",
	"view":   "posts/view.html",
	"new":    "posts/new.html",
	"login":  "accounts/login.html",
	"signup": "accounts/signup.html",
}

// PostContext is what the shared post fragment renders from.
type PostContext struct {
	Post   *models.Post
	Viewer *models.User
	Tree   services.Tree
}

var funcs = template.FuncMap{
	"postCtx": func(post *models.Post, viewer *models.User, tree services.Tree) PostContext {
		return PostContext{Post: post, Viewer: viewer, Tree: tree}
	},
	// Post HTML is sanitised when it is rendered from markdown.
	"safe":      func(s string) template.HTML { return template.HTML(s) },
	"humanTime": humanize.Time,
	"humanCount": func(n int) string {
		return humanize.Comma(int64(n))
	},
	"lower":    func(v fmt.Stringer) string { return strings.ToLower(v.String()) },
	"join":     strings.Join,
	"statuses": func() []models.PostStatus { return []models.PostStatus{models.StatusOpen, models.StatusClosed, models.StatusDeleted} },
}

// LoadTemplates parses every page together with the layout, shared fragments and widgets.
func LoadTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	base, err := template.New("").Funcs(funcs).ParseFS(fsys, "layout.html", "shared/*.html", "widgets/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base templates: %w", err)
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		tmpl, err := template.Must(base.Clone()).ParseFS(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		templates[name] = tmpl
	}
	return templates, nil
}

// Layout carries what the layout template needs on every page.
type Layout struct {
	Title         string
	Viewer        *models.User
	Authenticated bool
	Flash         string
}

func newLayout(r *http.Request, title string) Layout {
	viewer := middleware.CurrentUser(r.Context())
	return Layout{
		Title:         title,
		Viewer:        viewer,
		Authenticated: viewer.IsAuthenticated(),
		Flash:         r.URL.Query().Get("flash"),
	}
}

// renderer is embedded by controllers that produce HTML.
type renderer struct {
	templates map[string]*template.Template
}

func (rd *renderer) render(w http.ResponseWriter, r *http.Request, name string, status int, data interface{}) {
	tmpl, ok := rd.templates[name]
	if !ok {
		sendError(w, r, "Template not found: "+name, http.StatusInternalServerError)
		return
	}
	var buf strings.Builder
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Printf("template %s: %v", name, err)
		sendError(w, r, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, buf.String())
}

// Helper functions for consistent response handling

func isAPI(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json" || strings.HasPrefix(r.URL.Path, "/api/")
}

func sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func sendError(w http.ResponseWriter, r *http.Request, message string, status int) {
	if isAPI(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": message})
	} else {
		http.Error(w, message, status)
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrPostClosed):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidForm):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// loginURL sends anonymous users to the login page and back.
func loginURL(next string) string {
	return "/accounts/login?next=" + template.URLQueryEscaper(next)
}

// sessionCookie builds the cookie set on login; a zero expiry clears it.
func sessionCookie(token string, expires time.Time, secure bool) *http.Cookie {
	cookie := &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if expires.IsZero() {
		cookie.MaxAge = -1
	} else {
		cookie.Expires = expires
	}
	return cookie
}
