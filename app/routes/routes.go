package routes

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"biostar/app/controllers"
	"biostar/app/middleware"
	"biostar/app/repositories"
	"biostar/app/services"
	"biostar/app/views"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Options tunes the forum application.
type Options struct {
	SessionTTL    time.Duration
	ViewWindow    time.Duration
	SecureCookies bool
	CORSOrigins   []string
	// Views overrides the embedded templates and static files.
	Views fs.FS
}

// SetupRoutes wires the forum application on top of store and returns its router.
func SetupRoutes(store *repositories.Store, opts Options) (*mux.Router, error) {
	fsys := opts.Views
	if fsys == nil {
		fsys = views.FS
	}
	templates, err := controllers.LoadTemplates(fsys)
	if err != nil {
		return nil, err
	}
	static, err := fs.Sub(fsys, "static")
	if err != nil {
		return nil, fmt.Errorf("static files: %w", err)
	}

	postService := services.NewPostService(store.Posts, store.Users, store.Views)
	if opts.ViewWindow > 0 {
		postService.SetViewWindow(opts.ViewWindow)
	}
	authService := services.NewAuthService(store.Users, store.Sessions, opts.SessionTTL)

	postController := controllers.NewPostController(postService, templates)
	authController := controllers.NewAuthController(authService, templates, opts.SecureCookies)

	router := mux.NewRouter()

	// Apply global middleware
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Authenticate(authService))

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "Not found"})
			return
		}
		http.NotFound(w, r)
	})

	// Static files are normally served by the front proxy
	router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	// Web routes
	router.HandleFunc("/", postController.Index).Methods("GET")
	router.HandleFunc("/post/new", postController.New).Methods("GET", "POST")
	router.HandleFunc("/post_view/{uid}", postController.Show).Methods("GET")
	router.HandleFunc("/post_view/{uid}", postController.Answer).Methods("POST")
	router.HandleFunc("/post_view/{uid}/moderate", postController.Moderate).Methods("POST")
	router.HandleFunc("/markdown/preview", postController.Preview).Methods("POST")

	accounts := router.PathPrefix("/accounts").Subrouter()
	accounts.HandleFunc("/login", authController.Login).Methods("GET", "POST")
	accounts.HandleFunc("/logout", authController.Logout).Methods("POST")
	accounts.HandleFunc("/signup", authController.Signup).Methods("GET", "POST")

	// API routes with JSON content type
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	api := router.PathPrefix("/api").Subrouter()
	api.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler)
	api.Use(middleware.ContentTypeJSON)
	api.HandleFunc("/posts", postController.Index).Methods("GET", "OPTIONS")
	api.HandleFunc("/post/{uid}", postController.APIShow).Methods("GET", "OPTIONS")

	return router, nil
}
