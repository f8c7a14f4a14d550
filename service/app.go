package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"biostar/app/repositories"
	"biostar/app/routes"
	"biostar/uwsgi"
)

const shutdownTimeout = 10 * time.Second

// App is the forum application bound to its listeners.
type App struct {
	cfg     *Config
	store   *repositories.Store
	handler http.Handler
	http    *http.Server
	uwsgi   *uwsgi.Server
}

// NewApp opens the database and builds the router.
func NewApp(cfg *Config) (*App, error) {
	store, err := repositories.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	router, err := routes.SetupRoutes(store, cfg.RouteOptions())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	app := &App{cfg: cfg, store: store, handler: router}
	if cfg.HTTPAddr != "" {
		app.http = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 30 * time.Second,
		}
	}
	if cfg.UwsgiAddr != "" {
		app.uwsgi = &uwsgi.Server{Handler: router, ReadTimeout: 60 * time.Second}
	}
	return app, nil
}

// Handler is the application router.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves until ctx is cancelled or a listener fails, then shuts both
// listeners down and closes the database.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errc := make(chan error, 2)
	if a.http != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("Serving HTTP on %s", a.cfg.HTTPAddr)
			if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("http server: %w", err)
				cancel()
			}
		}()
	}
	if a.uwsgi != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("Serving uwsgi on %s", a.cfg.UwsgiAddr)
			if err := a.uwsgi.ListenAndServe(a.cfg.UwsgiAddr); err != nil && !errors.Is(err, uwsgi.ErrServerClosed) {
				errc <- fmt.Errorf("uwsgi server: %w", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	log.Println("Shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if a.http != nil {
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
	}
	if a.uwsgi != nil {
		if err := a.uwsgi.Shutdown(shutdownCtx); err != nil {
			log.Printf("uwsgi shutdown: %v", err)
		}
	}
	wg.Wait()
	close(errc)

	if err := a.store.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	}
	return <-errc
}

// RunAppServer runs the forum until SIGINT or SIGTERM.
func RunAppServer(args []string) int {
	args, configPath, _ := popFlag(args, "--config")
	if len(args) > 0 {
		fmt.Printf("Unexpected arguments: %v\n", args)
		return 1
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	app, err := NewApp(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx); err != nil {
		log.Printf("Server error: %v", err)
		return 1
	}
	return 0
}
