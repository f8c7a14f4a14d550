package proxy

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

type location struct {
	prefix  string
	handler http.Handler
}

// VirtualHost serves the requests of one configured server.
type VirtualHost struct {
	names     []string
	ret       int
	maxBody   int64
	locations []location
	accessLog *log.Logger
	errorLog  *log.Logger
	now       func() time.Time
}

func newVirtualHost(cfg ServerConfig, upstreams map[string][]string, logs *logFiles) (*VirtualHost, error) {
	maxBody, err := ParseSize(cfg.ClientMaxBodySize)
	if err != nil {
		return nil, err
	}
	access, err := logs.writer(cfg.AccessLog, os.Stdout)
	if err != nil {
		return nil, err
	}
	errs, err := logs.writer(cfg.ErrorLog, os.Stderr)
	if err != nil {
		return nil, err
	}

	vh := &VirtualHost{
		names:     cfg.ServerName,
		ret:       cfg.Return,
		maxBody:   maxBody,
		accessLog: log.New(access, "", 0),
		errorLog:  log.New(errs, "", log.LstdFlags),
		now:       time.Now,
	}

	for _, loc := range cfg.Locations {
		handler, err := vh.locationHandler(loc, cfg.Root, upstreams)
		if err != nil {
			return nil, fmt.Errorf("location %s: %w", loc.Path, err)
		}
		vh.locations = append(vh.locations, location{prefix: loc.Path, handler: handler})
	}
	// Longest prefix first.
	sort.SliceStable(vh.locations, func(i, j int) bool {
		return len(vh.locations[i].prefix) > len(vh.locations[j].prefix)
	})
	return vh, nil
}

func (vh *VirtualHost) locationHandler(loc LocationConfig, root string, upstreams map[string][]string) (http.Handler, error) {
	switch {
	case loc.Return != 0:
		return statusHandler(loc.Return), nil
	case loc.UwsgiPass != "":
		return newUwsgiPass(loc.UwsgiPass, upstreams, vh.errorLog), nil
	case loc.ProxyPass != "":
		return newProxyPass(loc.ProxyPass, upstreams, vh.errorLog)
	case loc.Alias != "":
		return &staticHandler{prefix: loc.Path, dir: loc.Alias, alias: true, autoindex: loc.Autoindex, errorLog: vh.errorLog}, nil
	default:
		return &staticHandler{prefix: loc.Path, dir: root, autoindex: loc.Autoindex, errorLog: vh.errorLog}, nil
	}
}

// statusHandler answers every request with code and an empty body.
func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func (vh *VirtualHost) match(path string) http.Handler {
	for _, loc := range vh.locations {
		if strings.HasPrefix(path, loc.prefix) {
			return loc.handler
		}
	}
	return nil
}

func (vh *VirtualHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lw := &logWriter{ResponseWriter: w}
	defer func() { logAccess(vh.accessLog, r, lw, vh.now()) }()

	if vh.ret != 0 {
		lw.WriteHeader(vh.ret)
		return
	}

	if vh.maxBody > 0 {
		if r.ContentLength > vh.maxBody {
			vh.errorLog.Printf("client intended to send too large body: %d bytes, client: %s, host: %q, request: \"%s %s\"",
				r.ContentLength, remoteHost(r), r.Host, r.Method, r.URL.Path)
			http.Error(lw, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		if r.Body != nil && r.Body != http.NoBody {
			body := &limitedBody{ReadCloser: http.MaxBytesReader(lw, r.Body, vh.maxBody)}
			r = r.WithContext(context.WithValue(r.Context(), bodyLimitKey{}, body))
			r.Body = body
		}
	}

	handler := vh.match(r.URL.Path)
	if handler == nil {
		http.NotFound(lw, r)
		return
	}
	handler.ServeHTTP(lw, r)
}

