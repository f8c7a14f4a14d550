package proxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/netutil"
)

// Server dispatches requests to virtual hosts by the Host header.
type Server struct {
	cfg         *Config
	exact       map[string]*VirtualHost
	wildcards   []wildcard
	defaultHost *VirtualHost
	logs        *logFiles
}

type wildcard struct {
	suffix string
	host   *VirtualHost
}

// New builds the virtual hosts of cfg and opens their logs.
func New(cfg *Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:   cfg,
		exact: make(map[string]*VirtualHost),
		logs:  newLogFiles(),
	}

	for i, srvCfg := range cfg.Servers {
		vh, err := newVirtualHost(srvCfg, cfg.Upstreams, s.logs)
		if err != nil {
			s.logs.Close()
			return nil, fmt.Errorf("server %d: %w", i, err)
		}
		if srvCfg.DefaultServer {
			s.defaultHost = vh
		}
		for _, name := range srvCfg.ServerName {
			name = strings.ToLower(strings.TrimSuffix(name, "."))
			switch {
			case name == "_" || name == "":
			case strings.HasPrefix(name, "*."):
				s.wildcards = append(s.wildcards, wildcard{suffix: name[1:], host: vh})
			default:
				s.exact[name] = vh
			}
		}
	}
	return s, nil
}

// hostname strips the port and normalises case.
func hostname(hostport string) string {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

// Lookup returns the virtual host for a Host header value, or nil.
func (s *Server) Lookup(hostport string) *VirtualHost {
	host := hostname(hostport)
	if vh, ok := s.exact[host]; ok {
		return vh
	}
	for _, wc := range s.wildcards {
		if strings.HasSuffix(host, wc.suffix) {
			return wc.host
		}
	}
	return s.defaultHost
}

// ServeHTTP answers unknown hosts with 404 unless a default server is configured.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vh := s.Lookup(r.Host)
	if vh == nil {
		http.NotFound(w, r)
		return
	}
	vh.ServeHTTP(w, r)
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	if s.cfg.Listen == "" {
		return DefaultListen
	}
	return s.cfg.Listen
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln, at most worker_connections at a time,
// and shuts down gracefully when ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.WorkerConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.WorkerConnections)
	}
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	log.Printf("proxy listening on %s", ln.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Close closes the log files.
func (s *Server) Close() error {
	return s.logs.Close()
}
