package uwsgi

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ErrServerClosed is returned by Serve after Close or Shutdown.
var ErrServerClosed = errors.New("uwsgi: server closed")

// Server serves an http.Handler to a front proxy speaking uwsgi. Each
// connection carries a single request.
type Server struct {
	Handler     http.Handler
	ErrorLog    *log.Logger
	ReadTimeout time.Duration

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	wg        sync.WaitGroup
	shutdown  atomic.Bool
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.ErrorLog != nil {
		s.ErrorLog.Printf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

// ListenAndServe listens on addr (host:port or unix:/path) and serves.
func (s *Server) ListenAndServe(addr string) error {
	network := "tcp"
	if len(addr) > 5 && addr[:5] == "unix:" {
		network, addr = "unix", addr[5:]
		os.Remove(addr)
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the server is closed.
func (s *Server) Serve(ln net.Listener) error {
	if s.shutdown.Load() {
		return ErrServerClosed
	}
	s.track(ln, nil, true)
	defer s.track(ln, nil, false)
	defer ln.Close()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else if backoff *= 2; backoff > time.Second {
					backoff = time.Second
				}
				s.logf("uwsgi: accept error: %v; retrying in %v", err, backoff)
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		if !s.startConn(conn) {
			conn.Close()
			return ErrServerClosed
		}
		go s.handleConn(conn)
	}
}

// startConn registers conn with the in-flight group unless shutdown has
// begun. Shutdown flips the flag under mu before waiting on wg, so every
// Add here happens before that Wait.
func (s *Server) startConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	if s.conns == nil {
		s.listeners = make(map[net.Listener]struct{})
		s.conns = make(map[net.Conn]struct{})
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) track(ln net.Listener, conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[net.Listener]struct{})
		s.conns = make(map[net.Conn]struct{})
	}
	if ln != nil {
		if add {
			s.listeners[ln] = struct{}{}
		} else {
			delete(s.listeners, ln)
		}
	}
	if conn != nil {
		if add {
			s.conns[conn] = struct{}{}
		} else {
			delete(s.conns, conn)
		}
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.track(nil, conn, false)
	defer conn.Close()

	if s.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	}

	br := bufio.NewReader(conn)
	vars, err := ReadPacket(br)
	if err != nil {
		if err != io.EOF {
			s.logf("uwsgi: read packet from %s: %v", conn.RemoteAddr(), err)
		}
		return
	}

	rw := newResponseWriter()
	req, err := NewRequest(vars, br)
	if err != nil {
		s.logf("uwsgi: %v", err)
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		rw.writeTo(conn, nil)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req = req.WithContext(ctx)

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.logf("uwsgi: panic serving %s: %v", req.URL.Path, rec)
				rw.reset()
				http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		s.handler().ServeHTTP(rw, req)
	}()

	if err := rw.writeTo(conn, req); err != nil {
		s.logf("uwsgi: write response: %v", err)
	}
}

func (s *Server) handler() http.Handler {
	if s.Handler == nil {
		return http.DefaultServeMux
	}
	return s.Handler
}

// Close stops accepting and drops open connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown.Store(true)
	var err error
	for ln := range s.listeners {
		if cerr := ln.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	for conn := range s.conns {
		conn.Close()
	}
	return err
}

// Shutdown stops accepting and waits for in-flight requests to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown.Store(true)
	for ln := range s.listeners {
		ln.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	}
}

// responseWriter buffers the handler output so the response can carry a Content-Length.
type responseWriter struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: make(http.Header)}
}

func (w *responseWriter) Header() http.Header {
	return w.header
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(p)
}

func (w *responseWriter) reset() {
	w.header = make(http.Header)
	w.body.Reset()
	w.status = 0
	w.wroteHeader = false
}

func (w *responseWriter) writeTo(conn io.Writer, req *http.Request) error {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.header.Get("Content-Type") == "" && w.body.Len() > 0 {
		w.header.Set("Content-Type", http.DetectContentType(w.body.Bytes()))
	}
	w.header.Del("Content-Length")

	resp := &http.Response{
		StatusCode:    w.status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        w.header,
		ContentLength: int64(w.body.Len()),
		Close:         true,
		Request:       req,
	}
	if w.body.Len() > 0 && (req == nil || req.Method != http.MethodHead) {
		resp.Body = io.NopCloser(bytes.NewReader(w.body.Bytes()))
	}
	bw := bufio.NewWriter(conn)
	if err := resp.Write(bw); err != nil {
		return err
	}
	return bw.Flush()
}
