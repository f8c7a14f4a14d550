package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"

	"biostar/uwsgi"
)

// roundRobin hands out the addresses of an upstream in turn.
type roundRobin struct {
	addrs []string
	next  atomic.Uint64
}

func (rr *roundRobin) pick() string {
	n := rr.next.Add(1) - 1
	return rr.addrs[n%uint64(len(rr.addrs))]
}

func resolveUpstream(name string, upstreams map[string][]string) *roundRobin {
	if addrs, ok := upstreams[name]; ok {
		return &roundRobin{addrs: addrs}
	}
	return &roundRobin{addrs: []string{name}}
}

// uwsgiTransport sends each request to the next address of the upstream.
type uwsgiTransport struct {
	backends   *roundRobin
	transports map[string]*uwsgi.Transport
}

func newUwsgiTransport(backends *roundRobin) *uwsgiTransport {
	t := &uwsgiTransport{backends: backends, transports: make(map[string]*uwsgi.Transport)}
	for _, addr := range backends.addrs {
		t.transports[addr] = &uwsgi.Transport{Addr: addr}
	}
	return t
}

func (t *uwsgiTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.transports[t.backends.pick()].RoundTrip(req)
}

// newUwsgiPass forwards requests to a uwsgi application server.
func newUwsgiPass(target string, upstreams map[string][]string, errorLog *log.Logger) http.Handler {
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			forwardHeaders(pr)
			pr.Out.URL.Scheme = "http"
			if pr.In.TLS != nil {
				pr.Out.URL.Scheme = "https"
			}
			pr.Out.URL.Host = pr.In.Host
		},
		Transport: newUwsgiTransport(resolveUpstream(target, upstreams)),
		ErrorLog:  errorLog,
	}
	rp.ErrorHandler = upstreamError(errorLog, target)
	return rp
}

// newProxyPass forwards requests to an HTTP server. The host of target may
// name an upstream group.
func newProxyPass(target string, upstreams map[string][]string, errorLog *log.Logger) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy_pass %q: %w", target, err)
	}
	backends := resolveUpstream(u.Host, upstreams)
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			dest := *u
			dest.Host = backends.pick()
			pr.SetURL(&dest)
			forwardHeaders(pr)
		},
		ErrorLog: errorLog,
	}
	rp.ErrorHandler = upstreamError(errorLog, target)
	return rp, nil
}

// forwardHeaders keeps the client's Host and reports the client address
// and scheme: X-Real-IP, X-Forwarded-For (appended to any inbound chain)
// and X-Forwarded-Proto.
func forwardHeaders(pr *httputil.ProxyRequest) {
	if prior, ok := pr.In.Header["X-Forwarded-For"]; ok {
		pr.Out.Header["X-Forwarded-For"] = append([]string(nil), prior...)
	}
	pr.SetXForwarded()
	if ip, _, err := net.SplitHostPort(pr.In.RemoteAddr); err == nil {
		pr.Out.Header.Set("X-Real-IP", ip)
	}
	pr.Out.Host = pr.In.Host
}

func upstreamError(errorLog *log.Logger, target string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		if bodyTooLarge(r, err) {
			errorLog.Printf("client intended to send too large body: %s %s", r.Method, r.URL.Path)
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		if errors.Is(err, context.Canceled) {
			errorLog.Printf("client closed connection while waiting for %s: %s", target, r.URL.Path)
			w.WriteHeader(499)
			return
		}
		errorLog.Printf("upstream %s failed for %s %s: %v", target, r.Method, r.URL.Path, err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	}
}

type bodyLimitKey struct{}

// limitedBody notes when the client body ran past the size ceiling.
type limitedBody struct {
	io.ReadCloser
	exceeded atomic.Bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		b.exceeded.Store(true)
	}
	return n, err
}

func bodyTooLarge(r *http.Request, err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	body, ok := r.Context().Value(bodyLimitKey{}).(*limitedBody)
	return ok && body.exceeded.Load()
}
