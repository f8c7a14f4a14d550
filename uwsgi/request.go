package uwsgi

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// RequestVars builds the CGI style variables describing req.
func RequestVars(req *http.Request) Vars {
	var vars Vars
	vars.Add("REQUEST_METHOD", req.Method)
	vars.Add("REQUEST_URI", req.URL.RequestURI())
	vars.Add("PATH_INFO", req.URL.Path)
	vars.Add("QUERY_STRING", req.URL.RawQuery)
	vars.Add("CONTENT_TYPE", req.Header.Get("Content-Type"))
	if req.ContentLength > 0 {
		vars.Add("CONTENT_LENGTH", strconv.FormatInt(req.ContentLength, 10))
	} else {
		vars.Add("CONTENT_LENGTH", "")
	}

	proto := req.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}
	vars.Add("SERVER_PROTOCOL", proto)

	scheme := "http"
	if req.TLS != nil || req.URL.Scheme == "https" {
		scheme = "https"
	}
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	name, port, err := net.SplitHostPort(host)
	if err != nil {
		name = host
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	}
	vars.Add("SERVER_NAME", name)
	vars.Add("SERVER_PORT", port)
	vars.Add("UWSGI_SCHEME", scheme)

	if req.RemoteAddr != "" {
		addr, rport, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			addr = req.RemoteAddr
		}
		vars.Add("REMOTE_ADDR", addr)
		vars.Add("REMOTE_PORT", rport)
	}

	vars.Add("HTTP_HOST", host)
	keys := make([]string, 0, len(req.Header))
	for key := range req.Header {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if key == "Content-Type" || key == "Content-Length" || key == "Host" {
			continue
		}
		sep := ", "
		if key == "Cookie" {
			sep = "; "
		}
		name := "HTTP_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		vars.Add(name, strings.Join(req.Header[key], sep))
	}
	return vars
}

// NewRequest rebuilds a server side request from vars. body is the stream
// following the packet; it is limited to CONTENT_LENGTH.
func NewRequest(vars Vars, body io.Reader) (*http.Request, error) {
	method := vars.Get("REQUEST_METHOD")
	if method == "" {
		method = http.MethodGet
	}
	uri := vars.Get("REQUEST_URI")
	if uri == "" {
		uri = vars.Get("PATH_INFO")
		if q := vars.Get("QUERY_STRING"); q != "" {
			uri += "?" + q
		}
	}
	u, err := url.ParseRequestURI(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: bad request uri %q", ErrMalformedPacket, uri)
	}

	proto := vars.Get("SERVER_PROTOCOL")
	if proto == "" {
		proto = "HTTP/1.0"
	}
	major, minor, ok := http.ParseHTTPVersion(proto)
	if !ok {
		return nil, fmt.Errorf("%w: bad protocol %q", ErrMalformedPacket, proto)
	}

	req := &http.Request{
		Method:     method,
		URL:        u,
		Proto:      proto,
		ProtoMajor: major,
		ProtoMinor: minor,
		Header:     make(http.Header),
		RequestURI: uri,
		Body:       http.NoBody,
	}

	for _, kv := range vars {
		switch {
		case kv.Key == "HTTP_HOST":
			req.Host = kv.Value
		case strings.HasPrefix(kv.Key, "HTTP_"):
			name := textproto.CanonicalMIMEHeaderKey(strings.ReplaceAll(kv.Key[5:], "_", "-"))
			req.Header.Add(name, kv.Value)
		case kv.Key == "CONTENT_TYPE" && kv.Value != "":
			req.Header.Set("Content-Type", kv.Value)
		}
	}
	if req.Host == "" {
		req.Host = vars.Get("SERVER_NAME")
	}

	if addr := vars.Get("REMOTE_ADDR"); addr != "" {
		req.RemoteAddr = net.JoinHostPort(addr, vars.Get("REMOTE_PORT"))
	}

	if cl := vars.Get("CONTENT_LENGTH"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad content length %q", ErrMalformedPacket, cl)
		}
		req.ContentLength = n
		req.Header.Set("Content-Length", cl)
		if n > 0 && body != nil {
			req.Body = io.NopCloser(io.LimitReader(body, n))
		}
	}
	return req, nil
}
