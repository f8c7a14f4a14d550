package uwsgi

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Transport is an http.RoundTripper that forwards requests to a uwsgi
// application server. Addr is host:port or unix:/path/to/socket.
type Transport struct {
	Addr        string
	DialTimeout time.Duration
}

func (t *Transport) dial(ctx context.Context) (net.Conn, error) {
	network, addr := "tcp", t.Addr
	if strings.HasPrefix(addr, "unix:") {
		network, addr = "unix", strings.TrimPrefix(addr, "unix:")
	}
	timeout := t.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, network, addr)
}

// RoundTrip sends one request per connection and parses the raw HTTP
// response the application writes back.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// The vars block needs the body length up front.
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}
	out := req.Clone(ctx)
	out.ContentLength = int64(len(body))

	conn, err := t.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("uwsgi: dial %s: %w", t.Addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	bw := bufio.NewWriter(conn)
	err = WritePacket(bw, RequestVars(out))
	if err == nil {
		_, err = io.Copy(bw, bytes.NewReader(body))
	}
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		stop()
		conn.Close()
		return nil, fmt.Errorf("uwsgi: write request: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		stop()
		conn.Close()
		return nil, fmt.Errorf("uwsgi: read response: %w", err)
	}
	resp.Body = &connBody{ReadCloser: resp.Body, conn: conn, stop: stop}
	return resp, nil
}

// connBody closes the connection together with the response body.
type connBody struct {
	io.ReadCloser
	conn net.Conn
	stop func() bool
}

func (b *connBody) Close() error {
	b.stop()
	err := b.ReadCloser.Close()
	if cerr := b.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
