package proxy

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"
)

// logFiles opens each log destination once, however many servers share it.
type logFiles struct {
	files map[string]*os.File
}

func newLogFiles() *logFiles {
	return &logFiles{files: make(map[string]*os.File)}
}

// writer resolves a log setting: "off", "stderr", "stdout" or a file path.
// An empty setting uses fallback.
func (l *logFiles) writer(dest string, fallback io.Writer) (io.Writer, error) {
	switch dest {
	case "":
		return fallback, nil
	case "off":
		return io.Discard, nil
	case "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	if f, ok := l.files[dest]; ok {
		return f, nil
	}
	f, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", dest, err)
	}
	l.files[dest] = f
	return f, nil
}

func (l *logFiles) Close() error {
	var first error
	for _, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.files = make(map[string]*os.File)
	return first
}

// logWriter records the status and body size for the access log.
type logWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *logWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *logWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *logWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// logAccess writes one line in the combined log format.
func logAccess(logger *log.Logger, r *http.Request, w *logWriter, now time.Time) {
	user := "-"
	if u, _, ok := r.BasicAuth(); ok && u != "" {
		user = u
	}
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	logger.Printf("%s - %s [%s] \"%s %s %s\" %d %d \"%s\" \"%s\"",
		remoteHost(r), user, now.Format("02/Jan/2006:15:04:05 -0700"),
		r.Method, r.RequestURI, r.Proto, status, w.bytes,
		dash(r.Referer()), dash(r.UserAgent()))
}
