package proxy

import (
	"errors"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// staticHandler serves files below dir. With alias set the location prefix
// is replaced by dir; otherwise the full request path is looked up under dir.
type staticHandler struct {
	prefix    string
	dir       string
	alias     bool
	autoindex bool
	errorLog  *log.Logger
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	rel := r.URL.Path
	if h.alias {
		rel = strings.TrimPrefix(rel, h.prefix)
	}
	// Cleaning a rooted path drops every "..", keeping the lookup inside dir.
	name := path.Clean("/" + rel)
	full := filepath.Join(h.dir, filepath.FromSlash(name))

	info, err := os.Stat(full)
	if err != nil {
		statError(w, err)
		return
	}

	if info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			target := r.URL.Path + "/"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
			return
		}
		index := filepath.Join(full, "index.html")
		if indexInfo, err := os.Stat(index); err == nil && !indexInfo.IsDir() {
			serveFile(w, r, index, indexInfo)
			return
		}
		if !h.autoindex {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		h.listDir(w, r, full)
		return
	}
	serveFile(w, r, full, info)
}

func statError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, fs.ErrPermission):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func serveFile(w http.ResponseWriter, r *http.Request, name string, info os.FileInfo) {
	f, err := os.Open(name)
	if err != nil {
		statError(w, err)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

type listingEntry struct {
	Name    string
	Href    string
	ModTime string
	Size    string
}

type listing struct {
	Path    string
	Entries []listingEntry
}

var listingTemplate = template.Must(template.New("autoindex").Parse(`<html>
<head><title>Index of {{.Path}}</title></head>
<body>
<h1>Index of {{.Path}}</h1><hr><pre><a href="../">../</a>
{{range .Entries}}<a href="{{.Href}}">{{.Name}}</a>	{{.ModTime}}	{{.Size}}
{{end}}</pre><hr></body>
</html>
`))

// listDir renders a directory listing: subdirectories first, then files,
// each alphabetically. Dot files are not listed.
func (h *staticHandler) listDir(w http.ResponseWriter, r *http.Request, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		statError(w, err)
		return
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	data := listing{Path: r.URL.Path}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		e := listingEntry{
			Name:    entry.Name(),
			Href:    (&url.URL{Path: entry.Name()}).String(),
			ModTime: info.ModTime().UTC().Format("02-Jan-2006 15:04"),
			Size:    "-",
		}
		if entry.IsDir() {
			e.Name += "/"
			e.Href += "/"
		} else {
			e.Size = humanize.Bytes(uint64(info.Size()))
		}
		data.Entries = append(data.Entries, e)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	if r.Method == http.MethodHead {
		return
	}
	if err := listingTemplate.Execute(w, data); err != nil {
		h.errorLog.Printf("failed to send listing of %q: %v", data.Path, err)
	}
}
