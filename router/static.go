package router

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// StaticHandler serves the storage root read-only. Directories show their
// index.html when present, otherwise a listing unless listings are off.
// Dot-prefixed entries, such as documents still being staged, are never
// served.
type StaticHandler struct {
	root    string
	listing bool
	files   http.Handler
}

func NewStaticHandler(root string, listing bool) *StaticHandler {
	return &StaticHandler{
		root:    root,
		listing: listing,
		files:   http.FileServer(hiddenFS{http.Dir(root)}),
	}
}

func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p := path.Clean("/" + r.URL.Path)
	if hasHiddenSegment(p) {
		http.NotFound(w, r)
		return
	}
	if !h.listing && strings.HasSuffix(r.URL.Path, "/") {
		index := filepath.Join(h.root, filepath.FromSlash(p), "index.html")
		if _, err := os.Stat(index); err != nil {
			http.NotFound(w, r)
			return
		}
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	h.files.ServeHTTP(w, r)
}

func hasHiddenSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// hiddenFS drops dot-prefixed entries from directory listings.
type hiddenFS struct {
	http.FileSystem
}

func (fsys hiddenFS) Open(name string) (http.File, error) {
	if hasHiddenSegment(name) {
		return nil, fs.ErrNotExist
	}
	f, err := fsys.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	return hiddenFile{f}, nil
}

type hiddenFile struct {
	http.File
}

func (f hiddenFile) Readdir(n int) ([]fs.FileInfo, error) {
	infos, err := f.File.Readdir(n)
	visible := infos[:0]
	for _, fi := range infos {
		if !strings.HasPrefix(fi.Name(), ".") {
			visible = append(visible, fi)
		}
	}
	return visible, err
}
