package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"mediastore/internal/media/model"
	"mediastore/pkg/logger"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// MediaRepository owns the on-disk layout. The directory tree is the only
// index; nothing is cached between calls.
type MediaRepository struct {
	Layout Layout

	// owners holds one *sync.RWMutex per owner id. Writes share the lock,
	// owner deletes take it exclusively. Entries are never evicted.
	owners sync.Map

	// Swappable for tests.
	remove func(string) error
	link   func(oldname, newname string) error
}

func NewMediaRepository(layout Layout) *MediaRepository {
	return &MediaRepository{
		Layout: layout,
		remove: os.Remove,
		link:   os.Link,
	}
}

// EnsureLayout creates the root and both visibility directories.
func (r *MediaRepository) EnsureLayout() error {
	for _, dir := range []string{r.Layout.PublicDir, r.Layout.PrivateDir} {
		p := filepath.Join(r.Layout.Root, dir)
		if err := os.MkdirAll(p, dirPerm); err != nil {
			return &model.StorageError{Op: "mkdir", Path: p, Err: err}
		}
	}
	return nil
}

// Create stores data as a new document and never replaces an existing
// file. The content is staged in a hidden temp file next to the target and
// published with a hard link, so readers see either the whole document or
// nothing. Returns the absolute path written.
func (r *MediaRepository) Create(vis model.Visibility, ownerID, id string, data []byte) (string, error) {
	dest, err := ResolveDocumentPath(r.Layout, vis, ownerID, id)
	if err != nil {
		return "", err
	}

	unlock := r.lockOwner(ownerID, false)
	defer unlock()

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		logger.Sugar.Errorf("Failed to create directory %s for owner %s: %v", dir, ownerID, err)
		return "", &model.StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+id+".*.tmp")
	if err != nil {
		logger.Sugar.Errorf("Failed to stage document %s for owner %s: %v", id, ownerID, err)
		return "", &model.StorageError{Op: "create", Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if err := writeAndSync(tmp, data); err != nil {
		logger.Sugar.Errorf("Failed to write document %s for owner %s: %v", id, ownerID, err)
		return "", &model.StorageError{Op: "write", Path: tmpName, Err: err}
	}

	if err := r.link(tmpName, dest); err != nil {
		if errors.Is(err, fs.ErrExist) {
			logger.Sugar.Warnf("Document %s already exists, refusing to overwrite", dest)
			return "", fmt.Errorf("%w: %s", model.ErrAlreadyExists, dest)
		}
		logger.Sugar.Errorf("Failed to publish document %s: %v", dest, err)
		return "", &model.StorageError{Op: "link", Path: dest, Err: err}
	}
	return dest, nil
}

func writeAndSync(f *os.File, data []byte) error {
	if err := os.Chmod(f.Name(), filePerm); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RemoveOwner deletes both subtrees of ownerID. A failure in one subtree
// stops work on that subtree only; the other one is still attempted.
func (r *MediaRepository) RemoveOwner(ownerID string) (*model.DeleteResult, error) {
	roots, err := ResolveOwnerRoots(r.Layout, ownerID)
	if err != nil {
		return nil, err
	}

	unlock := r.lockOwner(ownerID, true)
	defer unlock()

	results := []model.RootResult{
		r.removeTree(model.VisibilityPublic, roots.Public),
		r.removeTree(model.VisibilityPrivate, roots.Private),
	}
	for _, res := range results {
		if res.Err != nil {
			logger.Sugar.Errorf("Delete of owner %s left %s subtree %s incomplete after %d removals: %v",
				ownerID, res.Visibility, res.Path, res.Removed, res.Err)
		}
	}
	return model.Combine(ownerID, results), nil
}

func (r *MediaRepository) removeTree(vis model.Visibility, root string) model.RootResult {
	res := model.RootResult{Visibility: vis, Path: root}

	if _, err := os.Lstat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res
		}
		res.Existed = true
		res.Err = &model.StorageError{Op: "stat", Path: root, Err: err}
		return res
	}
	res.Existed = true

	var paths []string
	err := filepath.WalkDir(root, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != root {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		res.Err = &model.StorageError{Op: "walk", Path: root, Err: err}
		return res
	}

	// Deepest first, so every entry goes before its parent directory.
	sort.SliceStable(paths, func(i, j int) bool {
		return depth(paths[i]) > depth(paths[j])
	})
	paths = append(paths, root)

	for _, p := range paths {
		if err := r.remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			res.Err = &model.StorageError{Op: "remove", Path: p, Err: err}
			return res
		}
		res.Removed++
	}
	return res
}

func depth(p string) int {
	return strings.Count(p, string(filepath.Separator))
}

func (r *MediaRepository) lockOwner(ownerID string, exclusive bool) (unlock func()) {
	v, _ := r.owners.LoadOrStore(ownerID, &sync.RWMutex{})
	mu := v.(*sync.RWMutex)
	if exclusive {
		mu.Lock()
		return mu.Unlock
	}
	mu.RLock()
	return mu.RUnlock
}
