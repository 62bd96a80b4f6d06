package repository

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediastore/internal/media/model"
)

func newTestRepo(t *testing.T) *MediaRepository {
	t.Helper()
	repo := NewMediaRepository(Layout{Root: t.TempDir(), PublicDir: "public", PrivateDir: "private"})
	require.NoError(t, repo.EnsureLayout())
	return repo
}

// listFiles returns every regular file under root, relative to it.
func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, p)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o640))
}

func TestEnsureLayout(t *testing.T) {
	repo := newTestRepo(t)
	for _, dir := range []string{"public", "private"} {
		fi, err := os.Stat(filepath.Join(repo.Layout.Root, dir))
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	}
	// Running it again is harmless.
	assert.NoError(t, repo.EnsureLayout())
}

func TestCreate(t *testing.T) {
	repo := newTestRepo(t)

	dest, err := repo.Create(model.VisibilityPrivate, "alice", "doc1", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(repo.Layout.Root, "private", "alice", "doc1.json"), dest)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	fi, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerm), fi.Mode().Perm())

	// Only the published file remains; the staging file is gone.
	assert.Equal(t, []string{"private/alice/doc1.json"}, listFiles(t, repo.Layout.Root))
}

func TestCreateNeverOverwrites(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Create(model.VisibilityPublic, "alice", "doc1", []byte(`"first"`))
	require.NoError(t, err)

	_, err = repo.Create(model.VisibilityPublic, "alice", "doc1", []byte(`"second"`))
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	got, err := os.ReadFile(filepath.Join(repo.Layout.Root, "public", "alice", "doc1.json"))
	require.NoError(t, err)
	assert.Equal(t, `"first"`, string(got))
	assert.Equal(t, []string{"public/alice/doc1.json"}, listFiles(t, repo.Layout.Root))
}

func TestCreateLinkFailureLeavesNothing(t *testing.T) {
	repo := newTestRepo(t)
	repo.link = func(string, string) error { return &os.LinkError{Op: "link", Err: syscall.EIO} }

	_, err := repo.Create(model.VisibilityPrivate, "alice", "doc1", []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStorageFailure)
	assert.NotErrorIs(t, err, model.ErrAlreadyExists)

	assert.Empty(t, listFiles(t, repo.Layout.Root))
}

func TestCreateRejectsBadSegments(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Create(model.VisibilityPrivate, "../escape", "doc1", []byte(`{}`))
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
	assert.Empty(t, listFiles(t, repo.Layout.Root))
}

func TestCreateConcurrentSameOwner(t *testing.T) {
	repo := newTestRepo(t)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(model.VisibilityPublic, "alice", fmt.Sprintf("doc%d", i), []byte(`{}`))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, listFiles(t, repo.Layout.Root), n)
}

func TestRemoveOwnerNothingStored(t *testing.T) {
	repo := newTestRepo(t)

	res, err := repo.RemoveOwner("bob")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNotFound, res.Outcome)
	require.Len(t, res.Roots, 2)
	assert.False(t, res.Roots[0].Existed)
	assert.False(t, res.Roots[1].Existed)
}

func TestRemoveOwnerBothTrees(t *testing.T) {
	repo := newTestRepo(t)
	root := repo.Layout.Root
	writeFile(t, filepath.Join(root, "public", "alice", "a.json"), "{}")
	writeFile(t, filepath.Join(root, "public", "alice", "nested", "deep", "b.json"), "{}")
	writeFile(t, filepath.Join(root, "private", "alice", "c.json"), "{}")
	writeFile(t, filepath.Join(root, "private", "carol", "d.json"), "{}")

	res, err := repo.RemoveOwner("alice")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDeleted, res.Outcome)
	// a.json, nested, nested/deep, nested/deep/b.json and the root itself.
	assert.Equal(t, 5, res.Roots[0].Removed)
	assert.Equal(t, 2, res.Roots[1].Removed)

	assert.NoDirExists(t, filepath.Join(root, "public", "alice"))
	assert.NoDirExists(t, filepath.Join(root, "private", "alice"))
	// Other owners are untouched.
	assert.Equal(t, []string{"private/carol/d.json"}, listFiles(t, root))
}

func TestRemoveOwnerPublicOnly(t *testing.T) {
	repo := newTestRepo(t)
	writeFile(t, filepath.Join(repo.Layout.Root, "public", "alice", "a.json"), "{}")

	res, err := repo.RemoveOwner("alice")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDeleted, res.Outcome)
	assert.True(t, res.Roots[0].Existed)
	assert.False(t, res.Roots[1].Existed)
}

func TestRemoveOwnerPartialFailure(t *testing.T) {
	repo := newTestRepo(t)
	root := repo.Layout.Root
	writeFile(t, filepath.Join(root, "public", "alice", "stuck.json"), "{}")
	writeFile(t, filepath.Join(root, "private", "alice", "c.json"), "{}")

	repo.remove = func(p string) error {
		if strings.HasSuffix(p, "stuck.json") {
			return &os.PathError{Op: "remove", Path: p, Err: syscall.EBUSY}
		}
		return os.Remove(p)
	}

	res, err := repo.RemoveOwner("alice")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePartialFailure, res.Outcome)

	pub := res.Roots[0]
	require.Error(t, pub.Err)
	assert.ErrorIs(t, pub.Err, model.ErrStorageFailure)
	assert.FileExists(t, filepath.Join(root, "public", "alice", "stuck.json"))

	// The failure in one tree does not stop the other.
	assert.NoError(t, res.Roots[1].Err)
	assert.NoDirExists(t, filepath.Join(root, "private", "alice"))
}

func TestRemoveOwnerAlreadyGoneIsSuccess(t *testing.T) {
	repo := newTestRepo(t)
	writeFile(t, filepath.Join(repo.Layout.Root, "public", "alice", "a.json"), "{}")

	// Something else removes the file between enumeration and removal.
	repo.remove = func(p string) error {
		if strings.HasSuffix(p, "a.json") {
			os.Remove(p)
			return &os.PathError{Op: "remove", Path: p, Err: fs.ErrNotExist}
		}
		return os.Remove(p)
	}

	res, err := repo.RemoveOwner("alice")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDeleted, res.Outcome)
}

func TestRemoveOwnerRejectsTraversal(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.RemoveOwner("..")
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
	assert.DirExists(t, filepath.Join(repo.Layout.Root, "public"))
}

func TestDeleteWaitsForWrites(t *testing.T) {
	repo := newTestRepo(t)

	// Hold the shared lock as an in-flight write would.
	unlock := repo.lockOwner("alice", false)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = repo.RemoveOwner("alice")
	}()

	select {
	case <-done:
		t.Fatal("delete ran while a write held the owner lock")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-done
}
