package repository

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"mediastore/internal/media/model"
)

const documentExt = ".json"

// Layout names the storage root and the two visibility subtrees under it.
type Layout struct {
	Root       string
	PublicDir  string
	PrivateDir string
}

// OwnerRoots are the two candidate subtrees for one owner.
type OwnerRoots struct {
	Public  string
	Private string
}

// ValidateSegment rejects values that cannot be used verbatim as a single
// path component below the storage root. Leading dots are reserved for
// staging files and are never served.
func ValidateSegment(s string) error {
	if s == "" || strings.HasPrefix(s, ".") ||
		strings.Contains(s, "..") ||
		strings.ContainsAny(s, "/\\\x00") {
		return fmt.Errorf("%w: %q", model.ErrInvalidIdentifier, s)
	}
	return nil
}

// Dir returns the configured directory name for a visibility.
func (l Layout) Dir(vis model.Visibility) (string, error) {
	switch vis {
	case model.VisibilityPublic:
		return l.PublicDir, nil
	case model.VisibilityPrivate:
		return l.PrivateDir, nil
	default:
		return "", fmt.Errorf("%w: visibility %q", model.ErrInvalidIdentifier, vis)
	}
}

// ResolveDocumentPath maps (visibility, owner, id) to the document's file.
// It performs no I/O.
func ResolveDocumentPath(l Layout, vis model.Visibility, ownerID, id string) (string, error) {
	dir, err := l.Dir(vis)
	if err != nil {
		return "", err
	}
	if err := ValidateSegment(ownerID); err != nil {
		return "", err
	}
	if err := ValidateSegment(id); err != nil {
		return "", err
	}
	return filepath.Join(l.Root, dir, ownerID, id+documentExt), nil
}

// ResolveOwnerRoots returns the public and private subtrees of ownerID.
func ResolveOwnerRoots(l Layout, ownerID string) (OwnerRoots, error) {
	if err := ValidateSegment(ownerID); err != nil {
		return OwnerRoots{}, err
	}
	return OwnerRoots{
		Public:  filepath.Join(l.Root, l.PublicDir, ownerID),
		Private: filepath.Join(l.Root, l.PrivateDir, ownerID),
	}, nil
}

// Location is the root-relative URL path under which static serving exposes
// the document. Always slash separated, with each segment escaped.
func Location(l Layout, vis model.Visibility, ownerID, id string) (string, error) {
	dir, err := l.Dir(vis)
	if err != nil {
		return "", err
	}
	return path.Join("/", url.PathEscape(dir), url.PathEscape(ownerID), url.PathEscape(id+documentExt)), nil
}
