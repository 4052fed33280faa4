// Package files resolves stored file ids to fetchable URLs.
package files

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/store"
)

// Signer turns an object key into a URL valid for ttl.
type Signer interface {
	SignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Resolver implements backend.Files on top of the files table. Files that
// were never registered resolve to the key "<bucket>/<fileID>".
type Resolver struct {
	db     *store.DB
	signer Signer
	ttl    time.Duration
}

// NewResolver creates a resolver signing URLs for ttl.
func NewResolver(db *store.DB, signer Signer, ttl time.Duration) *Resolver {
	return &Resolver{db: db, signer: signer, ttl: ttl}
}

// URL resolves a file id within a bucket.
func (r *Resolver) URL(ctx context.Context, bucket, fileID string) (string, error) {
	if !validSegment(bucket) || !validSegment(fileID) {
		return "", fmt.Errorf("%w: file %q/%q", backend.ErrInvalidQuery, bucket, fileID)
	}
	key := path.Join(bucket, fileID)
	if r.db != nil {
		f, err := r.db.GetFile(ctx, bucket, fileID)
		if err != nil {
			return "", fmt.Errorf("lookup file: %w", err)
		}
		if f != nil {
			key = f.ObjectKey
		}
	}
	u, err := r.signer.SignURL(ctx, key, r.ttl)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", key, err)
	}
	return u, nil
}

// Register records the object key backing a file id.
func (r *Resolver) Register(ctx context.Context, f *store.File) error {
	if !validSegment(f.Bucket) || !validSegment(f.ID) || f.ObjectKey == "" {
		return fmt.Errorf("%w: file %q/%q", backend.ErrInvalidQuery, f.Bucket, f.ID)
	}
	return r.db.UpsertFile(ctx, f)
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// Local serves files out of a directory as file:// URLs.
type Local struct {
	dir string
}

// NewLocal creates a signer rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// SignURL ignores ttl; local URLs never expire.
func (l *Local) SignURL(_ context.Context, key string, _ time.Duration) (string, error) {
	abs, err := filepath.Abs(filepath.Join(l.dir, filepath.FromSlash(key)))
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}
