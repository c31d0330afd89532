// Package storage provides StorageAdapter implementations.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
)

const metaSuffix = ".meta.json"

// Local stores objects on the local filesystem. Metadata lives in a JSON
// side-car next to each object.
type Local struct {
	rootDir     string
	permissions os.FileMode
}

// NewLocal creates a Local storage adapter rooted at dir.
func NewLocal(dir string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: mkdir %s: %w", dir, err)
	}
	return &Local{rootDir: dir, permissions: perm}, nil
}

// absPath maps Bucket to a subdirectory and Path to the file name. Both are
// cleaned as rooted paths so ".." can never leave rootDir.
func (l *Local) absPath(key core.StorageKey) string {
	return filepath.Join(l.rootDir,
		filepath.Clean("/"+key.Bucket),
		filepath.Clean("/"+key.Path))
}

// Put writes r to a temporary file and renames it into place, so readers
// never observe a partially written object.
func (l *Local) Put(ctx context.Context, key core.StorageKey, r io.Reader, size int64, meta map[string]string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put", err)
	}

	path := l.absPath(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.mkdir", err)
	}

	if len(meta) > 0 {
		if err := l.writeAtomic(dir, path+metaSuffix, func(w io.Writer) error {
			return json.NewEncoder(w).Encode(meta)
		}); err != nil {
			return apperrors.Wrap(apperrors.CategoryStorage, "local.put.meta", err)
		}
	}

	err := l.writeAtomic(dir, path, func(w io.Writer) error {
		n, err := io.Copy(w, r)
		if err != nil {
			return err
		}
		if size >= 0 && n != size {
			return fmt.Errorf("short write: %d of %d bytes", n, size)
		}
		return nil
	})
	if err != nil {
		_ = os.Remove(path + metaSuffix)
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.write", err)
	}
	return nil
}

func (l *Local) writeAtomic(dir, path string, fill func(io.Writer) error) error {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, l.permissions); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (l *Local) Get(ctx context.Context, key core.StorageKey) (io.ReadCloser, map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryStorage, "local.get", err)
	}
	path := l.absPath(key)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, apperrors.New(apperrors.CategoryNotFound, "local.get",
				fmt.Errorf("%w: %s/%s", apperrors.ErrNotFound, key.Bucket, key.Path))
		}
		return nil, nil, apperrors.Wrap(apperrors.CategoryStorage, "local.get.open", err)
	}

	meta := map[string]string{}
	raw, err := os.ReadFile(path + metaSuffix)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &meta); err != nil {
			f.Close()
			return nil, nil, apperrors.Wrap(apperrors.CategoryStorage, "local.get.meta", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		f.Close()
		return nil, nil, apperrors.Wrap(apperrors.CategoryStorage, "local.get.meta", err)
	}
	return f, meta, nil
}

func (l *Local) Delete(ctx context.Context, key core.StorageKey) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.delete", err)
	}
	path := l.absPath(key)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.delete", err)
	}
	_ = os.Remove(path + metaSuffix)
	return nil
}

func (l *Local) Exists(ctx context.Context, key core.StorageKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.Wrap(apperrors.CategoryStorage, "local.exists", err)
	}
	_, err := os.Stat(l.absPath(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, apperrors.Wrap(apperrors.CategoryStorage, "local.exists.stat", err)
}

// List returns the objects in bucket whose path starts with prefix. Side-car
// and temporary files are skipped.
func (l *Local) List(ctx context.Context, bucket, prefix string) ([]core.StorageKey, error) {
	root := filepath.Join(l.rootDir, filepath.Clean("/"+bucket))
	var keys []core.StorageKey
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, metaSuffix) || strings.HasPrefix(name, ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			keys = append(keys, core.StorageKey{Bucket: bucket, Path: rel})
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.list", err)
	}
	return keys, nil
}
