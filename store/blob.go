package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
)

// Blob stores each result as one object through a core.StorageAdapter: the
// payload is the object body and the envelope header travels as object
// metadata. Expiry is checked lazily on Get; Sweep needs an adapter that
// implements core.KeyLister.
type Blob struct {
	adapter core.StorageAdapter
	bucket  string
	prefix  string
	opts    Options
}

// NewBlob returns a Store writing objects named prefix+id into bucket.
func NewBlob(adapter core.StorageAdapter, bucket, prefix string, opts Options) *Blob {
	return &Blob{adapter: adapter, bucket: bucket, prefix: prefix, opts: opts.withDefaults()}
}

func (b *Blob) key(id string) core.StorageKey {
	return core.StorageKey{Bucket: b.bucket, Path: b.prefix + id}
}

// Put writes the object after checking the identifier is free. The check and
// the write are not atomic; with random UUIDs a race between them is not a
// practical concern.
func (b *Blob) Put(ctx context.Context, a core.Artifact) (string, error) {
	const op = "blob.put"
	now := b.opts.Now()
	env := seal(a, now, b.opts.expiry(now))
	meta := env.metadata()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := b.opts.NewID()
		key := b.key(id)
		taken, err := b.adapter.Exists(ctx, key)
		if err != nil {
			return "", apperrors.Wrap(apperrors.CategoryStorage, op, err)
		}
		if taken {
			b.opts.Logger.Warn("store.id_collision", "attempt", attempt+1)
			continue
		}
		if err := b.adapter.Put(ctx, key, bytes.NewReader(env.Payload), int64(len(env.Payload)), meta); err != nil {
			return "", apperrors.Wrap(apperrors.CategoryStorage, op, err)
		}
		return id, nil
	}
	return "", apperrors.New(apperrors.CategoryExhausted, op,
		fmt.Errorf("%w after %d attempts", apperrors.ErrIDCollision, maxIDAttempts))
}

func (b *Blob) Get(ctx context.Context, id string) (*core.Result, error) {
	const op = "blob.get"
	key := b.key(id)
	rc, meta, err := b.adapter.Get(ctx, key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, op, err)
	}
	defer rc.Close()

	env, err := envelopeFromMetadata(meta, nil)
	if err != nil {
		return nil, err
	}
	if expired(env.expiresAt(), b.opts.Now()) {
		if err := b.adapter.Delete(ctx, key); err != nil {
			b.opts.Logger.Warn("store.lazy_delete.failed", "id", id, "error", err)
		}
		return nil, apperrors.New(apperrors.CategoryNotFound, op, apperrors.ErrNotFound)
	}

	if env.Payload, err = io.ReadAll(rc); err != nil {
		return nil, apperrors.Transient(op, err)
	}
	return env.open(id)
}

func (b *Blob) Delete(ctx context.Context, id string) error {
	return apperrors.Wrap(apperrors.CategoryStorage, "blob.delete", b.adapter.Delete(ctx, b.key(id)))
}

// Sweep lists every object under the prefix and deletes the expired ones.
// It is a no-op when the adapter cannot list.
func (b *Blob) Sweep(ctx context.Context) (int, error) {
	const op = "blob.sweep"
	lister, ok := b.adapter.(core.KeyLister)
	if !ok || b.opts.TTL <= 0 {
		return 0, nil
	}
	keys, err := lister.List(ctx, b.bucket, b.prefix)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CategoryStorage, op, err)
	}

	now := b.opts.Now()
	removed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, apperrors.Wrap(apperrors.CategoryCanceled, op, err)
		}
		rc, meta, err := b.adapter.Get(ctx, key)
		if err != nil {
			if apperrors.IsCategory(err, apperrors.CategoryNotFound) {
				continue
			}
			return removed, apperrors.Wrap(apperrors.CategoryStorage, op, err)
		}
		rc.Close()
		env, err := envelopeFromMetadata(meta, nil)
		if err != nil {
			b.opts.Logger.Warn("store.sweep.bad_metadata", "key", key.Path, "error", err)
			continue
		}
		if !expired(env.expiresAt(), now) {
			continue
		}
		if err := b.adapter.Delete(ctx, key); err != nil {
			return removed, apperrors.Wrap(apperrors.CategoryStorage, op, err)
		}
		removed++
		b.opts.Logger.Debug("store.swept", "id", strings.TrimPrefix(key.Path, b.prefix))
	}
	return removed, nil
}

func (b *Blob) Close() error { return nil }
