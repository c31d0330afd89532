package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
)

// Redis keeps one key per result holding a CBOR envelope. Keys are written
// with SET NX, so a colliding identifier can never overwrite an existing
// result, and expire through Redis' native TTL.
type Redis struct {
	client redis.UniversalClient
	prefix string
	opts   Options
}

// NewRedis returns a Store over client. Every key is prefixed with prefix.
func NewRedis(client redis.UniversalClient, prefix string, opts Options) *Redis {
	return &Redis{client: client, prefix: prefix, opts: opts.withDefaults()}
}

func (r *Redis) key(id string) string { return r.prefix + id }

func (r *Redis) Put(ctx context.Context, a core.Artifact) (string, error) {
	const op = "redis.put"
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(apperrors.CategoryCanceled, op, err)
	}
	now := r.opts.Now()
	value, err := marshalEnvelope(seal(a, now, r.opts.expiry(now)))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CategoryInternal, op, err)
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := r.opts.NewID()
		ok, err := r.client.SetNX(ctx, r.key(id), value, r.opts.TTL).Result()
		if err != nil {
			return "", redisError(op, err)
		}
		if ok {
			return id, nil
		}
		r.opts.Logger.Warn("store.id_collision", "attempt", attempt+1)
	}
	return "", apperrors.New(apperrors.CategoryExhausted, op,
		fmt.Errorf("%w after %d attempts", apperrors.ErrIDCollision, maxIDAttempts))
}

func (r *Redis) Get(ctx context.Context, id string) (*core.Result, error) {
	const op = "redis.get"
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.New(apperrors.CategoryNotFound, op, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, redisError(op, err)
	}
	env, err := unmarshalEnvelope(raw)
	if err != nil {
		return nil, err
	}
	// Redis expiry is authoritative; this only covers clock skew between
	// writers and the server.
	if expired(env.expiresAt(), r.opts.Now()) {
		return nil, apperrors.New(apperrors.CategoryNotFound, op, apperrors.ErrNotFound)
	}
	return env.open(id)
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return redisError("redis.delete", err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys itself.
func (r *Redis) Sweep(context.Context) (int, error) { return 0, nil }

func (r *Redis) Close() error { return r.client.Close() }

func redisError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.CategoryCanceled, op, err)
	}
	return apperrors.Transient(op, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err))
}
