package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash/maphash"
	"sync"
	"sync/atomic"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
)

const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	items map[string]*core.Result
}

// Memory is an in-process Store. Entries are spread over independently
// locked shards so writes to different identifiers rarely contend, and no
// lock is held while copying payloads in or out.
type Memory struct {
	opts   Options
	seed   maphash.Seed
	shards [shardCount]shard

	entries atomic.Int64
	bytes   atomic.Int64
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts Options) *Memory {
	m := &Memory{opts: opts.withDefaults(), seed: maphash.MakeSeed()}
	for i := range m.shards {
		m.shards[i].items = make(map[string]*core.Result)
	}
	return m
}

func (m *Memory) shardFor(id string) *shard {
	return &m.shards[maphash.String(m.seed, id)%shardCount]
}

// Put copies a into the store under a fresh identifier.
func (m *Memory) Put(ctx context.Context, a core.Artifact) (string, error) {
	const op = "memory.put"
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(apperrors.CategoryCanceled, op, err)
	}

	size := int64(len(a.Data))
	if err := m.reserve(ctx, size); err != nil {
		return "", err
	}

	now := m.opts.Now()
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	res := &core.Result{
		Data:        data,
		ContentType: a.ContentType,
		CreatedAt:   now,
		ExpiresAt:   m.opts.expiry(now),
		Checksum:    hex.EncodeToString(checksum(data)),
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := m.opts.NewID()
		sh := m.shardFor(id)
		sh.mu.Lock()
		old, taken := sh.items[id]
		if taken && expired(old.ExpiresAt, now) {
			m.release(int64(len(old.Data)))
			taken = false
		}
		if !taken {
			res.ID = id
			sh.items[id] = res
			sh.mu.Unlock()
			return id, nil
		}
		sh.mu.Unlock()
		m.opts.Logger.Warn("store.id_collision", "attempt", attempt+1)
	}

	m.release(size)
	return "", apperrors.New(apperrors.CategoryExhausted, op,
		fmt.Errorf("%w after %d attempts", apperrors.ErrIDCollision, maxIDAttempts))
}

// reserve accounts for one more entry of size bytes. When a limit is hit it
// sweeps expired entries once before giving up.
func (m *Memory) reserve(ctx context.Context, size int64) error {
	for swept := false; ; swept = true {
		entries := m.entries.Add(1)
		total := m.bytes.Add(size)
		over := (m.opts.MaxEntries > 0 && entries > int64(m.opts.MaxEntries)) ||
			(m.opts.MaxBytes > 0 && total > m.opts.MaxBytes)
		if !over {
			return nil
		}
		m.release(size)
		if swept || m.opts.TTL <= 0 {
			return apperrors.New(apperrors.CategoryExhausted, "memory.put", apperrors.ErrStoreFull)
		}
		if _, err := m.Sweep(ctx); err != nil {
			return err
		}
	}
}

func (m *Memory) release(size int64) {
	m.entries.Add(-1)
	m.bytes.Add(-size)
}

// Get returns a copy of the result stored under id. An expired entry is
// reported as not found and removed.
func (m *Memory) Get(ctx context.Context, id string) (*core.Result, error) {
	const op = "memory.get"
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCanceled, op, err)
	}
	sh := m.shardFor(id)
	sh.mu.RLock()
	res, ok := sh.items[id]
	sh.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.CategoryNotFound, op, apperrors.ErrNotFound)
	}

	if expired(res.ExpiresAt, m.opts.Now()) {
		sh.mu.Lock()
		if cur, still := sh.items[id]; still && cur == res {
			delete(sh.items, id)
			m.release(int64(len(res.Data)))
		}
		sh.mu.Unlock()
		return nil, apperrors.New(apperrors.CategoryNotFound, op, apperrors.ErrNotFound)
	}

	// res is never mutated after insertion, so copying outside the lock is safe.
	out := *res
	out.Data = make([]byte, len(res.Data))
	copy(out.Data, res.Data)
	return &out, nil
}

// Delete removes id. Deleting an unknown identifier is not an error.
func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryCanceled, "memory.delete", err)
	}
	sh := m.shardFor(id)
	sh.mu.Lock()
	if res, ok := sh.items[id]; ok {
		delete(sh.items, id)
		m.release(int64(len(res.Data)))
	}
	sh.mu.Unlock()
	return nil
}

// Sweep removes every expired entry, one shard at a time.
func (m *Memory) Sweep(ctx context.Context) (int, error) {
	if m.opts.TTL <= 0 {
		return 0, nil
	}
	now := m.opts.Now()
	removed := 0
	for i := range m.shards {
		if err := ctx.Err(); err != nil {
			return removed, apperrors.Wrap(apperrors.CategoryCanceled, "memory.sweep", err)
		}
		sh := &m.shards[i]
		sh.mu.Lock()
		for id, res := range sh.items {
			if expired(res.ExpiresAt, now) {
				delete(sh.items, id)
				m.release(int64(len(res.Data)))
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of entries currently held, expired or not.
func (m *Memory) Len() int { return int(m.entries.Load()) }

// Bytes returns the payload bytes currently held.
func (m *Memory) Bytes() int64 { return m.bytes.Load() }

func (m *Memory) Close() error { return nil }
