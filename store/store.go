// Package store keeps converted artifacts under generated identifiers and
// governs their lifetime. Every Store is safe for concurrent use.
package store

import (
	"context"
	"time"

	"github.com/Skryldev/image-convert/core"
)

// maxIDAttempts bounds identifier regeneration on collision.
const maxIDAttempts = 5

// Store maps identifiers to immutable conversion results.
type Store interface {
	// Put stores a copy of a and returns its new identifier.
	Put(ctx context.Context, a core.Artifact) (string, error)
	// Get returns a copy of the stored result, or a not_found error when the
	// identifier is unknown or expired.
	Get(ctx context.Context, id string) (*core.Result, error)
	Delete(ctx context.Context, id string) error
	// Sweep removes expired entries and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
	Close() error
}

// Options are shared by every Store implementation. Limits only apply to
// the memory store; remote backends enforce their own.
type Options struct {
	TTL        time.Duration // 0 = results never expire
	MaxEntries int           // 0 = unbounded
	MaxBytes   int64         // 0 = unbounded
	NewID      func() string // defaults to NewID
	Now        func() time.Time
	Logger     core.Logger
}

func (o Options) withDefaults() Options {
	if o.NewID == nil {
		o.NewID = NewID
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = core.NopLogger{}
	}
	return o
}

// expiry returns the expiry time for an entry created at now, or the zero
// time when there is no TTL.
func (o Options) expiry(now time.Time) time.Time {
	if o.TTL <= 0 {
		return time.Time{}
	}
	return now.Add(o.TTL)
}

func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

// RunSweeper calls s.Sweep every interval until ctx is done. Sweep errors
// are logged and never stop the loop.
func RunSweeper(ctx context.Context, s Store, interval time.Duration, logger core.Logger) error {
	if logger == nil {
		logger = core.NopLogger{}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				logger.Warn("store.sweep.failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("store.sweep", "removed", n)
			}
		}
	}
}
