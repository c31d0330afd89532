package store_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
	"github.com/Skryldev/image-convert/store"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// sequence returns an ID generator that yields ids in order and then falls
// back to store.NewID.
func sequence(ids ...string) func() string {
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		if len(ids) == 0 {
			return store.NewID()
		}
		id := ids[0]
		ids = ids[1:]
		return id
	}
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, newStore func(t *testing.T, opts store.Options) store.Store) {
	ctx := context.Background()

	t.Run("put then get returns identical bytes", func(t *testing.T) {
		s := newStore(t, store.Options{})
		payload := []byte("\x89PNG fake payload")
		id, err := s.Put(ctx, core.Artifact{Data: payload, ContentType: "image/png"})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := store.ValidateID(id); err != nil {
			t.Fatalf("generated id %q is not well-formed: %v", id, err)
		}
		for i := 0; i < 3; i++ {
			res, err := s.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(res.Data, payload) || res.ContentType != "image/png" || res.ID != id {
				t.Fatalf("got %+v", res)
			}
			if res.Checksum == "" {
				t.Error("missing checksum")
			}
		}
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		s := newStore(t, store.Options{})
		_, err := s.Get(ctx, "doesnotexist")
		if !apperrors.IsCategory(err, apperrors.CategoryNotFound) {
			t.Fatalf("got %v, want not_found", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t, store.Options{})
		id, _ := s.Put(ctx, core.Artifact{Data: []byte("x"), ContentType: "image/gif"})
		if err := s.Delete(ctx, id); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, id); !apperrors.IsCategory(err, apperrors.CategoryNotFound) {
			t.Fatalf("got %v after delete", err)
		}
	})

	t.Run("colliding id is regenerated", func(t *testing.T) {
		s := newStore(t, store.Options{NewID: sequence("same", "same", "other")})
		first, err := s.Put(ctx, core.Artifact{Data: []byte("a"), ContentType: "image/png"})
		if err != nil {
			t.Fatalf("first Put: %v", err)
		}
		second, err := s.Put(ctx, core.Artifact{Data: []byte("b"), ContentType: "image/png"})
		if err != nil {
			t.Fatalf("second Put: %v", err)
		}
		if first != "same" || second != "other" {
			t.Fatalf("ids: %q %q", first, second)
		}
		res, _ := s.Get(ctx, "same")
		if string(res.Data) != "a" {
			t.Errorf("first entry overwritten: %q", res.Data)
		}
	})

	t.Run("persistent collision gives up", func(t *testing.T) {
		s := newStore(t, store.Options{NewID: func() string { return "fixed" }})
		if _, err := s.Put(ctx, core.Artifact{Data: []byte("a"), ContentType: "image/png"}); err != nil {
			t.Fatalf("first Put: %v", err)
		}
		_, err := s.Put(ctx, core.Artifact{Data: []byte("b"), ContentType: "image/png"})
		if !errors.Is(err, apperrors.ErrIDCollision) {
			t.Fatalf("got %v, want ErrIDCollision", err)
		}
	})

	t.Run("concurrent puts yield distinct ids", func(t *testing.T) {
		s := newStore(t, store.Options{})
		const n = 64
		ids := make([]string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := s.Put(ctx, core.Artifact{Data: []byte(fmt.Sprint(i)), ContentType: "image/png"})
				if err != nil {
					t.Errorf("Put %d: %v", i, err)
				}
				ids[i] = id
			}(i)
		}
		wg.Wait()
		seen := make(map[string]bool, n)
		for i, id := range ids {
			if seen[id] {
				t.Fatalf("duplicate id %q", id)
			}
			seen[id] = true
			res, err := s.Get(ctx, id)
			if err != nil || string(res.Data) != fmt.Sprint(i) {
				t.Fatalf("Get %q: %v %v", id, res, err)
			}
		}
	})
}

func TestValidateID(t *testing.T) {
	valid := []string{store.NewID(), "doesnotexist", "a", "A_b-9", string(bytes.Repeat([]byte("x"), store.MaxIDLength))}
	for _, id := range valid {
		if err := store.ValidateID(id); err != nil {
			t.Errorf("ValidateID(%q): %v", id, err)
		}
	}
	invalid := []string{"", "has space", "../etc", "dot.id", "slash/id", "ünïcode", string(bytes.Repeat([]byte("x"), store.MaxIDLength+1))}
	for _, id := range invalid {
		if err := store.ValidateID(id); !apperrors.IsCategory(err, apperrors.CategoryMalformedID) {
			t.Errorf("ValidateID(%q) = %v, want malformed_id", id, err)
		}
	}
}

func TestNewID_Shape(t *testing.T) {
	id := store.NewID()
	if len(id) != 36 {
		t.Errorf("len(%q) = %d, want 36", id, len(id))
	}
	if id == store.NewID() {
		t.Error("two ids are equal")
	}
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	clock := newFakeClock()
	s := store.NewMemory(store.Options{TTL: time.Second, Now: clock.Now})
	if _, err := s.Put(context.Background(), core.Artifact{Data: []byte("x"), ContentType: "image/png"}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.RunSweeper(ctx, s, 5*time.Millisecond, nil) }()

	deadline := time.After(2 * time.Second)
	for s.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never removed the expired entry")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("RunSweeper returned %v", err)
	}
}
