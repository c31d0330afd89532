package store_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
	"github.com/Skryldev/image-convert/store"
)

func TestMemory_Contract(t *testing.T) {
	storeContract(t, func(t *testing.T, opts store.Options) store.Store {
		return store.NewMemory(opts)
	})
}

func TestMemory_CopiesInAndOut(t *testing.T) {
	s := store.NewMemory(store.Options{})
	ctx := context.Background()
	payload := []byte("original")

	id, err := s.Put(ctx, core.Artifact{Data: payload, ContentType: "image/png"})
	if err != nil {
		t.Fatal(err)
	}
	payload[0] = 'X'

	res, _ := s.Get(ctx, id)
	res.Data[1] = 'Y'

	again, _ := s.Get(ctx, id)
	if !bytes.Equal(again.Data, []byte("original")) {
		t.Fatalf("stored bytes changed: %q", again.Data)
	}
}

func TestMemory_TTL(t *testing.T) {
	clock := newFakeClock()
	s := store.NewMemory(store.Options{TTL: time.Minute, Now: clock.Now})
	ctx := context.Background()

	id, _ := s.Put(ctx, core.Artifact{Data: []byte("x"), ContentType: "image/png"})
	res, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	if !res.ExpiresAt.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("ExpiresAt: %s", res.ExpiresAt)
	}

	clock.Advance(59 * time.Second)
	if _, err := s.Get(ctx, id); err != nil {
		t.Fatalf("Get just before expiry: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := s.Get(ctx, id); !apperrors.IsCategory(err, apperrors.CategoryNotFound) {
		t.Fatalf("got %v, want not_found after expiry", err)
	}
	if s.Len() != 0 || s.Bytes() != 0 {
		t.Errorf("expired entry not reclaimed: len=%d bytes=%d", s.Len(), s.Bytes())
	}
}

func TestMemory_NoTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	s := store.NewMemory(store.Options{Now: clock.Now})
	id, _ := s.Put(context.Background(), core.Artifact{Data: []byte("x"), ContentType: "image/png"})
	clock.Advance(1000 * time.Hour)

	res, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !res.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt should be zero, got %s", res.ExpiresAt)
	}
}

func TestMemory_Sweep(t *testing.T) {
	clock := newFakeClock()
	s := store.NewMemory(store.Options{TTL: time.Minute, Now: clock.Now})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s.Put(ctx, core.Artifact{Data: []byte("old"), ContentType: "image/png"})
	}
	clock.Advance(30 * time.Second)
	keep, _ := s.Put(ctx, core.Artifact{Data: []byte("new"), ContentType: "image/png"})
	clock.Advance(31 * time.Second)

	n, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 10 {
		t.Errorf("swept %d, want 10", n)
	}
	if _, err := s.Get(ctx, keep); err != nil {
		t.Errorf("live entry swept: %v", err)
	}
	if s.Len() != 1 || s.Bytes() != 3 {
		t.Errorf("len=%d bytes=%d", s.Len(), s.Bytes())
	}
}

func TestMemory_Limits(t *testing.T) {
	ctx := context.Background()

	t.Run("entries", func(t *testing.T) {
		s := store.NewMemory(store.Options{MaxEntries: 2})
		s.Put(ctx, core.Artifact{Data: []byte("a"), ContentType: "image/png"})
		s.Put(ctx, core.Artifact{Data: []byte("b"), ContentType: "image/png"})
		_, err := s.Put(ctx, core.Artifact{Data: []byte("c"), ContentType: "image/png"})
		if !apperrors.IsCategory(err, apperrors.CategoryExhausted) {
			t.Fatalf("got %v, want exhausted", err)
		}
		if s.Len() != 2 {
			t.Errorf("failed put left a reservation: len=%d", s.Len())
		}
	})

	t.Run("bytes", func(t *testing.T) {
		s := store.NewMemory(store.Options{MaxBytes: 10})
		if _, err := s.Put(ctx, core.Artifact{Data: make([]byte, 8), ContentType: "image/png"}); err != nil {
			t.Fatal(err)
		}
		_, err := s.Put(ctx, core.Artifact{Data: make([]byte, 3), ContentType: "image/png"})
		if !apperrors.IsCategory(err, apperrors.CategoryExhausted) {
			t.Fatalf("got %v, want exhausted", err)
		}
	})

	t.Run("expired entries make room", func(t *testing.T) {
		clock := newFakeClock()
		s := store.NewMemory(store.Options{MaxEntries: 1, TTL: time.Second, Now: clock.Now})
		s.Put(ctx, core.Artifact{Data: []byte("a"), ContentType: "image/png"})
		clock.Advance(2 * time.Second)
		if _, err := s.Put(ctx, core.Artifact{Data: []byte("b"), ContentType: "image/png"}); err != nil {
			t.Fatalf("Put after expiry: %v", err)
		}
	})
}

func TestMemory_CanceledContext(t *testing.T) {
	s := store.NewMemory(store.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, core.Artifact{Data: []byte("a"), ContentType: "image/png"}); !apperrors.IsCategory(err, apperrors.CategoryCanceled) {
		t.Fatalf("got %v, want canceled", err)
	}
	if s.Len() != 0 {
		t.Error("canceled put stored an entry")
	}
}

func BenchmarkMemory_ParallelPutGet(b *testing.B) {
	s := store.NewMemory(store.Options{})
	ctx := context.Background()
	payload := make([]byte, 4096)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			id, err := s.Put(ctx, core.Artifact{Data: payload, ContentType: "image/jpeg"})
			if err != nil {
				b.Fatal(err)
			}
			if _, err := s.Get(ctx, id); err != nil {
				b.Fatal(err)
			}
		}
	})
}
