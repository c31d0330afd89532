package store_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Skryldev/image-convert/adapters/storage"
	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
	"github.com/Skryldev/image-convert/store"
)

func newBlobStore(t *testing.T, opts store.Options) (*store.Blob, string) {
	t.Helper()
	dir := t.TempDir()
	adapter, err := storage.NewLocal(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	return store.NewBlob(adapter, "results", "conv-", opts), filepath.Join(dir, "results")
}

func TestBlob_Contract(t *testing.T) {
	storeContract(t, func(t *testing.T, opts store.Options) store.Store {
		s, _ := newBlobStore(t, opts)
		return s
	})
}

func TestBlob_ExpiryAndSweep(t *testing.T) {
	clock := newFakeClock()
	s, dir := newBlobStore(t, store.Options{TTL: time.Minute, Now: clock.Now})
	ctx := context.Background()

	oldID, _ := s.Put(ctx, core.Artifact{Data: []byte("old"), ContentType: "image/png"})
	staleID, _ := s.Put(ctx, core.Artifact{Data: []byte("stale"), ContentType: "image/png"})
	clock.Advance(45 * time.Second)
	newID, _ := s.Put(ctx, core.Artifact{Data: []byte("new"), ContentType: "image/png"})
	clock.Advance(20 * time.Second)

	if _, err := s.Get(ctx, oldID); !apperrors.IsCategory(err, apperrors.CategoryNotFound) {
		t.Fatalf("got %v, want not_found", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "conv-"+oldID)); !os.IsNotExist(err) {
		t.Error("expired object not removed on access")
	}

	n, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d, want 1 (%s)", n, staleID)
	}
	if _, err := s.Get(ctx, newID); err != nil {
		t.Errorf("live entry: %v", err)
	}
}

func TestBlob_DetectsCorruptPayload(t *testing.T) {
	s, dir := newBlobStore(t, store.Options{})
	ctx := context.Background()
	id, err := s.Put(ctx, core.Artifact{Data: []byte("genuine bytes"), ContentType: "image/jpeg"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "conv-"+id), []byte("tampered bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = s.Get(ctx, id)
	if !errors.Is(err, apperrors.ErrChecksum) {
		t.Fatalf("got %v, want checksum error", err)
	}
}

func TestBlob_CompressedObjectOnDisk(t *testing.T) {
	s, dir := newBlobStore(t, store.Options{})
	ctx := context.Background()
	payload := bytes.Repeat([]byte("II*\x00"), 2048)

	id, err := s.Put(ctx, core.Artifact{Data: payload, ContentType: "image/tiff"})
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(dir, "conv-"+id))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= int64(len(payload)) {
		t.Errorf("object is %d bytes, expected compression below %d", info.Size(), len(payload))
	}
	res, err := s.Get(ctx, id)
	if err != nil || !bytes.Equal(res.Data, payload) {
		t.Fatalf("round trip: %v", err)
	}
}
