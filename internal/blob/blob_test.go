package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Hexploration-Inc/orai/internal/config"
	"github.com/Hexploration-Inc/orai/internal/types"
)

func TestKey(t *testing.T) {
	if got := Key("u1", "m1"); got != "messages/u1/m1.html" {
		t.Fatalf("unexpected key %q", got)
	}
	if Key("u1", "m1") != Key("u1", "m1") {
		t.Fatalf("expected deterministic key")
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "messages/u1/missing.html"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Put(ctx, "messages/u1/m1.html", []byte("<p>one</p>")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "messages/u1/m1.html", []byte("<p>two</p>")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err := s.Get(ctx, "messages/u1/m1.html")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "<p>two</p>" {
		t.Fatalf("expected overwritten body, got %q", got)
	}
	if err := s.Delete(ctx, "messages/u1/m1.html"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "messages/u1/m1.html"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if _, err := s.Get(ctx, "messages/u1/m1.html"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestBoltStore(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "nested", "blobs.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestBoltStore_ClosedIsStorageError(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "blobs.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err = s.Get(context.Background(), "messages/u1/m1.html")
	if !errors.Is(err, types.ErrStorage) || errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

// fakeS3 serves path-style object requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Write(body)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := NewS3(context.Background(), S3Config{
		Endpoint:        srv.URL,
		Bucket:          "mail",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	exerciseStore(t, s)

	if err := s.Put(context.Background(), "messages/u1/m2.html", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	fake.mu.Lock()
	_, ok := fake.objects["mail/messages/u1/m2.html"]
	fake.mu.Unlock()
	if !ok {
		t.Fatalf("expected path-style object under bucket")
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), config.Config{BlobBackend: "tape"}); err == nil {
		t.Fatalf("expected error")
	}
}
