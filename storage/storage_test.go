package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLocalStoreFetch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "files/dev-A/2025-07-19/14-30/audio.wav", "RIFF")
	store, err := NewLocalStore(root)
	if err != nil {
		t.Fatal(err)
	}

	data, err := store.Fetch(context.Background(), "files/dev-A/2025-07-19/14-30/audio.wav")
	if err != nil || string(data) != "RIFF" {
		t.Fatalf("Fetch = %q, %v", data, err)
	}

	_, err = store.Fetch(context.Background(), "files/dev-A/2025-07-19/15-00/audio.wav")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = store.Fetch(context.Background(), "../outside.wav")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for escaping path, got %v", err)
	}
}

func TestLocalStoreFetchHonoursDeadline(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if _, err := store.Fetch(ctx, "files/a/2025-01-01/00-00/a.wav"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestLocalStoreListAndAudioKeys(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "files/dev-A/2025-07-19/14-30/audio.wav", "a")
	writeFile(t, root, "files/dev-A/2025-07-19/09-00/audio.WAV", "bb")
	writeFile(t, root, "files/dev-A/2025-07-19/09-00/notes.txt", "ccc")
	writeFile(t, root, "files/dev-A/2025-07-20/09-00/audio.wav", "d")
	store, _ := NewLocalStore(root)

	objects, err := store.List(context.Background(), "files/dev-A/2025-07-19/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(objects))
	}
	keys := AudioKeys(objects)
	want := []string{"files/dev-A/2025-07-19/09-00/audio.WAV", "files/dev-A/2025-07-19/14-30/audio.wav"}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("AudioKeys = %v", keys)
	}
	if s := Stats(objects); s.TotalObjects != 3 || s.TotalSize != 6 {
		t.Fatalf("unexpected stats %+v", s)
	}

	empty, err := store.List(context.Background(), "files/nobody/2025-07-19/")
	if err != nil || len(empty) != 0 {
		t.Fatalf("missing prefix should list nothing, got %v, %v", empty, err)
	}
}

func TestLocalStoreKeyFor(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())
	key, err := store.KeyFor(filepath.Join(store.Root(), "files", "d", "2025-01-01", "00-30", "a.wav"))
	if err != nil || key != "files/d/2025-01-01/00-30/a.wav" {
		t.Fatalf("KeyFor = %q, %v", key, err)
	}
	if _, err := store.KeyFor(filepath.Dir(store.Root())); err == nil {
		t.Fatal("expected error for a path outside root")
	}
}

func TestMapMinioCode(t *testing.T) {
	cause := errors.New("s3 error")
	cases := map[string]error{
		"NoSuchKey":      ErrNotFound,
		"AccessDenied":   ErrAccessDenied,
		"RequestTimeout": ErrTimeout,
	}
	for code, want := range cases {
		if err := mapMinioCode("files/a", code, cause); !errors.Is(err, want) {
			t.Fatalf("%s: expected %v, got %v", code, want, err)
		}
	}
	if err := mapMinioCode("files/a", "InternalError", cause); !errors.Is(err, cause) {
		t.Fatalf("unknown code should wrap the cause, got %v", err)
	}
}

func TestMinioStoreListStopsOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
			`<Error><Code>AccessDenied</Code><Message>Access Denied.</Message>` +
			`<BucketName>audio</BucketName><Resource>/audio</Resource><RequestId>1</RequestId></Error>`))
	}))
	defer srv.Close()

	client, err := minio.New(strings.TrimPrefix(srv.URL, "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4("key", "secret", ""),
		Region: "us-east-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	store := &MinioStore{client: client, bucket: "audio"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	objects, err := store.List(ctx, "files/dev-A/")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if objects != nil {
		t.Fatalf("expected no objects, got %v", objects)
	}
}
