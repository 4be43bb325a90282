// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package mirror

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nishisan-dev/spantar/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_DisabledReturnsNilWithoutError(t *testing.T) {
	u, err := New(context.Background(), config.MirrorInfo{Enabled: false}, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Error("expected nil uploader when mirror is disabled")
	}
}

func TestUploader_Key(t *testing.T) {
	u := &Uploader{prefix: "nightly"}
	if got, want := u.Key("fileserver", 3), "nightly/fileserver-volume-0003.tar"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}

	u2 := &Uploader{}
	if got, want := u2.Key("fileserver", 1), "fileserver-volume-0001.tar"; got != want {
		t.Errorf("Key() with no prefix = %q, want %q", got, want)
	}
}

// fakeS3Server accepts any PutObject (a path-style PUT) and counts how
// many times it was hit, so retry behavior can be exercised without a
// real bucket.
func fakeS3Server(t *testing.T, failFirstN int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if int(n) <= failFirstN {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	return srv, &hits
}

func testUploader(t *testing.T, endpoint string) *Uploader {
	t.Helper()
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
	})
	return &Uploader{
		client: manager.NewUploader(client),
		bucket: "spantar-test",
		prefix: "",
		logger: discardLogger(),
	}
}

func TestUploader_UploadVolume_SucceedsFirstTry(t *testing.T) {
	srv, hits := fakeS3Server(t, 0)
	defer srv.Close()

	u := testUploader(t, srv.URL)

	dir := t.TempDir()
	path := filepath.Join(dir, "volume-1.tar")
	if err := os.WriteFile(path, []byte("tar bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	key, err := u.UploadVolume(context.Background(), path, "nightly-full", 1)
	if err != nil {
		t.Fatalf("UploadVolume: %v", err)
	}
	if key != "nightly-full-volume-0001.tar" {
		t.Errorf("unexpected key: %q", key)
	}
	if hits.Load() != 1 {
		t.Errorf("expected exactly 1 request, got %d", hits.Load())
	}
}

func TestUploader_UploadVolume_MissingFile(t *testing.T) {
	srv, _ := fakeS3Server(t, 0)
	defer srv.Close()

	u := testUploader(t, srv.URL)
	_, err := u.UploadVolume(context.Background(), filepath.Join(t.TempDir(), "nope.tar"), "job", 1)
	if err == nil {
		t.Fatal("expected an error for a missing local file")
	}
}
