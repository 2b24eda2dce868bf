package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type uploaderMock struct {
	mu    sync.Mutex
	paths []string
	names []string
	err   error
}

func (u *uploaderMock) Upload(_ context.Context, localPath, name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, localPath)
	u.names = append(u.names, name)
	return u.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveWritesStoreReportAndUpload(t *testing.T) {
	store := newTestSQLiteStore(t)
	dir := t.TempDir()
	up := &uploaderMock{}
	archive := NewArchive(store, NewReportWriter(dir), up, discardLogger())

	rec := testRecord(time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC))
	if err := archive.Archive(context.Background(), rec); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	list, err := store.ListInterviews(context.Background(), 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one archived interview, got %d (%v)", len(list), err)
	}
	if list[0].ReportPath == "" || filepath.Dir(list[0].ReportPath) != dir {
		t.Fatalf("expected report path under %s, got %q", dir, list[0].ReportPath)
	}
	if _, err := os.Stat(list[0].ReportPath); err != nil {
		t.Fatalf("report missing: %v", err)
	}

	if len(up.paths) != 1 || up.paths[0] != list[0].ReportPath {
		t.Fatalf("unexpected uploads %v", up.paths)
	}
	if !strings.HasPrefix(up.names[0], "interview-coach-2026-02-26-devops-") {
		t.Fatalf("unexpected upload name %q", up.names[0])
	}
}

func TestArchiveRestartedSessionsGetDistinctIDs(t *testing.T) {
	store := newTestSQLiteStore(t)
	archive := NewArchive(store, nil, nil, discardLogger())
	rec := testRecord(time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC))

	for i := 0; i < 2; i++ {
		if err := archive.Archive(context.Background(), rec); err != nil {
			t.Fatalf("Archive %d failed: %v", i, err)
		}
	}
	list, _ := store.ListInterviews(context.Background(), 0)
	if len(list) != 2 || list[0].ID == list[1].ID {
		t.Fatalf("expected two distinct interviews, got %+v", list)
	}
}

func TestArchiveReportsUploadFailure(t *testing.T) {
	up := &uploaderMock{err: errors.New("quota exceeded")}
	archive := NewArchive(nil, NewReportWriter(t.TempDir()), up, discardLogger())

	err := archive.Archive(context.Background(), testRecord(time.Now()))
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected upload error, got %v", err)
	}
}

func TestArchiveWithNothingConfigured(t *testing.T) {
	archive := NewArchive(nil, nil, nil, nil)
	if err := archive.Archive(context.Background(), testRecord(time.Now())); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
}
