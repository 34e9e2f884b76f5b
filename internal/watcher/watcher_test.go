package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

const testDebounce = 50 * time.Millisecond

type ingestCall struct {
	projectID string
	path      string
}

func newTestInbox(t *testing.T, base string, extensions []string, ingest IngestFunc) *Inbox {
	t.Helper()
	in := NewInbox(base, extensions, ingest, zap.NewNop(), WithDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := in.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(in.Stop)
	return in
}

func waitCall(t *testing.T, calls <-chan ingestCall) ingestCall {
	t.Helper()
	select {
	case c := <-calls:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for ingestion")
		return ingestCall{}
	}
}

func waitGone(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("%s still exists", path)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}

func TestInbox_ingestsAndRemovesDroppedFile(t *testing.T) {
	base := t.TempDir()
	calls := make(chan ingestCall, 8)
	ingest := func(ctx context.Context, projectID, path string) error {
		calls <- ingestCall{projectID, path}
		return nil
	}
	in := newTestInbox(t, base, []string{".md"}, ingest)
	if err := in.AddProject("proj-1"); err != nil {
		t.Fatal(err)
	}

	dropped := filepath.Join(base, "proj-1", "notes.md")
	if err := writeFile(dropped, "# notes"); err != nil {
		t.Fatal(err)
	}

	call := waitCall(t, calls)
	if call.projectID != "proj-1" {
		t.Errorf("project = %q, want proj-1", call.projectID)
	}
	if filepath.Base(call.path) != "notes.md" {
		t.Errorf("path = %q", call.path)
	}
	waitGone(t, dropped)
}

func TestInbox_failedIngestLeavesFile(t *testing.T) {
	base := t.TempDir()
	calls := make(chan ingestCall, 8)
	ingest := func(ctx context.Context, projectID, path string) error {
		calls <- ingestCall{projectID, path}
		return errors.New("no can do")
	}
	in := newTestInbox(t, base, nil, ingest)
	if err := in.AddProject("proj-1"); err != nil {
		t.Fatal(err)
	}

	dropped := filepath.Join(base, "proj-1", "notes.txt")
	if err := writeFile(dropped, "text"); err != nil {
		t.Fatal(err)
	}

	waitCall(t, calls)
	time.Sleep(2 * testDebounce)
	if _, err := os.Stat(dropped); err != nil {
		t.Errorf("failed file should stay in the inbox: %v", err)
	}
}

func TestInbox_extensionFilter(t *testing.T) {
	base := t.TempDir()
	calls := make(chan ingestCall, 8)
	ingest := func(ctx context.Context, projectID, path string) error {
		calls <- ingestCall{projectID, path}
		return nil
	}
	in := newTestInbox(t, base, []string{"md", ".txt"}, ingest)
	if err := in.AddProject("proj-1"); err != nil {
		t.Fatal(err)
	}

	if err := writeFile(filepath.Join(base, "proj-1", "binary.exe"), "MZ"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(6 * testDebounce)
	if len(calls) != 0 {
		t.Fatalf("filtered file was ingested: %v", <-calls)
	}

	if err := writeFile(filepath.Join(base, "proj-1", "readme.md"), "# hi"); err != nil {
		t.Fatal(err)
	}
	call := waitCall(t, calls)
	if filepath.Base(call.path) != "readme.md" {
		t.Errorf("path = %q", call.path)
	}
}

func TestInbox_sweepPicksUpExistingFiles(t *testing.T) {
	base := t.TempDir()
	// The file lands before the folder is watched.
	if err := os.MkdirAll(filepath.Join(base, "proj-1"), 0755); err != nil {
		t.Fatal(err)
	}
	early := filepath.Join(base, "proj-1", "waiting.txt")
	if err := writeFile(early, "here first"); err != nil {
		t.Fatal(err)
	}

	calls := make(chan ingestCall, 8)
	ingest := func(ctx context.Context, projectID, path string) error {
		calls <- ingestCall{projectID, path}
		return nil
	}
	in := newTestInbox(t, base, []string{".txt"}, ingest)
	if err := in.AddProject("proj-1"); err != nil {
		t.Fatal(err)
	}

	call := waitCall(t, calls)
	if filepath.Base(call.path) != "waiting.txt" {
		t.Errorf("path = %q", call.path)
	}
	waitGone(t, early)
}

func TestInbox_removeProjectStopsIngestion(t *testing.T) {
	base := t.TempDir()
	calls := make(chan ingestCall, 8)
	ingest := func(ctx context.Context, projectID, path string) error {
		calls <- ingestCall{projectID, path}
		return nil
	}
	in := newTestInbox(t, base, nil, ingest)
	if err := in.AddProject("proj-1"); err != nil {
		t.Fatal(err)
	}
	if got := in.Projects(); len(got) != 1 || got[0] != "proj-1" {
		t.Errorf("Projects() = %v", got)
	}
	in.RemoveProject("proj-1")
	if got := in.Projects(); len(got) != 0 {
		t.Errorf("Projects() after remove = %v", got)
	}

	if err := writeFile(filepath.Join(base, "proj-1", "late.txt"), "too late"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(6 * testDebounce)
	if len(calls) != 0 {
		t.Errorf("file ingested after project removal: %v", <-calls)
	}
}

func TestInbox_startCreatesBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "data", "inbox")
	in := NewInbox(base, nil, func(context.Context, string, string) error { return nil }, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := in.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer in.Stop()

	if _, err := os.Stat(base); err != nil {
		t.Errorf("base directory should exist after Start: %v", err)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}
