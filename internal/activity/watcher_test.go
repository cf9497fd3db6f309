package activity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentworkforce/queuefeed/internal/feed"
)

func TestWatcherIngestsDroppedFiles(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLog(LogOptions{})
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	watcher, err := NewWatcher(WatcherOptions{Dir: dir, TenantID: "tenant-a", Log: log})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = watcher.Close() })

	_, ch := log.Subscribe()
	if err := os.WriteFile(filepath.Join(dir, "invoice.pdf"), []byte("%PDF-1.7"), 0o644); err != nil {
		t.Fatalf("write drop file: %v", err)
	}

	var received []Record
	deadline := time.After(3 * time.Second)
	for len(received) < 2 {
		select {
		case rec := <-ch:
			received = append(received, rec)
		case <-deadline:
			t.Fatalf("received %d records, want 2", len(received))
		}
	}
	if received[0].Kind != feed.KindSubmitted || received[1].Kind != feed.KindQueued {
		t.Fatalf("kinds = %s, %s", received[0].Kind, received[1].Kind)
	}
	if received[0].Doc == "" || received[0].Doc != received[1].Doc {
		t.Fatalf("doc ids = %q, %q, want one shared id", received[0].Doc, received[1].Doc)
	}
	if received[0].Details[feed.AttrFilename] != "invoice.pdf" {
		t.Fatalf("details = %v", received[0].Details)
	}
	if received[0].TenantID != "tenant-a" {
		t.Fatalf("tenant = %q", received[0].TenantID)
	}
}

func TestWatcherSkipsHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLog(LogOptions{})
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	watcher, err := NewWatcher(WatcherOptions{Dir: dir, Log: log})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = watcher.Close() })

	if err := os.WriteFile(filepath.Join(dir, ".partial"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write hidden file: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if log.Len() != 0 {
		t.Fatalf("Len = %d, want 0 for hidden files", log.Len())
	}
}

func TestNewWatcherRequiresDirAndLog(t *testing.T) {
	if _, err := NewWatcher(WatcherOptions{Dir: ""}); err == nil {
		t.Fatal("empty dir must fail")
	}
	if _, err := NewWatcher(WatcherOptions{Dir: t.TempDir(), Log: nil}); err == nil {
		t.Fatal("nil log must fail")
	}
}
