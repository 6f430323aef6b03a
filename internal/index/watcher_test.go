package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func indexed(s *Syncer, logical string) bool {
	_, err := s.DB().Get(context.Background(), logical)
	return err == nil
}

func startWatcher(t *testing.T, s *Syncer, cb EventCallback) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Watch(ctx, cb)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	s, root := testSyncer(t, nil)

	var mu sync.Mutex
	var events []string
	startWatcher(t, s, func(kind, logical string) {
		mu.Lock()
		events = append(events, kind+":"+logical)
		mu.Unlock()
	})

	_ = os.WriteFile(filepath.Join(root, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(s, "/new.md")
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:/new.md" || e == "updated:/new.md" {
				return true
			}
		}
		return false
	}, "expected a callback for /new.md")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	s, root := testSyncer(t, nil)
	startWatcher(t, s, nil)

	subDir := filepath.Join(root, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(s, "/subdir/deep.md")
	}, "file in new subdir not indexed by watcher")
}

func TestWatcher_IgnoresExcluded(t *testing.T) {
	s, root := testSyncer(t, map[string]string{"_private/.keep": ""})
	startWatcher(t, s, nil)

	_ = os.WriteFile(filepath.Join(root, "_private", "x.md"), []byte("# X"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "seen.md"), []byte("# Seen"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(s, "/seen.md")
	}, "seen.md not indexed")
	if indexed(s, "/_private/x.md") {
		t.Error("excluded file was indexed")
	}
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	s, root := testSyncer(t, map[string]string{"del.md": "# Delete Me"})
	if _, err := s.Reconcile(context.Background(), false); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !indexed(s, "/del.md") {
		t.Fatal("precondition: file should be indexed")
	}

	startWatcher(t, s, nil)
	_ = os.Remove(filepath.Join(root, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !indexed(s, "/del.md")
	}, "deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	s, root := testSyncer(t, map[string]string{"old.md": "# Rename"})
	if _, err := s.Reconcile(context.Background(), false); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	startWatcher(t, s, nil)
	_ = os.Rename(filepath.Join(root, "old.md"), filepath.Join(root, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !indexed(s, "/old.md") && indexed(s, "/renamed.md")
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}
