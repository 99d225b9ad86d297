package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/gridedit/internal/storage"
)

// watcherTestEnv sets up a content dir, storage, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store, testDB(t)
}

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

// startWatch runs Watch until the test ends and waits for it to return.
func startWatch(t *testing.T, root string, store storage.Provider, db *DB, cb EventCallback) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, db, store, root, "_index.md", quietLogger(), cb)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_NewNodeIndexed(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	var mu sync.Mutex
	var events []string
	startWatch(t, root, store, db, func(op, path string) {
		mu.Lock()
		events = append(events, op+":"+path)
		mu.Unlock()
	})

	writeNode(t, root, "tab1/row1/cell1", "---\ntitle: A\nweight: 1\ntype: cell\n---\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("tab1/row1/cell1")
		return cs != ""
	}, "new node not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:tab1/row1/cell1" {
				return true
			}
		}
		return false
	}, "expected created:tab1/row1/cell1 callback")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	writeNode(t, root, "tab1/row1", "---\ntitle: Row 1\nweight: 1\ntype: row\n---\n")
	if _, err := Sync(db, store, "_index.md", quietLogger()); err != nil {
		t.Fatal(err)
	}
	if cs, _ := db.GetChecksum("tab1/row1"); cs == "" {
		t.Fatal("row should be indexed after initial sync")
	}

	startWatch(t, root, store, db, nil)

	_ = os.RemoveAll(filepath.Join(root, "tab1", "row1"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("tab1/row1")
		return cs == ""
	}, "deleted node still in index")
}

func TestWatcher_RenamedDirectoryReindexed(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	writeNode(t, root, "tab1/row1/cell3", "---\ntitle: C\nweight: 3\ntype: cell\n---\n")
	if _, err := Sync(db, store, "_index.md", quietLogger()); err != nil {
		t.Fatal(err)
	}

	startWatch(t, root, store, db, nil)

	_ = os.Rename(filepath.Join(root, "tab1", "row1", "cell3"), filepath.Join(root, "tab1", "row1", "cell4"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("tab1/row1/cell3")
		newCS, _ := db.GetChecksum("tab1/row1/cell4")
		return oldCS == "" && newCS != ""
	}, "rename not reconciled: old path should be removed and new path indexed")
}
