package state

import (
	"errors"
	"path/filepath"
	"testing"

	"daosplit/storage"
)

func TestSnapshotRevertRestoresBufferedWrites(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	if err := mgr.KVPut([]byte("a"), uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	snap := mgr.Snapshot()
	if err := mgr.KVPut([]byte("a"), uint64(2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.KVPut([]byte("b"), uint64(3)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.KVDelete([]byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	mgr.RevertToSnapshot(snap)

	var value uint64
	ok, err := mgr.KVGet([]byte("a"), &value)
	if err != nil || !ok || value != 1 {
		t.Fatalf("expected a=1 after revert, got %d %v %v", value, ok, err)
	}
	if ok, _ := mgr.KVGet([]byte("b"), nil); ok {
		t.Fatalf("b should be reverted")
	}
	if mgr.Pending() != 1 {
		t.Fatalf("expected 1 pending key, got %d", mgr.Pending())
	}
}

func TestCommitFlushesToDatabase(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	if err := mgr.KVPut([]byte("k"), "value"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("writes must stay buffered until commit")
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if db.Len() != 1 || mgr.Pending() != 0 {
		t.Fatalf("expected one flushed key, db=%d pending=%d", db.Len(), mgr.Pending())
	}
	if err := mgr.KVDelete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("delete should be flushed")
	}
}

func TestDiscardDropsBufferedWrites(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	if err := mgr.KVPut([]byte("k"), uint64(7)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.Discard()
	if ok, _ := mgr.KVGet([]byte("k"), nil); ok {
		t.Fatalf("discarded write still visible")
	}
}

func TestKVGetListDefaultsToEmpty(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	var list []string
	if err := mgr.KVGetList([]byte("missing"), &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %#v", list)
	}
	if err := mgr.KVGetList([]byte("missing"), list); err == nil {
		t.Fatalf("expected non-pointer destination to be rejected")
	}
}

func TestIndexHelpers(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	key := []byte("idx")
	for _, id := range []uint64{3, 1, 3} {
		if err := mgr.addID(key, id); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	ids, _ := mgr.loadIDs(key)
	if len(ids) != 2 {
		t.Fatalf("expected de-duplicated ids, got %v", ids)
	}
	for _, id := range []uint64{3, 1} {
		if err := mgr.removeID(key, id); err != nil {
			t.Fatalf("remove: %v", err)
		}
	}
	if ok, _ := mgr.KVGet(key, nil); ok {
		t.Fatalf("empty index should be deleted")
	}
}

func TestEnsureStateVersion(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	if err := mgr.EnsureStateVersion(false); err != nil {
		t.Fatalf("stamp empty state: %v", err)
	}
	version, ok, err := NewManager(db).StateVersion()
	if err != nil || !ok || version != StateVersion {
		t.Fatalf("expected stamped version, got %d %v %v", version, ok, err)
	}
	if err := mgr.SetStateVersion(StateVersion + 1); err != nil {
		t.Fatalf("set version: %v", err)
	}
	if err := mgr.EnsureStateVersion(false); !errors.Is(err, ErrStateVersionMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := mgr.EnsureStateVersion(true); err != nil {
		t.Fatalf("migration mode should tolerate mismatch: %v", err)
	}
}

func TestManagerOnLevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mgr := NewManager(db)
	if err := mgr.KVPut([]byte("persisted"), uint64(42)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	db.Close()

	reopened, err := storage.NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	var value uint64
	ok, err := NewManager(reopened).KVGet([]byte("persisted"), &value)
	if err != nil || !ok || value != 42 {
		t.Fatalf("expected persisted value, got %d %v %v", value, ok, err)
	}
}
