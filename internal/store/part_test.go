package store

import (
	"testing"

	"github.com/qrtrail/qrtrail/internal/model"
)

func TestPartGroupCreateIdempotent(t *testing.T) {
	s := NewPartStore(testDB(t))

	if err := s.CreateGroup("g1", 4, 12345); err != nil {
		t.Fatalf("create group: %v", err)
	}
	// Second create of the same group is a no-op, not an error.
	if err := s.CreateGroup("g1", 4, 12345); err != nil {
		t.Fatalf("recreate group: %v", err)
	}

	g, err := s.GetGroup("g1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if g == nil {
		t.Fatal("group not found")
	}
	if g.TotalParts != 4 || g.PayloadChecksum != 12345 {
		t.Errorf("group %+v, want total 4 checksum 12345", g)
	}
	if g.Conflict {
		t.Error("new group marked conflicted")
	}

	missing, err := s.GetGroup("no-such-group")
	if err != nil {
		t.Fatalf("get missing group: %v", err)
	}
	if missing != nil {
		t.Errorf("got %+v, want nil", missing)
	}
}

func TestPartInsertAndDuplicate(t *testing.T) {
	s := NewPartStore(testDB(t))
	if err := s.CreateGroup("g1", 2, 1); err != nil {
		t.Fatalf("create group: %v", err)
	}

	p := &model.Part{GroupID: "g1", Index: 0, TotalParts: 2, Chunk: []byte("hello"), Checksum: 99}
	if err := s.InsertPart(p); err != nil {
		t.Fatalf("insert part: %v", err)
	}
	// Same index again violates the primary key.
	if err := s.InsertPart(p); err == nil {
		t.Error("expected constraint error on duplicate index")
	}

	got, err := s.GetPart("g1", 0)
	if err != nil {
		t.Fatalf("get part: %v", err)
	}
	if got == nil || string(got.Chunk) != "hello" || got.Checksum != 99 {
		t.Errorf("got %+v", got)
	}

	count, err := s.CountParts("g1")
	if err != nil {
		t.Fatalf("count parts: %v", err)
	}
	if count != 1 {
		t.Errorf("count %d, want 1", count)
	}
}

func TestPartConflictFlagAndReset(t *testing.T) {
	s := NewPartStore(testDB(t))
	if err := s.CreateGroup("g1", 2, 1); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := s.InsertPart(&model.Part{GroupID: "g1", Index: 0, TotalParts: 2, Chunk: []byte("a"), Checksum: 1}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.SetConflict("g1", true); err != nil {
		t.Fatalf("set conflict: %v", err)
	}
	g, err := s.GetGroup("g1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if !g.Conflict {
		t.Error("conflict flag not set")
	}

	deleted, err := s.DeleteParts("g1")
	if err != nil {
		t.Fatalf("delete parts: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d parts, want 1", deleted)
	}
	if err := s.SetConflict("g1", false); err != nil {
		t.Fatalf("clear conflict: %v", err)
	}

	g, err = s.GetGroup("g1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if g.Conflict {
		t.Error("conflict flag still set after clear")
	}
	count, err := s.CountParts("g1")
	if err != nil {
		t.Fatalf("count parts: %v", err)
	}
	if count != 0 {
		t.Errorf("count %d after reset, want 0", count)
	}
}
