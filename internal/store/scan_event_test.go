package store

import (
	"context"
	"testing"
	"time"

	"github.com/qrtrail/qrtrail/internal/model"
	"github.com/qrtrail/qrtrail/internal/quota"
)

func seedCode(t *testing.T, codes *CodeStore) *model.Code {
	t.Helper()
	code, err := codes.Create(model.KindSingle, "unlimited", nil, nil)
	if err != nil {
		t.Fatalf("create code: %v", err)
	}
	return code
}

func record(t *testing.T, codes *CodeStore, ev *model.ScanEvent) {
	t.Helper()
	if err := codes.RecordScan(context.Background(), ev, quota.Limit{}); err != nil {
		t.Fatalf("record scan: %v", err)
	}
}

func TestScanEventGetByID(t *testing.T) {
	db := testDB(t)
	codes := NewCodeStore(db)
	events := NewScanEventStore(db)
	code := seedCode(t, codes)

	ev := newEvent(code.ID, time.Now().UTC().Truncate(time.Second))
	parent := "some-earlier-scan"
	ev.ParentScanID = &parent
	record(t, codes, ev)

	got, err := events.GetByID(ev.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got == nil {
		t.Fatal("event not found")
	}
	if got.CodeID != code.ID {
		t.Errorf("code_id %q, want %q", got.CodeID, code.ID)
	}
	if got.ParentScanID == nil || *got.ParentScanID != parent {
		t.Errorf("parent %v, want %q", got.ParentScanID, parent)
	}
	if got.DeviceClass != model.DeviceMobile {
		t.Errorf("device class %q, want mobile", got.DeviceClass)
	}

	missing, err := events.GetByID("no-such-scan")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("got %+v, want nil", missing)
	}
}

func TestScanEventListByCodeOrder(t *testing.T) {
	db := testDB(t)
	codes := NewCodeStore(db)
	events := NewScanEventStore(db)
	code := seedCode(t, codes)

	base := time.Now().UTC().Truncate(time.Second)
	// Insert out of chronological order.
	second := newEvent(code.ID, base.Add(time.Minute))
	first := newEvent(code.ID, base)
	record(t, codes, second)
	record(t, codes, first)

	listed, err := events.ListByCode(code.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("listed %d events, want 2", len(listed))
	}
	if listed[0].ID != first.ID || listed[1].ID != second.ID {
		t.Error("events not ordered by occurred_at")
	}
}

func TestScanEventListAfterCursor(t *testing.T) {
	db := testDB(t)
	codes := NewCodeStore(db)
	events := NewScanEventStore(db)
	code := seedCode(t, codes)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		record(t, codes, newEvent(code.ID, now))
	}

	batch, cursor, err := events.ListAfter(code.ID, 0)
	if err != nil {
		t.Fatalf("list after 0: %v", err)
	}
	if len(batch) != 3 {
		t.Errorf("first batch %d events, want 3", len(batch))
	}
	if cursor == 0 {
		t.Error("cursor did not advance")
	}

	// Nothing new: empty batch, cursor unchanged.
	batch, cursor2, err := events.ListAfter(code.ID, cursor)
	if err != nil {
		t.Fatalf("list after cursor: %v", err)
	}
	if len(batch) != 0 {
		t.Errorf("second batch %d events, want 0", len(batch))
	}
	if cursor2 != cursor {
		t.Errorf("cursor moved from %d to %d with no new events", cursor, cursor2)
	}

	// One more event: only the delta comes back.
	record(t, codes, newEvent(code.ID, now))
	batch, cursor3, err := events.ListAfter(code.ID, cursor)
	if err != nil {
		t.Fatalf("list after cursor: %v", err)
	}
	if len(batch) != 1 {
		t.Errorf("delta batch %d events, want 1", len(batch))
	}
	if cursor3 <= cursor {
		t.Errorf("cursor %d did not advance past %d", cursor3, cursor)
	}
}

func TestScanEventCountInWindow(t *testing.T) {
	db := testDB(t)
	codes := NewCodeStore(db)
	events := NewScanEventStore(db)
	code := seedCode(t, codes)

	now := time.Now().UTC()
	record(t, codes, newEvent(code.ID, now.Add(-3*time.Hour)))
	record(t, codes, newEvent(code.ID, now.Add(-30*time.Minute)))
	record(t, codes, newEvent(code.ID, now))

	count, err := events.CountInWindow(code.ID, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count in window: %v", err)
	}
	if count != 2 {
		t.Errorf("count %d, want 2", count)
	}

	total, err := events.CountByCode(code.ID)
	if err != nil {
		t.Fatalf("count by code: %v", err)
	}
	if total != 3 {
		t.Errorf("total %d, want 3", total)
	}
}
