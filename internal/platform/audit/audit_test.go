package audit

import (
	"context"
	"testing"
)

func TestNullID(t *testing.T) {
	if nullID(0) != nil {
		t.Error("zero actor must be stored as NULL")
	}
	if p := nullID(5); p == nil || *p != 5 {
		t.Error("expected pointer to 5")
	}
}

func TestMemoryRecorder_ListNewestFirst(t *testing.T) {
	m := &MemoryRecorder{}
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		m.Record(ctx, Entry{ActorID: 1, Action: ActionDoctorApproved, EntityType: "doctor", EntityID: i})
	}

	got, total, err := m.List(ctx, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(got) != 2 {
		t.Fatalf("expected 2 of 3, got %d of %d", len(got), total)
	}
	if got[0].EntityID != 3 || got[1].EntityID != 2 {
		t.Errorf("expected newest first, got %d,%d", got[0].EntityID, got[1].EntityID)
	}

	got, _, _ = m.List(ctx, 2, 2)
	if len(got) != 1 || got[0].EntityID != 1 {
		t.Errorf("unexpected second page %+v", got)
	}
}
