package events

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Nileneb/growdash/internal/infrastructure/database"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	j, err := NewJournal(context.Background(), db.DB)
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}
	return j
}

func TestRecordAndList(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	ev := &Event{
		Type: TypeAttached,
		Port: "/dev/ttyACM0",
		Kind: "arduino_uno",
		Details: map[string]any{
			"public_id": "growdash-2341-0043-ttyACM0",
		},
	}
	if err := j.Record(ctx, ev); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if ev.ID == "" || ev.CreatedAt.IsZero() {
		t.Error("Record() did not populate ID and CreatedAt")
	}

	res, err := j.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Events) != 1 {
		t.Fatalf("List() = %d events total %d, want 1", len(res.Events), res.Total)
	}

	got := res.Events[0]
	if got.Type != TypeAttached || got.Port != "/dev/ttyACM0" || got.Kind != "arduino_uno" {
		t.Errorf("event = %+v", got)
	}
	if got.Details["public_id"] != "growdash-2341-0043-ttyACM0" {
		t.Errorf("Details = %v", got.Details)
	}
}

func TestList_Filters(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	entries := []*Event{
		{Type: TypeAttached, Port: "/dev/ttyACM0", CreatedAt: base},
		{Type: TypeDetached, Port: "/dev/ttyACM0", CreatedAt: base.Add(time.Second)},
		{Type: TypeAttached, Port: "/dev/video0", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, ev := range entries {
		if err := j.Record(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	res, err := j.List(ctx, Filter{Type: TypeAttached})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 {
		t.Errorf("List(type=attached) total = %d, want 2", res.Total)
	}

	res, err = j.List(ctx, Filter{Port: "/dev/ttyACM0"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 {
		t.Errorf("List(port=ttyACM0) total = %d, want 2", res.Total)
	}

	res, err = j.List(ctx, Filter{Type: TypeDetached, Port: "/dev/video0"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 0 {
		t.Errorf("List(detached, video0) total = %d, want 0", res.Total)
	}
}

func TestList_OrderAndPagination(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		ev := &Event{Type: TypeAttached, Port: "/dev/ttyACM0", CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := j.Record(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	res, err := j.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 2 || res.Total != 5 {
		t.Fatalf("List(limit=2) = %d events total %d, want 2 of 5", len(res.Events), res.Total)
	}
	if !res.Events[0].CreatedAt.After(res.Events[1].CreatedAt) {
		t.Error("events not ordered most recent first")
	}

	page2, err := j.List(ctx, Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if page2.Events[0].ID == res.Events[0].ID {
		t.Error("pagination returned overlapping pages")
	}
}

func TestNewJournal_Reentrant(t *testing.T) {
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if _, err := NewJournal(context.Background(), db.DB); err != nil {
			t.Fatalf("NewJournal() run %d error = %v", i, err)
		}
	}
}
