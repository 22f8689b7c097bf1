package instrument

import "testing"

func TestRecorderNewestFirst(t *testing.T) {
	r := NewRecorder(8)
	for _, action := range []string{"create", "update", "destroy"} {
		r.Record(Op{Model: "thing", Action: action})
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 ops, got %d", r.Len())
	}

	recent := r.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(recent))
	}
	if recent[0].Action != "destroy" || recent[1].Action != "update" {
		t.Fatalf("expected newest first, got %v", recent)
	}
	// zero or oversized n means everything
	if got := r.Recent(0); len(got) != 3 {
		t.Fatalf("expected all ops for n=0, got %d", len(got))
	}
	if got := r.Recent(100); len(got) != 3 {
		t.Fatalf("expected all ops for large n, got %d", len(got))
	}
}

func TestRecorderEvictsOldest(t *testing.T) {
	r := NewRecorder(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		r.Record(Op{ID: id, Model: "thing", Action: "create"})
	}
	if r.Len() != 3 {
		t.Fatalf("expected ring capped at 3, got %d", r.Len())
	}
	recent := r.Recent(3)
	for i, want := range []string{"e", "d", "c"} {
		if recent[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, recent[i].ID)
		}
	}
}

func TestRecorderAssignsIDAndTime(t *testing.T) {
	r := NewRecorder(4)
	r.Record(Op{Model: "thing", Action: "create"})
	op := r.Recent(1)[0]
	if op.ID == "" {
		t.Fatal("expected an assigned id")
	}
	if op.At.IsZero() {
		t.Fatal("expected an assigned timestamp")
	}
}

func TestRecorderNilSafe(t *testing.T) {
	var r *Recorder
	r.Record(Op{Model: "thing", Action: "create"})
	if r.Len() != 0 {
		t.Fatalf("expected 0 from nil recorder, got %d", r.Len())
	}
	if got := r.Recent(5); got != nil {
		t.Fatalf("expected nil from nil recorder, got %v", got)
	}
}
