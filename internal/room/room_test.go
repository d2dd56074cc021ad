package room

import (
	"errors"
	"testing"
)

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry()
	rm, err := r.Create("general", "General")
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if rm.ID != "general" || rm.Name != "General" {
		t.Errorf("unexpected room %q/%q", rm.ID, rm.Name)
	}

	got := r.Get("general")
	if got == nil {
		t.Fatal("expected to find room by ID")
	}
	if got.ID != "general" {
		t.Errorf("expected ID 'general', got %q", got.ID)
	}
}

func TestRegistryCreateCollision(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Create("general", "General"); err != nil {
		t.Fatalf("create error: %v", err)
	}
	_, err := r.Create("general", "Another General")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	r := NewRegistry()
	if r.Get("nonexistent") != nil {
		t.Error("expected nil for nonexistent room")
	}
}

func TestRegistryListSortedByID(t *testing.T) {
	r := NewRegistry()
	r.Create("tech", "Tech Talk")
	r.Create("general", "General")
	r.Create("random", "Random")
	r.AddOccupant("random", "alice")

	rooms := r.List()
	if len(rooms) != 3 {
		t.Fatalf("expected 3 rooms, got %d", len(rooms))
	}
	if rooms[0].ID != "general" || rooms[1].ID != "random" || rooms[2].ID != "tech" {
		t.Errorf("unexpected order: %v", rooms)
	}
	if rooms[1].Users != 1 {
		t.Errorf("expected 1 user in random, got %d", rooms[1].Users)
	}
}

func TestRegistryOccupants(t *testing.T) {
	r := NewRegistry()
	r.Create("general", "General")

	if !r.AddOccupant("general", "bob") {
		t.Fatal("expected AddOccupant to succeed")
	}
	r.AddOccupant("general", "alice")

	got := r.Occupants("general")
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("expected sorted [alice bob], got %v", got)
	}

	r.RemoveOccupant("general", "alice")
	got = r.Occupants("general")
	if len(got) != 1 || got[0] != "bob" {
		t.Fatalf("expected [bob], got %v", got)
	}

	// Removing a non-occupant is a no-op.
	r.RemoveOccupant("general", "carol")
	if len(r.Occupants("general")) != 1 {
		t.Error("expected occupant set unchanged")
	}
}

func TestRegistryAddOccupantUnknownRoom(t *testing.T) {
	r := NewRegistry()
	if r.AddOccupant("nope", "alice") {
		t.Error("expected AddOccupant to fail for unknown room")
	}
	if r.Occupants("nope") != nil {
		t.Error("expected nil occupants for unknown room")
	}
}

func TestNormalizeID(t *testing.T) {
	cases := map[string]string{
		"General":        "general",
		"Tech Talk":      "tech-talk",
		"  My   Room  ":  "my-room",
		"Café & Friends": "caf-friends",
		"already-fine":   "already-fine",
		"under_score":    "under-score",
		"!!!":            "",
		"":               "",
	}
	for in, want := range cases {
		if got := NormalizeID(in); got != want {
			t.Errorf("NormalizeID(%q) = %q, want %q", in, got, want)
		}
	}
}
