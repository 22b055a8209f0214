package core

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewGroupCreatorIsAdmin(t *testing.T) {
	creator := uuid.New()
	u2, u3 := uuid.New(), uuid.New()

	g, err := NewGroup(creator, "trip", "", []uuid.UUID{u2, u3})
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}

	if len(g.Members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(g.Members))
	}
	if !g.IsAdmin(creator) {
		t.Error("creator should be admin")
	}
	if g.IsAdmin(u2) {
		t.Error("plain member should not be admin")
	}
}

func TestNewGroupCollapsesDuplicates(t *testing.T) {
	creator := uuid.New()
	u2 := uuid.New()

	g, err := NewGroup(creator, "flat", "", []uuid.UUID{creator, u2, u2})
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	if len(g.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(g.Members))
	}
	// The creator's admin membership wins over the duplicate in the list.
	if !g.IsAdmin(creator) {
		t.Error("creator should stay admin despite duplicate listing")
	}
}

func TestCreatorAdminDespiteStoredRole(t *testing.T) {
	creator := uuid.New()
	g, err := NewGroup(creator, "club", "", nil)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	// Simulate a stored role record that says "member".
	g.Members[0].Role = RoleMember

	if !g.IsAdmin(creator) {
		t.Error("creator must be effectively admin regardless of stored role")
	}
}

func TestNewGroupEmptyName(t *testing.T) {
	if _, err := NewGroup(uuid.New(), "  ", "", nil); err != ErrEmptyName {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}
