package session

import (
	"testing"
)

func TestCreateGetRemove(t *testing.T) {
	r := New()
	id, err := r.NextID()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(id, "/repo"); err != nil {
		t.Fatal(err)
	}

	got := r.Get(id)
	if got == nil || got.Project != "/repo" {
		t.Fatalf("Get(%d) = %+v, want project /repo", id, got)
	}

	r.Remove(id)
	if r.Get(id) != nil {
		t.Fatalf("Get(%d) after Remove: expected nil", id)
	}
}

func TestCreateDuplicateIDFails(t *testing.T) {
	r := New()
	id, _ := r.NextID()
	if _, err := r.Create(id, "/repo"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(id, "/repo"); err == nil {
		t.Fatal("expected error creating duplicate session id")
	}
}

func TestIDsStrictlyIncreasing(t *testing.T) {
	r := New()
	var prev uint32
	for i := 0; i < 1000; i++ {
		id, err := r.NextID()
		if err != nil {
			t.Fatal(err)
		}
		if i > 0 && id <= prev {
			t.Fatalf("id %d not strictly greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestUpdateStatusNeedsInput(t *testing.T) {
	r := New()
	id, _ := r.NextID()
	r.Create(id, "/repo")

	if err := r.UpdateStatus(id, StateNeedsInput, "continue?"); err != nil {
		t.Fatal(err)
	}
	info := r.Get(id).snapshot()
	if info.State != StateNeedsInput || info.NeedsInputPrompt != "continue?" {
		t.Fatalf("got %+v", info)
	}

	// Transitioning away from NeedsInput clears the stale prompt.
	if err := r.UpdateStatus(id, StateWorking, ""); err != nil {
		t.Fatal(err)
	}
	info = r.Get(id).snapshot()
	if info.NeedsInputPrompt != "" {
		t.Fatalf("expected prompt cleared, got %q", info.NeedsInputPrompt)
	}
}

func TestUpdateStatusUnknownSession(t *testing.T) {
	r := New()
	if err := r.UpdateStatus(999, StateIdle, ""); err == nil {
		t.Fatal("expected SessionNotFound error")
	}
}

func TestAssignBranch(t *testing.T) {
	r := New()
	id, _ := r.NextID()
	r.Create(id, "/repo")

	if err := r.AssignBranch(id, "feature/x", "/data/worktrees/abc/feature-x"); err != nil {
		t.Fatal(err)
	}
	info := r.Get(id).snapshot()
	if info.Branch != "feature/x" || info.WorkingDir != "/data/worktrees/abc/feature-x" {
		t.Fatalf("got %+v", info)
	}
}

func TestFilterAndRemoveAllForProject(t *testing.T) {
	r := New()
	ids := make([]uint32, 0, 5)
	for i := 0; i < 3; i++ {
		id, _ := r.NextID()
		r.Create(id, "/repoA")
		ids = append(ids, id)
	}
	for i := 0; i < 2; i++ {
		id, _ := r.NextID()
		r.Create(id, "/repoB")
		ids = append(ids, id)
	}

	if got := r.FilterByProject("/repoA"); len(got) != 3 {
		t.Fatalf("FilterByProject(/repoA) returned %d, want 3", len(got))
	}

	removed := r.RemoveAllForProject("/repoA")
	if len(removed) != 3 {
		t.Fatalf("RemoveAllForProject(/repoA) returned %d, want 3", len(removed))
	}
	if got := r.FilterByProject("/repoA"); len(got) != 0 {
		t.Fatalf("FilterByProject(/repoA) after removal returned %d, want 0", len(got))
	}
	if got := r.FilterByProject("/repoB"); len(got) != 2 {
		t.Fatalf("FilterByProject(/repoB) returned %d, want 2", len(got))
	}
}

func TestAllReturnsEverySession(t *testing.T) {
	r := New()
	for i := 0; i < 4; i++ {
		id, _ := r.NextID()
		r.Create(id, "/repo")
	}
	if got := r.All(); len(got) != 4 {
		t.Fatalf("All() returned %d sessions, want 4", len(got))
	}
}
