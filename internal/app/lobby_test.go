package app_test

import (
	"context"
	"errors"
	"testing"

	"treasure-quest-service/internal/app"
	"treasure-quest-service/internal/domain"
	"treasure-quest-service/internal/infra/memory"
)

func TestJoinWaitingStudentsOnly(t *testing.T) {
	hub := app.NewHub()
	lobby := app.NewLobbyTracker(hub, nil)

	if _, err := lobby.JoinWaiting(teacher); !errors.Is(err, domain.ErrRoleNotPermitted) {
		t.Fatalf("expected teacher join to be denied, got %v", err)
	}
	roster, err := lobby.JoinWaiting(studentA)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(roster) != 1 || roster[0].Identity.ID != studentA.ID {
		t.Fatalf("expected roster with Alice, got %+v", roster)
	}
}

func TestRejoinIsIdempotent(t *testing.T) {
	hub := app.NewHub()
	lobby := app.NewLobbyTracker(hub, nil)

	first, _ := lobby.JoinWaiting(studentA)
	renamed := studentA
	renamed.Name = "Alice R."
	second, err := lobby.JoinWaiting(renamed)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected a single entry after rejoin, got %d", len(second))
	}
	if second[0].Identity.Name != "Alice R." {
		t.Fatalf("expected refreshed display name, got %q", second[0].Identity.Name)
	}
	if !second[0].JoinedAt.Equal(first[0].JoinedAt) {
		t.Fatalf("expected original join time preserved on rejoin")
	}
}

func TestSnapshotOrdersByJoinThenGroup(t *testing.T) {
	hub := app.NewHub()
	lobby := app.NewLobbyTracker(hub, nil)

	mustJoin(t, lobby, studentA)
	mustJoin(t, lobby, studentB)

	roster := lobby.Snapshot()
	if roster[0].Identity.ID != studentA.ID || roster[1].Identity.ID != studentB.ID {
		t.Fatalf("expected join order, got %+v", roster)
	}

	lobby.SetGroups(map[string]int{studentA.ID: 2, studentB.ID: 1})
	roster = lobby.Snapshot()
	if roster[0].Group != 1 || roster[1].Group != 2 {
		t.Fatalf("expected group-ascending order once assigned, got %+v", roster)
	}
}

func TestSetReadyTogglesFlag(t *testing.T) {
	hub := app.NewHub()
	lobby := app.NewLobbyTracker(hub, nil)
	mustJoin(t, lobby, studentA)

	if _, err := lobby.SetReady(teacher, true); !errors.Is(err, domain.ErrRoleNotPermitted) {
		t.Fatalf("expected teacher ready toggle to be denied, got %v", err)
	}

	roster, err := lobby.SetReady(studentA, true)
	if err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if len(roster) != 1 || !roster[0].Ready {
		t.Fatalf("expected Alice marked ready, got %+v", roster)
	}

	roster, err = lobby.SetReady(studentA, false)
	if err != nil {
		t.Fatalf("clear ready: %v", err)
	}
	if roster[0].Ready {
		t.Fatalf("expected ready flag cleared, got %+v", roster[0])
	}

	// Toggling before joining admits the student like JoinWaiting does.
	roster, err = lobby.SetReady(studentB, true)
	if err != nil {
		t.Fatalf("ready before join: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("expected Bob admitted by the toggle, got %+v", roster)
	}
}

func TestSubLobbyMembershipIsExclusive(t *testing.T) {
	hub := app.NewHub()
	lobby := app.NewLobbyTracker(hub, nil)
	mustJoin(t, lobby, studentA)

	if _, err := lobby.CreateSubLobby(studentA, "red", 5); !errors.Is(err, domain.ErrRoleNotPermitted) {
		t.Fatalf("expected student create to be denied, got %v", err)
	}
	red, err := lobby.CreateSubLobby(teacher, "red", 5)
	if err != nil {
		t.Fatalf("create red: %v", err)
	}
	blue, err := lobby.CreateSubLobby(teacher, "blue", 5)
	if err != nil {
		t.Fatalf("create blue: %v", err)
	}

	if err := lobby.JoinSubLobby(studentA, red.ID); err != nil {
		t.Fatalf("join red: %v", err)
	}
	if err := lobby.JoinSubLobby(studentA, blue.ID); err != nil {
		t.Fatalf("transfer to blue: %v", err)
	}

	payload := lobby.SubLobbies()
	if len(payload.Members) != 1 {
		t.Fatalf("expected a single membership after transfer, got %+v", payload.Members)
	}
	if payload.Members[0].SubLobbyID != blue.ID {
		t.Fatalf("expected membership in blue only, got %+v", payload.Members[0])
	}
}

func TestSubLobbyCapacity(t *testing.T) {
	hub := app.NewHub()
	lobby := app.NewLobbyTracker(hub, nil)
	mustJoin(t, lobby, studentA)
	mustJoin(t, lobby, studentB)

	tiny, err := lobby.CreateSubLobby(teacher, "tiny", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := lobby.JoinSubLobby(studentA, tiny.ID); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if err := lobby.JoinSubLobby(studentB, tiny.ID); !errors.Is(err, domain.ErrSubLobbyFull) {
		t.Fatalf("expected sub-lobby full, got %v", err)
	}
	// Rejoining while already a member must not count against capacity.
	if err := lobby.JoinSubLobby(studentA, tiny.ID); err != nil {
		t.Fatalf("rejoin by member: %v", err)
	}
}

func TestJoinUnknownSubLobby(t *testing.T) {
	hub := app.NewHub()
	lobby := app.NewLobbyTracker(hub, nil)
	mustJoin(t, lobby, studentA)

	if err := lobby.JoinSubLobby(studentA, "missing"); !errors.Is(err, domain.ErrSubLobbyNotFound) {
		t.Fatalf("expected sub-lobby not found, got %v", err)
	}
}

func TestDeleteSubLobbyUnassignsMembers(t *testing.T) {
	hub := app.NewHub()
	lobby := app.NewLobbyTracker(hub, nil)
	mustJoin(t, lobby, studentA)

	red, _ := lobby.CreateSubLobby(teacher, "red", 0)
	if err := lobby.JoinSubLobby(studentA, red.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := lobby.DeleteSubLobby(teacher, red.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	payload := lobby.SubLobbies()
	if len(payload.SubLobbies) != 0 || len(payload.Members) != 0 {
		t.Fatalf("expected empty sub-lobby state, got %+v", payload)
	}
	// Member is unassigned, not removed from the waiting lobby.
	if len(lobby.Snapshot()) != 1 {
		t.Fatalf("expected waiting entry to survive sub-lobby deletion")
	}
}

func TestDeleteAllSubLobbies(t *testing.T) {
	hub := app.NewHub()
	lobby := app.NewLobbyTracker(hub, nil)
	mustJoin(t, lobby, studentA)
	mustJoin(t, lobby, studentB)

	red, _ := lobby.CreateSubLobby(teacher, "red", 0)
	blue, _ := lobby.CreateSubLobby(teacher, "blue", 0)
	_ = lobby.JoinSubLobby(studentA, red.ID)
	_ = lobby.JoinSubLobby(studentB, blue.ID)

	if err := lobby.DeleteAllSubLobbies(studentA); !errors.Is(err, domain.ErrRoleNotPermitted) {
		t.Fatalf("expected student wipe to be denied, got %v", err)
	}
	if err := lobby.DeleteAllSubLobbies(teacher); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	payload := lobby.SubLobbies()
	if len(payload.SubLobbies) != 0 || len(payload.Members) != 0 {
		t.Fatalf("expected no sub-lobbies left, got %+v", payload)
	}
}

func TestRosterForScopesToSubLobby(t *testing.T) {
	hub := app.NewHub()
	lobby := app.NewLobbyTracker(hub, nil)
	mustJoin(t, lobby, studentA)
	mustJoin(t, lobby, studentB)

	red, _ := lobby.CreateSubLobby(teacher, "red", 0)
	_ = lobby.JoinSubLobby(studentA, red.ID)

	all := lobby.RosterFor("")
	if len(all) != 2 {
		t.Fatalf("expected full roster of 2, got %d", len(all))
	}
	scoped := lobby.RosterFor(red.ID)
	if len(scoped) != 1 || scoped[0].ID != studentA.ID {
		t.Fatalf("expected scoped roster with Alice only, got %+v", scoped)
	}
}

func TestRestoreLoadsPersistedSubLobbies(t *testing.T) {
	hub := app.NewHub()
	store := memory.NewSubLobbyStore()

	first := app.NewLobbyTracker(hub, store)
	red, err := first.CreateSubLobby(teacher, "red", 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	second := app.NewLobbyTracker(hub, store)
	if err := second.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	payload := second.SubLobbies()
	if len(payload.SubLobbies) != 1 || payload.SubLobbies[0].ID != red.ID {
		t.Fatalf("expected restored sub-lobby, got %+v", payload.SubLobbies)
	}
}
