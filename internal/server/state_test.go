package server

import (
	"testing"

	"github.com/energizer-project/palrcon/internal/protocol"
)

func playerList(t *testing.T, rows string) *protocol.PlayerList {
	t.Helper()
	list, err := protocol.ParsePlayerList(&protocol.Response{Message: protocol.PlayerListHeader + "\n" + rows})
	if err != nil {
		t.Fatalf("ParsePlayerList failed: %s", err)
	}
	return list
}

func TestStateUpdate(t *testing.T) {
	s := NewState()

	diff := s.Update(playerList(t, "Alice,1111,76561190000000001\nBob,2222,76561190000000002\n"))
	if len(diff.Joined) != 2 || len(diff.Left) != 0 {
		t.Fatalf("Unexpected first diff: %+v", diff)
	}
	first := s.Players()
	if first[0].Name != "Alice" || first[1].Name != "Bob" {
		t.Fatalf("Players not sorted by name: %+v", first)
	}

	// Renamed player keeps its join time.
	diff = s.Update(playerList(t, "Alicia,1111,76561190000000001\n"))
	if len(diff.Joined) != 0 || len(diff.Left) != 1 || diff.Left[0].Name != "Bob" {
		t.Fatalf("Unexpected second diff: %+v", diff)
	}
	p, ok := s.FindBySteamID("76561190000000001")
	if !ok || p.Name != "Alicia" || !p.JoinedAt.Equal(first[0].JoinedAt) {
		t.Fatalf("Rename not tracked: %+v", p)
	}

	diff = s.Update(playerList(t, "Alicia,1111,76561190000000001\n"))
	if !diff.Empty() {
		t.Fatalf("Expected no change, got %+v", diff)
	}
}

func TestStateUnresolvedPlayers(t *testing.T) {
	s := NewState()

	rows := "A,00000000,76561190000000001\nB,00000000,76561190000000002\n"
	diff := s.Update(playerList(t, rows))
	if len(diff.Joined) != 2 || len(diff.NewUnresolved) != 2 {
		t.Fatalf("Unresolved players sharing a UID must be tracked separately: %+v", diff)
	}

	diff = s.Update(playerList(t, rows))
	if len(diff.NewUnresolved) != 0 {
		t.Fatalf("Unresolved players reported twice: %+v", diff)
	}
	if snap := s.Snapshot(); snap.Unresolved != 2 || snap.Count != 2 {
		t.Fatalf("Unexpected snapshot: %+v", snap)
	}
}

func TestStateClear(t *testing.T) {
	s := NewState()
	s.Update(playerList(t, "Alice,1111,76561190000000001\n"))

	gone := s.Clear()
	if len(gone) != 1 || s.Count() != 0 {
		t.Fatalf("Clear returned %+v, count %d", gone, s.Count())
	}
}
