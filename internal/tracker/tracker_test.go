package tracker

import (
	"math"
	"testing"

	"matchd/internal/capability"
)

func TestBearingColumnNorth(t *testing.T) {
	holder := capability.Position{WorldID: "w", X: 0, Y: 0, Z: 0, Yaw: 0}
	target := capability.Position{WorldID: "w", X: 0, Y: 0, Z: 10}
	col, ok := bearingColumn(holder, target)
	if !ok {
		t.Fatal("expected target directly ahead to be in range")
	}
	if col != (BarWidth-1)/2 {
		t.Errorf("expected dead-center column %d, got %d", (BarWidth-1)/2, col)
	}
}

func TestBearingColumnCrossWorldDefaultsNorth(t *testing.T) {
	holder := capability.Position{WorldID: "w1", X: 0, Y: 0, Z: 0}
	target := capability.Position{WorldID: "w2", X: 100, Y: 0, Z: 100}
	col, ok := bearingColumn(holder, target)
	if !ok {
		t.Fatal("cross-world lookup must still report in-range")
	}
	if col != bearingToColumn(0) {
		t.Errorf("expected column-north default, got %d", col)
	}
}

func TestBearingColumnCoincidentDefaultsNorth(t *testing.T) {
	holder := capability.Position{WorldID: "w", X: 5, Y: 0, Z: 5, Yaw: 123}
	col, ok := bearingColumn(holder, holder)
	if !ok {
		t.Fatal("coincident positions must report in-range")
	}
	if col != bearingToColumn(0) {
		t.Errorf("expected column-north default for coincident positions, got %d", col)
	}
}

func TestBearingColumnOutOfSpreadDropped(t *testing.T) {
	holder := capability.Position{WorldID: "w", X: 0, Y: 0, Z: 0, Yaw: 0}
	target := capability.Position{WorldID: "w", X: 0, Y: 0, Z: -10} // directly behind
	_, ok := bearingColumn(holder, target)
	if ok {
		t.Error("expected a target directly behind the holder to fall outside the +-90 degree spread")
	}
}

func TestBearingToColumnClamps(t *testing.T) {
	if c := bearingToColumn(-1000); c != 0 {
		t.Errorf("expected clamp to column 0, got %d", c)
	}
	if c := bearingToColumn(1000); c != BarWidth-1 {
		t.Errorf("expected clamp to last column, got %d", c)
	}
}

type fakeParticipant struct{ id string }

func (f fakeParticipant) ID() string   { return f.id }
func (f fakeParticipant) Name() string { return f.id }

func TestTopKillerStrictMax(t *testing.T) {
	snaps := []capability.RosterEntry{
		{Participant: fakeParticipant{"a"}, Kills: 3},
		{Participant: fakeParticipant{"b"}, Kills: 1},
	}
	if got := topKiller(snaps); got != "a" {
		t.Errorf("expected a to be top killer, got %q", got)
	}
}

func TestTopKillerTieYieldsNone(t *testing.T) {
	snaps := []capability.RosterEntry{
		{Participant: fakeParticipant{"a"}, Kills: 2},
		{Participant: fakeParticipant{"b"}, Kills: 2},
	}
	if got := topKiller(snaps); got != "" {
		t.Errorf("expected a tie to yield no top killer, got %q", got)
	}
}

func TestTopKillerAllZeroYieldsNone(t *testing.T) {
	snaps := []capability.RosterEntry{
		{Participant: fakeParticipant{"a"}, Kills: 0},
		{Participant: fakeParticipant{"b"}, Kills: 0},
	}
	if got := topKiller(snaps); got != "" {
		t.Errorf("expected no kills to yield no top killer, got %q", got)
	}
}

func TestDistanceCrossWorldIsInfinite(t *testing.T) {
	a := capability.Position{WorldID: "w1"}
	b := capability.Position{WorldID: "w2"}
	if d := distance(a, b); !math.IsInf(d, 1) {
		t.Errorf("expected +Inf distance across worlds, got %v", d)
	}
}
