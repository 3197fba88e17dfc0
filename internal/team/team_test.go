package team

import (
	"errors"
	"testing"

	"matchd/internal/capability"
	"matchd/internal/matcherr"
)

type fakeClock struct{ now capability.Tick }

func (c *fakeClock) Now() capability.Tick                                                 { return c.now }
func (c *fakeClock) ScheduleAt(at capability.Tick, fn func())                              {}
func (c *fakeClock) ScheduleEvery(period capability.Tick, fn func()) capability.CallbackID { return 0 }
func (c *fakeClock) Cancel(id capability.CallbackID)                                       {}

type fakeParticipant struct{ id string }

func (f fakeParticipant) ID() string   { return f.id }
func (f fakeParticipant) Name() string { return f.id }

func TestCreateTeamRejectsAlreadyInTeam(t *testing.T) {
	clk := &fakeClock{}
	m := NewManager(clk, 100)
	leader := fakeParticipant{"p1"}
	if _, err := m.CreateTeam("match1", leader, Open, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.CreateTeam("match1", leader, Open, true); !errors.Is(err, matcherr.ErrAlreadyInTeam) {
		t.Fatalf("expected ErrAlreadyInTeam, got %v", err)
	}
}

func TestJoinRequiresInviteOnInviteOnlyTeam(t *testing.T) {
	clk := &fakeClock{}
	m := NewManager(clk, 100)
	leader := fakeParticipant{"leader"}
	joiner := fakeParticipant{"joiner"}
	team, err := m.CreateTeam("match1", leader, InviteOnly, false)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if err := m.Join(team.ID, joiner.ID(), 4); !errors.Is(err, matcherr.ErrNoInvite) {
		t.Fatalf("expected ErrNoInvite before an invite exists, got %v", err)
	}
	if err := m.Invite(team.ID, leader.ID(), joiner.ID(), 4); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if err := m.Join(team.ID, joiner.ID(), 4); err != nil {
		t.Fatalf("expected Join to succeed after an invite, got %v", err)
	}
}

func TestInviteExpires(t *testing.T) {
	clk := &fakeClock{}
	m := NewManager(clk, 10)
	leader := fakeParticipant{"leader"}
	joiner := fakeParticipant{"joiner"}
	team, _ := m.CreateTeam("match1", leader, InviteOnly, false)
	if err := m.Invite(team.ID, leader.ID(), joiner.ID(), 4); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	clk.now = 11
	if err := m.Join(team.ID, joiner.ID(), 4); !errors.Is(err, matcherr.ErrNoInvite) {
		t.Fatalf("expected an expired invite to be rejected, got %v", err)
	}
}

func TestOnlyLeaderMayInvite(t *testing.T) {
	clk := &fakeClock{}
	m := NewManager(clk, 100)
	leader := fakeParticipant{"leader"}
	impostor := fakeParticipant{"impostor"}
	team, _ := m.CreateTeam("match1", leader, InviteOnly, false)
	if err := m.Invite(team.ID, impostor.ID(), "someone", 4); !errors.Is(err, matcherr.ErrNotTeamLeader) {
		t.Fatalf("expected ErrNotTeamLeader, got %v", err)
	}
}

func TestLeaveTransfersLeadership(t *testing.T) {
	clk := &fakeClock{}
	m := NewManager(clk, 100)
	leader := fakeParticipant{"leader"}
	member := fakeParticipant{"member"}
	team, _ := m.CreateTeam("match1", leader, Open, false)
	if err := m.Join(team.ID, member.ID(), 4); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := m.Leave(leader.ID()); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if team.LeaderID != member.ID() {
		t.Errorf("expected leadership to transfer to the remaining member, got %q", team.LeaderID)
	}
}

func TestDestroyMatchTeamsReleasesMembers(t *testing.T) {
	clk := &fakeClock{}
	m := NewManager(clk, 100)
	leader := fakeParticipant{"leader"}
	if _, err := m.CreateTeam("match1", leader, Open, false); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	m.DestroyMatchTeams("match1")
	if _, ok := m.TeamOf(leader.ID()); ok {
		t.Error("expected the leader to no longer belong to any team after DestroyMatchTeams")
	}
	if len(m.TeamsInMatch("match1")) != 0 {
		t.Error("expected no teams remaining for the destroyed match")
	}
}

func TestAutoFillSkipsAlreadySeatedAndRespectsLimit(t *testing.T) {
	clk := &fakeClock{}
	m := NewManager(clk, 100)
	leader := fakeParticipant{"leader"}
	team, _ := m.CreateTeam("match1", leader, Open, true)

	queue := []capability.Participant{leader, fakeParticipant{"p2"}, fakeParticipant{"p3"}}
	m.AutoFill("match1", queue, 2)

	if team.size() != 2 {
		t.Fatalf("expected the team to fill to its size limit of 2, got %d", team.size())
	}
	if _, ok := m.TeamOf("p3"); ok {
		t.Error("expected the third queued participant to be left unseated once the only team is full")
	}
}
