package match

import (
	"errors"
	"testing"

	arenapkg "matchd/internal/arena"
	"matchd/internal/capability"
	"matchd/internal/loot"
	"matchd/internal/matcherr"
	"matchd/internal/team"
)

// fakeClock is a manually-driven capability.Clock: ScheduleAt/ScheduleEvery
// only record work, nothing fires until the test calls fireNext.
type fakeClock struct {
	now       capability.Tick
	pending   []pendingCB
	recurring map[capability.CallbackID]func()
	nextID    capability.CallbackID
}

type pendingCB struct {
	at capability.Tick
	fn func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{recurring: make(map[capability.CallbackID]func())}
}

func (c *fakeClock) Now() capability.Tick { return c.now }

func (c *fakeClock) ScheduleAt(at capability.Tick, fn func()) {
	c.pending = append(c.pending, pendingCB{at, fn})
}

func (c *fakeClock) ScheduleEvery(period capability.Tick, fn func()) capability.CallbackID {
	c.nextID++
	c.recurring[c.nextID] = fn
	return c.nextID
}

func (c *fakeClock) Cancel(id capability.CallbackID) { delete(c.recurring, id) }

// fireNext runs the earliest-scheduled pending callback, advancing now if
// needed. Returns false if nothing is pending.
func (c *fakeClock) fireNext() bool {
	if len(c.pending) == 0 {
		return false
	}
	idx := 0
	for i, p := range c.pending {
		if p.at < c.pending[idx].at {
			idx = i
		}
	}
	p := c.pending[idx]
	c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
	if p.at > c.now {
		c.now = p.at
	}
	p.fn()
	return true
}

type fakeStats struct {
	completions int
}

func (s *fakeStats) RecordDeath(matchID string, victim, killer capability.Participant, phase capability.MatchPhase) {
}
func (s *fakeStats) RecordKill(matchID string, killer, victim capability.Participant) {}
func (s *fakeStats) RecordCompletion(matchID string, arenaName string, placements []capability.Placement, durationTicks int64) {
	s.completions++
}
func (s *fakeStats) Leaderboard(statKind string, limit int) *capability.LeaderboardFuture {
	f, complete := capability.NewLeaderboardFuture()
	complete(nil, nil)
	return f
}

type fakeParticipant struct{ id string }

func (f fakeParticipant) ID() string   { return f.id }
func (f fakeParticipant) Name() string { return f.id }

type nopWorld struct{}

func (nopWorld) GetPosition(p capability.Participant) (capability.Position, error) {
	return capability.Position{}, nil
}
func (nopWorld) Move(p capability.Participant, to capability.Position) error { return nil }
func (nopWorld) ApplyDamage(p capability.Participant, amount float64) error  { return nil }
func (nopWorld) ApplyEffect(p capability.Participant, kind capability.EffectKind, duration capability.Tick, amplifier int) error {
	return nil
}
func (nopWorld) SetBlock(pos capability.Position, kind capability.BlockKind) error { return nil }
func (nopWorld) GetBlock(pos capability.Position) (capability.BlockKind, error)    { return "", nil }
func (nopWorld) OpenContainer(pos capability.Position) (capability.ContainerHandle, error) {
	return "h", nil
}
func (nopWorld) SetSlot(h capability.ContainerHandle, index int, stack capability.ItemStack) error {
	return nil
}
func (nopWorld) EmptySlots(h capability.ContainerHandle) ([]int, error) { return nil, nil }
func (nopWorld) Broadcast(worldID string, message string) error         { return nil }
func (nopWorld) EmitParticle(spec capability.ParticleSpec)               {}
func (nopWorld) EmitSound(spec capability.SoundSpec)                     {}

func newTestArena(t *testing.T) *arenapkg.Arena {
	t.Helper()
	registry := arenapkg.NewRegistry(nil)
	a, err := registry.Create("test", capability.Position{WorldID: "w"}, 8, arenapkg.CreateOptions{
		MinParticipants: 2,
		MaxParticipants: 4,
		SpawnCount:      4,
		ContainerBlock:  capability.BlockKind("chest"),
	})
	if err != nil {
		t.Fatalf("failed to create test arena: %v", err)
	}
	return a
}

func TestAdmitRejectsOutsideAdmittingPhases(t *testing.T) {
	clk := newFakeClock()
	m := New("m1", newTestArena(t), DefaultConfig(), clk, nopWorld{}, &fakeStats{}, loot.New(), team.NewManager(clk, 100), nil)
	err := m.Admit(fakeParticipant{"p1"})
	if !errors.Is(err, matcherr.ErrMatchNotAdmitting) {
		t.Fatalf("expected ErrMatchNotAdmitting while INACTIVE, got %v", err)
	}
}

func TestAdmitRejectsDuplicateAndFullRoster(t *testing.T) {
	clk := newFakeClock()
	a := newTestArena(t)
	m := New("m1", a, DefaultConfig(), clk, nopWorld{}, &fakeStats{}, loot.New(), team.NewManager(clk, 100), nil)
	if err := m.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	for i := 0; i < a.MaxParticipants; i++ {
		if err := m.Admit(fakeParticipant{id: string(rune('a' + i))}); err != nil {
			t.Fatalf("unexpected admit failure at %d: %v", i, err)
		}
	}
	if err := m.Admit(fakeParticipant{"overflow"}); !errors.Is(err, matcherr.ErrMatchFull) {
		t.Fatalf("expected ErrMatchFull, got %v", err)
	}
	if err := m.Admit(fakeParticipant{"a"}); !errors.Is(err, matcherr.ErrAlreadyInMatch) {
		t.Fatalf("expected ErrAlreadyInMatch, got %v", err)
	}
}

// TestPhaseLifecycleAndGraceGating drives a match from WAITING through
// FINISHED manually, checking the DAG order (P3) and that combat behavior
// is rejected during GRACE (P4).
func TestPhaseLifecycleAndGraceGating(t *testing.T) {
	clk := newFakeClock()
	a := newTestArena(t)
	stats := &fakeStats{}
	var terminalCalls int
	m := New("m1", a, DefaultConfig(), clk, nopWorld{}, stats, loot.New(), team.NewManager(clk, 100), func(mm *Match) { terminalCalls++ })

	p1, p2 := fakeParticipant{"p1"}, fakeParticipant{"p2"}
	if err := m.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if got := m.Phase(); got != Waiting {
		t.Fatalf("expected WAITING, got %s", got)
	}
	if err := m.Admit(p1); err != nil {
		t.Fatalf("Admit p1: %v", err)
	}
	if err := m.Admit(p2); err != nil {
		t.Fatalf("Admit p2: %v", err)
	}

	if !clk.fireNext() { // onSetupExpire
		t.Fatal("expected onSetupExpire to be scheduled")
	}
	if got := m.Phase(); got != Countdown {
		t.Fatalf("expected COUNTDOWN after setup expiry with roster met, got %s", got)
	}

	if !clk.fireNext() { // onCountdownExpire
		t.Fatal("expected onCountdownExpire to be scheduled")
	}
	if got := m.Phase(); got != Grace {
		t.Fatalf("expected GRACE after countdown expiry, got %s", got)
	}

	if err := m.RecordKill(p1.ID(), p2.ID()); !errors.Is(err, matcherr.ErrBehaviorNotActive) {
		t.Fatalf("expected kill recording to be rejected during GRACE, got %v", err)
	}

	if !clk.fireNext() { // onGraceExpire
		t.Fatal("expected onGraceExpire to be scheduled")
	}
	if got := m.Phase(); got != Active {
		t.Fatalf("expected ACTIVE after grace expiry, got %s", got)
	}

	if err := m.RecordKill(p1.ID(), p2.ID()); err != nil {
		t.Fatalf("RecordKill during ACTIVE: %v", err)
	}
	if got := m.Phase(); got != Finished {
		t.Fatalf("expected FINISHED once only one combatant remains alive, got %s", got)
	}
	if terminalCalls != 1 {
		t.Fatalf("expected exactly one terminal notification, got %d", terminalCalls)
	}
	if stats.completions != 1 {
		t.Fatalf("expected exactly one completion record, got %d", stats.completions)
	}
}

func TestAdminStopAbortsFromAnyNonTerminalPhase(t *testing.T) {
	clk := newFakeClock()
	a := newTestArena(t)
	var terminalCalls int
	m := New("m1", a, DefaultConfig(), clk, nopWorld{}, &fakeStats{}, loot.New(), team.NewManager(clk, 100), func(mm *Match) { terminalCalls++ })
	if err := m.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	m.AdminStop()
	clk.fireNext() // doAbort
	if got := m.Phase(); got != Aborted {
		t.Fatalf("expected ABORTED, got %s", got)
	}
	if terminalCalls != 1 {
		t.Fatalf("expected exactly one terminal notification, got %d", terminalCalls)
	}
}
