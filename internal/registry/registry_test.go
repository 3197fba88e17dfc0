package registry

import (
	"errors"
	"testing"

	"matchd/internal/arena"
	"matchd/internal/capability"
	"matchd/internal/loot"
	"matchd/internal/match"
	"matchd/internal/matcherr"
	"matchd/internal/team"
)

type fakeClock struct {
	now     capability.Tick
	pending []func()
}

func (c *fakeClock) Now() capability.Tick { return c.now }
func (c *fakeClock) ScheduleAt(at capability.Tick, fn func()) {
	c.pending = append(c.pending, fn)
}
func (c *fakeClock) ScheduleEvery(period capability.Tick, fn func()) capability.CallbackID { return 0 }
func (c *fakeClock) Cancel(id capability.CallbackID)                                      {}
func (c *fakeClock) fireAll() {
	pending := c.pending
	c.pending = nil
	for _, fn := range pending {
		fn()
	}
}

type fakeStats struct{}

func (fakeStats) RecordDeath(matchID string, victim, killer capability.Participant, phase capability.MatchPhase) {
}
func (fakeStats) RecordKill(matchID string, killer, victim capability.Participant) {}
func (fakeStats) RecordCompletion(matchID string, arenaName string, placements []capability.Placement, durationTicks int64) {
}
func (fakeStats) Leaderboard(statKind string, limit int) *capability.LeaderboardFuture {
	f, complete := capability.NewLeaderboardFuture()
	complete(nil, nil)
	return f
}

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

func newTestRegistry(t *testing.T) (*Registry, *fakeClock) {
	t.Helper()
	arenas := arena.NewRegistry(nil)
	if _, err := arenas.Create("test", capability.Position{WorldID: "w"}, 8, arena.CreateOptions{
		MinParticipants: 1, MaxParticipants: 4, SpawnCount: 4, ContainerBlock: capability.BlockKind("chest"),
	}); err != nil {
		t.Fatalf("failed to create arena: %v", err)
	}
	clk := &fakeClock{}
	reg := New(arenas, match.DefaultConfig(), clk, nopWorld{}, fakeStats{}, loot.New(), team.NewManager(clk, 100))
	return reg, clk
}

func TestGetOrCreateReusesExistingMatch(t *testing.T) {
	reg, _ := newTestRegistry(t)
	m1, err := reg.GetOrCreate("test")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	m2, err := reg.GetOrCreate("test")
	if err != nil {
		t.Fatalf("GetOrCreate (second call): %v", err)
	}
	if m1 != m2 {
		t.Error("expected the same Match instance on repeated GetOrCreate for the same arena")
	}
	if m1.ID == "" {
		t.Error("expected a generated match id")
	}
}

func TestGetOrCreateUnknownArena(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.GetOrCreate("nonexistent")
	if !errors.Is(err, matcherr.ErrArenaNotFound) {
		t.Fatalf("expected ErrArenaNotFound, got %v", err)
	}
}

func TestByIDAndByArenaLookup(t *testing.T) {
	reg, _ := newTestRegistry(t)
	m, err := reg.GetOrCreate("test")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got, ok := reg.ByID(m.ID); !ok || got != m {
		t.Error("expected ByID to resolve the match by its generated id")
	}
	if got, ok := reg.ByArena("test"); !ok || got != m {
		t.Error("expected ByArena to resolve the same match")
	}
}

// TestCleanupFanOutOnTerminal verifies P9: every registered hook fires
// exactly once when a Match reaches a terminal phase, and the registry
// deregisters the match from every index.
func TestCleanupFanOutOnTerminal(t *testing.T) {
	reg, clk := newTestRegistry(t)
	var hookCalls []string
	reg.OnCleanup(func(matchID string) { hookCalls = append(hookCalls, "hook1:"+matchID) })
	reg.OnCleanup(func(matchID string) { hookCalls = append(hookCalls, "hook2:"+matchID) })

	m, err := reg.GetOrCreate("test")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := m.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	m.AdminStop()
	clk.fireAll()

	if len(hookCalls) != 2 {
		t.Fatalf("expected both cleanup hooks to fire once, got %v", hookCalls)
	}
	if _, ok := reg.ByID(m.ID); ok {
		t.Error("expected the match to be deregistered from ByID after going terminal")
	}
	if _, ok := reg.ByArena("test"); ok {
		t.Error("expected the match to be deregistered from ByArena after going terminal")
	}
}
