package projectile

import (
	"errors"
	"math"
	"testing"

	"matchd/internal/capability"
	"matchd/internal/matcherr"
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
func (c *fakeClock) advance(ticks capability.Tick) {
	for i := capability.Tick(0); i < ticks; i++ {
		c.now++
		pending := c.pending
		c.pending = nil
		for _, fn := range pending {
			fn()
		}
	}
}

type fakeParticipant struct{ id string }

func (f fakeParticipant) ID() string   { return f.id }
func (f fakeParticipant) Name() string { return f.id }

type recordingWorld struct {
	positions map[string]capability.Position
	damage    map[string]float64
}

func newRecordingWorld() *recordingWorld {
	return &recordingWorld{positions: make(map[string]capability.Position), damage: make(map[string]float64)}
}
func (w *recordingWorld) GetPosition(p capability.Participant) (capability.Position, error) {
	pos, ok := w.positions[p.ID()]
	if !ok {
		return capability.Position{}, errors.New("unknown participant")
	}
	return pos, nil
}
func (w *recordingWorld) Move(p capability.Participant, to capability.Position) error {
	w.positions[p.ID()] = to
	return nil
}
func (w *recordingWorld) ApplyDamage(p capability.Participant, amount float64) error {
	w.damage[p.ID()] += amount
	return nil
}
func (w *recordingWorld) ApplyEffect(p capability.Participant, kind capability.EffectKind, duration capability.Tick, amplifier int) error {
	return nil
}
func (w *recordingWorld) SetBlock(pos capability.Position, kind capability.BlockKind) error { return nil }
func (w *recordingWorld) GetBlock(pos capability.Position) (capability.BlockKind, error)    { return "", nil }
func (w *recordingWorld) OpenContainer(pos capability.Position) (capability.ContainerHandle, error) {
	return nil, errors.New("no containers")
}
func (w *recordingWorld) SetSlot(h capability.ContainerHandle, index int, stack capability.ItemStack) error {
	return nil
}
func (w *recordingWorld) EmptySlots(h capability.ContainerHandle) ([]int, error) { return nil, nil }
func (w *recordingWorld) Broadcast(worldID string, message string) error        { return nil }
func (w *recordingWorld) EmitParticle(spec capability.ParticleSpec)              {}
func (w *recordingWorld) EmitSound(spec capability.SoundSpec)                    {}

func TestThrowRejectedWhenMatchNotActive(t *testing.T) {
	clk := &fakeClock{}
	w := newRecordingWorld()
	mgr := NewManager(DefaultConfig(), w, clk, func(matchID string) []capability.Participant { return nil })
	_, err := mgr.Throw("m1", fakeParticipant{"thrower"}, capability.Position{}, Fire, false)
	if !errors.Is(err, matcherr.ErrBehaviorNotActive) {
		t.Fatalf("expected ErrBehaviorNotActive, got %v", err)
	}
}

func TestThrowRejectedOnCooldown(t *testing.T) {
	clk := &fakeClock{}
	w := newRecordingWorld()
	thrower := fakeParticipant{"thrower"}
	w.positions[thrower.ID()] = capability.Position{WorldID: "w"}
	mgr := NewManager(DefaultConfig(), w, clk, func(matchID string) []capability.Participant { return []capability.Participant{thrower} })

	if _, err := mgr.Throw("m1", thrower, capability.Position{WorldID: "w"}, Fire, true); err != nil {
		t.Fatalf("first throw should succeed: %v", err)
	}
	if _, err := mgr.Throw("m1", thrower, capability.Position{WorldID: "w"}, Fire, true); !errors.Is(err, matcherr.ErrThrowOnCooldown) {
		t.Fatalf("expected ErrThrowOnCooldown on an immediate second throw, got %v", err)
	}
}

func TestExplodeDamagesNearbyAndCleansUp(t *testing.T) {
	clk := &fakeClock{}
	w := newRecordingWorld()
	thrower := fakeParticipant{"thrower"}
	victim := fakeParticipant{"victim"}
	w.positions[thrower.ID()] = capability.Position{WorldID: "w", X: 0, Y: 0, Z: 0}
	w.positions[victim.ID()] = capability.Position{WorldID: "w", X: 1, Y: 0, Z: 0}

	cfg := DefaultConfig()
	cfg.FuseTicks = 2
	mgr := NewManager(cfg, w, clk, func(matchID string) []capability.Participant {
		return []capability.Participant{thrower, victim}
	})

	inst, err := mgr.Throw("m1", thrower, capability.Position{WorldID: "w", X: 0, Y: 0, Z: 0, Yaw: 0, Pitch: 0}, Fire, true)
	if err != nil {
		t.Fatalf("Throw: %v", err)
	}
	if mgr.CountInMatch("m1") != 1 {
		t.Fatalf("expected 1 live instance before fuse expiry, got %d", mgr.CountInMatch("m1"))
	}

	clk.advance(cfg.FuseTicks + 1)

	if mgr.CountInMatch("m1") != 0 {
		t.Errorf("expected the instance to be removed once exploded, got %d", mgr.CountInMatch("m1"))
	}
	if w.damage[victim.ID()] <= 0 {
		t.Error("expected the victim within radius to take damage")
	}
	if _, ok := w.damage[thrower.ID()]; ok && w.damage[thrower.ID()] != 0 {
		t.Error("expected the thrower to take no damage by default (DamageThrower=false)")
	}
	_ = inst
}

func TestExplodeIgnoresParticipantOutsideRadius(t *testing.T) {
	clk := &fakeClock{}
	w := newRecordingWorld()
	thrower := fakeParticipant{"thrower"}
	bystander := fakeParticipant{"bystander"}
	w.positions[thrower.ID()] = capability.Position{WorldID: "w", X: 0, Y: 0, Z: 0}
	w.positions[bystander.ID()] = capability.Position{WorldID: "w", X: 500, Y: 0, Z: 500}

	cfg := DefaultConfig()
	cfg.FuseTicks = 1
	cfg.DamageThrower = true
	mgr := NewManager(cfg, w, clk, func(matchID string) []capability.Participant {
		return []capability.Participant{thrower, bystander}
	})

	if _, err := mgr.Throw("m1", thrower, capability.Position{WorldID: "w"}, Fire, true); err != nil {
		t.Fatalf("Throw: %v", err)
	}
	clk.advance(cfg.FuseTicks + 1)

	if w.damage[bystander.ID()] != 0 {
		t.Errorf("expected a participant far outside the blast radius to take no damage, got %v", w.damage[bystander.ID()])
	}
	if w.damage[thrower.ID()] <= 0 {
		t.Error("expected the thrower at ground zero to take damage when DamageThrower is true")
	}
}

func TestKnockbackCoincidentPositionsAreFinite(t *testing.T) {
	victim := capability.Position{WorldID: "w", X: 5, Y: 5, Z: 5}
	kb := knockback(victim, victim, 0, 4.0)
	for _, v := range kb {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("expected a finite knockback vector for coincident positions, got %v", kb)
		}
	}
	if kb[1] != 0.3 {
		t.Errorf("expected vertical knockback 0.3 for a coincident explosion, got %v", kb[1])
	}
}

func TestKnockbackAlwaysFinite(t *testing.T) {
	victim := capability.Position{WorldID: "w", X: 1e300, Y: 0, Z: 0}
	impact := capability.Position{WorldID: "w", X: 0, Y: 0, Z: 0}
	kb := knockback(victim, impact, 1e300, 4.0)
	for _, v := range kb {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("expected a finite knockback vector for a far-away victim, got %v", kb)
		}
	}
}

func TestKnockbackMinimumVerticalComponent(t *testing.T) {
	victim := capability.Position{WorldID: "w", X: 2, Y: -5, Z: 0}
	impact := capability.Position{WorldID: "w", X: 0, Y: 0, Z: 0}
	kb := knockback(victim, impact, 2, 4.0)
	if kb[1] < 0.2 {
		t.Errorf("expected vertical knockback floor of 0.2, got %v", kb[1])
	}
}
