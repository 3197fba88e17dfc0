// Package worldsim provides an in-memory capability.World double: the demo
// mode cmd/matchd boots when no production host simulation is wired in.
// The package tests use their own World fakes rather than this one.
//
// Grounded on the teacher's Player position/velocity fields (X, Y, bounds
// clamping in internal/game/player.go's movement update) adapted from an
// AI-driven entity into a passive capability implementation: worldsim never
// moves anyone on its own, it only records and serves state on request.
package worldsim

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"matchd/internal/capability"
)

type blockKey struct {
	worldID    string
	x, y, z int
}

func keyFor(pos capability.Position) blockKey {
	return blockKey{
		worldID: pos.WorldID,
		x:       int(math.Round(pos.X)),
		y:       int(math.Round(pos.Y)),
		z:       int(math.Round(pos.Z)),
	}
}

// container is the concrete type behind capability.ContainerHandle.
type container struct {
	pos   capability.Position
	slots map[int]capability.ItemStack
}

// World is a single in-memory world instance. Safe for concurrent use —
// internal/clock's scheduler calls World methods only from the tick
// goroutine, but the admin API and demo seeding may read positions
// concurrently.
type World struct {
	mu sync.RWMutex

	positions map[string]capability.Position // participant id -> position
	blocks    map[blockKey]capability.BlockKind
	containers map[blockKey]*container

	logger func(format string, args ...any)

	particleCount int
	soundCount    int
	broadcasts    []string
}

func New(logger func(format string, args ...any)) *World {
	return &World{
		positions:  make(map[string]capability.Position),
		blocks:     make(map[blockKey]capability.BlockKind),
		containers: make(map[blockKey]*container),
		logger:     logger,
	}
}

// Place seeds a participant's starting position — the demo/test equivalent
// of a host's own join handling.
func (w *World) Place(p capability.Participant, pos capability.Position) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.positions[p.ID()] = pos
}

// PlaceContainer registers a writable container at pos with the given slot
// count, all initially empty — the demo/test equivalent of the host's own
// container placement (arena.Registry.Create scans for containers a host
// already placed; this populates them for worldsim's own sandbox).
func (w *World) PlaceContainer(pos capability.Position, slotCount int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.containers[keyFor(pos)] = &container{pos: pos, slots: make(map[int]capability.ItemStack, slotCount)}
	for i := 0; i < slotCount; i++ {
		w.containers[keyFor(pos)].slots[i] = capability.ItemStack{}
	}
}

func (w *World) GetPosition(p capability.Participant) (capability.Position, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	pos, ok := w.positions[p.ID()]
	if !ok {
		return capability.Position{}, fmt.Errorf("worldsim: unknown participant %q", p.ID())
	}
	return pos, nil
}

func (w *World) Move(p capability.Participant, to capability.Position) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.positions[p.ID()]; !ok {
		return fmt.Errorf("worldsim: unknown participant %q", p.ID())
	}
	w.positions[p.ID()] = to
	return nil
}

func (w *World) ApplyDamage(p capability.Participant, amount float64) error {
	if w.logger != nil {
		w.logger("worldsim: %s takes %.1f damage", p.ID(), amount)
	}
	return nil
}

func (w *World) ApplyEffect(p capability.Participant, kind capability.EffectKind, durationTicks capability.Tick, amplifier int) error {
	if w.logger != nil {
		w.logger("worldsim: %s afflicted with %s x%d for %d ticks", p.ID(), kind, amplifier, durationTicks)
	}
	return nil
}

func (w *World) SetBlock(pos capability.Position, kind capability.BlockKind) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocks[keyFor(pos)] = kind
	return nil
}

func (w *World) GetBlock(pos capability.Position) (capability.BlockKind, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.blocks[keyFor(pos)], nil
}

var errNotAContainer = errors.New("worldsim: no container at position")

func (w *World) OpenContainer(pos capability.Position) (capability.ContainerHandle, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.containers[keyFor(pos)]
	if !ok {
		return nil, errNotAContainer
	}
	return c, nil
}

func (w *World) SetSlot(h capability.ContainerHandle, index int, stack capability.ItemStack) error {
	c, ok := h.(*container)
	if !ok {
		return errNotAContainer
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	c.slots[index] = stack
	return nil
}

func (w *World) EmptySlots(h capability.ContainerHandle) ([]int, error) {
	c, ok := h.(*container)
	if !ok {
		return nil, errNotAContainer
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []int
	for idx, stack := range c.slots {
		if stack.ItemID == "" {
			out = append(out, idx)
		}
	}
	return out, nil
}

func (w *World) Broadcast(worldID string, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.broadcasts = append(w.broadcasts, message)
	if w.logger != nil {
		w.logger("worldsim[%s]: %s", worldID, message)
	}
	return nil
}

func (w *World) EmitParticle(spec capability.ParticleSpec) {
	w.mu.Lock()
	w.particleCount++
	w.mu.Unlock()
}

func (w *World) EmitSound(spec capability.SoundSpec) {
	w.mu.Lock()
	w.soundCount++
	w.mu.Unlock()
}

// Broadcasts returns every message Broadcast has recorded, for tests/demo
// consoles that want to replay chat history.
func (w *World) Broadcasts() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.broadcasts))
	copy(out, w.broadcasts)
	return out
}

var _ capability.World = (*World)(nil)
