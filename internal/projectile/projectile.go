// Package projectile implements the timed-explosive Projectile Behavior
// (§4.7): per-thrower cooldown, fused area-effect damage, disjoint FIRE/
// POISON resolution (Open Question 3 — the source keeps them disjoint in
// one path and computes both in another; this module always picks exactly
// one), and a fallback-safe knockback computation.
//
// Grounded on the teacher's internal/game/projectile.go (a straight-line
// hit-scan Projectile with a ring-buffer trail, owner/target bookkeeping)
// and player.go's TakeDamage knockback ("if dist > 0" direction guard),
// generalized from a per-frame hit-scan into a fused, self-rescheduling
// area-effect explosive driven entirely by internal/clock.
package projectile

import (
	"math"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"matchd/internal/capability"
	"matchd/internal/matcherr"
	"matchd/internal/metrics"
	"matchd/internal/spatial"
)

type Kind string

const (
	Fire   Kind = "fire"
	Poison Kind = "poison"
)

// Config carries the tunable explosive parameters from the
// `explosive.*` config surface (§6).
type Config struct {
	FuseTicks      capability.Tick
	Radius         float64
	BaseDamage     float64
	EffectDuration capability.Tick // fire: ignited-ground revert delay. poison: effect duration.
	EffectAmplifier int
	DamageThrower  bool
	ThrowVelocity  float64
	CooldownTicks  capability.Tick
	SweepInterval  capability.Tick // cooldown-table eviction cadence
}

// DefaultConfig mirrors the spec's stated defaults: 2s cooldown, disjoint
// kinds, no damage to the thrower.
func DefaultConfig() Config {
	return Config{
		FuseTicks:       60,  // 3s at 20 TPS
		Radius:          4.0,
		BaseDamage:      6.0,
		EffectDuration:  100, // 5s
		EffectAmplifier: 1,
		DamageThrower:   false,
		ThrowVelocity:   1.2,
		CooldownTicks:   40, // 2s at 20 TPS
		SweepInterval:   6000, // 5min at 20 TPS
	}
}

// Instance is a live ProjectileInstance: it self-reschedules its own fuse
// tick via the Clock until it explodes or the owning Manager removes it in
// bulk on match cleanup.
type Instance struct {
	ID            string
	MatchID       string
	ThrowerID     string
	Kind          Kind
	FuseRemaining capability.Tick
	Position      capability.Position
	Velocity      [3]float64
	Radius        float64
	EffectDuration  capability.Tick
	EffectAmplifier int
	DamageThrower   bool
}

// RosterLookup resolves the alive participants currently in a match. The
// explosive behavior never reads Match internals directly — it is handed
// this capability at construction, per the explicit-capability-passing
// design (no process-wide lookup survives except what the owner wires up).
type RosterLookup func(matchID string) []capability.Participant

// Manager owns every live Instance and the per-thrower cooldown table.
// All mutation happens on the engine thread; the mutex exists only to let
// diagnostics (admin API, tests) read snapshots concurrently.
type Manager struct {
	mu        sync.Mutex
	instances map[string]*Instance
	byMatch   map[string]map[string]bool
	cooldown  map[string]capability.Tick // thrower id -> last-throw tick
	lastUse   map[string]capability.Tick // thrower id -> last-throw tick, for sweep

	cfg    Config
	world  capability.World
	clock  capability.Clock
	roster RosterLookup
}

func NewManager(cfg Config, world capability.World, clock capability.Clock, roster RosterLookup) *Manager {
	return &Manager{
		instances: make(map[string]*Instance),
		byMatch:   make(map[string]map[string]bool),
		cooldown:  make(map[string]capability.Tick),
		lastUse:   make(map[string]capability.Tick),
		cfg:       cfg,
		world:     world,
		clock:     clock,
		roster:    roster,
	}
}

// StartCooldownSweep registers the periodic eviction job: thrower entries
// whose last use is older than cfg.SweepInterval ticks are dropped.
func (m *Manager) StartCooldownSweep() {
	m.clock.ScheduleEvery(m.cfg.SweepInterval, func() {
		now := m.clock.Now()
		m.mu.Lock()
		defer m.mu.Unlock()
		for thrower, last := range m.lastUse {
			if now-last >= m.cfg.SweepInterval {
				delete(m.lastUse, thrower)
				delete(m.cooldown, thrower)
			}
		}
	})
}

// Throw spawns a projectile at the thrower's eye position if the behavior
// gate (matchActive) is open and the thrower is off cooldown.
func (m *Manager) Throw(matchID string, thrower capability.Participant, eye capability.Position, kind Kind, matchActive bool) (*Instance, error) {
	if !matchActive {
		return nil, matcherr.ErrBehaviorNotActive
	}

	now := m.clock.Now()

	m.mu.Lock()
	if last, ok := m.cooldown[thrower.ID()]; ok && now-last < m.cfg.CooldownTicks {
		m.mu.Unlock()
		return nil, matcherr.ErrThrowOnCooldown
	}
	m.cooldown[thrower.ID()] = now
	m.lastUse[thrower.ID()] = now
	id := uuid.NewString()
	m.mu.Unlock()

	inst := &Instance{
		ID:              id,
		MatchID:         matchID,
		ThrowerID:       thrower.ID(),
		Kind:            kind,
		FuseRemaining:   m.cfg.FuseTicks,
		Position:        eye,
		Velocity:        lookVector(eye.Yaw, eye.Pitch, m.cfg.ThrowVelocity),
		Radius:          m.cfg.Radius,
		EffectDuration:  m.cfg.EffectDuration,
		EffectAmplifier: m.cfg.EffectAmplifier,
		DamageThrower:   m.cfg.DamageThrower,
	}

	m.mu.Lock()
	m.instances[id] = inst
	if m.byMatch[matchID] == nil {
		m.byMatch[matchID] = make(map[string]bool)
	}
	m.byMatch[matchID][id] = true
	m.mu.Unlock()

	m.clock.ScheduleAt(now+1, func() { m.tick(id) })
	return inst, nil
}

func lookVector(yawDeg, pitchDeg, speed float64) [3]float64 {
	yaw := yawDeg * math.Pi / 180
	pitch := pitchDeg * math.Pi / 180
	return [3]float64{
		-math.Sin(yaw) * math.Cos(pitch) * speed,
		-math.Sin(pitch) * speed,
		math.Cos(yaw) * math.Cos(pitch) * speed,
	}
}

func (m *Manager) tick(id string) {
	m.mu.Lock()
	inst, ok := m.instances[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	inst.Position.X += inst.Velocity[0]
	inst.Position.Y += inst.Velocity[1]
	inst.Position.Z += inst.Velocity[2]
	inst.FuseRemaining--
	fuseDone := inst.FuseRemaining <= 0
	m.mu.Unlock()

	if fuseDone {
		m.explode(inst)
		return
	}
	m.clock.ScheduleAt(m.clock.Now()+1, func() { m.tick(id) })
}

// explode resolves area damage/effects, emits particle/sound, and removes
// the instance. Per Open Question 3, FIRE and POISON resolution is always
// disjoint: only the instance's own Kind is evaluated.
func (m *Manager) explode(inst *Instance) {
	defer m.remove(inst.MatchID, inst.ID)

	roster := m.roster(inst.MatchID)

	// Broad-phase: bucket the roster into a grid centered on the impact
	// point before doing the exact 3D distance check, so a match with a
	// large roster doesn't pay an O(n) GetPosition+distance cost for
	// participants nowhere near the blast.
	window := inst.Radius*4 + 1
	grid := spatial.NewSpatialGrid(window, window, inst.Radius, len(roster)+1)
	toCell := func(delta float64) float64 { return delta + window/2 }

	type candidate struct {
		p   capability.Participant
		pos capability.Position
	}
	byIndex := make([]candidate, 0, len(roster))
	for _, p := range roster {
		if p.ID() == inst.ThrowerID && !inst.DamageThrower {
			continue
		}
		pos, err := m.world.GetPosition(p)
		if err != nil || !pos.SameWorld(inst.Position) {
			continue
		}
		idx := uint32(len(byIndex))
		byIndex = append(byIndex, candidate{p, pos})
		grid.Insert(idx, toCell(pos.X-inst.Position.X), toCell(pos.Z-inst.Position.Z))
	}

	for _, idx := range grid.QueryRadius(toCell(0), toCell(0), inst.Radius) {
		c := byIndex[idx]
		p, pos := c.p, c.pos
		d := distance3(pos, inst.Position)
		if d > inst.Radius {
			continue
		}
		falloff := 1 - d/inst.Radius

		switch inst.Kind {
		case Fire:
			_ = m.world.ApplyDamage(p, m.baseDamage()*falloff)
		case Poison:
			_ = m.world.ApplyDamage(p, 0.5*m.baseDamage()*falloff)
			_ = m.world.ApplyEffect(p, capability.EffectPoison, effectDuration(inst.EffectDuration), inst.EffectAmplifier)
		}

		kb := knockback(pos, inst.Position, d, inst.Radius)
		target := pos
		target.X += kb[0]
		target.Y += kb[1]
		target.Z += kb[2]
		_ = m.world.Move(p, target)
	}

	if inst.Kind == Fire {
		m.igniteGround(inst)
	}

	metrics.IncExplosion(string(inst.Kind))
	m.world.EmitParticle(capability.ParticleSpec{Kind: string(inst.Kind), At: inst.Position, Count: 1})
	m.world.EmitSound(capability.SoundSpec{Kind: "explosion", At: inst.Position, Volume: 1.0})
}

func (m *Manager) baseDamage() float64 { return m.cfg.BaseDamage }

func effectDuration(d capability.Tick) capability.Tick { return d }

// igniteGround samples concentric rings around the impact point with
// Gaussian radial jitter and sets each sampled position on fire, reverting
// it to air after EffectDuration ticks.
func (m *Manager) igniteGround(inst *Instance) {
	rings := int(math.Ceil(inst.Radius))
	if rings < 1 {
		rings = 1
	}
	for ring := 1; ring <= rings; ring++ {
		ringRadius := float64(ring)
		samples := 6 * ring
		for i := 0; i < samples; i++ {
			angle := 2 * math.Pi * float64(i) / float64(samples)
			jitter := rand.NormFloat64() * 0.5
			r := ringRadius + jitter
			x := inst.Position.X + r*math.Cos(angle)
			z := inst.Position.Z + r*math.Sin(angle)
			y := inst.Position.Y
			if rand.Float64() < 0.3 {
				y += rand.Float64()*2 - 1
			}
			pos := capability.Position{WorldID: inst.Position.WorldID, X: x, Y: y, Z: z}
			if err := m.world.SetBlock(pos, capability.BlockKind("fire")); err != nil {
				continue
			}
			revertAt := m.clock.Now() + inst.EffectDuration
			m.clock.ScheduleAt(revertAt, func() {
				_ = m.world.SetBlock(pos, capability.BlockKind("air"))
			})
		}
	}
}

// knockback computes normalize(victim-impact) * (1-d/r) * 0.5 with a
// minimum vertical component of +0.2. Coincident positions substitute a
// small random horizontal plus +0.3 vertical. Any non-finite result falls
// back to (0, 0.3, 0).
func knockback(victim, impact capability.Position, d, r float64) [3]float64 {
	if d == 0 {
		angle := rand.Float64() * 2 * math.Pi
		return [3]float64{math.Cos(angle) * 0.2, 0.3, math.Sin(angle) * 0.2}
	}

	scale := (1 - d/r) * 0.5
	vx := (victim.X - impact.X) / d * scale
	vy := (victim.Y - impact.Y) / d * scale
	vz := (victim.Z - impact.Z) / d * scale
	if vy < 0.2 {
		vy = 0.2
	}

	if !finite(vx) || !finite(vy) || !finite(vz) {
		return [3]float64{0, 0.3, 0}
	}
	return [3]float64{vx, vy, vz}
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func distance3(a, b capability.Position) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (m *Manager) remove(matchID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, id)
	if set, ok := m.byMatch[matchID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m.byMatch, matchID)
		}
	}
}

// CleanupMatch destroys every instance bound to matchID — called by the
// Match Registry on FINISHED/ABORTED (§4.5, P9).
func (m *Manager) CleanupMatch(matchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.byMatch[matchID] {
		delete(m.instances, id)
	}
	delete(m.byMatch, matchID)
}

// CountInMatch reports how many live instances remain bound to matchID —
// used by tests asserting P9.
func (m *Manager) CountInMatch(matchID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byMatch[matchID])
}
