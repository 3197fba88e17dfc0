// Package match implements the Match state machine (§4.4), roster, kill
// ledger, timers, and the in-Match loot refill coordination (§4.9) — the
// largest single component of the engine.
//
// Grounded on the teacher's internal/game/engine.go (a single goroutine
// driving state transitions off a time.Ticker, with roster/kill-count
// bookkeeping in plain maps guarded by one mutex), generalized from one
// engine-per-arena running a continuous deathmatch to a finite phase DAG
// instance per arena, driven by internal/clock instead of a raw ticker.
package match

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"matchd/internal/arena"
	"matchd/internal/capability"
	"matchd/internal/loot"
	"matchd/internal/matcherr"
	"matchd/internal/metrics"
	"matchd/internal/team"
)

type Phase string

const (
	Inactive   Phase = "INACTIVE"
	Waiting    Phase = "WAITING"
	Countdown  Phase = "COUNTDOWN"
	Grace      Phase = "GRACE"
	Active     Phase = "ACTIVE"
	Deathmatch Phase = "DEATHMATCH"
	Finished   Phase = "FINISHED"
	Aborted    Phase = "ABORTED"
)

func (p Phase) terminal() bool { return p == Finished || p == Aborted }

// ParticipantState is retained from admission until the Match ends so
// statistics can be emitted.
type ParticipantState struct {
	Participant  capability.Participant
	Alive        bool
	Spectator    bool
	Kills        int
	Damage       float64
	ChestsOpened int
	JoinEpoch    capability.Tick
}

// Config carries the phase-timing and refill-coordination settings from
// the §6 config surface.
type Config struct {
	SetupPeriodTicks       capability.Tick
	CountdownTicks         capability.Tick
	GraceTicks             capability.Tick
	ActiveTicks            capability.Tick
	DeathmatchTicks        capability.Tick
	RefillIntervalTicks    capability.Tick
	ContainerCooldownTicks capability.Tick
	MaxContainersPerRefill int
	MinStacksPerContainer  int
	MaxStacksPerContainer  int
	TierMix                map[string]float64
	TrackerNotifyPeriod    capability.Tick

	// NotifyTracker is invoked every TrackerNotifyPeriod ticks while the
	// Match is ACTIVE or DEATHMATCH (§4.4: "Every 10 ticks: notify tracker
	// bindings within this match"). May be nil, in which case no periodic
	// notify job runs — the Tracker behavior still self-updates each
	// binding on its own per-holder cadence.
	NotifyTracker func(matchID string)
}

// DefaultConfig mirrors the §4.4 "Phase timing (configurable; defaults
// shown)" table at 20 ticks/second.
func DefaultConfig() Config {
	return Config{
		SetupPeriodTicks:       2400, // 120s
		CountdownTicks:         600,  // 30s
		GraceTicks:             600,  // 30s
		ActiveTicks:            12000, // 600s
		DeathmatchTicks:        3600, // 180s
		RefillIntervalTicks:    600,  // 30s
		ContainerCooldownTicks: 1200, // 60s
		MaxContainersPerRefill: 4,
		MinStacksPerContainer:  4,
		MaxStacksPerContainer:  6,
		TierMix:                map[string]float64{"common": 70, "rare": 25, "epic": 5},
		TrackerNotifyPeriod:    10,
	}
}

// OnTerminal is invoked exactly once, the tick a Match reaches FINISHED or
// ABORTED — the Match Registry's single cleanup trigger point (§4.5).
type OnTerminal func(m *Match)

// Match is mutated only on the engine thread in normal operation; the
// mutex exists so the admin API and tests can take consistent read
// snapshots without racing the engine.
type Match struct {
	ID      string
	Arena   *arena.Arena
	created capability.Tick

	cfg   Config
	clock capability.Clock
	world capability.World
	stats capability.StatsSink
	loot  *loot.Table
	teams *team.Manager

	onTerminal OnTerminal

	mu         sync.Mutex
	phase      Phase
	roster     map[string]*ParticipantState
	deathOrder []string
	completed  bool

	recurring []capability.CallbackID

	containerLastRefill map[string]capability.Tick
	containerLocked     map[string]bool
}

func New(id string, a *arena.Arena, cfg Config, clock capability.Clock, world capability.World, stats capability.StatsSink, lootTable *loot.Table, teams *team.Manager, onTerminal OnTerminal) *Match {
	return &Match{
		ID:                  id,
		Arena:               a,
		created:             clock.Now(),
		cfg:                 cfg,
		clock:               clock,
		world:               world,
		stats:               stats,
		loot:                lootTable,
		teams:               teams,
		onTerminal:          onTerminal,
		phase:               Inactive,
		roster:              make(map[string]*ParticipantState),
		containerLastRefill: make(map[string]capability.Tick),
		containerLocked:     make(map[string]bool),
	}
}

// Phase returns the current phase under lock.
func (m *Match) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Activate transitions INACTIVE -> WAITING and starts the setup-period
// timer (§4.6): at expiry, auto-fill teams and promote to COUNTDOWN if the
// minimum participant count is met.
func (m *Match) Activate() error {
	m.mu.Lock()
	if m.phase != Inactive {
		m.mu.Unlock()
		return matcherr.ErrIllegalTransition
	}
	m.phase = Waiting
	m.mu.Unlock()

	m.clock.ScheduleAt(m.clock.Now()+m.cfg.SetupPeriodTicks, m.onSetupExpire)
	return nil
}

func (m *Match) onSetupExpire() {
	m.mu.Lock()
	if m.phase != Waiting {
		m.mu.Unlock()
		return
	}
	met := len(m.roster) >= m.Arena.MinParticipants
	m.mu.Unlock()

	if !met {
		// Open Question 1: a WAITING match never auto-demotes and never
		// auto-retries; it simply stays WAITING until an admin acts.
		return
	}

	m.teams.AutoFill(m.ID, m.queuedParticipants(), m.Arena.MaxParticipants)
	m.transitionToCountdown()
}

func (m *Match) queuedParticipants() []capability.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]capability.Participant, 0, len(m.roster))
	type joined struct {
		p     capability.Participant
		epoch capability.Tick
	}
	var js []joined
	for _, ps := range m.roster {
		if !ps.Spectator {
			js = append(js, joined{ps.Participant, ps.JoinEpoch})
		}
	}
	sort.Slice(js, func(i, j int) bool { return js[i].epoch < js[j].epoch })
	for _, j := range js {
		out = append(out, j.p)
	}
	return out
}

// AdminStart forces WAITING -> COUNTDOWN regardless of the setup timer.
func (m *Match) AdminStart() error {
	m.mu.Lock()
	if m.phase != Waiting {
		m.mu.Unlock()
		return matcherr.ErrIllegalTransition
	}
	m.mu.Unlock()
	m.transitionToCountdown()
	return nil
}

func (m *Match) transitionToCountdown() {
	m.mu.Lock()
	if m.phase != Waiting {
		m.mu.Unlock()
		return
	}
	m.phase = Countdown
	m.mu.Unlock()

	m.clock.ScheduleAt(m.clock.Now()+m.cfg.CountdownTicks, m.onCountdownExpire)
}

func (m *Match) onCountdownExpire() {
	m.mu.Lock()
	if m.phase != Countdown {
		m.mu.Unlock()
		return
	}
	m.phase = Grace
	m.mu.Unlock()

	m.clock.ScheduleAt(m.clock.Now()+m.cfg.GraceTicks, m.onGraceExpire)
}

func (m *Match) onGraceExpire() {
	m.transitionToActive()
}

// SkipGrace forces GRACE -> ACTIVE immediately (admin override).
func (m *Match) SkipGrace() error {
	m.mu.Lock()
	if m.phase != Grace {
		m.mu.Unlock()
		return matcherr.ErrIllegalTransition
	}
	m.mu.Unlock()
	m.transitionToActive()
	return nil
}

func (m *Match) transitionToActive() {
	m.mu.Lock()
	if m.phase != Grace {
		m.mu.Unlock()
		return
	}
	m.phase = Active
	m.mu.Unlock()

	m.clock.ScheduleAt(m.clock.Now()+m.cfg.ActiveTicks, m.onActiveExpire)
	id := m.clock.ScheduleEvery(m.cfg.RefillIntervalTicks, m.refillCycle)
	m.mu.Lock()
	m.recurring = append(m.recurring, id)
	m.mu.Unlock()

	if m.cfg.NotifyTracker != nil && m.cfg.TrackerNotifyPeriod > 0 {
		notifyID := m.clock.ScheduleEvery(m.cfg.TrackerNotifyPeriod, func() { m.cfg.NotifyTracker(m.ID) })
		m.mu.Lock()
		m.recurring = append(m.recurring, notifyID)
		m.mu.Unlock()
	}
}

func (m *Match) onActiveExpire() {
	m.mu.Lock()
	if m.phase != Active {
		m.mu.Unlock()
		return
	}
	alive := m.aliveCountLocked()
	m.mu.Unlock()

	if alive >= 2 {
		m.transitionToDeathmatch()
	} else {
		m.finalize()
	}
}

func (m *Match) transitionToDeathmatch() {
	m.mu.Lock()
	if m.phase != Active {
		m.mu.Unlock()
		return
	}
	m.phase = Deathmatch
	center := m.Arena.DeathmatchCenter
	var survivors []capability.Participant
	for _, ps := range m.roster {
		if ps.Alive && !ps.Spectator {
			survivors = append(survivors, ps.Participant)
		}
	}
	m.mu.Unlock()

	for _, p := range survivors {
		_ = m.world.Move(p, center)
	}

	m.clock.ScheduleAt(m.clock.Now()+m.cfg.DeathmatchTicks, m.onDeathmatchExpire)
	id := m.clock.ScheduleEvery(1, m.checkDeathmatchTermination)
	m.mu.Lock()
	m.recurring = append(m.recurring, id)
	m.mu.Unlock()
}

func (m *Match) checkDeathmatchTermination() {
	m.mu.Lock()
	if m.phase != Deathmatch {
		m.mu.Unlock()
		return
	}
	alive := m.aliveCountLocked()
	m.mu.Unlock()
	if alive <= 1 {
		m.finalize()
	}
}

func (m *Match) onDeathmatchExpire() {
	m.mu.Lock()
	if m.phase != Deathmatch {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.finalize()
}

func (m *Match) aliveCountLocked() int {
	n := 0
	for _, ps := range m.roster {
		if ps.Alive && !ps.Spectator {
			n++
		}
	}
	return n
}

// Admit adds participant to the roster. Valid only in WAITING or
// COUNTDOWN, below the arena's participant max.
func (m *Match) Admit(p capability.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != Waiting && m.phase != Countdown {
		return matcherr.ErrMatchNotAdmitting
	}
	if _, ok := m.roster[p.ID()]; ok {
		return matcherr.ErrAlreadyInMatch
	}
	if len(m.roster) >= m.Arena.MaxParticipants {
		return matcherr.ErrMatchFull
	}

	m.roster[p.ID()] = &ParticipantState{
		Participant: p,
		Alive:       true,
		JoinEpoch:   m.clock.Now(),
	}
	return nil
}

// Remove takes participant out of the match. During ACTIVE/DEATHMATCH an
// alive participant's removal counts as a death with no killer.
func (m *Match) Remove(p capability.Participant, voluntary bool) {
	m.mu.Lock()
	ps, ok := m.roster[p.ID()]
	if !ok {
		m.mu.Unlock()
		return
	}

	wasAliveCombat := ps.Alive && !ps.Spectator && (m.phase == Active || m.phase == Deathmatch)
	delete(m.roster, p.ID())

	phase := m.phase
	belowMin := phase == Countdown && m.countdownRosterBelowMinLocked()
	m.mu.Unlock()

	if wasAliveCombat {
		m.recordDeathInternal(p.ID(), "", phase)
	}
	if belowMin {
		m.transitionCountdownToWaiting()
	}
	_ = voluntary
}

func (m *Match) countdownRosterBelowMinLocked() bool {
	return len(m.roster) < m.Arena.MinParticipants
}

func (m *Match) transitionCountdownToWaiting() {
	m.mu.Lock()
	if m.phase != Countdown {
		m.mu.Unlock()
		return
	}
	m.phase = Waiting
	m.mu.Unlock()
}

// AddSpectator marks a roster entry as a non-combat observer. Requires
// ACTIVE or DEATHMATCH.
func (m *Match) AddSpectator(p capability.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != Active && m.phase != Deathmatch {
		return matcherr.ErrNotSpectatable
	}
	ps, ok := m.roster[p.ID()]
	if !ok {
		m.roster[p.ID()] = &ParticipantState{Participant: p, Alive: false, Spectator: true, JoinEpoch: m.clock.Now()}
		return nil
	}
	ps.Alive = false
	ps.Spectator = true
	return nil
}

// RecordKill marks victim not alive and increments killer's kill count.
func (m *Match) RecordKill(killerID, victimID string) error {
	m.mu.Lock()
	killer, kok := m.roster[killerID]
	victim, vok := m.roster[victimID]
	if !kok || !vok {
		m.mu.Unlock()
		return matcherr.ErrNotInRoster
	}
	phase := m.phase
	if phase == Grace {
		m.mu.Unlock()
		return matcherr.ErrBehaviorNotActive
	}
	victim.Alive = false
	killer.Kills++
	m.deathOrder = append(m.deathOrder, victimID)
	m.mu.Unlock()

	m.stats.RecordKill(m.ID, killer.Participant, victim.Participant)
	m.stats.RecordDeath(m.ID, victim.Participant, killer.Participant, capability.MatchPhase(phase))
	metrics.IncKills()
	metrics.IncDeaths()
	m.checkCombatTermination(phase)
	return nil
}

func (m *Match) recordDeathInternal(victimID, killerID string, phase Phase) {
	m.mu.Lock()
	m.deathOrder = append(m.deathOrder, victimID)
	ps := m.roster[victimID]
	m.mu.Unlock()

	var victim capability.Participant
	if ps != nil {
		victim = ps.Participant
	}
	m.stats.RecordDeath(m.ID, victim, nil, capability.MatchPhase(phase))
	metrics.IncDeaths()
	m.checkCombatTermination(phase)
}

func (m *Match) checkCombatTermination(phase Phase) {
	if phase != Active && phase != Deathmatch {
		return
	}
	m.mu.Lock()
	alive := m.aliveCountLocked()
	m.mu.Unlock()
	if alive <= 1 {
		m.finalize()
	}
}

// Broadcast delivers message to every match member and spectator via the
// World capability.
func (m *Match) Broadcast(message string) {
	_ = m.world.Broadcast(m.Arena.WorldID, message)
}

// RecordChestOpened increments a participant's opened-chest counter.
func (m *Match) RecordChestOpened(participantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ps, ok := m.roster[participantID]; ok {
		ps.ChestsOpened++
	}
}

// AdminStop transitions any non-terminal Match to ABORTED on the next
// tick (§5: administrative stop takes effect one tick later).
func (m *Match) AdminStop() {
	m.clock.ScheduleAt(m.clock.Now()+1, m.doAbort)
}

func (m *Match) doAbort() {
	m.mu.Lock()
	if m.phase.terminal() {
		m.mu.Unlock()
		return
	}
	m.phase = Aborted
	ids := m.recurring
	m.recurring = nil
	m.mu.Unlock()

	for _, id := range ids {
		m.clock.Cancel(id)
	}
	m.notifyTerminal()
}

// finalize computes placements and emits exactly one completion record,
// then marks the Match FINISHED.
func (m *Match) finalize() {
	m.mu.Lock()
	if m.phase.terminal() || m.completed {
		m.mu.Unlock()
		return
	}
	m.phase = Finished
	m.completed = true
	ids := m.recurring
	m.recurring = nil

	var winner *ParticipantState
	aliveCount := 0
	for _, ps := range m.roster {
		if ps.Alive && !ps.Spectator {
			aliveCount++
			winner = ps
		}
	}
	if aliveCount != 1 {
		// Open Question 2: ties (including the zero-alive edge case at
		// forced DEATHMATCH expiry) record no winner; conservative.
		winner = nil
	}

	placements := m.buildPlacementsLocked(winner)
	duration := m.clock.Now() - m.created
	m.mu.Unlock()

	for _, id := range ids {
		m.clock.Cancel(id)
	}
	m.stats.RecordCompletion(m.ID, m.Arena.Name, placements, int64(duration))
	m.notifyTerminal()
}

func (m *Match) buildPlacementsLocked(winner *ParticipantState) []capability.Placement {
	var placements []capability.Placement
	seen := make(map[string]bool)
	if winner != nil {
		placements = append(placements, capability.Placement{Participant: winner.Participant, Kills: winner.Kills, Damage: winner.Damage})
		seen[winner.Participant.ID()] = true
	}
	var survivors []string
	for id, ps := range m.roster {
		if ps.Alive && !ps.Spectator && !seen[id] {
			survivors = append(survivors, id)
		}
	}
	sort.Strings(survivors)
	for _, id := range survivors {
		ps := m.roster[id]
		placements = append(placements, capability.Placement{Participant: ps.Participant, Kills: ps.Kills, Damage: ps.Damage})
		seen[id] = true
	}
	for i := len(m.deathOrder) - 1; i >= 0; i-- {
		id := m.deathOrder[i]
		if seen[id] {
			continue
		}
		ps, ok := m.roster[id]
		if !ok {
			continue
		}
		placements = append(placements, capability.Placement{Participant: ps.Participant, Kills: ps.Kills, Damage: ps.Damage})
		seen[id] = true
	}
	var rest []string
	for id := range m.roster {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		ps := m.roster[id]
		placements = append(placements, capability.Placement{Participant: ps.Participant, Kills: ps.Kills, Damage: ps.Damage})
	}
	return placements
}

func (m *Match) notifyTerminal() {
	if m.onTerminal != nil {
		m.onTerminal(m)
	}
}

// refillCycle is the periodic job described in §4.9: up to
// MaxContainersPerRefill containers whose last-refill tick is old enough
// are locked, filled, and unlocked in turn. Any fill error marks the
// container skipped for this cycle rather than aborting the cycle.
func (m *Match) refillCycle() {
	m.mu.Lock()
	if m.phase != Active && m.phase != Deathmatch {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	m.mu.Unlock()

	containers := m.Arena.Containers()
	var candidates []capability.Position
	m.mu.Lock()
	for _, pos := range containers {
		key := containerKey(pos)
		if m.containerLocked[key] {
			continue
		}
		last, ok := m.containerLastRefill[key]
		if ok && now-last < m.cfg.ContainerCooldownTicks {
			continue
		}
		candidates = append(candidates, pos)
	}
	m.mu.Unlock()

	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if len(candidates) > m.cfg.MaxContainersPerRefill {
		candidates = candidates[:m.cfg.MaxContainersPerRefill]
	}

	for _, pos := range candidates {
		key := containerKey(pos)
		m.mu.Lock()
		m.containerLocked[key] = true
		m.mu.Unlock()

		tier := m.weightedTier()
		_, err := m.loot.FillContainer(m.world, pos, tier, m.cfg.MinStacksPerContainer, m.cfg.MaxStacksPerContainer)

		m.mu.Lock()
		m.containerLocked[key] = false
		if err == nil {
			m.containerLastRefill[key] = now
		}
		m.mu.Unlock()
		if err == nil {
			metrics.IncContainersFilled()
		}
	}
}

func (m *Match) weightedTier() string {
	total := 0.0
	for _, w := range m.cfg.TierMix {
		total += w
	}
	if total <= 0 {
		tier, _ := m.loot.RandomTier()
		return tier
	}
	u := rand.Float64() * total
	var cum float64
	tiers := make([]string, 0, len(m.cfg.TierMix))
	for t := range m.cfg.TierMix {
		tiers = append(tiers, t)
	}
	sort.Strings(tiers)
	for _, t := range tiers {
		cum += m.cfg.TierMix[t]
		if cum >= u {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

func containerKey(p capability.Position) string {
	return fmt.Sprintf("%s:%.2f:%.2f:%.2f", p.WorldID, p.X, p.Y, p.Z)
}

// RosterSnapshot returns every non-spectator roster entry's participant,
// kill count and alive flag — consumed by the Tracker behavior's
// RosterLookup.
func (m *Match) RosterSnapshot() []capability.RosterEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]capability.RosterEntry, 0, len(m.roster))
	for _, ps := range m.roster {
		if ps.Spectator {
			continue
		}
		out = append(out, capability.RosterEntry{Participant: ps.Participant, Kills: ps.Kills, Alive: ps.Alive})
	}
	return out
}

// AliveParticipants returns every roster participant currently marked
// alive — consumed by the Projectile behavior's RosterLookup.
func (m *Match) AliveParticipants() []capability.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]capability.Participant, 0, len(m.roster))
	for _, ps := range m.roster {
		if ps.Alive && !ps.Spectator {
			out = append(out, ps.Participant)
		}
	}
	return out
}
