// Package tracker implements the Tracker Behavior (§4.8): a per-holder
// periodic compass projection of nearby targets, top killer, and supply
// drops onto a width-21 bearing bar.
//
// Grounded on the teacher's AttackAngle/normalizeAngle trigonometry
// (internal/game/hitbox.go, now folded into internal/tracker's bearing
// math per DESIGN.md) applied to a display projection instead of a hitbox
// arc test.
package tracker

import (
	"math"
	"sort"
	"sync"

	"matchd/internal/capability"
	"matchd/internal/metrics"
)

const (
	BarWidth   = 21
	halfSpread = 90.0
)

type Symbol string

const (
	SymbolSword Symbol = "sword"
	SymbolPackage Symbol = "package"
	SymbolDot  Symbol = "dot"
)

type Color string

const (
	ColorTopKiller Color = "top-killer"
	ColorNear      Color = "near"
	ColorMid       Color = "mid"
	ColorFar       Color = "far"
)

// Column is one rendered compass slot.
type Column struct {
	Position int
	Symbol   Symbol
	Color    Color
}

// SupplyDrop is a static world position the tracker may project, separate
// from participant targets.
type SupplyDrop struct {
	ID       string
	Position capability.Position
}

// Binding is a live TrackerBinding: exists while the holder carries the
// tracker item, destroyed on loss or match exit.
type Binding struct {
	HolderID        string
	MatchID         string
	UpdatePeriod    capability.Tick
	MaxRange        float64
	CloseDistance   float64
	MediumDistance  float64
	TrackPlayers    bool
	TrackTopKiller  bool
	TrackSupplyDrops bool
}

// HasItemCheck reports whether the holder still carries the tracker item;
// a binding self-terminates the tick this returns false.
type HasItemCheck func(holderID string) bool

// RosterLookup resolves a match's roster entries, dead ones included, each
// with its alive flag and current kill count (for top-killer selection).
type RosterLookup func(matchID string) []capability.RosterEntry

// SupplyDropLookup resolves currently live supply drops for a match.
type SupplyDropLookup func(matchID string) []SupplyDrop

// Emit delivers a rendered compass to its holder — typically a thin
// adapter over World.Broadcast or a dedicated HUD channel; the tracker
// behavior itself has no opinion on transport.
type Emit func(holderID string, columns [BarWidth]Column)

// Manager drives every live Binding from the Clock.
type Manager struct {
	mu       sync.Mutex
	bindings map[string]*Binding // holder id -> binding (one tracker per holder)
	byMatch  map[string]map[string]bool

	world      capability.World
	clock      capability.Clock
	hasItem    HasItemCheck
	roster     RosterLookup
	drops      SupplyDropLookup
	emit       Emit
}

func NewManager(world capability.World, clock capability.Clock, hasItem HasItemCheck, roster RosterLookup, drops SupplyDropLookup, emit Emit) *Manager {
	return &Manager{
		bindings: make(map[string]*Binding),
		byMatch:  make(map[string]map[string]bool),
		world:    world,
		clock:    clock,
		hasItem:  hasItem,
		roster:   roster,
		drops:    drops,
		emit:     emit,
	}
}

// Bind registers a new binding and schedules its first update.
func (m *Manager) Bind(b *Binding) {
	m.mu.Lock()
	m.bindings[b.HolderID] = b
	if m.byMatch[b.MatchID] == nil {
		m.byMatch[b.MatchID] = make(map[string]bool)
	}
	m.byMatch[b.MatchID][b.HolderID] = true
	count := len(m.bindings)
	m.mu.Unlock()
	metrics.SetTrackerBindingsActive(count)

	m.clock.ScheduleAt(m.clock.Now()+b.UpdatePeriod, func() { m.tick(b.HolderID) })
}

// Unbind removes a binding immediately (holder dropped the item, or left
// the match voluntarily).
func (m *Manager) Unbind(holderID string) {
	m.mu.Lock()
	b, ok := m.bindings[holderID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.bindings, holderID)
	if set, ok := m.byMatch[b.MatchID]; ok {
		delete(set, holderID)
		if len(set) == 0 {
			delete(m.byMatch, b.MatchID)
		}
	}
	count := len(m.bindings)
	m.mu.Unlock()
	metrics.SetTrackerBindingsActive(count)
}

// CleanupMatch destroys every binding in matchID — called on FINISHED/
// ABORTED (§4.5, P9).
func (m *Manager) CleanupMatch(matchID string) {
	m.mu.Lock()
	for holder := range m.byMatch[matchID] {
		delete(m.bindings, holder)
	}
	delete(m.byMatch, matchID)
	count := len(m.bindings)
	m.mu.Unlock()
	metrics.SetTrackerBindingsActive(count)
}

// NotifyMatch renders every binding currently bound to matchID immediately,
// independent of each binding's own per-holder update schedule. This is the
// hook the Match's TrackerNotifyPeriod recurring job drives (§4.4).
func (m *Manager) NotifyMatch(matchID string) {
	m.mu.Lock()
	holders := make([]string, 0, len(m.byMatch[matchID]))
	for holder := range m.byMatch[matchID] {
		holders = append(holders, holder)
	}
	m.mu.Unlock()

	for _, holder := range holders {
		m.mu.Lock()
		b, ok := m.bindings[holder]
		m.mu.Unlock()
		if !ok {
			continue
		}
		m.render(b)
	}
}

// CountInMatch reports live bindings remaining for matchID.
func (m *Manager) CountInMatch(matchID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byMatch[matchID])
}

func (m *Manager) tick(holderID string) {
	m.mu.Lock()
	b, ok := m.bindings[holderID]
	m.mu.Unlock()
	if !ok {
		return
	}

	if !m.hasItem(holderID) {
		m.Unbind(holderID)
		return
	}

	m.render(b)
	m.clock.ScheduleAt(m.clock.Now()+b.UpdatePeriod, func() { m.tick(holderID) })
}

type projected struct {
	column   int
	distance float64
	symbol   Symbol
	color    Color
	isTop    bool
}

func (m *Manager) render(b *Binding) {
	holderParticipant := findHolder(m.roster(b.MatchID), b.HolderID)
	if holderParticipant == nil {
		return
	}
	holderPos, err := m.world.GetPosition(holderParticipant.Participant)
	if err != nil {
		return
	}

	var topKillerID string
	if b.TrackTopKiller {
		topKillerID = topKiller(m.roster(b.MatchID))
	}

	var items []projected
	if b.TrackPlayers {
		for _, snap := range m.roster(b.MatchID) {
			if snap.Participant.ID() == b.HolderID {
				continue
			}
			if !snap.Alive {
				continue
			}
			pos, err := m.world.GetPosition(snap.Participant)
			if err != nil {
				continue
			}
			d := distance(holderPos, pos)
			if d > b.MaxRange {
				continue
			}
			col, ok := bearingColumn(holderPos, pos)
			if !ok {
				continue
			}
			isTop := b.TrackTopKiller && snap.Participant.ID() == topKillerID
			items = append(items, projected{
				column:   col,
				distance: d,
				symbol:   symbolFor(isTop, false),
				color:    colorFor(isTop, d, b.CloseDistance, b.MediumDistance),
				isTop:    isTop,
			})
		}
	}

	if b.TrackSupplyDrops {
		for _, drop := range m.drops(b.MatchID) {
			d := distance(holderPos, drop.Position)
			if d > b.MaxRange {
				continue
			}
			col, ok := bearingColumn(holderPos, drop.Position)
			if !ok {
				continue
			}
			items = append(items, projected{
				column:   col,
				distance: d,
				symbol:   SymbolPackage,
				color:    colorFor(false, d, b.CloseDistance, b.MediumDistance),
			})
		}
	}

	// Rendering order: top killer first, then nearest-first; later
	// targets overwrite earlier ones at the same position.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].isTop != items[j].isTop {
			return items[i].isTop
		}
		return items[i].distance < items[j].distance
	})

	var columns [BarWidth]Column
	for i := range columns {
		columns[i] = Column{Position: i, Symbol: "", Color: ""}
	}
	for _, it := range items {
		columns[it.column] = Column{Position: it.column, Symbol: it.symbol, Color: it.color}
	}

	if m.emit != nil {
		m.emit(b.HolderID, columns)
	}
}

func findHolder(snaps []capability.RosterEntry, holderID string) *capability.RosterEntry {
	for i := range snaps {
		if snaps[i].Participant.ID() == holderID {
			return &snaps[i]
		}
	}
	return nil
}

// topKiller returns the id of the participant with a strictly-unique
// maximum non-zero kill count, or "" if there is no such participant
// (spec: "tie => none chosen").
func topKiller(snaps []capability.RosterEntry) string {
	best := -1
	bestID := ""
	tie := false
	for _, s := range snaps {
		if s.Kills <= 0 {
			continue
		}
		switch {
		case s.Kills > best:
			best = s.Kills
			bestID = s.Participant.ID()
			tie = false
		case s.Kills == best:
			tie = true
		}
	}
	if tie {
		return ""
	}
	return bestID
}

func symbolFor(isTopKiller, isSupplyDrop bool) Symbol {
	switch {
	case isTopKiller:
		return SymbolSword
	case isSupplyDrop:
		return SymbolPackage
	default:
		return SymbolDot
	}
}

func colorFor(isTopKiller bool, d, close, medium float64) Color {
	if isTopKiller {
		return ColorTopKiller
	}
	switch {
	case d < close:
		return ColorNear
	case d < medium:
		return ColorMid
	default:
		return ColorFar
	}
}

func distance(a, b capability.Position) float64 {
	if !a.SameWorld(b) {
		return math.Inf(1)
	}
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// bearingColumn computes the yaw-relative bearing of target as seen from
// holder and maps it onto [0, BarWidth). It is robust per §4.8: different
// worlds, identical positions, or a non-finite result all default to
// column "north" (θ_rel=0) rather than erroring.
func bearingColumn(holder, target capability.Position) (int, bool) {
	if !holder.SameWorld(target) {
		return bearingToColumn(0), true
	}
	dx := target.X - holder.X
	dz := target.Z - holder.Z
	if dx == 0 && dz == 0 {
		return bearingToColumn(0), true
	}

	targetYaw := math.Atan2(dx, dz) * 180 / math.Pi
	rel := math.Mod(targetYaw-holder.Yaw+540, 360) - 180
	if math.IsNaN(rel) || math.IsInf(rel, 0) {
		return bearingToColumn(0), true
	}
	if math.Abs(rel) > halfSpread {
		return 0, false
	}
	return bearingToColumn(rel), true
}

func bearingToColumn(relDeg float64) int {
	col := int(math.Round((relDeg + halfSpread) / 180 * (BarWidth - 1)))
	if col < 0 {
		col = 0
	}
	if col > BarWidth-1 {
		col = BarWidth - 1
	}
	return col
}
