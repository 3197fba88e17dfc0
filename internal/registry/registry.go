// Package registry implements the Match Registry (§4.5): the set of all
// active matches, lookup by participant/arena, and the single point from
// which per-match behavior cleanup (projectiles, trackers, teams) fans out
// when a Match reaches FINISHED or ABORTED.
//
// Grounded on other_examples' heroiclabs-nakama and sinbad-nakama
// server/match_registry.go (a sync.RWMutex-guarded map[id]*MatchHandler
// with Create/Remove), narrowed from a Lua-module-backed dynamic registry
// keyed by an opaque match id to a concrete Match registry keyed by arena
// name with a one-match-per-arena invariant (§3: "different matches never
// share an arena simultaneously").
package registry

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"matchd/internal/arena"
	"matchd/internal/capability"
	"matchd/internal/loot"
	"matchd/internal/match"
	"matchd/internal/matcherr"
	"matchd/internal/team"
)

// CleanupHook is invoked once per terminal Match, letting behavior
// subsystems (projectile.Manager, tracker.Manager) and the team manager
// drop everything keyed by that match id.
type CleanupHook func(matchID string)

// Registry owns every non-terminal Match, keyed by its arena.
type Registry struct {
	mu            sync.Mutex
	byArena       map[string]*match.Match // arena name -> match
	byParticipant map[string]*match.Match // participant id -> match
	all           map[string]*match.Match // match id -> match

	arenas *arena.Registry
	cfg    match.Config
	clock  capability.Clock
	world  capability.World
	stats  capability.StatsSink
	loot   *loot.Table
	teams  *team.Manager

	hooks []CleanupHook
}

func New(arenas *arena.Registry, cfg match.Config, clock capability.Clock, world capability.World, stats capability.StatsSink, lootTable *loot.Table, teams *team.Manager) *Registry {
	return &Registry{
		byArena:       make(map[string]*match.Match),
		byParticipant: make(map[string]*match.Match),
		all:           make(map[string]*match.Match),
		arenas:        arenas,
		cfg:           cfg,
		clock:         clock,
		world:         world,
		stats:         stats,
		loot:          lootTable,
		teams:         teams,
	}
}

// OnCleanup registers a hook run once per terminal match id, after the
// registry has deregistered it.
func (r *Registry) OnCleanup(hook CleanupHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// GetOrCreate returns the existing non-terminal Match bound to arenaName,
// creating one (in INACTIVE) if none exists.
func (r *Registry) GetOrCreate(arenaName string) (*match.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.byArena[arenaName]; ok {
		return m, nil
	}

	a, ok := r.arenas.Get(arenaName)
	if !ok {
		return nil, matcherr.ErrArenaNotFound
	}

	id := uuid.NewString()
	m := match.New(id, a, r.cfg, r.clock, r.world, r.stats, r.loot, r.teams, r.onTerminalLocked)
	r.byArena[arenaName] = m
	r.all[id] = m
	return m, nil
}

// RegisterParticipant indexes p against m for ByParticipant lookups.
// Callers are expected to call this immediately after a successful
// m.Admit(p).
func (r *Registry) RegisterParticipant(p capability.Participant, m *match.Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byParticipant[p.ID()] = m
}

// UnregisterParticipant drops a participant's index entry — callers call
// this alongside m.Remove(p, ...).
func (r *Registry) UnregisterParticipant(p capability.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byParticipant, p.ID())
}

// ByParticipant returns the Match a participant currently belongs to, if
// any — realizes P1 (unique membership) by construction: a participant
// key maps to at most one Match.
func (r *Registry) ByParticipant(participantID string) (*match.Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byParticipant[participantID]
	return m, ok
}

// ByArena returns the non-terminal Match bound to arenaName, if any.
func (r *Registry) ByArena(arenaName string) (*match.Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byArena[arenaName]
	return m, ok
}

// ByID returns the non-terminal Match with the given id, if any — the
// lookup the Projectile and Tracker behaviors use to resolve a match id
// back into a live roster without importing internal/match themselves.
func (r *Registry) ByID(matchID string) (*match.Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.all[matchID]
	return m, ok
}

// Active returns every non-terminal Match, sorted by id for deterministic
// iteration (CLI `list`, admin API).
func (r *Registry) Active() []*match.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*match.Match, 0, len(r.all))
	for _, m := range r.all {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// onTerminalLocked is the Match.OnTerminal callback: deregister the match
// and fan out bulk cleanup to every registered hook. Matches call this
// directly from their own engine-thread callback, so this body must not
// re-enter the registry's lock from within a hook.
func (r *Registry) onTerminalLocked(m *match.Match) {
	r.mu.Lock()
	delete(r.all, m.ID)
	for arenaName, candidate := range r.byArena {
		if candidate.ID == m.ID {
			delete(r.byArena, arenaName)
			break
		}
	}
	for pid, candidate := range r.byParticipant {
		if candidate.ID == m.ID {
			delete(r.byParticipant, pid)
		}
	}
	hooks := append([]CleanupHook(nil), r.hooks...)
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(m.ID)
	}
}
