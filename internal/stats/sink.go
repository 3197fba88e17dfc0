package stats

import (
	"sort"
	"sync"

	"matchd/internal/capability"
	"matchd/internal/matcherr"
)

// record is the per-participant running tally backing the kills leaderboard
// and the names leaderboard lookups return by id.
type record struct {
	kills  int
	deaths int
	name   string
}

// DefaultSink is the in-memory capability.StatsSink the demo command and
// tests boot by default: a death/kill/completion recorder over Leaderboard
// and EventLog (§6, "a default in-memory sink... satisfies this by
// construction").
//
// Grounded on the teacher's leaderboard.go (ranking) and event_log.go
// (durable append log), tied together behind capability.StatsSink instead
// of each being called directly by game code.
type DefaultSink struct {
	mu      sync.Mutex
	records map[string]*record

	kills  *Leaderboard
	deaths *Leaderboard
	log    *EventLog
}

// NewDefaultSink builds a sink with its event log already started.
// logPath == "" disables disk persistence (tests).
func NewDefaultSink(logPath string) (*DefaultSink, error) {
	s := &DefaultSink{
		records: make(map[string]*record),
		kills:   NewLeaderboard(),
		deaths:  NewLeaderboard(),
		log:     NewEventLog(),
	}
	if err := s.log.Start(logPath); err != nil {
		return nil, err
	}
	return s, nil
}

// Close stops the underlying event log writer.
func (s *DefaultSink) Close() {
	s.log.Stop()
}

type deathPayload struct {
	Victim string                `json:"victim"`
	Killer string                `json:"killer,omitempty"`
	Phase  capability.MatchPhase `json:"phase"`
}

func (s *DefaultSink) RecordDeath(matchID string, victim capability.Participant, killer capability.Participant, phase capability.MatchPhase) {
	s.mu.Lock()
	r := s.recordFor(victim)
	r.deaths++
	s.deaths.UpdateScore(victim.ID(), float64(r.deaths))
	s.mu.Unlock()

	payload := deathPayload{Victim: victim.ID(), Phase: phase}
	if killer != nil {
		payload.Killer = killer.ID()
	}
	s.log.Emit(EventDeath, matchID, payload)
}

type killPayload struct {
	Killer string `json:"killer"`
	Victim string `json:"victim"`
}

func (s *DefaultSink) RecordKill(matchID string, killer, victim capability.Participant) {
	s.mu.Lock()
	r := s.recordFor(killer)
	r.kills++
	s.kills.UpdateScore(killer.ID(), float64(r.kills))
	s.mu.Unlock()

	s.log.Emit(EventKill, matchID, killPayload{Killer: killer.ID(), Victim: victim.ID()})
}

type completionPayload struct {
	Arena         string           `json:"arena"`
	DurationTicks int64            `json:"duration_ticks"`
	Placements    []placementEntry `json:"placements"`
}

type placementEntry struct {
	ParticipantID string  `json:"participant_id"`
	Kills         int     `json:"kills"`
	Damage        float64 `json:"damage"`
}

func (s *DefaultSink) RecordCompletion(matchID string, arena string, placements []capability.Placement, durationTicks int64) {
	entries := make([]placementEntry, len(placements))
	for i, p := range placements {
		entries[i] = placementEntry{ParticipantID: p.Participant.ID(), Kills: p.Kills, Damage: p.Damage}
	}
	s.log.Emit(EventCompletion, matchID, completionPayload{Arena: arena, DurationTicks: durationTicks, Placements: entries})
}

// Leaderboard resolves a ranked snapshot asynchronously, off the engine
// thread, per capability.StatsSink's contract. statKind selects which
// underlying Leaderboard to rank by; unknown kinds resolve with
// ErrUnknownStatKind.
func (s *DefaultSink) Leaderboard(statKind string, limit int) *capability.LeaderboardFuture {
	future, complete := capability.NewLeaderboardFuture()

	var lb *Leaderboard
	switch statKind {
	case "kills":
		lb = s.kills
	case "deaths":
		lb = s.deaths
	default:
		go complete(nil, matcherr.ErrUnknownStatKind)
		return future
	}

	go func() {
		entries := lb.GetTop(limit)
		rows := make([]capability.PlayerStats, len(entries))
		s.mu.Lock()
		for i, e := range entries {
			name := e.PlayerID
			if r, ok := s.records[e.PlayerID]; ok && r.name != "" {
				name = r.name
			}
			rows[i] = capability.PlayerStats{ParticipantID: e.PlayerID, DisplayName: name, Value: e.Score, Rank: e.Rank}
		}
		s.mu.Unlock()
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Rank < rows[j].Rank })
		complete(rows, nil)
	}()

	return future
}

// recordFor returns the tally for p, creating it on first sight. Caller
// must hold s.mu.
func (s *DefaultSink) recordFor(p capability.Participant) *record {
	r, ok := s.records[p.ID()]
	if !ok {
		r = &record{name: p.Name()}
		s.records[p.ID()] = r
	}
	return r
}
