// Package team implements the Team/Queue Manager (§4.6): team formation on
// admission, invitations, and setup-period auto-fill.
//
// Grounded on internal/game/team.go's TeamManager (a sync.RWMutex-guarded
// map[id]*Team with invite expiry and leader-transfer-on-leave), narrowed
// from a free-standing global team roster to the match-scoped, single-team-
// membership model §4.6 and the Types table specify: a participant belongs
// to at most one Team globally, and a Team carries a privacy flag and
// auto-fill flag instead of cosmetic name/color.
package team

import (
	"fmt"
	"sort"
	"sync"

	"matchd/internal/capability"
	"matchd/internal/matcherr"
)

// Privacy controls whether Join requires a standing invite.
type Privacy int

const (
	Open Privacy = iota
	InviteOnly
)

// Team is match-scoped: destroying its Match destroys it (via
// Manager.DestroyMatchTeams).
type Team struct {
	ID       string
	MatchID  string
	Number   int
	LeaderID string
	Privacy  Privacy
	AutoFill bool

	mu      sync.RWMutex
	members map[string]bool
	invites map[string]capability.Tick // participant id -> expiry tick
}

// Members returns a snapshot of the current member id set.
func (t *Team) Members() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.members))
	for id := range t.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *Team) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.members)
}

// Manager tracks every Team across every live match and enforces the
// at-most-one-team-globally invariant.
type Manager struct {
	mu            sync.Mutex
	teams         map[string]*Team
	byParticipant map[string]string // participant id -> team id
	nextNumber    map[string]int    // match id -> next display number
	clock         capability.Clock
	inviteTTL     capability.Tick
	nextID        uint64
}

// NewManager creates a manager. inviteTTL is the number of ticks an
// outstanding invite remains valid.
func NewManager(clock capability.Clock, inviteTTL capability.Tick) *Manager {
	return &Manager{
		teams:         make(map[string]*Team),
		byParticipant: make(map[string]string),
		nextNumber:    make(map[string]int),
		clock:         clock,
		inviteTTL:     inviteTTL,
	}
}

func (m *Manager) newTeamID() string {
	m.nextID++
	return fmt.Sprintf("team-%d", m.nextID)
}

// CreateTeam registers a new Team within matchID with leader as its sole
// member and first leader. Fails with matcherr.ErrAlreadyInTeam if leader
// already belongs to a team anywhere.
func (m *Manager) CreateTeam(matchID string, leader capability.Participant, privacy Privacy, autoFill bool) (*Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byParticipant[leader.ID()]; exists {
		return nil, matcherr.ErrAlreadyInTeam
	}

	number := m.nextNumber[matchID] + 1
	m.nextNumber[matchID] = number

	t := &Team{
		ID:       m.newTeamID(),
		MatchID:  matchID,
		Number:   number,
		LeaderID: leader.ID(),
		Privacy:  privacy,
		AutoFill: autoFill,
		members:  map[string]bool{leader.ID(): true},
		invites:  make(map[string]capability.Tick),
	}
	m.teams[t.ID] = t
	m.byParticipant[leader.ID()] = t.ID
	return t, nil
}

// Invite grants participantID standing permission to Join an invite-only
// team. Only the team leader may invite. Expired invites are swept first.
func (m *Manager) Invite(teamID, inviterID, participantID string, teamSizeLimit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[teamID]
	if !ok {
		return matcherr.ErrTeamNotFound
	}
	if t.LeaderID != inviterID {
		return matcherr.ErrNotTeamLeader
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.members) >= teamSizeLimit {
		return matcherr.ErrTeamFull
	}
	if t.members[participantID] {
		return matcherr.ErrAlreadyInTeam
	}

	now := m.clock.Now()
	for id, expiry := range t.invites {
		if expiry <= now {
			delete(t.invites, id)
		}
	}
	t.invites[participantID] = now + m.inviteTTL
	return nil
}

// Join adds participantID to teamID. Invite-only teams require a standing,
// unexpired invite (matcherr.ErrNoInvite otherwise). The participant must
// not already belong to any team (matcherr.ErrAlreadyInTeam), and the team
// must have room (matcherr.ErrTeamFull).
func (m *Manager) Join(teamID, participantID string, teamSizeLimit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byParticipant[participantID]; exists {
		return matcherr.ErrAlreadyInTeam
	}
	t, ok := m.teams[teamID]
	if !ok {
		return matcherr.ErrTeamNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Privacy == InviteOnly {
		expiry, invited := t.invites[participantID]
		if !invited || expiry <= m.clock.Now() {
			return matcherr.ErrNoInvite
		}
	}
	if len(t.members) >= teamSizeLimit {
		return matcherr.ErrTeamFull
	}

	t.members[participantID] = true
	delete(t.invites, participantID)
	m.byParticipant[participantID] = teamID
	return nil
}

// Leave removes participantID from its team, transferring leadership to an
// arbitrary remaining member, or leaves the (now-empty) team registered
// with no members if it was the last one — callers typically follow an
// empty team with a roster check and DestroyMatchTeams at match end.
func (m *Manager) Leave(participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	teamID, ok := m.byParticipant[participantID]
	if !ok {
		return matcherr.ErrTeamNotFound
	}
	t := m.teams[teamID]

	t.mu.Lock()
	delete(t.members, participantID)
	if t.LeaderID == participantID {
		for member := range t.members {
			t.LeaderID = member
			break
		}
	}
	t.mu.Unlock()

	delete(m.byParticipant, participantID)
	return nil
}

// TeamOf looks up the team a participant currently belongs to.
func (m *Manager) TeamOf(participantID string) (*Team, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	teamID, ok := m.byParticipant[participantID]
	if !ok {
		return nil, false
	}
	return m.teams[teamID], true
}

// TeamsInMatch returns every team registered under matchID, ordered by
// display number.
func (m *Manager) TeamsInMatch(matchID string) []*Team {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Team
	for _, t := range m.teams {
		if t.MatchID == matchID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// AutoFill implements the setup-period expiry policy: teams within matchID
// marked AutoFill and below teamSizeLimit are filled from queued, in
// first-arrived order, skipping any participant already seated.
func (m *Manager) AutoFill(matchID string, queue []capability.Participant, teamSizeLimit int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var fillable []*Team
	for _, t := range m.teams {
		if t.MatchID == matchID && t.AutoFill {
			fillable = append(fillable, t)
		}
	}
	sort.Slice(fillable, func(i, j int) bool { return fillable[i].Number < fillable[j].Number })
	if len(fillable) == 0 {
		return
	}

	idx := 0
	for _, p := range queue {
		if _, seated := m.byParticipant[p.ID()]; seated {
			continue
		}
		for idx < len(fillable) && fillable[idx].size() >= teamSizeLimit {
			idx++
		}
		if idx >= len(fillable) {
			return
		}
		t := fillable[idx]
		t.mu.Lock()
		t.members[p.ID()] = true
		t.mu.Unlock()
		m.byParticipant[p.ID()] = t.ID
	}
}

// DestroyMatchTeams releases every team and member registered under
// matchID. Called by the Match Registry when a Match reaches FINISHED or
// ABORTED, per the "destroying a Match destroys its Teams" invariant.
func (m *Manager) DestroyMatchTeams(matchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.teams {
		if t.MatchID != matchID {
			continue
		}
		for member := range t.members {
			delete(m.byParticipant, member)
		}
		delete(m.teams, id)
	}
	delete(m.nextNumber, matchID)
}
