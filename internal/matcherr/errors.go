// Package matcherr defines the sentinel errors shared across the match
// engine, grouped by the taxonomy in the error-handling design: Validation,
// Admission, State-machine, Resource, and External. Fatal conditions are not
// sentinel errors — they are reported via the scheduler's fault-isolation
// path (see internal/clock) and drive a match straight to ABORTED.
//
// Return these unwrapped so callers can compare with errors.Is; wrap only
// when adding caller-specific context via github.com/pkg/errors.
package matcherr

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Admission errors: returned to the caller of Match.Admit; engine state is
// unchanged.
var (
	ErrAlreadyInMatch     = errors.New("participant already in a match")
	ErrMatchNotAdmitting  = errors.New("match is not admitting participants")
	ErrMatchFull          = errors.New("match roster is full")
	ErrArenaInUse         = errors.New("arena already has an active match")
	ErrAlreadyInTeam      = errors.New("participant already belongs to a team")
	ErrTeamNotFound       = errors.New("team not found")
	ErrTeamFull           = errors.New("team is full")
	ErrNoInvite           = errors.New("no outstanding invite for this team")
	ErrNotTeamLeader      = errors.New("only the team leader may do this")
	ErrNotSpectatable     = errors.New("match is not in a spectatable phase")
	ErrBehaviorNotActive  = errors.New("behavior rejected outside ACTIVE/DEATHMATCH")
	ErrThrowOnCooldown    = errors.New("thrower is on cooldown")
	ErrNotInRoster        = errors.New("participant not in match roster")
)

// Validation errors: surfaced at load/start-up time, engine refuses to run.
var (
	ErrArenaExists       = errors.New("arena name already registered")
	ErrArenaNotFound     = errors.New("arena not registered")
	ErrInvalidBounds     = errors.New("invalid arena bounds")
	ErrInvalidWeight     = errors.New("loot entry weight must be positive")
	ErrInvalidStackRange = errors.New("loot entry min-amount must be <= max-amount")
)

// State-machine errors: attempted illegal phase transition. Logged at
// warning level by the caller; no-op.
var ErrIllegalTransition = errors.New("illegal match phase transition")

// Resource errors: the target of an operation is not in a usable state.
var (
	ErrUnknownTier       = errors.New("no loot entries for requested tier")
	ErrTargetNotContainer = errors.New("target position does not host a writable container")
	ErrContainerLocked   = errors.New("container is locked for fill")
	ErrUnknownStatKind   = errors.New("no leaderboard for requested stat kind")
)

// External errors: a collaborator (stats sink, opaque-item provider) is
// unavailable. Swallowed at the boundary by the caller, which substitutes
// an in-memory fallback.
var ErrProviderUnavailable = errors.New("opaque item provider unavailable")

// Wrap attaches caller-specific context (which tier, which arena, which
// field failed) to a sentinel error without losing errors.Is compatibility —
// pkg/errors.Wrapf's return value implements Unwrap() since v0.9.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}
