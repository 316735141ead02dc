package services

import "errors"

// Validation failures.
var (
	ErrInvalidName        = errors.New("name is required")
	ErrInvalidExternalID  = errors.New("invalid external id")
	ErrHintRequired       = errors.New("hint is required for each question")
	ErrAnswerRequired     = errors.New("at least one correct answer is required")
	ErrAdminCodeRequired  = errors.New("admin code is required")
	ErrInvalidMoveRequest = errors.New("direction must be up or down")
	ErrInvalidHintBudget  = errors.New("max hints must be a non-negative number")
)

// Conflicts with current session state.
var (
	ErrNameTaken      = errors.New("player name already taken")
	ErrTeamNameTaken  = errors.New("team name already taken")
	ErrTeamFull       = errors.New("team is full")
	ErrMustLeaveFirst = errors.New("leave your current team first")
	ErrAlreadyInTeam  = errors.New("player already in a team")
	ErrStaleRequest   = errors.New("join request is stale")
)

// Errors the dispatcher never reports back to the caller.
var (
	ErrNotPermitted   = errors.New("not permitted")
	ErrNotFound       = errors.New("not found")
	ErrGameNotRunning = errors.New("game is not running")
)

var (
	ErrGameFrozen     = errors.New("game is running, teams are frozen")
	ErrWrongAdminCode = errors.New("wrong admin code")
	ErrInvalidToken   = errors.New("invalid admin token")
	ErrResumeFailed   = errors.New("unknown player")
)

// IsSilent reports whether err must be swallowed without emitting anything.
func IsSilent(err error) bool {
	return errors.Is(err, ErrNotPermitted) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrGameNotRunning) ||
		errors.Is(err, ErrStaleRequest)
}
