package game

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("version_conflict")
)

// InvalidActionError rejects a command that is wrong for the current
// phase/turn/target. The engine guarantees no state change on rejection.
type InvalidActionError struct {
	Code   string
	Reason string
}

func (e *InvalidActionError) Error() string {
	if e.Reason == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func invalidAction(code, reason string) error {
	return &InvalidActionError{Code: code, Reason: reason}
}

// AsInvalidAction unwraps err into an InvalidActionError if it is one.
func AsInvalidAction(err error) (*InvalidActionError, bool) {
	var ia *InvalidActionError
	if errors.As(err, &ia) {
		return ia, true
	}
	return nil, false
}

const (
	codeWrongPhase     = "wrong_phase"
	codeNotYourTurn    = "not_your_turn"
	codeInvalidTarget  = "invalid_target"
	codeSelfVote       = "self_vote"
	codeNotReady       = "not_ready"
	codePlayerCount    = "invalid_player_count"
	codeDeadActor      = "dead_actor"
	codeInvalidContent = "invalid_content"
)
