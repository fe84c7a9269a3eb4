package game

import "fmt"

// Phase is one stage of the per-round state machine.
type Phase string

const (
	PhasePreparing Phase = "preparing"
	PhaseSpeaking  Phase = "speaking"
	PhaseVoting    Phase = "voting"
	PhaseResult    Phase = "result"
	PhaseFinished  Phase = "finished"
)

func (p Phase) String() string {
	return string(p)
}

var phaseTransitions = map[Phase][]Phase{
	PhasePreparing: {PhaseSpeaking, PhaseFinished},
	PhaseSpeaking:  {PhaseVoting, PhaseFinished},
	PhaseVoting:    {PhaseSpeaking, PhaseResult, PhaseFinished},
	PhaseResult:    {PhaseSpeaking, PhaseFinished},
	PhaseFinished:  {},
}

// CanTransitionTo reports whether the machine allows moving from p to target.
// Finished is terminal.
func (p Phase) CanTransitionTo(target Phase) bool {
	for _, next := range phaseTransitions[p] {
		if next == target {
			return true
		}
	}
	return false
}

// TransitionTo moves the session along one state-machine edge. The engine
// validates the current phase before acting, so a rejected edge is an
// internal inconsistency, not a caller error; the phase is left untouched.
func (s *Session) TransitionTo(target Phase) error {
	if !s.Phase.CanTransitionTo(target) {
		return fmt.Errorf("illegal phase transition %s -> %s", s.Phase, target)
	}
	s.Phase = target
	return nil
}
