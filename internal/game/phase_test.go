package game

import "testing"

func TestPhaseTransitions(t *testing.T) {
	allowed := []struct{ from, to Phase }{
		{PhasePreparing, PhaseSpeaking},
		{PhaseSpeaking, PhaseVoting},
		{PhaseVoting, PhaseSpeaking},
		{PhaseVoting, PhaseResult},
		{PhaseResult, PhaseSpeaking},
		{PhasePreparing, PhaseFinished},
		{PhaseSpeaking, PhaseFinished},
		{PhaseVoting, PhaseFinished},
		{PhaseResult, PhaseFinished},
	}
	for _, c := range allowed {
		if !c.from.CanTransitionTo(c.to) {
			t.Fatalf("%s -> %s should be allowed", c.from, c.to)
		}
	}

	denied := []struct{ from, to Phase }{
		{PhaseFinished, PhaseSpeaking},
		{PhaseFinished, PhasePreparing},
		{PhaseSpeaking, PhasePreparing},
		{PhaseVoting, PhasePreparing},
	}
	for _, c := range denied {
		if c.from.CanTransitionTo(c.to) {
			t.Fatalf("%s -> %s should be denied", c.from, c.to)
		}
	}
}

func TestTransitionToGuardsEdges(t *testing.T) {
	s := &Session{Phase: PhasePreparing}
	if err := s.TransitionTo(PhaseVoting); err == nil {
		t.Fatal("preparing -> voting accepted")
	}
	if s.Phase != PhasePreparing {
		t.Fatalf("rejected edge mutated phase: %s", s.Phase)
	}
	if err := s.TransitionTo(PhaseSpeaking); err != nil {
		t.Fatalf("legal edge rejected: %v", err)
	}
	if s.Phase != PhaseSpeaking {
		t.Fatalf("phase = %s, want speaking", s.Phase)
	}
}
