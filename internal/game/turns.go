package game

// Turn rotation. Order is the alive subset of the participant list in
// creation order, which is stable for the whole round.

func firstAliveID(s *Session) string {
	alive := s.Alive()
	if len(alive) == 0 {
		return ""
	}
	return alive[0].ID
}

// advanceSpeaker moves the speaking turn to the next alive participant.
// Wrapping back to the first speaker ends the speaking cycle: the speaker is
// cleared, the first alive participant becomes voter, and true is returned so
// the caller can transition the session to Voting.
func advanceSpeaker(s *Session) bool {
	alive := s.Alive()
	if len(alive) == 0 {
		return false
	}
	idx := aliveIndex(alive, s.CurrentSpeaker)
	next := (idx + 1) % len(alive)
	if next == 0 && idx >= 0 {
		s.CurrentSpeaker = ""
		s.CurrentVoter = alive[0].ID
		return true
	}
	s.CurrentSpeaker = alive[next].ID
	return false
}

// advanceVoter moves the voting turn to the next alive participant. Wrapping
// back to the first voter clears CurrentVoter and returns true; the caller
// then tallies the round.
func advanceVoter(s *Session) bool {
	alive := s.Alive()
	if len(alive) == 0 {
		return false
	}
	idx := aliveIndex(alive, s.CurrentVoter)
	next := (idx + 1) % len(alive)
	if next == 0 && idx >= 0 {
		s.CurrentVoter = ""
		return true
	}
	s.CurrentVoter = alive[next].ID
	return false
}

func aliveIndex(alive []*Participant, id string) int {
	for i, p := range alive {
		if p.ID == id {
			return i
		}
	}
	return -1
}
