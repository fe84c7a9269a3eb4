package game

import "math/rand"

// MinorityCount follows the standard split: one minority seat per three
// participants, never less than one.
func MinorityCount(total int) int {
	n := total / 3
	if n < 1 {
		n = 1
	}
	return n
}

// AssignRoles shuffles the participants and hands the first MinorityCount of
// them the minority role and word. Seat order (the callers' slice) is not
// touched; only roles and words are written.
func AssignRoles(participants []*Participant, majorityWord, minorityWord string, rng *rand.Rand) {
	shuffled := make([]*Participant, len(participants))
	copy(shuffled, participants)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	minority := MinorityCount(len(shuffled))
	for i, p := range shuffled {
		if i < minority {
			p.Role = RoleMinority
			p.Word = minorityWord
		} else {
			p.Role = RoleMajority
			p.Word = majorityWord
		}
	}
}
