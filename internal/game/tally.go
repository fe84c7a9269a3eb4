package game

import (
	"math/rand"
	"sort"
	"sync"
)

// TallyOutcome names the participant eliminated by a round of voting.
type TallyOutcome struct {
	TargetID  string
	VoteCount int
	Tied      bool
}

// Tally counts votes and resolves eliminations. Ties between max-count
// targets are broken uniformly at random; the rand source is injected so
// tests can pin it.
type Tally struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewTally(rng *rand.Rand) *Tally {
	return &Tally{rng: rng}
}

// Resolve picks the eliminated target for one round. Zero votes should not
// happen given turn enforcement, but falls back to a uniformly random alive
// participant rather than stalling the round.
func (t *Tally) Resolve(votes []Vote, alive []*Participant) TallyOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(votes) == 0 {
		if len(alive) == 0 {
			return TallyOutcome{}
		}
		pick := alive[t.rng.Intn(len(alive))]
		return TallyOutcome{TargetID: pick.ID, VoteCount: 0}
	}

	counts := map[string]int{}
	for _, v := range votes {
		counts[v.TargetID]++
	}

	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	candidates := make([]string, 0, len(counts))
	for id, c := range counts {
		if c == max {
			candidates = append(candidates, id)
		}
	}
	// map iteration order is random; sort so the seeded pick is reproducible
	sort.Strings(candidates)

	target := candidates[t.rng.Intn(len(candidates))]
	return TallyOutcome{TargetID: target, VoteCount: max, Tied: len(candidates) > 1}
}
