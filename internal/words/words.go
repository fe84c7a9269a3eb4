package words

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// Pair is one majority/minority word pairing. The two words must be close
// enough that a speech about one plausibly describes the other.
type Pair struct {
	Majority   string
	Minority   string
	Category   string
	Difficulty int
}

func (p Pair) Ref() string {
	return p.Majority + "/" + p.Minority
}

// Provider selects word pairs for new sessions from a built-in list. It
// avoids repeating a pair until the whole pool for the filter is exhausted.
type Provider struct {
	mu    sync.Mutex
	rng   *rand.Rand
	pairs []Pair
	used  map[string]bool
}

func NewProvider(rng *rand.Rand) *Provider {
	return &Provider{
		rng:   rng,
		pairs: defaultPairs,
		used:  map[string]bool{},
	}
}

// SelectPair returns a word pair for the given difficulty and category.
// Difficulty 0 or an empty category matches everything.
func (p *Provider) SelectPair(_ context.Context, difficulty int, category string) (string, string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	matching := p.filter(difficulty, category)
	if len(matching) == 0 {
		return "", "", "", fmt.Errorf("no word pair for difficulty=%d category=%q", difficulty, category)
	}

	fresh := make([]Pair, 0, len(matching))
	for _, pair := range matching {
		if !p.used[pair.Ref()] {
			fresh = append(fresh, pair)
		}
	}
	if len(fresh) == 0 {
		// pool exhausted for this filter, start over
		for _, pair := range matching {
			delete(p.used, pair.Ref())
		}
		fresh = matching
	}

	pick := fresh[p.rng.Intn(len(fresh))]
	p.used[pick.Ref()] = true
	return pick.Majority, pick.Minority, pick.Ref(), nil
}

func (p *Provider) filter(difficulty int, category string) []Pair {
	out := make([]Pair, 0, len(p.pairs))
	for _, pair := range p.pairs {
		if difficulty != 0 && pair.Difficulty != difficulty {
			continue
		}
		if category != "" && !strings.EqualFold(pair.Category, category) {
			continue
		}
		out = append(out, pair)
	}
	return out
}

var defaultPairs = []Pair{
	{Majority: "coffee", Minority: "tea", Category: "food", Difficulty: 1},
	{Majority: "butter", Minority: "margarine", Category: "food", Difficulty: 2},
	{Majority: "dumpling", Minority: "wonton", Category: "food", Difficulty: 2},
	{Majority: "soy sauce", Minority: "vinegar", Category: "food", Difficulty: 1},
	{Majority: "noodles", Minority: "rice", Category: "food", Difficulty: 1},
	{Majority: "piano", Minority: "keyboard", Category: "music", Difficulty: 2},
	{Majority: "violin", Minority: "cello", Category: "music", Difficulty: 2},
	{Majority: "singer", Minority: "rapper", Category: "music", Difficulty: 1},
	{Majority: "doctor", Minority: "nurse", Category: "jobs", Difficulty: 1},
	{Majority: "teacher", Minority: "professor", Category: "jobs", Difficulty: 1},
	{Majority: "actor", Minority: "director", Category: "jobs", Difficulty: 2},
	{Majority: "police officer", Minority: "security guard", Category: "jobs", Difficulty: 2},
	{Majority: "football", Minority: "rugby", Category: "sports", Difficulty: 2},
	{Majority: "swimming", Minority: "diving", Category: "sports", Difficulty: 1},
	{Majority: "badminton", Minority: "tennis", Category: "sports", Difficulty: 1},
	{Majority: "ship", Minority: "ferry", Category: "travel", Difficulty: 2},
	{Majority: "hotel", Minority: "hostel", Category: "travel", Difficulty: 1},
	{Majority: "airplane", Minority: "helicopter", Category: "travel", Difficulty: 1},
	{Majority: "glasses", Minority: "contact lenses", Category: "daily", Difficulty: 1},
	{Majority: "umbrella", Minority: "raincoat", Category: "daily", Difficulty: 1},
	{Majority: "soap", Minority: "shower gel", Category: "daily", Difficulty: 1},
	{Majority: "mirror", Minority: "photograph", Category: "daily", Difficulty: 3},
	{Majority: "moon", Minority: "sun", Category: "nature", Difficulty: 1},
	{Majority: "lake", Minority: "pond", Category: "nature", Difficulty: 2},
	{Majority: "snow", Minority: "frost", Category: "nature", Difficulty: 3},
}
