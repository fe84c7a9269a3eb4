package ai

import (
	"fmt"
	"strings"

	"undercover-arena/internal/game"
)

// Prompt construction. Every prompt tells the model only what its player
// could legitimately know: its own word, the public speech and vote history,
// and who is still alive. Roles are never disclosed.

var personalityHints = map[string]string{
	"cautious":   "Play it safe: keep your descriptions vague and avoid standing out.",
	"aggressive": "Play boldly: make pointed descriptions and openly accuse others when voting.",
	"normal":     "Play a balanced game: blend in while watching for inconsistencies.",
}

var skillHints = map[string]string{
	"beginner": "You are new to this game and sometimes describe your word too literally.",
	"normal":   "You know the basics of this game.",
	"expert":   "You are a seasoned player: read between the lines of every speech and never reveal your word.",
}

func systemPrompt(p *game.Participant) string {
	var b strings.Builder
	b.WriteString("You are playing Undercover, a social deduction word game. ")
	b.WriteString(fmt.Sprintf("Your name is %s and your secret word is %q. ", p.Name, p.Word))
	b.WriteString("Most players share one word, a hidden few hold a similar but different word. ")
	b.WriteString("Nobody knows which group they are in; work it out from how the others describe theirs. ")
	if hint, ok := personalityHints[p.Personality]; ok {
		b.WriteString(hint)
		b.WriteString(" ")
	}
	if hint, ok := skillHints[p.Skill]; ok {
		b.WriteString(hint)
	}
	return strings.TrimSpace(b.String())
}

func historyBlock(tc *game.TurnContext, nameOf func(string) string) string {
	var b strings.Builder
	if len(tc.Speeches) > 0 {
		b.WriteString("Speeches so far:\n")
		for _, sp := range tc.Speeches {
			fmt.Fprintf(&b, "- round %d, %s: %s\n", sp.Round, nameOf(sp.ParticipantID), sp.Content)
		}
	}
	if len(tc.Votes) > 0 {
		b.WriteString("Votes this round:\n")
		for _, v := range tc.Votes {
			fmt.Fprintf(&b, "- %s voted for %s\n", nameOf(v.VoterID), nameOf(v.TargetID))
		}
	}
	return b.String()
}

// SpeechMessages builds the prompt for the participant's speaking turn.
func SpeechMessages(p *game.Participant, tc *game.TurnContext, nameOf func(string) string) []Message {
	var b strings.Builder
	fmt.Fprintf(&b, "It is round %d and your turn to speak.\n", tc.Round)
	b.WriteString(historyBlock(tc, nameOf))
	b.WriteString("Describe your word in one short sentence without saying the word itself")
	if tc.FinalRound {
		b.WriteString(". Few players remain, so every hint you give will be scrutinized")
	}
	b.WriteString(". Reply with the sentence only.")
	return []Message{
		{Role: "system", Content: systemPrompt(p)},
		{Role: "user", Content: b.String()},
	}
}

// VoteMessages builds the prompt for the participant's voting turn.
// Candidates are the alive players excluding the voter.
func VoteMessages(p *game.Participant, tc *game.TurnContext, candidates []game.PlayerView, nameOf func(string) string) []Message {
	var b strings.Builder
	fmt.Fprintf(&b, "It is round %d and time to vote someone out.\n", tc.Round)
	b.WriteString(historyBlock(tc, nameOf))
	b.WriteString("Candidates: ")
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(".\nWho do you vote to eliminate? Reply with exactly one candidate name.")
	return []Message{
		{Role: "system", Content: systemPrompt(p)},
		{Role: "user", Content: b.String()},
	}
}

// MatchVoteTarget maps a model reply to a candidate. Exact name match wins,
// then a reply containing exactly one candidate name, then an id match.
func MatchVoteTarget(reply string, candidates []game.PlayerView) (string, bool) {
	reply = strings.ToLower(strings.TrimSpace(reply))
	if reply == "" {
		return "", false
	}

	for _, c := range candidates {
		if reply == strings.ToLower(c.Name) || reply == strings.ToLower(c.ID) {
			return c.ID, true
		}
	}

	var hits []string
	for _, c := range candidates {
		if strings.Contains(reply, strings.ToLower(c.Name)) {
			hits = append(hits, c.ID)
		}
	}
	if len(hits) == 1 {
		return hits[0], true
	}
	return "", false
}
