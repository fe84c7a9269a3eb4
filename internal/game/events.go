package game

// Event is the JSON-shaped broadcast envelope fanned out by the hub.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

const (
	EventGameCreated      = "game_created"
	EventGameStarted      = "game_started"
	EventSpeechSubmitted  = "speech_submitted"
	EventAISpeech         = "ai_speech"
	EventVoteSubmitted    = "vote_submitted"
	EventAIVote           = "ai_vote"
	EventPlayerEliminated = "player_eliminated"
	EventPhaseChanged     = "phase_changed"
	EventRoundStarted     = "round_started"
	EventGameEnded        = "game_ended"
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
)

// FinishedEvent is handed to the settlement consumer exactly once per
// session; settlement is expected to be idempotent on SessionID.
type FinishedEvent struct {
	SessionID     string   `json:"session_id"`
	WinnerRole    string   `json:"winner_role"`
	WinnerPlayers []string `json:"winner_players"`
	Rounds        int      `json:"rounds"`
	DurationSecs  float64  `json:"duration_secs"`
}
