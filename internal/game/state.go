package game

import "time"

// Role is a participant's secret faction.
type Role string

const (
	RoleMajority Role = "majority"
	RoleMinority Role = "minority"
)

// ModelConfig is the per-AI-participant generation endpoint configuration.
// Never exposed in snapshots; persisted with the participant so an AI turn
// can always be rebuilt from the session row alone.
type ModelConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Participant is one seat in a session, human or AI. Created at session
// creation, never deleted; elimination only flips Alive.
type Participant struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	IsAI        bool        `json:"is_ai"`
	Role        Role        `json:"role"`
	Word        string      `json:"word"`
	Alive       bool        `json:"alive"`
	Ready       bool        `json:"ready"`
	Personality string      `json:"personality,omitempty"`
	Skill       string      `json:"skill,omitempty"`
	Model       ModelConfig `json:"model,omitempty"`
}

// Session is the full state of one game. The engine is the sole mutator;
// Version backs the store's compare-and-write.
type Session struct {
	ID             string
	RoomID         string
	WordPairRef    string
	Phase          Phase
	Round          int
	CurrentSpeaker string
	CurrentVoter   string
	Participants   []*Participant
	Eliminated     []string
	WinnerRole     Role
	WinnerIDs      []string
	ForceEndReason string
	Version        int64
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// Speech is one append-only speech record. Seq is strictly increasing per
// (session, round).
type Speech struct {
	ID            string
	SessionID     string
	ParticipantID string
	Round         int
	Seq           int
	Content       string
	CreatedAt     time.Time
}

// Vote is one vote record; at most one per (session, round, voter) —
// resubmission overwrites the target.
type Vote struct {
	ID        string
	SessionID string
	Round     int
	VoterID   string
	TargetID  string
	CreatedAt time.Time
}

func (s *Session) Participant(id string) *Participant {
	for _, p := range s.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Alive returns the living participants in stable creation order. Elimination
// happens only between rounds, so within a round this doubles as the round's
// turn order.
func (s *Session) Alive() []*Participant {
	out := make([]*Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.Alive {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) AliveCount(role Role) int {
	n := 0
	for _, p := range s.Participants {
		if p.Alive && p.Role == role {
			n++
		}
	}
	return n
}

func (s *Session) IsEliminated(id string) bool {
	for _, e := range s.Eliminated {
		if e == id {
			return true
		}
	}
	return false
}

// CurrentActor returns the participant holding the turn, or nil outside
// Speaking/Voting.
func (s *Session) CurrentActor() *Participant {
	switch s.Phase {
	case PhaseSpeaking:
		return s.Participant(s.CurrentSpeaker)
	case PhaseVoting:
		return s.Participant(s.CurrentVoter)
	}
	return nil
}

// Clone deep-copies the session so a failed validation never leaves partial
// mutations behind.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Participants = make([]*Participant, len(s.Participants))
	for i, p := range s.Participants {
		pc := *p
		cp.Participants[i] = &pc
	}
	cp.Eliminated = append([]string(nil), s.Eliminated...)
	cp.WinnerIDs = append([]string(nil), s.WinnerIDs...)
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// PlayerView is the public per-participant projection. Role is revealed only
// once the session is finished.
type PlayerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	IsAI  bool   `json:"is_ai"`
	Alive bool   `json:"alive"`
	Ready bool   `json:"ready"`
	Role  string `json:"role,omitempty"`
}

// Snapshot is the public state returned by GetState and sent over the wire.
type Snapshot struct {
	ID             string       `json:"id"`
	RoomID         string       `json:"room_id"`
	Phase          string       `json:"phase"`
	Round          int          `json:"round"`
	CurrentSpeaker string       `json:"current_speaker,omitempty"`
	CurrentVoter   string       `json:"current_voter,omitempty"`
	Players        []PlayerView `json:"players"`
	Eliminated     []string     `json:"eliminated"`
	WinnerRole     string       `json:"winner_role,omitempty"`
	WinnerPlayers  []string     `json:"winner_players,omitempty"`
	YourWord       string       `json:"your_word,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
}

// SnapshotFor builds the snapshot visible to viewerID. An empty viewer id
// yields the spectator view.
func (s *Session) SnapshotFor(viewerID string) Snapshot {
	players := make([]PlayerView, 0, len(s.Participants))
	for _, p := range s.Participants {
		pv := PlayerView{ID: p.ID, Name: p.Name, IsAI: p.IsAI, Alive: p.Alive, Ready: p.Ready}
		if s.Phase == PhaseFinished {
			pv.Role = string(p.Role)
		}
		players = append(players, pv)
	}
	snap := Snapshot{
		ID:             s.ID,
		RoomID:         s.RoomID,
		Phase:          string(s.Phase),
		Round:          s.Round,
		CurrentSpeaker: s.CurrentSpeaker,
		CurrentVoter:   s.CurrentVoter,
		Players:        players,
		Eliminated:     append([]string{}, s.Eliminated...),
		WinnerRole:     string(s.WinnerRole),
		WinnerPlayers:  append([]string(nil), s.WinnerIDs...),
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
	}
	if viewer := s.Participant(viewerID); viewer != nil {
		snap.YourWord = viewer.Word
	}
	return snap
}
