package game

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// SessionStore is the durability contract the engine writes through. The
// postgres implementation lives in internal/store; tests use an in-memory one.
// GetSession must return a private copy; UpdateSession performs a
// compare-and-write on Session.Version and bumps it on success.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error
	AppendSpeech(ctx context.Context, sp *Speech) error
	NextSpeechSeq(ctx context.Context, sessionID string, round int) (int, error)
	ListSpeeches(ctx context.Context, sessionID string) ([]Speech, error)
	UpsertVote(ctx context.Context, v *Vote) error
	ListVotes(ctx context.Context, sessionID string, round int) ([]Vote, error)
}

// Broadcaster fans events out to live clients; implemented by the hub.
type Broadcaster interface {
	BroadcastToRoom(roomID string, ev Event, excludeUser string) int
	SendToUser(userID string, ev Event) bool
}

// WordProvider yields the secret word pair at session creation.
type WordProvider interface {
	SelectPair(ctx context.Context, difficulty int, category string) (majority, minority, ref string, err error)
}

// Settler consumes the terminal event; scoring is external and idempotent
// per session id.
type Settler interface {
	SessionFinished(ctx context.Context, ev FinishedEvent) error
}

// AIScheduler kicks off asynchronous AI turn processing for a session.
type AIScheduler interface {
	Schedule(sessionID string)
}

const (
	minPlayers       = 3
	maxPlayers       = 10
	minSpeechRunes   = 2
	maxSpeechRunes   = 500
	skippedSpeechTag = "(skipped)"
)

// Engine drives the session state machine. All mutations for one session run
// under the registry's per-session lock; the engine itself holds no session
// state between calls.
type Engine struct {
	Store    SessionStore
	Registry *Registry
	Hub      Broadcaster
	Words    WordProvider
	Settler  Settler
	Tally    *Tally

	// Scheduler is set after construction to break the engine/orchestrator
	// construction cycle; nil means AI turns are never scheduled (tests).
	Scheduler AIScheduler

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
}

// NewEngine wires an engine. A nil rng gets a time-seeded source; tests pass
// a fixed seed for deterministic shuffles and tie-breaks.
func NewEngine(store SessionStore, reg *Registry, hub Broadcaster, words WordProvider, settler Settler, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		Store:    store,
		Registry: reg,
		Hub:      hub,
		Words:    words,
		Settler:  settler,
		Tally:    NewTally(rng),
		rng:      rng,
		now:      time.Now,
	}
}

// RosterEntry is one seat handed over by the room provider at creation.
type RosterEntry struct {
	ID          string
	Name        string
	IsAI        bool
	Ready       bool
	Personality string
	Skill       string
	Model       ModelConfig
}

type CreateGameParams struct {
	RoomID     string
	Difficulty int
	Category   string
	Roster     []RosterEntry
}

// CreateGame assigns roles/words to the roster and persists the new session
// in Preparing. Each human participant privately receives their own word.
func (e *Engine) CreateGame(ctx context.Context, p CreateGameParams) (*Session, error) {
	n := len(p.Roster)
	if n < minPlayers || n > maxPlayers {
		return nil, invalidAction(codePlayerCount, "need 3 to 10 players")
	}

	majority, minority, ref, err := e.Words.SelectPair(ctx, p.Difficulty, p.Category)
	if err != nil {
		return nil, err
	}

	participants := make([]*Participant, 0, n)
	for _, r := range p.Roster {
		participants = append(participants, &Participant{
			ID:          r.ID,
			Name:        r.Name,
			IsAI:        r.IsAI,
			Alive:       true,
			Ready:       r.Ready || r.IsAI,
			Personality: r.Personality,
			Skill:       r.Skill,
			Model:       r.Model,
		})
	}

	e.rngMu.Lock()
	AssignRoles(participants, majority, minority, e.rng)
	e.rngMu.Unlock()

	sess := &Session{
		RoomID:       p.RoomID,
		WordPairRef:  ref,
		Phase:        PhasePreparing,
		Round:        1,
		Participants: participants,
		Eliminated:   []string{},
		Version:      1,
		StartedAt:    e.now(),
	}
	if err := e.Store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	log.Info().Str("game_id", sess.ID).Str("room_id", sess.RoomID).Int("players", n).Msg("game_created")

	e.emitRoom(sess, EventGameCreated, map[string]any{
		"game_id": sess.ID,
		"room_id": sess.RoomID,
		"round":   sess.Round,
		"players": sess.SnapshotFor("").Players,
	})
	for _, part := range sess.Participants {
		if part.IsAI {
			continue
		}
		e.Hub.SendToUser(part.ID, Event{Type: EventGameCreated, Data: map[string]any{
			"game_id": sess.ID,
			"word":    part.Word,
		}})
	}
	return sess, nil
}

// StartGame moves Preparing to Speaking once every participant is ready.
func (e *Engine) StartGame(ctx context.Context, sessionID, actorID string) (*Session, error) {
	unlock := e.Registry.Lock(sessionID)
	defer unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Participant(actorID) == nil {
		return nil, ErrNotFound
	}
	if sess.Phase != PhasePreparing {
		return nil, invalidAction(codeWrongPhase, "game already started")
	}
	for _, p := range sess.Participants {
		if !p.Ready {
			return nil, invalidAction(codeNotReady, p.Name+" is not ready")
		}
	}

	if err := sess.TransitionTo(PhaseSpeaking); err != nil {
		return nil, err
	}
	sess.CurrentSpeaker = firstAliveID(sess)
	if err := e.Store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	log.Info().Str("game_id", sess.ID).Str("speaker", sess.CurrentSpeaker).Msg("game_started")
	e.emitRoom(sess, EventGameStarted, map[string]any{
		"game_id":         sess.ID,
		"round":           sess.Round,
		"current_speaker": sess.CurrentSpeaker,
	})
	e.maybeScheduleAI(sess)
	return sess, nil
}

// SubmitSpeech records the current speaker's speech and rotates the turn.
func (e *Engine) SubmitSpeech(ctx context.Context, sessionID, actorID, content string) (*Session, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n < minSpeechRunes || n > maxSpeechRunes {
		return nil, invalidAction(codeInvalidContent, "speech must be 2 to 500 characters")
	}

	unlock := e.Registry.Lock(sessionID)
	defer unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	speaker, err := validateSpeaker(sess, actorID)
	if err != nil {
		return nil, err
	}

	seq, err := e.Store.NextSpeechSeq(ctx, sess.ID, sess.Round)
	if err != nil {
		return nil, err
	}
	if err := e.Store.AppendSpeech(ctx, &Speech{
		SessionID:     sess.ID,
		ParticipantID: speaker.ID,
		Round:         sess.Round,
		Seq:           seq,
		Content:       content,
		CreatedAt:     e.now(),
	}); err != nil {
		return nil, err
	}

	wrapped := advanceSpeaker(sess)
	if wrapped {
		if err := sess.TransitionTo(PhaseVoting); err != nil {
			return nil, err
		}
	}
	if err := e.Store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	evType := EventSpeechSubmitted
	if speaker.IsAI {
		evType = EventAISpeech
	}
	e.emitRoom(sess, evType, map[string]any{
		"game_id":     sess.ID,
		"player_id":   speaker.ID,
		"player_name": speaker.Name,
		"content":     content,
		"round":       sess.Round,
		"seq":         seq,
	})
	if wrapped {
		e.emitPhaseChanged(sess, PhaseSpeaking)
	}
	e.maybeScheduleAI(sess)
	return sess, nil
}

// SkipSpeech passes the current speaker's turn without recording a speech.
func (e *Engine) SkipSpeech(ctx context.Context, sessionID, actorID string) (*Session, error) {
	unlock := e.Registry.Lock(sessionID)
	defer unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	speaker, err := validateSpeaker(sess, actorID)
	if err != nil {
		return nil, err
	}

	wrapped := advanceSpeaker(sess)
	if wrapped {
		if err := sess.TransitionTo(PhaseVoting); err != nil {
			return nil, err
		}
	}
	if err := e.Store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	e.emitRoom(sess, EventSpeechSubmitted, map[string]any{
		"game_id":     sess.ID,
		"player_id":   speaker.ID,
		"player_name": speaker.Name,
		"content":     skippedSpeechTag,
		"skipped":     true,
		"round":       sess.Round,
	})
	if wrapped {
		e.emitPhaseChanged(sess, PhaseSpeaking)
	}
	e.maybeScheduleAI(sess)
	return sess, nil
}

// SubmitVote records the current voter's vote (overwriting any earlier vote
// of the same round), rotates the turn, and tallies once everyone has voted.
func (e *Engine) SubmitVote(ctx context.Context, sessionID, voterID, targetID string) (*Session, error) {
	unlock := e.Registry.Lock(sessionID)
	defer unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	voter, target, err := validateVote(sess, voterID, targetID)
	if err != nil {
		return nil, err
	}

	if err := e.Store.UpsertVote(ctx, &Vote{
		SessionID: sess.ID,
		Round:     sess.Round,
		VoterID:   voter.ID,
		TargetID:  target.ID,
		CreatedAt: e.now(),
	}); err != nil {
		return nil, err
	}

	allVoted := advanceVoter(sess)

	evType := EventVoteSubmitted
	if voter.IsAI {
		evType = EventAIVote
	}
	voteData := map[string]any{
		"game_id":    sess.ID,
		"voter_id":   voter.ID,
		"voter_name": voter.Name,
		"target_id":  target.ID,
		"round":      sess.Round,
		"is_ai":      voter.IsAI,
	}

	if !allVoted {
		if err := e.Store.UpdateSession(ctx, sess); err != nil {
			return nil, err
		}
		e.emitRoom(sess, evType, voteData)
		e.maybeScheduleAI(sess)
		return sess, nil
	}

	// Round complete: tally, eliminate, then either finish or open the next
	// round. A single UpdateSession covers the whole transition.
	votes, err := e.Store.ListVotes(ctx, sess.ID, sess.Round)
	if err != nil {
		return nil, err
	}
	endedRound := sess.Round
	outcome := e.Tally.Resolve(votes, sess.Alive())
	eliminated := sess.Participant(outcome.TargetID)
	if eliminated != nil {
		eliminated.Alive = false
		sess.Eliminated = append(sess.Eliminated, eliminated.ID)
	}

	finished, err := e.applyWinCheck(sess)
	if err != nil {
		return nil, err
	}
	if !finished {
		if err := sess.TransitionTo(PhaseSpeaking); err != nil {
			return nil, err
		}
		sess.Round++
		sess.CurrentSpeaker = firstAliveID(sess)
		sess.CurrentVoter = ""
	}
	if err := e.Store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	e.emitRoom(sess, evType, voteData)
	if eliminated != nil {
		e.emitRoom(sess, EventPlayerEliminated, map[string]any{
			"game_id":     sess.ID,
			"player_id":   eliminated.ID,
			"player_name": eliminated.Name,
			"is_ai":       eliminated.IsAI,
			"role":        string(eliminated.Role),
			"round":       endedRound,
			"vote_count":  outcome.VoteCount,
		})
	}
	if finished {
		e.finishSession(ctx, sess)
	} else {
		e.emitPhaseChanged(sess, PhaseVoting)
		e.emitRoom(sess, EventRoundStarted, map[string]any{
			"game_id":         sess.ID,
			"round":           sess.Round,
			"current_speaker": sess.CurrentSpeaker,
		})
		e.maybeScheduleAI(sess)
	}
	return sess, nil
}

// ForceEnd terminates a session administratively. No winner is computed; the
// reason is recorded for audit. A pending AI move discovers the phase change
// on its re-read and discards itself.
func (e *Engine) ForceEnd(ctx context.Context, sessionID, reason string) (*Session, error) {
	unlock := e.Registry.Lock(sessionID)
	defer unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Phase == PhaseFinished {
		return nil, invalidAction(codeWrongPhase, "game already finished")
	}

	if err := sess.TransitionTo(PhaseFinished); err != nil {
		return nil, err
	}
	now := e.now()
	sess.CurrentSpeaker = ""
	sess.CurrentVoter = ""
	sess.ForceEndReason = reason
	sess.FinishedAt = &now
	if err := e.Store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	log.Warn().Str("game_id", sess.ID).Str("reason", reason).Msg("game_force_ended")
	e.emitRoom(sess, EventGameEnded, map[string]any{
		"game_id":      sess.ID,
		"forced":       true,
		"reason":       reason,
		"total_rounds": sess.Round,
	})
	e.Registry.Release(sess.ID)
	return sess, nil
}

// GetState returns the viewer's snapshot of the session.
func (e *Engine) GetState(ctx context.Context, sessionID, viewerID string) (Snapshot, error) {
	unlock := e.Registry.Lock(sessionID)
	defer unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.SnapshotFor(viewerID), nil
}

// Load returns a private copy of current session state. The orchestrator
// re-reads through this before and after every external call.
func (e *Engine) Load(ctx context.Context, sessionID string) (*Session, error) {
	unlock := e.Registry.Lock(sessionID)
	defer unlock()
	return e.load(ctx, sessionID)
}

// TurnContext is the round context handed to AI prompt building. Rebuilt on
// demand from persisted state, never cached.
type TurnContext struct {
	SessionID  string
	Round      int
	Phase      Phase
	Alive      []PlayerView
	Speeches   []Speech
	Votes      []Vote
	FinalRound bool
}

// BuildTurnContext assembles the context for the session's current round.
func (e *Engine) BuildTurnContext(ctx context.Context, sessionID string) (*TurnContext, error) {
	unlock := e.Registry.Lock(sessionID)
	defer unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	speeches, err := e.Store.ListSpeeches(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	votes, err := e.Store.ListVotes(ctx, sess.ID, sess.Round)
	if err != nil {
		return nil, err
	}

	alive := sess.Alive()
	views := make([]PlayerView, 0, len(alive))
	for _, p := range alive {
		views = append(views, PlayerView{ID: p.ID, Name: p.Name, IsAI: p.IsAI, Alive: true, Ready: p.Ready})
	}
	return &TurnContext{
		SessionID:  sess.ID,
		Round:      sess.Round,
		Phase:      sess.Phase,
		Alive:      views,
		Speeches:   speeches,
		Votes:      votes,
		FinalRound: len(alive) <= 4,
	}, nil
}

func (e *Engine) load(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := e.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func validateSpeaker(sess *Session, actorID string) (*Participant, error) {
	p := sess.Participant(actorID)
	if p == nil {
		return nil, ErrNotFound
	}
	if sess.Phase != PhaseSpeaking {
		return nil, invalidAction(codeWrongPhase, "not the speaking phase")
	}
	if sess.CurrentSpeaker != actorID {
		return nil, invalidAction(codeNotYourTurn, "not your speaking turn")
	}
	if !p.Alive {
		return nil, invalidAction(codeDeadActor, "eliminated players cannot speak")
	}
	return p, nil
}

func validateVote(sess *Session, voterID, targetID string) (*Participant, *Participant, error) {
	voter := sess.Participant(voterID)
	if voter == nil {
		return nil, nil, ErrNotFound
	}
	if sess.Phase != PhaseVoting {
		return nil, nil, invalidAction(codeWrongPhase, "not the voting phase")
	}
	if sess.CurrentVoter != voterID {
		return nil, nil, invalidAction(codeNotYourTurn, "not your voting turn")
	}
	if !voter.Alive {
		return nil, nil, invalidAction(codeDeadActor, "eliminated players cannot vote")
	}
	target := sess.Participant(targetID)
	if target == nil || !target.Alive {
		return nil, nil, invalidAction(codeInvalidTarget, "target not found or eliminated")
	}
	if voterID == targetID {
		return nil, nil, invalidAction(codeSelfVote, "cannot vote for yourself")
	}
	return voter, target, nil
}

// applyWinCheck sets the terminal fields when either side has won and
// reports whether the session finished.
func (e *Engine) applyWinCheck(sess *Session) (bool, error) {
	minority := sess.AliveCount(RoleMinority)
	majority := sess.AliveCount(RoleMajority)

	var winner Role
	switch {
	case minority == 0:
		winner = RoleMajority
	case minority >= majority:
		winner = RoleMinority
	default:
		return false, nil
	}

	if err := sess.TransitionTo(PhaseFinished); err != nil {
		return false, err
	}
	now := e.now()
	sess.CurrentSpeaker = ""
	sess.CurrentVoter = ""
	sess.WinnerRole = winner
	sess.WinnerIDs = sess.WinnerIDs[:0]
	for _, p := range sess.Participants {
		if p.Role == winner {
			sess.WinnerIDs = append(sess.WinnerIDs, p.ID)
		}
	}
	sess.FinishedAt = &now
	return true, nil
}

func (e *Engine) finishSession(ctx context.Context, sess *Session) {
	log.Info().
		Str("game_id", sess.ID).
		Str("winner_role", string(sess.WinnerRole)).
		Int("rounds", sess.Round).
		Msg("game_ended")

	e.emitRoom(sess, EventGameEnded, map[string]any{
		"game_id":        sess.ID,
		"winner_role":    string(sess.WinnerRole),
		"winner_players": sess.WinnerIDs,
		"total_rounds":   sess.Round,
		"players":        sess.SnapshotFor("").Players,
	})

	if e.Settler != nil {
		duration := 0.0
		if sess.FinishedAt != nil {
			duration = sess.FinishedAt.Sub(sess.StartedAt).Seconds()
		}
		ev := FinishedEvent{
			SessionID:     sess.ID,
			WinnerRole:    string(sess.WinnerRole),
			WinnerPlayers: sess.WinnerIDs,
			Rounds:        sess.Round,
			DurationSecs:  duration,
		}
		if err := e.Settler.SessionFinished(ctx, ev); err != nil {
			log.Error().Err(err).Str("game_id", sess.ID).Msg("settlement failed")
		}
	}
	e.Registry.Release(sess.ID)
}

func (e *Engine) emitRoom(sess *Session, typ string, data map[string]any) {
	if e.Hub == nil {
		return
	}
	e.Hub.BroadcastToRoom(sess.RoomID, Event{Type: typ, Data: data}, "")
}

func (e *Engine) emitPhaseChanged(sess *Session, from Phase) {
	e.emitRoom(sess, EventPhaseChanged, map[string]any{
		"game_id":   sess.ID,
		"old_phase": string(from),
		"new_phase": string(sess.Phase),
		"round":     sess.Round,
	})
}

func (e *Engine) maybeScheduleAI(sess *Session) {
	if e.Scheduler == nil {
		return
	}
	if actor := sess.CurrentActor(); actor != nil && actor.IsAI {
		e.Scheduler.Schedule(sess.ID)
	}
}
