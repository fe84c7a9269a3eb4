package ai

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"undercover-arena/internal/config"
	"undercover-arena/internal/game"
)

// neutralSpeech is the last-resort filler when every model fails: vague
// enough to fit either word.
const neutralSpeech = "That word brings a few everyday things to mind."

// sessionEngine is the slice of the game engine the orchestrator drives.
type sessionEngine interface {
	Load(ctx context.Context, sessionID string) (*game.Session, error)
	BuildTurnContext(ctx context.Context, sessionID string) (*game.TurnContext, error)
	SubmitSpeech(ctx context.Context, sessionID, actorID, content string) (*game.Session, error)
	SubmitVote(ctx context.Context, sessionID, voterID, targetID string) (*game.Session, error)
}

type completer interface {
	CompleteWithFallback(ctx context.Context, primary game.ModelConfig, messages []Message) (string, error)
}

// Orchestrator runs AI turns in the background. One goroutine per session at
// a time; each iteration re-reads state so a human move, force-end, or
// concurrent phase change made while the model was thinking is seen before
// anything is applied.
type Orchestrator struct {
	Engine sessionEngine
	Client completer
	cfg    config.AIConfig

	mu      sync.Mutex
	running map[string]bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewOrchestrator(engine sessionEngine, client completer, cfg config.AIConfig, rng *rand.Rand) *Orchestrator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Orchestrator{
		Engine:  engine,
		Client:  client,
		cfg:     cfg,
		running: map[string]bool{},
		rng:     rng,
	}
}

// Schedule starts turn processing for the session unless a run is already in
// flight. Implements game.AIScheduler.
func (o *Orchestrator) Schedule(sessionID string) {
	o.mu.Lock()
	if o.running[sessionID] {
		o.mu.Unlock()
		return
	}
	o.running[sessionID] = true
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.running, sessionID)
			o.mu.Unlock()
		}()
		o.RunTurns(context.Background(), sessionID)
	}()
}

// RunTurns processes consecutive AI turns until a human holds the turn, the
// session leaves an active phase, or the iteration cap trips. The cap bounds
// runaway loops; a legitimate long chain gets rescheduled by the next engine
// mutation anyway.
func (o *Orchestrator) RunTurns(ctx context.Context, sessionID string) {
	for i := 0; i < o.cfg.MaxIterations; i++ {
		sess, err := o.Engine.Load(ctx, sessionID)
		if err != nil {
			log.Error().Err(err).Str("game_id", sessionID).Msg("ai turn load failed")
			return
		}
		actor := sess.CurrentActor()
		if actor == nil || !actor.IsAI {
			return
		}

		switch sess.Phase {
		case game.PhaseSpeaking:
			err = o.takeSpeechTurn(ctx, sess, actor)
		case game.PhaseVoting:
			err = o.takeVoteTurn(ctx, sess, actor)
		default:
			return
		}
		if err != nil {
			if _, ok := game.AsInvalidAction(err); ok {
				// state moved underneath us; re-read and continue
				continue
			}
			log.Error().Err(err).Str("game_id", sessionID).Str("player_id", actor.ID).Msg("ai turn failed")
			return
		}
	}
	log.Warn().Str("game_id", sessionID).Int("iterations", o.cfg.MaxIterations).Msg("ai turn iteration cap reached")
}

func (o *Orchestrator) takeSpeechTurn(ctx context.Context, sess *game.Session, actor *game.Participant) error {
	o.pause(ctx, o.cfg.SpeechDelay)

	tc, err := o.Engine.BuildTurnContext(ctx, sess.ID)
	if err != nil {
		return err
	}
	nameOf := participantNamer(sess)

	content, err := o.Client.CompleteWithFallback(ctx, actor.Model, SpeechMessages(actor, tc, nameOf))
	if err != nil {
		log.Warn().Err(err).Str("game_id", sess.ID).Str("player_id", actor.ID).Msg("speech generation failed, using filler")
		content = neutralSpeech
	}

	_, err = o.Engine.SubmitSpeech(ctx, sess.ID, actor.ID, content)
	return err
}

func (o *Orchestrator) takeVoteTurn(ctx context.Context, sess *game.Session, actor *game.Participant) error {
	o.pause(ctx, o.cfg.VoteDelay)

	tc, err := o.Engine.BuildTurnContext(ctx, sess.ID)
	if err != nil {
		return err
	}
	candidates := make([]game.PlayerView, 0, len(tc.Alive))
	for _, p := range tc.Alive {
		if p.ID != actor.ID {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	nameOf := participantNamer(sess)

	targetID := ""
	reply, err := o.Client.CompleteWithFallback(ctx, actor.Model, VoteMessages(actor, tc, candidates, nameOf))
	if err == nil {
		if id, ok := MatchVoteTarget(reply, candidates); ok {
			targetID = id
		} else {
			log.Warn().Str("game_id", sess.ID).Str("player_id", actor.ID).Str("reply", reply).Msg("vote reply matched no candidate")
		}
	} else {
		log.Warn().Err(err).Str("game_id", sess.ID).Str("player_id", actor.ID).Msg("vote generation failed")
	}
	if targetID == "" {
		targetID = candidates[o.pick(len(candidates))].ID
	}

	_, err = o.Engine.SubmitVote(ctx, sess.ID, actor.ID, targetID)
	return err
}

func (o *Orchestrator) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (o *Orchestrator) pick(n int) int {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return o.rng.Intn(n)
}

func participantNamer(sess *game.Session) func(string) string {
	return func(id string) string {
		if p := sess.Participant(id); p != nil {
			return p.Name
		}
		return id
	}
}
