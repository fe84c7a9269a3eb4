package recovery

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"undercover-arena/internal/game"
)

const abandonReason = "abandoned: not recovered within the recovery window"

// sessionSource is the store slice recovery reads and repairs through.
type sessionSource interface {
	ListUnfinishedSessions(ctx context.Context, since time.Time) ([]*game.Session, error)
	UpdateSession(ctx context.Context, s *game.Session) error
	Prime(s *game.Session)
}

// Service rebuilds in-flight sessions after a process restart: every
// non-finished session inside the window is validated, repaired if its turn
// fields drifted, and handed back to the AI scheduler when an AI holds the
// turn. Sessions older than the window are closed as abandoned.
type Service struct {
	Store     sessionSource
	Registry  *game.Registry
	Scheduler game.AIScheduler
	Window    time.Duration

	now func() time.Time
}

func NewService(store sessionSource, reg *game.Registry, scheduler game.AIScheduler, window time.Duration) *Service {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Service{
		Store:     store,
		Registry:  reg,
		Scheduler: scheduler,
		Window:    window,
		now:       time.Now,
	}
}

// Run scans and recovers once. Called at startup before the HTTP listener
// accepts traffic. Returns the number of sessions resumed.
func (s *Service) Run(ctx context.Context) (int, error) {
	sessions, err := s.Store.ListUnfinishedSessions(ctx, time.Time{})
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.Window)
	resumed := 0
	for _, sess := range sessions {
		if sess.StartedAt.Before(cutoff) {
			if err := s.abandon(ctx, sess); err != nil {
				log.Error().Err(err).Str("game_id", sess.ID).Msg("abandoning stale session failed")
			}
			continue
		}
		if err := s.recoverOne(ctx, sess); err != nil {
			log.Error().Err(err).Str("game_id", sess.ID).Msg("session recovery failed")
			continue
		}
		resumed++
	}
	log.Info().Int("resumed", resumed).Int("scanned", len(sessions)).Msg("recovery_complete")
	return resumed, nil
}

func (s *Service) recoverOne(ctx context.Context, sess *game.Session) error {
	unlock := s.Registry.Lock(sess.ID)
	defer unlock()

	if repairTurnFields(sess) {
		log.Warn().Str("game_id", sess.ID).Str("phase", string(sess.Phase)).Msg("repaired drifted turn fields")
		if err := s.Store.UpdateSession(ctx, sess); err != nil {
			return err
		}
	}
	// warm the cache so the first action after restart skips the database
	s.Store.Prime(sess)

	log.Info().
		Str("game_id", sess.ID).
		Str("phase", string(sess.Phase)).
		Int("round", sess.Round).
		Msg("session_recovered")

	if s.Scheduler != nil {
		if actor := sess.CurrentActor(); actor != nil && actor.IsAI {
			s.Scheduler.Schedule(sess.ID)
		}
	}
	return nil
}

func (s *Service) abandon(ctx context.Context, sess *game.Session) error {
	unlock := s.Registry.Lock(sess.ID)
	defer unlock()

	if err := sess.TransitionTo(game.PhaseFinished); err != nil {
		return err
	}
	now := s.now()
	sess.CurrentSpeaker = ""
	sess.CurrentVoter = ""
	sess.ForceEndReason = abandonReason
	sess.FinishedAt = &now
	if err := s.Store.UpdateSession(ctx, sess); err != nil {
		return err
	}
	s.Registry.Release(sess.ID)
	log.Warn().Str("game_id", sess.ID).Time("started_at", sess.StartedAt).Msg("session_abandoned")
	return nil
}

// repairTurnFields fixes a session whose persisted turn pointer no longer
// matches an alive participant, which can happen if a crash landed between
// the vote tally and the session write. Reports whether anything changed.
func repairTurnFields(sess *game.Session) bool {
	alive := sess.Alive()
	if len(alive) == 0 {
		return false
	}
	validAlive := func(id string) bool {
		for _, p := range alive {
			if p.ID == id {
				return true
			}
		}
		return false
	}

	changed := false
	switch sess.Phase {
	case game.PhaseSpeaking:
		if !validAlive(sess.CurrentSpeaker) {
			sess.CurrentSpeaker = alive[0].ID
			changed = true
		}
		if sess.CurrentVoter != "" {
			sess.CurrentVoter = ""
			changed = true
		}
	case game.PhaseVoting:
		if !validAlive(sess.CurrentVoter) {
			sess.CurrentVoter = alive[0].ID
			changed = true
		}
		if sess.CurrentSpeaker != "" {
			sess.CurrentSpeaker = ""
			changed = true
		}
	}
	return changed
}
