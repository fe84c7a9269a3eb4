package settle

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"undercover-arena/internal/game"
)

// Recorder hands finished sessions to the external settlement pipeline.
// Delivery is deduplicated on session id so a crash-recovered session that
// finishes twice settles once.
type Recorder struct {
	mu        sync.Mutex
	delivered map[string]bool
	sink      func(context.Context, game.FinishedEvent) error
}

// NewRecorder wires a settlement sink. A nil sink logs the event and is the
// default until an external scoring service is attached.
func NewRecorder(sink func(context.Context, game.FinishedEvent) error) *Recorder {
	return &Recorder{delivered: map[string]bool{}, sink: sink}
}

func (r *Recorder) SessionFinished(ctx context.Context, ev game.FinishedEvent) error {
	r.mu.Lock()
	if r.delivered[ev.SessionID] {
		r.mu.Unlock()
		log.Debug().Str("game_id", ev.SessionID).Msg("settlement duplicate ignored")
		return nil
	}
	r.delivered[ev.SessionID] = true
	r.mu.Unlock()

	log.Info().
		Str("game_id", ev.SessionID).
		Str("winner_role", ev.WinnerRole).
		Int("rounds", ev.Rounds).
		Float64("duration_secs", ev.DurationSecs).
		Msg("session_settled")

	if r.sink == nil {
		return nil
	}
	if err := r.sink(ctx, ev); err != nil {
		// allow a retry on sink failure
		r.mu.Lock()
		delete(r.delivered, ev.SessionID)
		r.mu.Unlock()
		return err
	}
	return nil
}
