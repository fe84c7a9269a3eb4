package store

import (
	"context"

	"undercover-arena/internal/game"
)

// AppendSpeech inserts one speech row; the (game, round, seq) unique index
// guards against duplicate sequence numbers.
func (s *Store) AppendSpeech(ctx context.Context, sp *game.Speech) error {
	if sp.ID == "" {
		sp.ID = NewID()
	}
	return withRetry(ctx, func() error {
		_, err := s.Pool.Exec(ctx, `
			INSERT INTO speeches (id, game_id, player_id, round, seq, content, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			sp.ID, sp.SessionID, sp.ParticipantID, sp.Round, sp.Seq, sp.Content, sp.CreatedAt,
		)
		return err
	})
}

// NextSpeechSeq returns 1 + the highest sequence number recorded for the
// round. Callers hold the session lock, so read-then-insert is safe.
func (s *Store) NextSpeechSeq(ctx context.Context, sessionID string, round int) (int, error) {
	var max int
	err := s.Pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM speeches
		WHERE game_id = $1 AND round = $2`, sessionID, round).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (s *Store) ListSpeeches(ctx context.Context, sessionID string) ([]game.Speech, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, game_id, player_id, round, seq, content, created_at
		FROM speeches WHERE game_id = $1
		ORDER BY round, seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Speech
	for rows.Next() {
		var sp game.Speech
		if err := rows.Scan(&sp.ID, &sp.SessionID, &sp.ParticipantID, &sp.Round, &sp.Seq, &sp.Content, &sp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// UpsertVote records a vote, replacing the voter's earlier vote in the same
// round if any.
func (s *Store) UpsertVote(ctx context.Context, v *game.Vote) error {
	if v.ID == "" {
		v.ID = NewID()
	}
	return withRetry(ctx, func() error {
		_, err := s.Pool.Exec(ctx, `
			INSERT INTO votes (id, game_id, round, voter_id, target_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (game_id, round, voter_id)
			DO UPDATE SET target_id = EXCLUDED.target_id, created_at = EXCLUDED.created_at`,
			v.ID, v.SessionID, v.Round, v.VoterID, v.TargetID, v.CreatedAt,
		)
		return err
	})
}

func (s *Store) ListVotes(ctx context.Context, sessionID string, round int) ([]game.Vote, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, game_id, round, voter_id, target_id, created_at
		FROM votes WHERE game_id = $1 AND round = $2
		ORDER BY created_at`, sessionID, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Vote
	for rows.Next() {
		var v game.Vote
		if err := rows.Scan(&v.ID, &v.SessionID, &v.Round, &v.VoterID, &v.TargetID, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
