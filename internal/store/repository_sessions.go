package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"undercover-arena/internal/game"
)

// CreateSession inserts a new session row. An empty ID gets a fresh ULID.
func (s *Store) CreateSession(ctx context.Context, sess *game.Session) error {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	players, err := json.Marshal(sess.Participants)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	eliminated, err := json.Marshal(sess.Eliminated)
	if err != nil {
		return fmt.Errorf("marshal eliminated: %w", err)
	}
	winners, err := json.Marshal(sess.WinnerIDs)
	if err != nil {
		return fmt.Errorf("marshal winners: %w", err)
	}

	err = withRetry(ctx, func() error {
		_, err := s.Pool.Exec(ctx, `
			INSERT INTO games (
				id, room_id, word_pair_ref, phase, round,
				current_speaker, current_voter, players, eliminated,
				winner_role, winner_players, force_end_reason,
				version, started_at, finished_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			sess.ID, sess.RoomID, sess.WordPairRef, string(sess.Phase), sess.Round,
			sess.CurrentSpeaker, sess.CurrentVoter, players, eliminated,
			string(sess.WinnerRole), winners, sess.ForceEndReason,
			sess.Version, sess.StartedAt, sess.FinishedAt,
		)
		return err
	})
	if err != nil {
		return err
	}
	s.cache.put(sess)
	return nil
}

// GetSession returns a private copy, from cache when fresh.
func (s *Store) GetSession(ctx context.Context, id string) (*game.Session, error) {
	if cached := s.cache.get(id); cached != nil {
		return cached, nil
	}
	sess, err := s.readSession(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.put(sess)
	return sess.Clone(), nil
}

func (s *Store) readSession(ctx context.Context, id string) (*game.Session, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, room_id, word_pair_ref, phase, round,
		       current_speaker, current_voter, players, eliminated,
		       winner_role, winner_players, force_end_reason,
		       version, started_at, finished_at
		FROM games WHERE id = $1`, id)
	return scanSession(row)
}

func scanSession(row pgx.Row) (*game.Session, error) {
	var (
		sess       game.Session
		phase      string
		winnerRole string
		players    []byte
		eliminated []byte
		winners    []byte
	)
	err := row.Scan(
		&sess.ID, &sess.RoomID, &sess.WordPairRef, &phase, &sess.Round,
		&sess.CurrentSpeaker, &sess.CurrentVoter, &players, &eliminated,
		&winnerRole, &winners, &sess.ForceEndReason,
		&sess.Version, &sess.StartedAt, &sess.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.Phase = game.Phase(phase)
	sess.WinnerRole = game.Role(winnerRole)
	if err := json.Unmarshal(players, &sess.Participants); err != nil {
		return nil, fmt.Errorf("unmarshal players: %w", err)
	}
	if err := json.Unmarshal(eliminated, &sess.Eliminated); err != nil {
		return nil, fmt.Errorf("unmarshal eliminated: %w", err)
	}
	if err := json.Unmarshal(winners, &sess.WinnerIDs); err != nil {
		return nil, fmt.Errorf("unmarshal winners: %w", err)
	}
	return &sess, nil
}

// UpdateSession writes the session back iff the stored version still matches
// sess.Version, then bumps it. A version mismatch or missing row returns
// game.ErrConflict / game.ErrNotFound.
func (s *Store) UpdateSession(ctx context.Context, sess *game.Session) error {
	players, err := json.Marshal(sess.Participants)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	eliminated, err := json.Marshal(sess.Eliminated)
	if err != nil {
		return fmt.Errorf("marshal eliminated: %w", err)
	}
	winners, err := json.Marshal(sess.WinnerIDs)
	if err != nil {
		return fmt.Errorf("marshal winners: %w", err)
	}

	var tag pgconn.CommandTag
	err = withRetry(ctx, func() error {
		var err error
		tag, err = s.Pool.Exec(ctx, `
			UPDATE games SET
				phase = $2, round = $3, current_speaker = $4, current_voter = $5,
				players = $6, eliminated = $7, winner_role = $8, winner_players = $9,
				force_end_reason = $10, finished_at = $11, version = version + 1
			WHERE id = $1 AND version = $12`,
			sess.ID, string(sess.Phase), sess.Round, sess.CurrentSpeaker, sess.CurrentVoter,
			players, eliminated, string(sess.WinnerRole), winners,
			sess.ForceEndReason, sess.FinishedAt, sess.Version,
		)
		return err
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		s.cache.drop(sess.ID)
		var exists bool
		if err := s.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM games WHERE id = $1)`, sess.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return game.ErrNotFound
		}
		return game.ErrConflict
	}
	sess.Version++
	s.cache.put(sess)
	return nil
}

// ListUnfinishedSessions returns non-finished sessions started at or after
// the cutoff, oldest first. Used by crash recovery.
func (s *Store) ListUnfinishedSessions(ctx context.Context, since time.Time) ([]*game.Session, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, room_id, word_pair_ref, phase, round,
		       current_speaker, current_voter, players, eliminated,
		       winner_role, winner_players, force_end_reason,
		       version, started_at, finished_at
		FROM games
		WHERE phase <> 'finished' AND started_at >= $1
		ORDER BY started_at`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*game.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
