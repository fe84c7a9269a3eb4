package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"undercover-arena/internal/game"
)

// MemStore is an in-memory game.SessionStore for engine, recovery, and
// transport tests. It enforces the same version compare-and-write and
// uniqueness rules as the postgres store.
type MemStore struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]*game.Session
	speeches map[string][]game.Speech
	votes    map[string][]game.Vote

	// UpdateErr, when set, is returned by the next UpdateSession call.
	UpdateErr error

	// Primed records the session IDs handed to Prime, in order.
	Primed []string
}

func NewMemStore() *MemStore {
	return &MemStore{
		sessions: map[string]*game.Session{},
		speeches: map[string][]game.Speech{},
		votes:    map[string][]game.Vote{},
	}
}

func (m *MemStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%04d", prefix, m.seq)
}

func (m *MemStore) CreateSession(_ context.Context, s *game.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = m.nextID("game")
	}
	if _, ok := m.sessions[s.ID]; ok {
		return game.ErrConflict
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Prime mirrors the production store's cache warm-up and records the call.
func (m *MemStore) Prime(s *game.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Primed = append(m.Primed, s.ID)
}

func (m *MemStore) GetSession(_ context.Context, id string) (*game.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, game.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemStore) UpdateSession(_ context.Context, s *game.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		err := m.UpdateErr
		m.UpdateErr = nil
		return err
	}
	cur, ok := m.sessions[s.ID]
	if !ok {
		return game.ErrNotFound
	}
	if cur.Version != s.Version {
		return game.ErrConflict
	}
	s.Version++
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemStore) AppendSpeech(_ context.Context, sp *game.Speech) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sp.ID == "" {
		sp.ID = m.nextID("speech")
	}
	for _, existing := range m.speeches[sp.SessionID] {
		if existing.Round == sp.Round && existing.Seq == sp.Seq {
			return game.ErrConflict
		}
	}
	m.speeches[sp.SessionID] = append(m.speeches[sp.SessionID], *sp)
	return nil
}

func (m *MemStore) NextSpeechSeq(_ context.Context, sessionID string, round int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, sp := range m.speeches[sessionID] {
		if sp.Round == round && sp.Seq > max {
			max = sp.Seq
		}
	}
	return max + 1, nil
}

func (m *MemStore) ListSpeeches(_ context.Context, sessionID string) ([]game.Speech, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]game.Speech(nil), m.speeches[sessionID]...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (m *MemStore) UpsertVote(_ context.Context, v *game.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.votes[v.SessionID] {
		if existing.Round == v.Round && existing.VoterID == v.VoterID {
			v.ID = existing.ID
			m.votes[v.SessionID][i] = *v
			return nil
		}
	}
	if v.ID == "" {
		v.ID = m.nextID("vote")
	}
	m.votes[v.SessionID] = append(m.votes[v.SessionID], *v)
	return nil
}

func (m *MemStore) ListVotes(_ context.Context, sessionID string, round int) ([]game.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []game.Vote
	for _, v := range m.votes[sessionID] {
		if v.Round == round {
			out = append(out, v)
		}
	}
	return out, nil
}

// ListUnfinishedSessions returns sessions not yet finished that started at or
// after the cutoff, oldest first.
func (m *MemStore) ListUnfinishedSessions(_ context.Context, since time.Time) ([]*game.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*game.Session
	for _, s := range m.sessions {
		if s.Phase != game.PhaseFinished && !s.StartedAt.Before(since) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}
