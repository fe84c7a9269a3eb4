package testutil

import (
	"context"
	"sync"

	"undercover-arena/internal/game"
)

// RecordingHub captures broadcast and direct events instead of delivering
// them.
type RecordingHub struct {
	mu     sync.Mutex
	Room   []game.Event
	Direct map[string][]game.Event
}

func NewRecordingHub() *RecordingHub {
	return &RecordingHub{Direct: map[string][]game.Event{}}
}

func (h *RecordingHub) BroadcastToRoom(_ string, ev game.Event, _ string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Room = append(h.Room, ev)
	return 0
}

func (h *RecordingHub) SendToUser(userID string, ev game.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Direct[userID] = append(h.Direct[userID], ev)
	return true
}

// RoomEvents returns the captured room events of the given type.
func (h *RecordingHub) RoomEvents(typ string) []game.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []game.Event
	for _, ev := range h.Room {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// StaticWords always serves the same pair.
type StaticWords struct {
	Majority, Minority, Ref string
}

func (w StaticWords) SelectPair(context.Context, int, string) (string, string, string, error) {
	return w.Majority, w.Minority, w.Ref, nil
}

// RecordingSettler captures terminal events.
type RecordingSettler struct {
	mu     sync.Mutex
	Events []game.FinishedEvent
}

func (s *RecordingSettler) SessionFinished(_ context.Context, ev game.FinishedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	return nil
}
