package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"undercover-arena/internal/game"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultQueueCap     = 100
)

// Hub tracks live connections by user and by room and buffers events for
// offline users. One connection per user: a reconnect replaces the previous
// connection and flushes the user's queued events in order.
type Hub struct {
	pingInterval time.Duration
	queueCap     int
	upgrader     websocket.Upgrader

	mu     sync.Mutex
	byUser map[string]*Client
	rooms  map[string]map[string]*Client
	queues map[string][][]byte
}

func New(pingInterval time.Duration, queueCap int) *Hub {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	if queueCap <= 0 {
		queueCap = defaultQueueCap
	}
	return &Hub{
		pingInterval: pingInterval,
		queueCap:     queueCap,
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		byUser:       map[string]*Client{},
		rooms:        map[string]map[string]*Client{},
		queues:       map[string][][]byte{},
	}
}

// HandleWS upgrades the connection and registers it under the user and room
// from the query string.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	roomID := r.URL.Query().Get("room_id")
	if userID == "" {
		http.Error(w, `{"error":"missing_user_id"}`, http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(h, conn, userID, roomID)
	h.register(c)

	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	if prev, ok := h.byUser[c.userID]; ok {
		prev.shutdown()
		h.removeLocked(prev)
	}
	h.byUser[c.userID] = c
	if c.roomID != "" {
		room := h.rooms[c.roomID]
		if room == nil {
			room = map[string]*Client{}
			h.rooms[c.roomID] = room
		}
		room[c.userID] = c
	}
	queued := h.queues[c.userID]
	delete(h.queues, c.userID)
	h.mu.Unlock()

	for _, msg := range queued {
		c.enqueue(msg)
	}
	log.Debug().Str("user_id", c.userID).Str("room_id", c.roomID).Int("flushed", len(queued)).Msg("ws_connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
	log.Debug().Str("user_id", c.userID).Msg("ws_disconnected")
}

// removeLocked drops c from the indexes only if it is still the registered
// connection for its user; a replaced connection must not evict its
// successor.
func (h *Hub) removeLocked(c *Client) {
	if cur, ok := h.byUser[c.userID]; ok && cur == c {
		delete(h.byUser, c.userID)
		h.dropFromRoomLocked(c)
	}
}

// dropFromRoomLocked removes c from its current room index and cleans up the
// room when it empties.
func (h *Hub) dropFromRoomLocked(c *Client) {
	if room, ok := h.rooms[c.roomID]; ok {
		if room[c.userID] == c {
			delete(room, c.userID)
		}
		if len(room) == 0 {
			delete(h.rooms, c.roomID)
		}
	}
}

// JoinRoom moves the user's live connection into roomID. A connection already
// in another room leaves it first, so broadcasts stop routing to the old room
// immediately. The old room sees user_left, the new room user_joined. Returns
// false when the user has no live connection.
func (h *Hub) JoinRoom(userID, roomID string) bool {
	if roomID == "" {
		return false
	}
	h.mu.Lock()
	c, ok := h.byUser[userID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	prev := c.roomID
	if prev == roomID {
		h.mu.Unlock()
		return true
	}
	h.dropFromRoomLocked(c)
	c.roomID = roomID
	room := h.rooms[roomID]
	if room == nil {
		room = map[string]*Client{}
		h.rooms[roomID] = room
	}
	room[userID] = c
	h.mu.Unlock()

	if prev != "" {
		h.BroadcastToRoom(prev, membershipEvent(game.EventUserLeft, userID, prev), userID)
	}
	h.BroadcastToRoom(roomID, membershipEvent(game.EventUserJoined, userID, roomID), userID)
	log.Debug().Str("user_id", userID).Str("room_id", roomID).Msg("ws_room_joined")
	return true
}

// LeaveRoom removes the user's connection from roomID without closing the
// socket. Remaining members see user_left.
func (h *Hub) LeaveRoom(userID, roomID string) bool {
	h.mu.Lock()
	c, ok := h.byUser[userID]
	if !ok || c.roomID != roomID || roomID == "" {
		h.mu.Unlock()
		return false
	}
	h.dropFromRoomLocked(c)
	c.roomID = ""
	h.mu.Unlock()

	h.BroadcastToRoom(roomID, membershipEvent(game.EventUserLeft, userID, roomID), userID)
	log.Debug().Str("user_id", userID).Str("room_id", roomID).Msg("ws_room_left")
	return true
}

// Disconnect closes the user's connection, sending a close frame that carries
// the reason. The room they were in sees user_left.
func (h *Hub) Disconnect(userID, reason string) bool {
	h.mu.Lock()
	c, ok := h.byUser[userID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	prev := c.roomID
	h.removeLocked(c)
	h.mu.Unlock()

	if prev != "" {
		h.BroadcastToRoom(prev, membershipEvent(game.EventUserLeft, userID, prev), userID)
	}
	c.close(reason)
	log.Debug().Str("user_id", userID).Str("reason", reason).Msg("ws_disconnected")
	return true
}

func membershipEvent(typ, userID, roomID string) game.Event {
	return game.Event{Type: typ, Data: map[string]any{"user_id": userID, "room_id": roomID}}
}

// BroadcastToRoom delivers the event to every connection in the room except
// excludeUser and returns the number of deliveries.
func (h *Hub) BroadcastToRoom(roomID string, ev game.Event, excludeUser string) int {
	msg, err := json.Marshal(ev)
	if err != nil {
		return 0
	}

	h.mu.Lock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for userID, c := range h.rooms[roomID] {
		if userID == excludeUser {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
	return len(targets)
}

// SendToUser delivers the event to the user's live connection, or queues it
// (bounded, oldest dropped first) until they reconnect. Returns whether the
// event was delivered live.
func (h *Hub) SendToUser(userID string, ev game.Event) bool {
	msg, err := json.Marshal(ev)
	if err != nil {
		return false
	}

	h.mu.Lock()
	c, online := h.byUser[userID]
	if !online {
		q := h.queues[userID]
		if len(q) >= h.queueCap {
			q = q[1:]
		}
		h.queues[userID] = append(q, msg)
		h.mu.Unlock()
		return false
	}
	h.mu.Unlock()

	c.enqueue(msg)
	return true
}

// Connected reports whether the user has a live connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.byUser[userID]
	return ok
}

// QueuedFor returns the number of events buffered for an offline user.
func (h *Hub) QueuedFor(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queues[userID])
}
