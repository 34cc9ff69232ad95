// Package broadcast delivers room and lobby events to observers. Publishing
// never blocks the caller.
package broadcast

import (
	"strings"
	"sync"
)

const (
	EventRoomCreated     = "room:created"
	EventRoomPlayerReady = "room:player_ready"
	EventRoomCancelled   = "room:cancelled"
	EventRoomClosed      = "room:closed"
)

// Publisher receives every room event. An empty roomID targets the lobby only.
type Publisher interface {
	Publish(roomID, event string, payload any)
	CloseRoom(roomID string)
}

// Hub keeps one replayable stream per room plus a lobby stream. Room
// lifecycle events and game start/end are mirrored to the lobby.
type Hub struct {
	mu    sync.Mutex
	size  int
	rooms map[string]*EventBuffer
	lobby *EventBuffer
}

func NewHub(bufferSize int) *Hub {
	return &Hub{
		size:  bufferSize,
		rooms: map[string]*EventBuffer{},
		lobby: NewEventBuffer(bufferSize),
	}
}

func (h *Hub) Publish(roomID, event string, payload any) {
	metricPublishedTotal.Add(1)
	if roomID != "" {
		h.room(roomID, true).Append(event, roomID, payload)
	}
	if roomID == "" || mirrorToLobby(event) {
		h.lobby.Append(event, roomID, payload)
	}
}

func mirrorToLobby(event string) bool {
	return strings.HasPrefix(event, "room:") || event == "game:started" || event == "game:ended"
}

func (h *Hub) room(roomID string, create bool) *EventBuffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := h.rooms[roomID]
	if buf == nil && create {
		buf = NewEventBuffer(h.size)
		h.rooms[roomID] = buf
		metricRoomStreamsActive.Add(1)
	}
	return buf
}

// Room returns the stream of a live room.
func (h *Hub) Room(roomID string) (*EventBuffer, bool) {
	buf := h.room(roomID, false)
	return buf, buf != nil
}

func (h *Hub) Lobby() *EventBuffer { return h.lobby }

// CloseRoom ends the room stream and disconnects its watchers.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	buf := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()
	if buf != nil {
		buf.Close()
		metricRoomStreamsActive.Add(-1)
	}
}

// Close shuts every stream, the lobby included.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = map[string]*EventBuffer{}
	h.mu.Unlock()
	for _, buf := range rooms {
		buf.Close()
		metricRoomStreamsActive.Add(-1)
	}
	h.lobby.Close()
}

// Fanout forwards to several publishers in order.
type Fanout []Publisher

func (f Fanout) Publish(roomID, event string, payload any) {
	for _, p := range f {
		p.Publish(roomID, event, payload)
	}
}

func (f Fanout) CloseRoom(roomID string) {
	for _, p := range f {
		p.CloseRoom(roomID)
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(string, string, any) {}
func (Discard) CloseRoom(string)            {}
