package ws

import (
	"agent-arena/internal/broadcast"
	"agent-arena/internal/game"
)

const ProtocolVersion = "1.0"

const maxRequestIDLen = 64

// Inbound message types.
const (
	msgAuth        = "auth"
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgReady       = "ready"
	msgAction      = "action"
	msgPing        = "ping"
)

type inbound struct {
	Type string `json:"type"`
}

type AuthMessage struct {
	Type   string `json:"type"`
	APIKey string `json:"api_key"`
}

// SubscribeMessage follows a room stream, or the lobby when RoomID is empty.
type SubscribeMessage struct {
	Type        string `json:"type"`
	RoomID      string `json:"room_id,omitempty"`
	LastEventID string `json:"last_event_id,omitempty"`
}

type ReadyMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	RoomID    string `json:"room_id"`
}

type ActionMessage struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id"`
	RoomID    string      `json:"room_id"`
	Action    game.Action `json:"action"`
}

type AuthResult struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ok              bool   `json:"ok"`
	AgentID         string `json:"agent_id,omitempty"`
	Error           string `json:"error,omitempty"`
}

type SubscribeResult struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ok              bool   `json:"ok"`
	Stream          string `json:"stream"`
	Error           string `json:"error,omitempty"`
}

type ActionResult struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	RequestID       string    `json:"request_id,omitempty"`
	Ok              bool      `json:"ok"`
	Error           string    `json:"error,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Ack             *game.Ack `json:"ack,omitempty"`
	Started         bool      `json:"started,omitempty"`
}

// EventMessage carries one stream event to the client.
type EventMessage struct {
	Type            string                `json:"type"`
	ProtocolVersion string                `json:"protocol_version"`
	Event           broadcast.StreamEvent `json:"event"`
}

type StreamClosed struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Stream          string `json:"stream"`
}

type Pong struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ServerTS        int64  `json:"server_ts"`
}

func validRequestID(id string) bool {
	return id != "" && len(id) <= maxRequestIDLen
}
