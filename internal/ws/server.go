package ws

import (
	"context"
	"expvar"
	"net/http"
	"strings"
	"sync"
	"time"

	"agent-arena/internal/apperr"
	"agent-arena/internal/broadcast"
	"agent-arena/internal/game"
	"agent-arena/internal/room"
	"agent-arena/internal/store"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 64
	opTimeout      = 5 * time.Second
)

var (
	metricConnectionsTotal  = expvar.NewInt("ws_connections_total")
	metricConnectionsActive = expvar.NewInt("ws_connections_active")
	metricDroppedTotal      = expvar.NewInt("ws_dropped_messages_total")
	metricActionsTotal      = expvar.NewInt("ws_actions_total")
)

type Auth interface {
	GetAgentByAPIKey(ctx context.Context, apiKey string) (*store.Agent, error)
}

type Rooms interface {
	MarkReady(ctx context.Context, roomID, agentID string) (room.ReadyResult, error)
	SubmitAction(ctx context.Context, agentID, roomID string, a game.Action) (game.Ack, error)
}

type Streams interface {
	Room(roomID string) (*broadcast.EventBuffer, bool)
	Lobby() *broadcast.EventBuffer
}

type Client struct {
	conn *websocket.Conn
	send chan []byte

	mu    sync.Mutex
	agent *store.Agent
	sub   *subscription
}

type subscription struct {
	buf  *broadcast.EventBuffer
	ch   chan broadcast.StreamEvent
	done chan struct{}
}

// Server upgrades connections and bridges them to room streams. Anyone may
// subscribe; ready and action messages need an authenticated agent.
type Server struct {
	auth     Auth
	rooms    Rooms
	streams  Streams
	upgrader websocket.Upgrader
}

func NewServer(auth Auth, rooms Rooms, streams Streams) *Server {
	return &Server{
		auth:     auth,
		rooms:    rooms,
		streams:  streams,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	metricConnectionsTotal.Add(1)
	metricConnectionsActive.Add(1)
	defer metricConnectionsActive.Add(-1)

	c := &Client{conn: conn, send: make(chan []byte, sendBuffer)}
	ctx := r.Context()
	if key := bearerOrQuery(r); key != "" {
		s.authenticate(ctx, c, key)
	}
	go s.writeLoop(c, c.send)
	s.readLoop(ctx, c)
}

func bearerOrQuery(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return r.URL.Query().Get("api_key")
}

func (s *Server) readLoop(ctx context.Context, c *Client) {
	defer func() {
		s.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(ctx, c, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, c *Client, msg []byte) {
	var base inbound
	if err := json.Unmarshal(msg, &base); err != nil {
		c.emit(ActionResult{Type: "error", ProtocolVersion: ProtocolVersion, Error: "invalid_json"})
		return
	}
	switch base.Type {
	case msgAuth:
		var m AuthMessage
		_ = json.Unmarshal(msg, &m)
		s.authenticate(ctx, c, m.APIKey)
	case msgSubscribe:
		var m SubscribeMessage
		_ = json.Unmarshal(msg, &m)
		s.subscribe(c, m)
	case msgUnsubscribe:
		c.stopSubscription()
	case msgReady:
		s.handleReady(ctx, c, msg)
	case msgAction:
		s.handleAction(ctx, c, msg)
	case msgPing:
		c.emit(Pong{Type: "pong", ProtocolVersion: ProtocolVersion, ServerTS: time.Now().UnixMilli()})
	default:
		c.emit(ActionResult{Type: "error", ProtocolVersion: ProtocolVersion, Error: "unknown_message_type"})
	}
}

func (s *Server) authenticate(ctx context.Context, c *Client, apiKey string) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	agent, err := s.auth.GetAgentByAPIKey(opCtx, apiKey)
	if err != nil || apiKey == "" {
		c.emit(AuthResult{Type: "auth_result", ProtocolVersion: ProtocolVersion, Error: "invalid_api_key"})
		return
	}
	c.mu.Lock()
	c.agent = agent
	c.mu.Unlock()
	c.emit(AuthResult{Type: "auth_result", ProtocolVersion: ProtocolVersion, Ok: true, AgentID: agent.ID})
}

func (c *Client) agentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agent == nil {
		return ""
	}
	return c.agent.ID
}

// subscribe replaces any current subscription. Replay follows the same
// subscribe-then-replay order as the SSE handler so nothing is lost.
func (s *Server) subscribe(c *Client, m SubscribeMessage) {
	stream := "lobby"
	buf := s.streams.Lobby()
	if m.RoomID != "" {
		stream = m.RoomID
		var ok bool
		buf, ok = s.streams.Room(m.RoomID)
		if !ok {
			c.emit(SubscribeResult{Type: "subscribe_result", ProtocolVersion: ProtocolVersion, Stream: stream, Error: "room_not_live"})
			return
		}
	}
	c.stopSubscription()

	sub := &subscription{buf: buf, ch: buf.Subscribe(), done: make(chan struct{})}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	c.emit(SubscribeResult{Type: "subscribe_result", ProtocolVersion: ProtocolVersion, Ok: true, Stream: stream})
	sent := map[string]struct{}{}
	for _, ev := range buf.ReplayAfter(m.LastEventID) {
		c.emit(EventMessage{Type: "event", ProtocolVersion: ProtocolVersion, Event: ev})
		sent[ev.EventID] = struct{}{}
	}
	go c.forward(sub, stream, sent)
}

func (c *Client) forward(sub *subscription, stream string, sent map[string]struct{}) {
	for {
		select {
		case <-sub.done:
			return
		case ev, ok := <-sub.ch:
			if !ok {
				c.emit(StreamClosed{Type: "stream_closed", ProtocolVersion: ProtocolVersion, Stream: stream})
				return
			}
			if _, dup := sent[ev.EventID]; dup {
				delete(sent, ev.EventID)
				continue
			}
			c.emit(EventMessage{Type: "event", ProtocolVersion: ProtocolVersion, Event: ev})
		}
	}
}

func (c *Client) stopSubscription() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub == nil {
		return
	}
	close(sub.done)
	sub.buf.Unsubscribe(sub.ch)
}

func (s *Server) handleReady(ctx context.Context, c *Client, msg []byte) {
	var m ReadyMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		c.emit(ActionResult{Type: "ready_result", ProtocolVersion: ProtocolVersion, Error: "invalid_json"})
		return
	}
	agentID := c.agentID()
	if agentID == "" {
		c.emit(ActionResult{Type: "ready_result", ProtocolVersion: ProtocolVersion, RequestID: m.RequestID, Error: "unauthorized"})
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := s.rooms.MarkReady(opCtx, m.RoomID, agentID)
	if err != nil {
		c.emit(errorResult("ready_result", m.RequestID, err))
		return
	}
	c.emit(ActionResult{Type: "ready_result", ProtocolVersion: ProtocolVersion, RequestID: m.RequestID, Ok: true, Started: res.Started})
}

func (s *Server) handleAction(ctx context.Context, c *Client, msg []byte) {
	var m ActionMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		c.emit(ActionResult{Type: "action_result", ProtocolVersion: ProtocolVersion, Error: "invalid_json"})
		return
	}
	if !validRequestID(m.RequestID) {
		c.emit(ActionResult{Type: "action_result", ProtocolVersion: ProtocolVersion, RequestID: m.RequestID, Error: "invalid_request_id"})
		return
	}
	agentID := c.agentID()
	if agentID == "" {
		c.emit(ActionResult{Type: "action_result", ProtocolVersion: ProtocolVersion, RequestID: m.RequestID, Error: "unauthorized"})
		return
	}
	metricActionsTotal.Add(1)
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	ack, err := s.rooms.SubmitAction(opCtx, agentID, m.RoomID, m.Action)
	if err != nil {
		log.Debug().Str("agent_id", agentID).Str("room_id", m.RoomID).Str("action", m.Action.Type).Err(err).Msg("ws action rejected")
		c.emit(errorResult("action_result", m.RequestID, err))
		return
	}
	c.emit(ActionResult{Type: "action_result", ProtocolVersion: ProtocolVersion, RequestID: m.RequestID, Ok: true, Ack: &ack})
}

func errorResult(typ, requestID string, err error) ActionResult {
	return ActionResult{
		Type:            typ,
		ProtocolVersion: ProtocolVersion,
		RequestID:       requestID,
		Error:           apperr.CodeOf(err),
		Reason:          apperr.ReasonOf(err),
	}
}

func (s *Server) writeLoop(c *Client, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) unregister(c *Client) {
	c.stopSubscription()
	c.mu.Lock()
	send := c.send
	c.send = nil
	c.mu.Unlock()
	if send != nil {
		close(send)
	}
}

// emit queues a message without blocking. A slow client loses messages
// rather than stalling the stream it follows.
func (c *Client) emit(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
		metricDroppedTotal.Add(1)
	}
}
