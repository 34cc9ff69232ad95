package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"agent-arena/internal/apperr"

	"github.com/rs/zerolog/log"
)

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusEnded   Status = "ended"
)

const (
	EventStarted        = "game:started"
	EventTick           = "game:tick"
	EventActionRejected = "game:action_rejected"
	EventEnded          = "game:ended"
)

const eventQueueSize = 64

type Event struct {
	Name    string
	Tick    int
	Payload any
}

type StartedPayload struct {
	RoomID        string          `json:"room_id"`
	Players       []Player        `json:"players"`
	DurationTicks int             `json:"duration_ticks"`
	TickRateMS    int64           `json:"tick_rate_ms"`
	State         json.RawMessage `json:"state"`
}

type TickPayload struct {
	RoomID    string          `json:"room_id"`
	Tick      int             `json:"tick"`
	Remaining int             `json:"remaining"`
	State     json.RawMessage `json:"state"`
}

type RejectedPayload struct {
	RoomID  string `json:"room_id"`
	AgentID string `json:"agent_id"`
	Action  Action `json:"action"`
	Reason  string `json:"reason"`
}

type EndedPayload struct {
	RoomID  string          `json:"room_id"`
	Tick    int             `json:"tick"`
	Outcome Outcome         `json:"outcome"`
	State   json.RawMessage `json:"state"`
}

// Ack confirms that an action is pending for the next tick. Replaced is set
// when it overwrote an earlier pending action.
type Ack struct {
	Accepted bool `json:"accepted"`
	Replaced bool `json:"replaced"`
	Tick     int  `json:"tick"`
}

type Config struct {
	RoomID        string
	Players       []Player
	DurationTicks int
	TickRate      time.Duration
}

// Engine runs one Game. Events are delivered in order on Events(), which is
// closed after the final game:ended event.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	game      Game
	seats     map[string]int
	status    Status
	gen       uint64
	tick      int
	remaining int
	pending   map[string]Action
	snapshot  json.RawMessage
	outcome   *Outcome
	startedAt time.Time
	endedAt   time.Time
	dropped   int

	events chan Event
	stop   chan struct{}
}

func NewEngine(cfg Config, g Game) *Engine {
	seats := make(map[string]int, len(cfg.Players))
	for i := range cfg.Players {
		cfg.Players[i].Seat = i
		seats[cfg.Players[i].ID] = i
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = time.Second
	}
	return &Engine{
		cfg:       cfg,
		game:      g,
		seats:     seats,
		status:    StatusWaiting,
		remaining: cfg.DurationTicks,
		pending:   map[string]Action{},
		events:    make(chan Event, eventQueueSize),
		stop:      make(chan struct{}),
	}
}

func (e *Engine) Events() <-chan Event { return e.events }

// Start sets the game up and launches the tick driver.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.status != StatusWaiting {
		e.mu.Unlock()
		return apperr.ErrAlreadyStarted
	}
	if err := e.game.Setup(append([]Player(nil), e.cfg.Players...)); err != nil {
		e.mu.Unlock()
		return apperr.Internal(err, "game setup")
	}
	e.status = StatusPlaying
	e.gen++
	gen := e.gen
	e.startedAt = time.Now()
	e.snapshot = e.game.Snapshot(e.remaining)
	started := Event{Name: EventStarted, Payload: StartedPayload{
		RoomID:        e.cfg.RoomID,
		Players:       append([]Player(nil), e.cfg.Players...),
		DurationTicks: e.cfg.DurationTicks,
		TickRateMS:    e.cfg.TickRate.Milliseconds(),
		State:         e.snapshot,
	}}
	e.events <- started
	e.mu.Unlock()

	go e.run(gen)
	return nil
}

func (e *Engine) run(gen uint64) {
	ticker := time.NewTicker(e.cfg.TickRate)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			e.finish()
			return
		case <-ticker.C:
			e.step(gen)
		}
	}
}

// step advances one tick. A stale generation is a no-op.
func (e *Engine) step(gen uint64) {
	e.mu.Lock()
	if e.status != StatusPlaying || gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.tick++
	e.remaining--
	var out []Event
	for _, p := range e.cfg.Players {
		a, ok := e.pending[p.ID]
		if !ok {
			continue
		}
		delete(e.pending, p.ID)
		if err := e.safeApply(p.ID, a); err != nil {
			out = append(out, Event{Name: EventActionRejected, Tick: e.tick, Payload: RejectedPayload{
				RoomID:  e.cfg.RoomID,
				AgentID: p.ID,
				Action:  a,
				Reason:  err.Error(),
			}})
		}
	}
	e.safeAdvance()
	e.snapshot = e.game.Snapshot(e.remaining)
	out = append(out, Event{Name: EventTick, Tick: e.tick, Payload: TickPayload{
		RoomID:    e.cfg.RoomID,
		Tick:      e.tick,
		Remaining: e.remaining,
		State:     e.snapshot,
	}})
	if e.remaining <= 0 || e.game.Terminal() {
		e.endLocked(e.game.Outcome())
	}
	for _, ev := range out {
		e.trySend(ev)
	}
	e.mu.Unlock()
}

func (e *Engine) safeApply(agentID string, a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("room_id", e.cfg.RoomID).Str("agent_id", agentID).Interface("panic", r).Msg("game apply panicked")
			err = fmt.Errorf("internal game error")
		}
	}()
	return e.game.Apply(agentID, a)
}

func (e *Engine) safeAdvance() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("room_id", e.cfg.RoomID).Interface("panic", r).Msg("game advance panicked")
		}
	}()
	e.game.Advance(e.remaining)
}

// trySend never blocks the tick; a full queue drops the event.
func (e *Engine) trySend(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.dropped++
		log.Warn().Str("room_id", e.cfg.RoomID).Str("event", ev.Name).Int("tick", ev.Tick).Msg("engine event dropped")
	}
}

func (e *Engine) endLocked(o Outcome) {
	if e.status == StatusEnded {
		return
	}
	e.status = StatusEnded
	e.outcome = &o
	e.endedAt = time.Now()
	e.gen++
	e.pending = map[string]Action{}
	close(e.stop)
}

func (e *Engine) endedEvent() Event {
	return Event{Name: EventEnded, Tick: e.tick, Payload: EndedPayload{
		RoomID:  e.cfg.RoomID,
		Tick:    e.tick,
		Outcome: *e.outcome,
		State:   e.snapshot,
	}}
}

// finish delivers game:ended and closes the event channel. Only the tick
// driver calls it, so the close happens once.
func (e *Engine) finish() {
	e.mu.Lock()
	ev := e.endedEvent()
	e.mu.Unlock()
	e.events <- ev
	close(e.events)
}

// Abort ends the game as a draw. A game that never started closes its
// channel immediately.
func (e *Engine) Abort(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	draw := Outcome{Draw: true, Reason: reason}
	switch e.status {
	case StatusEnded:
		return
	case StatusWaiting:
		e.status = StatusEnded
		e.outcome = &draw
		e.endedAt = time.Now()
		close(e.stop)
		e.events <- e.endedEvent()
		close(e.events)
	default:
		e.endLocked(draw)
	}
}

// ProcessAction validates against the current state and parks the action in
// the agent's pending slot. Last submit wins.
func (e *Engine) ProcessAction(agentID string, a Action) (Ack, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.seats[agentID]; !ok {
		return Ack{}, apperr.ErrNotInRoom
	}
	if e.status != StatusPlaying {
		return Ack{}, apperr.ErrGameNotPlaying
	}
	if a.Type == "" {
		return Ack{}, apperr.ErrInvalidAction.WithReason("action type is required")
	}
	if err := e.safeValidate(agentID, a); err != nil {
		return Ack{}, apperr.ErrInvalidAction.WithReason(err.Error())
	}
	_, replaced := e.pending[agentID]
	e.pending[agentID] = a
	return Ack{Accepted: true, Replaced: replaced, Tick: e.tick + 1}, nil
}

func (e *Engine) safeValidate(agentID string, a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("room_id", e.cfg.RoomID).Interface("panic", r).Msg("game validate panicked")
			err = errors.New("internal game error")
		}
	}()
	return e.game.Validate(agentID, a)
}

func (e *Engine) AvailableActions(agentID string) ([]ActionSpec, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.seats[agentID]; !ok {
		return nil, apperr.ErrNotInRoom
	}
	if e.status != StatusPlaying {
		return nil, apperr.ErrGameNotPlaying
	}
	specs := e.game.AvailableActions(agentID)
	if specs == nil {
		specs = []ActionSpec{}
	}
	return specs, nil
}

// PublicState returns the snapshot taken at the last tick boundary.
func (e *Engine) PublicState() json.RawMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

func (e *Engine) Log() json.RawMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.game.Log()
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) Outcome() (Outcome, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.outcome == nil {
		return Outcome{}, false
	}
	return *e.outcome, true
}

// Progress reports the tick counter and the ticks left.
func (e *Engine) Progress() (tick, remaining int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick, e.remaining
}

func (e *Engine) StartedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startedAt
}
