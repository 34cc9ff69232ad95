// Package game drives pluggable tick-based games. A Game holds the rules;
// the Engine owns timing, pending actions and the end of the match.
package game

import "encoding/json"

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Seat int    `json:"seat"`
}

type Action struct {
	Type   string            `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

func (a Action) Param(key string) string {
	if a.Params == nil {
		return ""
	}
	return a.Params[key]
}

// ActionSpec describes one action that is legal right now.
type ActionSpec struct {
	Type   string            `json:"type"`
	Params map[string]string `json:"params,omitempty"`
	Cost   map[string]int64  `json:"cost,omitempty"`
}

type Standing struct {
	AgentID string `json:"agent_id"`
	Seat    int    `json:"seat"`
	Score   int64  `json:"score"`
}

// Outcome is the result of a finished game. WinnerID is empty on a draw.
type Outcome struct {
	WinnerID  string     `json:"winner_id,omitempty"`
	Draw      bool       `json:"draw"`
	Reason    string     `json:"reason,omitempty"`
	Standings []Standing `json:"standings,omitempty"`
}

// Game is one ruleset. The Engine calls it under its own mutex, so
// implementations need no locking.
type Game interface {
	Setup(players []Player) error
	// Validate checks an action against the current state without applying it.
	Validate(agentID string, a Action) error
	// Apply runs an action at a tick boundary. The state may have moved since
	// Validate, so Apply re-checks.
	Apply(agentID string, a Action) error
	// Advance applies passive effects once per tick.
	Advance(remaining int)
	Terminal() bool
	Outcome() Outcome
	AvailableActions(agentID string) []ActionSpec
	// Snapshot returns an encoded public state that callers may keep.
	Snapshot(remaining int) json.RawMessage
	Log() json.RawMessage
}
