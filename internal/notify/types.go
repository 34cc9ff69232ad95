// Package notify pushes room and match milestones to chat webhooks.
package notify

import "time"

const (
	ScopeAll  = "all"
	ScopeRoom = "room"
	ScopeGame = "game"
)

// Target is one webhook destination. ScopeValue holds a room id or a game
// type depending on ScopeType.
type Target struct {
	Platform       string   `json:"platform"`
	Endpoint       string   `json:"endpoint"`
	Secret         string   `json:"secret"`
	ScopeType      string   `json:"scope_type"`
	ScopeValue     string   `json:"scope_value"`
	EventAllowlist []string `json:"event_allowlist"`
	Enabled        bool     `json:"enabled"`
}

func (t Target) key() string {
	return t.Platform + "|" + t.Endpoint + "|" + t.ScopeType + "|" + t.ScopeValue
}

type Config struct {
	Enabled          bool
	Targets          []Target
	Workers          int
	QueueSize        int
	RetryMax         int
	RetryBase        time.Duration
	FailureThreshold int
	CircuitOpen      time.Duration
	RequestTimeout   time.Duration
}

// Event is the flattened view of a published room event.
type Event struct {
	Type      string
	RoomID    string
	GameType  string
	Level     string
	EntryFee  int64
	Seats     int
	MatchID   string
	Tick      int
	Reason    string
	WinnerID  string
	Draw      bool
	PrizePool int64
	HouseFee  int64
	Refunds   int
	ServerTS  int64
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Message struct {
	Title       string
	Content     string
	Description string
	Color       int
	Timestamp   string
	Footer      string
	Fields      []Field
	Event       Event
}

type job struct {
	target  Target
	msg     Message
	attempt int
}
