package notify

import (
	"fmt"
	"strconv"
	"time"

	"agent-arena/internal/broadcast"
	"agent-arena/internal/game"

	"github.com/goccy/go-json"
)

const (
	colorCreated   = 0x5865F2
	colorWin       = 0x3BA55D
	colorDraw      = 0xFEE75C
	colorCancelled = 0xED4245

	shortIDLimit  = 10
	defaultFooter = "agent-arena"
)

type rawPayload struct {
	RoomID     string            `json:"room_id"`
	GameType   string            `json:"game_type"`
	Level      string            `json:"level"`
	EntryFee   int64             `json:"entry_fee"`
	Seats      []json.RawMessage `json:"seats"`
	MatchID    string            `json:"match_id"`
	Tick       int               `json:"tick"`
	Reason     string            `json:"reason"`
	Refunds    []json.RawMessage `json:"refunds"`
	Settlement *struct {
		WinnerID  string `json:"winner_id"`
		Draw      bool   `json:"draw"`
		PrizePool int64  `json:"prize_pool"`
		HouseFee  int64  `json:"house_fee"`
	} `json:"settlement"`
}

// normalize flattens a published payload through its JSON form, so any
// payload type with the usual room fields is understood.
func normalize(roomID, event string, payload any, ts int64) (Event, bool) {
	switch event {
	case broadcast.EventRoomCreated, broadcast.EventRoomCancelled, game.EventEnded:
	default:
		return Event{}, false
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, false
	}
	var p rawPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Event{}, false
	}
	ev := Event{
		Type:     event,
		RoomID:   roomID,
		GameType: p.GameType,
		Level:    p.Level,
		EntryFee: p.EntryFee,
		Seats:    len(p.Seats),
		MatchID:  p.MatchID,
		Tick:     p.Tick,
		Reason:   p.Reason,
		Refunds:  len(p.Refunds),
		ServerTS: ts,
	}
	if ev.RoomID == "" {
		ev.RoomID = p.RoomID
	}
	if s := p.Settlement; s != nil {
		ev.WinnerID = s.WinnerID
		ev.Draw = s.Draw
		ev.PrizePool = s.PrizePool
		ev.HouseFee = s.HouseFee
	}
	return ev, true
}

func format(ev Event) (Message, bool) {
	room := shortID(fallback(ev.RoomID, "unknown"))
	msg := Message{
		Timestamp: eventTimestamp(ev.ServerTS),
		Footer:    defaultFooter,
		Event:     ev,
	}
	switch ev.Type {
	case broadcast.EventRoomCreated:
		msg.Title = fmt.Sprintf("Room Open · %s · R:%s", fallback(ev.GameType, "game"), room)
		msg.Content = fmt.Sprintf("%d agents matched at %s", ev.Seats, fallback(ev.Level, "-"))
		msg.Description = fmt.Sprintf("%d agents matched, entry fee %d.", ev.Seats, ev.EntryFee)
		msg.Color = colorCreated
		msg.Fields = []Field{
			{Name: "Game", Value: fallback(ev.GameType, "-"), Inline: true},
			{Name: "Level", Value: fallback(ev.Level, "-"), Inline: true},
			{Name: "Entry Fee", Value: strconv.FormatInt(ev.EntryFee, 10), Inline: true},
		}
	case game.EventEnded:
		msg.Title = fmt.Sprintf("Match Over · %s · R:%s", fallback(ev.GameType, "game"), room)
		if ev.Draw || ev.WinnerID == "" {
			msg.Content = "match ended in a draw"
			msg.Description = "Match ended in a draw; stakes returned."
			msg.Color = colorDraw
		} else {
			msg.Content = fmt.Sprintf("%s wins %d", ev.WinnerID, ev.PrizePool)
			msg.Description = fmt.Sprintf("Winner %s takes %d.", ev.WinnerID, ev.PrizePool)
			msg.Color = colorWin
		}
		msg.Fields = []Field{
			{Name: "Match", Value: fallback(ev.MatchID, "-"), Inline: true},
			{Name: "Ticks", Value: strconv.Itoa(ev.Tick), Inline: true},
			{Name: "House Fee", Value: strconv.FormatInt(ev.HouseFee, 10), Inline: true},
		}
		if ev.Reason != "" {
			msg.Fields = append(msg.Fields, Field{Name: "Reason", Value: ev.Reason, Inline: true})
		}
	case broadcast.EventRoomCancelled:
		msg.Title = fmt.Sprintf("Room Cancelled · R:%s", room)
		msg.Content = "room cancelled"
		msg.Description = fmt.Sprintf("Room cancelled, %d refunds issued.", ev.Refunds)
		msg.Color = colorCancelled
		msg.Fields = []Field{{Name: "Reason", Value: fallback(ev.Reason, "-"), Inline: true}}
	default:
		return Message{}, false
	}
	return msg, true
}

func shortID(v string) string {
	if len(v) <= shortIDLimit {
		return v
	}
	return v[:shortIDLimit]
}

func eventTimestamp(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func fallback(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
