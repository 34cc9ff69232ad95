package broadcast

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEventBufferOrderAndReplay(t *testing.T) {
	buf := NewEventBuffer(10)
	ev1 := buf.Append("a", "r1", map[string]any{"n": 1})
	ev2 := buf.Append("b", "r1", map[string]any{"n": 2})
	ev3 := buf.Append("c", "r1", map[string]any{"n": 3})

	if ev1.EventID != "1" || ev2.EventID != "2" || ev3.EventID != "3" {
		t.Fatalf("unexpected event ids: %s %s %s", ev1.EventID, ev2.EventID, ev3.EventID)
	}
	replay := buf.ReplayAfter("1")
	if len(replay) != 2 || replay[0].EventID != "2" || replay[1].EventID != "3" {
		t.Fatalf("unexpected replay: %+v", replay)
	}
	if all := buf.ReplayAfter("garbage"); len(all) != 3 {
		t.Fatalf("expected full replay, got %d", len(all))
	}
}

func TestEventBufferTrimsToMax(t *testing.T) {
	buf := NewEventBuffer(2)
	for i := 0; i < 5; i++ {
		buf.Append("tick", "r1", i)
	}
	replay := buf.ReplayAfter("")
	if len(replay) != 2 || replay[0].EventID != "4" {
		t.Fatalf("unexpected buffer: %+v", replay)
	}
}

func TestSlowWatcherDoesNotBlock(t *testing.T) {
	buf := NewEventBuffer(100)
	ch := buf.Subscribe()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			buf.Append("tick", "r1", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("append blocked on a slow watcher")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected a full watcher channel, got %d", len(ch))
	}
	buf.Close()
	if buf.Append("late", "r1", nil).EventID != "" {
		t.Fatal("append after close should be ignored")
	}
}

func TestHubMirrorsLifecycleToLobby(t *testing.T) {
	h := NewHub(50)
	h.Publish("r1", EventRoomCreated, map[string]string{"room_id": "r1"})
	h.Publish("r1", "game:tick", map[string]int{"tick": 1})
	h.Publish("", "queue:update", nil)

	room, ok := h.Room("r1")
	if !ok {
		t.Fatal("room stream missing")
	}
	if got := len(room.ReplayAfter("")); got != 2 {
		t.Fatalf("room stream: expected 2 events, got %d", got)
	}
	lobby := h.Lobby().ReplayAfter("")
	if len(lobby) != 2 || lobby[0].Event != EventRoomCreated || lobby[1].Event != "queue:update" {
		t.Fatalf("unexpected lobby: %+v", lobby)
	}

	ch := room.Subscribe()
	h.CloseRoom("r1")
	if _, ok := <-ch; ok {
		t.Fatal("watcher channel should be closed")
	}
	if _, ok := h.Room("r1"); ok {
		t.Fatal("room stream should be gone")
	}
}

type recordingPublisher struct {
	events []string
	closed []string
}

func (r *recordingPublisher) Publish(roomID, event string, _ any) {
	r.events = append(r.events, roomID+"/"+event)
}

func (r *recordingPublisher) CloseRoom(roomID string) { r.closed = append(r.closed, roomID) }

func TestFanoutForwardsInOrder(t *testing.T) {
	a, b := &recordingPublisher{}, &recordingPublisher{}
	f := Fanout{a, b, Discard{}}
	f.Publish("r1", "game:tick", nil)
	f.CloseRoom("r1")
	if len(a.events) != 1 || len(b.events) != 1 || b.closed[0] != "r1" {
		t.Fatalf("unexpected fanout: %+v %+v", a, b)
	}
}

func TestWriteSSE(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)
	if err := WriteSSE(rec, StreamEvent{EventID: "7", Event: "game:tick", RoomID: "r1", Data: map[string]int{"tick": 3}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "id: 7\nevent: game:tick\ndata: {") || !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("unexpected frame: %q", body)
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatal("missing content type")
	}
}
