package httptransport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"agent-arena/internal/broadcast"
	"agent-arena/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

var ssePingInterval = 15 * time.Second

const (
	eventRoomSnapshot = "room:snapshot"
	eventGameLatest   = "game:latest"
)

type StreamSource interface {
	Room(roomID string) (*broadcast.EventBuffer, bool)
	Lobby() *broadcast.EventBuffer
}

// SnapshotSource returns the last game event envelope mirrored to Redis,
// including rooms hosted by another instance.
type SnapshotSource interface {
	LastSnapshot(ctx context.Context, roomID string) (json.RawMessage, error)
}

// RoomEventsHandler streams a live room with Last-Event-ID replay. A room
// that is not live here gets a single snapshot event, followed by the latest
// mirrored game event when one exists.
func RoomEventsHandler(hub StreamSource, rooms Rooms, snaps SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		if buf, ok := hub.Room(roomID); ok {
			serveStream(w, r, buf, roomID)
			return
		}
		v, err := rooms.GetRoomState(r.Context(), roomID)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		broadcast.SetSSEHeaders(w)
		_ = broadcast.WriteSSE(w, broadcast.StreamEvent{
			Event:    eventRoomSnapshot,
			RoomID:   roomID,
			ServerTS: time.Now().UnixMilli(),
			Data:     v,
		})
		if snaps != nil && v.Status == store.RoomPlaying {
			raw, err := snaps.LastSnapshot(r.Context(), roomID)
			switch {
			case err == nil:
				_ = broadcast.WriteSSE(w, broadcast.StreamEvent{
					Event:    eventGameLatest,
					RoomID:   roomID,
					ServerTS: time.Now().UnixMilli(),
					Data:     raw,
				})
			case !errors.Is(err, broadcast.ErrNoSnapshot):
				log.Warn().Err(err).Str("room_id", roomID).Msg("read mirrored snapshot failed")
			}
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func LobbyEventsHandler(hub StreamSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveStream(w, r, hub.Lobby(), "lobby")
	}
}

func serveStream(w http.ResponseWriter, r *http.Request, buf *broadcast.EventBuffer, stream string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteHTTPError(w, http.StatusInternalServerError, "stream_not_supported")
		return
	}

	metricSSEConnectionsTotal.Add(1)
	metricSSEConnectionsActive.Add(1)
	defer metricSSEConnectionsActive.Add(-1)

	broadcast.SetSSEHeaders(w)
	reqID := chimw.GetReqID(r.Context())
	log.Info().Str("request_id", reqID).Str("stream", stream).Msg("sse stream opened")

	// Subscribe before replay so nothing published in between is lost; the
	// replayed ids filter the duplicates.
	ch := buf.Subscribe()
	defer buf.Unsubscribe(ch)

	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = r.URL.Query().Get("last_event_id")
	}
	sent := map[string]struct{}{}
	for _, ev := range buf.ReplayAfter(lastID) {
		if err := broadcast.WriteSSE(w, ev); err != nil {
			return
		}
		sent[ev.EventID] = struct{}{}
	}
	flusher.Flush()

	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			log.Info().Str("request_id", reqID).Str("stream", stream).Err(r.Context().Err()).Msg("sse stream closed")
			return
		case ev, ok := <-ch:
			if !ok {
				log.Info().Str("request_id", reqID).Str("stream", stream).Msg("sse stream ended")
				return
			}
			if _, dup := sent[ev.EventID]; dup {
				delete(sent, ev.EventID)
				continue
			}
			if err := broadcast.WriteSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			now := time.Now().UnixMilli()
			ping := broadcast.StreamEvent{Event: "ping", ServerTS: now, Data: map[string]any{"ts": now}}
			if err := broadcast.WriteSSE(w, ping); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
