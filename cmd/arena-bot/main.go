package main

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"agent-arena/internal/config"
	"agent-arena/internal/logging"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const roomPollInterval = time.Second

type streamMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Event struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	} `json:"event"`
}

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadBot()
	if err != nil {
		log.Fatal().Err(err).Msg("load bot config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newClient(cfg.BaseURL, cfg.APIKey)
	if c.apiKey == "" {
		reg, err := c.register(ctx, cfg.Name)
		if err != nil {
			log.Fatal().Err(err).Msg("register failed")
		}
		c.apiKey = reg.APIKey
		log.Info().Str("agent_id", reg.AgentID).Int64("balance", reg.Balance).Msg("registered")
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < cfg.Games; i++ {
		if err := playOne(ctx, c, cfg, rnd); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Int("game", i+1).Msg("game failed")
		}
	}
}

func playOne(ctx context.Context, c *client, cfg config.BotConfig, rnd *rand.Rand) error {
	res, err := c.enqueue(ctx, cfg.GameType, cfg.Level)
	if err != nil && !isCode(err, "already_queued") && !isCode(err, "already_in_room") {
		return err
	}
	roomID := res.RoomID
	for roomID == "" {
		v, err := c.myRoom(ctx)
		switch {
		case err == nil:
			roomID = v.RoomID
		case isCode(err, "no_active_room"):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(roomPollInterval):
			}
		default:
			return err
		}
	}
	log.Info().Str("room_id", roomID).Msg("matched")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL(cfg.BaseURL, c.apiKey), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "room_id": roomID}); err != nil {
		return err
	}
	if err := c.ready(ctx, roomID); err != nil && !isCode(err, "already_ready") {
		return err
	}

	seq := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "stream_closed":
			return nil
		case "subscribe_result":
			if msg.Error != "" {
				return errors.New(msg.Error)
			}
			continue
		case "event":
		default:
			continue
		}
		switch msg.Event.Event {
		case "game:tick", "game:started":
			acts, err := c.available(ctx, roomID)
			if err != nil || len(acts.Actions) == 0 {
				continue
			}
			pick := decide(rnd, acts.Actions)
			seq++
			_ = conn.WriteJSON(map[string]any{
				"type":       "action",
				"request_id": "bot_" + strconv.Itoa(seq),
				"room_id":    roomID,
				"action":     pick,
			})
		case "game:ended":
			log.Info().Str("room_id", roomID).RawJSON("result", msg.Event.Data).Msg("game ended")
			return nil
		case "room:cancelled":
			log.Warn().Str("room_id", roomID).Msg("room cancelled")
			return nil
		}
	}
}

// decide mines half the time when it can and otherwise picks any legal action.
func decide(rnd *rand.Rand, actions []actionSpec) actionSpec {
	for _, a := range actions {
		if a.Type == "mine" && rnd.Intn(2) == 0 {
			return a
		}
	}
	return actions[rnd.Intn(len(actions))]
}

func wsURL(base, apiKey string) string {
	u := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws?api_key=" + url.QueryEscape(apiKey)
}
