package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	appagent "agent-arena/internal/app/agent"
	apppublic "agent-arena/internal/app/public"
	"agent-arena/internal/broadcast"
	"agent-arena/internal/config"
	"agent-arena/internal/game"
	"agent-arena/internal/game/astromining"
	"agent-arena/internal/jobs"
	"agent-arena/internal/ledger"
	"agent-arena/internal/logging"
	"agent-arena/internal/matchmaking"
	"agent-arena/internal/mcpserver"
	"agent-arena/internal/notify"
	"agent-arena/internal/room"
	"agent-arena/internal/session"
	"agent-arena/internal/store"
	httptransport "agent-arena/internal/transport/http"
	"agent-arena/internal/ws"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var version = "dev"

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	logging.Init(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.AppConfig) error {
	st, err := store.New(cfg.Server.PostgresDSN)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		return err
	}

	games, err := buildGames(cfg.Catalog)
	if err != nil {
		return err
	}

	led := ledger.New(st, cfg.Arena)
	sessions := session.NewRegistry()
	hub := broadcast.NewHub(cfg.Arena.EventBufferSize)

	fanout := broadcast.Fanout{hub}
	var snapshots httptransport.SnapshotSource
	if cfg.Server.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Server.RedisAddr,
			Password: cfg.Server.RedisPassword,
			DB:       cfg.Server.RedisDB,
		})
		defer rdb.Close()
		sink := broadcast.NewRedisSink(rdb, broadcast.RedisSinkConfig{
			QueueSize: cfg.Arena.BroadcastQueueSize,
			Workers:   cfg.Arena.BroadcastWorkers,
		})
		sinkCtx, stopSink := context.WithCancel(context.Background())
		sink.Start(sinkCtx)
		defer func() {
			stopSink()
			sink.Wait()
		}()
		fanout = append(fanout, sink)
		snapshots = sink
		log.Info().Str("addr", cfg.Server.RedisAddr).Msg("redis broadcast enabled")
	}

	notifyCfg, err := notify.ConfigFrom(cfg.Notify)
	if err != nil {
		return err
	}
	if notifyCfg.Enabled {
		notifier := notify.New(notifyCfg)
		notifyCtx, stopNotify := context.WithCancel(context.Background())
		notifier.Start(notifyCtx)
		defer func() {
			stopNotify()
			notifier.Wait()
		}()
		fanout = append(fanout, notifier)
	}
	var pub broadcast.Publisher = fanout

	rooms := room.NewManager(st, led, sessions, pub, room.Config{
		ReadyTimeout: cfg.Arena.RoomReadyTimeout,
		Retention:    cfg.Arena.RoomRetention,
		CacheSize:    cfg.Arena.RoomCacheSize,
		Policy:       room.PolicyByName(cfg.Arena.RatingPolicy, cfg.Arena.EloK),
	})
	recovered, err := rooms.Recover(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		log.Warn().Int("rooms", recovered).Msg("resolved rooms left over from the previous run")
	}

	queue := matchmaking.NewService(games, st, rooms, sessions, matchmaking.Config{QueueTTL: cfg.Arena.QueueTTL})
	agentSvc := appagent.NewService(st, led, cfg.Server.InitialBalance, cfg.Arena.DailyRewardBase)
	publicSvc := apppublic.NewService(st, games)

	sched := jobs.NewScheduler(cfg.Arena, queue, rooms)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	mcp := mcpserver.New(mcpserver.Deps{
		Auth:   st,
		Agents: agentSvc,
		Public: publicSvc,
		Queue:  queue,
		Rooms:  rooms,
	}, version)

	r := httptransport.NewRouter(httptransport.Deps{
		DB:        st,
		Auth:      st,
		Agents:    agentSvc,
		Public:    publicSvc,
		Queue:     queue,
		Rooms:     rooms,
		Streams:   hub,
		Snapshots: snapshots,
		MCP:       mcp.Handler(),
		WS:        ws.NewServer(st, rooms, hub),
		AdminKey:  cfg.Server.AdminAPIKey,
	})
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Str("version", version).Msg("http listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sched.Stop()
	// Rooms first so their final events still reach live streams.
	if err := rooms.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("rooms did not finish before the deadline")
	}
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	return nil
}

// buildGames registers every catalog entry that has an implementation.
func buildGames(cat config.Catalog) (*game.Registry, error) {
	reg := game.NewRegistry()
	names := make([]string, 0, len(cat.Games))
	for name := range cat.Games {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch name {
		case astromining.Type:
			if err := reg.Register(astromining.Definition(cat.Games[name])); err != nil {
				return nil, err
			}
		default:
			log.Warn().Str("game_type", name).Msg("catalog entry has no implementation; skipped")
		}
	}
	if len(reg.Definitions()) == 0 {
		return nil, errors.New("game catalog has no playable games")
	}
	return reg, nil
}
