// Package jobs runs the periodic arena sweeps on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"agent-arena/internal/config"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type QueueSweeper interface {
	Sweep(ctx context.Context) int
	ExpireStale(ctx context.Context) int
}

type RoomSweeper interface {
	Sweep(ctx context.Context)
}

type Scheduler struct {
	cron  *cron.Cron
	queue QueueSweeper
	rooms RoomSweeper
	cfg   config.ArenaConfig
}

func NewScheduler(cfg config.ArenaConfig, queue QueueSweeper, rooms RoomSweeper) *Scheduler {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{cron: c, queue: queue, rooms: rooms, cfg: cfg}
}

// Start registers the sweeps and runs them until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"match_sweep", s.cfg.MatchSweepSpec, s.matchSweep},
		{"room_sweep", s.cfg.SweepSpec, s.roomSweep},
		{"queue_expiry", s.cfg.QueueSweepSpec, s.queueExpiry},
	}
	for _, j := range jobs {
		run := j.run
		if _, err := s.cron.AddFunc(j.spec, func() { run(ctx) }); err != nil {
			return fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
	}
	s.cron.Start()
	log.Info().
		Str("match_sweep", s.cfg.MatchSweepSpec).
		Str("room_sweep", s.cfg.SweepSpec).
		Str("queue_expiry", s.cfg.QueueSweepSpec).
		Msg("scheduler started")
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce runs every sweep immediately, in dependency order.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.queueExpiry(ctx)
	s.matchSweep(ctx)
	s.roomSweep(ctx)
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) matchSweep(ctx context.Context) {
	if n := s.queue.Sweep(ctx); n > 0 {
		log.Debug().Int("rooms", n).Msg("match sweep formed rooms")
	}
}

func (s *Scheduler) roomSweep(ctx context.Context) {
	start := time.Now()
	s.rooms.Sweep(ctx)
	if d := time.Since(start); d > time.Second {
		log.Warn().Dur("elapsed", d).Msg("room sweep slow")
	}
}

func (s *Scheduler) queueExpiry(ctx context.Context) {
	s.queue.ExpireStale(ctx)
}

// cronLogger routes cron's own messages into zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
