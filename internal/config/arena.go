package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// ArenaConfig tunes the matchmaking and room lifecycle.
type ArenaConfig struct {
	QueueTTL         time.Duration `env:"QUEUE_TTL" envDefault:"10m"`
	RoomReadyTimeout time.Duration `env:"ROOM_READY_TIMEOUT" envDefault:"2m"`
	RoomRetention    time.Duration `env:"ROOM_RETENTION" envDefault:"5m"`
	RoomCacheSize    int           `env:"ROOM_CACHE_SIZE" envDefault:"1024"`

	MatchSweepSpec string `env:"MATCH_SWEEP_SPEC" envDefault:"@every 2s"`
	SweepSpec      string `env:"SWEEP_SPEC" envDefault:"@every 5s"`
	QueueSweepSpec string `env:"QUEUE_SWEEP_SPEC" envDefault:"@every 30s"`

	RatingPolicy string `env:"RATING_POLICY" envDefault:"elo"`
	EloK         int    `env:"ELO_K" envDefault:"32"`

	DailyRewardBase  int64  `env:"DAILY_REWARD_BASE" envDefault:"500"`
	DailyStreakBonus int64  `env:"DAILY_STREAK_BONUS" envDefault:"500"`
	DailyRewardTZ    string `env:"DAILY_REWARD_TZ" envDefault:"UTC"`

	BroadcastQueueSize int `env:"BROADCAST_QUEUE_SIZE" envDefault:"1024"`
	BroadcastWorkers   int `env:"BROADCAST_WORKERS" envDefault:"2"`
	EventBufferSize    int `env:"EVENT_BUFFER_SIZE" envDefault:"500"`
}

func LoadArena() (ArenaConfig, error) {
	var cfg ArenaConfig
	err := env.Parse(&cfg)
	return cfg, err
}

// Location resolves DailyRewardTZ, falling back to UTC.
func (c ArenaConfig) Location() *time.Location {
	if c.DailyRewardTZ == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.DailyRewardTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
