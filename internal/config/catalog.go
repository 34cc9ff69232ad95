package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Catalog lists the playable game types and their economic parameters.
type Catalog struct {
	Games map[string]GameSettings `mapstructure:"games"`
}

type GameSettings struct {
	MinPlayers    int              `mapstructure:"min_players"`
	MaxPlayers    int              `mapstructure:"max_players"`
	DurationTicks int              `mapstructure:"duration_ticks"`
	TickRate      time.Duration    `mapstructure:"tick_rate"`
	PrizeRateBPS  int64            `mapstructure:"prize_rate_bps"`
	RatingWindow  int              `mapstructure:"rating_window"`
	MapSize       int              `mapstructure:"map_size"`
	EntryFees     map[string]int64 `mapstructure:"entry_fees"`
}

// LoadCatalog reads an optional YAML catalog. An empty path yields the built-in defaults.
func LoadCatalog(path string) (Catalog, error) {
	v := viper.New()
	setCatalogDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Catalog{}, fmt.Errorf("read game catalog: %w", err)
		}
	}

	var cat Catalog
	if err := v.Unmarshal(&cat); err != nil {
		return Catalog{}, fmt.Errorf("unmarshal game catalog: %w", err)
	}
	for name, g := range cat.Games {
		if g.MinPlayers < 2 || g.MaxPlayers < g.MinPlayers {
			return Catalog{}, fmt.Errorf("game %s: invalid player bounds %d..%d", name, g.MinPlayers, g.MaxPlayers)
		}
		if g.PrizeRateBPS < 0 || g.PrizeRateBPS > 10000 {
			return Catalog{}, fmt.Errorf("game %s: prize_rate_bps out of range", name)
		}
		if len(g.EntryFees) == 0 {
			return Catalog{}, fmt.Errorf("game %s: no entry fees", name)
		}
	}
	return cat, nil
}

func setCatalogDefaults(v *viper.Viper) {
	v.SetDefault("games.astro-mining.min_players", 2)
	v.SetDefault("games.astro-mining.max_players", 4)
	v.SetDefault("games.astro-mining.duration_ticks", 600)
	v.SetDefault("games.astro-mining.tick_rate", "1s")
	v.SetDefault("games.astro-mining.prize_rate_bps", 9500)
	v.SetDefault("games.astro-mining.rating_window", 200)
	v.SetDefault("games.astro-mining.map_size", 10)
	v.SetDefault("games.astro-mining.entry_fees", map[string]int64{
		"bronze":  100,
		"silver":  500,
		"gold":    2000,
		"diamond": 10000,
	})
}
