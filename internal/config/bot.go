package config

import "github.com/caarlos0/env/v11"

type BotConfig struct {
	BaseURL  string `env:"ARENA_URL" envDefault:"http://localhost:8080"`
	Name     string `env:"BOT_NAME" envDefault:"bot"`
	APIKey   string `env:"API_KEY" envDefault:""`
	GameType string `env:"GAME_TYPE" envDefault:"astro-mining"`
	Level    string `env:"LEVEL" envDefault:"bronze"`
	Games    int    `env:"BOT_GAMES" envDefault:"1"`
}

func LoadBot() (BotConfig, error) {
	var cfg BotConfig
	err := env.Parse(&cfg)
	return cfg, err
}
