package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// NotifyConfig controls webhook notifications for room and match events.
type NotifyConfig struct {
	Enabled     bool   `env:"NOTIFY_ENABLED" envDefault:"false"`
	TargetsPath string `env:"NOTIFY_TARGETS_PATH"`
	TargetsJSON string `env:"NOTIFY_TARGETS_JSON"`

	Workers          int           `env:"NOTIFY_WORKERS" envDefault:"2"`
	QueueSize        int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"512"`
	RetryMax         int           `env:"NOTIFY_RETRY_MAX" envDefault:"3"`
	RetryBase        time.Duration `env:"NOTIFY_RETRY_BASE" envDefault:"500ms"`
	FailureThreshold int           `env:"NOTIFY_FAILURE_THRESHOLD" envDefault:"3"`
	CircuitOpen      time.Duration `env:"NOTIFY_CIRCUIT_OPEN" envDefault:"30s"`
	RequestTimeout   time.Duration `env:"NOTIFY_REQUEST_TIMEOUT" envDefault:"5s"`
}

func LoadNotify() (NotifyConfig, error) {
	var cfg NotifyConfig
	err := env.Parse(&cfg)
	return cfg, err
}
