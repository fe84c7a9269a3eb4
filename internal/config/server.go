package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	SessionCacheTTL time.Duration `env:"SESSION_CACHE_TTL" envDefault:"1h"`
	RecoveryWindow  time.Duration `env:"RECOVERY_WINDOW" envDefault:"24h"`

	WSPingInterval  time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	WSQueueCapacity int           `env:"WS_QUEUE_CAPACITY" envDefault:"100"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
