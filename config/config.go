package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, parsed from the environment.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	RedisURL    string `env:"REDIS_URL"`
	Port        int    `env:"PORT" envDefault:"8080"`

	InvitationTTL    time.Duration `env:"INVITATION_TTL" envDefault:"168h"`
	MaxResubmissions int           `env:"MAX_RESUBMISSIONS" envDefault:"3"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	SweepConcurrency int           `env:"SWEEP_CONCURRENCY" envDefault:"4"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}
