package config

import (
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port           int           `env:"PORT" envDefault:"8080"`
	Env            string        `env:"ENV" envDefault:"development"`
	GinMode        string        `env:"GIN_MODE"`
	PublicURL      string        `env:"PUBLIC_URL"`
	CookieMaxAge   time.Duration `env:"COOKIE_MAX_AGE" envDefault:"2h"`
	StaticCacheAge time.Duration `env:"STATIC_CACHE_AGE" envDefault:"5m"`
	RateLimitRPS   int           `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"10"`
	RateLimiterTTL time.Duration `env:"RATE_LIMITER_TTL" envDefault:"1h"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"3h"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"26214400"`
}

func (c Config) IsProduction() bool {
	return c.GinMode == "release" || c.Env == "production"
}

var (
	conf    Config
	confErr error
	once    sync.Once
)

// Get loads .env (if present) and the environment once per process.
func Get() (Config, error) {
	once.Do(func() {
		_ = godotenv.Load()
		conf, confErr = Parse()
	})
	return conf, confErr
}

// Parse reads the environment without touching .env or the cached value.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
