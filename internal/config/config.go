package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"trivia-room-service/internal/app"
	transport "trivia-room-service/internal/transport/http"
)

const DefaultCORSOrigin = "http://localhost:3000"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Questions QuestionsConfig `yaml:"questions"`
	Game      GameConfig      `yaml:"game"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port            string `yaml:"port" env:"PORT"`
	ShutdownTimeout string `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// CORSOrigins are the browser origins allowed to call the API and open
	// websockets. "*" allows any.
	CORSOrigins []string         `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	RateLimits  RateLimitsConfig `yaml:"rate_limits" envPrefix:"RATE_LIMIT_"`
}

// RateLimitsConfig caps requests per client IP on the busy endpoints.
type RateLimitsConfig struct {
	Create RateLimitConfig `yaml:"create" envPrefix:"CREATE_"`
	Join   RateLimitConfig `yaml:"join" envPrefix:"JOIN_"`
	Answer RateLimitConfig `yaml:"answer" envPrefix:"ANSWER_"`
}

// RateLimitConfig leaves zero fields to the defaults; negative requests
// disable the limit.
type RateLimitConfig struct {
	Requests int    `yaml:"requests" env:"REQUESTS"`
	Window   string `yaml:"window" env:"WINDOW"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	// TTL bounds how long an idle session survives in Redis.
	TTL string `yaml:"ttl" env:"REDIS_TTL"`
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"POSTGRES_URL"`
}

type QuestionsConfig struct {
	// TTL of a cached question pool.
	TTL string `yaml:"ttl" env:"QUESTIONS_TTL"`
}

// GameConfig holds the lifecycle delays as duration strings.
type GameConfig struct {
	RoundBuffer   string `yaml:"round_buffer" env:"GAME_ROUND_BUFFER"`
	ResultsPause  string `yaml:"results_pause" env:"GAME_RESULTS_PAUSE"`
	ResultsWindow string `yaml:"results_window" env:"GAME_RESULTS_WINDOW"`
	SweepInterval string `yaml:"sweep_interval" env:"GAME_SWEEP_INTERVAL"`
	MaxAge        string `yaml:"max_age" env:"GAME_MAX_AGE"`
	FinishedGrace string `yaml:"finished_grace" env:"GAME_FINISHED_GRACE"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
}

// Load reads YAML config from path, then applies environment overrides.
// A missing file leaves every setting to the environment and defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// Timing converts the game section, falling back to app defaults per field.
func (c Config) Timing() app.Timing {
	def := app.DefaultTiming()
	return app.Timing{
		RoundBuffer:   TTLDuration(c.Game.RoundBuffer, def.RoundBuffer),
		ResultsPause:  TTLDuration(c.Game.ResultsPause, def.ResultsPause),
		ResultsWindow: TTLDuration(c.Game.ResultsWindow, def.ResultsWindow),
		SweepInterval: TTLDuration(c.Game.SweepInterval, def.SweepInterval),
		MaxAge:        TTLDuration(c.Game.MaxAge, def.MaxAge),
		FinishedGrace: TTLDuration(c.Game.FinishedGrace, def.FinishedGrace),
	}
}

// AllowedOrigins returns the configured CORS origins or the local frontend.
func (c Config) AllowedOrigins() []string {
	if len(c.Server.CORSOrigins) == 0 {
		return []string{DefaultCORSOrigin}
	}
	return c.Server.CORSOrigins
}

// RateLimits converts the rate limit section, falling back to defaults per
// field.
func (c Config) RateLimits() transport.RateLimits {
	limits := c.Server.RateLimits
	return transport.RateLimits{
		Create: limits.Create.limit(5, 15*time.Minute),
		Join:   limits.Join.limit(10, time.Minute),
		Answer: limits.Answer.limit(100, time.Minute),
	}
}

func (r RateLimitConfig) limit(requests int, window time.Duration) transport.RateLimit {
	switch {
	case r.Requests < 0:
		return transport.RateLimit{}
	case r.Requests > 0:
		requests = r.Requests
	}
	return transport.RateLimit{Requests: requests, Window: TTLDuration(r.Window, window)}
}

// TTLDuration parses a duration string or returns the fallback if it is
// empty, malformed, or not positive.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}
