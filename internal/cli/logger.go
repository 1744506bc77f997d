package cli

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"trivia-room-service/internal/config"
)

// newLogger builds the root logger: JSON on stdout, or a console writer when
// log.pretty is set.
func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).With().Timestamp().Str("service", "trivia-room-service").Logger()
}
