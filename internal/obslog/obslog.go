// Package obslog configures the process-global zerolog logger, the
// logging idiom used throughout the pack (src/internal/config.go's
// log.Info()/log.Fatal() against the global github.com/rs/zerolog/log
// logger, and internal/application/executor/node_executors.go's
// log.Debug() calls during cell execution).
package obslog

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger: level parsed from
// levelName (falling back to info on an unrecognized value), console
// writer when pretty is true (local development), structured JSON
// otherwise (production/container deployment).
func Setup(levelName string, pretty bool) {
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
