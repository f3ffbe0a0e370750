// Package logging sets up zerolog (ConsoleWriter in dev, RFC3339
// timestamps) and adds region/venue scoped child loggers, since every other
// component (session, pipeline, retry, restpoll) takes a zerolog.Logger
// already carrying exchange/region/symbol fields.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Env selects the base writer: Dev gets a human-readable console writer,
// Prod writes newline-delimited JSON suitable for log shipping, and Auto
// picks between the two by checking whether stderr is an attached TTY.
type Env string

const (
	Dev  Env = "dev"
	Prod Env = "prod"
	Auto Env = "auto"
)

// New builds the root logger for the gateway process. Auto is resolved via
// golang.org/x/term.IsTerminal on stderr's file descriptor.
func New(env Env, level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == Auto {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			env = Dev
		} else {
			env = Prod
		}
	}
	var base zerolog.Logger
	if env == Prod {
		base = zerolog.New(os.Stderr)
	} else {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return base.Level(level).With().Timestamp().Logger()
}

// ForVenue returns a child logger tagged with the region/exchange/transport
// that every component attaches to its log lines, so every error/warn line
// names the offending venue.
func ForVenue(base zerolog.Logger, region, exchange, transport string) zerolog.Logger {
	return base.With().
		Str("region", region).
		Str("exchange", exchange).
		Str("transport", transport).
		Logger()
}

// ParseLevel maps a config/CLI string to a zerolog.Level, defaulting to Info
// on an empty or unrecognized value rather than failing startup over a log
// verbosity typo.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
