package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// newLogger writes human-readable logs to w at the named level.
func newLogger(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), NewConfigError("configure logging", fmt.Sprintf("unknown log level %q", level),
			"Use one of trace, debug, info, warn, error")
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	return zerolog.New(console).Level(lvl).With().Timestamp().Logger(), nil
}
