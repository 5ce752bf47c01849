package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sdserve/internal/config"
)

// newLogger builds the process logger from the log_level and log_format settings.
func newLogger(cfg config.Config, w io.Writer) (zerolog.Logger, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	var lvl zerolog.Level
	switch name {
	case "off", "disabled":
		lvl = zerolog.Disabled
	case "":
		lvl = zerolog.InfoLevel
	default:
		var err error
		if lvl, err = zerolog.ParseLevel(name); err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q", cfg.LogLevel)
		}
	}
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "sdserve").Logger(), nil
}
