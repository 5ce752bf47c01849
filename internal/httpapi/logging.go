package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger used by the HTTP layer; disabled until set.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "disabled", "":
		return LevelOff
	case "error", "warn":
		return LevelError
	case "info":
		return LevelInfo
	case "debug", "trace":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel applies when the request carries no override.
var defaultLogLevel = parseLevel(os.Getenv("SDSERVE_LOG_LEVEL"))

// SetDefaultLogLevel sets the request log level used without per-request overrides.
func SetDefaultLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// reqLogger returns the HTTP logger annotated with the chi request id.
func reqLogger(r *http.Request) zerolog.Logger {
	c := zlog.With().Str("path", r.URL.Path)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		c = c.Str("request_id", rid)
	}
	return c.Logger()
}
