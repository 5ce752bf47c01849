package httpapi

import "time"

const defaultMaxBodyBytes int64 = 1 << 20

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes = defaultMaxBodyBytes

// SetMaxBodyBytes configures the maximum request body size (<=0 restores 1 MiB).
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
		return
	}
	maxBodyBytes = n
}

// generateTimeout bounds a single /generate call. Zero means no additional
// timeout beyond server/connection timeouts and the backend's own.
var generateTimeout time.Duration

// SetGenerateTimeout sets the per-request generation timeout (<=0 disables).
func SetGenerateTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	generateTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
