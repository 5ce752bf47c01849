package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sdserve/internal/manager"
	"sdserve/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Generate(ctx context.Context, req types.GenerateRequest) (manager.Output, error)
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the HTTP router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{"X-Generation-ID", "X-Seed", "X-Request-Id"},
			MaxAge:         300,
		}))
	}
	// Base64 PNG text compresses well.
	r.Use(middleware.Compress(5, "application/json"))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// @Summary  Welcome message
	// @Produce  json
	// @Success  200 {object} types.WelcomeResponse
	// @Router   / [get]
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.WelcomeResponse{Message: types.WelcomeMessage})
	})

	// @Summary  Generate an image from a text prompt
	// @Accept   json
	// @Produce  json
	// @Param    request body types.GenerateRequest true "Generation parameters"
	// @Success  200 {object} types.GenerateResponse
	// @Failure  413 {object} types.ErrorResponse
	// @Failure  415 {object} types.ErrorResponse
	// @Failure  422 {object} types.ErrorResponse
	// @Failure  429 {object} types.ErrorResponse
	// @Failure  500 {object} types.ErrorResponse
	// @Router   /generate [post]
	r.Post("/generate", generateHandler(svc))

	// @Summary  Service status
	// @Produce  json
	// @Success  200 {object} types.StatusResponse
	// @Router   /status [get]
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func generateHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		b, err := io.ReadAll(r.Body)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeJSONError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		req, err := decodeGenerateRequest(b)
		if err != nil {
			writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		lvl := requestLogLevel(r)
		log := reqLogger(r)
		if lvl >= LevelInfo {
			log.Info().Int("prompt_len", len(req.Prompt)).Int("steps", req.NumInferenceSteps).
				Float64("guidance_scale", req.GuidanceScale).Msg("generate start")
		}
		if lvl >= LevelDebug {
			log.Debug().Str("prompt", req.Prompt).Msg("generate prompt")
		}

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if generateTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, generateTimeout)
			defer tcancel()
		}

		start := time.Now()
		out, err := svc.Generate(ctx, req)
		if err != nil {
			// Client went away; nobody is left to read a response.
			if r.Context().Err() != nil {
				observeGeneration("canceled", time.Since(start))
				if lvl >= LevelInfo {
					log.Info().Str("generation_id", out.ID).Dur("dur", time.Since(start)).Msg("generate canceled by client")
				}
				return
			}
			status := statusFor(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("admission")
				observeGeneration("rejected", time.Since(start))
			} else {
				observeGeneration("error", time.Since(start))
			}
			if out.ID != "" {
				w.Header().Set("X-Generation-ID", out.ID)
			}
			writeJSONError(w, status, err.Error())
			if lvl >= LevelError {
				log.Error().Err(err).Int("status", status).Str("generation_id", out.ID).Dur("dur", time.Since(start)).Msg("generate end")
			}
			return
		}

		observeGeneration("ok", time.Since(start))
		w.Header().Set("X-Generation-ID", out.ID)
		if out.Seed >= 0 {
			w.Header().Set("X-Seed", strconv.FormatInt(out.Seed, 10))
		}
		writeJSON(w, http.StatusOK, types.GenerateResponse{Image: out.Image})
		if lvl >= LevelInfo {
			log.Info().Int("status", http.StatusOK).Str("generation_id", out.ID).Int64("seed", out.Seed).
				Dur("dur", time.Since(start)).Msg("generate end")
		}
	}
}
