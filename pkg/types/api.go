package types

// WelcomeMessage is the fixed greeting returned by GET /.
const WelcomeMessage = "Welcome to the Stable Diffusion API! Use the /generate endpoint to generate images."

// Defaults applied when a generate request omits the corresponding field.
const (
	DefaultNumInferenceSteps = 50
	DefaultGuidanceScale     = 7.5
)

// GenerateRequest represents a POST /generate payload.
type GenerateRequest struct {
	// Required text prompt describing the image.
	// example: an astronaut riding a horse on mars
	Prompt string `json:"prompt" example:"an astronaut riding a horse on mars"`
	// Number of denoising steps. Defaults to 50 when omitted.
	// example: 50
	NumInferenceSteps int `json:"num_inference_steps" example:"50"`
	// Classifier-free guidance scale. Defaults to 7.5 when omitted.
	// example: 7.5
	GuidanceScale float64 `json:"guidance_scale" example:"7.5"`
}

// GenerateResponse is returned by POST /generate on success.
type GenerateResponse struct {
	// Base64 (standard encoding) of the PNG-encoded image.
	Image string `json:"image" example:"iVBORw0KGgoAAAANSUhEUgAA..."`
}

// WelcomeResponse is returned by GET /.
type WelcomeResponse struct {
	Message string `json:"message" example:"Welcome to the Stable Diffusion API! Use the /generate endpoint to generate images."`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error text.
	// example: backend http error: 500 Internal Server Error
	Detail string `json:"detail" example:"backend http error: 500 Internal Server Error"`
	// HTTP status code.
	// example: 500
	Code int `json:"code" example:"500"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Pipeline lifecycle state (loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Base URL of the inference backend.
	// example: http://127.0.0.1:7860
	Backend string `json:"backend" example:"http://127.0.0.1:7860"`
	// Checkpoint selected on the backend, if any.
	// example: v1-5-pruned-emaonly.safetensors
	Model string `json:"model,omitempty" example:"v1-5-pruned-emaonly.safetensors"`
	// Generations started since process start.
	// example: 12
	GenerationsTotal uint64 `json:"generations_total" example:"12"`
	// Generations that ended in an error.
	// example: 1
	GenerationsFailed uint64 `json:"generations_failed" example:"1"`
	// Generations currently running.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Requests waiting for admission (only when admission is enabled).
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Maximum queued requests before backpressure (0 = admission disabled).
	// example: 0
	MaxQueueDepth int `json:"max_queue_depth" example:"0"`
	// Last error observed by the service (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
