package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sdserve/internal/imgcodec"
)

// A1111Config configures a pipeline backed by an AUTOMATIC1111-compatible
// txt2img HTTP API.
type A1111Config struct {
	BaseURL string
	// Model is the checkpoint to select at load time (title or model_name).
	// Empty keeps whatever the backend has loaded.
	Model string
	// Auth is "user:password" for HTTP basic auth (--api-auth on the backend).
	Auth           string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	// Defaults fills server-side parameters the HTTP API does not expose.
	Defaults Params
	Logger   zerolog.Logger
	// HTTPClient overrides the default client; mainly for tests.
	HTTPClient *http.Client
}

// a1111Pipeline implements Pipeline by talking to a running backend over HTTP.
type a1111Pipeline struct {
	baseURL    string
	model      string
	user, pass string
	reqTimeout time.Duration
	defaults   Params
	httpClient *http.Client
	log        zerolog.Logger

	mu     sync.RWMutex
	loaded bool
	title  string
}

// NewA1111 constructs an HTTP-backed pipeline. Load must be called before Generate.
func NewA1111(cfg A1111Config) (Pipeline, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("missing backend url")
	}
	cli := cfg.HTTPClient
	if cli == nil {
		connectTimeout := cfg.ConnectTimeout
		if connectTimeout <= 0 {
			connectTimeout = 10 * time.Second
		}
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		// Deadlines come from the request context; see do().
		cli = &http.Client{Transport: tr, Timeout: 0}
	}
	p := &a1111Pipeline{
		baseURL:    base,
		model:      strings.TrimSpace(cfg.Model),
		reqTimeout: cfg.RequestTimeout,
		defaults:   cfg.Defaults,
		httpClient: cli,
		log:        cfg.Logger.With().Str("component", "pipeline").Str("backend", base).Logger(),
	}
	if cfg.Auth != "" {
		user, pass, ok := strings.Cut(cfg.Auth, ":")
		if !ok {
			return nil, errors.New("backend auth must be user:password")
		}
		p.user, p.pass = user, pass
	}
	return p, nil
}

type sdModel struct {
	Title     string `json:"title"`
	ModelName string `json:"model_name"`
	Filename  string `json:"filename"`
}

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps"`
	CfgScale       float64 `json:"cfg_scale"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	SamplerName    string  `json:"sampler_name,omitempty"`
	Seed           int64   `json:"seed"`
	BatchSize      int     `json:"batch_size"`
	NIter          int     `json:"n_iter"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

type txt2imgInfo struct {
	Seed int64 `json:"seed"`
}

func (p *a1111Pipeline) Info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	model := p.title
	if model == "" {
		model = p.model
	}
	return Info{Backend: p.baseURL, Model: model}
}

// Load verifies the backend answers and selects the configured checkpoint.
func (p *a1111Pipeline) Load(ctx context.Context) error {
	var models []sdModel
	if err := p.do(ctx, http.MethodGet, "/sdapi/v1/sd-models", nil, &models); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	title := ""
	if p.model != "" {
		for _, m := range models {
			if m.Title == p.model || m.ModelName == p.model || m.Filename == p.model {
				title = m.Title
				break
			}
		}
		if title == "" {
			return fmt.Errorf("model %q not found on backend (%d available)", p.model, len(models))
		}
		opts := map[string]any{"sd_model_checkpoint": title}
		if err := p.do(ctx, http.MethodPost, "/sdapi/v1/options", opts, nil); err != nil {
			return fmt.Errorf("select model: %w", err)
		}
	}
	p.mu.Lock()
	p.loaded = true
	p.title = title
	p.mu.Unlock()
	p.log.Info().Str("model", title).Int("available", len(models)).Msg("pipeline loaded")
	return nil
}

func (p *a1111Pipeline) Generate(ctx context.Context, params Params) (Result, error) {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if !loaded {
		return Result{}, ErrNotLoaded
	}
	params = p.withDefaults(params)
	payload := txt2imgRequest{
		Prompt:         params.Prompt,
		NegativePrompt: params.NegativePrompt,
		Steps:          params.Steps,
		CfgScale:       params.GuidanceScale,
		Width:          params.Width,
		Height:         params.Height,
		SamplerName:    params.Sampler,
		Seed:           params.Seed,
		BatchSize:      1,
		NIter:          1,
	}
	var out txt2imgResponse
	if err := p.do(ctx, http.MethodPost, "/sdapi/v1/txt2img", payload, &out); err != nil {
		return Result{}, err
	}
	if len(out.Images) == 0 {
		return Result{}, errors.New("backend returned no images")
	}
	img, format, err := imgcodec.DecodeBase64Image(out.Images[0])
	if err != nil {
		return Result{}, fmt.Errorf("backend image: %w", err)
	}
	seed := int64(-1)
	if out.Info != "" {
		var info txt2imgInfo
		if err := json.Unmarshal([]byte(out.Info), &info); err == nil {
			seed = info.Seed
		} else {
			p.log.Debug().Err(err).Msg("unparseable txt2img info")
		}
	}
	p.log.Debug().Str("format", format).Int64("seed", seed).Msg("txt2img done")
	return Result{Image: img, Seed: seed}, nil
}

// withDefaults fills zero-valued server-side parameters. Steps and guidance
// are always caller-provided and passed through untouched.
func (p *a1111Pipeline) withDefaults(params Params) Params {
	d := p.defaults
	if params.NegativePrompt == "" {
		params.NegativePrompt = d.NegativePrompt
	}
	if params.Width == 0 {
		params.Width = d.Width
	}
	if params.Height == 0 {
		params.Height = d.Height
	}
	if params.Sampler == "" {
		params.Sampler = d.Sampler
	}
	if params.Seed == 0 {
		params.Seed = d.Seed
	}
	if params.Seed == 0 {
		params.Seed = -1
	}
	return params
}

// do performs a JSON round-trip against the backend. A nil out discards the body.
func (p *a1111Pipeline) do(ctx context.Context, method, path string, in, out any) error {
	if p.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.reqTimeout)
		defer cancel()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if p.user != "" {
		req.SetBasicAuth(p.user, p.pass)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &BackendError{Status: resp.Status, StatusCode: resp.StatusCode, Detail: backendDetail(b)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// BackendError reports a non-2xx answer from the backend.
type BackendError struct {
	Status     string
	StatusCode int
	Detail     string
}

func (e *BackendError) Error() string {
	if e.Detail == "" {
		return "backend http error: " + e.Status
	}
	return "backend http error: " + e.Status + ": " + e.Detail
}

// backendDetail extracts a human-readable message from an error body.
func backendDetail(b []byte) string {
	var msg struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
		Errors string `json:"errors"`
	}
	if err := json.Unmarshal(b, &msg); err == nil {
		if s, ok := msg.Detail.(string); ok && s != "" {
			return s
		}
		if msg.Errors != "" {
			return msg.Errors
		}
		if msg.Error != "" {
			return msg.Error
		}
	}
	return strings.TrimSpace(string(b))
}
