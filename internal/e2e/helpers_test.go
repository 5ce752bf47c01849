package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sdserve/internal/httpapi"
	"sdserve/internal/imgcodec"
	"sdserve/internal/manager"
	"sdserve/internal/pipeline"
)

// backend is an in-process stand-in for an AUTOMATIC1111 server.
type backend struct {
	mu       sync.Mutex
	payloads []map[string]any
	failWith string
	// gate, when non-nil, holds txt2img until closed.
	gate  chan struct{}
	image string
}

func newBackend(t *testing.T) (*backend, *httptest.Server) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.Set(3, 3, color.RGBA{R: 200, A: 255})
	data, err := imgcodec.EncodePNGBase64(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b := &backend{image: data}
	mux := http.NewServeMux()
	mux.HandleFunc("/sdapi/v1/sd-models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"title":"sd15.safetensors [cc6cb27103]","model_name":"sd15","filename":"/m/sd15.safetensors"}]`)
	})
	mux.HandleFunc("/sdapi/v1/options", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "null")
	})
	mux.HandleFunc("/sdapi/v1/txt2img", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		b.mu.Lock()
		b.payloads = append(b.payloads, payload)
		gate, fail := b.gate, b.failWith
		b.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if fail != "" {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "RuntimeError", "errors": fail})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []string{b.image},
			"info":   `{"seed": 987654321}`,
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return b, ts
}

func (b *backend) received() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.payloads...)
}

// newService wires the real pipeline, manager and router against the fake backend.
func newService(t *testing.T, backendURL string, mcfg manager.Config) (*httptest.Server, *manager.Manager) {
	t.Helper()
	pipe, err := pipeline.NewA1111(pipeline.A1111Config{
		BaseURL:  backendURL,
		Model:    "sd15",
		Defaults: pipeline.Params{Width: 512, Height: 512},
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	mcfg.Pipeline = pipe
	mcfg.Logger = zerolog.Nop()
	mgr := manager.New(mcfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(srv.Close)
	return srv, mgr
}

func postJSON(t *testing.T, url, body string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}
