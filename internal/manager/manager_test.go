package manager

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/png"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"sdserve/pkg/types"
)

func TestLoad_SetsReadyOnce(t *testing.T) {
	fp := newFakePipeline()
	m, pub := newTestManager(t, fp, Config{})
	if !m.Ready() {
		t.Fatalf("expected ready after Load")
	}
	if err := m.Load(testCtx(t)); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if fp.loads != 1 {
		t.Fatalf("pipeline loaded %d times, want 1", fp.loads)
	}
	names := strings.Join(pub.Names(), ",")
	if names != "load_start,load_ready" {
		t.Fatalf("events=%s", names)
	}
}

func TestLoad_ErrorState(t *testing.T) {
	fp := newFakePipeline()
	fp.loadErr = errors.New("backend down")
	m := New(Config{Pipeline: fp, Logger: zerolog.Nop()})
	err := m.Load(testCtx(t))
	if err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("expected wrapped load error, got %v", err)
	}
	if m.Ready() {
		t.Fatalf("should not be ready after failed load")
	}
	st := m.Status()
	if st.State != string(StateError) || !strings.Contains(st.LastError, "backend down") {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestLoad_NoPipeline(t *testing.T) {
	m := New(Config{Logger: zerolog.Nop()})
	if err := m.Load(testCtx(t)); err == nil {
		t.Fatalf("expected error without pipeline")
	}
}

func TestGenerate_ReturnsBase64PNG(t *testing.T) {
	fp := newFakePipeline()
	m, pub := newTestManager(t, fp, Config{})
	out, err := m.Generate(testCtx(t), types.GenerateRequest{Prompt: "a fox", NumInferenceSteps: 30, GuidanceScale: 5})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(out.Image)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Fatalf("bounds=%v", img.Bounds())
	}
	if out.ID == "" || out.Seed != 42 {
		t.Fatalf("unexpected output meta: %+v", out)
	}
	got := fp.params()
	if len(got) != 1 || got[0].Prompt != "a fox" || got[0].Steps != 30 || got[0].GuidanceScale != 5 {
		t.Fatalf("pipeline params=%+v", got)
	}
	names := strings.Join(pub.Names(), ",")
	if !strings.HasSuffix(names, "generate_start,generate_done") {
		t.Fatalf("events=%s", names)
	}
	st := m.Status()
	if st.GenerationsTotal != 1 || st.GenerationsFailed != 0 || st.Inflight != 0 {
		t.Fatalf("status=%+v", st)
	}
}

func TestGenerate_PassesValuesThrough(t *testing.T) {
	fp := newFakePipeline()
	m, _ := newTestManager(t, fp, Config{})
	// No range validation: zero and negative values reach the pipeline.
	if _, err := m.Generate(testCtx(t), types.GenerateRequest{Prompt: "", NumInferenceSteps: 0, GuidanceScale: -1}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	p := fp.params()[0]
	if p.Steps != 0 || p.GuidanceScale != -1 {
		t.Fatalf("params altered: %+v", p)
	}
}

func TestGenerate_PipelineErrorSurfaces(t *testing.T) {
	fp := newFakePipeline()
	fp.genErr = errors.New("CUDA out of memory")
	m, pub := newTestManager(t, fp, Config{})
	_, err := m.Generate(testCtx(t), types.GenerateRequest{Prompt: "x", NumInferenceSteps: 1, GuidanceScale: 1})
	if err == nil || err.Error() != "CUDA out of memory" {
		t.Fatalf("expected pipeline error text unchanged, got %v", err)
	}
	st := m.Status()
	if st.GenerationsFailed != 1 || st.LastError != "CUDA out of memory" {
		t.Fatalf("status=%+v", st)
	}
	evts := pub.Events()
	last := evts[len(evts)-1]
	if last.Name != "generate_error" || last.Fields["error"] != "CUDA out of memory" {
		t.Fatalf("last event=%+v", last)
	}
}

func TestGenerate_NilImageIsEncodeError(t *testing.T) {
	fp := newFakePipeline()
	fp.img = nil
	m, _ := newTestManager(t, fp, Config{})
	_, err := m.Generate(testCtx(t), types.GenerateRequest{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "encode image") {
		t.Fatalf("expected encode error, got %v", err)
	}
}

func TestGenerate_CanceledContext(t *testing.T) {
	fp := newFakePipeline()
	m, _ := newTestManager(t, fp, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Generate(ctx, types.GenerateRequest{Prompt: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fp.params()) != 0 {
		t.Fatalf("pipeline should not be called with a canceled context")
	}
}

func TestStatus_ReportsPipelineInfo(t *testing.T) {
	m, _ := newTestManager(t, newFakePipeline(), Config{})
	st := m.Status()
	if st.State != "ready" || st.Backend != "fake://" || st.Model != "fake-model" {
		t.Fatalf("status=%+v", st)
	}
	if st.MaxQueueDepth != 0 || st.ServerTimeUnix == 0 {
		t.Fatalf("status=%+v", st)
	}
}

func TestMultiPublisher_FansOut(t *testing.T) {
	a, b := NewMemoryPublisher(), NewMemoryPublisher()
	MultiPublisher{a, nil, b}.Publish(Event{Name: "x"})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("fan-out failed: a=%d b=%d", len(a.Events()), len(b.Events()))
	}
}

func TestLogPublisher_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf).Level(zerolog.DebugLevel))
	p.Publish(Event{Name: "generate_done", ID: "g1", Fields: map[string]any{"seed": 7}})
	out := buf.String()
	for _, want := range []string{`"event":"generate_done"`, `"generation_id":"g1"`, `"seed":7`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}
