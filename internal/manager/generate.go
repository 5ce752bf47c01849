package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sdserve/internal/imgcodec"
	"sdserve/internal/pipeline"
	"sdserve/pkg/types"
)

// Generate runs one text-to-image generation and returns the image as base64
// PNG. Request fields are passed to the pipeline as given; defaults for omitted
// fields are applied by the caller when decoding. Pipeline errors are returned
// unchanged so their text reaches the client.
func (m *Manager) Generate(ctx context.Context, req types.GenerateRequest) (Output, error) {
	id := uuid.NewString()
	log := m.log.With().Str("generation_id", id).Logger()

	release, err := m.beginGeneration(ctx)
	if err != nil {
		if IsTooBusy(err) {
			log.Warn().Err(err).Msg("generation rejected")
		}
		return Output{ID: id}, err
	}
	defer release()

	m.total.Add(1)
	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	m.pub.Publish(Event{Name: "generate_start", ID: id, Fields: map[string]any{
		"prompt":              req.Prompt,
		"num_inference_steps": req.NumInferenceSteps,
		"guidance_scale":      req.GuidanceScale,
	}})
	start := time.Now()
	res, err := m.pipe.Generate(ctx, pipeline.Params{
		Prompt:        req.Prompt,
		Steps:         req.NumInferenceSteps,
		GuidanceScale: req.GuidanceScale,
	})
	if err == nil {
		var img string
		img, err = imgcodec.EncodePNGBase64(res.Image)
		if err == nil {
			out := Output{ID: id, Image: img, Seed: res.Seed, Duration: time.Since(start)}
			log.Debug().Int64("seed", out.Seed).Dur("dur", out.Duration).Int("b64_len", len(img)).Msg("generation done")
			m.pub.Publish(Event{Name: "generate_done", ID: id, Fields: map[string]any{
				"seed":        out.Seed,
				"duration_ms": out.Duration.Milliseconds(),
			}})
			return out, nil
		}
		err = fmt.Errorf("encode image: %w", err)
	}

	m.failed.Add(1)
	if ctx.Err() == nil {
		m.setLastError(err)
	}
	log.Error().Err(err).Dur("dur", time.Since(start)).Msg("generation failed")
	m.pub.Publish(Event{Name: "generate_error", ID: id, Fields: map[string]any{"error": err.Error()}})
	return Output{ID: id}, err
}
