package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"sdserve/pkg/types"
)

// generateBody mirrors types.GenerateRequest with raw numeric fields so that
// omitted values can be told apart and loosely-typed values coerced.
type generateBody struct {
	Prompt            *string         `json:"prompt"`
	NumInferenceSteps json.RawMessage `json:"num_inference_steps"`
	GuidanceScale     json.RawMessage `json:"guidance_scale"`
}

// fieldError describes a request field that failed coercion.
type fieldError struct {
	field, msg string
}

func (e fieldError) Error() string { return e.field + ": " + e.msg }

// decodeGenerateRequest parses a /generate body. Omitted numeric fields take
// the documented defaults; integers may arrive as integral floats or numeric
// strings and floats as numeric strings. No range checks are applied.
func decodeGenerateRequest(b []byte) (types.GenerateRequest, error) {
	req := types.GenerateRequest{
		NumInferenceSteps: types.DefaultNumInferenceSteps,
		GuidanceScale:     types.DefaultGuidanceScale,
	}
	var body generateBody
	if err := json.Unmarshal(b, &body); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) && ute.Field != "" {
			return req, fieldError{field: ute.Field, msg: "expected " + ute.Type.String()}
		}
		return req, fmt.Errorf("invalid JSON body: %w", err)
	}
	if body.Prompt == nil {
		return req, fieldError{field: "prompt", msg: "field required"}
	}
	req.Prompt = *body.Prompt
	if present(body.NumInferenceSteps) {
		n, err := coerceInt(body.NumInferenceSteps)
		if err != nil {
			return req, fieldError{field: "num_inference_steps", msg: err.Error()}
		}
		req.NumInferenceSteps = n
	}
	if present(body.GuidanceScale) {
		f, err := coerceFloat(body.GuidanceScale)
		if err != nil {
			return req, fieldError{field: "guidance_scale", msg: err.Error()}
		}
		req.GuidanceScale = f
	}
	return req, nil
}

func present(raw json.RawMessage) bool { return len(bytes.TrimSpace(raw)) > 0 }

// number accepts a JSON number or a string holding one.
func number(raw json.RawMessage) (json.Number, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil || n == "" {
		return "", errors.New("expected a number")
	}
	return n, nil
}

func coerceInt(raw json.RawMessage) (int, error) {
	n, err := number(raw)
	if err != nil {
		return 0, errors.New("expected an integer")
	}
	if i, err := n.Int64(); err == nil {
		if i > math.MaxInt32 || i < math.MinInt32 {
			return 0, errors.New("integer out of range")
		}
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, errors.New("expected an integer")
	}
	return int(f), nil
}

func coerceFloat(raw json.RawMessage) (float64, error) {
	n, err := number(raw)
	if err != nil {
		return 0, err
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, errors.New("expected a finite number")
	}
	return f, nil
}
