package httpapi

import (
	"strings"
	"testing"

	"sdserve/pkg/types"
)

func TestDecodeGenerateRequest_Defaults(t *testing.T) {
	got, err := decodeGenerateRequest([]byte(`{"prompt":"a red apple"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := types.GenerateRequest{Prompt: "a red apple", NumInferenceSteps: 50, GuidanceScale: 7.5}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestDecodeGenerateRequest_Coercion(t *testing.T) {
	cases := []struct {
		body     string
		steps    int
		guidance float64
	}{
		{`{"prompt":"p","num_inference_steps":20,"guidance_scale":9}`, 20, 9},
		{`{"prompt":"p","num_inference_steps":20.0}`, 20, 7.5},
		{`{"prompt":"p","num_inference_steps":"30","guidance_scale":"3.5"}`, 30, 3.5},
		{`{"prompt":"p","num_inference_steps":0,"guidance_scale":-1}`, 0, -1},
		{`{"prompt":"p","extra":true}`, 50, 7.5},
	}
	for _, tc := range cases {
		got, err := decodeGenerateRequest([]byte(tc.body))
		if err != nil {
			t.Fatalf("%s: %v", tc.body, err)
		}
		if got.NumInferenceSteps != tc.steps || got.GuidanceScale != tc.guidance {
			t.Fatalf("%s: got %+v", tc.body, got)
		}
	}
}

func TestDecodeGenerateRequest_EmptyPromptAllowed(t *testing.T) {
	got, err := decodeGenerateRequest([]byte(`{"prompt":""}`))
	if err != nil || got.Prompt != "" {
		t.Fatalf("got %+v err=%v", got, err)
	}
}

func TestDecodeGenerateRequest_Errors(t *testing.T) {
	cases := map[string]string{
		`{}`:                                        "prompt: field required",
		`{"prompt":null}`:                           "prompt: field required",
		`{"prompt":true}`:                           "prompt: expected string",
		`{"prompt":"p","num_inference_steps":2.5}`:  "num_inference_steps: expected an integer",
		`{"prompt":"p","num_inference_steps":null}`: "num_inference_steps",
		`{"prompt":"p","num_inference_steps":1e12}`: "num_inference_steps",
		`{"prompt":"p","guidance_scale":"high"}`:    "guidance_scale",
		`{"prompt":"p","guidance_scale":{"v":1}}`:   "guidance_scale",
		`not json`:                                  "invalid JSON body",
	}
	for body, want := range cases {
		_, err := decodeGenerateRequest([]byte(body))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: err=%v want %q", body, err, want)
		}
	}
}
