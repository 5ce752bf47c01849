package httpapi

import (
	"testing"
	"time"
)

func TestSetMaxBodyBytes(t *testing.T) {
	t.Cleanup(func() { SetMaxBodyBytes(0) })
	SetMaxBodyBytes(123)
	if maxBodyBytes != 123 {
		t.Fatalf("maxBodyBytes=%d", maxBodyBytes)
	}
	SetMaxBodyBytes(-1)
	if maxBodyBytes != defaultMaxBodyBytes {
		t.Fatalf("expected default, got %d", maxBodyBytes)
	}
}

func TestSetGenerateTimeout(t *testing.T) {
	t.Cleanup(func() { SetGenerateTimeout(0) })
	SetGenerateTimeout(time.Second)
	if generateTimeout != time.Second {
		t.Fatalf("generateTimeout=%v", generateTimeout)
	}
	SetGenerateTimeout(-time.Second)
	if generateTimeout != 0 {
		t.Fatalf("negative timeout should disable, got %v", generateTimeout)
	}
}

func TestSetCORSOptions_CopiesSlices(t *testing.T) {
	t.Cleanup(func() { SetCORSOptions(false, nil, nil, nil) })
	origins := []string{"https://a.example"}
	SetCORSOptions(true, origins, []string{"GET"}, nil)
	origins[0] = "mutated"
	if !corsEnabled || corsAllowedOrigins[0] != "https://a.example" {
		t.Fatalf("origins=%v enabled=%v", corsAllowedOrigins, corsEnabled)
	}
}
