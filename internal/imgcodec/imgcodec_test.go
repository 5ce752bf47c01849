package imgcodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestEncodePNGBase64_ProducesPNG(t *testing.T) {
	s, err := EncodePNGBase64(solid(4, 3, color.RGBA{R: 200, A: 255}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatalf("missing PNG signature: %q", raw[:8])
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Fatalf("bounds=%v", b)
	}
}

func TestEncodePNG_NilImage(t *testing.T) {
	if _, err := EncodePNG(nil); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}

func TestDecodeBase64Image(t *testing.T) {
	s, err := EncodePNGBase64(solid(2, 2, color.White))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cases := []string{s, "data:image/png;base64," + s, "  " + s + "\n"}
	for _, in := range cases {
		img, format, err := DecodeBase64Image(in)
		if err != nil {
			t.Fatalf("decode %q...: %v", in[:10], err)
		}
		if format != "png" || img.Bounds().Dx() != 2 {
			t.Fatalf("format=%s bounds=%v", format, img.Bounds())
		}
	}
}

func TestDecodeBase64Image_Errors(t *testing.T) {
	if _, _, err := DecodeBase64Image(""); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
	if _, _, err := DecodeBase64Image("!!!not-base64"); err == nil {
		t.Fatalf("expected base64 error")
	}
	if _, _, err := DecodeBase64Image(base64.StdEncoding.EncodeToString([]byte("plain text"))); err == nil {
		t.Fatalf("expected image decode error")
	}
}
