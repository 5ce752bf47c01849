// Package imgcodec converts between decoded bitmaps and the base64 PNG text
// carried by the HTTP API.
package imgcodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	// Backends may answer with JPEG or GIF when configured to; register decoders.
	_ "image/gif"
	_ "image/jpeg"
)

// ErrEmptyImage is returned when there is nothing to encode or decode.
var ErrEmptyImage = errors.New("empty image")

var encoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	var buf bytes.Buffer
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNGBase64 encodes img as PNG and returns the standard base64 text.
func EncodePNGBase64(img image.Image) (string, error) {
	b, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeBase64Image decodes base64 image data, tolerating a leading
// "data:image/...;base64," prefix. It returns the image and its format name.
func DecodeBase64Image(s string) (image.Image, string, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	if s == "" {
		return nil, "", ErrEmptyImage
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("base64 decode: %w", err)
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("image decode: %w", err)
	}
	return img, format, nil
}
