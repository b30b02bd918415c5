// Package signature validates hand-drawn signatures submitted as image data
// URLs and normalises them for embedding in documents.
package signature

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmpty      = errors.New("signature is empty, please sign before continuing")
	ErrTooSimple  = errors.New("signature is too simple, please sign again")
	ErrUnreadable = errors.New("signature image could not be read, please sign again")
)

// Defaults for Validator.
const (
	DefaultMinBytes  = 1500
	DefaultMinInk    = 40
	DefaultMaxWidth  = 600
	DefaultMaxHeight = 200
	// DefaultMaxPixels bounds the declared size of an uploaded image, which
	// can be far larger than its compressed payload.
	DefaultMaxPixels = 4000 * 2000
)

// Validator checks and normalises signatures. The zero value uses the
// defaults above.
type Validator struct {
	// MinBytes is the smallest accepted decoded image size.
	MinBytes int
	// MinInk is the smallest number of dark pixels.
	MinInk    int
	MaxWidth  int
	MaxHeight int
	// MaxPixels is the largest accepted width x height before decoding.
	MaxPixels int
}

func (v Validator) withDefaults() Validator {
	if v.MinBytes <= 0 {
		v.MinBytes = DefaultMinBytes
	}
	if v.MinInk <= 0 {
		v.MinInk = DefaultMinInk
	}
	if v.MaxWidth <= 0 {
		v.MaxWidth = DefaultMaxWidth
	}
	if v.MaxHeight <= 0 {
		v.MaxHeight = DefaultMaxHeight
	}
	if v.MaxPixels <= 0 {
		v.MaxPixels = DefaultMaxPixels
	}
	return v
}

// Decode splits a data URL into its MIME type and payload.
func Decode(dataURL string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(dataURL), "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: not a data URL", ErrUnreadable)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload", ErrUnreadable)
	}
	mime, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return "", nil, fmt.Errorf("%w: payload must be base64", ErrUnreadable)
	}
	switch mime {
	case "image/png", "image/jpeg", "image/webp":
	default:
		return "", nil, fmt.Errorf("%w: unsupported type %q", ErrUnreadable, mime)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return mime, data, nil
}

// Normalize validates a signature data URL and returns it re-encoded as a PNG
// data URL on a white background, scaled down to fit MaxWidth x MaxHeight.
func (v Validator) Normalize(dataURL string) (string, error) {
	v = v.withDefaults()
	if strings.TrimSpace(dataURL) == "" {
		return "", ErrEmpty
	}
	_, data, err := Decode(dataURL)
	if err != nil {
		return "", err
	}
	if len(data) < v.MinBytes {
		return "", ErrTooSimple
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(v.MaxPixels) {
		return "", fmt.Errorf("%w: image is %dx%d", ErrUnreadable, cfg.Width, cfg.Height)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if inkPixels(src, v.MinInk) < v.MinInk {
		return "", ErrEmpty
	}

	b := src.Bounds()
	w, h := fit(b.Dx(), b.Dy(), v.MaxWidth, v.MaxHeight)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return "", fmt.Errorf("encode signature: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// inkPixels counts visible dark pixels, stopping once limit is reached.
func inkPixels(img image.Image, limit int) int {
	b := img.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A < 128 {
				continue
			}
			lum := (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000
			if lum < 160 {
				n++
				if n >= limit {
					return n
				}
			}
		}
	}
	return n
}

func fit(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	sw := float64(maxW) / float64(w)
	sh := float64(maxH) / float64(h)
	s := sw
	if sh < s {
		s = sh
	}
	nw, nh := int(float64(w)*s), int(float64(h)*s)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
