// Package signaturetest builds signature images for tests.
package signaturetest

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
)

// Valid returns a PNG data URL of a scribbled signature that passes the
// default validator.
func Valid() string {
	rng := rand.New(rand.NewSource(7))
	img := canvas(400, 150)
	for x := 20; x < 380; x++ {
		y := 75 + int(35*math.Sin(float64(x)/18))
		for dy := -2; dy <= 2; dy++ {
			shade := uint8(rng.Intn(60))
			img.Set(x, y+dy, color.RGBA{shade, shade, shade + 40, 255})
		}
	}
	// pen pressure noise keeps the image above the minimum size
	for y := 100; y < 140; y++ {
		for x := 40; x < 200; x++ {
			if rng.Intn(3) == 0 {
				v := uint8(rng.Intn(90))
				img.Set(x, y, color.RGBA{v, v, uint8(rng.Intn(256)), 255})
			}
		}
	}
	return encode(img)
}

// Blank returns a large image with no ink on it.
func Blank() string {
	rng := rand.New(rand.NewSource(11))
	img := canvas(400, 150)
	for y := 0; y < 150; y++ {
		for x := 0; x < 400; x++ {
			v := uint8(220 + rng.Intn(36))
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return encode(img)
}

// Tiny returns a valid but very small signature image.
func Tiny() string {
	img := canvas(8, 8)
	for i := 0; i < 8; i++ {
		img.Set(i, i, color.Black)
	}
	return encode(img)
}

// Oversized returns a two-colour image of the given size with a short
// stroke. The PNG stays small however large the declared canvas is.
func Oversized(w, h int) string {
	img := image.NewPaletted(image.Rect(0, 0, w, h), color.Palette{color.White, color.Black})
	for x := 10; x < 200 && x < w; x++ {
		for y := 10; y < 14 && y < h; y++ {
			img.SetColorIndex(x, y, 1)
		}
	}
	return encode(img)
}

func canvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func encode(img image.Image) string {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
