package facematch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
)

// solidPNG encodes a w x h image filled with c.
func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// gradientPNG encodes a horizontal gray gradient starting at offset.
func gradientPNG(t *testing.T, w, h int, offset uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetGray(x, y, color.Gray{Y: offset + uint8(x)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// descendingPNG encodes a horizontal gray gradient that darkens left to right.
func descendingPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetGray(x, y, color.Gray{Y: uint8(255 - (x*255)/w)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// colorBackend embeds an image as its mean RGB in the first three components.
type colorBackend struct {
	dim    int
	loaded atomic.Bool
	fail   bool
	calls  atomic.Int64
}

func newColorBackend() *colorBackend {
	b := &colorBackend{dim: 128}
	b.loaded.Store(true)
	return b
}

func (b *colorBackend) Load(ctx context.Context) error {
	if b.fail {
		return ErrBackendNotLoaded
	}
	b.loaded.Store(true)
	return nil
}

func (b *colorBackend) Unload() { b.loaded.Store(false) }

func (b *colorBackend) IsLoaded() bool { return b.loaded.Load() }

func (b *colorBackend) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	b.calls.Add(1)
	var rs, gs, bs float64
	bounds := img.Bounds()
	n := float64(bounds.Dx() * bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			rs += float64(r >> 8)
			gs += float64(g >> 8)
			bs += float64(bl >> 8)
		}
	}
	vec := make([]float32, b.dim)
	vec[0] = float32(rs / n)
	vec[1] = float32(gs / n)
	vec[2] = float32(bs / n)
	return vec, nil
}

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
)
