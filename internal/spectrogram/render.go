package spectrogram

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// magma colormap stops at t = 0, 1/8, ..., 1.
var magma = [...]color.RGBA{
	{0, 0, 4, 255},
	{28, 16, 68, 255},
	{79, 18, 123, 255},
	{129, 37, 129, 255},
	{181, 54, 122, 255},
	{229, 80, 100, 255},
	{251, 135, 97, 255},
	{254, 194, 135, 255},
	{252, 253, 191, 255},
}

// Magma maps t in [0, 1] onto the magma colormap.
func Magma(t float64) color.RGBA {
	if math.IsNaN(t) || t <= 0 {
		return magma[0]
	}
	if t >= 1 {
		return magma[len(magma)-1]
	}
	pos := t * float64(len(magma)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := magma[i], magma[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*frac))
	}
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}

// Render rasterizes a [mel][frame] decibel matrix with low frequencies at the
// bottom, then scales it to Size x Size without axes or margins.
func (g *Generator) Render(db [][]float64) *image.RGBA {
	size := g.cfg.Size
	dst := image.NewRGBA(image.Rect(0, 0, size, size))

	mels := len(db)
	if mels == 0 || len(db[0]) == 0 {
		draw.Draw(dst, dst.Bounds(), &image.Uniform{C: magma[0]}, image.Point{}, draw.Src)
		return dst
	}
	frames := len(db[0])

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range db {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	span := hi - lo
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) || span < 1e-12 {
		span = 0
	}

	src := image.NewRGBA(image.Rect(0, 0, frames, mels))
	for m, row := range db {
		y := mels - 1 - m
		for x := 0; x < frames && x < len(row); x++ {
			t := 0.0
			v := row[x]
			if span > 0 && !math.IsNaN(v) {
				t = (clamp(v, lo, hi) - lo) / span
			}
			src.SetRGBA(x, y, Magma(t))
		}
	}

	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
