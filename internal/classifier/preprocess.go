package classifier

import (
	"errors"
	"image"

	"golang.org/x/image/draw"
)

// Preprocess describes how an image becomes a model input tensor.
type Preprocess struct {
	Size int        // square input edge in pixels
	Mean [3]float32 // per-channel mean on [0,1] values
	Std  [3]float32 // per-channel std on [0,1] values
}

// DefaultPreprocess uses ImageNet statistics at 224x224.
func DefaultPreprocess() Preprocess {
	return Preprocess{
		Size: 224,
		Mean: [3]float32{0.485, 0.456, 0.406},
		Std:  [3]float32{0.229, 0.224, 0.225},
	}
}

// TensorLen is the number of elements of one NCHW input with batch 1.
func (p Preprocess) TensorLen() int { return 3 * p.Size * p.Size }

// FillCHW resizes img bilinearly to Size x Size and writes normalized RGB
// values in planar (CHW) order into dst, which must hold TensorLen values.
func (p Preprocess) FillCHW(img image.Image, dst []float32) error {
	if img == nil {
		return errors.New("nil image")
	}
	if p.Size <= 0 {
		return errors.New("preprocess size must be positive")
	}
	if len(dst) < p.TensorLen() {
		return errors.New("destination tensor too small")
	}

	resized := image.NewRGBA(image.Rect(0, 0, p.Size, p.Size))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := p.Size * p.Size
	pix := resized.Pix
	for y := 0; y < p.Size; y++ {
		for x := 0; x < p.Size; x++ {
			o := y*resized.Stride + x*4
			i := y*p.Size + x
			r := float32(pix[o]) / 255
			g := float32(pix[o+1]) / 255
			b := float32(pix[o+2]) / 255
			dst[i] = (r - p.Mean[0]) / p.Std[0]
			dst[plane+i] = (g - p.Mean[1]) / p.Std[1]
			dst[2*plane+i] = (b - p.Mean[2]) / p.Std[2]
		}
	}
	return nil
}
