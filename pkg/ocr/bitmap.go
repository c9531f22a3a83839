package ocr

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Channels describes the pixel layout held by a Bitmap.
type Channels int

const (
	Gray  Channels = 1
	Color Channels = 3
)

func (c Channels) String() string {
	if c == Gray {
		return "gray"
	}
	return "color"
}

// Bitmap is the in-memory image handed between pipeline stages. Stages never
// mutate a Bitmap they receive; they return a new one.
type Bitmap struct {
	Image    image.Image
	Channels Channels
}

// NewGrayBitmap wraps a single-channel image.
func NewGrayBitmap(g *image.Gray) *Bitmap {
	return &Bitmap{Image: g, Channels: Gray}
}

// NewColorBitmap wraps a 3-channel image.
func NewColorBitmap(img *image.NRGBA) *Bitmap {
	return &Bitmap{Image: img, Channels: Color}
}

func (b *Bitmap) Width() int  { return b.Image.Bounds().Dx() }
func (b *Bitmap) Height() int { return b.Image.Bounds().Dy() }

// Gray returns a fresh grayscale copy of the bitmap.
func (b *Bitmap) Gray() *image.Gray {
	return toGray(b.Image)
}

// toGray converts any image into a new *image.Gray anchored at the origin.
// Luminance uses the usual 0.299/0.587/0.114 weights (imaging.Grayscale).
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		b := g.Bounds()
		out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			src := g.Pix[(y+b.Min.Y-g.Rect.Min.Y)*g.Stride+(b.Min.X-g.Rect.Min.X):]
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], src[:b.Dx()])
		}
		return out
	}
	return fromNRGBA(imaging.Grayscale(img))
}

// fromNRGBA takes the red channel of an already-gray NRGBA image, which is
// what the imaging filters return when fed a grayscale input.
func fromNRGBA(n *image.NRGBA) *image.Gray {
	b := n.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := n.Pix[y*n.Stride:]
		for x := 0; x < b.Dx(); x++ {
			out.Pix[y*out.Stride+x] = row[x*4]
		}
	}
	return out
}

// flattenOnWhite composites img over an opaque white canvas so transparent
// regions read as paper rather than black.
func flattenOnWhite(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.NRGBA{255, 255, 255, 255})
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
