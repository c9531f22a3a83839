package ocr

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// otsuThreshold picks the global threshold that maximises between-class variance.
func otsuThreshold(g *image.Gray) uint8 {
	var hist [256]float64
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for _, v := range row {
			hist[v]++
		}
	}
	total := float64(w * h)
	var sum float64
	for i, c := range hist {
		sum += float64(i) * c
	}
	var sumB, wB, best float64
	t := 0
	for i := 0; i < 256; i++ {
		wB += hist[i]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * hist[i]
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			t = i
		}
	}
	return uint8(t)
}

// binarize maps pixels above threshold to white and the rest to black.
func binarize(g *image.Gray, threshold uint8) *image.Gray {
	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		if v > threshold {
			out.Pix[i] = 255
		}
	}
	return out
}

// adaptiveThreshold compares each pixel with a Gaussian-weighted mean of its
// block neighbourhood minus bias.
func adaptiveThreshold(g *image.Gray, block int, bias int) *image.Gray {
	if block < 3 {
		block = 3
	}
	if block%2 == 0 {
		block++
	}
	sigma := 0.3*(float64(block-1)*0.5-1) + 0.8
	mean := gaussian(g, sigma)
	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		th := int(mean.Pix[i]) - bias
		if int(v) > th {
			out.Pix[i] = 255
		}
	}
	return out
}

// gaussian blurs g with the given sigma.
func gaussian(g *image.Gray, sigma float64) *image.Gray {
	if sigma <= 0 {
		return g
	}
	return fromNRGBA(imaging.Blur(g, sigma))
}

// median3 is a 3x3 median filter with replicated borders.
func median3(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	var win [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				yy := clampInt(y+dy, 0, h-1)
				for dx := -1; dx <= 1; dx++ {
					xx := clampInt(x+dx, 0, w-1)
					win[n] = g.Pix[yy*g.Stride+xx]
					n++
				}
			}
			for i := 1; i < 9; i++ {
				for j := i; j > 0 && win[j] < win[j-1]; j-- {
					win[j], win[j-1] = win[j-1], win[j]
				}
			}
			out.Pix[y*out.Stride+x] = win[4]
		}
	}
	return out
}

// clahe performs contrast-limited adaptive histogram equalisation over a
// tilesX x tilesY grid, blending neighbouring tile mappings bilinearly.
func clahe(g *image.Gray, clip float64, tilesX, tilesY int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	tilesX = clampInt(tilesX, 1, w)
	tilesY = clampInt(tilesY, 1, h)
	tw := (w + tilesX - 1) / tilesX
	th := (h + tilesY - 1) / tilesY

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tw, ty*th
			x1, y1 := minInt(x0+tw, w), minInt(y0+th, h)
			lut := &luts[ty*tilesX+tx]
			area := (x1 - x0) * (y1 - y0)
			if area <= 0 {
				for i := range lut {
					lut[i] = uint8(i)
				}
				continue
			}
			var hist [256]int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[g.Pix[y*g.Stride+x]]++
				}
			}
			limit := int(clip * float64(area) / 256)
			if limit < 1 {
				limit = 1
			}
			excess := 0
			for i := range hist {
				if hist[i] > limit {
					excess += hist[i] - limit
					hist[i] = limit
				}
			}
			inc, rem := excess/256, excess%256
			for i := range hist {
				hist[i] += inc
				if i < rem {
					hist[i]++
				}
			}
			cdf := 0
			scale := 255.0 / float64(area)
			for i := range hist {
				cdf += hist[i]
				lut[i] = uint8(clampInt(int(math.Round(float64(cdf)*scale)), 0, 255))
			}
		}
	}

	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		gy := (float64(y)+0.5)/float64(th) - 0.5
		ty0 := int(math.Floor(gy))
		fy := gy - float64(ty0)
		ty1 := ty0 + 1
		if ty0 < 0 {
			ty0, fy = 0, 0
		}
		if ty1 >= tilesY {
			ty1 = tilesY - 1
		}
		if ty0 >= tilesY {
			ty0 = tilesY - 1
		}
		for x := 0; x < w; x++ {
			gx := (float64(x)+0.5)/float64(tw) - 0.5
			tx0 := int(math.Floor(gx))
			fx := gx - float64(tx0)
			tx1 := tx0 + 1
			if tx0 < 0 {
				tx0, fx = 0, 0
			}
			if tx1 >= tilesX {
				tx1 = tilesX - 1
			}
			if tx0 >= tilesX {
				tx0 = tilesX - 1
			}
			v := g.Pix[y*g.Stride+x]
			a := float64(luts[ty0*tilesX+tx0][v])
			b := float64(luts[ty0*tilesX+tx1][v])
			c := float64(luts[ty1*tilesX+tx0][v])
			d := float64(luts[ty1*tilesX+tx1][v])
			top := a + (b-a)*fx
			bot := c + (d-c)*fx
			out.Pix[y*out.Stride+x] = uint8(clampInt(int(math.Round(top+(bot-top)*fy)), 0, 255))
		}
	}
	return out
}

// morph applies a size x size max (dilate) or min (erode) filter anchored at
// size/2, as OpenCV anchors even kernels.
func morph(g *image.Gray, size int, dilate bool) *image.Gray {
	if size <= 1 {
		out := image.NewGray(g.Rect)
		copy(out.Pix, g.Pix)
		return out
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	anchor := size / 2
	// dilation uses the reflected element so a close does not shift strokes
	sign := 1
	if dilate {
		sign = -1
	}
	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v uint8
			if !dilate {
				v = 255
			}
			for ky := 0; ky < size; ky++ {
				yy := y + sign*(ky-anchor)
				if yy < 0 || yy >= h {
					continue
				}
				for kx := 0; kx < size; kx++ {
					xx := x + sign*(kx-anchor)
					if xx < 0 || xx >= w {
						continue
					}
					p := g.Pix[yy*g.Stride+xx]
					if dilate && p > v || !dilate && p < v {
						v = p
					}
				}
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}

// morphClose fills small gaps in strokes: dilation followed by erosion.
func morphClose(g *image.Gray, size int) *image.Gray {
	return morph(morph(g, size, true), size, false)
}

var sharpenKernel = [9]float64{
	0, -1, 0,
	-1, 5, -1,
	0, -1, 0,
}

func sharpen(g *image.Gray) *image.Gray {
	return fromNRGBA(imaging.Convolve3x3(g, sharpenKernel, nil))
}

// upscale enlarges g with cubic interpolation when either side is below
// target, keeping the aspect ratio. The longest side never exceeds maxSide;
// oversized inputs are scaled down to it.
func upscale(g *image.Gray, target, maxSide int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	scale := 1.0
	if target > 0 && (w < target || h < target) {
		scale = math.Max(float64(target)/float64(w), float64(target)/float64(h))
	}
	if longest := float64(maxInt(w, h)); maxSide > 0 && longest*scale > float64(maxSide) {
		scale = float64(maxSide) / longest
	}
	if scale == 1.0 {
		return g
	}
	nw := maxInt(1, int(math.Round(float64(w)*scale)))
	nh := maxInt(1, int(math.Round(float64(h)*scale)))
	return fromNRGBA(imaging.Resize(g, nw, nh, imaging.CatmullRom))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
