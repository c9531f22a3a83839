package ocr

import (
	"image"
	"math"
	"sort"
)

// MinSkewDegrees is the smallest estimated tilt that triggers a rotation.
const MinSkewDegrees = 0.5

type point struct{ x, y float64 }

// estimateSkew returns the tilt of the foreground block in degrees, in the
// range (-45, 45]. Positive angles mean lines fall towards the right.
func estimateSkew(g *image.Gray) float64 {
	hull := convexHull(foregroundExtremes(g))
	if len(hull) < 3 {
		return 0
	}
	return normalizeAngle(minAreaRectAngle(hull))
}

// foregroundExtremes collects the left and right-most foreground pixel of
// every row; their hull equals the hull of the whole foreground.
func foregroundExtremes(g *image.Gray) []point {
	t := otsuThreshold(g)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	dark := 0
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			if v <= t {
				dark++
			}
		}
	}
	// text is the minority class
	darkIsInk := dark*2 <= w*h
	isInk := func(v uint8) bool { return (v <= t) == darkIsInk }

	var pts []point
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		left, right := -1, -1
		for x, v := range row {
			if isInk(v) {
				if left < 0 {
					left = x
				}
				right = x
			}
		}
		if left < 0 {
			continue
		}
		pts = append(pts, point{float64(left), float64(y)})
		if right != left {
			pts = append(pts, point{float64(right), float64(y)})
		}
	}
	return pts
}

// convexHull is Andrew's monotone chain; the result is counter-clockwise
// without the closing point.
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})
	cross := func(o, a, b point) float64 {
		return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
	}
	hull := make([]point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// minAreaRectAngle finds the hull edge whose direction gives the smallest
// enclosing rectangle and returns that direction in degrees.
func minAreaRectAngle(hull []point) float64 {
	bestArea := math.Inf(1)
	bestAngle := 0.0
	n := len(hull)
	for i := 0; i < n; i++ {
		a, b := hull[i], hull[(i+1)%n]
		dx, dy := b.x-a.x, b.y-a.y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		ux, uy := dx/l, dy/l
		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			u := p.x*ux + p.y*uy
			v := -p.x*uy + p.y*ux
			minU, maxU = math.Min(minU, u), math.Max(maxU, u)
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}
		if area := (maxU - minU) * (maxV - minV); area < bestArea {
			bestArea = area
			bestAngle = math.Atan2(dy, dx) * 180 / math.Pi
		}
	}
	return bestAngle
}

func normalizeAngle(a float64) float64 {
	for a > 45 {
		a -= 90
	}
	for a <= -45 {
		a += 90
	}
	return a
}

// rotateGray rotates g by deg degrees about its centre (clockwise on screen
// for positive deg) keeping the canvas size. Samples are bilinear and
// out-of-range coordinates replicate the border.
func rotateGray(g *image.Gray, deg float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	cx, cy := float64(w-1)/2, float64(h-1)/2
	at := func(x, y int) float64 {
		x = clampInt(x, 0, w-1)
		y = clampInt(y, 0, h-1)
		return float64(g.Pix[y*g.Stride+x])
	}
	for y := 0; y < h; y++ {
		dy := float64(y) - cy
		for x := 0; x < w; x++ {
			dx := float64(x) - cx
			sx := c*dx + s*dy + cx
			sy := -s*dx + c*dy + cy
			x0, y0 := int(math.Floor(sx)), int(math.Floor(sy))
			fx, fy := sx-float64(x0), sy-float64(y0)
			top := at(x0, y0)*(1-fx) + at(x0+1, y0)*fx
			bot := at(x0, y0+1)*(1-fx) + at(x0+1, y0+1)*fx
			out.Pix[y*out.Stride+x] = uint8(clampInt(int(math.Round(top*(1-fy)+bot*fy)), 0, 255))
		}
	}
	return out
}

// deskew straightens g when its estimated tilt exceeds MinSkewDegrees and
// reports the angle it measured.
func deskew(g *image.Gray) (*image.Gray, float64) {
	angle := estimateSkew(g)
	if math.Abs(angle) <= MinSkewDegrees {
		return g, angle
	}
	return rotateGray(g, -angle), angle
}
