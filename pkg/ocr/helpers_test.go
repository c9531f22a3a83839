package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
	"testing"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func whiteRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}

func drawText(img draw.Image, x, y int, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// qrFixture renders payload as a QR code with a white quiet zone.
func qrFixture(t *testing.T, payload string) image.Image {
	t.Helper()
	code, err := qr.Encode(payload, qr.M, qr.Auto)
	if err != nil {
		t.Fatalf("qr encode: %v", err)
	}
	code, err = barcode.Scale(code, 240, 240)
	if err != nil {
		t.Fatalf("qr scale: %v", err)
	}
	bg := imaging.New(320, 320, color.White)
	return imaging.Paste(bg, code, image.Pt(40, 40))
}

// textBars draws dark horizontal bars that stand in for lines of text.
func textBars(w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = 255
	}
	for y := h / 4; y < 3*h/4; y += 20 {
		for yy := y; yy < y+8; yy++ {
			for x := w / 6; x < 5*w/6; x++ {
				g.Pix[yy*g.Stride+x] = 0
			}
		}
	}
	return g
}

// fakeRecognizer answers by page segmentation mode so each strategy in a
// test config can be given its own text.
type fakeRecognizer struct {
	mu     sync.Mutex
	byPSM  map[int]string
	errPSM map[int]error
	panics bool
	calls  []Mode
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img image.Image, mode Mode) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, mode)
	f.mu.Unlock()
	if f.panics {
		panic("engine exploded")
	}
	if err := f.errPSM[mode.PSM]; err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.byPSM[mode.PSM], nil
}

func (f *fakeRecognizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type staticScanner []BarcodeHit

func (s staticScanner) Scan(image.Image) []BarcodeHit { return s }

type panicScanner struct{}

func (panicScanner) Scan(image.Image) []BarcodeHit { panic("scanner exploded") }

var errEngineDown = errors.New("engine down")

// testConfigs gives every strategy a distinct PSM.
func testConfigs() []PreprocessingConfig {
	return []PreprocessingConfig{
		{Strategy: StrategyOtsu, Mode: Mode{PSM: 11, OEM: DefaultOEM}},
		{Strategy: StrategyAdaptive, Mode: Mode{PSM: 12, OEM: DefaultOEM}},
		{Strategy: StrategyCLAHE, Mode: Mode{PSM: 6, OEM: DefaultOEM}},
		{Strategy: StrategySharpen, Mode: Mode{PSM: 4, OEM: DefaultOEM}},
		{Strategy: StrategyOriginal, Mode: Mode{PSM: 13, OEM: DefaultOEM}},
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Configs = testConfigs()
	opts.TargetMinSide = 0
	opts.MaxSide = 1000
	opts.Deskew = false
	opts.Workers = 2
	return opts
}

// noiseRGBA fills an opaque image with a pattern that does not compress well,
// keeping encoded fixtures above the minimum upload size.
func noiseRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	seed := uint32(7)
	for i := range img.Pix {
		seed = seed*1664525 + 1013904223
		img.Pix[i] = uint8(seed >> 24)
		if i%4 == 3 {
			img.Pix[i] = 255
		}
	}
	return img
}
