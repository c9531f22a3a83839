package ocr

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

const (
	// regions smaller than this are not searched for further symbols
	minRegionToSplit = 100
	maxSplitDepth    = 4
)

// BarcodeHit is one decoded symbol.
type BarcodeHit struct {
	Type    string
	Payload string
}

func (h BarcodeHit) String() string {
	return fmt.Sprintf("[%s] %s", h.Type, h.Payload)
}

// Scanner finds barcodes in an image. Implementations never fail; an
// unreadable image simply yields no hits.
type Scanner interface {
	Scan(img image.Image) []BarcodeHit
}

// ZXingScanner decodes QR, Data Matrix and the common 1D symbologies with gozxing.
type ZXingScanner struct{}

func (ZXingScanner) readers() []gozxing.Reader {
	return []gozxing.Reader{
		qrcode.NewQRCodeReader(),
		datamatrix.NewDataMatrixReader(),
		oned.NewCode128Reader(),
		oned.NewCode39Reader(),
		oned.NewEAN13Reader(),
		oned.NewEAN8Reader(),
		oned.NewUPCAReader(),
		oned.NewITFReader(),
	}
}

// Scan returns every distinct payload found. QR codes are located with the
// multi-symbol detector; the other readers return one symbol per call, so
// after each hit the areas beside it are searched again.
func (s ZXingScanner) Scan(img image.Image) (hits []BarcodeHit) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("barcode scan panicked: %v", r)
			hits = nil
		}
	}()
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		log.WithError(err).Debug("barcode bitmap")
		return nil
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	seen := map[string]bool{}
	add := func(r *gozxing.Result) {
		payload := strings.ToValidUTF8(r.GetText(), "")
		if payload == "" || seen[payload] {
			return
		}
		seen[payload] = true
		hits = append(hits, BarcodeHit{Type: symbologyName(r.GetBarcodeFormat()), Payload: payload})
	}

	if results, err := multiqr.NewQRCodeMultiReader().DecodeMultiple(bmp, hints); err == nil {
		for _, r := range results {
			add(r)
		}
	}
	for _, reader := range s.readers() {
		decodeRegions(reader, bmp, hints, 0, add)
	}
	return hits
}

// decodeRegions decodes one symbol in bmp, then searches the strips left of,
// above, right of and below it.
func decodeRegions(reader gozxing.Reader, bmp *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}, depth int, add func(*gozxing.Result)) {
	if depth > maxSplitDepth {
		return
	}
	result, err := reader.Decode(bmp, hints)
	reader.Reset()
	if err != nil {
		return
	}
	add(result)

	points := result.GetResultPoints()
	if len(points) == 0 || !bmp.IsCropSupported() {
		return
	}
	w, h := bmp.GetWidth(), bmp.GetHeight()
	minX, minY := float64(w), float64(h)
	maxX, maxY := 0.0, 0.0
	for _, p := range points {
		if p == nil {
			continue
		}
		minX = math.Min(minX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxX = math.Max(maxX, p.GetX())
		maxY = math.Max(maxY, p.GetY())
	}
	recurse := func(left, top, width, height int) {
		if width < minRegionToSplit || height < minRegionToSplit {
			return
		}
		sub, err := bmp.Crop(left, top, width, height)
		if err != nil {
			return
		}
		decodeRegions(reader, sub, hints, depth+1, add)
	}
	recurse(0, 0, int(minX), h)
	recurse(0, 0, w, int(minY))
	if x := int(math.Ceil(maxX)); x < w {
		recurse(x, 0, w-x, h)
	}
	if y := int(math.Ceil(maxY)); y < h {
		recurse(0, y, w, h-y)
	}
}

// symbologyName renders formats the way zbar names them (QRCODE, CODE128, I25).
func symbologyName(f gozxing.BarcodeFormat) string {
	if f == gozxing.BarcodeFormat_ITF {
		return "I25"
	}
	return strings.ReplaceAll(f.String(), "_", "")
}
