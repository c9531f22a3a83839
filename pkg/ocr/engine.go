package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Recognizer extracts raw text from an image.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, mode Mode) (string, error)
}

// DefaultLanguage is used when TesseractEngine.Languages is empty.
const DefaultLanguage = "eng"

// TesseractEngine recognises text with libtesseract through gosseract.
// A client is created per call since gosseract clients are not safe for
// concurrent use.
type TesseractEngine struct {
	Languages      []string
	TessdataPrefix string
}

// NewTesseractEngine parses a "+" separated language list such as "eng+ind".
func NewTesseractEngine(lang, tessdata string) *TesseractEngine {
	var langs []string
	for _, l := range strings.Split(lang, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return &TesseractEngine{Languages: langs, TessdataPrefix: tessdata}
}

// Version reports the linked libtesseract version.
func (e *TesseractEngine) Version() string {
	return gosseract.Version()
}

// Recognize returns once the engine finishes or ctx is done. On
// cancellation the engine call itself keeps running in the background
// until libtesseract returns.
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image, mode Mode) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("%w: encode png: %v", ErrOCREngine, err)
	}
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		text, err := e.run(buf.Bytes(), mode)
		done <- result{text: text, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrOCREngine, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", ErrOCREngine, r.err)
		}
		return r.text, nil
	}
}

func (e *TesseractEngine) run(png []byte, mode Mode) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if e.TessdataPrefix != "" {
		client.TessdataPrefix = e.TessdataPrefix
	}
	langs := e.Languages
	if len(langs) == 0 {
		langs = []string{DefaultLanguage}
	}
	if err := client.SetLanguage(langs...); err != nil {
		return "", err
	}
	// gosseract always initialises with the default engine mode, so only
	// the segmentation mode and variables are applied here.
	if err := client.SetPageSegMode(gosseract.PageSegMode(mode.PSM)); err != nil {
		return "", err
	}
	if mode.PreserveSpaces {
		if err := client.SetVariable("preserve_interword_spaces", "1"); err != nil {
			return "", err
		}
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", err
	}
	return client.Text()
}
