package ocr

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	BarcodeHeader       = "=== QR CODES / BARCODES ==="
	TextAfterBarcodes   = "=== TEXT CONTENT ==="
	TextOnlyHeader      = "=== EXTRACTED TEXT ==="
	NoTextMessage       = "No readable text detected. Try a higher resolution image, better lighting, clearer and larger text, or a different angle."
	TooSmallMessage     = "File is empty or too small to be a valid image."
	TooLargeMessage     = "File too large. Please upload a smaller image."
	UnsupportedMessage  = "Unsupported file type. Please upload a JPG, PNG, BMP, TIFF or WEBP image."
	DecodeFailedMessage = "Could not read the image. The file may be corrupted or not an image."
	EngineFailedMessage = "Text recognition failed for every method. Please try again."

	// MaxErrorTextLen bounds any error text returned to clients.
	MaxErrorTextLen = 100
)

// Assemble merges barcode hits and cleaned text into the response text.
func Assemble(hits []BarcodeHit, text string) string {
	var parts []string
	if len(hits) > 0 {
		parts = append(parts, BarcodeHeader)
		for _, h := range hits {
			parts = append(parts, h.String())
		}
		parts = append(parts, "")
	}
	if text = strings.TrimSpace(text); text != "" {
		if len(hits) > 0 {
			parts = append(parts, TextAfterBarcodes)
		} else {
			parts = append(parts, TextOnlyHeader)
		}
		parts = append(parts, text)
	}
	out := strings.TrimSpace(strings.Join(parts, "\n"))
	if out == "" {
		return NoTextMessage
	}
	return out
}

// ErrorText maps a pipeline error to the message shown to the client.
func ErrorText(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrNoContent):
		return NoTextMessage
	case errors.Is(err, ErrTooSmall):
		return TooSmallMessage
	case errors.Is(err, ErrTooLarge):
		return TooLargeMessage
	case errors.Is(err, ErrUnsupportedFormat):
		return UnsupportedMessage
	case errors.Is(err, ErrDecode):
		return DecodeFailedMessage
	case errors.Is(err, ErrOCREngine):
		return EngineFailedMessage
	}
	return truncate("Processing failed: "+err.Error(), MaxErrorTextLen)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
