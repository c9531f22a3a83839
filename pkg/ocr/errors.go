package ocr

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is returned when the uploaded bytes are not a readable image.
	ErrDecode = errors.New("cannot decode image")
	// ErrUnsupportedFormat is returned for recognised containers or extensions outside the allow list.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrSizeLimit is the parent of ErrTooSmall and ErrTooLarge.
	ErrSizeLimit = errors.New("image size out of bounds")
	ErrTooSmall  = fmt.Errorf("%w: too small", ErrSizeLimit)
	ErrTooLarge  = fmt.Errorf("%w: too large", ErrSizeLimit)
	// ErrOCREngine wraps failures of the recognition collaborator.
	ErrOCREngine = errors.New("ocr engine failure")
	// ErrNoContent means the pipeline ran cleanly but nothing passed validation.
	ErrNoContent = errors.New("no content detected")
)
