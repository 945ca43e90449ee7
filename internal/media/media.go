// Package media turns uploaded profile pictures into the data URLs stored on
// user records.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxDim bounds the longest side of a stored profile image.
const DefaultMaxDim = 512

var (
	// ErrUnsupportedType is returned for file names outside png/jpg/jpeg/gif.
	ErrUnsupportedType = errors.New("unsupported image type")

	// ErrContentMismatch is returned when the bytes do not match the extension.
	ErrContentMismatch = errors.New("image content does not match extension")

	// ErrEmpty is returned for zero-length uploads.
	ErrEmpty = errors.New("empty upload")
)

// allowed maps an accepted extension to the MIME type its content must sniff as.
var allowed = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
}

// Processor validates, downsizes and encodes profile images.
type Processor struct {
	MaxDim int
}

// NewProcessor returns a Processor bounding images to maxDim pixels per side
// (DefaultMaxDim when maxDim <= 0).
func NewProcessor(maxDim int) *Processor {
	if maxDim <= 0 {
		maxDim = DefaultMaxDim
	}
	return &Processor{MaxDim: maxDim}
}

// Extension returns the lower-cased extension of filename without the dot,
// or ErrUnsupportedType.
func Extension(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if _, ok := allowed[ext]; !ok {
		return "", ErrUnsupportedType
	}
	return ext, nil
}

// DataURL reads an upload named filename from r and returns it re-encoded as
// "data:image/<ext>;base64,...". Images larger than MaxDim are scaled down,
// keeping their aspect ratio.
func (p *Processor) DataURL(filename string, r io.Reader) (string, error) {
	ext, err := Extension(filename)
	if err != nil {
		return "", err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(raw) == 0 {
		return "", ErrEmpty
	}
	if !mimetype.Detect(raw).Is(allowed[ext]) {
		return "", ErrContentMismatch
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrContentMismatch, err)
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return "", ErrUnsupportedType
	}
	if p.oversized(img) {
		img = imaging.Fit(img, p.MaxDim, p.MaxDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return "data:image/" + ext + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (p *Processor) oversized(img image.Image) bool {
	if p.MaxDim <= 0 {
		return false
	}
	b := img.Bounds()
	return b.Dx() > p.MaxDim || b.Dy() > p.MaxDim
}
