// Package normalize converts uploaded files into content items suitable
// for transmission: images are downscaled and re-encoded as JPEG, other
// files are base64-encoded and truncated to the configured budget.
package normalize

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"

	"github.com/fjgonzalezmgt/cv-maker/domain/generation"

	// Image codecs registered for image.Decode.
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Supported image extensions and their MIME types.
var imageMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

const (
	DefaultMaxImageSide = 2048
	DefaultJPEGQuality  = 85
)

// Normalizer holds the image processing knobs. The zero value is not
// usable; construct with New.
type Normalizer struct {
	maxImageSide int
	jpegQuality  int
}

func New(maxImageSide, jpegQuality int) *Normalizer {
	if maxImageSide <= 0 {
		maxImageSide = DefaultMaxImageSide
	}
	if jpegQuality <= 0 {
		jpegQuality = DefaultJPEGQuality
	}
	return &Normalizer{maxImageSide: maxImageSide, jpegQuality: jpegQuality}
}

// GuessMIME infers a MIME type from the file extension alone, defaulting
// to application/octet-stream for anything unrecognized.
func GuessMIME(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := imageMIME[ext]; ok {
		return mime
	}
	if ext == ".pdf" {
		return "application/pdf"
	}
	return "application/octet-stream"
}

// Normalize turns one file into content items. Recognized images become
// a single image item re-encoded as JPEG; everything else becomes a file
// item, followed by a warning item when the content had to be truncated
// to maxBytes. The file item always precedes its warning.
func (n *Normalizer) Normalize(path string, maxBytes int64) ([]generation.ContentItem, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &generation.NotFoundError{Path: path}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if _, isImage := imageMIME[ext]; isImage {
		data, err := n.reencodeImage(path)
		if err != nil {
			return nil, &generation.FileProcessingError{Path: path, Err: err}
		}
		// The MIME tag follows the source extension even though the
		// payload is re-encoded JPEG; the data URI is what the API
		// consumes and it tolerates the mismatch.
		return []generation.ContentItem{
			generation.ImageItem(GuessMIME(path), base64.StdEncoding.EncodeToString(data)),
		}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &generation.FileProcessingError{Path: path, Err: err}
	}

	originalSize := int64(len(raw))
	truncated := false
	if originalSize > maxBytes {
		raw = raw[:maxBytes]
		truncated = true
		logrus.WithFields(logrus.Fields{
			"file":     path,
			"original": originalSize,
			"kept":     maxBytes,
		}).Warn("File truncated to fit the size budget")
	}

	name := filepath.Base(path)
	items := []generation.ContentItem{
		generation.FileItem(name, GuessMIME(path), base64.StdEncoding.EncodeToString(raw)),
	}
	if truncated {
		items = append(items, generation.WarningItem(
			fmt.Sprintf("Warning: '%s' truncated from %d to %d bytes.", name, originalSize, maxBytes),
		))
	}
	return items, nil
}

// reencodeImage decodes an image, flattens it to opaque RGB over white,
// downscales it so the longer side does not exceed the configured
// maximum, and re-encodes it as JPEG.
func (n *Normalizer) reencodeImage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	logrus.WithFields(logrus.Fields{
		"file":   path,
		"format": format,
		"width":  w,
		"height": h,
	}).Debug("Decoded image")

	dstW, dstH := w, h
	longer := w
	if h > w {
		longer = h
	}
	if longer > n.maxImageSide {
		scale := float64(n.maxImageSide) / float64(longer)
		dstW = int(math.Round(float64(w) * scale))
		dstH = int(math.Round(float64(h) * scale))
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: n.jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// NormalizeAll processes every path independently, one result per file
// in input order. It never aborts on a per-file failure; the caller
// applies the partial-success policy.
func (n *Normalizer) NormalizeAll(paths []string, maxBytes int64) []generation.FileResult {
	results := make([]generation.FileResult, 0, len(paths))
	for _, path := range paths {
		items, err := n.Normalize(path, maxBytes)
		results = append(results, generation.FileResult{Path: path, Items: items, Err: err})
	}
	return results
}
