// Package storage normalizes listing images and stores them in S3.
package storage

import (
	"bytes"
	"fmt"
	"image"
	"mime"
	"net/http"
	"strings"

	"billboard/internal/models"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"

	// Registered decoders for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension   = 2048
	DefaultMaxUploadBytes = 10 * 1024 * 1024
	WebPQuality           = 75
	WebPContentType       = "image/webp"
)

// ImageLimits bounds accepted uploads.
type ImageLimits struct {
	MaxDimension int
	MaxBytes     int64
}

func (l ImageLimits) withDefaults() ImageLimits {
	if l.MaxDimension <= 0 {
		l.MaxDimension = DefaultMaxDimension
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxUploadBytes
	}
	return l
}

// NormalizeImage validates an uploaded image, scales it to fit within
// MaxDimension on both sides and re-encodes it as WebP.
func NormalizeImage(content []byte, contentType string, limits ImageLimits) ([]byte, error) {
	limits = limits.withDefaults()
	if len(content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(content)) > limits.MaxBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", limits.MaxBytes/(1024*1024)))
	}
	if !isAllowedImageMIME(http.DetectContentType(content)) {
		return nil, models.NewValidationError("Invalid image type")
	}

	decoded, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	if provided := normalizeContentType(contentType); strings.HasPrefix(provided, "image/") &&
		!isMatchingContentType(provided, "image/"+format) {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	resized := resizeToFit(decoded, limits.MaxDimension, limits.MaxDimension)
	var buf bytes.Buffer
	if err := webp.Encode(&buf, resized, &webp.Options{Quality: WebPQuality}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || (w <= maxWidth && h <= maxHeight) {
		return src
	}

	scale := min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(mediaType)
}

func isMatchingContentType(provided, detected string) bool {
	if provided == "image/jpg" {
		provided = "image/jpeg"
	}
	return provided == detected
}
