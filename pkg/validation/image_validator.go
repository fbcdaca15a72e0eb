package validation

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"

	apperrors "go-plant-identifier/internal/errors"
	"go-plant-identifier/pkg/models"
)

// ImageLimits defines what an uploaded plant photo must satisfy
type ImageLimits struct {
	MaxBytes     int64
	MinWidth     int
	MinHeight    int
	AllowedTypes []string
}

// DefaultImageLimits returns the limits applied to uploads and captures
func DefaultImageLimits() ImageLimits {
	return ImageLimits{
		MaxBytes:  10 * 1024 * 1024,
		MinWidth:  1,
		MinHeight: 1,
		AllowedTypes: []string{
			"image/jpeg",
			"image/png",
			"image/gif",
			"image/webp",
		},
	}
}

// ImageInfo describes a validated image
type ImageInfo struct {
	ContentType string `json:"content_type"`
	Format      string `json:"format,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Bytes       int    `json:"bytes"`
}

// ImageValidator checks image blobs before they are submitted
type ImageValidator struct {
	limits ImageLimits
}

// NewImageValidator creates a validator with default limits
func NewImageValidator() *ImageValidator {
	return &ImageValidator{limits: DefaultImageLimits()}
}

// NewImageValidatorWithLimits creates a validator with custom limits
func NewImageValidatorWithLimits(limits ImageLimits) *ImageValidator {
	return &ImageValidator{limits: limits}
}

// Validate sniffs the blob content, checks it against the limits and fills
// in the blob content type when the caller left it empty.
func (v *ImageValidator) Validate(blob *models.ImageBlob) (*ImageInfo, error) {
	if blob.Empty() {
		return nil, apperrors.NewValidationError("image is empty", nil)
	}
	if v.limits.MaxBytes > 0 && int64(blob.Size()) > v.limits.MaxBytes {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("image exceeds %d bytes", v.limits.MaxBytes), nil)
	}

	detected := mimetype.Detect(blob.Data)
	contentType := detected.String()
	if !v.isTypeAllowed(detected) {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("unsupported image type %q", contentType), nil)
	}

	info := &ImageInfo{
		ContentType: contentType,
		Bytes:       blob.Size(),
	}

	// webp has no registered decoder; the sniffed type is all we check
	if !detected.Is("image/webp") {
		cfg, format, err := image.DecodeConfig(bytes.NewReader(blob.Data))
		if err != nil {
			return nil, apperrors.NewValidationError("image could not be decoded", err)
		}
		if cfg.Width < v.limits.MinWidth || cfg.Height < v.limits.MinHeight {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("image is %dx%d, minimum is %dx%d",
					cfg.Width, cfg.Height, v.limits.MinWidth, v.limits.MinHeight), nil)
		}
		info.Format = format
		info.Width = cfg.Width
		info.Height = cfg.Height
	}

	if blob.ContentType == "" || blob.ContentType == "application/octet-stream" {
		blob.ContentType = contentType
	}
	return info, nil
}

func (v *ImageValidator) isTypeAllowed(detected *mimetype.MIME) bool {
	for _, allowed := range v.limits.AllowedTypes {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}
