package repository

import (
	"context"

	apperrors "go-plant-identifier/internal/errors"
	"go-plant-identifier/internal/storage"
	"go-plant-identifier/pkg/models"
	"go-plant-identifier/pkg/validation"
)

// HTTPImageRepository implements ImageRepository using HTTP storage
type HTTPImageRepository struct {
	fetcher        storage.ImageFetcher
	urlValidator   *validation.URLValidator
	imageValidator *validation.ImageValidator
}

// NewHTTPImageRepository creates a new HTTP-based image repository
func NewHTTPImageRepository(fetcher storage.ImageFetcher, urlValidator *validation.URLValidator, imageValidator *validation.ImageValidator) ImageRepository {
	return &HTTPImageRepository{
		fetcher:        fetcher,
		urlValidator:   urlValidator,
		imageValidator: imageValidator,
	}
}

// FetchImage validates the URL, downloads the image and validates its content
func (r *HTTPImageRepository) FetchImage(ctx context.Context, imageURL string) (*models.ImageBlob, error) {
	if err := r.urlValidator.ValidateImageURL(imageURL); err != nil {
		return nil, err
	}

	blob, err := r.fetcher.FetchImage(ctx, imageURL)
	if err != nil {
		return nil, apperrors.NewValidationError("failed to fetch image", err)
	}

	if _, err := r.imageValidator.Validate(blob); err != nil {
		return nil, err
	}
	return blob, nil
}
