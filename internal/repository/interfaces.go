package repository

import (
	"context"

	"go-plant-identifier/pkg/models"
)

// SavedPlantsKey is the key holding the saved plants list
const SavedPlantsKey = "savedPlants"

// UpdateFunc receives the current value (nil when the key is absent) and
// returns the value to store
type UpdateFunc func(current []byte) ([]byte, error)

// KeyValueStore is a small persistent key-value store. Update runs its
// read-modify-write atomically: concurrent updates of one key never lose
// writes.
type KeyValueStore interface {
	// Get returns ErrKeyNotFound when the key has never been written
	Get(ctx context.Context, key string) ([]byte, error)

	Update(ctx context.Context, key string, fn UpdateFunc) error

	Close() error
}

// SavedPlantRepository is the "my plants" list
type SavedPlantRepository interface {
	// Append adds one record and returns the new list length. There is no
	// deduplication.
	Append(ctx context.Context, details *models.PlantDetails) (int, error)

	// List returns the records in save order
	List(ctx context.Context) ([]*models.PlantDetails, error)
}

// ImageRepository resolves an image URL into a validated image blob
type ImageRepository interface {
	FetchImage(ctx context.Context, imageURL string) (*models.ImageBlob, error)
}
