package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go-plant-identifier/pkg/models"
)

// kvSavedPlants stores the list as one JSON array under a single key
type kvSavedPlants struct {
	store KeyValueStore
	key   string
}

// NewSavedPlantRepository keeps the saved plants list under SavedPlantsKey
func NewSavedPlantRepository(store KeyValueStore) SavedPlantRepository {
	return &kvSavedPlants{store: store, key: SavedPlantsKey}
}

func (r *kvSavedPlants) Append(ctx context.Context, details *models.PlantDetails) (int, error) {
	if details == nil {
		return 0, errors.New("nothing to save")
	}
	record, err := json.Marshal(details)
	if err != nil {
		return 0, fmt.Errorf("encode plant details: %w", err)
	}

	var count int
	err = r.store.Update(ctx, r.key, func(current []byte) ([]byte, error) {
		list, err := decodeList(current)
		if err != nil {
			return nil, err
		}
		list = append(list, record)
		count = len(list)
		return json.Marshal(list)
	})
	if err != nil {
		return 0, fmt.Errorf("append saved plant: %w", err)
	}
	return count, nil
}

func (r *kvSavedPlants) List(ctx context.Context) ([]*models.PlantDetails, error) {
	current, err := r.store.Get(ctx, r.key)
	if errors.Is(err, ErrKeyNotFound) {
		return []*models.PlantDetails{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read saved plants: %w", err)
	}

	raw, err := decodeList(current)
	if err != nil {
		return nil, err
	}
	plants := make([]*models.PlantDetails, 0, len(raw))
	for i, entry := range raw {
		var details models.PlantDetails
		if err := json.Unmarshal(entry, &details); err != nil {
			return nil, fmt.Errorf("decode saved plant %d: %w", i, err)
		}
		plants = append(plants, &details)
	}
	return plants, nil
}

// decodeList treats an absent or null value as an empty list
func decodeList(current []byte) ([]json.RawMessage, error) {
	if len(current) == 0 {
		return []json.RawMessage{}, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(current, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptList, err)
	}
	if list == nil {
		list = []json.RawMessage{}
	}
	return list, nil
}
