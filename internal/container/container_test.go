package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"go-plant-identifier/internal/config"
	"go-plant-identifier/internal/plantid"
	"go-plant-identifier/pkg/models"
)

type nopIdentifier struct{}

func (nopIdentifier) Identify(context.Context, plantid.Request) (*models.PlantDetails, error) {
	return &models.PlantDetails{}, nil
}

func TestNewContainer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Store.Backend = config.StoreFile
	cfg.Store.Path = filepath.Join(t.TempDir(), "plants.json")

	c, err := NewContainer(context.Background(), &cfg, WithIdentifier(nopIdentifier{}))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer c.Close()

	if c.Config() != &cfg {
		t.Error("Expected container to keep the config")
	}
	if c.PlantService() == nil || c.Metrics() == nil {
		t.Fatal("Expected service and metrics to be wired")
	}

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 from /health, got %d", w.Code)
	}

	plants, err := c.PlantService().ListSaved(context.Background())
	if err != nil || len(plants) != 0 {
		t.Errorf("Expected empty saved list, got %v (%v)", plants, err)
	}
}

func TestNewContainer_Errors(t *testing.T) {
	if _, err := NewContainer(context.Background(), nil); err == nil {
		t.Error("Expected error without config")
	}

	cfg := config.Default()
	cfg.Store.Backend = "redis"
	if _, err := NewContainer(context.Background(), &cfg, WithIdentifier(nopIdentifier{})); err == nil {
		t.Error("Expected error for unknown store backend")
	}

	cfg = config.Default()
	cfg.Store.Backend = config.StoreMemory
	cfg.Archive.Backend = "gcs"
	if _, err := NewContainer(context.Background(), &cfg, WithIdentifier(nopIdentifier{})); err == nil {
		t.Error("Expected error for unknown archive backend")
	}
}
