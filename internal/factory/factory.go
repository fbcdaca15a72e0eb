package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-plant-identifier/internal/config"
	"go-plant-identifier/internal/repository"
	"go-plant-identifier/internal/storage"
	"go-plant-identifier/internal/strategy"
)

// StoreFactory creates the key-value store saved plants live in
type StoreFactory interface {
	CreateStore(cfg config.Store) (repository.KeyValueStore, error)
}

// ArchiveFactory creates the image archive. It returns nil when archiving
// is disabled.
type ArchiveFactory interface {
	CreateArchive(ctx context.Context, cfg config.Archive) (storage.ImageArchive, error)
}

// FetcherFactory creates the fetcher used for image URLs
type FetcherFactory interface {
	CreateFetcher(timeout time.Duration) storage.ImageFetcher
}

// storeFactory implements StoreFactory
type storeFactory struct{}

// NewStoreFactory creates a new store factory
func NewStoreFactory() StoreFactory {
	return &storeFactory{}
}

// CreateStore opens the backend named by cfg.Backend
func (f *storeFactory) CreateStore(cfg config.Store) (repository.KeyValueStore, error) {
	var (
		store repository.KeyValueStore
		err   error
	)
	switch strings.ToLower(cfg.Backend) {
	case config.StoreSQLite, "":
		store, err = repository.OpenSQLiteStore(expandHome(cfg.Path))
	case config.StoreFile:
		store, err = repository.OpenFileStore(expandHome(cfg.Path))
	case config.StorePostgres:
		store, err = repository.OpenPostgresStore(cfg.PostgresDSN)
	case config.StoreMemory:
		store = repository.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	return store, nil
}

// archiveFactory implements ArchiveFactory
type archiveFactory struct{}

// NewArchiveFactory creates a new archive factory
func NewArchiveFactory() ArchiveFactory {
	return &archiveFactory{}
}

// CreateArchive creates the archive named by cfg.Backend
func (f *archiveFactory) CreateArchive(ctx context.Context, cfg config.Archive) (storage.ImageArchive, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.ArchiveNone, "":
		return nil, nil
	case config.ArchiveAzure:
		return storage.NewAzureArchive(cfg.AzureAccount, cfg.AzureKey, cfg.AzureContainer)
	case config.ArchiveS3:
		return storage.NewS3Archive(ctx, cfg.S3Bucket, cfg.SQSQueue)
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Backend)
	}
}

// fetcherFactory implements FetcherFactory
type fetcherFactory struct{}

// NewFetcherFactory creates a new fetcher factory
func NewFetcherFactory() FetcherFactory {
	return &fetcherFactory{}
}

// CreateFetcher returns an HTTP fetcher retrying server errors with a
// linear backoff
func (f *fetcherFactory) CreateFetcher(timeout time.Duration) storage.ImageFetcher {
	return storage.NewHTTPImageFetcher(timeout,
		storage.WithRetryStrategy(strategy.NewLinearBackoff(3, time.Second)))
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StoreFactory   StoreFactory
	ArchiveFactory ArchiveFactory
	FetcherFactory FetcherFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory() *ComponentFactory {
	return &ComponentFactory{
		StoreFactory:   NewStoreFactory(),
		ArchiveFactory: NewArchiveFactory(),
		FetcherFactory: NewFetcherFactory(),
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
