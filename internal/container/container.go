package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go-plant-identifier/internal/config"
	"go-plant-identifier/internal/factory"
	"go-plant-identifier/internal/logger"
	"go-plant-identifier/internal/observer"
	"go-plant-identifier/internal/plantid"
	"go-plant-identifier/internal/repository"
	"go-plant-identifier/internal/service"
	"go-plant-identifier/internal/storage"
	"go-plant-identifier/internal/strategy"
	"go-plant-identifier/internal/transport"
	"go-plant-identifier/pkg/validation"

	"github.com/sirupsen/logrus"
)

// Container holds all application dependencies
type Container struct {
	config       *config.Config
	store        repository.KeyValueStore
	imageFetcher storage.ImageFetcher
	archive      storage.ImageArchive
	publisher    *observer.EventPublisher
	metrics      *observer.MetricsObserver
	kafka        *observer.KafkaObserver
	plantService service.PlantService
	handler      http.Handler
}

// Option adjusts how the container is built
type Option func(*options)

type options struct {
	components *factory.ComponentFactory
	identifier plantid.Identifier
}

// WithComponentFactory replaces the backend factories
func WithComponentFactory(components *factory.ComponentFactory) Option {
	return func(o *options) {
		o.components = components
	}
}

// WithIdentifier replaces the plant.id client
func WithIdentifier(identifier plantid.Identifier) Option {
	return func(o *options) {
		o.identifier = identifier
	}
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	o := options{components: factory.NewComponentFactory()}
	for _, opt := range opts {
		opt(&o)
	}

	logger.SetLevel(cfg.LogLevel)

	identifier := o.identifier
	if identifier == nil {
		if cfg.PlantID.APIKey == "" {
			logger.Warn("PLANTID_API_KEY is not set, identification requests will be rejected")
		}
		client, err := plantid.New(cfg.PlantID.Endpoint, cfg.PlantID.APIKey, cfg.PlantID.Organ, cfg.IdentifyTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create plant.id client: %w", err)
		}
		identifier = client
	}

	store, err := o.components.StoreFactory.CreateStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	c := &Container{
		config:       cfg,
		store:        store,
		imageFetcher: o.components.FetcherFactory.CreateFetcher(cfg.ImageFetchTimeout),
		metrics:      observer.NewMetricsObserver(),
		publisher:    observer.NewEventPublisher(0, logger.Logger),
	}

	c.publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	c.publisher.Subscribe(c.metrics)

	if len(cfg.Kafka.Brokers) > 0 {
		c.kafka = observer.NewKafkaObserver(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.Logger)
		c.publisher.Subscribe(c.kafka)
	}

	archive, err := o.components.ArchiveFactory.CreateArchive(ctx, cfg.Archive)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create image archive: %w", err)
	}
	if archive != nil {
		c.archive = archive
		c.publisher.Subscribe(observer.NewArchiveObserver(archive, logger.Logger))
	}

	imageValidator := validation.NewImageValidatorWithLimits(validation.ImageLimits{
		MaxBytes:     cfg.MaxRequestBodySize,
		MinWidth:     1,
		MinHeight:    1,
		AllowedTypes: validation.DefaultImageLimits().AllowedTypes,
	})
	imageRepository := repository.NewHTTPImageRepository(c.imageFetcher, validation.NewURLValidator(), imageValidator)

	c.plantService = service.NewPlantService(service.Dependencies{
		Identifier:  identifier,
		Retry:       strategy.NewImmediateRetry(cfg.PlantID.MaxRetries),
		Images:      imageRepository,
		Validator:   imageValidator,
		SavedPlants: repository.NewSavedPlantRepository(store),
		Events:      c.publisher,
	})
	c.handler = transport.NewHandler(c.plantService, c.metrics, cfg)

	logger.WithFields(logrus.Fields{
		"store":       cfg.Store.Backend,
		"archive":     cfg.Archive.Backend,
		"kafka":       len(cfg.Kafka.Brokers) > 0,
		"max_retries": cfg.PlantID.MaxRetries,
	}).Info("Container initialized")

	return c, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// PlantService returns the plant service
func (c *Container) PlantService() service.PlantService {
	return c.plantService
}

// Metrics returns the metrics observer
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}

// Close drains pending events and releases the store and Kafka writer
func (c *Container) Close() error {
	var errs []error
	if c.publisher != nil {
		c.publisher.Close()
	}
	if c.kafka != nil {
		if err := c.kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka writer: %w", err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
