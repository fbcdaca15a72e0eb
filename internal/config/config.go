package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultPlantIDEndpoint = "https://api.plant.id/v2/identify"
	DefaultOrgan           = "leaf"
	DefaultMaxRetries      = 2
)

// Store backends
const (
	StoreSQLite   = "sqlite"
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Archive backends
const (
	ArchiveNone  = "none"
	ArchiveAzure = "azure"
	ArchiveS3    = "s3"
)

type Config struct {
	Host               string        `toml:"host"`
	Port               string        `toml:"port"`
	RequestTimeout     time.Duration `toml:"request_timeout"`
	ImageFetchTimeout  time.Duration `toml:"image_fetch_timeout"`
	IdentifyTimeout    time.Duration `toml:"identify_timeout"`
	MaxRequestBodySize int64         `toml:"max_request_body_size"`
	LogLevel           string        `toml:"log_level"`

	PlantID PlantID `toml:"plant_id"`
	Store   Store   `toml:"store"`
	Archive Archive `toml:"archive"`
	Kafka   Kafka   `toml:"kafka"`
}

// PlantID configures the remote identification service
type PlantID struct {
	Endpoint   string `toml:"endpoint"`
	APIKey     string `toml:"api_key"`
	Organ      string `toml:"organ"`
	MaxRetries int    `toml:"max_retries"`
}

// Store selects where saved plants live
type Store struct {
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// Archive selects where identified images are copied
type Archive struct {
	Backend        string `toml:"backend"`
	AzureAccount   string `toml:"azure_account"`
	AzureKey       string `toml:"azure_key"`
	AzureContainer string `toml:"azure_container"`
	S3Bucket       string `toml:"s3_bucket"`
	SQSQueue       string `toml:"sqs_queue"`
}

// Kafka enables the identification event stream when Brokers is set
type Kafka struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// identifySlack covers request handling around the identification calls
const identifySlack = 5 * time.Second

// IdentifyDeadline bounds a whole identification flow. Every attempt may use
// the full identify timeout, so the deadline is never shorter than that
// budget, nor shorter than RequestTimeout.
func (c *Config) IdentifyDeadline() time.Duration {
	budget := time.Duration(c.PlantID.MaxRetries+1)*c.IdentifyTimeout + identifySlack
	if c.RequestTimeout > budget {
		return c.RequestTimeout
	}
	return budget
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               "8080",
		RequestTimeout:     60 * time.Second,
		ImageFetchTimeout:  15 * time.Second,
		IdentifyTimeout:    30 * time.Second,
		MaxRequestBodySize: 10 * 1024 * 1024, // 10MB
		LogLevel:           "info",
		PlantID: PlantID{
			Endpoint:   DefaultPlantIDEndpoint,
			Organ:      DefaultOrgan,
			MaxRetries: DefaultMaxRetries,
		},
		Store: Store{
			Backend: StoreSQLite,
			Path:    "plants.db",
		},
		Archive: Archive{
			Backend:        ArchiveNone,
			AzureContainer: "plant-images",
		},
		Kafka: Kafka{
			Topic: "plant-identifications",
		},
	}
}

// LoadFromEnv reads the optional TOML file named by PLANTID_CONFIG and then
// applies environment overrides on top.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("PLANTID_CONFIG"))
}

// Load parses the TOML file at path (if it exists), applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var raw fileConfig
	if err := toml.NewDecoder(file).Decode(&raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return raw.apply(cfg)
}

func applyEnv(cfg *Config) {
	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ImageFetchTimeout = parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", cfg.ImageFetchTimeout)
	cfg.IdentifyTimeout = parseDurationOrDefault("IDENTIFY_TIMEOUT", cfg.IdentifyTimeout)
	cfg.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", cfg.MaxRequestBodySize)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.PlantID.Endpoint = getEnvOrDefault("PLANTID_ENDPOINT", cfg.PlantID.Endpoint)
	cfg.PlantID.APIKey = getEnvOrDefault("PLANTID_API_KEY", cfg.PlantID.APIKey)
	cfg.PlantID.Organ = getEnvOrDefault("PLANTID_ORGAN", cfg.PlantID.Organ)
	cfg.PlantID.MaxRetries = int(parseIntOrDefault("PLANTID_MAX_RETRIES", int64(cfg.PlantID.MaxRetries)))

	cfg.Store.Backend = getEnvOrDefault("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = getEnvOrDefault("STORE_PATH", cfg.Store.Path)
	cfg.Store.PostgresDSN = getEnvOrDefault("POSTGRES_DSN", cfg.Store.PostgresDSN)

	cfg.Archive.Backend = getEnvOrDefault("ARCHIVE_BACKEND", cfg.Archive.Backend)
	cfg.Archive.AzureAccount = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", cfg.Archive.AzureAccount)
	cfg.Archive.AzureKey = getEnvOrDefault("AZURE_STORAGE_KEY", cfg.Archive.AzureKey)
	cfg.Archive.AzureContainer = getEnvOrDefault("AZURE_STORAGE_CONTAINER", cfg.Archive.AzureContainer)
	cfg.Archive.S3Bucket = getEnvOrDefault("S3_BUCKET", cfg.Archive.S3Bucket)
	cfg.Archive.SQSQueue = getEnvOrDefault("SQS_QUEUE", cfg.Archive.SQSQueue)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.Topic = getEnvOrDefault("KAFKA_TOPIC", cfg.Kafka.Topic)
}

// Validate checks ranges and backend-specific requirements
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.IdentifyTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, identify=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.IdentifyTimeout)
	}
	if strings.TrimSpace(c.PlantID.Endpoint) == "" {
		return errors.New("plant_id.endpoint must be set")
	}
	if strings.TrimSpace(c.PlantID.Organ) == "" {
		return errors.New("plant_id.organ must be set")
	}
	if c.PlantID.MaxRetries < 0 {
		return fmt.Errorf("plant_id.max_retries must be >= 0 (got %d)", c.PlantID.MaxRetries)
	}

	switch c.Store.Backend {
	case StoreSQLite, StoreFile:
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store.path required for %s backend", c.Store.Backend)
		}
	case StorePostgres:
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return errors.New("store.postgres_dsn required for postgres backend")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unsupported store backend: %q", c.Store.Backend)
	}

	switch c.Archive.Backend {
	case ArchiveNone, "":
	case ArchiveAzure:
		if c.Archive.AzureAccount == "" || c.Archive.AzureKey == "" {
			return errors.New("archive.azure_account and archive.azure_key required for azure archive")
		}
	case ArchiveS3:
		if c.Archive.S3Bucket == "" {
			return errors.New("archive.s3_bucket required for s3 archive")
		}
	default:
		return fmt.Errorf("unsupported archive backend: %q", c.Archive.Backend)
	}

	if len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.Topic) == "" {
		return errors.New("kafka.topic required when kafka.brokers is set")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
