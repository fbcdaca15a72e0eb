package config

import (
	"fmt"
	"strings"
	"time"
)

// fileConfig mirrors Config for TOML decoding. Durations are written as Go
// duration strings ("30s", "2m") and pointers mark which keys were present.
type fileConfig struct {
	Host               *string `toml:"host"`
	Port               *string `toml:"port"`
	RequestTimeout     *string `toml:"request_timeout"`
	ImageFetchTimeout  *string `toml:"image_fetch_timeout"`
	IdentifyTimeout    *string `toml:"identify_timeout"`
	MaxRequestBodySize *int64  `toml:"max_request_body_size"`
	LogLevel           *string `toml:"log_level"`

	PlantID *filePlantID `toml:"plant_id"`
	Store   *Store       `toml:"store"`
	Archive *Archive     `toml:"archive"`
	Kafka   *Kafka       `toml:"kafka"`
}

// filePlantID keeps max_retries as a pointer so an explicit 0 disables retries
type filePlantID struct {
	Endpoint   string `toml:"endpoint"`
	APIKey     string `toml:"api_key"`
	Organ      string `toml:"organ"`
	MaxRetries *int   `toml:"max_retries"`
}

func (f fileConfig) apply(cfg *Config) error {
	if f.Host != nil {
		cfg.Host = *f.Host
	}
	if f.Port != nil {
		cfg.Port = *f.Port
	}
	if f.MaxRequestBodySize != nil {
		cfg.MaxRequestBodySize = *f.MaxRequestBodySize
	}
	if f.LogLevel != nil {
		cfg.LogLevel = *f.LogLevel
	}

	durations := []struct {
		key   string
		value *string
		dest  *time.Duration
	}{
		{"request_timeout", f.RequestTimeout, &cfg.RequestTimeout},
		{"image_fetch_timeout", f.ImageFetchTimeout, &cfg.ImageFetchTimeout},
		{"identify_timeout", f.IdentifyTimeout, &cfg.IdentifyTimeout},
	}
	for _, d := range durations {
		if d.value == nil {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(*d.value))
		if err != nil {
			return fmt.Errorf("parse config %s: %w", d.key, err)
		}
		*d.dest = parsed
	}

	if f.PlantID != nil {
		mergeString(&cfg.PlantID.Endpoint, f.PlantID.Endpoint)
		mergeString(&cfg.PlantID.APIKey, f.PlantID.APIKey)
		mergeString(&cfg.PlantID.Organ, f.PlantID.Organ)
		if f.PlantID.MaxRetries != nil {
			cfg.PlantID.MaxRetries = *f.PlantID.MaxRetries
		}
	}
	if f.Store != nil {
		mergeString(&cfg.Store.Backend, f.Store.Backend)
		mergeString(&cfg.Store.Path, f.Store.Path)
		mergeString(&cfg.Store.PostgresDSN, f.Store.PostgresDSN)
	}
	if f.Archive != nil {
		mergeString(&cfg.Archive.Backend, f.Archive.Backend)
		mergeString(&cfg.Archive.AzureAccount, f.Archive.AzureAccount)
		mergeString(&cfg.Archive.AzureKey, f.Archive.AzureKey)
		mergeString(&cfg.Archive.AzureContainer, f.Archive.AzureContainer)
		mergeString(&cfg.Archive.S3Bucket, f.Archive.S3Bucket)
		mergeString(&cfg.Archive.SQSQueue, f.Archive.SQSQueue)
	}
	if f.Kafka != nil {
		if len(f.Kafka.Brokers) > 0 {
			cfg.Kafka.Brokers = f.Kafka.Brokers
		}
		mergeString(&cfg.Kafka.Topic, f.Kafka.Topic)
	}
	return nil
}

func mergeString(dest *string, value string) {
	if strings.TrimSpace(value) != "" {
		*dest = value
	}
}
