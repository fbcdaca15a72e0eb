package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PlantID.Endpoint != DefaultPlantIDEndpoint {
		t.Errorf("Expected endpoint %s, got %s", DefaultPlantIDEndpoint, cfg.PlantID.Endpoint)
	}
	if cfg.PlantID.Organ != "leaf" {
		t.Errorf("Expected organ leaf, got %s", cfg.PlantID.Organ)
	}
	if cfg.PlantID.MaxRetries != 2 {
		t.Errorf("Expected 2 retries, got %d", cfg.PlantID.MaxRetries)
	}
	if cfg.Store.Backend != StoreSQLite {
		t.Errorf("Expected sqlite store, got %s", cfg.Store.Backend)
	}
	if cfg.ServerAddress() != "0.0.0.0:8080" {
		t.Errorf("Unexpected server address %s", cfg.ServerAddress())
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plantid.toml")
	content := `
port = "9090"
identify_timeout = "5s"

[plant_id]
api_key = "from-file"
max_retries = 1

[store]
backend = "file"
path = "saved.json"

[kafka]
brokers = ["kafka:9092"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PLANTID_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Port)
	}
	if cfg.IdentifyTimeout != 5*time.Second {
		t.Errorf("Expected identify timeout 5s, got %s", cfg.IdentifyTimeout)
	}
	if cfg.PlantID.APIKey != "from-env" {
		t.Errorf("Expected env to override file api key, got %s", cfg.PlantID.APIKey)
	}
	if cfg.PlantID.MaxRetries != 1 {
		t.Errorf("Expected 1 retry, got %d", cfg.PlantID.MaxRetries)
	}
	if cfg.Store.Backend != StoreFile || cfg.Store.Path != "saved.json" {
		t.Errorf("Unexpected store config %+v", cfg.Store)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "kafka:9092" {
		t.Errorf("Unexpected kafka brokers %v", cfg.Kafka.Brokers)
	}
}

func TestLoadFileExplicitZeroRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plantid.toml")
	if err := os.WriteFile(path, []byte("[plant_id]\nmax_retries = 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PlantID.MaxRetries != 0 {
		t.Errorf("Expected retries disabled, got %d", cfg.PlantID.MaxRetries)
	}
	if cfg.PlantID.Organ != DefaultOrgan {
		t.Errorf("Expected default organ to survive, got %q", cfg.PlantID.Organ)
	}
}

func TestIdentifyDeadline(t *testing.T) {
	tests := []struct {
		name     string
		request  time.Duration
		identify time.Duration
		retries  int
		want     time.Duration
	}{
		{"defaults cover every attempt", 60 * time.Second, 30 * time.Second, 2, 95 * time.Second},
		{"short attempts keep request timeout", 60 * time.Second, time.Second, 2, 60 * time.Second},
		{"no retries", time.Second, 10 * time.Second, 0, 15 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.RequestTimeout = tt.request
			cfg.IdentifyTimeout = tt.identify
			cfg.PlantID.MaxRetries = tt.retries
			if got := cfg.IdentifyDeadline(); got != tt.want {
				t.Errorf("IdentifyDeadline() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected default port, got %s", cfg.Port)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		contains string
	}{
		{"bad port", func(c *Config) { c.Port = "abc" }, "invalid PORT"},
		{"negative retries", func(c *Config) { c.PlantID.MaxRetries = -1 }, "max_retries"},
		{"unknown store", func(c *Config) { c.Store.Backend = "redis" }, "unsupported store backend"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = StorePostgres }, "postgres_dsn"},
		{"azure without key", func(c *Config) { c.Archive.Backend = ArchiveAzure }, "azure_account"},
		{"s3 without bucket", func(c *Config) { c.Archive.Backend = ArchiveS3 }, "s3_bucket"},
		{"zero timeout", func(c *Config) { c.IdentifyTimeout = 0 }, "timeouts must be > 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected error containing %q, got %q", tt.contains, err.Error())
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a:1 , ,b:2")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Errorf("Unexpected split result %v", got)
	}
}
