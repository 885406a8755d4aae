package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	FuelAPI    FuelAPIConfig    `yaml:"fuel_api"`
	Database   DatabaseConfig   `yaml:"database"`
	Sync       SyncConfig       `yaml:"sync"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push price alerts.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// FuelAPIConfig describes the upstream statutory fuel-price API.
type FuelAPIConfig struct {
	BaseURL        string `yaml:"base_url"`
	TokenURL       string `yaml:"token_url"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	BatchSize      int    `yaml:"batch_size"`
	MaxBatches     int    `yaml:"max_batches"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SyncConfig holds the knobs for the sync engine.
type SyncConfig struct {
	Enabled              bool          `yaml:"enabled"`
	IntervalMinutes      int           `yaml:"interval_minutes"`
	Interval             time.Duration `yaml:"-"` // Ignored by YAML parser
	StationChunkSize     int           `yaml:"station_chunk_size"`
	PriceChunkSize       int           `yaml:"price_chunk_size"`
	LookupChunkSize      int           `yaml:"lookup_chunk_size"`
	WriteRetries         int           `yaml:"write_retries"`
	RetryBackoffSeconds  int           `yaml:"retry_backoff_seconds"`
	PriceMinPence        int           `yaml:"price_min_pence"`
	PriceMaxPence        int           `yaml:"price_max_pence"`
	HeartbeatMinutes     int           `yaml:"heartbeat_minutes"`
	DefaultLookbackHours int           `yaml:"default_lookback_hours"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path. Secrets and the DSN may
// be supplied through the environment instead of the file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("FUEL_API_CLIENT_ID"); v != "" {
		cfg.FuelAPI.ClientID = v
	}
	if v := os.Getenv("FUEL_API_CLIENT_SECRET"); v != "" {
		cfg.FuelAPI.ClientSecret = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if cfg.FuelAPI.BatchSize <= 0 {
		cfg.FuelAPI.BatchSize = 500
	}
	if cfg.FuelAPI.MaxBatches <= 0 {
		cfg.FuelAPI.MaxBatches = 40
	}
	if cfg.FuelAPI.TimeoutSeconds <= 0 {
		cfg.FuelAPI.TimeoutSeconds = 30
	}

	if cfg.Sync.IntervalMinutes <= 0 {
		cfg.Sync.IntervalMinutes = 30
	}
	cfg.Sync.Interval = time.Duration(cfg.Sync.IntervalMinutes) * time.Minute

	if cfg.Sync.StationChunkSize <= 0 {
		cfg.Sync.StationChunkSize = 50
	}
	if cfg.Sync.PriceChunkSize <= 0 {
		cfg.Sync.PriceChunkSize = 50
	}
	if cfg.Sync.LookupChunkSize <= 0 || cfg.Sync.LookupChunkSize > 500 {
		cfg.Sync.LookupChunkSize = 500
	}
	if cfg.Sync.WriteRetries <= 0 {
		cfg.Sync.WriteRetries = 3
	}
	if cfg.Sync.RetryBackoffSeconds <= 0 {
		cfg.Sync.RetryBackoffSeconds = 1
	}
	if cfg.Sync.PriceMinPence <= 0 {
		cfg.Sync.PriceMinPence = 50
	}
	if cfg.Sync.PriceMaxPence <= 0 {
		cfg.Sync.PriceMaxPence = 300
	}
	if cfg.Sync.HeartbeatMinutes <= 0 {
		cfg.Sync.HeartbeatMinutes = 60
	}
	if cfg.Sync.DefaultLookbackHours <= 0 {
		cfg.Sync.DefaultLookbackHours = 24
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
