package config

import (
	"fmt"
	"os"
	"time"

	"github.com/FairForge/marketplace/internal/database"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Store    StoreConfig     `yaml:"store"`
	Database database.Config `yaml:"database"`
	Logging  LoggingConfig   `yaml:"logging"`
	LoadTest LoadTestConfig  `yaml:"loadtest"`
	Identity IdentityConfig  `yaml:"identity"`
	Report   ReportConfig    `yaml:"report"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"` // empty disables bearer tokens
	RateLimit int    `yaml:"rate_limit"` // requests per second per client
	RateBurst int    `yaml:"rate_burst"`
}

type StoreConfig struct {
	Mode string `yaml:"mode"` // memory | postgres
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

type LoadTestConfig struct {
	Host        string        `yaml:"host"`
	Users       int           `yaml:"users"`
	HatchRate   float64       `yaml:"hatch_rate"` // users started per second
	Duration    time.Duration `yaml:"duration"`
	MinWait     time.Duration `yaml:"min_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	FixturesDir string        `yaml:"fixtures_dir"`
	MetricsAddr string        `yaml:"metrics_addr"`
	MaxFailRate float64       `yaml:"max_fail_rate"`
	MaxP95      time.Duration `yaml:"max_p95"`
}

type IdentityConfig struct {
	Env string `yaml:"env"` // stage | prod | dev
}

type ReportConfig struct {
	Destination string `yaml:"destination"` // file path or s3://bucket/key
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Region    string `yaml:"s3_region"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      8000,
			RateLimit: 100,
			RateBurst: 200,
		},
		Store: StoreConfig{Mode: "memory"},
		Database: database.Config{
			Host:     "localhost",
			Port:     5432,
			Database: "marketplace",
			User:     "marketplace",
			SSLMode:  "disable",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		LoadTest: LoadTestConfig{
			Host:        "http://localhost:8000",
			Users:       10,
			HatchRate:   1,
			Duration:    5 * time.Minute,
			MinWait:     5 * time.Second,
			MaxWait:     9 * time.Second,
			FixturesDir: "fixtures",
			MaxFailRate: 0.05,
			MaxP95:      5 * time.Second,
		},
		Identity: IdentityConfig{Env: "stage"},
		Report:   ReportConfig{S3Region: "us-east-1"},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	LoadFromEnv(cfg)
	return cfg, nil
}
