// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrJWTSecretRequired is returned when AUTH_JWT_SECRET is not set.
	ErrJWTSecretRequired = errors.New("config: AUTH_JWT_SECRET is required")
	// ErrMongoURIRequired is returned when a mongo backend is selected without MONGO_URI.
	ErrMongoURIRequired = errors.New("config: MONGO_URI is required for the mongo backend")
	// ErrDatabaseURLRequired is returned when the postgres ledger is selected without DATABASE_URL.
	ErrDatabaseURLRequired = errors.New("config: DATABASE_URL is required for the postgres ledger")
	// ErrUnknownBackend is returned for an unsupported STORE_BACKEND or LEDGER_BACKEND value.
	ErrUnknownBackend = errors.New("config: unknown backend")
)

// Backend names accepted by STORE_BACKEND and LEDGER_BACKEND.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Segment finders accepted by SEGMENT_FINDER.
const (
	SegmentFinderRemote  = "remote"
	SegmentFinderSilence = "silence"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Auth settings
	JWTSecret string `env:"AUTH_JWT_SECRET, required" json:"-"` // Masked in JSON

	// Persistence settings
	StoreBackend  string `env:"STORE_BACKEND, default=memory" json:"store_backend"`   // jobs + notifications
	LedgerBackend string `env:"LEDGER_BACKEND, default=memory" json:"ledger_backend"` // credits + catalog
	MongoURI      string `env:"MONGO_URI" json:"-"`
	MongoDatabase string `env:"MONGO_DATABASE, default=shortsgen" json:"mongo_database"`
	DatabaseURL   string `env:"DATABASE_URL" json:"-"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/shortsgen" json:"temp_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// External engines
	ASRBaseURL      string `env:"ASR_BASE_URL, default=http://localhost:9000" json:"asr_base_url"`
	ASRAPIKey       string `env:"ASR_API_KEY" json:"-"`
	SegmentsBaseURL string `env:"SEGMENTS_BASE_URL, default=http://localhost:9100" json:"segments_base_url"`
	SegmentsAPIKey  string `env:"SEGMENTS_API_KEY" json:"-"`
	// SegmentFinder is "remote" (the segments service) or "silence" (local silence detection).
	SegmentFinder string `env:"SEGMENT_FINDER, default=remote" json:"segment_finder"`

	// Processing settings
	FFmpegPath        string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath       string        `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	VideoCodec        string        `env:"VIDEO_CODEC, default=libx264" json:"video_codec"`
	MaxSegmentWorkers int           `env:"MAX_SEGMENT_WORKERS, default=3" json:"max_segment_workers"`
	CatalogTimeout    time.Duration `env:"CATALOG_TIMEOUT, default=2s" json:"catalog_timeout"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// SegmentWorkers returns MaxSegmentWorkers clamped to the supported 2..4 range.
func (c *Config) SegmentWorkers() int {
	switch {
	case c.MaxSegmentWorkers < 2:
		return 2
	case c.MaxSegmentWorkers > 4:
		return 4
	default:
		return c.MaxSegmentWorkers
	}
}

// Load reads configuration from environment variables using go-envconfig.
// Values from .env and .env.local are loaded first when those files exist;
// they never override variables already present in the environment.
func Load() (*Config, error) {
	for _, f := range []string{".env", ".env.local"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}

	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		if strings.Contains(err.Error(), "AUTH_JWT_SECRET") {
			return nil, ErrJWTSecretRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required and cross-field configuration.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrJWTSecretRequired
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendMongo:
		if c.MongoURI == "" {
			return ErrMongoURIRequired
		}
	default:
		return fmt.Errorf("%w: STORE_BACKEND=%q", ErrUnknownBackend, c.StoreBackend)
	}

	switch c.LedgerBackend {
	case BackendMemory:
	case BackendMongo:
		if c.MongoURI == "" {
			return ErrMongoURIRequired
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return ErrDatabaseURLRequired
		}
	default:
		return fmt.Errorf("%w: LEDGER_BACKEND=%q", ErrUnknownBackend, c.LedgerBackend)
	}

	switch c.SegmentFinder {
	case "", SegmentFinderRemote, SegmentFinderSilence:
	default:
		return fmt.Errorf("%w: SEGMENT_FINDER=%q", ErrUnknownBackend, c.SegmentFinder)
	}

	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, StoreBackend: %s, LedgerBackend: %s, MongoDatabase: %s, TempDir: %s, S3Bucket: %s, S3Region: %s, ASRBaseURL: %s, SegmentsBaseURL: %s, VideoCodec: %s, MaxSegmentWorkers: %d, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.StoreBackend,
		c.LedgerBackend,
		c.MongoDatabase,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.ASRBaseURL,
		c.SegmentsBaseURL,
		c.VideoCodec,
		c.MaxSegmentWorkers,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
