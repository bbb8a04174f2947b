package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	DataDir         string
	RegionsFile     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// SimplifyTolerance is the Douglas-Peucker tolerance in degrees applied
	// to boundary geometry before serving.
	SimplifyTolerance float64
	SliceCacheSize    int

	// ForecastCutoffYear splits the feature table temporally: years before it
	// train the model, the cutoff year itself is the test set.
	ForecastCutoffYear int

	CORSOrigins []string

	// Reconciled-record export configuration (feature-flagged).
	ExportEnabled  bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	tolerance, err := parseFloat("SIMPLIFY_TOLERANCE", 0.01)
	if err != nil {
		return nil, err
	}
	if tolerance < 0 {
		return nil, errors.New("SIMPLIFY_TOLERANCE must not be negative")
	}

	cacheSize, err := parseInt("SLICE_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	if cacheSize <= 0 {
		return nil, errors.New("SLICE_CACHE_SIZE must be positive")
	}

	cutoffYear, err := parseInt("FORECAST_CUTOFF_YEAR", 2024)
	if err != nil {
		return nil, err
	}

	exportEnabled := false
	if v := os.Getenv("EXPORT_ENABLED"); v != "" {
		exportEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		DataDir:            envOrDefault("DATA_DIR", "./data"),
		RegionsFile:        os.Getenv("REGIONS_FILE"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		SimplifyTolerance:  tolerance,
		SliceCacheSize:     cacheSize,
		ForecastCutoffYear: cutoffYear,
		CORSOrigins:        splitList(envOrDefault("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
		ExportEnabled:      exportEnabled,
		KafkaBrokers:       splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:     envOrDefault("KAFKA_SINK_TOPIC", "reconciled-dengue-cases"),
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.ExportEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("EXPORT_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.ExportEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("EXPORT_ENABLED is true but KAFKA_SINK_TOPIC is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key, fallback string) (time.Duration, error) {
	raw := envOrDefault(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return f, nil
}
