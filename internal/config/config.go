package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/element-grid-service/internal/adapter/dataset"
	"github.com/couchcryptid/element-grid-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Dataset and layout.
	DatasetPath    string
	DatasetFormat  string // "csv", "json" or "yaml"
	Bounds         domain.Bounds
	Fields         domain.FieldMap
	ReloadInterval time.Duration // 0 loads once

	// Timestamped samples joined to records. An empty path disables them.
	SamplesPath   string
	SamplesFormat string
	SampleFields  domain.SampleFields

	// Layout event publishing.
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaLayoutTopic string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	GeoFields       domain.GeoFields
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	reloadInterval, err := parseDuration("RELOAD_INTERVAL", "0s", true)
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s", false)
	if err != nil {
		return nil, err
	}

	maxRows, err := parsePositiveInt("GRID_MAX_ROWS", 10)
	if err != nil {
		return nil, err
	}
	maxColumns, err := parsePositiveInt("GRID_MAX_COLUMNS", 18)
	if err != nil {
		return nil, err
	}

	datasetPath := sharedcfg.EnvOrDefault("DATASET_PATH", "data/elements.csv")
	datasetFormat, err := dataset.ResolveFormat(os.Getenv("DATASET_FORMAT"), datasetPath)
	if err != nil {
		return nil, fmt.Errorf("invalid DATASET_FORMAT: %w", err)
	}

	samplesPath := strings.TrimSpace(os.Getenv("SAMPLES_PATH"))
	var samplesFormat string
	if samplesPath != "" {
		samplesFormat, err = dataset.ResolveFormat(os.Getenv("SAMPLES_FORMAT"), samplesPath)
		if err != nil {
			return nil, fmt.Errorf("invalid SAMPLES_FORMAT: %w", err)
		}
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	defaults := domain.DefaultFieldMap()
	geoDefaults := domain.DefaultGeoFields()
	sampleDefaults := domain.DefaultSampleFields()

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatasetPath:   datasetPath,
		DatasetFormat: datasetFormat,
		Bounds:        domain.Bounds{MaxRow: maxRows, MaxColumn: maxColumns},
		Fields: domain.FieldMap{
			Key:      sharedcfg.EnvOrDefault("FIELD_KEY", defaults.Key),
			Row:      sharedcfg.EnvOrDefault("FIELD_ROW", defaults.Row),
			Column:   sharedcfg.EnvOrDefault("FIELD_COLUMN", defaults.Column),
			Category: envOrDefaultAllowEmpty("FIELD_CATEGORY", defaults.Category),
			Sort:     envOrDefaultAllowEmpty("FIELD_SORT", defaults.Sort),
		},
		ReloadInterval: reloadInterval,

		SamplesPath:   samplesPath,
		SamplesFormat: samplesFormat,
		SampleFields: domain.SampleFields{
			Key:       sharedcfg.EnvOrDefault("SAMPLE_KEY_FIELD", sampleDefaults.Key),
			Timestamp: sharedcfg.EnvOrDefault("SAMPLE_TIMESTAMP_FIELD", sampleDefaults.Timestamp),
			Join:      envOrDefaultAllowEmpty("SAMPLE_JOIN_FIELD", sampleDefaults.Join),
		},

		KafkaEnabled:     os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaLayoutTopic: sharedcfg.EnvOrDefault("KAFKA_LAYOUT_TOPIC", "grid-layout"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
		GeoFields: domain.GeoFields{
			Place:  sharedcfg.EnvOrDefault("FIELD_PLACE", geoDefaults.Place),
			Region: envOrDefaultAllowEmpty("FIELD_REGION", geoDefaults.Region),
			Lat:    sharedcfg.EnvOrDefault("FIELD_LAT", geoDefaults.Lat),
			Lon:    sharedcfg.EnvOrDefault("FIELD_LON", geoDefaults.Lon),
		},
	}

	if cfg.DatasetPath == "" {
		return nil, errors.New("DATASET_PATH is required")
	}
	if err := cfg.Fields.Validate(); err != nil {
		return nil, fmt.Errorf("FIELD_*: %w", err)
	}
	if cfg.SamplesPath != "" {
		if err := cfg.SampleFields.Validate(); err != nil {
			return nil, fmt.Errorf("SAMPLE_*: %w", err)
		}
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaLayoutTopic == "" {
			return nil, errors.New("KAFKA_LAYOUT_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parseDuration(name, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d < 0 || (!allowZero && d == 0) {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", name)
	}
	return n, nil
}

// envOrDefaultAllowEmpty distinguishes unset (default) from set-but-empty
// (feature disabled), which optional field names need.
func envOrDefaultAllowEmpty(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
