package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // ALERT_TIMEZONE must resolve on minimal images

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultFeedURL is the USGS summary feed of magnitude 2.5+ events over the past day.
const DefaultFeedURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/2.5_day.geojson"

// MaxDispatchRetries is the largest accepted DISPATCH_MAX_RETRIES.
const MaxDispatchRetries = 30

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Feed source.
	FeedURL     string
	FeedTimeout time.Duration

	// Region of interest and threshold.
	LatMin       float64
	LatMax       float64
	LonMin       float64
	LonMax       float64
	MinMagnitude float64

	// Loop cadence.
	CheckInterval time.Duration
	MessageDelay  time.Duration
	DedupEnabled  bool

	// Messaging channel.
	LineChannelAccessToken string
	LineBaseURL            string
	LineTimeout            time.Duration
	MaxRetries             int
	BaseRetryDelay         time.Duration

	// Display zone for alert timestamps.
	AlertTimezone string
	Location      *time.Location

	// Mapbox reverse geocoding for events without a place.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Optional Kafka archive of dispatched alerts.
	KafkaBrokers    []string
	KafkaAlertTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FeedURL: sharedcfg.EnvOrDefault("FEED_URL", DefaultFeedURL),

		LineChannelAccessToken: strings.TrimSpace(os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")),
		LineBaseURL:            sharedcfg.EnvOrDefault("LINE_API_BASE_URL", "https://api.line.me"),

		AlertTimezone:   sharedcfg.EnvOrDefault("ALERT_TIMEZONE", "Asia/Bangkok"),
		MapboxToken:     os.Getenv("MAPBOX_TOKEN"),
		MapboxCacheSize: parseMapboxCacheSize(),
		KafkaAlertTopic: sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "earthquake-alerts"),
	}

	durations := []struct {
		key       string
		def       string
		dest      *time.Duration
		allowZero bool
	}{
		{"FEED_TIMEOUT", "10s", &cfg.FeedTimeout, false},
		{"CHECK_INTERVAL", "60s", &cfg.CheckInterval, false},
		{"MESSAGE_DELAY", "5s", &cfg.MessageDelay, true}, // 0 disables the post-send pause
		{"LINE_TIMEOUT", "10s", &cfg.LineTimeout, false},
		{"DISPATCH_BASE_RETRY_DELAY", "5s", &cfg.BaseRetryDelay, false},
		{"MAPBOX_TIMEOUT", "5s", &cfg.MapboxTimeout, false},
	}
	for _, d := range durations {
		v, err := parseDuration(d.key, d.def, d.allowZero)
		if err != nil {
			return nil, err
		}
		*d.dest = v
	}

	floats := []struct {
		key  string
		def  float64
		dest *float64
	}{
		{"REGION_LAT_MIN", 5, &cfg.LatMin},
		{"REGION_LAT_MAX", 22, &cfg.LatMax},
		{"REGION_LON_MIN", 92, &cfg.LonMin},
		{"REGION_LON_MAX", 108, &cfg.LonMax},
		{"MIN_MAGNITUDE", 2.5, &cfg.MinMagnitude},
	}
	for _, f := range floats {
		v, err := parseFloat(f.key, f.def)
		if err != nil {
			return nil, err
		}
		*f.dest = v
	}

	if cfg.MaxRetries, err = parsePositiveInt("DISPATCH_MAX_RETRIES", 5); err != nil {
		return nil, err
	}
	if cfg.DedupEnabled, err = parseBool("ALERT_DEDUP", false); err != nil {
		return nil, err
	}

	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		cfg.MapboxEnabled = v == "true"
	}

	if raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); raw != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(raw)
	}

	if cfg.Location, err = time.LoadLocation(cfg.AlertTimezone); err != nil {
		return nil, fmt.Errorf("invalid ALERT_TIMEZONE: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ArchiveEnabled reports whether dispatched alerts are published to Kafka.
func (c *Config) ArchiveEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func (c *Config) validate() error {
	if c.LineChannelAccessToken == "" {
		return errors.New("LINE_CHANNEL_ACCESS_TOKEN is required")
	}
	if c.FeedURL == "" {
		return errors.New("FEED_URL is required")
	}
	if c.LatMin > c.LatMax {
		return errors.New("REGION_LAT_MIN must not exceed REGION_LAT_MAX")
	}
	if c.LonMin > c.LonMax {
		return errors.New("REGION_LON_MIN must not exceed REGION_LON_MAX")
	}
	if c.LatMin < -90 || c.LatMax > 90 {
		return errors.New("REGION_LAT_MIN/REGION_LAT_MAX must be within [-90, 90]")
	}
	if c.LonMin < -180 || c.LonMax > 180 {
		return errors.New("REGION_LON_MIN/REGION_LON_MAX must be within [-180, 180]")
	}
	if c.MaxRetries > MaxDispatchRetries {
		return fmt.Errorf("DISPATCH_MAX_RETRIES must not exceed %d", MaxDispatchRetries)
	}
	if c.MinMagnitude < 0 {
		return errors.New("MIN_MAGNITUDE must not be negative")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if c.ArchiveEnabled() && c.KafkaAlertTopic == "" {
		return errors.New("KAFKA_ALERT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
