package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Archive backends.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// Default text-form labels, matching the Minnesota Department of Health
// situation update page.
const (
	DefaultTestedLabel   = "Total approximate number of completed tests:"
	DefaultPositiveLabel = "Total positive:"
	DefaultAsOfLabel     = "Updated"
)

// Config holds all tracker settings, populated from environment variables.
type Config struct {
	OutputDir    string
	Region       string
	SourceURL    string
	SourceFormat string
	Location     *time.Location
	FetchTimeout time.Duration

	TestedLabel   string
	PositiveLabel string
	AsOfLabel     string

	ArchiveBackend string
	SQLitePath     string

	// Publish and notify collaborators.
	PublishPath      string
	NotifyEnabled    bool
	KafkaBrokers     []string
	KafkaNotifyTopic string
	PushgatewayURL   string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("FETCH_TIMEOUT", "30s"))
	if err != nil || fetchTimeout <= 0 {
		return nil, errors.New("invalid FETCH_TIMEOUT")
	}

	tz := sharedcfg.EnvOrDefault("COVID_TIMEZONE", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid COVID_TIMEZONE %q: %w", tz, err)
	}

	notify, err := parseBool(sharedcfg.EnvOrDefault("COVID_NOTIFY", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid COVID_NOTIFY: %w", err)
	}

	outputDir := sharedcfg.EnvOrDefault("COVID_OUTPUT_DIR", "output")
	if !filepath.IsAbs(outputDir) {
		if abs, err := filepath.Abs(outputDir); err == nil {
			outputDir = abs
		}
	}

	cfg := &Config{
		OutputDir:    outputDir,
		Region:       sharedcfg.EnvOrDefault("COVID_REGION", "MN"),
		SourceURL:    sharedcfg.EnvOrDefault("COVID_SOURCE_URL", "https://covidtracking.com/api/states"),
		SourceFormat: strings.ToLower(sharedcfg.EnvOrDefault("COVID_SOURCE_FORMAT", "list")),
		Location:     loc,
		FetchTimeout: fetchTimeout,

		TestedLabel:   sharedcfg.EnvOrDefault("COVID_TESTED_LABEL", DefaultTestedLabel),
		PositiveLabel: sharedcfg.EnvOrDefault("COVID_POSITIVE_LABEL", DefaultPositiveLabel),
		AsOfLabel:     sharedcfg.EnvOrDefault("COVID_ASOF_LABEL", DefaultAsOfLabel),

		ArchiveBackend: strings.ToLower(sharedcfg.EnvOrDefault("ARCHIVE_BACKEND", BackendFS)),
		SQLitePath:     sharedcfg.EnvOrDefault("SQLITE_PATH", filepath.Join(outputDir, "archive.db")),

		PublishPath:      sharedcfg.EnvOrDefault("COVID_PUBLISH_PATH", ""),
		NotifyEnabled:    notify,
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaNotifyTopic: sharedcfg.EnvOrDefault("KAFKA_NOTIFY_TOPIC", "covid-daily-report"),
		PushgatewayURL:   sharedcfg.EnvOrDefault("PUSHGATEWAY_URL", ""),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.Region == "" {
		return nil, errors.New("COVID_REGION is required")
	}
	if cfg.SourceURL == "" {
		return nil, errors.New("COVID_SOURCE_URL is required")
	}
	if cfg.SourceFormat != "list" && cfg.SourceFormat != "text" {
		return nil, fmt.Errorf("COVID_SOURCE_FORMAT must be list or text, got %q", cfg.SourceFormat)
	}
	if cfg.ArchiveBackend != BackendFS && cfg.ArchiveBackend != BackendSQLite {
		return nil, fmt.Errorf("ARCHIVE_BACKEND must be %s or %s, got %q", BackendFS, BackendSQLite, cfg.ArchiveBackend)
	}
	if cfg.NotifyEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("COVID_NOTIFY is set but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaNotifyTopic == "" {
			return nil, errors.New("COVID_NOTIFY is set but KAFKA_NOTIFY_TOPIC is empty")
		}
	}

	return cfg, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "", "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", s)
	}
}
