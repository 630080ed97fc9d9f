package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Sink names accepted by SINK.
const (
	SinkFile  = "file"
	SinkKafka = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	FIADBPath string
	States    string

	Sink      string
	OutputDir string

	KafkaBrokers   []string
	KafkaSinkTopic string

	// Identity columns of the PLOT table.
	PlotIDColumn   string
	PlotPrevColumn string

	ExtractMaxRetries int

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

	retries, err := parseExtractMaxRetries()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		FIADBPath:         sharedcfg.EnvOrDefault("FIADB_PATH", "data/fiadb.db"),
		States:            os.Getenv("STATES"),
		Sink:              sharedcfg.EnvOrDefault("SINK", SinkFile),
		OutputDir:         sharedcfg.EnvOrDefault("OUTPUT_DIR", "data/out"),
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:    sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "fia-plot-summaries"),
		PlotIDColumn:      sharedcfg.EnvOrDefault("PLOT_ID_COLUMN", "CN"),
		PlotPrevColumn:    sharedcfg.EnvOrDefault("PLOT_PREV_COLUMN", "PREV_PLT_CN"),
		ExtractMaxRetries: retries,
		HTTPAddr:          sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that depend on each other. Callers that override
// fields from flags call it again.
func (c *Config) Validate() error {
	switch c.Sink {
	case SinkFile:
		if c.OutputDir == "" {
			return errors.New("OUTPUT_DIR is required when SINK is file")
		}
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when SINK is kafka")
		}
		if c.KafkaSinkTopic == "" {
			return errors.New("KAFKA_SINK_TOPIC is required when SINK is kafka")
		}
	default:
		return fmt.Errorf("invalid SINK %q: want %q or %q", c.Sink, SinkFile, SinkKafka)
	}
	if c.FIADBPath == "" {
		return errors.New("FIADB_PATH is required")
	}
	if c.PlotIDColumn == "" || c.PlotPrevColumn == "" {
		return errors.New("PLOT_ID_COLUMN and PLOT_PREV_COLUMN must not be empty")
	}
	return nil
}

func parseExtractMaxRetries() (int, error) {
	s := os.Getenv("EXTRACT_MAX_RETRIES")
	if s == "" {
		return 3, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 20 {
		return 0, errors.New("invalid EXTRACT_MAX_RETRIES: want an integer in [0, 20]")
	}
	return n, nil
}
