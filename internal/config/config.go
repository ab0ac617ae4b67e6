package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultCasesURL is the LAGeSo district overview export.
const DefaultCasesURL = "https://www.berlin.de/lageso/gesundheit/infektionsepidemiologie-infektionsschutz/corona/tabelle-bezirke-gesamtuebersicht/index.php/index/all.csv"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Upstream case data.
	CasesURL      string        `env:"CASES_URL"`
	CasesTimeout  time.Duration `env:"CASES_TIMEOUT" envDefault:"10s"`
	CasesTTL      time.Duration `env:"CASES_TTL" envDefault:"1h"`
	RetryAttempts int           `env:"RETRY_ATTEMPTS" envDefault:"10"`
	RetryWait     time.Duration `env:"RETRY_WAIT" envDefault:"1s"`

	GeometryPath string `env:"GEOMETRY_PATH" envDefault:"data/berlin_bezirke.geojson"`

	// Kafka publishing is disabled while no brokers are configured.
	KafkaBrokers    []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic      string        `env:"KAFKA_TOPIC" envDefault:"district-incidence"`
	PublishInterval time.Duration `env:"PUBLISH_INTERVAL" envDefault:"15m"`
}

// PublishEnabled reports whether any Kafka broker is configured.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	cfg := &Config{CasesURL: DefaultCasesURL}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.KafkaBrokers = cleanList(cfg.KafkaBrokers)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.CasesURL == "" {
		return errors.New("CASES_URL is required")
	}
	if u, err := url.Parse(c.CasesURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("CASES_URL must be an http(s) URL")
	}
	if c.CasesTimeout <= 0 {
		return errors.New("CASES_TIMEOUT must be positive")
	}
	if c.CasesTTL <= 0 {
		return errors.New("CASES_TTL must be positive")
	}
	if c.RetryAttempts < 1 {
		return errors.New("RETRY_ATTEMPTS must be at least 1")
	}
	if c.RetryWait < 0 {
		return errors.New("RETRY_WAIT must not be negative")
	}
	if c.GeometryPath == "" {
		return errors.New("GEOMETRY_PATH is required")
	}
	if c.PublishEnabled() {
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
		}
		if c.PublishInterval <= 0 {
			return errors.New("PUBLISH_INTERVAL must be positive")
		}
	}
	return nil
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
