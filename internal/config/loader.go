package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays secrets that should not live in the config file.
func applyEnv(cfg *Config) {
	if dsn := os.Getenv("EARSHOT_POSTGRES_DSN"); dsn != "" {
		cfg.Archive.PostgresDSN = dsn
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Classifier
	if cfg.Classifier.Kind != "" && !cfg.Classifier.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("classifier.kind %q is invalid; valid values: http, mock", cfg.Classifier.Kind))
	}
	if cfg.Classifier.Kind == ClassifierHTTP && cfg.Classifier.BaseURL == "" {
		errs = append(errs, errors.New("classifier.base_url is required when classifier.kind is http"))
	}
	if cfg.Classifier.ReadyTimeout < 0 {
		errs = append(errs, errors.New("classifier.ready_timeout must not be negative"))
	}
	if cfg.Classifier.ClassifyTimeout < 0 {
		errs = append(errs, errors.New("classifier.classify_timeout must not be negative"))
	}
	if cfg.Classifier.Breaker.Threshold < 0 {
		errs = append(errs, errors.New("classifier.breaker.threshold must not be negative"))
	}
	if cfg.Classifier.Breaker.Probes < 0 {
		errs = append(errs, errors.New("classifier.breaker.probes must not be negative"))
	}

	if cfg.Classifier.Kind == ClassifierMock {
		slog.Warn("classifier.kind is mock; detections will be synthetic")
	}

	// Archive availability
	if cfg.Archive.PostgresDSN == "" {
		slog.Warn("archive.postgres_dsn is empty; finished sessions will not be archived")
	}

	return errors.Join(errs...)
}
