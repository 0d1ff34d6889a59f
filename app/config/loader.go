package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and validation of the source configuration
type Loader struct {
	path string
}

// NewLoader creates a new configuration loader
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads and validates the YAML source configuration file
func (l *Loader) Load() (*SourceConfig, error) {
	config, err := l.loadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", l.path, err)
	}

	if err := l.validate(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", l.path, err)
	}

	slog.Debug("Loaded source configuration", "path", l.path, "url", config.Feed.URL)

	return config, nil
}

// loadFile loads a single YAML configuration file
func (l *Loader) loadFile(path string) (*SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config SourceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Set defaults
	l.setDefaults(&config)

	return &config, nil
}

// setDefaults applies default values to configuration
func (l *Loader) setDefaults(config *SourceConfig) {
	if config.Settings.RefreshInterval == 0 {
		config.Settings.RefreshInterval = 3600 // seconds
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = 30 // seconds
	}
	if config.Aliases == nil {
		config.Aliases = make(map[string]string)
	}
}

// validate validates the configuration
func (l *Loader) validate(config *SourceConfig) error {
	if config.Feed.URL == "" {
		return fmt.Errorf("feed URL is required")
	}

	if config.Settings.RefreshInterval < 0 {
		return fmt.Errorf("refresh interval must be non-negative")
	}
	if config.Settings.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	for from, to := range config.Aliases {
		if from == "" || to == "" {
			return fmt.Errorf("alias override must map a non-empty id to a non-empty alias")
		}
	}

	return nil
}
