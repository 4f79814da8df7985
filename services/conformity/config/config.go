// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the conformity service configuration.
//
// Defaults live in the embedded conformity.yaml. Load overlays an external
// YAML file and a few environment variables on top of them, then validates
// the result with struct tags.
//
// # Environment Variables
//
//   - CONFORMITY_CONFIG: config file path when none is given
//   - CONFORMITY_PORT: server port
//   - CONFORMITY_LOG_LEVEL: logging level
//   - OTEL_TRACES_EXPORTER, OTEL_METRICS_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianConformity/pkg/logging"
	"github.com/AleutianAI/AleutianConformity/services/conformity/cache"
	"github.com/AleutianAI/AleutianConformity/services/conformity/fallback"
	"github.com/AleutianAI/AleutianConformity/services/conformity/orchestrator"
	"github.com/AleutianAI/AleutianConformity/services/conformity/storage/badger"
	"github.com/AleutianAI/AleutianConformity/services/conformity/telemetry"
)

// MaxYAMLFileSize is the largest config file Load accepts (1MB).
const MaxYAMLFileSize = 1024 * 1024

//go:embed conformity.yaml
var defaultYAML []byte

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Config is the complete service configuration.
type Config struct {
	Server       ServerConfig        `yaml:"server"`
	Orchestrator orchestrator.Config `yaml:"orchestrator"`
	Cache        CacheConfig         `yaml:"cache"`
	Fallback     FallbackConfig      `yaml:"fallback"`
	Telemetry    telemetry.Config    `yaml:"telemetry"`
	Logging      logging.Config      `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gte=1,lte=65535"`
	RateLimit       float64       `yaml:"rate_limit" validate:"gt=0"`
	Burst           int           `yaml:"burst" validate:"gte=1"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" validate:"gte=1"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}

// CacheConfig controls the result cache. A nil Store keeps results in
// memory only.
type CacheConfig struct {
	MaxEntries      int            `yaml:"max_entries" validate:"gte=1"`
	MaxSizeBytes    int64          `yaml:"max_size_bytes" validate:"gte=1"`
	TTL             time.Duration  `yaml:"ttl" validate:"gt=0"`
	CleanupInterval time.Duration  `yaml:"cleanup_interval" validate:"gt=0"`
	Store           *badger.Config `yaml:"store,omitempty"`
}

// Options converts the section into cache options. The persistent store,
// if any, is opened by the caller and passed with cache.WithStore.
func (c CacheConfig) Options() []cache.Option {
	return []cache.Option{
		cache.WithMaxEntries(c.MaxEntries),
		cache.WithMaxSizeBytes(c.MaxSizeBytes),
		cache.WithTTL(c.TTL),
		cache.WithCleanupInterval(c.CleanupInterval),
	}
}

// FallbackConfig controls the fallback system.
type FallbackConfig struct {
	MaxRetries     int           `yaml:"max_retries" validate:"gte=0"`
	RetryDelay     time.Duration `yaml:"retry_delay" validate:"gt=0"`
	LogCapacity    int           `yaml:"log_capacity" validate:"gte=1"`
	StrategiesFile string        `yaml:"strategies_file"`
}

// Strategies returns the configured strategy set: the file's when one is
// set, the built-in defaults otherwise.
func (f FallbackConfig) Strategies() ([]fallback.Strategy, error) {
	if f.StrategiesFile == "" {
		return fallback.DefaultStrategies(), nil
	}
	return fallback.LoadStrategiesFile(f.StrategiesFile)
}

// Options converts the section into fallback options.
func (f FallbackConfig) Options() ([]fallback.Option, error) {
	strategies, err := f.Strategies()
	if err != nil {
		return nil, err
	}
	return []fallback.Option{
		fallback.WithMaxRetries(f.MaxRetries),
		fallback.WithRetryDelay(f.RetryDelay),
		fallback.WithLogCapacity(f.LogCapacity),
		fallback.WithStrategies(strategies),
	}, nil
}

// Default returns the embedded configuration.
//
// Panics if the embedded file does not parse, which is a build defect.
func Default() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded conformity.yaml: %v", err))
	}
	return cfg
}

// Load builds the effective configuration.
//
// Description:
//
//	Starts from Default, overlays the YAML file at path (or at
//	CONFORMITY_CONFIG when path is empty), applies environment
//	overrides and validates. With no file at all the defaults plus
//	environment are used.
//
// Inputs:
//
//	path - Config file path. May be empty.
//
// Outputs:
//
//	Config - The validated configuration.
//	error - Read, parse or validation failure. Validation errors wrap
//	  ErrInvalidConfig.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFORMITY_CONFIG")
	}
	if path != "" {
		data, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section's struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func readFile(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", abs, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return data, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("CONFORMITY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CONFORMITY_PORT=%q is not a number", ErrInvalidConfig, v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("CONFORMITY_LOG_LEVEL"); v != "" {
		level, err := logging.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("%w: CONFORMITY_LOG_LEVEL: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.Level = level
	}
	if v := os.Getenv("OTEL_TRACES_EXPORTER"); v != "" {
		cfg.Telemetry.TraceExporter = v
	}
	if v := os.Getenv("OTEL_METRICS_EXPORTER"); v != "" {
		cfg.Telemetry.MetricExporter = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	return nil
}
