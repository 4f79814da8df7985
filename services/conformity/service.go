// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conformity wires the conformity engine into an HTTP service.
//
// Service assembles the orchestrator, result cache, fallback system and
// optional persistent store from a config.Config. Handlers exposes the
// orchestrator over gin under /v1/conformity.
package conformity

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianConformity/pkg/logging"
	"github.com/AleutianAI/AleutianConformity/services/conformity/cache"
	"github.com/AleutianAI/AleutianConformity/services/conformity/config"
	"github.com/AleutianAI/AleutianConformity/services/conformity/fallback"
	"github.com/AleutianAI/AleutianConformity/services/conformity/orchestrator"
	"github.com/AleutianAI/AleutianConformity/services/conformity/storage/badger"
)

// ServiceVersion is the conformity service version.
const ServiceVersion = "1.0.0"

// Service owns the engine components built from one configuration.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Close must be called once.
type Service struct {
	orch   *orchestrator.Orchestrator
	cache  *cache.ResultCache
	db     *badger.DB
	logger *slog.Logger
}

// NewService builds the engine described by cfg.
//
// Description:
//
//	Opens the badger store when cfg.Cache.Store is set, creates the result
//	cache on top of it and starts its expiry sweep, creates the fallback
//	system with the configured strategies and hands both to a new
//	orchestrator.
//
// Inputs:
//
//	cfg - A validated configuration.
//	logger - Optional. Defaults to slog.Default().
//
// Outputs:
//
//	*Service - Ready to analyze. Caller must Close it.
//	error - Non-nil if the store, the strategies or the orchestrator
//	  cannot be set up.
func NewService(cfg config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{logger: logger.With(slog.String("component", "conformity_service"))}

	cacheOpts := append(cfg.Cache.Options(), cache.WithLogger(logger))
	if cfg.Cache.Store != nil {
		storeCfg := *cfg.Cache.Store
		storeCfg.Dir = logging.ExpandPath(storeCfg.Dir)
		storeCfg.Logger = logger.With(slog.String("component", "badger"))
		db, err := badger.Open(storeCfg)
		if err != nil {
			return nil, fmt.Errorf("open result store: %w", err)
		}
		store, err := badger.NewResultStore(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create result store: %w", err)
		}
		s.db = db
		cacheOpts = append(cacheOpts, cache.WithStore(store))
		s.logger.Info("persistent result store opened",
			slog.String("dir", db.Dir()),
			slog.Bool("in_memory", db.InMemory()))
	}
	s.cache = cache.New(cacheOpts...)
	s.cache.StartCleanup()

	fbOpts, err := cfg.Fallback.Options()
	if err != nil {
		s.closeStorage()
		return nil, fmt.Errorf("load fallback strategies: %w", err)
	}
	fb, err := fallback.New(append(fbOpts, fallback.WithLogger(logger))...)
	if err != nil {
		s.closeStorage()
		return nil, fmt.Errorf("create fallback system: %w", err)
	}

	orch, err := orchestrator.New(cfg.Orchestrator,
		orchestrator.WithCache(s.cache),
		orchestrator.WithFallback(fb),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		s.closeStorage()
		return nil, err
	}
	s.orch = orch
	return s, nil
}

// Orchestrator returns the engine entry point.
func (s *Service) Orchestrator() *orchestrator.Orchestrator {
	return s.orch
}

// Reload applies a reloaded configuration.
//
// Description:
//
//	Only the parts that can change at runtime are applied: the
//	orchestrator flags and limits and the fallback strategy set. Server,
//	cache sizing and telemetry settings need a restart; they are logged
//	and otherwise ignored.
//
// Outputs:
//
//	error - Non-nil if the new strategies cannot be loaded or the new
//	  orchestrator config is invalid. Nothing is applied in that case.
func (s *Service) Reload(cfg config.Config) error {
	strategies, err := cfg.Fallback.Strategies()
	if err != nil {
		return fmt.Errorf("load fallback strategies: %w", err)
	}
	oc := cfg.Orchestrator
	if err := oc.Validate(); err != nil {
		return fmt.Errorf("orchestrator config: %w", err)
	}
	if err := s.orch.Fallback().SetStrategies(strategies); err != nil {
		return fmt.Errorf("install fallback strategies: %w", err)
	}
	if err := s.orch.UpdateConfig(orchestrator.Patch{
		EnableCache:           &oc.EnableCache,
		EnableFallback:        &oc.EnableFallback,
		ParallelAnalysis:      &oc.ParallelAnalysis,
		MaxConcurrentAnalyses: &oc.MaxConcurrentAnalyses,
		Timeout:               &oc.Timeout,
	}); err != nil {
		return err
	}
	s.logger.Info("configuration applied", slog.Int("strategies", len(strategies)))
	return nil
}

// Close stops the cache sweep and closes the store.
func (s *Service) Close() error {
	return errors.Join(s.orch.Close(), s.closeStorage())
}

func (s *Service) closeStorage() error {
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
