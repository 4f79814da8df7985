// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConformity/pkg/logging"
	"github.com/AleutianAI/AleutianConformity/services/conformity"
	"github.com/AleutianAI/AleutianConformity/services/conformity/config"
	"github.com/AleutianAI/AleutianConformity/services/conformity/telemetry"
)

// runServe starts the HTTP API and blocks until SIGINT or SIGTERM.
//
// Description:
//
//	Loads the configuration, sets up logging and telemetry, builds the
//	engine and serves it. When a config file is in use it is watched and
//	reloaded in place. On a signal the server drains in-flight requests
//	for up to Server.ShutdownTimeout before the engine is closed.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger := logging.New(cfg.Logging)
	defer logger.Close()
	log := logger.Slog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	svc, err := conformity.NewService(cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	if path := watchedConfigPath(); path != "" {
		watcher, err := config.NewWatcher(path, func(next config.Config) {
			if err := svc.Reload(next); err != nil {
				log.Warn("Config reload not applied", slog.String("error", err.Error()))
			}
		}, log)
		if err != nil {
			log.Warn("Config hot reload disabled", slog.String("error", err.Error()))
		} else {
			defer watcher.Stop()
			go watcher.Start(ctx)
		}
	}

	if cfg.Logging.Level > logging.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := conformity.NewHandlers(svc.Orchestrator(), log)
	router := conformity.NewRouter(cfg.Server, handlers, cfg.Telemetry.ServiceName, log)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting conformity server",
			slog.String("address", srv.Addr),
			slog.String("version", conformity.ServiceVersion))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down conformity server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// watchedConfigPath is the file Load read, if any.
func watchedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("CONFORMITY_CONFIG")
}
