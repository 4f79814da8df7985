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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConformity/pkg/ux"
	"github.com/AleutianAI/AleutianConformity/services/conformity"
	"github.com/AleutianAI/AleutianConformity/services/conformity/config"
	"github.com/AleutianAI/AleutianConformity/services/conformity/fallback"
)

// --- Global Command Variables ---
var (
	configPath       string
	personalityLevel string // output level (standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "conformity",
		Short: "Conformity analysis for public procurement documents",
		Long: `conformity scores procurement documents (editais, termos de referência,
contract drafts) against structural, legal, clarity and ABNT rules.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if personalityLevel != "" {
				ux.SetPersonality(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Server ---
	servePort int
	serveCmd  = &cobra.Command{
		Use:   "serve",
		Short: "Run the conformity HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	// --- Analysis ---
	analyzeOpts analyzeOptions
	analyzeCmd  = &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a document file and print the conformity report",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze, // Defined in cmd_analyze.go
	}

	// --- Inspection ---
	strategiesCmd = &cobra.Command{
		Use:   "strategies",
		Short: "Print the effective fallback strategies as YAML",
		Args:  cobra.NoArgs,
		RunE:  runStrategies,
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE:  runConfig,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "conformity %s\n", conformity.ServiceVersion)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFORMITY_CONFIG, else built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "output", "", "output style: standard, minimal or machine (default $CONFORMITY_OUTPUT)")

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (overrides config)")

	analyzeCmd.Flags().StringVarP(&analyzeOpts.docType, "type", "t", "edital", "document type")
	analyzeCmd.Flags().StringVarP(&analyzeOpts.modality, "modality", "m", "", "procurement modality")
	analyzeCmd.Flags().StringVar(&analyzeOpts.objectType, "object-type", "", "object type (aquisicao, servico, obra_servicos_eng)")
	analyzeCmd.Flags().StringToStringVar(&analyzeOpts.params, "param", nil, "analysis parameter key=value (repeatable)")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.json, "json", false, "print the full result as JSON")
	analyzeCmd.Flags().Float64Var(&analyzeOpts.minScore, "min-score", 0, "exit non-zero when the overall score is below this value")

	rootCmd.AddCommand(serveCmd, analyzeCmd, strategiesCmd, configCmd, versionCmd)
}

func runStrategies(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	strategies, err := cfg.Fallback.Strategies()
	if err != nil {
		return err
	}
	data, err := fallback.MarshalStrategies(strategies)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
