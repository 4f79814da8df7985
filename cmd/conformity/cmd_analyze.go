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
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConformity/pkg/logging"
	"github.com/AleutianAI/AleutianConformity/pkg/ux"
	"github.com/AleutianAI/AleutianConformity/services/conformity"
	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
	"github.com/AleutianAI/AleutianConformity/services/conformity/config"
)

type analyzeOptions struct {
	docType    string
	modality   string
	objectType string
	params     map[string]string
	json       bool
	minScore   float64
}

func (o analyzeOptions) classification() analysis.Classification {
	return analysis.Classification{
		DocumentType: analysis.DocumentType(o.docType),
		Modality:     analysis.Modality(o.modality),
		ObjectType:   o.objectType,
	}
}

func (o analyzeOptions) parameters() map[string]any {
	if len(o.params) == 0 {
		return nil
	}
	out := make(map[string]any, len(o.params))
	for k, v := range o.params {
		out[k] = v
	}
	return out
}

// runAnalyze analyzes one file in-process and prints the report.
func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	classification := analyzeOpts.classification()
	if err := classification.Validate(); err != nil {
		return fmt.Errorf("invalid classification: %w", err)
	}

	text, err := readDocument(args[0], cfg.Server.MaxBodyBytes)
	if err != nil {
		return err
	}

	// Engine logs stay out of the report. JSON runs write them to stderr;
	// report runs buffer them and list them after the report.
	logCfg := cfg.Logging
	logCfg.Output = cmd.ErrOrStderr()
	if logCfg.Level < logging.LevelWarn {
		logCfg.Level = logging.LevelWarn
	}
	var engineLogs *logging.BufferedExporter
	if !analyzeOpts.json {
		engineLogs = logging.NewBufferedExporter()
		logCfg.Quiet = true
		logCfg.Exporter = engineLogs
	}
	logger := logging.New(logCfg)
	defer logger.Close()

	svc, err := conformity.NewService(cfg, logger.Slog())
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()
	var res analysis.ComprehensiveResult
	analyze := func() error {
		var err error
		res, err = svc.Orchestrator().AnalyzeDocument(cmd.Context(), text, classification, analyzeOpts.parameters())
		return err
	}
	if analyzeOpts.json {
		err = analyze()
	} else {
		err = ux.WithSpinner(cmd.ErrOrStderr(), "Analisando "+args[0], analyze)
	}
	if err != nil {
		return err
	}

	if analyzeOpts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		renderReport(out, res)
		// Close waits for in-flight exports.
		if err := logger.Close(); err != nil {
			return err
		}
		renderEngineLogs(out, engineLogs.Entries())
	}

	if res.OverallScore < analyzeOpts.minScore {
		return fmt.Errorf("overall score %.1f is below the minimum %.1f", res.OverallScore, analyzeOpts.minScore)
	}
	return nil
}

func readDocument(path string, limit int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat document: %w", err)
	}
	if info.Size() > limit {
		return "", fmt.Errorf("document %s is %d bytes, limit is %d", path, info.Size(), limit)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return string(data), nil
}

var severityIcons = map[analysis.Severity]ux.Icon{
	analysis.SeverityCritical: ux.IconError,
	analysis.SeverityHigh:     ux.IconError,
	analysis.SeverityMedium:   ux.IconWarning,
	analysis.SeverityLow:      ux.IconPending,
}

// renderReport prints scores per category and the findings, most severe
// first.
func renderReport(w io.Writer, res analysis.ComprehensiveResult) {
	machine := ux.GetPersonality() == ux.PersonalityMachine

	ux.Title(w, "Relatório de conformidade")
	if machine {
		fmt.Fprintf(w, "analysis_id\t%s\n", res.AnalysisID)
	} else {
		ux.Info(w, fmt.Sprintf("análise %s · %d ms · cache: %v", res.AnalysisID, res.TotalProcessingTime, res.FromCache))
	}

	for _, c := range analysis.AllCategories() {
		r := res.CategoryResults.Get(c)
		if machine {
			line := fmt.Sprintf("score\t%s\t%.1f\t%.1f", c.String(), r.Score, r.Confidence)
			if r.Degraded {
				line += "\tdegraded"
			}
			fmt.Fprintln(w, line)
			continue
		}
		suffix := ""
		if r.Degraded {
			suffix = " " + ux.Styles.Warning.Render("(degradado)")
		}
		fmt.Fprintf(w, "%-11s %s%s\n", c.String(), ux.ScoreBar(r.Score, 30), suffix)
	}
	if machine {
		fmt.Fprintf(w, "score\toverall\t%.1f\t%.1f\n", res.OverallScore, res.OverallConfidence)
	} else {
		fmt.Fprintf(w, "%-11s %s  confiança %.0f%%\n", "geral", ux.ScoreBar(res.OverallScore, 30), res.OverallConfidence)
		if res.CategoryResults.AnyDegraded() {
			ux.Warning(w, "Resultado parcial: categorias marcadas como degradadas usaram análise de contingência")
		}
	}

	problems := slices.Clone(res.Problems)
	slices.SortStableFunc(problems, func(a, b analysis.Finding) int {
		return cmp.Compare(b.Severity, a.Severity)
	})

	if len(problems) == 0 {
		ux.Success(w, "Nenhum problema encontrado")
		return
	}
	if machine {
		for _, p := range problems {
			fmt.Fprintf(w, "problem\t%s\t%s\t%s\t%s\n", p.Severity, p.Category, p.Kind, p.Description)
		}
		return
	}

	var b strings.Builder
	for i, p := range problems {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s %s", severityIcons[p.Severity].Render(), ux.Styles.Bold.Render(p.Severity.String()), p.Description)
		if p.Location != "" {
			fmt.Fprintf(&b, " %s", ux.Styles.Muted.Render("("+p.Location+")"))
		}
		if p.SuggestedFix != "" {
			fmt.Fprintf(&b, "\n  %s %s", ux.IconArrow.Render(), p.SuggestedFix)
		}
	}
	title := fmt.Sprintf("%d problemas", len(problems))
	if problems[0].Severity >= analysis.SeverityHigh {
		ux.WarningBox(w, title, b.String())
		return
	}
	ux.Box(w, title, b.String())
}

// renderEngineLogs lists the warnings and errors the engine logged while
// the report was being produced.
func renderEngineLogs(w io.Writer, entries []logging.LogEntry) {
	if len(entries) == 0 {
		return
	}
	machine := ux.GetPersonality() == ux.PersonalityMachine
	for _, e := range entries {
		msg := e.Message
		if errText, ok := e.Attrs["error"].(string); ok && errText != "" {
			msg += ": " + errText
		}
		switch {
		case machine:
			fmt.Fprintf(w, "log\t%s\t%s\n", e.Level, msg)
		case e.Level >= logging.LevelError:
			ux.Error(w, msg)
		default:
			ux.Warning(w, msg)
		}
	}
}
