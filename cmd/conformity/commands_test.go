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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConformity/pkg/logging"
	"github.com/AleutianAI/AleutianConformity/pkg/ux"
	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
)

var document = strings.Repeat("1. DO OBJETO\nA presente licitação tem por objeto a aquisição de equipamentos de informática. "+
	"2. DO PRAZO\nO prazo de entrega será de 30 dias corridos contados da assinatura do contrato.\n", 3)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFORMITY_CONFIG", "")
	t.Setenv("CONFORMITY_OUTPUT", "")
	configPath = ""
	analyzeOpts = analyzeOptions{docType: "edital"}
	t.Cleanup(func() { ux.SetPersonality(ux.PersonalityStandard) })

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append(args, "--output", "machine"))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeDocument(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edital.txt")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

// ---- Analyze Command Tests ----

func TestAnalyzeCommand_JSON(t *testing.T) {
	path := writeDocument(t, document)

	out, err := execute(t, "analyze", path, "--type", "edital", "--modality", "processo_licitatorio", "--json")
	require.NoError(t, err)

	var res analysis.ComprehensiveResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.NotEmpty(t, res.AnalysisID)
	assert.GreaterOrEqual(t, res.OverallScore, 0.0)
	assert.LessOrEqual(t, res.OverallScore, 100.0)
	assert.Len(t, res.CategoryResults.Ordered(), 4)
}

func TestAnalyzeCommand_Report(t *testing.T) {
	path := writeDocument(t, document)

	out, err := execute(t, "analyze", path, "-t", "edital", "-m", "processo_licitatorio", "--param", "orgao=prefeitura")
	require.NoError(t, err)
	assert.Contains(t, out, "analysis_id\t")
	assert.Contains(t, out, "score\tstructural\t")
	assert.Contains(t, out, "score\toverall\t")
}

func TestAnalyzeCommand_Errors(t *testing.T) {
	path := writeDocument(t, document)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown document type", []string{"analyze", path, "--type", "memo"}},
		{"missing file", []string{"analyze", filepath.Join(t.TempDir(), "nope.txt")}},
		{"below minimum score", []string{"analyze", path, "-m", "processo_licitatorio", "--min-score", "101"}},
		{"no file argument", []string{"analyze"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestAnalyzeOptions_Parameters(t *testing.T) {
	assert.Nil(t, analyzeOptions{}.parameters())
	assert.Equal(t, map[string]any{"orgao": "prefeitura"},
		analyzeOptions{params: map[string]string{"orgao": "prefeitura"}}.parameters())
}

// ---- Inspection Command Tests ----

func TestStrategiesCommand(t *testing.T) {
	out, err := execute(t, "strategies")
	require.NoError(t, err)
	for _, name := range []string{"retry_strategy", "basic_analysis_strategy", "error_result_strategy"} {
		assert.Contains(t, out, name)
	}
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "port: 12230")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "conformity 1.0.0\n", out)
}

// ---- Report Tests ----

func TestRenderReport_Machine(t *testing.T) {
	ux.SetPersonality(ux.PersonalityMachine)
	t.Cleanup(func() { ux.SetPersonality(ux.PersonalityStandard) })

	var cr analysis.CategoryResults
	for _, c := range analysis.AllCategories() {
		cr.Set(c, analysis.Result{Score: 80, Confidence: 90})
	}
	cr.Set(analysis.CategoryLegal, analysis.Result{Score: 50, Confidence: 20, Degraded: true})

	res := analysis.ComprehensiveResult{
		AnalysisID:        "a-1",
		OverallScore:      72.5,
		OverallConfidence: 72.5,
		CategoryResults:   cr,
		Problems: []analysis.Finding{
			{Severity: analysis.SeverityLow, Category: analysis.FindingFormal, Kind: analysis.KindInconsistency, Description: "fonte"},
			{Severity: analysis.SeverityCritical, Category: analysis.FindingLegal, Kind: analysis.KindMissingClause, Description: "sem cláusula"},
		},
	}

	var buf bytes.Buffer
	renderReport(&buf, res)

	want := "analysis_id\ta-1\n" +
		"score\tstructural\t80.0\t90.0\n" +
		"score\tlegal\t50.0\t20.0\tdegraded\n" +
		"score\tclarity\t80.0\t90.0\n" +
		"score\tabnt\t80.0\t90.0\n" +
		"score\toverall\t72.5\t72.5\n" +
		"problem\tcritical\tlegal\tmissing_clause\tsem cláusula\n" +
		"problem\tlow\tformal\tinconsistency\tfonte\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderReport_NoProblems(t *testing.T) {
	ux.SetPersonality(ux.PersonalityStandard)

	var buf bytes.Buffer
	renderReport(&buf, analysis.ComprehensiveResult{AnalysisID: "a-2", OverallScore: 100, OverallConfidence: 90})
	assert.Contains(t, buf.String(), "Nenhum problema encontrado")
	assert.Contains(t, buf.String(), "Relatório de conformidade")
}

func TestRenderReport_DegradedAndSevere(t *testing.T) {
	ux.SetPersonality(ux.PersonalityMinimal)
	t.Cleanup(func() { ux.SetPersonality(ux.PersonalityStandard) })

	var cr analysis.CategoryResults
	cr.Set(analysis.CategoryLegal, analysis.Result{Score: 50, Confidence: 20, Degraded: true})
	res := analysis.ComprehensiveResult{
		AnalysisID:      "a-3",
		CategoryResults: cr,
		Problems: []analysis.Finding{
			{Severity: analysis.SeverityCritical, Category: analysis.FindingLegal, Description: "sem cláusula"},
		},
	}

	var buf bytes.Buffer
	renderReport(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "Resultado parcial")
	assert.Contains(t, out, "(degradado)")
	assert.Contains(t, out, "1 problemas")
	assert.Contains(t, out, "sem cláusula")
}

func TestRenderEngineLogs(t *testing.T) {
	entries := []logging.LogEntry{
		{Level: logging.LevelWarn, Message: "category analysis failed", Attrs: map[string]any{"error": "analyzer timeout"}},
		{Level: logging.LevelError, Message: "cache write failed"},
	}

	tests := []struct {
		name        string
		personality ux.PersonalityLevel
		want        []string
	}{
		{"machine", ux.PersonalityMachine, []string{
			"log\tWARN\tcategory analysis failed: analyzer timeout\n",
			"log\tERROR\tcache write failed\n",
		}},
		{"minimal", ux.PersonalityMinimal, []string{
			"category analysis failed: analyzer timeout",
			"cache write failed",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ux.SetPersonality(tt.personality)
			t.Cleanup(func() { ux.SetPersonality(ux.PersonalityStandard) })

			var buf bytes.Buffer
			renderEngineLogs(&buf, entries)
			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
		})
	}

	var empty bytes.Buffer
	renderEngineLogs(&empty, nil)
	assert.Empty(t, empty.String())
}
