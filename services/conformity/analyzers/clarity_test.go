// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
)

// ---- Readability Tests ----

func TestFleschScore(t *testing.T) {
	assert.InDelta(t, 248.835-1.015*10-84.6*2, FleschScore(10, 2), 1e-9)
}

func TestReadabilityLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{95, "Muito fácil"},
		{90, "Muito fácil"},
		{85, "Fácil"},
		{72, "Razoavelmente fácil"},
		{60, "Padrão"},
		{55, "Razoavelmente difícil"},
		{30, "Difícil"},
		{29.9, "Muito difícil"},
		{-40, "Muito difícil"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReadabilityLevel(tt.score), "score %v", tt.score)
	}
}

func TestCountSyllables(t *testing.T) {
	tests := []struct {
		word string
		want int
	}{
		{"casa", 2},
		{"contrato", 3},
		{"água", 1},
		{"x", 1},
		{"LICITAÇÃO", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, countSyllables(tt.word), tt.word)
	}
}

func TestSentences(t *testing.T) {
	assert.Equal(t, []string{"Uma", " Duas", " Três"}, sentences("Uma. Duas! Três?"))
	assert.Empty(t, sentences("...  "))
}

// ---- Analyze Tests ----

func TestClarity_Analyze_ModalAmbiguity(t *testing.T) {
	text := "A contratada pode substituir o material. O fiscal pode recusar o item. " +
		"A administração pode prorrogar o prazo. O serviço será executado conforme o cronograma."
	in := analysis.Input{Text: text, Classification: analysis.Classification{DocumentType: analysis.DocTR}}

	res, err := NewClarity().Analyze(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Metrics["totalAmbiguities"])
	assert.Equal(t, map[string]int{"modal": 3}, res.Metrics["ambiguityTypes"])
	assert.True(t, hasDescription(res.Problems, "Uso de verbos modais pode criar ambiguidade"))
}

func TestClarity_Analyze_BelowThresholdIsNotReported(t *testing.T) {
	text := "A contratada pode substituir o material mediante autorização expressa. " +
		"O serviço será executado conforme o cronograma aprovado pela fiscalização do contrato."
	in := analysis.Input{Text: text, Classification: analysis.Classification{DocumentType: analysis.DocTR}}

	res, err := NewClarity().Analyze(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Metrics["totalAmbiguities"])
	assert.False(t, hasDescription(res.Problems, "verbos modais"))
}

func TestClarity_Analyze_Terminology(t *testing.T) {
	text := "O contrato será assinado pelas partes. Os contratos anteriores ficam revogados. " +
		"Nenhuma outra disposição se aplica ao presente instrumento firmado entre as partes."
	in := analysis.Input{Text: text, Classification: analysis.Classification{DocumentType: analysis.DocEdital}}

	res, err := NewClarity().Analyze(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Metrics["terminologyInconsistencies"])
	assert.Equal(t, map[string][]string{"contrato": {"contrato", "contratos"}}, res.Metrics["termVariations"])
	assert.True(t, hasDescription(res.Problems, "1 termo(s) técnico(s) com variações inconsistentes"))
}

func TestClarity_CheckNumbering(t *testing.T) {
	a := NewClarity()

	tests := []struct {
		name    string
		docType analysis.DocumentType
		text    string
		want    int
	}{
		{"contract without numbered clause", analysis.DocMinutaContrato, "Esta cláusula trata do objeto.", 1},
		{"contract with numbered clause", analysis.DocMinutaContrato, "1. A cláusula trata do objeto.", 0},
		{"contract without trigger", analysis.DocMinutaContrato, "Texto sem gatilho.", 0},
		{"edital missing both criteria", analysis.DocEdital, "O critério de habilitação e o julgamento seguem a lei", 2},
		{"tr numbered", analysis.DocTR, "2. A especificação técnica segue.", 0},
		{"other type", analysis.DocETP, "cláusula critério habilitação", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, a.checkNumbering(tt.text, tt.docType), tt.want)
		})
	}
}

func TestClarity_Score(t *testing.T) {
	a := NewClarity()

	assert.Equal(t, 85.0, a.score(3, 70))
	assert.Equal(t, 75.0, a.score(3, 50))
	assert.Equal(t, 0.0, a.score(30, 50))
}

func TestClarity_FallbackResult(t *testing.T) {
	res := NewClarity().FallbackResult(analysis.Input{}, nil)

	assert.Equal(t, 70.0, res.Score)
	assert.Equal(t, 30.0, res.Confidence)
	require.Len(t, res.Problems, 1)
	assert.Equal(t, "Análise de clareza básica devido a erro no analisador principal", res.Problems[0].Description)
}
