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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
)

const wellFormedEdital = `CAPÍTULO 1: Objeto da licitação
O objeto da licitação é a contratação de serviços de limpeza para os prédios públicos municipais.

CAPÍTULO 2: Prazo para entrega
O prazo para entrega é de trinta dias contados da assinatura, no local de entrega indicado pela administração.

CAPÍTULO 3: Critério de julgamento
O critério de julgamento será o menor preço global, observada a documentação necessária para habilitação.

CAPÍTULO 4: Especificação técnica
A especificação técnica detalhada consta do anexo I, com todos os requisitos mínimos de desempenho.`

func editalInput(text string) analysis.Input {
	return analysis.Input{
		Text: text,
		Classification: analysis.Classification{
			DocumentType: analysis.DocEdital,
			Modality:     analysis.ModalityBidding,
		},
	}
}

func descriptions(findings []analysis.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Description)
	}
	return out
}

func hasDescription(findings []analysis.Finding, substr string) bool {
	for _, f := range findings {
		if strings.Contains(f.Description, substr) {
			return true
		}
	}
	return false
}

// ---- Validation Tests ----

func TestStructural_ValidateInput(t *testing.T) {
	a := NewStructural()

	tests := []struct {
		name    string
		in      analysis.Input
		wantErr bool
	}{
		{"well formed", editalInput(wellFormedEdital), false},
		{"too short", editalInput("curto"), true},
		{"exactly minimum is rejected", editalInput(strings.Repeat("a", structuralMinLength)), true},
		{"missing document type", analysis.Input{Text: wellFormedEdital}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.ValidateInput(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ---- Analyze Tests ----

func TestStructural_Analyze_WellFormedEdital(t *testing.T) {
	res, err := NewStructural().Analyze(context.Background(), editalInput(wellFormedEdital))
	require.NoError(t, err)

	assert.Empty(t, res.Problems, "unexpected findings: %v", descriptions(res.Problems))
	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, 80.0, res.Confidence)
	assert.Equal(t, 4, res.Metrics["totalSections"])
	assert.Equal(t, []string{
		"Objeto da licitação", "Prazo para entrega", "Critério de julgamento", "Especificação técnica",
	}, res.Metrics["sectionNames"])
	assert.Equal(t, 4, res.Metrics["requiredSectionsFound"])
}

func TestStructural_Analyze_MissingEverything(t *testing.T) {
	text := "Este documento descreve a contratação de serviços gerais para a prefeitura municipal, " +
		"sem maiores detalhes sobre o procedimento adotado."

	res, err := NewStructural().Analyze(context.Background(), editalInput(text))
	require.NoError(t, err)

	// one aggregated required-sections finding plus five edital elements
	require.Len(t, res.Problems, 6)
	assert.Equal(t, "Seções obrigatórias ausentes: objeto, prazo, critério, especificação", res.Problems[0].Description)
	for _, f := range res.Problems {
		assert.Equal(t, analysis.SeverityHigh, f.Severity)
	}
	assert.Equal(t, 10.0, res.Score)
	assert.Equal(t, 60.0, res.Confidence)
	assert.Equal(t, 5, res.Metrics["missingClauses"])
}

func TestStructural_Analyze_NumberingGap(t *testing.T) {
	text := wellFormedEdital + "\n\n1. Primeiro item da relação de materiais\n2. Segundo item da relação de materiais\n4. Quarto item da relação de materiais"

	res, err := NewStructural().Analyze(context.Background(), editalInput(text))
	require.NoError(t, err)

	assert.True(t, hasDescription(res.Problems, "Item 3 está faltando na numeração"), "findings: %v", descriptions(res.Problems))
	assert.False(t, hasDescription(res.Problems, "Item 1 "))
}

func TestStructural_Analyze_HierarchyJump(t *testing.T) {
	text := "CAPÍTULO 1: Disposições gerais\nEste capítulo trata das disposições gerais aplicáveis ao certame.\n" +
		"OBJETO: contratação de serviços de manutenção predial preventiva e corretiva."

	res, err := NewStructural().Analyze(context.Background(), editalInput(text))
	require.NoError(t, err)

	assert.True(t, hasDescription(res.Problems, "Quebra na hierarquia de seções: Disposições gerais → OBJETO"),
		"findings: %v", descriptions(res.Problems))
}

func TestStructural_Analyze_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStructural().Analyze(ctx, editalInput(wellFormedEdital))
	assert.True(t, errors.Is(err, context.Canceled))
}

// ---- Section Extraction Tests ----

func TestExtractSections(t *testing.T) {
	text := "Preâmbulo sem seção\nCAPITULO 2 Escopo\nlinha do escopo\nSECAO 1: Detalhes\n3. Item numerado\nANEXO UNICO: lista"

	sections, err := extractSections(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, sections, 4)

	tests := []struct {
		name  string
		level int
	}{
		{"Escopo", 1},
		{"Detalhes", 2},
		{"Item numerado", 3},
		{"ANEXO UNICO", 4},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.name, sections[i].name)
		assert.Equal(t, tt.level, sections[i].level)
	}
	assert.Equal(t, "CAPITULO 2 Escopo\nlinha do escopo", sections[0].content)
}

func TestExtractSections_LargeDocument(t *testing.T) {
	// Close to the size limit with very short lines: one section holding
	// 110k lines.
	text := "CAPITULO 1 Objeto\n" + strings.Repeat("a b c d\n", 110_000)

	start := time.Now()
	sections, err := extractSections(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, text, sections[0].content)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExtractSections_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := extractSections(ctx, "CAPITULO 1 Objeto\nlinha")
	assert.ErrorIs(t, err, context.Canceled)
}

// ---- Hook Tests ----

func TestStructural_CacheKey(t *testing.T) {
	a := NewStructural()
	base := editalInput(strings.Repeat("x", 1200))

	sameHead := base
	sameHead.Text = strings.Repeat("x", 1000) + strings.Repeat("y", 200)

	otherType := base
	otherType.Classification.DocumentType = analysis.DocTR

	assert.True(t, strings.HasPrefix(a.CacheKey(base), "structural_edital_"))
	assert.Equal(t, a.CacheKey(base), a.CacheKey(sameHead))
	assert.NotEqual(t, a.CacheKey(base), a.CacheKey(otherType))
}

func TestStructural_FallbackResult(t *testing.T) {
	res := NewStructural().FallbackResult(editalInput(wellFormedEdital), errors.New("boom"))

	assert.Equal(t, 70.0, res.Score)
	assert.Equal(t, 30.0, res.Confidence)
	assert.True(t, res.Degraded)
	require.Len(t, res.Problems, 1)
	assert.Contains(t, res.Problems[0].Description, "boom")
	assert.Equal(t, analysis.FindingFormal, res.Problems[0].Category)
}

// ---- Helper Tests ----

func TestSequenceGaps(t *testing.T) {
	tests := []struct {
		name    string
		numbers []int
		want    []int
	}{
		{"empty", nil, nil},
		{"contiguous", []int{1, 2, 3}, nil},
		{"single gap", []int{1, 2, 4}, []int{3}},
		{"leading gap", []int{3}, []int{1, 2}},
		{"ignores numbers above limit", []int{1, 2, 2024}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sequenceGaps(tt.numbers, maxNumberedItem))
		})
	}
}

func TestCheckLength(t *testing.T) {
	assert.Error(t, checkLength("abc", 3, 10))
	assert.NoError(t, checkLength("abcd", 3, 10))
	assert.Error(t, checkLength(strings.Repeat("a", 10), 3, 10))
	// multi-byte runes count once
	assert.NoError(t, checkLength("çãoé", 3, 10))
}
