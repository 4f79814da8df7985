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
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
)

const (
	structuralMinLength = 100
	structuralMaxLength = 1_000_000
	structuralKeyPrefix = 1000

	// maxNumberedItem bounds the numbering-gap check.
	maxNumberedItem = 200

	// ctxCheckInterval is how many lines the section walk reads between
	// cancellation checks.
	ctxCheckInterval = 256
)

var structuralPenalties = analysis.PenaltyTable{
	analysis.SeverityLow:      5,
	analysis.SeverityMedium:   10,
	analysis.SeverityHigh:     15,
	analysis.SeverityCritical: 25,
}

// section header patterns, in precedence order. The index is the level minus one.
var sectionHeaders = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:CAPÍTULO|CAPITULO)\s*(\d+)[:\s]+(.+)$`),
	regexp.MustCompile(`(?i)^(?:SEÇÃO|SECAO)\s*(\d+)[:\s]+(.+)$`),
	regexp.MustCompile(`^(\d+\.)\s*(.+)$`),
	regexp.MustCompile(`^([A-Z][A-Z\s]+):`),
}

var requiredSections = []string{"objeto", "prazo", "critério", "especificação"}

// typeRequirement is one element a document type must mention.
type typeRequirement struct {
	phrase   string
	kind     analysis.FindingKind
	category analysis.FindingCategory
	location string
	label    string
}

var structuralTypeRequirements = map[analysis.DocumentType][]typeRequirement{
	analysis.DocEdital: requirementList(analysis.KindMissingClause, analysis.FindingLegal, "Estrutura do edital", "Seção", "no edital",
		"objeto da licitação", "critério de julgamento", "prazo para entrega", "local de entrega", "documentação necessária"),
	analysis.DocTR: requirementList(analysis.KindIncompleteSpecification, analysis.FindingTechnical, "Estrutura do TR", "Seção", "no termo de referência",
		"especificações técnicas", "quantitativos", "cronograma", "critérios de aceitação"),
	analysis.DocMinutaContrato: requirementList(analysis.KindMissingClause, analysis.FindingLegal, "Estrutura do contrato", "Cláusula", "no contrato",
		"objeto do contrato", "vigência", "valor", "forma de pagamento", "penalidades", "rescisão"),
}

func requirementList(kind analysis.FindingKind, cat analysis.FindingCategory, location, noun, where string, phrases ...string) []typeRequirement {
	out := make([]typeRequirement, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, typeRequirement{
			phrase:   p,
			kind:     kind,
			category: cat,
			location: location,
			label:    fmt.Sprintf("%s %q não encontrada %s", noun, p, where),
		})
	}
	return out
}

// section is one header-delimited block of the document.
type section struct {
	name    string
	content string
	level   int
}

// Structural checks document organisation: required sections, header
// hierarchy, numbering and paragraph layout.
type Structural struct {
	cfg analysis.AnalyzerConfig
}

// NewStructural creates the structural analyzer.
func NewStructural() *Structural {
	return &Structural{cfg: analysis.AnalyzerConfig{
		Name:            "StructuralAnalyzer",
		Version:         "1.0.0",
		Enabled:         true,
		Priority:        1,
		Timeout:         10 * time.Second,
		FallbackEnabled: true,
	}}
}

// Category implements analysis.Analyzer.
func (a *Structural) Category() analysis.Category { return analysis.CategoryStructural }

// Config implements analysis.Analyzer.
func (a *Structural) Config() analysis.AnalyzerConfig { return a.cfg }

// Analyze implements analysis.Analyzer.
func (a *Structural) Analyze(ctx context.Context, in analysis.Input) (analysis.Result, error) {
	var findings []analysis.Finding
	metrics := make(map[string]any)

	sections, err := extractSections(ctx, in.Text)
	if err != nil {
		return analysis.Result{}, err
	}
	findings = append(findings, a.checkStructure(sections, metrics)...)
	if err := ctx.Err(); err != nil {
		return analysis.Result{}, err
	}

	formatting := a.checkFormatting(in.Text)
	metrics["formattingIssues"] = len(formatting)
	findings = append(findings, formatting...)
	if err := ctx.Err(); err != nil {
		return analysis.Result{}, err
	}

	typed := a.checkTypeStructure(in.Text, in.Classification.DocumentType)
	total := len(structuralTypeRequirements[in.Classification.DocumentType])
	metrics["totalClauses"] = total
	metrics["validClauses"] = total - len(typed)
	metrics["missingClauses"] = len(typed)
	findings = append(findings, typed...)

	inconsistencies := 0
	for _, f := range findings {
		if f.Kind == analysis.KindInconsistency {
			inconsistencies++
		}
	}
	metrics["inconsistencies"] = inconsistencies

	return analysis.Result{
		Problems:   findings,
		Metrics:    metrics,
		Score:      structuralPenalties.Score(findings),
		Confidence: a.confidence(findings, len(sections)),
	}, nil
}

func (a *Structural) checkStructure(sections []section, metrics map[string]any) []analysis.Finding {
	var findings []analysis.Finding

	names := make([]string, 0, len(sections))
	byLevel := make(map[string]int)
	for _, s := range sections {
		names = append(names, s.name)
		byLevel[strconv.Itoa(s.level)]++
	}
	metrics["totalSections"] = len(sections)
	metrics["sectionNames"] = names
	metrics["sectionsByLevel"] = byLevel

	var missing []string
	for _, req := range requiredSections {
		found := false
		for _, s := range sections {
			if strings.Contains(strings.ToLower(s.name), req) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, req)
		}
	}
	metrics["requiredSectionsFound"] = len(requiredSections) - len(missing)
	if len(missing) > 0 {
		list := strings.Join(missing, ", ")
		findings = append(findings, finding(analysis.KindMissingClause, analysis.SeverityHigh, analysis.FindingFormal,
			"Estrutura do documento",
			"Seções obrigatórias ausentes: "+list,
			"Incluir seções: "+list))
	}

	for i := 1; i < len(sections); i++ {
		prev, curr := sections[i-1], sections[i]
		if curr.level-prev.level > 2 {
			findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityMedium, analysis.FindingFormal,
				"Estrutura hierárquica",
				fmt.Sprintf("Quebra na hierarquia de seções: %s → %s", prev.name, curr.name),
				"Reorganizar seções para manter hierarquia lógica"))
		}
	}

	for _, s := range sections {
		if n := textLength(s.content); n < 50 {
			findings = append(findings, finding(analysis.KindIncompleteSpecification, analysis.SeverityMedium, analysis.FindingFormal,
				s.name,
				fmt.Sprintf("Seção %q muito pequena (%d caracteres)", s.name, n),
				"Expandir conteúdo da seção com mais detalhes"))
		}
	}

	return findings
}

func (a *Structural) checkFormatting(text string) []analysis.Finding {
	var findings []analysis.Finding

	if countMatches(bulletItem, text) > 5 {
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingFormal,
			"Formatação de listas",
			"Muitas listas não numeradas podem dificultar referências",
			"Considerar numeração para listas longas"))
	}

	var numbers []int
	for _, m := range numberedItem.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			numbers = append(numbers, n)
		}
	}
	for _, gap := range sequenceGaps(numbers, maxNumberedItem) {
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityMedium, analysis.FindingFormal,
			"Numeração de itens",
			fmt.Sprintf("Item %d está faltando na numeração", gap),
			"Verificar e corrigir sequência de numeração"))
	}

	long := 0
	for _, p := range paragraphs(text) {
		if textLength(p) > 500 {
			long++
		}
	}
	if long > 0 {
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingFormal,
			"Formatação de parágrafos",
			fmt.Sprintf("%d parágrafo(s) muito longo(s) podem dificultar leitura", long),
			"Dividir parágrafos longos em parágrafos menores"))
	}

	if countMatches(upperCaseWord, text) > 20 {
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingFormal,
			"Formatação de texto",
			"Uso excessivo de palavras em maiúsculas pode dificultar leitura",
			"Usar maiúsculas apenas para títulos e nomes próprios"))
	}

	return findings
}

func (a *Structural) checkTypeStructure(text string, docType analysis.DocumentType) []analysis.Finding {
	reqs, ok := structuralTypeRequirements[docType]
	if !ok {
		return nil
	}
	lower := strings.ToLower(text)
	var findings []analysis.Finding
	for _, r := range reqs {
		if strings.Contains(lower, r.phrase) {
			continue
		}
		findings = append(findings, finding(r.kind, analysis.SeverityHigh, r.category,
			r.location, r.label, "Incluir seção sobre "+r.phrase))
	}
	return findings
}

func (a *Structural) confidence(findings []analysis.Finding, totalSections int) float64 {
	confidence := 80.0
	if totalSections > 5 {
		confidence += 10
	}
	if len(findings) > 5 {
		confidence -= 20
	}
	return analysis.ClampScore(confidence)
}

// CacheKey implements analysis.Analyzer.
func (a *Structural) CacheKey(in analysis.Input) string {
	return fmt.Sprintf("structural_%s_%s", in.Classification.DocumentType,
		analysis.Fingerprint(analysis.Prefix(in.Text, structuralKeyPrefix)))
}

// ValidateInput implements analysis.Analyzer.
func (a *Structural) ValidateInput(in analysis.Input) error {
	if err := checkLength(in.Text, structuralMinLength, structuralMaxLength); err != nil {
		return err
	}
	return requireDocumentType(in)
}

// FallbackResult implements analysis.Analyzer.
func (a *Structural) FallbackResult(_ analysis.Input, cause error) analysis.Result {
	return analysis.Result{
		Problems: []analysis.Finding{failureFinding(
			"Análise estrutural básica devido a erro no analisador principal",
			"Verificar configurações do analisador estrutural",
			analysis.FindingFormal, cause)},
		Metrics:    map[string]any{"totalSections": 0, "formattingIssues": 1},
		Score:      70,
		Confidence: 30,
		Degraded:   true,
	}
}

// extractSections walks the text line by line. A header line opens a new
// section; other lines extend the current one. Section bodies are joined
// once when the section closes, keeping the walk linear in the text size.
func extractSections(ctx context.Context, text string) ([]section, error) {
	var (
		sections []section
		current  *section
		body     []string
	)
	closeCurrent := func() {
		if current != nil {
			current.content = strings.Join(body, "\n")
			sections = append(sections, *current)
		}
	}

	for n, line := range lines(text) {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		matched := false
		for i, re := range sectionHeaders {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			closeCurrent()
			name := strings.TrimSpace(line)
			if len(m) > 2 && m[2] != "" {
				name = strings.TrimSpace(m[2])
			} else if m[1] != "" {
				name = strings.TrimSpace(m[1])
			}
			current = &section{name: name, level: i + 1}
			body = append(body[:0:0], line)
			matched = true
			break
		}
		if !matched && current != nil {
			body = append(body, line)
		}
	}
	closeCurrent()
	return sections, nil
}
