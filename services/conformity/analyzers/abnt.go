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
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
)

const (
	abntMinLength = 200
	abntMaxLength = 1_000_000
	abntKeyPrefix = 1000

	maxUpperCaseWords     = 15
	maxIndirectCitations  = 10
	maxDirectQuoteLength  = 100
	maxMissingPostTextual = 2
)

var abntPenalties = analysis.PenaltyTable{
	analysis.SeverityLow:      15,
	analysis.SeverityMedium:   20,
	analysis.SeverityHigh:     25,
	analysis.SeverityCritical: 30,
}

var (
	preTextualRequired  = []string{"capa", "folha de rosto", "sumário", "resumo"}
	preTextualCounted   = []string{"capa", "folha de rosto", "sumário", "resumo", "abstract"}
	textualCounted      = []string{"introdução", "desenvolvimento", "fundamentação", "conclusão"}
	postTextualRequired = []string{"conclusão", "referências", "apêndice", "anexo"}
	postTextualCounted  = []string{"conclusão", "referências", "bibliografia", "apêndice", "anexo"}
)

// abntHeaders are the heading forms the hierarchy check understands,
// outermost first.
var abntHeaders = []*regexp.Regexp{
	regexp.MustCompile(`(?mi)^(?:CAPÍTULO|CAPITULO)\s*\d+`),
	regexp.MustCompile(`(?mi)^(?:SEÇÃO|SECAO)\s*\d+`),
	regexp.MustCompile(`(?m)^\d+\.\s+`),
	regexp.MustCompile(`(?m)^\d+\.\d+\s+`),
}

var (
	directQuote      = regexp.MustCompile(`"[^"]{20,}"`)
	indirectCitation = regexp.MustCompile(`(?i)\b(?:segundo|conforme|de acordo com)\b`)
	referenceEntries = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^[A-Z][a-z]+,\s*[A-Z]\.\s*[^.]*\.`),
		regexp.MustCompile(`(?m)^[A-Z][a-z]+\s*\([0-9]{4}\)`),
	}
	firstNumber = regexp.MustCompile(`\d+`)
)

// sequenceCheck validates the numbers attached to one kind of label.
type sequenceCheck struct {
	metric      string
	pattern     *regexp.Regexp
	strict      bool // every number must be the previous plus one
	location    string
	description string
	suggestion  string
}

var sequenceChecks = []sequenceCheck{
	{
		metric:      "paginationIssues",
		pattern:     regexp.MustCompile(`(?i)\b(?:página|pág|pg)\s*\d+\b`),
		location:    "Numeração de páginas",
		description: "Numeração de páginas não sequencial",
		suggestion:  "Verificar sequência de numeração de páginas",
	},
	{
		metric:      "figureTableIssues",
		pattern:     regexp.MustCompile(`(?i)\b(?:figura|fig)\s*\d+`),
		strict:      true,
		location:    "Numeração de figuras",
		description: "Numeração de figuras não sequencial",
		suggestion:  "Verificar sequência de numeração de figuras",
	},
	{
		metric:      "equationIssues",
		pattern:     regexp.MustCompile(`(?i)\b(?:equação|eq)\s*\d+`),
		strict:      true,
		location:    "Numeração de equações",
		description: "Numeração de equações não sequencial",
		suggestion:  "Verificar sequência de numeração de equações",
	},
}

// inSequence reports whether numbers increase (strictly by one when strict).
func (c sequenceCheck) inSequence(numbers []int) bool {
	for i := 1; i < len(numbers); i++ {
		if c.strict && numbers[i] != numbers[i-1]+1 {
			return false
		}
		if !c.strict && numbers[i] <= numbers[i-1] {
			return false
		}
	}
	return true
}

// Abnt checks layout against the ABNT norms: formatting, pre/post-textual
// structure, citations and figure, page and equation numbering.
type Abnt struct {
	cfg analysis.AnalyzerConfig
}

// NewAbnt creates the formatting analyzer.
func NewAbnt() *Abnt {
	return &Abnt{cfg: analysis.AnalyzerConfig{
		Name:            "ABNTAnalyzer",
		Version:         "1.0.0",
		Enabled:         true,
		Priority:        4,
		Timeout:         10 * time.Second,
		FallbackEnabled: true,
	}}
}

// Category implements analysis.Analyzer.
func (a *Abnt) Category() analysis.Category { return analysis.CategoryFormatting }

// Config implements analysis.Analyzer.
func (a *Abnt) Config() analysis.AnalyzerConfig { return a.cfg }

// Analyze implements analysis.Analyzer.
func (a *Abnt) Analyze(ctx context.Context, in analysis.Input) (analysis.Result, error) {
	text := in.Text
	lower := strings.ToLower(text)
	metrics := make(map[string]any)
	var findings []analysis.Finding

	formatting := a.checkFormatting(text)
	descriptions := make([]string, 0, len(formatting))
	for _, f := range formatting {
		descriptions = append(descriptions, f.Description)
	}
	formattingScore := analysis.ClampScore(100 - 10*float64(len(formatting)))
	metrics["formattingScore"] = formattingScore
	metrics["formattingIssues"] = descriptions
	metrics["totalFormattingIssues"] = len(formatting)
	findings = append(findings, formatting...)

	if err := ctx.Err(); err != nil {
		return analysis.Result{}, err
	}

	structure := a.checkStructure(text, lower)
	metrics["structureIssues"] = len(structure)
	metrics["preTextualElements"] = countPresent(lower, preTextualCounted)
	metrics["textualElements"] = countPresent(lower, textualCounted)
	metrics["postTextualElements"] = countPresent(lower, postTextualCounted)
	findings = append(findings, structure...)

	if err := ctx.Err(); err != nil {
		return analysis.Result{}, err
	}

	citations := a.checkCitations(text)
	references := a.checkReferences(text, lower)
	totalReferences := 0
	for _, re := range referenceEntries {
		totalReferences += countMatches(re, text)
	}
	metrics["citationIssues"] = len(citations)
	metrics["referenceIssues"] = len(references)
	metrics["totalReferences"] = totalReferences
	findings = append(findings, citations...)
	findings = append(findings, references...)

	for _, c := range sequenceChecks {
		var numbers []int
		for _, m := range c.pattern.FindAllString(text, -1) {
			n, _ := strconv.Atoi(firstNumber.FindString(m))
			numbers = append(numbers, n)
		}
		if c.inSequence(numbers) {
			metrics[c.metric] = 0
			continue
		}
		metrics[c.metric] = 1
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingTechnical,
			c.location, c.description, c.suggestion))
	}

	score := abntPenalties.Score(findings)
	if formattingScore > 0 {
		score = min(score, formattingScore)
	}

	return analysis.Result{
		Problems:   findings,
		Metrics:    metrics,
		Score:      analysis.ClampScore(score),
		Confidence: a.confidence(findings, totalReferences, metrics["preTextualElements"].(int)),
	}, nil
}

func (a *Abnt) checkFormatting(text string) []analysis.Finding {
	var findings []analysis.Finding

	parts := paragraphs(text)
	nonEmpty := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty++
		}
	}
	if nonEmpty > 0 && float64(nonEmpty) < float64(len(parts))*0.8 {
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingFormal,
			"Formatação de parágrafos",
			"Espaçamento entre parágrafos inconsistente",
			"Manter espaçamento consistente entre parágrafos"))
	}

	if countMatches(upperCaseWord, text) > maxUpperCaseWords {
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingFormal,
			"Formatação de texto",
			"Uso excessivo de palavras em maiúsculas",
			"Usar maiúsculas apenas para títulos e nomes próprios"))
	}

	for _, item := range bulletItem.FindAllString(text, -1) {
		if strings.HasPrefix(item, "- ") || strings.HasPrefix(item, "* ") || strings.HasPrefix(item, "• ") {
			continue
		}
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingFormal,
			"Formatação de listas",
			"Alinhamento inconsistente em listas",
			"Alinhar itens de lista consistentemente"))
		break
	}

	return findings
}

func (a *Abnt) checkStructure(text, lower string) []analysis.Finding {
	var findings []analysis.Finding

	if missing := missingFrom(lower, preTextualRequired); len(missing) > 0 {
		findings = append(findings, finding(analysis.KindMissingClause, analysis.SeverityMedium, analysis.FindingTechnical,
			"Estrutura do documento",
			"Elementos pré-textuais ausentes: "+strings.Join(missing, ", "),
			"Incluir elementos pré-textuais obrigatórios"))
	}

	if !strings.Contains(lower, "introdução") {
		findings = append(findings, finding(analysis.KindMissingClause, analysis.SeverityMedium, analysis.FindingTechnical,
			"Estrutura textual",
			"Seção de introdução não encontrada",
			"Incluir seção de introdução"))
	}
	if !containsAny(lower, "desenvolvimento", "fundamentação") {
		findings = append(findings, finding(analysis.KindMissingClause, analysis.SeverityHigh, analysis.FindingTechnical,
			"Estrutura textual",
			"Seção de desenvolvimento não encontrada",
			"Incluir seção de desenvolvimento ou fundamentação"))
	}

	if missing := missingFrom(lower, postTextualRequired); len(missing) > maxMissingPostTextual {
		findings = append(findings, finding(analysis.KindMissingClause, analysis.SeverityMedium, analysis.FindingTechnical,
			"Estrutura do documento",
			"Elementos pós-textuais insuficientes: "+strings.Join(missing, ", "),
			"Incluir mais elementos pós-textuais"))
	}

	return append(findings, a.checkHierarchy(text)...)
}

// heading is one matched header, positioned in the text.
type heading struct {
	level int
	pos   int
	line  string
}

// checkHierarchy walks headings in document order and flags a return
// that skips an intermediate level. Going back to a chapter is allowed.
func (a *Abnt) checkHierarchy(text string) []analysis.Finding {
	var headings []heading
	for level, re := range abntHeaders {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			headings = append(headings, heading{
				level: level,
				pos:   loc[0],
				line:  strings.TrimSpace(text[loc[0]:loc[1]]),
			})
		}
	}
	sort.SliceStable(headings, func(i, j int) bool { return headings[i].pos < headings[j].pos })

	var findings []analysis.Finding
	for i := 1; i < len(headings); i++ {
		prev, curr := headings[i-1], headings[i]
		if curr.level == 0 || prev.level-curr.level < 2 {
			continue
		}
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityMedium, analysis.FindingTechnical,
			"Estrutura hierárquica",
			fmt.Sprintf("Quebra na hierarquia de seções: %s → %s", prev.line, curr.line),
			"Manter sequência lógica na hierarquia de seções"))
	}
	return findings
}

func (a *Abnt) checkCitations(text string) []analysis.Finding {
	var findings []analysis.Finding

	for _, q := range directQuote.FindAllString(text, -1) {
		if textLength(q) <= maxDirectQuoteLength {
			continue
		}
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingTechnical,
			"Citações",
			"Citação direta muito longa",
			"Considerar resumir citações longas"))
	}

	if countMatches(indirectCitation, text) > maxIndirectCitations {
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingTechnical,
			"Citações",
			"Muitas citações indiretas podem indicar falta de originalidade",
			"Balancear citações com análise própria"))
	}

	return findings
}

func (a *Abnt) checkReferences(text, lower string) []analysis.Finding {
	var findings []analysis.Finding

	if !containsAny(lower, "referências", "bibliografia") {
		findings = append(findings, finding(analysis.KindMissingClause, analysis.SeverityHigh, analysis.FindingTechnical,
			"Referências",
			"Lista de referências não encontrada",
			"Incluir lista de referências bibliográficas"))
	}

	formatted := false
	for _, re := range referenceEntries {
		if re.MatchString(text) {
			formatted = true
			break
		}
	}
	if !formatted {
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityMedium, analysis.FindingTechnical,
			"Formatação de referências",
			"Referências não estão formatadas conforme ABNT",
			"Formatar referências conforme NBR 6023"))
	}

	return findings
}

func (a *Abnt) confidence(findings []analysis.Finding, totalReferences, preTextual int) float64 {
	confidence := 75.0
	if totalReferences > 5 {
		confidence += 10
	}
	if preTextual > 2 {
		confidence += 5
	}
	if len(findings) > 5 {
		confidence -= 20
	}
	return analysis.ClampScore(confidence)
}

// CacheKey implements analysis.Analyzer.
func (a *Abnt) CacheKey(in analysis.Input) string {
	return fmt.Sprintf("abnt_%s_%s", in.Classification.DocumentType,
		analysis.Fingerprint(analysis.Prefix(in.Text, abntKeyPrefix)))
}

// ValidateInput implements analysis.Analyzer.
func (a *Abnt) ValidateInput(in analysis.Input) error {
	if err := checkLength(in.Text, abntMinLength, abntMaxLength); err != nil {
		return err
	}
	return requireDocumentType(in)
}

// FallbackResult implements analysis.Analyzer.
func (a *Abnt) FallbackResult(_ analysis.Input, cause error) analysis.Result {
	return analysis.Result{
		Problems: []analysis.Finding{failureFinding(
			"Análise ABNT básica devido a erro no analisador principal",
			"Verificar configurações do analisador ABNT",
			analysis.FindingTechnical, cause)},
		Metrics: map[string]any{
			"totalClauses":    0,
			"validClauses":    0,
			"missingClauses":  0,
			"inconsistencies": 1,
		},
		Score:      65,
		Confidence: 25,
		Degraded:   true,
	}
}

func missingFrom(lower string, elements []string) []string {
	var missing []string
	for _, e := range elements {
		if !strings.Contains(lower, e) {
			missing = append(missing, e)
		}
	}
	return missing
}

func countPresent(lower string, elements []string) int {
	return len(elements) - len(missingFrom(lower, elements))
}
