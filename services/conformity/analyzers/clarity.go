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
	"strings"
	"time"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
)

const (
	clarityMinLength = 100
	clarityMaxLength = 1_500_000
	clarityKeyPrefix = 1500

	// ambiguityThreshold is the match count a pattern must exceed to be reported.
	ambiguityThreshold = 2

	maxSentencesPerParagraph = 3
	maxWordsPerSentence      = 25
	maxSyllablesPerWord      = 3
)

var clarityPenalties = analysis.PenaltyTable{
	analysis.SeverityLow:      10,
	analysis.SeverityMedium:   15,
	analysis.SeverityHigh:     20,
	analysis.SeverityCritical: 25,
}

// ambiguityPattern matches vague wording of one flavour.
type ambiguityPattern struct {
	name        string
	pattern     *regexp.Regexp
	severity    analysis.Severity
	description string
	suggestion  string
}

var ambiguityPatterns = []ambiguityPattern{
	{
		name:        "modal",
		pattern:     regexp.MustCompile(`(?i)\b(?:pode|poderá|eventualmente|possivelmente)\b`),
		severity:    analysis.SeverityMedium,
		description: "Uso de verbos modais pode criar ambiguidade",
		suggestion:  "Especificar condições e responsabilidades de forma clara",
	},
	{
		name:        "subjective",
		pattern:     regexp.MustCompile(`(?i)\b(?:adequado|apropriado|suficiente|razoável)\b`),
		severity:    analysis.SeverityHigh,
		description: "Termos subjetivos podem gerar interpretações divergentes",
		suggestion:  "Substituir por critérios objetivos e mensuráveis",
	},
	{
		name:        "generalization",
		pattern:     regexp.MustCompile(`(?i)\b(?:etc|e outros|e similares|e afins)\b`),
		severity:    analysis.SeverityMedium,
		description: "Generalizações podem deixar escopo indefinido",
		suggestion:  "Listar especificamente todos os itens necessários",
	},
	{
		name:        "conditional",
		pattern:     regexp.MustCompile(`(?i)\b(?:quando necessário|se for o caso|conforme apropriado)\b`),
		severity:    analysis.SeverityHigh,
		description: "Condições vagas podem gerar incerteza",
		suggestion:  "Definir critérios objetivos para quando ações são necessárias",
	},
	{
		name:        "temporal",
		pattern:     regexp.MustCompile(`(?i)\b(?:em tempo hábil|com antecedência|prontamente)\b`),
		severity:    analysis.SeverityMedium,
		description: "Prazos vagos podem gerar interpretações divergentes",
		suggestion:  "Especificar prazos em dias, horas ou minutos",
	},
}

var (
	sentenceBreak = regexp.MustCompile(`[.!?]+`)
	letterWord    = regexp.MustCompile(`\p{L}+`)
)

const vowels = "aeiouàáâãäåæçèéêëìíîïðñòóôõöøùúûüýþÿ"

var technicalTerms = []string{
	"licitação", "edital", "proposta", "contrato", "execução", "vigência",
	"prazo", "valor", "especificação", "quantitativo", "qualitativo",
}

// termPatterns matches each technical term and its plural, case-insensitively.
var termPatterns = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(technicalTerms))
	for _, t := range technicalTerms {
		out[t] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(t) + `s?\b`)
	}
	return out
}()

// numberingCheck fires when the document mentions every trigger word but
// no numbered item mentions the subject.
type numberingCheck struct {
	triggers    []string
	numbered    *regexp.Regexp
	kind        analysis.FindingKind
	severity    analysis.Severity
	category    analysis.FindingCategory
	location    string
	description string
	suggestion  string
}

func numberedMention(word string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\d+\.\s+[^.]*` + word + `[^.]*\.`)
}

var numberingChecks = map[analysis.DocumentType][]numberingCheck{
	analysis.DocEdital: {
		{
			triggers:    []string{"critério", "habilitação"},
			numbered:    numberedMention("habilitação"),
			kind:        analysis.KindIncompleteSpecification,
			severity:    analysis.SeverityHigh,
			category:    analysis.FindingFormal,
			location:    "Critérios de habilitação",
			description: "Critérios de habilitação não estão claramente numerados",
			suggestion:  "Numerar claramente cada critério de habilitação",
		},
		{
			triggers:    []string{"critério", "julgamento"},
			numbered:    numberedMention("julgamento"),
			kind:        analysis.KindIncompleteSpecification,
			severity:    analysis.SeverityHigh,
			category:    analysis.FindingFormal,
			location:    "Critérios de julgamento",
			description: "Critérios de julgamento não estão claramente numerados",
			suggestion:  "Numerar claramente cada critério de julgamento",
		},
	},
	analysis.DocTR: {
		{
			triggers:    []string{"especificação", "técnica"},
			numbered:    numberedMention("especificação"),
			kind:        analysis.KindIncompleteSpecification,
			severity:    analysis.SeverityHigh,
			category:    analysis.FindingTechnical,
			location:    "Especificações técnicas",
			description: "Especificações técnicas não estão claramente numeradas",
			suggestion:  "Numerar claramente cada especificação técnica",
		},
	},
	analysis.DocMinutaContrato: {
		{
			triggers:    []string{"cláusula"},
			numbered:    numberedMention("cláusula"),
			kind:        analysis.KindInconsistency,
			severity:    analysis.SeverityMedium,
			category:    analysis.FindingFormal,
			location:    "Cláusulas contratuais",
			description: "Cláusulas contratuais não estão claramente numeradas",
			suggestion:  "Numerar claramente cada cláusula contratual",
		},
	},
}

// readabilityLevels maps a minimum Flesch score to its label, highest first.
var readabilityLevels = []struct {
	min   float64
	label string
}{
	{90, "Muito fácil"},
	{80, "Fácil"},
	{70, "Razoavelmente fácil"},
	{60, "Padrão"},
	{50, "Razoavelmente difícil"},
	{30, "Difícil"},
}

// Clarity checks how unambiguous and readable the document is.
type Clarity struct {
	cfg analysis.AnalyzerConfig
}

// NewClarity creates the clarity analyzer.
func NewClarity() *Clarity {
	return &Clarity{cfg: analysis.AnalyzerConfig{
		Name:            "ClarityAnalyzer",
		Version:         "1.0.0",
		Enabled:         true,
		Priority:        3,
		Timeout:         12 * time.Second,
		FallbackEnabled: true,
	}}
}

// Category implements analysis.Analyzer.
func (a *Clarity) Category() analysis.Category { return analysis.CategoryClarity }

// Config implements analysis.Analyzer.
func (a *Clarity) Config() analysis.AnalyzerConfig { return a.cfg }

// Analyze implements analysis.Analyzer.
func (a *Clarity) Analyze(ctx context.Context, in analysis.Input) (analysis.Result, error) {
	metrics := make(map[string]any)
	var findings []analysis.Finding

	findings = append(findings, a.checkAmbiguity(in.Text, metrics)...)
	if err := ctx.Err(); err != nil {
		return analysis.Result{}, err
	}

	readability, flesch, wps := a.checkReadability(in.Text, metrics)
	findings = append(findings, readability...)
	if err := ctx.Err(); err != nil {
		return analysis.Result{}, err
	}

	findings = append(findings, a.checkNumbering(in.Text, in.Classification.DocumentType)...)
	findings = append(findings, a.checkTerminology(in.Text, metrics)...)

	inconsistencies, _ := metrics["inconsistencies"].(int)
	metrics["penaltyScore"] = clarityPenalties.Score(findings)

	return analysis.Result{
		Problems:   findings,
		Metrics:    metrics,
		Score:      a.score(inconsistencies, flesch),
		Confidence: a.confidence(findings, flesch, wps),
	}, nil
}

func (a *Clarity) checkAmbiguity(text string, metrics map[string]any) []analysis.Finding {
	var findings []analysis.Finding
	total := 0
	byType := make(map[string]int)

	for _, p := range ambiguityPatterns {
		n := countMatches(p.pattern, text)
		if n == 0 {
			continue
		}
		total += n
		byType[p.name] += n
		if n > ambiguityThreshold {
			findings = append(findings, finding(analysis.KindInconsistency, p.severity, analysis.FindingFormal,
				"Clareza do texto", p.description, p.suggestion))
		}
	}

	metrics["totalAmbiguities"] = total
	metrics["ambiguityTypes"] = byType
	metrics["inconsistencies"] = total
	return findings
}

// checkReadability returns its findings plus the Flesch score and the
// average words per sentence for the confidence calculation.
func (a *Clarity) checkReadability(text string, metrics map[string]any) ([]analysis.Finding, float64, float64) {
	var findings []analysis.Finding

	var perParagraph []int
	for _, p := range paragraphs(text) {
		if strings.TrimSpace(p) == "" {
			continue
		}
		perParagraph = append(perParagraph, len(sentences(p)))
	}
	sentencesPerParagraph := mean(perParagraph)
	metrics["avgSentencesPerParagraph"] = sentencesPerParagraph
	if sentencesPerParagraph > maxSentencesPerParagraph {
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingFormal,
			"Legibilidade do texto",
			fmt.Sprintf("Média de %.1f frases por parágrafo (recomendado: máximo %d)", sentencesPerParagraph, maxSentencesPerParagraph),
			"Dividir parágrafos longos em parágrafos menores"))
	}

	var perSentence []int
	for _, s := range sentences(text) {
		perSentence = append(perSentence, len(strings.Fields(s)))
	}
	wordsPerSentence := mean(perSentence)
	metrics["avgWordsPerSentence"] = wordsPerSentence
	if wordsPerSentence > maxWordsPerSentence {
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityMedium, analysis.FindingFormal,
			"Legibilidade do texto",
			fmt.Sprintf("Média de %.1f palavras por frase (recomendado: máximo %d)", wordsPerSentence, maxWordsPerSentence),
			"Dividir frases longas em frases menores"))
	}

	var perWord []int
	for _, w := range letterWord.FindAllString(strings.ToLower(text), -1) {
		perWord = append(perWord, countSyllables(w))
	}
	syllablesPerWord := mean(perWord)
	metrics["avgSyllablesPerWord"] = syllablesPerWord
	if syllablesPerWord > maxSyllablesPerWord {
		findings = append(findings, finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingFormal,
			"Legibilidade do texto",
			fmt.Sprintf("Média de %.1f sílabas por palavra (recomendado: máximo %d)", syllablesPerWord, maxSyllablesPerWord),
			"Usar sinônimos mais simples quando possível"))
	}

	flesch := FleschScore(wordsPerSentence, syllablesPerWord)
	metrics["fleschKincaidScore"] = flesch
	metrics["readabilityLevel"] = ReadabilityLevel(flesch)

	return findings, flesch, wordsPerSentence
}

func (a *Clarity) checkNumbering(text string, docType analysis.DocumentType) []analysis.Finding {
	var findings []analysis.Finding
	for _, c := range numberingChecks[docType] {
		triggered := true
		for _, t := range c.triggers {
			if !strings.Contains(text, t) {
				triggered = false
				break
			}
		}
		if !triggered || c.numbered.MatchString(text) {
			continue
		}
		findings = append(findings, finding(c.kind, c.severity, c.category, c.location, c.description, c.suggestion))
	}
	return findings
}

func (a *Clarity) checkTerminology(text string, metrics map[string]any) []analysis.Finding {
	variations := make(map[string][]string)

	for _, term := range technicalTerms {
		matches := termPatterns[term].FindAllString(text, -1)
		if len(matches) < 2 {
			continue
		}
		seen := make(map[string]bool)
		var forms []string
		for _, m := range matches {
			l := strings.ToLower(m)
			if !seen[l] {
				seen[l] = true
				forms = append(forms, l)
			}
		}
		if len(forms) > 1 {
			variations[term] = forms
		}
	}

	metrics["terminologyInconsistencies"] = len(variations)
	metrics["termVariations"] = variations

	if len(variations) == 0 {
		return nil
	}
	return []analysis.Finding{finding(analysis.KindInconsistency, analysis.SeverityMedium, analysis.FindingFormal,
		"Consistência terminológica",
		fmt.Sprintf("%d termo(s) técnico(s) com variações inconsistentes", len(variations)),
		"Padronizar uso de termos técnicos em todo o documento")}
}

// score is driven by the ambiguity count rather than the per-finding
// penalties (kept as the penaltyScore metric), less 10 for hard-to-read text.
func (a *Clarity) score(inconsistencies int, flesch float64) float64 {
	score := max(0, 100-float64(inconsistencies)*5)
	if flesch < 60 {
		score -= 10
	}
	return analysis.ClampScore(score)
}

func (a *Clarity) confidence(findings []analysis.Finding, flesch, wps float64) float64 {
	confidence := 80.0
	if flesch != 0 {
		confidence += 10
	}
	if wps != 0 {
		confidence += 5
	}
	if len(findings) > 5 {
		confidence -= 15
	}
	return analysis.ClampScore(confidence)
}

// CacheKey implements analysis.Analyzer.
func (a *Clarity) CacheKey(in analysis.Input) string {
	return fmt.Sprintf("clarity_%s_%s", in.Classification.DocumentType,
		analysis.Fingerprint(analysis.Prefix(in.Text, clarityKeyPrefix)))
}

// ValidateInput implements analysis.Analyzer.
func (a *Clarity) ValidateInput(in analysis.Input) error {
	if err := checkLength(in.Text, clarityMinLength, clarityMaxLength); err != nil {
		return err
	}
	return requireDocumentType(in)
}

// FallbackResult implements analysis.Analyzer.
func (a *Clarity) FallbackResult(_ analysis.Input, cause error) analysis.Result {
	return analysis.Result{
		Problems: []analysis.Finding{failureFinding(
			"Análise de clareza básica devido a erro no analisador principal",
			"Verificar configurações do analisador de clareza",
			analysis.FindingFormal, cause)},
		Metrics: map[string]any{
			"totalClauses":    0,
			"validClauses":    0,
			"missingClauses":  1,
			"inconsistencies": 0,
		},
		Score:      70,
		Confidence: 30,
		Degraded:   true,
	}
}

// FleschScore is the Portuguese-adapted Flesch reading ease.
func FleschScore(wordsPerSentence, syllablesPerWord float64) float64 {
	return 248.835 - 1.015*wordsPerSentence - 84.6*syllablesPerWord
}

// ReadabilityLevel labels a Flesch score.
func ReadabilityLevel(score float64) string {
	for _, l := range readabilityLevels {
		if score >= l.min {
			return l.label
		}
	}
	return "Muito difícil"
}

// sentences splits text on terminal punctuation, dropping blank pieces.
func sentences(text string) []string {
	var out []string
	for _, s := range sentenceBreak.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// countSyllables counts vowel groups, with a minimum of one.
func countSyllables(word string) int {
	count := 0
	prevVowel := false
	for _, r := range strings.ToLower(word) {
		isVowel := strings.ContainsRune(vowels, r)
		if isVowel && !prevVowel {
			count++
		}
		prevVowel = isVowel
	}
	return max(1, count)
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
