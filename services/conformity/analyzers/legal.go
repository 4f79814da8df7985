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
	legalMinLength = 200
	legalMaxLength = 2_000_000
	legalKeyPrefix = 2000
)

var legalPenalties = analysis.PenaltyTable{
	analysis.SeverityLow:      10,
	analysis.SeverityMedium:   15,
	analysis.SeverityHigh:     20,
	analysis.SeverityCritical: 30,
}

// complianceWeights is what a failed rule costs the legalComplianceScore metric.
var complianceWeights = analysis.PenaltyTable{
	analysis.SeverityLow:    10,
	analysis.SeverityMedium: 15,
	analysis.SeverityHigh:   25,
}

// riskWeights is what a matched risk pattern adds to the riskScore metric.
var riskWeights = analysis.PenaltyTable{
	analysis.SeverityLow:    10,
	analysis.SeverityMedium: 20,
	analysis.SeverityHigh:   30,
}

// legalRule is satisfied when any keyword appears in the document.
type legalRule struct {
	id          string
	description string
	keywords    []string
	severity    analysis.Severity
	suggestion  string
}

var legalRules = map[analysis.DocumentType][]legalRule{
	analysis.DocEdital: {
		{
			id:          "lei_8666_art40",
			description: "Objeto da licitação deve estar claramente definido",
			keywords:    []string{"objeto", "finalidade", "escopo"},
			severity:    analysis.SeverityHigh,
			suggestion:  "Definir claramente o objeto conforme art. 40, I da Lei 8.666/93",
		},
		{
			id:          "lei_8666_art45",
			description: "Critério de julgamento deve ser especificado",
			keywords:    []string{"critério de julgamento", "menor preço", "melhor técnica"},
			severity:    analysis.SeverityHigh,
			suggestion:  "Especificar critério de julgamento conforme art. 45 da Lei 8.666/93",
		},
		{
			id:          "lei_8666_art37",
			description: "Prazo para entrega de propostas deve ser adequado",
			keywords:    []string{"prazo", "entrega", "proposta"},
			severity:    analysis.SeverityMedium,
			suggestion:  "Estabelecer prazo adequado para entrega de propostas",
		},
	},
	analysis.DocMinutaContrato: {
		{
			id:          "lei_8666_art55",
			description: "Cláusula de vigência deve estar presente",
			keywords:    []string{"vigência", "duração", "prazo de vigência"},
			severity:    analysis.SeverityHigh,
			suggestion:  "Incluir cláusula de vigência do contrato",
		},
		{
			id:          "lei_8666_art57",
			description: "Cláusula de rescisão deve estar presente",
			keywords:    []string{"rescisão", "termino", "término", "extinção"},
			severity:    analysis.SeverityHigh,
			suggestion:  "Incluir cláusula de rescisão contratual",
		},
	},
	analysis.DocTR: {
		{
			id:          "lei_8666_art7",
			description: "Justificativa para contratação deve estar fundamentada",
			keywords:    []string{"justificativa", "fundamentação", "motivo"},
			severity:    analysis.SeverityMedium,
			suggestion:  "Fundamentar adequadamente a justificativa para contratação",
		},
	},
}

// riskPattern flags a legally sensitive construct.
type riskPattern struct {
	name        string
	pattern     *regexp.Regexp
	kind        analysis.FindingKind
	severity    analysis.Severity
	description string
	suggestion  string
}

var riskPatterns = []riskPattern{
	{
		name:        "prazo_inadequado",
		pattern:     regexp.MustCompile(`(?i)prazo\s+(?:de\s+)?(?:entrega|execução|conclusão)\s*:\s*(\d+)\s*(?:dias?|meses?)`),
		kind:        analysis.KindInadequateDeadline,
		severity:    analysis.SeverityMedium,
		description: "Prazo pode ser inadequado para execução",
		suggestion:  "Verificar adequação do prazo estabelecido",
	},
	{
		name:        "valor_inadequado",
		pattern:     regexp.MustCompile(`(?i)valor\s+(?:estimado|máximo|limite)\s*:\s*R?\$?\s*([\d.,]+)`),
		kind:        analysis.KindInconsistentSpreadsheet,
		severity:    analysis.SeverityLow,
		description: "Valor pode estar inadequado",
		suggestion:  "Verificar adequação do valor estabelecido",
	},
	{
		name:        "dispensa_licitacao",
		pattern:     regexp.MustCompile(`(?i)(?:dispensa|inexigibilidade)\s+(?:de\s+)?licitação`),
		kind:        analysis.KindWeakGrounding,
		severity:    analysis.SeverityHigh,
		description: "Dispensa de licitação requer justificativa robusta",
		suggestion:  "Verificar se justificativa atende requisitos legais",
	},
	{
		name:        "penalidades",
		pattern:     regexp.MustCompile(`(?i)(?:penalidade|multa)\s+(?:por\s+)?(?:atraso|descumprimento)`),
		kind:        analysis.KindIrregularCriterion,
		severity:    analysis.SeverityMedium,
		description: "Penalidades devem estar adequadamente definidas",
		suggestion:  "Verificar adequação das penalidades estabelecidas",
	},
}

// mandatoryClause must appear verbatim (case-insensitive) in the document.
type mandatoryClause struct {
	name       string
	keyword    string
	severity   analysis.Severity
	suggestion string
}

var mandatoryClauses = map[analysis.DocumentType][]mandatoryClause{
	analysis.DocEdital: {
		{"Objeto da licitação", "objeto", analysis.SeverityHigh, "Definir claramente o objeto da licitação"},
		{"Critério de julgamento", "critério de julgamento", analysis.SeverityHigh, "Especificar critério de julgamento"},
		{"Prazo para entrega", "prazo para entrega", analysis.SeverityMedium, "Estabelecer prazo adequado"},
		{"Local de entrega", "local de entrega", analysis.SeverityMedium, "Especificar local de entrega"},
	},
	analysis.DocMinutaContrato: {
		{"Objeto do contrato", "objeto do contrato", analysis.SeverityHigh, "Definir objeto do contrato"},
		{"Vigência", "vigência", analysis.SeverityHigh, "Estabelecer vigência do contrato"},
		{"Valor", "valor", analysis.SeverityHigh, "Definir valor contratual"},
		{"Forma de pagamento", "forma de pagamento", analysis.SeverityMedium, "Especificar forma de pagamento"},
	},
	analysis.DocTR: {
		{"Especificações técnicas", "especificações técnicas", analysis.SeverityHigh, "Detalhar especificações técnicas"},
		{"Quantitativos", "quantitativos", analysis.SeverityMedium, "Especificar quantitativos"},
		{"Justificativa", "justificativa", analysis.SeverityMedium, "Fundamentar justificativa"},
	},
}

var deadlinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)prazo\s+(?:de\s+)?(?:entrega|execução|conclusão)\s*:\s*(\d+)\s*(dias?|meses?|mês|anos?)`),
	regexp.MustCompile(`(?i)vigência\s*:\s*(\d+)\s*(dias?|meses?|mês|anos?)`),
	regexp.MustCompile(`(?i)duração\s*:\s*(\d+)\s*(dias?|meses?|mês|anos?)`),
}

// deadlineBounds holds the inclusive range accepted for each unit prefix.
var deadlineBounds = []struct {
	unit     string
	min, max int
}{
	{"dia", 1, 365},
	{"m", 1, 60},
	{"ano", 1, 10},
}

// deadline is one duration stated in the document.
type deadline struct {
	value   int
	unit    string
	context string
}

// adequate reports whether the stated duration is within the accepted range.
func (d deadline) adequate() bool {
	unit := strings.ToLower(d.unit)
	for _, b := range deadlineBounds {
		if strings.HasPrefix(unit, b.unit) {
			return d.value >= b.min && d.value <= b.max
		}
	}
	return true
}

// Legal checks statutory compliance: per-type legal rules, risk
// patterns, mandatory clauses and deadline sanity.
type Legal struct {
	cfg analysis.AnalyzerConfig
}

// NewLegal creates the legal analyzer.
func NewLegal() *Legal {
	return &Legal{cfg: analysis.AnalyzerConfig{
		Name:            "LegalAnalyzer",
		Version:         "1.0.0",
		Enabled:         true,
		Priority:        2,
		Timeout:         15 * time.Second,
		FallbackEnabled: true,
	}}
}

// Category implements analysis.Analyzer.
func (a *Legal) Category() analysis.Category { return analysis.CategoryLegal }

// Config implements analysis.Analyzer.
func (a *Legal) Config() analysis.AnalyzerConfig { return a.cfg }

// Analyze implements analysis.Analyzer.
func (a *Legal) Analyze(ctx context.Context, in analysis.Input) (analysis.Result, error) {
	lower := strings.ToLower(in.Text)
	docType := in.Classification.DocumentType
	metrics := make(map[string]any)
	var findings []analysis.Finding

	checks := []func() []analysis.Finding{
		func() []analysis.Finding { return a.checkCompliance(lower, docType, metrics) },
		func() []analysis.Finding { return a.checkRisks(in.Text, metrics) },
		func() []analysis.Finding { return a.checkMandatoryClauses(lower, docType, metrics) },
		func() []analysis.Finding { return a.checkDeadlines(in.Text, metrics) },
	}
	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return analysis.Result{}, err
		}
		findings = append(findings, check()...)
	}

	return analysis.Result{
		Problems:   findings,
		Metrics:    metrics,
		Score:      legalPenalties.Score(findings),
		Confidence: a.confidence(findings, metrics),
	}, nil
}

func (a *Legal) checkCompliance(lower string, docType analysis.DocumentType, metrics map[string]any) []analysis.Finding {
	rules := legalRules[docType]
	var findings []analysis.Finding
	var failed []string
	compliance := 100.0

	for _, r := range rules {
		if containsAny(lower, r.keywords...) {
			continue
		}
		failed = append(failed, r.id)
		compliance -= complianceWeights.Penalty(r.severity)
		findings = append(findings, finding(analysis.KindMissingClause, r.severity, analysis.FindingLegal,
			"Conformidade legal", r.description, r.suggestion))
	}

	metrics["legalComplianceScore"] = analysis.ClampScore(compliance)
	metrics["rulesChecked"] = len(rules)
	metrics["rulesFailed"] = len(findings)
	metrics["failedRules"] = failed
	return findings
}

func (a *Legal) checkRisks(text string, metrics map[string]any) []analysis.Finding {
	var findings []analysis.Finding
	found := []string{}
	risk := 0.0

	for _, p := range riskPatterns {
		if !p.pattern.MatchString(text) {
			continue
		}
		found = append(found, p.name)
		risk += riskWeights.Penalty(p.severity)
		findings = append(findings, finding(p.kind, p.severity, analysis.FindingLegal,
			"Análise de riscos", p.description, p.suggestion))
	}

	metrics["riskScore"] = min(100.0, risk)
	metrics["risksFound"] = found
	metrics["totalRiskPatterns"] = len(riskPatterns)
	return findings
}

func (a *Legal) checkMandatoryClauses(lower string, docType analysis.DocumentType, metrics map[string]any) []analysis.Finding {
	clauses := mandatoryClauses[docType]
	var findings []analysis.Finding

	for _, c := range clauses {
		if strings.Contains(lower, c.keyword) {
			continue
		}
		findings = append(findings, finding(analysis.KindMissingClause, c.severity, analysis.FindingLegal,
			"Cláusulas obrigatórias",
			"Cláusula obrigatória ausente: "+c.name,
			c.suggestion))
	}

	metrics["mandatoryClausesFound"] = len(clauses) - len(findings)
	metrics["mandatoryClausesMissing"] = len(findings)
	metrics["mandatoryClausesTotal"] = len(clauses)
	return findings
}

func (a *Legal) checkDeadlines(text string, metrics map[string]any) []analysis.Finding {
	var deadlines []deadline
	for _, re := range deadlinePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			deadlines = append(deadlines, deadline{value: v, unit: m[2], context: m[0]})
		}
	}

	var findings []analysis.Finding
	for _, d := range deadlines {
		if d.adequate() {
			continue
		}
		findings = append(findings, finding(analysis.KindInadequateDeadline, analysis.SeverityMedium, analysis.FindingLegal,
			d.context,
			fmt.Sprintf("Prazo pode ser inadequado: %d %s", d.value, d.unit),
			"Verificar adequação do prazo estabelecido"))
	}

	metrics["deadlinesFound"] = len(deadlines)
	metrics["inadequateDeadlines"] = len(findings)
	return findings
}

func (a *Legal) confidence(findings []analysis.Finding, metrics map[string]any) float64 {
	confidence := 85.0
	if n, _ := metrics["rulesChecked"].(int); n > 5 {
		confidence += 10
	}
	if len(findings) > 3 {
		confidence -= 15
	}
	if c, _ := metrics["legalComplianceScore"].(float64); c > 80 {
		confidence += 5
	}
	return analysis.ClampScore(confidence)
}

// CacheKey implements analysis.Analyzer.
func (a *Legal) CacheKey(in analysis.Input) string {
	return fmt.Sprintf("legal_%s_%s_%s", in.Classification.DocumentType, in.Classification.Modality,
		analysis.Fingerprint(analysis.Prefix(in.Text, legalKeyPrefix)))
}

// ValidateInput implements analysis.Analyzer.
func (a *Legal) ValidateInput(in analysis.Input) error {
	if err := checkLength(in.Text, legalMinLength, legalMaxLength); err != nil {
		return err
	}
	if err := requireDocumentType(in); err != nil {
		return err
	}
	if in.Classification.Modality == "" {
		return fmt.Errorf("classification modality is required")
	}
	return nil
}

// FallbackResult implements analysis.Analyzer.
func (a *Legal) FallbackResult(_ analysis.Input, cause error) analysis.Result {
	return analysis.Result{
		Problems: []analysis.Finding{failureFinding(
			"Análise legal básica devido a erro no analisador principal",
			"Verificar configurações do analisador legal",
			analysis.FindingLegal, cause)},
		Metrics: map[string]any{
			"totalClauses":    0,
			"validClauses":    0,
			"missingClauses":  1,
			"inconsistencies": 0,
		},
		Score:      60,
		Confidence: 25,
		Degraded:   true,
	}
}
