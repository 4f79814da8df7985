// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// =============================================================================
// SEVERITY
// =============================================================================

// Severity ranks a finding. The rank ordering is fixed; the penalty attached
// to each rank is owned by the analyzer that produced the finding.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity parses a severity name. Portuguese names used by upstream
// collaborators ("baixa", "media", "alta", "critica") are accepted too.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "baixa":
		return SeverityLow, nil
	case "medium", "media", "média":
		return SeverityMedium, nil
	case "high", "alta":
		return SeverityHigh, nil
	case "critical", "critica", "crítica":
		return SeverityCritical, nil
	default:
		return SeverityLow, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	parsed, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PenaltyTable maps each severity rank to the score penalty an analyzer
// applies per finding. Index with a Severity.
type PenaltyTable [4]float64

// Penalty returns the penalty for a severity. Out-of-range severities
// are charged as low.
func (p PenaltyTable) Penalty(s Severity) float64 {
	if s < SeverityLow || s > SeverityCritical {
		return p[SeverityLow]
	}
	return p[s]
}

// Score starts at 100, subtracts one penalty per finding and floors at 0.
func (p PenaltyTable) Score(findings []Finding) float64 {
	score := 100.0
	for _, f := range findings {
		score -= p.Penalty(f.Severity)
	}
	return ClampScore(score)
}

// ClampScore bounds a score or confidence value to [0, 100].
func ClampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// =============================================================================
// FINDINGS
// =============================================================================

// FindingCategory is the business area a finding belongs to.
type FindingCategory string

const (
	FindingLegal     FindingCategory = "legal"
	FindingTechnical FindingCategory = "technical"
	FindingBudgetary FindingCategory = "budgetary"
	FindingFormal    FindingCategory = "formal"
)

// FindingKind classifies what is wrong with the document.
type FindingKind string

const (
	KindMissingClause           FindingKind = "missing_clause"
	KindInconsistency           FindingKind = "inconsistency"
	KindInadequateDeadline      FindingKind = "inadequate_deadline"
	KindIrregularCriterion      FindingKind = "irregular_criterion"
	KindIncompleteSpecification FindingKind = "incomplete_specification"
	KindWrongModality           FindingKind = "wrong_modality"
	KindWeakGrounding           FindingKind = "weak_grounding"
	KindInconsistentQuantity    FindingKind = "inconsistent_quantity"
	KindInconsistentSpreadsheet FindingKind = "inconsistent_spreadsheet"
	KindUnrealisticSchedule     FindingKind = "unrealistic_schedule"
)

// Finding is a single conformity issue detected by an analyzer.
type Finding struct {
	Kind         FindingKind     `json:"kind"`
	Description  string          `json:"description"`
	Severity     Severity        `json:"severity"`
	Location     string          `json:"location,omitempty"`
	SuggestedFix string          `json:"suggested_fix,omitempty"`
	Category     FindingCategory `json:"category"`
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// DocumentType is the procurement document type (Lei 14.133/21 level 4).
type DocumentType string

const (
	DocEdital         DocumentType = "edital"
	DocTR             DocumentType = "tr"
	DocMinutaContrato DocumentType = "minuta_contrato"
	DocProjetoBasico  DocumentType = "projeto_basico"
	DocETP            DocumentType = "etp"
	DocMapaRiscos     DocumentType = "mapa_riscos"
	DocImpugnacao     DocumentType = "impugnacao"
)

// Modality is the main procurement modality (level 2).
type Modality string

const (
	ModalityDirectContracting Modality = "contratacao_direta"
	ModalityBidding           Modality = "processo_licitatorio"
	ModalityContractChanges   Modality = "alteracoes_contratuais"
)

// Classification selects which rules apply to a document.
type Classification struct {
	DocumentType DocumentType `json:"document_type" yaml:"document_type" validate:"required,oneof=edital tr minuta_contrato projeto_basico etp mapa_riscos impugnacao"`
	Modality     Modality     `json:"modality" yaml:"modality" validate:"omitempty,oneof=contratacao_direta processo_licitatorio alteracoes_contratuais"`
	ObjectType   string       `json:"object_type,omitempty" yaml:"object_type,omitempty" validate:"omitempty,oneof=aquisicao servico obra_servicos_eng"`
	Subtype      string       `json:"subtype,omitempty" yaml:"subtype,omitempty" validate:"omitempty,max=64"`
}

// ErrorKey buckets failures by kind of document.
func (c Classification) ErrorKey() string {
	return string(c.DocumentType) + "_" + string(c.Modality)
}

// =============================================================================
// INPUT AND RESULTS
// =============================================================================

// Input is the immutable analysis context handed to every analyzer of one
// orchestrator call.
type Input struct {
	Text           string         `json:"text"`
	Classification Classification `json:"classification"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	CacheEnabled   bool           `json:"cache_enabled"`
}

// Summary renders the input as "docType (N chars)" for logs.
func (in Input) Summary() string {
	return fmt.Sprintf("%s (%d chars)", in.Classification.DocumentType, len([]rune(in.Text)))
}

// Result is the output of one analyzer invocation, or the aggregate of an
// orchestrator call.
type Result struct {
	Problems         []Finding      `json:"problems"`
	Metrics          map[string]any `json:"metrics"`
	Score            float64        `json:"score"`
	Confidence       float64        `json:"confidence"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	CacheKey         string         `json:"cache_key,omitempty"`

	// Degraded is true when the result came from a fallback path rather
	// than a successful run of the full analyzer.
	Degraded bool `json:"degraded,omitempty"`
}

// Clone returns a copy that shares no slices or maps with r.
func (r Result) Clone() Result {
	out := r
	if r.Problems != nil {
		out.Problems = append([]Finding(nil), r.Problems...)
	}
	if r.Metrics != nil {
		out.Metrics = maps.Clone(r.Metrics)
	}
	return out
}

// Elapsed converts a measured duration into the millisecond field.
func (r *Result) Elapsed(d time.Duration) {
	r.ProcessingTimeMs = d.Milliseconds()
}

// =============================================================================
// CATEGORIES
// =============================================================================

// Category is the closed set of analysis categories.
type Category int

const (
	CategoryStructural Category = iota
	CategoryLegal
	CategoryClarity
	CategoryFormatting
)

// AllCategories returns every category in result order.
func AllCategories() []Category {
	return []Category{CategoryStructural, CategoryLegal, CategoryClarity, CategoryFormatting}
}

// String returns the string representation of the category.
func (c Category) String() string {
	switch c {
	case CategoryStructural:
		return "structural"
	case CategoryLegal:
		return "legal"
	case CategoryClarity:
		return "clarity"
	case CategoryFormatting:
		return "abnt"
	default:
		return "unknown"
	}
}

// ParseCategory parses a category name. "formatting" is an alias of "abnt".
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structural":
		return CategoryStructural, nil
	case "legal":
		return CategoryLegal, nil
	case "clarity":
		return CategoryClarity, nil
	case "abnt", "formatting":
		return CategoryFormatting, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// AnalyzerConfig is fixed at analyzer construction.
type AnalyzerConfig struct {
	Name            string        `json:"name"`
	Version         string        `json:"version"`
	Enabled         bool          `json:"enabled"`
	Priority        int           `json:"priority"`
	Timeout         time.Duration `json:"timeout"`
	FallbackEnabled bool          `json:"fallback_enabled"`
}

// CategoryResults holds one result per category. All four are always set.
type CategoryResults struct {
	Structural Result `json:"structural"`
	Legal      Result `json:"legal"`
	Clarity    Result `json:"clarity"`
	Abnt       Result `json:"abnt"`
}

// Get returns the result for a category.
func (cr CategoryResults) Get(c Category) Result {
	switch c {
	case CategoryLegal:
		return cr.Legal
	case CategoryClarity:
		return cr.Clarity
	case CategoryFormatting:
		return cr.Abnt
	default:
		return cr.Structural
	}
}

// Set stores the result for a category.
func (cr *CategoryResults) Set(c Category, r Result) {
	switch c {
	case CategoryLegal:
		cr.Legal = r
	case CategoryClarity:
		cr.Clarity = r
	case CategoryFormatting:
		cr.Abnt = r
	default:
		cr.Structural = r
	}
}

// Ordered returns the four results in fixed category order.
func (cr CategoryResults) Ordered() []Result {
	return []Result{cr.Structural, cr.Legal, cr.Clarity, cr.Abnt}
}

// AnyDegraded reports whether any category came from a fallback path.
func (cr CategoryResults) AnyDegraded() bool {
	for _, r := range cr.Ordered() {
		if r.Degraded {
			return true
		}
	}
	return false
}

// Clone deep-copies all four results.
func (cr CategoryResults) Clone() CategoryResults {
	return CategoryResults{
		Structural: cr.Structural.Clone(),
		Legal:      cr.Legal.Clone(),
		Clarity:    cr.Clarity.Clone(),
		Abnt:       cr.Abnt.Clone(),
	}
}

// Snapshot is what the result cache stores: the aggregate plus the
// category breakdown it was computed from.
type Snapshot struct {
	Aggregate  Result          `json:"aggregate"`
	Categories CategoryResults `json:"categories"`
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{Aggregate: s.Aggregate.Clone(), Categories: s.Categories.Clone()}
}

// CacheStats is the cache summary attached to every comprehensive result.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// FallbackStats is the fallback summary attached to every comprehensive result.
type FallbackStats struct {
	TotalFallbacks      int64 `json:"total_fallbacks"`
	SuccessfulFallbacks int64 `json:"successful_fallbacks"`
	FailedFallbacks     int64 `json:"failed_fallbacks"`
}

// ComprehensiveResult is the orchestrator's verdict. It is built once and
// never mutated afterwards.
type ComprehensiveResult struct {
	AnalysisID          string          `json:"analysis_id"`
	OverallScore        float64         `json:"overall_score"`
	OverallConfidence   float64         `json:"overall_confidence"`
	TotalProcessingTime int64           `json:"total_processing_time_ms"`
	Problems            []Finding       `json:"problems"`
	Metrics             map[string]any  `json:"metrics"`
	CategoryResults     CategoryResults `json:"category_results"`
	CacheStats          CacheStats      `json:"cache_stats"`
	FallbackStats       FallbackStats   `json:"fallback_stats"`
	FromCache           bool            `json:"from_cache"`
}

// HealthStatus is the derived health of one analyzer runtime.
type HealthStatus struct {
	Healthy       bool   `json:"healthy"`
	ErrorCount    int    `json:"error_count"`
	LastError     string `json:"last_error,omitempty"`
	CachedResults int    `json:"cached_results"`
}
