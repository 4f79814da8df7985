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
	"sort"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
)

// Basic analyzer types known to the fallback system.
const (
	BasicGeneral    = "general"
	BasicStructural = "structural"
	BasicLegal      = "legal"
)

// Basic is a degraded stand-in that returns a fixed, low-confidence
// result without reading the document. The fallback system uses it when
// the real analyzer keeps failing.
type Basic struct {
	kind       string
	score      float64
	confidence float64
	finding    analysis.Finding
}

var basics = map[string]Basic{
	BasicGeneral: {
		kind:       BasicGeneral,
		score:      60,
		confidence: 40,
		finding: finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingFormal,
			"Sistema de análise",
			"Análise básica executada devido a falha no analisador principal",
			"Verificar configurações e tentar novamente"),
	},
	BasicStructural: {
		kind:       BasicStructural,
		score:      65,
		confidence: 35,
		finding: finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingFormal,
			"Sistema de análise estrutural",
			"Análise estrutural básica executada devido a falha no analisador principal",
			"Verificar configurações do analisador estrutural"),
	},
	BasicLegal: {
		kind:       BasicLegal,
		score:      55,
		confidence: 30,
		finding: finding(analysis.KindInconsistency, analysis.SeverityLow, analysis.FindingLegal,
			"Sistema de análise legal",
			"Análise legal básica executada devido a falha no analisador principal",
			"Verificar configurações do analisador legal"),
	},
}

// LookupBasic returns the basic analyzer registered under kind.
func LookupBasic(kind string) (Basic, bool) {
	b, ok := basics[kind]
	return b, ok
}

// BasicKinds lists the registered basic analyzer types in sorted order.
func BasicKinds() []string {
	kinds := make([]string, 0, len(basics))
	for k := range basics {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Kind returns the basic analyzer type.
func (b Basic) Kind() string { return b.kind }

// Analyze returns the fixed degraded result.
func (b Basic) Analyze(_ analysis.Input) analysis.Result {
	return analysis.Result{
		Problems:   []analysis.Finding{b.finding},
		Metrics:    map[string]any{},
		Score:      b.score,
		Confidence: b.confidence,
		Degraded:   true,
	}
}
