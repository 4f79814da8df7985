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
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	upperCaseWord  = regexp.MustCompile(`\b[A-Z]{3,}\b`)
	bulletItem     = regexp.MustCompile(`(?m)^[-*•]\s+.+$`)
	numberedItem   = regexp.MustCompile(`(?m)^(\d+)\.\s+.+$`)
)

// textLength is the document length in characters.
func textLength(text string) int {
	return utf8.RuneCountInString(text)
}

// lines splits text into lines without trailing carriage returns.
func lines(text string) []string {
	raw := strings.Split(text, "\n")
	for i, l := range raw {
		raw[i] = strings.TrimRight(l, "\r")
	}
	return raw
}

// paragraphs splits text on blank lines.
func paragraphs(text string) []string {
	return paragraphBreak.Split(text, -1)
}

// containsAny reports whether lower contains any of the keywords.
// lower must already be lower-cased.
func containsAny(lower string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// countMatches counts non-overlapping matches of re in text.
func countMatches(re *regexp.Regexp, text string) int {
	return len(re.FindAllStringIndex(text, -1))
}

// checkLength enforces the exclusive (min, max) length window analyzers accept.
func checkLength(text string, min, max int) error {
	n := textLength(text)
	if n <= min {
		return fmt.Errorf("text too short: %d characters (need more than %d)", n, min)
	}
	if n >= max {
		return fmt.Errorf("text too long: %d characters (limit %d)", n, max)
	}
	return nil
}

// requireDocumentType rejects inputs without a document type.
func requireDocumentType(in analysis.Input) error {
	if in.Classification.DocumentType == "" {
		return fmt.Errorf("classification document type is required")
	}
	return nil
}

// finding is a terse constructor used by the rule tables.
func finding(kind analysis.FindingKind, sev analysis.Severity, cat analysis.FindingCategory, location, description, fix string) analysis.Finding {
	return analysis.Finding{
		Kind:         kind,
		Description:  description,
		Severity:     sev,
		Location:     location,
		SuggestedFix: fix,
		Category:     cat,
	}
}

// failureFinding describes why an analyzer could not finish.
func failureFinding(description, fix string, cat analysis.FindingCategory, cause error) analysis.Finding {
	if cause != nil {
		description = description + ": " + cause.Error()
	}
	return finding(analysis.KindInconsistency, analysis.SeverityLow, cat, "Sistema de análise", description, fix)
}

// sequenceGaps returns every integer in [1, max(numbers)] missing from
// numbers. Numbers above limit are ignored so that years or amounts that
// happen to start a line do not generate thousands of gaps.
func sequenceGaps(numbers []int, limit int) []int {
	seen := make(map[int]bool, len(numbers))
	maxN := 0
	for _, n := range numbers {
		if n < 1 || n > limit {
			continue
		}
		seen[n] = true
		if n > maxN {
			maxN = n
		}
	}
	var gaps []int
	for i := 1; i <= maxN; i++ {
		if !seen[i] {
			gaps = append(gaps, i)
		}
	}
	return gaps
}

// mergeMetrics copies src into dst.
func mergeMetrics(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
