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

import "context"

// Analyzer runs one category's battery of conformity checks.
//
// # Description
//
// Analyze is a pure function of its Input: the same text, classification
// and parameters always produce the same findings, score and confidence.
// The three hooks (CacheKey, ValidateInput, FallbackResult) are consumed
// by Runtime so that analyzers never reimplement caching, validation or
// failure handling.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Analyzers in this
// module hold only immutable rule tables.
type Analyzer interface {
	// Category returns the closed-set category this analyzer scores.
	Category() Category

	// Config returns the analyzer's static configuration.
	Config() AnalyzerConfig

	// Analyze runs every check and scores the document.
	//
	// # Inputs
	//
	//   - ctx: Carries the per-analyzer deadline. Long checks should
	//     return ctx.Err() once it is done.
	//   - in: The immutable analysis input.
	//
	// # Outputs
	//
	//   - Result: Findings, metrics, score and confidence in [0, 100].
	//   - error: Non-nil only when the analyzer could not finish.
	Analyze(ctx context.Context, in Input) (Result, error)

	// CacheKey derives a key from a bounded text prefix plus the
	// classification fields the analyzer depends on.
	CacheKey(in Input) string

	// ValidateInput returns nil when the analyzer can run on in.
	ValidateInput(in Input) error

	// FallbackResult synthesizes a low-confidence result carrying exactly
	// one finding that describes cause.
	FallbackResult(in Input, cause error) Result
}
