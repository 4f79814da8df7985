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

import "errors"

// Sentinel errors for the conformity engine.
var (
	// ErrValidation indicates the input was rejected by an analyzer.
	ErrValidation = errors.New("input validation failed")

	// ErrAnalyzerTimeout indicates an analyzer exceeded its configured timeout.
	ErrAnalyzerTimeout = errors.New("analyzer timeout")

	// ErrAnalyzerPanic indicates an analyzer panicked during Analyze.
	ErrAnalyzerPanic = errors.New("analyzer panicked")

	// ErrAnalyzerDisabled indicates the analyzer is disabled by configuration.
	ErrAnalyzerDisabled = errors.New("analyzer disabled")

	// ErrConcurrencyLimit indicates the in-flight analysis ceiling was reached.
	ErrConcurrencyLimit = errors.New("concurrent analysis limit reached")

	// ErrCacheUnavailable indicates the result cache could not be read or written.
	ErrCacheUnavailable = errors.New("result cache unavailable")

	// ErrNoStrategy indicates no fallback strategy produced a result.
	ErrNoStrategy = errors.New("no fallback strategy resolved the failure")

	// ErrUnknownCategory indicates an analysis category outside the closed set.
	ErrUnknownCategory = errors.New("unknown analysis category")

	// ErrUnencodableParameters indicates analysis parameters that cannot be
	// JSON encoded, so no cache key can be derived for them.
	ErrUnencodableParameters = errors.New("parameters cannot be encoded")
)
