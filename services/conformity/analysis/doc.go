// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis defines the conformity data model and the analyzer runtime.
//
// Every document analyzer implements the Analyzer interface and is only ever
// invoked through a Runtime, which adds:
//
//   - input validation
//   - a bounded per-analyzer result cache (oldest entry evicted first)
//   - a timeout race around Analyze
//   - error counting and derived health
//   - fallback-result synthesis when the analyzer fails
//
// # Scoring
//
// Analyzers score on two independent axes. Score (0-100) measures conformity
// and starts at 100 minus a per-severity penalty. Confidence (0-100) measures
// how much the analyzer trusts its own score. Each analyzer owns its
// PenaltyTable; aggregation never reinterprets a finding's severity with a
// different table.
//
// # Thread Safety
//
// Runtime is safe for concurrent use. Result and Finding values are treated
// as immutable once returned; caches hand out clones.
package analysis
