// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzers holds the four rule-based conformity analyzers
// (structural, legal, clarity and ABNT formatting) plus the basic
// stand-ins used when they fail.
//
// Every analyzer is stateless after construction: its rule tables are
// package-level values compiled once. Findings are reported in Portuguese
// because they are shown verbatim to the people who wrote the document.
package analyzers

import "github.com/AleutianAI/AleutianConformity/services/conformity/analysis"

// All returns one instance of every analyzer in category order.
func All() []analysis.Analyzer {
	return []analysis.Analyzer{
		NewStructural(),
		NewLegal(),
		NewClarity(),
		NewAbnt(),
	}
}
