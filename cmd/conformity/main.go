// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command conformity analyzes public procurement documents for conformity
// with Lei 14.133/21, plain-language and ABNT formatting rules.
//
// Usage:
//
//	conformity serve --config conformity.yaml
//	conformity analyze edital.txt --type edital --modality processo_licitatorio
//	conformity analyze tr.txt --type tr --param orgao=prefeitura --json
//	conformity strategies
//	conformity config
//
// Example requests against a running server:
//
//	# Health check
//	curl http://localhost:12230/v1/conformity/health
//
//	# Analyze a document
//	curl -X POST http://localhost:12230/v1/conformity/analyze \
//	  -H "Content-Type: application/json" \
//	  -d '{"text": "...", "classification": {"document_type": "edital", "modality": "processo_licitatorio"}}'
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
