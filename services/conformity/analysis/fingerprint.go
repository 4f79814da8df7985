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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// fingerprintLen is the number of hex characters kept from a SHA256 digest.
const fingerprintLen = 16

// Fingerprint returns a short stable hash of s.
func Fingerprint(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:fingerprintLen]
}

// Prefix returns at most n runes of text. Keys hash a bounded prefix so
// key cost does not grow with document size.
func Prefix(text string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}

// ParametersFingerprint hashes a parameter map. encoding/json sorts map
// keys, so equal maps always hash equally. Maps holding values JSON cannot
// encode (channels, funcs, NaN) have no fingerprint.
func ParametersFingerprint(params map[string]any) (string, error) {
	if len(params) == 0 {
		return Fingerprint("{}"), nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnencodableParameters, err)
	}
	return Fingerprint(string(b)), nil
}

// ClassificationFingerprint hashes every classification field.
func ClassificationFingerprint(c Classification) string {
	return Fingerprint(string(c.DocumentType) + "|" + string(c.Modality) + "|" + c.ObjectType + "|" + c.Subtype)
}

// =============================================================================
// Struct validation
// =============================================================================

var validate = validator.New()

// Validate checks the classification against its struct tags.
func (c Classification) Validate() error {
	return validate.Struct(c)
}
