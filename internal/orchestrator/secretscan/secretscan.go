// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secretscan is a concrete, optional external.Validator that
// flags hardcoded secrets in a generated fragment before it is ever
// merged into the corpus. It never replaces a target-language
// compiler/linter backend - Validator's primary job per SPEC_FULL.md
// §6 - but a deployment may chain it ahead of (or alongside) one, the
// same layered-validation shape the teacher's patch validator used
// (size/syntax/pattern/secret/permission checks run in sequence).
package secretscan

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/codeforge/orchestrator/internal/orchestrator/external"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

// Pattern is one regex-based secret signature.
type Pattern struct {
	Name       string
	Regex      *regexp.Regexp
	MinEntropy float64
	Message    string
}

// defaultPatterns covers the handful of secret shapes common enough to
// be worth a default: cloud access keys, private key blocks, and
// generic high-entropy assignments to an obviously secret-named field.
var defaultPatterns = []Pattern{
	{
		Name:    "aws-access-key-id",
		Regex:   regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		Message: "hardcoded AWS access key ID",
	},
	{
		Name:    "private-key-block",
		Regex:   regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
		Message: "embedded private key block",
	},
	{
		Name:       "generic-secret-assignment",
		Regex:      regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)\s*[:=]\s*["'][A-Za-z0-9+/=_-]{12,}["']`),
		MinEntropy: 3.0,
		Message:    "high-entropy literal assigned to a secret-like field",
	},
}

// Scanner finds hardcoded secrets in a source fragment.
type Scanner struct {
	patterns []Pattern
}

// New returns a Scanner using defaultPatterns.
func New() *Scanner {
	return &Scanner{patterns: defaultPatterns}
}

// WithPatterns returns a Scanner using patterns instead of the defaults.
func WithPatterns(patterns []Pattern) *Scanner {
	return &Scanner{patterns: patterns}
}

// Scan reports every match in source as a model.Diagnostic, line-numbered,
// one per match. Matches inside a statistically low-entropy literal (a
// placeholder like "xxxxxxxxxxxxxxxx") are suppressed when the pattern
// declares a MinEntropy.
func (s *Scanner) Scan(source string) []model.Diagnostic {
	var diags []model.Diagnostic
	for lineNum, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isCommentLine(trimmed) {
			continue
		}
		for _, p := range s.patterns {
			for _, match := range p.Regex.FindAllString(line, -1) {
				if p.MinEntropy > 0 && entropy(extractValue(match)) < p.MinEntropy {
					continue
				}
				diags = append(diags, model.Diagnostic{
					Severity: model.SeverityError,
					Code:     p.Name,
					Message:  p.Message,
					Location: model.Location{Line: lineNum + 1},
					Category: model.CategoryOther,
				})
			}
		}
	}
	return diags
}

// Validator adapts Scanner to external.Validator: it never inspects
// referenceSources, since a secret's presence doesn't depend on what
// else the task depends on.
type Validator struct {
	Scanner *Scanner
}

// NewValidator returns a Validator using defaultPatterns.
func NewValidator() *Validator {
	return &Validator{Scanner: New()}
}

func (v *Validator) Validate(_ context.Context, source string, _ []string) (external.ValidationResult, error) {
	diags := v.Scanner.Scan(source)
	var result external.ValidationResult
	for _, d := range diags {
		if d.Severity == model.SeverityError {
			result.Errors = append(result.Errors, d)
		} else {
			result.Warnings = append(result.Warnings, d)
		}
	}
	return result, nil
}

func isCommentLine(line string) bool {
	return strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") ||
		strings.HasPrefix(line, "/*") || strings.HasPrefix(line, "*")
}

// extractValue pulls the literal's contents out of a key=value/key:
// value match, trimming surrounding quotes, so entropy is measured
// against the secret candidate rather than the whole "key=value" span.
func extractValue(match string) string {
	for _, sep := range []string{"=", ":"} {
		if idx := strings.Index(match, sep); idx > 0 {
			return strings.Trim(strings.TrimSpace(match[idx+1:]), `"'`)
		}
	}
	return match
}

// entropy computes the Shannon entropy of s in bits per character;
// higher indicates more randomness, and therefore a more plausible secret.
func entropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[rune]int)
	for _, r := range s {
		freq[r]++
	}
	var h float64
	n := float64(len(s))
	for _, count := range freq {
		p := float64(count) / n
		h -= p * math.Log2(p)
	}
	return h
}
