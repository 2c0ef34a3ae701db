// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package repair implements the deterministic, pure-function source
// transforms applied before any diagnostic is re-prompted to the LLM
// (SPEC_FULL.md §4.6). Each transform is (source, diagnostic) -> (source',
// applied?); none of them consult the network or mutate shared state,
// which is what makes repeated application on already-clean input a
// no-op (the Repairer-determinism testable property, SPEC_FULL.md §8).
//
// The orchestrator is language-agnostic (SPEC_FULL.md §1): the generated
// corpus's target language is not known ahead of time, so import and
// member boundaries are located with a line-oriented scan rather than a
// language grammar.
package repair

import (
	"sort"
	"strings"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

// Transform is a pure deterministic repair function.
type Transform func(source string, d model.Diagnostic) (string, bool)

// Repairer applies line-oriented text transforms to generated source.
type Repairer struct{}

// New returns a Repairer.
func New() *Repairer {
	return &Repairer{}
}

// Apply runs the transform registered for d.Category, if any, returning
// the possibly-modified source and whether a fix was applied. A
// diagnostic whose category has no registered transform passes through
// unchanged; the caller's re-prompt step handles the residual.
func (r *Repairer) Apply(source string, d model.Diagnostic) (string, bool) {
	switch d.Category {
	case model.CategoryMissingUsing:
		return r.fixMissingUsing(source, d)
	case model.CategoryDuplicateMember:
		return r.fixDuplicateMember(source, d)
	case model.CategoryMissingInterfaceMember:
		return r.fixMissingInterfaceMember(source, d, false)
	case model.CategoryMissingAbstractOverride:
		return r.fixMissingInterfaceMember(source, d, true)
	case model.CategorySealedInheritance:
		return r.fixSealedInheritance(source, d)
	default:
		return source, false
	}
}

// ApplyAmbiguousReference replaces the offending simple name with its
// suggested alias. This transform needs the SymbolRegistry's
// suggestion, so it is not dispatched through Apply's category switch
// (which only needs the source and diagnostic); the executor calls it
// directly once it has resolved the alias.
func (r *Repairer) ApplyAmbiguousReference(source, simpleName, alias string) (string, bool) {
	if !strings.Contains(source, simpleName) {
		return source, false
	}
	return replaceWholeWord(source, simpleName, alias), true
}

// DedupeImports sorts and deduplicates the import/using lines of a
// merged fragment, leaving everything else untouched. The Merger runs
// this once per namespace bucket after concatenating sibling tasks'
// fragments, since each fragment may repeat the same import.
func (r *Repairer) DedupeImports(source string) string {
	lines := strings.Split(source, "\n")
	var importBlock []string
	var prefix, suffix []string
	seenImport := false
	for _, l := range lines {
		if isImportLine(l) {
			importBlock = append(importBlock, strings.TrimSpace(l))
			seenImport = true
			continue
		}
		if seenImport {
			suffix = append(suffix, l)
		} else {
			prefix = append(prefix, l)
		}
	}
	if len(importBlock) == 0 {
		return source
	}
	sort.Strings(importBlock)
	importBlock = dedupe(importBlock)

	out := append(append(append([]string(nil), prefix...), importBlock...), suffix...)
	return strings.Join(out, "\n")
}

// fixMissingUsing inserts the missing import in sorted, deduplicated
// order. d.Message is expected to carry the missing import path/name;
// callers populate it from the Validator's diagnostic text.
func (r *Repairer) fixMissingUsing(source string, d model.Diagnostic) (string, bool) {
	imp := extractMissingImport(d.Message)
	if imp == "" {
		return source, false
	}
	lines := strings.Split(source, "\n")
	newLine := importLineFor(imp)

	var importBlock []string
	var prefix, suffix []string
	insertAt := -1
	for i, l := range lines {
		if isImportLine(l) {
			importBlock = append(importBlock, l)
			if insertAt < 0 {
				insertAt = i
			}
			continue
		}
		if insertAt < 0 {
			prefix = append(prefix, l)
		} else {
			suffix = append(suffix, l)
		}
	}
	if insertAt < 0 {
		insertAt = len(prefix)
		suffix = lines[insertAt:]
		prefix = lines[:insertAt]
	}
	for _, l := range importBlock {
		if strings.TrimSpace(l) == newLine {
			return source, false
		}
	}
	importBlock = append(importBlock, newLine)
	sort.Strings(importBlock)
	importBlock = dedupe(importBlock)

	out := append(append(append([]string(nil), prefix...), importBlock...), suffix...)
	return strings.Join(out, "\n"), true
}

func dedupe(ss []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func isImportLine(l string) bool {
	t := strings.TrimSpace(l)
	return strings.HasPrefix(t, "using ") || strings.HasPrefix(t, "import ")
}

func importLineFor(imp string) string {
	return "using " + imp + ";"
}

// extractMissingImport pulls the quoted dotted name out of a validator
// message like `The type or namespace name 'Foo.Bar' could not be
// found` and returns its namespace part (`Foo`). A quoted name with no
// dot is returned whole; a message with no quoted name yields "".
func extractMissingImport(message string) string {
	start := strings.IndexByte(message, '\'')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(message[start+1:], '\'')
	if end < 0 {
		return ""
	}
	name := message[start+1 : start+1+end]
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[:idx]
	}
	return name
}

// fixDuplicateMember removes a duplicate member declaration, keeping
// the first occurrence by lexical position. d.Message is expected to
// name the duplicated member signature.
func (r *Repairer) fixDuplicateMember(source string, d model.Diagnostic) (string, bool) {
	member := strings.TrimSpace(d.Message)
	if member == "" {
		return source, false
	}
	lines := strings.Split(source, "\n")
	seen := false
	var out []string
	skipDepth := -1
	opened := false
	for _, l := range lines {
		if strings.Contains(l, member) && skipDepth < 0 {
			if seen {
				skipDepth, opened = 0, false
			}
			seen = true
		}
		if skipDepth >= 0 {
			skipDepth += strings.Count(l, "{") - strings.Count(l, "}")
			opened = opened || strings.Contains(l, "{")
			if (opened && skipDepth <= 0) || (!opened && strings.HasSuffix(strings.TrimSpace(l), ";")) {
				skipDepth = -1
			}
			continue
		}
		out = append(out, l)
	}
	if !seen {
		return source, false
	}
	return strings.Join(out, "\n"), true
}

// fixMissingInterfaceMember inserts a stub whose signature is copied
// verbatim from the contract (carried in d.Message by convention: the
// rendered signature text). The body throws a not-implemented
// sentinel; override marks it with the override keyword.
func (r *Repairer) fixMissingInterfaceMember(source string, d model.Diagnostic, override bool) (string, bool) {
	sig := strings.TrimSpace(d.Message)
	if sig == "" {
		return source, false
	}
	closeIdx := strings.LastIndexByte(source, '}')
	if closeIdx < 0 {
		return source, false
	}
	kw := "public"
	if override {
		kw = "public override"
	}
	stub := "\n\t" + kw + " " + sig + " { throw new NotImplementedException(); }\n"
	return source[:closeIdx] + stub + source[closeIdx:], true
}

// fixSealedInheritance rewrites `class X : Sealed` into a composition
// `class X { private Sealed inner; }` delegating no members; the
// caller must add delegation manually (the transform only removes the
// illegal inheritance, per SPEC_FULL.md §4.6).
func (r *Repairer) fixSealedInheritance(source string, d model.Diagnostic) (string, bool) {
	sealedName := strings.TrimSpace(d.Message)
	if sealedName == "" {
		return source, false
	}
	marker := " : " + sealedName
	idx := strings.Index(source, marker)
	if idx < 0 {
		return source, false
	}
	braceIdx := strings.IndexByte(source[idx:], '{')
	if braceIdx < 0 {
		return source, false
	}
	insertAt := idx + braceIdx + 1
	field := "\n\tprivate " + sealedName + " inner;\n"
	out := source[:idx] + source[idx+len(marker):insertAt] + field + source[insertAt:]
	return out, true
}

func replaceWholeWord(source, word, replacement string) string {
	var b strings.Builder
	i := 0
	for i < len(source) {
		j := strings.Index(source[i:], word)
		if j < 0 {
			b.WriteString(source[i:])
			break
		}
		j += i
		before := byte(0)
		if j > 0 {
			before = source[j-1]
		}
		after := byte(0)
		if j+len(word) < len(source) {
			after = source[j+len(word)]
		}
		if !isIdentByte(before) && !isIdentByte(after) {
			b.WriteString(source[i:j])
			b.WriteString(replacement)
			i = j + len(word)
		} else {
			b.WriteString(source[i : j+len(word)])
			i = j + len(word)
		}
	}
	return b.String()
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '.'
}
