// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repair

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

func TestRepairer_MissingInterfaceMemberConvergesInOneAttempt(t *testing.T) {
	r := New()
	source := "class Widget : IWidget {\n}\n"
	d := model.Diagnostic{Category: model.CategoryMissingInterfaceMember, Message: "Render() string"}

	out, applied := r.Apply(source, d)
	require.True(t, applied)
	assert.Contains(t, out, "Render() string { throw new NotImplementedException(); }")

	// Deterministic: re-running on the same original source with the
	// same diagnostic applies again (it is a pure function of its
	// inputs) and produces identical output.
	out2, applied2 := r.Apply(source, d)
	require.True(t, applied2)
	assert.Equal(t, out, out2)
}

func TestRepairer_MissingUsingInsertsSortedDeduped(t *testing.T) {
	r := New()
	source := "using System;\nusing Zeta.Services;\n\nclass Foo {}\n"
	d := model.Diagnostic{Category: model.CategoryMissingUsing, Message: "The type or namespace name 'Alpha.Models.Widget' could not be found"}

	out, applied := r.Apply(source, d)
	require.True(t, applied)
	lines := splitLines(out)
	assert.Equal(t, "using Alpha.Models;", lines[0])
	assert.Equal(t, "using System;", lines[1])
	assert.Equal(t, "using Zeta.Services;", lines[2])

	// Applying again is a no-op: the import is already present.
	out2, applied2 := r.Apply(out, d)
	assert.False(t, applied2)
	assert.Equal(t, out, out2)
}

func TestRepairer_DuplicateMemberKeepsFirstOccurrence(t *testing.T) {
	r := New()
	source := "class Foo {\n\tvoid Bar() { A(); }\n\tvoid Bar() { B(); }\n}\n"
	d := model.Diagnostic{Category: model.CategoryDuplicateMember, Message: "void Bar()"}

	out, applied := r.Apply(source, d)
	require.True(t, applied)
	assert.Contains(t, out, "A();")
	assert.NotContains(t, out, "B();")
}

func TestRepairer_SealedInheritanceBecomesComposition(t *testing.T) {
	r := New()
	source := "class Derived : SealedBase {\n\tvoid Foo() {}\n}\n"
	d := model.Diagnostic{Category: model.CategorySealedInheritance, Message: "SealedBase"}

	out, applied := r.Apply(source, d)
	require.True(t, applied)
	assert.NotContains(t, out, ": SealedBase")
	assert.Contains(t, out, "private SealedBase inner;")
}

func TestRepairer_AmbiguousReferenceReplacesWholeWordOnly(t *testing.T) {
	r := New()
	source := "var x = new Result();\nvar y = MyResultHolder.Get();\n"
	out, applied := r.ApplyAmbiguousReference(source, "Result", "P.Services.Result")
	require.True(t, applied)
	assert.Contains(t, out, "new P.Services.Result()")
	assert.Contains(t, out, "MyResultHolder.Get()")
}

func TestRepairer_UnknownCategoryPassesThrough(t *testing.T) {
	r := New()
	source := "class Foo {}\n"
	d := model.Diagnostic{Category: model.CategoryOther}
	out, applied := r.Apply(source, d)
	assert.False(t, applied)
	assert.Equal(t, source, out)
}

func TestRepairer_DedupeImportsSortsAndCollapsesAcrossConcatenatedFragments(t *testing.T) {
	r := New()
	source := "using System;\nclass Foo {}\n\nusing System;\nusing Alpha.Models;\nclass Bar {}\n"
	out := r.DedupeImports(source)
	lines := splitLines(out)
	assert.Equal(t, "using Alpha.Models;", lines[0])
	assert.Equal(t, "using System;", lines[1])
	assert.Contains(t, out, "class Foo {}")
	assert.Contains(t, out, "class Bar {}")
	assert.Equal(t, 1, strings.Count(out, "using System;"))
}

func TestRepairer_DedupeImportsNoOpWhenNoImports(t *testing.T) {
	r := New()
	source := "class Foo {}\n"
	assert.Equal(t, source, r.DedupeImports(source))
}

func splitLines(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == '\n' {
			out = append(out, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
