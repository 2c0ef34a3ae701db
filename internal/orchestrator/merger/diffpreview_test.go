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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

func TestUnifiedDiff_SingleLineChangeProducesOneHunk(t *testing.T) {
	old := "class Foo {\n  int x;\n}\n"
	updated := "class Foo {\n  int y;\n}\n"

	out := unifiedDiff("Foo", old, updated)
	assert.Contains(t, out, "--- a/Foo")
	assert.Contains(t, out, "+++ b/Foo")
	assert.Contains(t, out, "-  int x;")
	assert.Contains(t, out, "+  int y;")
	assert.Contains(t, out, " class Foo {")
}

func TestUnifiedDiff_IdenticalContentProducesNoHunk(t *testing.T) {
	same := "class Foo {\n  int x;\n}\n"
	assert.Empty(t, unifiedDiff("Foo", same, same))
}

func TestDiffPreview_ParsesAsWellFormedHunkSyntax(t *testing.T) {
	c := model.Conflict{
		FullyQualifiedName: "Widgets.Foo",
		Definitions: []model.Definition{
			{TaskID: "t1", Source: "class Foo {\n  int x;\n}\n"},
			{TaskID: "t2", Source: "class Foo {\n  int y;\n}\n"},
		},
	}
	preview := diffPreview(c)
	assert.True(t, strings.Contains(preview, "@@"))
}

func TestDiffPreview_SingleDefinitionHasNoPreview(t *testing.T) {
	c := model.Conflict{
		FullyQualifiedName: "Widgets.Foo",
		Definitions:        []model.Definition{{TaskID: "t1", Source: "class Foo {}\n"}},
	}
	assert.Empty(t, diffPreview(c))
}
