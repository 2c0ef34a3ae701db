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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge/orchestrator/internal/orchestrator/contract"
	"github.com/codeforge/orchestrator/internal/orchestrator/external"
	"github.com/codeforge/orchestrator/internal/orchestrator/external/externaltest"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/internal/orchestrator/repair"
)

func newMerger(catalog *contract.Catalog, clarifier *externaltest.Clarifier) *Merger {
	return New(catalog, repair.New(), clarifier)
}

func TestMerger_DistinctTypesGroupByNamespaceWithoutConflict(t *testing.T) {
	m := newMerger(contract.New(), &externaltest.Clarifier{})
	completed := []model.CompletedTask{
		{Task: model.Task{ID: "t1", ExpectedTypes: []string{"P.Models.Color"}}, GeneratedSource: "enum Color {\n\tRed,\n}\n"},
		{Task: model.Task{ID: "t2", ExpectedTypes: []string{"P.Services.Cache"}}, GeneratedSource: "class Cache {\n\tvoid Get() {}\n}\n"},
	}

	result, err := m.Merge(context.Background(), completed)
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)
	assert.Contains(t, result.Sources["P.Models"], "enum Color")
	assert.Contains(t, result.Sources["P.Services"], "class Cache")
}

func TestMerger_IdenticalDuplicateIsAutoCollapsed(t *testing.T) {
	m := newMerger(contract.New(), &externaltest.Clarifier{})
	src := "class Widget {\n\tvoid Run() {}\n}\n"
	completed := []model.CompletedTask{
		{Task: model.Task{ID: "t1", ExpectedTypes: []string{"P.Widget"}}, GeneratedSource: src},
		{Task: model.Task{ID: "t2", ExpectedTypes: []string{"P.Widget"}}, GeneratedSource: src},
	}

	result, err := m.Merge(context.Background(), completed)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, model.ResolutionKeepFirst, result.Conflicts[0].Applied)
	assert.True(t, result.Conflicts[0].Resolved)
	assert.Equal(t, 1, countOccurrences(result.Sources["P"], "void Run()"))
}

func TestMerger_DisjointMembersMergeAsPartial(t *testing.T) {
	m := newMerger(contract.New(), &externaltest.Clarifier{})
	completed := []model.CompletedTask{
		{Task: model.Task{ID: "t1", ExpectedTypes: []string{"P.Widget"}}, GeneratedSource: "class Widget {\n\tvoid Run() {}\n}\n"},
		{Task: model.Task{ID: "t2", ExpectedTypes: []string{"P.Widget"}}, GeneratedSource: "class Widget {\n\tvoid Stop() {}\n}\n"},
	}

	result, err := m.Merge(context.Background(), completed)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, model.ResolutionMergeAsPartial, result.Conflicts[0].Applied)
	assert.Contains(t, result.Sources["P"], "void Run()")
	assert.Contains(t, result.Sources["P"], "void Stop()")
}

func TestMerger_FrozenContractCollisionIsUnresolvable(t *testing.T) {
	catalog := contract.New()
	require.NoError(t, catalog.Register(&model.Contract{Name: "Widget", Namespace: "P", Kind: model.ContractModel, Model: &model.ModelBody{}, SourceTaskID: "t0"}))
	catalog.Freeze()

	m := newMerger(catalog, &externaltest.Clarifier{})
	completed := []model.CompletedTask{
		{Task: model.Task{ID: "t1", ExpectedTypes: []string{"P.Widget"}}, GeneratedSource: "class Widget {\n\tvoid A() {}\n}\n"},
		{Task: model.Task{ID: "t2", ExpectedTypes: []string{"P.Widget"}}, GeneratedSource: "class Widget {\n\tvoid B() {}\n}\n"},
	}

	result, err := m.Merge(context.Background(), completed)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.False(t, result.Conflicts[0].Resolved)
	assert.Equal(t, model.ResolutionFailFast, result.Conflicts[0].Suggested)
	_, present := result.Sources["P"]
	assert.False(t, present)
}

func TestMerger_InteractiveAbortFailsTheMerge(t *testing.T) {
	m := newMerger(contract.New(), &externaltest.Clarifier{ReviewResult: external.ReviewResult{Abort: true}})
	m.Interactive = true
	completed := []model.CompletedTask{
		{Task: model.Task{ID: "t1", ExpectedTypes: []string{"P.Widget"}}, GeneratedSource: "class Widget {\n\tvoid A() {}\n}\n"},
		{Task: model.Task{ID: "t2", ExpectedTypes: []string{"P.Widget"}}, GeneratedSource: "class Widget {\n\tvoid B() {}\n}\n"},
	}

	_, err := m.Merge(context.Background(), completed)
	require.Error(t, err)
	assert.ErrorIs(t, err, external.ErrUnresolvableConflict)
}

func TestMerger_MergeIsIdempotentOnItsOwnInput(t *testing.T) {
	m := newMerger(contract.New(), &externaltest.Clarifier{})
	completed := []model.CompletedTask{
		{Task: model.Task{ID: "t1", ExpectedTypes: []string{"P.Models.Color"}}, GeneratedSource: "enum Color {\n\tRed,\n}\n"},
		{Task: model.Task{ID: "t2", ExpectedTypes: []string{"P.Widget"}}, GeneratedSource: "class Widget {\n\tvoid A() {}\n}\n"},
		{Task: model.Task{ID: "t3", ExpectedTypes: []string{"P.Widget"}}, GeneratedSource: "class Widget {\n\tvoid B() {}\n}\n"},
	}

	r1, err := m.Merge(context.Background(), completed)
	require.NoError(t, err)
	r2, err := m.Merge(context.Background(), completed)
	require.NoError(t, err)
	assert.Equal(t, ContentHash(r1.Sources), ContentHash(r2.Sources))
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}
