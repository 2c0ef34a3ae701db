// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package splitter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge/orchestrator/internal/orchestrator/external"
	"github.com/codeforge/orchestrator/internal/orchestrator/external/externaltest"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/internal/orchestrator/taskgraph"
)

func oversizeTask(id string, deps ...string) *model.Task {
	return &model.Task{
		ID:            id,
		Description:   strings.Repeat("implement a very complex subsystem with many responsibilities. ", 20),
		Dependencies:  deps,
		ExpectedTypes: []string{"A", "B", "C", "D", "E"},
	}
}

func TestSplitter_EstimateFlagsOversizeDescription(t *testing.T) {
	small := &model.Task{ID: "t1", Description: "add a getter"}
	large := oversizeTask("t2")

	assert.Less(t, Estimate(small).EstimatedLines, Estimate(large).EstimatedLines)
	assert.Greater(t, Estimate(large).EstimatedLines, 300)
}

func TestSplitter_RunReplacesOversizeTaskWithSubTasks(t *testing.T) {
	g := taskgraph.New()
	root := &model.Task{ID: "root"}
	require.NoError(t, g.Add(root))

	big := oversizeTask("big", "root")
	require.NoError(t, g.Add(big))

	dependent := &model.Task{ID: "dependent", Dependencies: []string{"big"}}
	require.NoError(t, g.Add(dependent))

	llm := &externaltest.LLM{
		SplitFn: func(task *model.Task, maxLines int) ([]external.DecomposedTask, error) {
			return []external.DecomposedTask{
				{ID: "part1", Description: "part one"},
				{ID: "part2", Description: "part two", DependencyIDs: []string{"part1"}},
			}, nil
		},
	}

	s := New(llm)
	require.NoError(t, s.Run(context.Background(), g))

	_, stillPresent := g.Get("big")
	assert.False(t, stillPresent)

	part1, ok := g.Get("big/part1")
	require.True(t, ok)
	assert.Contains(t, part1.Dependencies, "root")

	part2, ok := g.Get("big/part2")
	require.True(t, ok)
	assert.Contains(t, part2.Dependencies, "big/part1")

	dep, ok := g.Get("dependent")
	require.True(t, ok)
	assert.Contains(t, dep.Dependencies, "big/part2")
	assert.NotContains(t, dep.Dependencies, "big")

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Len(t, order, 4)
}

func TestSplitter_OversizeWarningWhenDecompositionFailsThreeTimes(t *testing.T) {
	g := taskgraph.New()
	big := oversizeTask("big")
	require.NoError(t, g.Add(big))

	attempts := 0
	llm := &externaltest.LLM{
		SplitFn: func(task *model.Task, maxLines int) ([]external.DecomposedTask, error) {
			attempts++
			return nil, assert.AnError
		},
	}

	s := New(llm)
	require.NoError(t, s.Run(context.Background(), g))

	assert.Equal(t, 3, attempts)
	still, ok := g.Get("big")
	require.True(t, ok)
	assert.True(t, still.OversizeWarning)
}

func TestSplitter_ConflictingLibraryConstraintsRejectsAttempt(t *testing.T) {
	g := taskgraph.New()
	big := oversizeTask("big")
	require.NoError(t, g.Add(big))

	calls := 0
	llm := &externaltest.LLM{
		SplitFn: func(task *model.Task, maxLines int) ([]external.DecomposedTask, error) {
			calls++
			if calls < 3 {
				return []external.DecomposedTask{
					{ID: "p1", RequiredLibraries: []string{"newtonsoft.json@v13.0.1"}},
					{ID: "p2", RequiredLibraries: []string{"newtonsoft.json@v12.0.0"}},
				}, nil
			}
			return []external.DecomposedTask{{ID: "p1"}}, nil
		},
	}

	s := New(llm)
	require.NoError(t, s.Run(context.Background(), g))
	assert.Equal(t, 3, calls)

	_, stillOversize := g.Get("big")
	assert.False(t, stillOversize)
	_, ok := g.Get("big/p1")
	assert.True(t, ok)
}
