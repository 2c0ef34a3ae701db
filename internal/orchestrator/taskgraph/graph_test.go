// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package taskgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

func newTask(id string, deps ...string) *model.Task {
	return &model.Task{ID: id, Dependencies: deps}
}

func TestGraph_AddRejectsPhantomDependency(t *testing.T) {
	g := New()
	err := g.Add(newTask("b", "a"))
	require.Error(t, err)
	var phantom *PhantomDependencyError
	require.ErrorAs(t, err, &phantom)
	assert.Equal(t, "a", phantom.DependencyID)
}

func TestGraph_AddRejectsDuplicate(t *testing.T) {
	g := New()
	require.NoError(t, g.Add(newTask("a")))
	err := g.Add(newTask("a"))
	require.ErrorIs(t, err, ErrDuplicateTask)
}

func TestGraph_TopologicalOrder_DiamondIsStable(t *testing.T) {
	g := New()
	require.NoError(t, g.Add(newTask("a")))
	require.NoError(t, g.Add(newTask("b", "a")))
	require.NoError(t, g.Add(newTask("c", "a")))
	require.NoError(t, g.Add(newTask("d", "b", "c")))

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestGraph_TopologicalOrder_DetectsCycle(t *testing.T) {
	g := New()
	require.NoError(t, g.Add(newTask("a")))
	require.NoError(t, g.Add(newTask("b", "a")))
	// Introduce a cycle by hand: b now also gates a.
	ta, _ := g.Get("a")
	ta.Dependencies = append(ta.Dependencies, "b")
	require.NoError(t, g.ValidateEdges())

	_, err := g.TopologicalOrder()
	require.ErrorIs(t, err, ErrCycleDetected)
}

func TestGraph_ReadySet_EmptyDependencyListAlwaysFirst(t *testing.T) {
	g := New()
	require.NoError(t, g.Add(newTask("a")))
	require.NoError(t, g.Add(newTask("b", "a")))

	ready := g.ReadySet()
	require.Len(t, ready, 1)
	assert.Equal(t, "a", ready[0].ID)
}

func TestGraph_ReadySet_DiamondBottomWaitsForBothMiddles(t *testing.T) {
	g := New()
	require.NoError(t, g.Add(newTask("a")))
	require.NoError(t, g.Add(newTask("b", "a")))
	require.NoError(t, g.Add(newTask("c", "a")))
	require.NoError(t, g.Add(newTask("d", "b", "c")))

	g.SetStatus("a", model.StatusValidated)
	g.SetStatus("b", model.StatusValidated)
	// c still pending: d must not be ready yet.
	ready := g.ReadySet()
	ids := map[string]bool{}
	for _, t := range ready {
		ids[t.ID] = true
	}
	assert.False(t, ids["d"])

	g.SetStatus("c", model.StatusValidated)
	ready = g.ReadySet()
	require.Len(t, ready, 1)
	assert.Equal(t, "d", ready[0].ID)
}

func TestGraph_Descendants(t *testing.T) {
	g := New()
	require.NoError(t, g.Add(newTask("a")))
	require.NoError(t, g.Add(newTask("b", "a")))
	require.NoError(t, g.Add(newTask("c", "b")))

	desc := g.Descendants("a")
	assert.Equal(t, []string{"b", "c"}, desc)
}

func TestGraph_CriticalPath_DiamondLengthIsThree(t *testing.T) {
	g := New()
	require.NoError(t, g.Add(newTask("a")))
	require.NoError(t, g.Add(newTask("b", "a")))
	require.NoError(t, g.Add(newTask("c", "a")))
	require.NoError(t, g.Add(newTask("d", "b", "c")))

	cp := g.CriticalPath()
	assert.Equal(t, 3, cp["d"])
	assert.Equal(t, 1, cp["a"])
}
