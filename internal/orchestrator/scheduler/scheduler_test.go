// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge/orchestrator/internal/orchestrator/checkpoint"
	"github.com/codeforge/orchestrator/internal/orchestrator/contract"
	"github.com/codeforge/orchestrator/internal/orchestrator/executor"
	"github.com/codeforge/orchestrator/internal/orchestrator/external"
	"github.com/codeforge/orchestrator/internal/orchestrator/external/externaltest"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/internal/orchestrator/symbolregistry"
	"github.com/codeforge/orchestrator/internal/orchestrator/taskgraph"
)

func newTestExecutor(llm *externaltest.LLM, validator *externaltest.Validator) *executor.Executor {
	return executor.New(llm, validator, &externaltest.Clarifier{}, contract.New(), symbolregistry.New(), taskgraph.New())
}

// diamond builds t1 -> {t2, t3} -> t4.
func diamond(t *testing.T) *taskgraph.Graph {
	t.Helper()
	g := taskgraph.New()
	require.NoError(t, g.Add(&model.Task{ID: "t1"}))
	require.NoError(t, g.Add(&model.Task{ID: "t2", Dependencies: []string{"t1"}}))
	require.NoError(t, g.Add(&model.Task{ID: "t3", Dependencies: []string{"t1"}}))
	require.NoError(t, g.Add(&model.Task{ID: "t4", Dependencies: []string{"t2", "t3"}}))
	return g
}

func TestScheduler_DiamondGraphCompletesAllTasks(t *testing.T) {
	g := diamond(t)
	exec := newTestExecutor(&externaltest.LLM{}, &externaltest.Validator{})
	s := New(g, exec, nil, "session-1", "build a widget")

	cp, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionComplete, cp.Status)

	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		task, ok := g.Get(id)
		require.True(t, ok)
		assert.Equal(t, model.StatusValidated, task.Status, "task %s", id)
	}
}

func alwaysFailingValidator() *externaltest.Validator {
	return &externaltest.Validator{
		ValidateFn: func(source string) external.ValidationResult {
			return external.ValidationResult{Errors: []model.Diagnostic{
				{Severity: model.SeverityError, Category: model.CategoryOther, Message: "unrecoverable"},
			}}
		},
	}
}

func TestScheduler_SkipFailedPropagatesToDescendants(t *testing.T) {
	g := diamond(t)
	exec := newTestExecutor(&externaltest.LLM{}, alwaysFailingValidator())
	s := New(g, exec, nil, "session-2", "build a widget")
	s.FailurePolicy = model.FailurePolicySkipFailed

	cp, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionPartial, cp.Status)

	t1, _ := g.Get("t1")
	assert.Equal(t, model.StatusFailed, t1.Status)
	for _, id := range []string{"t2", "t3", "t4"} {
		task, ok := g.Get(id)
		require.True(t, ok)
		assert.Equal(t, model.StatusSkipped, task.Status, "task %s", id)
	}
}

func TestScheduler_BlockPolicyLeavesDependentsPendingAndReportsDeadlock(t *testing.T) {
	g := diamond(t)
	exec := newTestExecutor(&externaltest.LLM{}, alwaysFailingValidator())
	s := New(g, exec, nil, "session-3", "build a widget")
	s.FailurePolicy = model.FailurePolicyBlock

	cp, err := s.Run(context.Background())
	require.Error(t, err)
	var deadlock *DeadlockError
	require.ErrorAs(t, err, &deadlock)
	assert.Equal(t, []string{"t2", "t3", "t4"}, deadlock.Blocked)
	assert.Equal(t, model.ExecutionPartial, cp.Status)

	t1, _ := g.Get("t1")
	assert.Equal(t, model.StatusFailed, t1.Status)
	t2, _ := g.Get("t2")
	assert.Equal(t, model.StatusPending, t2.Status)
}

func TestScheduler_FailFastAbortsRemainingWork(t *testing.T) {
	g := diamond(t)
	exec := newTestExecutor(&externaltest.LLM{}, alwaysFailingValidator())
	s := New(g, exec, nil, "session-4", "build a widget")
	s.FailurePolicy = model.FailurePolicyFailFast
	s.WorkerCount = 1

	_, err := s.Run(context.Background())
	require.Error(t, err)

	t4, _ := g.Get("t4")
	assert.NotEqual(t, model.StatusValidated, t4.Status)
}

func TestScheduler_CheckpointEmittedAtConfiguredThreshold(t *testing.T) {
	dir := t.TempDir()
	w, err := checkpoint.New(dir, nil)
	require.NoError(t, err)

	g := diamond(t)
	exec := newTestExecutor(&externaltest.LLM{}, &externaltest.Validator{})
	s := New(g, exec, w, "session-5", "build a widget")
	s.CheckpointEveryN = 2

	_, err = s.Run(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "latest.data"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var jsonCount int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			jsonCount++
		}
	}
	assert.GreaterOrEqual(t, jsonCount, 1)
}
