// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge/orchestrator/internal/orchestrator/checkpoint"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/internal/orchestrator/taskgraph"
)

func TestRunCommand_NoBackendReturnsErrNoBackend(t *testing.T) {
	err := runRunCommand(runCmd, []string{"build a widget"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestInspectCommand_RendersLoadedCheckpoint(t *testing.T) {
	dir := t.TempDir()
	w, err := checkpoint.New(dir, nil)
	require.NoError(t, err)

	g := taskgraph.New()
	require.NoError(t, g.Add(&model.Task{ID: "t1"}))
	g.SetStatus("t1", model.StatusValidated)
	cp := checkpoint.Build("sess-1", "a request", g, map[string]model.CompletedTask{
		"t1": {Task: model.Task{ID: "t1"}},
	}, model.ExecutionComplete)
	w.Write(cp)

	flagCheckpointDir = dir
	require.NoError(t, runInspectCommand(inspectCmd, nil))
}

func TestResumeCommand_ReportsPendingCountForPartialRun(t *testing.T) {
	dir := t.TempDir()
	w, err := checkpoint.New(dir, nil)
	require.NoError(t, err)

	g := taskgraph.New()
	require.NoError(t, g.Add(&model.Task{ID: "t1"}))
	cp := checkpoint.Build("sess-2", "a request", g, nil, model.ExecutionPartial)
	w.Write(cp)

	flagCheckpointDir = dir
	require.NoError(t, runResumeCommand(resumeCmd, nil))
}
