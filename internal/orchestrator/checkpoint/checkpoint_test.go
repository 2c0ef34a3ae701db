// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/internal/orchestrator/taskgraph"
	"github.com/codeforge/orchestrator/pkg/logging"
)

func TestCheckpoint_RoundTripThroughLatestPointer(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, logging.Default())
	require.NoError(t, err)

	g := taskgraph.New()
	require.NoError(t, g.Add(&model.Task{ID: "t1", Status: model.StatusValidated}))
	require.NoError(t, g.Add(&model.Task{ID: "t2", Dependencies: []string{"t1"}}))

	completed := map[string]model.CompletedTask{
		"t1": {Task: model.Task{ID: "t1"}, GeneratedSource: "class Foo {}", AttemptCount: 1},
	}
	cp := Build("session-1", "build a widget", g, completed, model.ExecutionRunning)
	w.Write(cp)

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cp.SessionID, loaded.SessionID)
	assert.Equal(t, cp.Checksum, loaded.Checksum)
	assert.Len(t, loaded.Completed, 1)
	assert.Contains(t, loaded.PendingIDs, "t2")

	assert.FileExists(t, filepath.Join(dir, "latest.data"))
	assert.FileExists(t, filepath.Join(dir, "latest.view"))
}

func TestCheckpoint_ChecksumDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, logging.Default())
	require.NoError(t, err)

	g := taskgraph.New()
	require.NoError(t, g.Add(&model.Task{ID: "t1"}))
	cp := Build("session-2", "req", g, nil, model.ExecutionRunning)
	w.Write(cp)

	loaded, err := Load(dir)
	require.NoError(t, err)
	loaded.Request = "tampered"
	assert.NotEqual(t, Checksum(loaded), loaded.Checksum)
}

func TestCheckpoint_EqualIgnoresTimestampJitter(t *testing.T) {
	g := taskgraph.New()
	require.NoError(t, g.Add(&model.Task{ID: "t1"}))

	cp1 := Build("s", "req", g, nil, model.ExecutionRunning)
	cp2 := Build("s", "req", g, nil, model.ExecutionRunning)
	assert.True(t, Equal(cp1, cp2))
}

func TestCheckpoint_RenderViewContainsSummary(t *testing.T) {
	g := taskgraph.New()
	require.NoError(t, g.Add(&model.Task{ID: "t1"}))
	completed := map[string]model.CompletedTask{
		"t1": {Task: model.Task{ID: "t1"}, Summary: &model.Summary{Purpose: "implements a widget"}},
	}
	cp := Build("s", "req", g, completed, model.ExecutionComplete)
	view := RenderView(cp)
	assert.Contains(t, view, "implements a widget")
	assert.Contains(t, view, "# Checkpoint s")
}
