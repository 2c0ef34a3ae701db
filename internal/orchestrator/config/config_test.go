// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile_ParsesEveryField(t *testing.T) {
	path := writeConfig(t, `
project_name: widgets
failure_policy: fail-fast
max_attempts: 5
worker_count: 4
max_lines_per_task: 200
checkpoint_every_n: 10
enable_contract_first: true
enable_complexity_analysis: true
llm_rate_limit_per_second: 2.5
index_directory: /var/lib/codeforge/index
`)

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "widgets", f.ProjectName)
	assert.Equal(t, "fail-fast", f.FailurePolicy)
	assert.Equal(t, 5, f.MaxAttempts)
	assert.True(t, f.EnableContractFirst)
	assert.Equal(t, 2.5, f.LLMRateLimitPerSecond)
}

func TestLoadFile_MissingFileReturnsError(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFile_OversizeFileRejected(t *testing.T) {
	huge := make([]byte, MaxFileSize+1)
	path := writeConfig(t, string(huge))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestApplyDefaults_OnlyFillsZeroFields(t *testing.T) {
	f := File{MaxAttempts: 7, WorkerCount: 3, IndexDirectory: "/idx"}
	opts := model.Options{MaxAttempts: 2} // explicit CLI value

	merged := f.ApplyDefaults(opts)
	assert.Equal(t, 2, merged.MaxAttempts, "explicit opts value must win over the file")
	assert.Equal(t, 3, merged.WorkerCount, "zero-valued field falls back to the file")
	assert.Equal(t, "/idx", merged.IndexDirectory)
}
