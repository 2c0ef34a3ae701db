// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import "time"

// ExecutionStatus is the coarse outcome recorded in a Checkpoint.
type ExecutionStatus string

const (
	ExecutionRunning  ExecutionStatus = "running"
	ExecutionComplete ExecutionStatus = "complete"
	ExecutionPartial  ExecutionStatus = "partial"
	ExecutionFatal    ExecutionStatus = "fatal"
)

// CompletedTask is one record in a Checkpoint's completed-task list.
type CompletedTask struct {
	Task            Task      `json:"task"`
	GeneratedSource string    `json:"generated_source"`
	Summary         *Summary  `json:"summary,omitempty"`
	AttemptCount    int       `json:"attempt_count"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Checkpoint is a point-in-time snapshot of an orchestration run,
// sufficient to resume scheduling or to present a human-readable report.
type Checkpoint struct {
	// SessionID identifies the run this checkpoint belongs to.
	SessionID string `json:"session_id"`

	// Timestamp is when the checkpoint was taken.
	Timestamp time.Time `json:"timestamp"`

	// Version is the checkpoint schema version.
	Version string `json:"version"`

	// Request is the original user request that started the run.
	Request string `json:"request"`

	// TotalTasks is the task count at checkpoint time.
	TotalTasks int `json:"total_tasks"`

	// Completed holds one record per task that reached Validated.
	Completed []CompletedTask `json:"completed"`

	// PendingIDs lists task IDs not yet Validated, Failed, or Skipped.
	PendingIDs []string `json:"pending_ids"`

	// FailedIDs lists task IDs in the Failed state.
	FailedIDs []string `json:"failed_ids"`

	// SkippedIDs lists task IDs in the Skipped state.
	SkippedIDs []string `json:"skipped_ids"`

	// Adjacency is the dependency graph: task ID -> dependency IDs.
	Adjacency map[string][]string `json:"adjacency"`

	// Status is the coarse execution status at checkpoint time.
	Status ExecutionStatus `json:"status"`

	// Checksum is the SHA-256 of the checkpoint's canonical JSON
	// encoding (computed with Checksum cleared), used to detect
	// corruption on load.
	Checksum string `json:"checksum"`
}

// CompletedCount returns the number of completed-task records.
func (c *Checkpoint) CompletedCount() int {
	return len(c.Completed)
}
