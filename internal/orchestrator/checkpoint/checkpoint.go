// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpoint snapshots an in-progress orchestration run to two
// sibling artifacts (a structured JSON record and a human-readable
// Markdown view) under a session directory, with atomic
// write-temp-fsync-rename semantics and "latest" pointer files
// (SPEC_FULL.md §4.9). Content hashing is grounded on the teacher's
// services/code_buddy/manifest/hasher.go SHA-256 streaming hasher.
package checkpoint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/internal/orchestrator/taskgraph"
	"github.com/codeforge/orchestrator/pkg/logging"
	"github.com/codeforge/orchestrator/pkg/metrics"
)

const schemaVersion = "1"

// Writer persists Checkpoint snapshots to a session directory. A
// single Writer instance must be used for one session at a time: the
// singleflight group collapses concurrent identical-content triggers
// (a completion-N checkpoint racing a timer-triggered one) into one
// write, matching SPEC_FULL.md §11's singleflight wiring.
type Writer struct {
	Dir     string
	Logger  *logging.Logger
	Metrics *metrics.OrchestratorMetrics

	group singleflight.Group
	seq   int
}

// New returns a Writer rooted at dir, creating it if necessary.
func New(dir string, logger *logging.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Writer{Dir: dir, Logger: logger, Metrics: metrics.Default()}, nil
}

// Build assembles a Checkpoint from the current graph state.
func Build(sessionID, request string, g *taskgraph.Graph, completed map[string]model.CompletedTask, status model.ExecutionStatus) model.Checkpoint {
	var pending, failed, skipped []string
	all := g.All()
	for _, t := range all {
		switch t.Status {
		case model.StatusFailed:
			failed = append(failed, t.ID)
		case model.StatusSkipped:
			skipped = append(skipped, t.ID)
		case model.StatusValidated:
		default:
			pending = append(pending, t.ID)
		}
	}
	sort.Strings(pending)
	sort.Strings(failed)
	sort.Strings(skipped)

	var completedList []model.CompletedTask
	for _, id := range sortedKeys(completed) {
		completedList = append(completedList, completed[id])
	}

	cp := model.Checkpoint{
		SessionID:  sessionID,
		Timestamp:  time.Now(),
		Version:    schemaVersion,
		Request:    request,
		TotalTasks: len(all),
		Completed:  completedList,
		PendingIDs: pending,
		FailedIDs:  failed,
		SkippedIDs: skipped,
		Adjacency:  g.Adjacency(),
		Status:     status,
	}
	cp.Checksum = Checksum(cp)
	return cp
}

func sortedKeys(m map[string]model.CompletedTask) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Checksum computes the SHA-256 of cp's canonical JSON encoding with
// the Checksum field cleared, so a checkpoint can validate its own
// integrity on load.
func Checksum(cp model.Checkpoint) string {
	cp.Checksum = ""
	data, err := json.Marshal(cp)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Write persists cp as a new timestamped/sequenced artifact pair and
// updates the latest.data/latest.view pointers. A write failure is
// logged and suppressed: per SPEC_FULL.md §4.9 a checkpoint failure is
// never fatal to the run.
func (w *Writer) Write(cp model.Checkpoint) {
	key := cp.Checksum
	start := time.Now()
	_, _, _ = w.group.Do(key, func() (interface{}, error) {
		if err := w.writeOnce(cp); err != nil {
			w.Logger.Error("checkpoint write failed", "session_id", cp.SessionID, "error", err)
			return nil, nil
		}
		if w.Metrics != nil {
			w.Metrics.CheckpointsTotal.Inc()
			w.Metrics.CheckpointLatency.Observe(time.Since(start).Seconds())
		}
		return nil, nil
	})
}

func (w *Writer) writeOnce(cp model.Checkpoint) error {
	w.seq++
	base := fmt.Sprintf("checkpoint-%05d", w.seq)
	dataPath := filepath.Join(w.Dir, base+".json")
	viewPath := filepath.Join(w.Dir, base+".md")

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := atomicWrite(dataPath, data); err != nil {
		return fmt.Errorf("write data artifact: %w", err)
	}

	view := []byte(RenderView(cp))
	if err := atomicWrite(viewPath, view); err != nil {
		return fmt.Errorf("write view artifact: %w", err)
	}

	if err := atomicWrite(filepath.Join(w.Dir, "latest.data"), data); err != nil {
		return fmt.Errorf("update latest.data pointer: %w", err)
	}
	if err := atomicWrite(filepath.Join(w.Dir, "latest.view"), view); err != nil {
		return fmt.Errorf("update latest.view pointer: %w", err)
	}
	w.Logger.Info("checkpoint written", "session_id", cp.SessionID, "path", dataPath, "completed", cp.CompletedCount())
	return nil
}

// atomicWrite writes data to a temp file in the same directory as
// path, fsyncs it, then renames it into place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-checkpoint-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Load reads the checkpoint referenced by the session directory's
// latest.data pointer, verifying the embedded checksum.
func Load(dir string) (model.Checkpoint, error) {
	path := filepath.Join(dir, "latest.data")
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("read latest checkpoint: %w", err)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return model.Checkpoint{}, fmt.Errorf("parse checkpoint: %w", err)
	}
	want := cp.Checksum
	if got := Checksum(cp); got != want {
		return model.Checkpoint{}, fmt.Errorf("checkpoint checksum mismatch: want %s got %s", want, got)
	}
	return cp, nil
}

// RenderView produces the human-readable Markdown view of cp.
func RenderView(cp model.Checkpoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Checkpoint %s\n\n", cp.SessionID)
	fmt.Fprintf(&b, "- Timestamp: %s\n", cp.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Status: %s\n", cp.Status)
	fmt.Fprintf(&b, "- Request: %s\n", cp.Request)
	fmt.Fprintf(&b, "- Total tasks: %d\n", cp.TotalTasks)
	fmt.Fprintf(&b, "- Completed: %d\n", cp.CompletedCount())
	fmt.Fprintf(&b, "- Pending: %d\n", len(cp.PendingIDs))
	fmt.Fprintf(&b, "- Failed: %d\n", len(cp.FailedIDs))
	fmt.Fprintf(&b, "- Skipped: %d\n\n", len(cp.SkippedIDs))

	if len(cp.Completed) > 0 {
		b.WriteString("## Completed Tasks\n\n")
		for _, c := range cp.Completed {
			fmt.Fprintf(&b, "### %s\n", c.Task.ID)
			if c.Summary != nil {
				fmt.Fprintf(&b, "%s\n", c.Summary.Purpose)
			}
			fmt.Fprintf(&b, "- attempts: %d\n", c.AttemptCount)
			fmt.Fprintf(&b, "- completed_at: %s\n\n", c.CompletedAt.Format(time.RFC3339))
		}
	}
	if len(cp.FailedIDs) > 0 {
		fmt.Fprintf(&b, "## Failed\n\n%s\n\n", strings.Join(cp.FailedIDs, ", "))
	}
	if len(cp.SkippedIDs) > 0 {
		fmt.Fprintf(&b, "## Skipped\n\n%s\n\n", strings.Join(cp.SkippedIDs, ", "))
	}
	return b.String()
}

// Equal reports whether two checkpoints carry the same checksum,
// i.e. the same logical content regardless of timestamp jitter in
// the Timestamp field, which callers typically zero before comparing.
func Equal(a, b model.Checkpoint) bool {
	a.Timestamp, b.Timestamp = time.Time{}, time.Time{}
	return bytes.Equal([]byte(Checksum(a)), []byte(Checksum(b)))
}
