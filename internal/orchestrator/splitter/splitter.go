// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package splitter scores each task's estimated size and, for tasks
// that exceed the configured line budget, asks the LLM to decompose
// them into sub-tasks that replace the original in the task graph
// (SPEC_FULL.md §4.4).
package splitter

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/codeforge/orchestrator/internal/orchestrator/external"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/internal/orchestrator/taskgraph"
)

// Score is the complexity estimate for one task.
type Score struct {
	TaskID            string
	Normalized        int // 0-100
	EstimatedLines    int
}

// Estimate scores t using a weighted sum of expected-type count,
// dependency count, and description-length heuristics, normalized to
// 0-100, alongside an estimated output line count.
func Estimate(t *model.Task) Score {
	typeWeight := len(t.ExpectedTypes) * 8
	depWeight := len(t.Dependencies) * 4
	descWeight := len(t.Description) / 10

	raw := typeWeight + depWeight + descWeight
	normalized := raw
	if normalized > 100 {
		normalized = 100
	}

	estimatedLines := 20 + len(t.ExpectedTypes)*60 + len(t.Dependencies)*10 + len(t.Description)/5

	return Score{TaskID: t.ID, Normalized: normalized, EstimatedLines: estimatedLines}
}

// Splitter decomposes oversize tasks before scheduling.
type Splitter struct {
	LLM          external.LlmClient
	MaxLinesPerTask int
	MaxAttempts     int
}

// New returns a Splitter with the spec's default of 300 lines per task
// and 3 decomposition attempts.
func New(llm external.LlmClient) *Splitter {
	return &Splitter{LLM: llm, MaxLinesPerTask: 300, MaxAttempts: 3}
}

// Run scores every task in g and replaces any task whose estimated
// line count exceeds MaxLinesPerTask with LLM-proposed sub-tasks,
// rerouting the original's dependents to the sink of the new
// sub-chain and the original's dependencies to its source. It re-runs
// cycle detection after every replacement. A task that fails
// decomposition three times in a row (itself cyclic, or the LLM call
// erroring) is kept whole and flagged OversizeWarning.
func (s *Splitter) Run(ctx context.Context, g *taskgraph.Graph) error {
	for _, t := range g.All() {
		sc := Estimate(t)
		if sc.EstimatedLines <= s.MaxLinesPerTask {
			continue
		}
		if err := s.splitOne(ctx, g, t); err != nil {
			return fmt.Errorf("splitting task %s: %w", t.ID, err)
		}
	}
	return nil
}

func (s *Splitter) splitOne(ctx context.Context, g *taskgraph.Graph, original *model.Task) error {
	dependents := g.Dependents(original.ID)
	originalDeps := append([]string(nil), original.Dependencies...)

	for attempt := 0; attempt < s.MaxAttempts; attempt++ {
		subTasks, err := s.LLM.DecomposeComplex(ctx, original, s.MaxLinesPerTask)
		if err != nil || len(subTasks) == 0 {
			continue
		}

		if err := checkLibraryConstraints(subTasks); err != nil {
			continue
		}

		g.Remove(original.ID)
		ids := make([]string, len(subTasks))
		for i, st := range subTasks {
			ids[i] = prefixedID(original.ID, st.ID)
		}

		for i, st := range subTasks {
			deps := append([]string(nil), remapDeps(st.DependencyIDs, original.ID, ids)...)
			if i == 0 {
				deps = append(deps, originalDeps...)
			}
			nt := &model.Task{
				ID:                ids[i],
				Description:       st.Description,
				Dependencies:      dedupeStrings(deps),
				ExpectedTypes:     st.ExpectedTypes,
				ConsumedTypes:     st.ConsumedTypes,
				RequiredLibraries: st.RequiredLibraries,
			}
			g.AddDeferred(nt)
		}

		sinkID := ids[len(ids)-1]
		for _, dep := range dependents {
			if dt, ok := g.Get(dep); ok {
				dt.Dependencies = replaceDep(dt.Dependencies, original.ID, sinkID)
			}
		}

		if err := g.ValidateEdges(); err == nil {
			if _, err := g.TopologicalOrder(); err == nil {
				return nil
			}
		}
		// Roll the rejected replacement back so the original stays whole.
		for _, id := range ids {
			g.Remove(id)
		}
		g.AddDeferred(original)
		for _, dep := range dependents {
			if dt, ok := g.Get(dep); ok {
				dt.Dependencies = replaceDep(dt.Dependencies, sinkID, original.ID)
			}
		}
		_ = g.ValidateEdges()
	}

	original.OversizeWarning = true
	return nil
}

func prefixedID(originalID, subID string) string {
	if strings.HasPrefix(subID, originalID+"/") {
		return subID
	}
	return originalID + "/" + subID
}

func remapDeps(deps []string, originalID string, siblingIDs []string) []string {
	out := make([]string, 0, len(deps))
	bySuffix := make(map[string]string, len(siblingIDs))
	for _, id := range siblingIDs {
		bySuffix[strings.TrimPrefix(id, originalID+"/")] = id
	}
	for _, d := range deps {
		if full, ok := bySuffix[d]; ok {
			out = append(out, full)
		} else {
			out = append(out, d)
		}
	}
	return out
}

func replaceDep(deps []string, from, to string) []string {
	out := make([]string, len(deps))
	for i, d := range deps {
		if d == from {
			out[i] = to
		} else {
			out[i] = d
		}
	}
	return out
}

func dedupeStrings(ss []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// checkLibraryConstraints compares "name@vX.Y.Z" required-library
// constraints across sub-tasks and returns an error if two sub-tasks
// request incompatible versions of the same library, per
// SPEC_FULL.md §11's semver wiring.
func checkLibraryConstraints(subTasks []external.DecomposedTask) error {
	seen := map[string]string{}
	for _, st := range subTasks {
		for _, lib := range st.RequiredLibraries {
			name, version, ok := splitLibraryConstraint(lib)
			if !ok {
				continue
			}
			if prior, exists := seen[name]; exists && prior != version {
				if semver.Compare(prior, version) != 0 {
					return fmt.Errorf("conflicting version constraints for %s: %s vs %s", name, prior, version)
				}
			}
			seen[name] = version
		}
	}
	return nil
}

func splitLibraryConstraint(lib string) (name, version string, ok bool) {
	idx := strings.Index(lib, "@")
	if idx < 0 {
		return "", "", false
	}
	name, version = lib[:idx], lib[idx+1:]
	if !semver.IsValid(version) {
		return "", "", false
	}
	return name, version, true
}
