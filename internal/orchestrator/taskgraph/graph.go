// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package taskgraph stores tasks and their dependency edges, and answers
// topological-order, readiness, descendant, and critical-path queries.
//
// # Description
//
// Unlike a fixed pipeline DAG built once and executed, a Graph here is
// mutated throughout a run: the splitter rewrites subsets of it before
// scheduling begins, and the scheduler advances task status as workers
// finish. Status transitions are serialized through a single mutex;
// readers (ReadySet, TopologicalOrder, Descendants, CriticalPath) take
// a read lock and observe a consistent snapshot, per SPEC_FULL.md §5.
//
// # Thread Safety
//
// Graph is safe for concurrent use.
package taskgraph

import (
	"sort"
	"sync"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

// Graph is a mapping of task ID to Task plus the forward-edge set
// (dependency -> dependents), per SPEC_FULL.md §3.
type Graph struct {
	mu sync.RWMutex

	tasks map[string]*model.Task
	// dependents maps a task ID to the IDs of tasks that depend on it.
	dependents map[string][]string
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		tasks:      make(map[string]*model.Task),
		dependents: make(map[string][]string),
	}
}

// Add inserts a task, rejecting duplicate IDs and edges to unknown
// dependency IDs (a phantom dependency is fatal at plan time).
func (g *Graph) Add(t *model.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[t.ID]; exists {
		return ErrDuplicateTask
	}
	for _, dep := range t.Dependencies {
		if _, ok := g.tasks[dep]; !ok {
			return &PhantomDependencyError{TaskID: t.ID, DependencyID: dep}
		}
	}
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	g.tasks[t.ID] = t
	for _, dep := range t.Dependencies {
		g.dependents[dep] = append(g.dependents[dep], t.ID)
	}
	return nil
}

// AddDeferred inserts a task without validating its dependency IDs
// against the current task set. The splitter uses this while building
// a replacement sub-graph whose internal edges reference sibling
// sub-tasks not yet added; callers MUST call ValidateEdges afterward.
func (g *Graph) AddDeferred(t *model.Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	g.tasks[t.ID] = t
}

// ValidateEdges rebuilds the dependents index and reports the first
// phantom dependency found across all tasks.
func (g *Graph) ValidateEdges() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dependents = make(map[string][]string)
	for id, t := range g.tasks {
		for _, dep := range t.Dependencies {
			if _, ok := g.tasks[dep]; !ok {
				return &PhantomDependencyError{TaskID: id, DependencyID: dep}
			}
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	return nil
}

// Get returns the task with the given ID.
func (g *Graph) Get(id string) (*model.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	return t, ok
}

// Remove deletes a task and its edges. Used by the splitter to drop a
// task it replaces with sub-tasks, and to undo a rejected replacement.
func (g *Graph) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return
	}
	for _, dep := range t.Dependencies {
		g.dependents[dep] = removeString(g.dependents[dep], id)
	}
	delete(g.dependents, id)
	delete(g.tasks, id)
}

func removeString(ss []string, s string) []string {
	out := ss[:0]
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// SetStatus transitions a task's status under the write lock.
func (g *Graph) SetStatus(id string, status model.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tasks[id]; ok {
		t.Status = status
	}
}

// Dependents returns the IDs of tasks that directly depend on id.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := append([]string(nil), g.dependents[id]...)
	sort.Strings(out)
	return out
}

// Size returns the number of tasks in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// All returns a snapshot slice of every task, ordered by ID.
func (g *Graph) All() []*model.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*model.Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TopologicalOrder runs Kahn's algorithm with a deterministic lexical
// tie-break on task ID, so checkpoints produced from the same graph are
// stable across runs. Returns ErrCycleDetected (wrapped in a CycleError)
// when tasks remain with no zero in-degree candidate.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := make(map[string]int, len(g.tasks))
	for id, t := range g.tasks {
		inDegree[id] = len(t.Dependencies)
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.tasks))
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, dep := range g.dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(g.tasks) {
		remaining := make([]string, 0, len(g.tasks)-len(order))
		seen := make(map[string]bool, len(order))
		for _, id := range order {
			seen[id] = true
		}
		for id := range g.tasks {
			if !seen[id] {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}
	return order, nil
}

// ReadySet returns the tasks in Pending status whose dependencies are
// all Validated, ordered by ID.
func (g *Graph) ReadySet() []*model.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*model.Task
	for _, t := range g.tasks {
		if t.Status != model.StatusPending {
			continue
		}
		if g.depsValidatedLocked(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *Graph) depsValidatedLocked(t *model.Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := g.tasks[dep]
		if !ok || d.Status != model.StatusValidated {
			return false
		}
	}
	return true
}

// Descendants returns every task transitively reachable by following
// dependent edges from id (used for failure propagation).
func (g *Graph) Descendants(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]bool)
	var stack []string
	stack = append(stack, g.dependents[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		stack = append(stack, g.dependents[cur]...)
	}
	out := make([]string, 0, len(visited))
	for id := range visited {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CriticalPath returns, for every task, the length (in node count) of
// its longest dependency chain including itself. The scheduler uses
// this to prioritize dispatch: longer critical-path distance first.
func (g *Graph) CriticalPath() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	memo := make(map[string]int, len(g.tasks))
	var depth func(id string, stack map[string]bool) int
	depth = func(id string, stack map[string]bool) int {
		if v, ok := memo[id]; ok {
			return v
		}
		t, ok := g.tasks[id]
		if !ok || stack[id] {
			return 1
		}
		stack[id] = true
		best := 0
		for _, dep := range t.Dependencies {
			if d := depth(dep, stack); d > best {
				best = d
			}
		}
		delete(stack, id)
		memo[id] = best + 1
		return memo[id]
	}

	out := make(map[string]int, len(g.tasks))
	for id := range g.tasks {
		out[id] = depth(id, make(map[string]bool))
	}
	return out
}

// Adjacency returns a snapshot of the dependency graph as task ID ->
// dependency IDs, for embedding in a Checkpoint.
func (g *Graph) Adjacency() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string][]string, len(g.tasks))
	for id, t := range g.tasks {
		out[id] = append([]string(nil), t.Dependencies...)
	}
	return out
}
