// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scheduler drives the task graph to completion with a bounded
// worker pool: dispatch ready tasks in critical-path-distance order,
// apply the configured failure policy on each completion, and emit
// checkpoints (SPEC_FULL.md §4.7). Grounded on the teacher's DAG
// executor test harness (services/code_buddy/dag/executor_test.go),
// which exercises the same wave-dispatch/cancellation shape for a
// fixed pipeline; generalized here to a dynamically-sized,
// splitter-mutated graph.
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeforge/orchestrator/internal/orchestrator/checkpoint"
	"github.com/codeforge/orchestrator/internal/orchestrator/executor"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/internal/orchestrator/taskgraph"
	"github.com/codeforge/orchestrator/pkg/logging"
)

// CancelGracePeriod is how long a running task is given to finish its
// in-flight external call after the scheduler's context is cancelled,
// before that call is itself hard-cancelled (SPEC_FULL.md §5).
const CancelGracePeriod = 5 * time.Second

// DeadlockError reports that the ready set emptied with tasks still
// pending and no worker active: those tasks are blocked, never by a
// cycle (the TaskGraph rejects cycles at construction), but by a prior
// failure under the `block` policy.
type DeadlockError struct {
	Blocked []string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("scheduler deadlock: %d task(s) blocked: %v", len(e.Blocked), e.Blocked)
}

// Scheduler runs every task in Graph to a terminal state.
type Scheduler struct {
	Graph         *taskgraph.Graph
	Executor      *executor.Executor
	Checkpointer  *checkpoint.Writer
	SessionID     string
	Request       string
	FailurePolicy model.FailurePolicy
	WorkerCount   int
	CheckpointEveryN int
	Logger        *logging.Logger

	mu        sync.Mutex
	completed map[string]model.CompletedTask
	sinceLastCheckpoint int
}

// New returns a Scheduler with the spec's defaults: worker count is
// runtime.NumCPU() (minimum 2), failure policy skip-failed, and a
// checkpoint emitted after every completion.
func New(g *taskgraph.Graph, exec *executor.Executor, ckpt *checkpoint.Writer, sessionID, request string) *Scheduler {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	return &Scheduler{
		Graph:            g,
		Executor:         exec,
		Checkpointer:     ckpt,
		SessionID:        sessionID,
		Request:          request,
		FailurePolicy:    model.FailurePolicySkipFailed,
		WorkerCount:      workers,
		CheckpointEveryN: 1,
		Logger:           logging.Default(),
		completed:        make(map[string]model.CompletedTask),
	}
}

// Run dispatches tasks until the graph reaches a terminal state for
// every task, or a fail-fast policy aborts the run, or ctx is
// cancelled. It returns the final checkpoint snapshot.
//
// The dispatch loop blocks on wake between rounds: every finished task
// sends a non-blocking signal after updating the graph, which is the
// only event that can grow the ready set, so there is nothing to poll.
func (s *Scheduler) Run(ctx context.Context) (model.Checkpoint, error) {
	sem := make(chan struct{}, s.WorkerCount)
	wake := make(chan struct{}, 1)
	var active sync.WaitGroup
	var activeCount atomicCounter

	eg, egCtx := errgroup.WithContext(ctx)

	for {
		ready := s.orderByCriticalPath(s.Graph.ReadySet())

		for len(ready) > 0 {
			select {
			case sem <- struct{}{}:
			default:
				ready = nil
				continue
			}
			task := ready[0]
			ready = ready[1:]

			s.Graph.SetStatus(task.ID, model.StatusRunning)
			activeCount.add(1)
			active.Add(1)
			eg.Go(func() error {
				defer func() {
					<-sem
					activeCount.add(-1)
					active.Done()
					select {
					case wake <- struct{}{}:
					default:
					}
				}()
				return s.runOne(egCtx, task)
			})
		}

		if activeCount.load() == 0 {
			if s.allTerminal() {
				break
			}
			if egCtx.Err() != nil {
				goto done
			}
			blocked := s.blockedTaskIDs()
			if len(blocked) > 0 {
				active.Wait()
				return s.finalCheckpoint(model.ExecutionPartial), &DeadlockError{Blocked: blocked}
			}
			break
		}

		select {
		case <-wake:
		case <-egCtx.Done():
			active.Wait()
			goto done
		}
	}

done:
	err := eg.Wait()
	status := model.ExecutionComplete
	if err != nil || !s.allValidatedOrSkipped() {
		status = model.ExecutionPartial
	}
	cp := s.finalCheckpoint(status)
	return cp, err
}

// atomicCounter is a tiny mutex-guarded counter; the scheduler's
// dispatch loop checks it far less often than per-task, so a mutex is
// simpler than sync/atomic here and just as correct.
type atomicCounter struct {
	mu  sync.Mutex
	val int
}

func (c *atomicCounter) add(delta int) {
	c.mu.Lock()
	c.val += delta
	c.mu.Unlock()
}

func (c *atomicCounter) load() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val
}

func (s *Scheduler) runOne(ctx context.Context, task *model.Task) error {
	runCtx := ctx
	var cancel context.CancelFunc
	if ctx.Err() == nil {
		runCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Executor.Run(runCtx, task)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		select {
		case err = <-done:
		case <-time.After(CancelGracePeriod):
			if cancel != nil {
				cancel()
			}
			err = <-done
		}
	}

	s.onTaskFinished(task)
	if err == nil && task.Status == model.StatusFailed && s.FailurePolicy == model.FailurePolicyFailFast {
		err = fmt.Errorf("task %s failed under fail-fast policy", task.ID)
	}
	return err
}

func (s *Scheduler) onTaskFinished(task *model.Task) {
	s.Graph.SetStatus(task.ID, task.Status)

	if task.Status == model.StatusValidated {
		s.mu.Lock()
		s.completed[task.ID] = model.CompletedTask{
			Task:            *task.Clone(),
			GeneratedSource: task.GeneratedSource,
			Summary:         task.Summary,
			AttemptCount:    task.AttemptCount,
			CompletedAt:     time.Now(),
		}
		s.mu.Unlock()
	}

	if task.Status == model.StatusFailed {
		s.applyFailurePolicy(task)
	}

	s.mu.Lock()
	s.sinceLastCheckpoint++
	shouldCheckpoint := s.sinceLastCheckpoint >= s.CheckpointEveryN
	if shouldCheckpoint {
		s.sinceLastCheckpoint = 0
	}
	s.mu.Unlock()

	if shouldCheckpoint && s.Checkpointer != nil {
		s.Checkpointer.Write(s.snapshot(model.ExecutionRunning))
	}
}

func (s *Scheduler) applyFailurePolicy(task *model.Task) {
	switch s.FailurePolicy {
	case model.FailurePolicyBlock:
		// Dependents stay pending; no action.
	case model.FailurePolicySkipFailed, model.FailurePolicySkipMissing:
		for _, id := range s.Graph.Descendants(task.ID) {
			s.Graph.SetStatus(id, model.StatusSkipped)
		}
	case model.FailurePolicyFailFast:
		// The caller's ctx cancellation (triggered by errgroup on the
		// returned error) stops further dispatch; nothing else to do here.
	}
}

func (s *Scheduler) orderByCriticalPath(tasks []*model.Task) []*model.Task {
	distances := s.Graph.CriticalPath()
	out := append([]*model.Task(nil), tasks...)
	sort.Slice(out, func(i, j int) bool {
		di, dj := distances[out[i].ID], distances[out[j].ID]
		if di != dj {
			return di > dj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Scheduler) allTerminal() bool {
	for _, t := range s.Graph.All() {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func (s *Scheduler) allValidatedOrSkipped() bool {
	for _, t := range s.Graph.All() {
		if t.Status != model.StatusValidated && t.Status != model.StatusSkipped {
			return false
		}
	}
	return true
}

// blockedTaskIDs returns the pending tasks whose dependencies will
// never validate under the current failure policy.
func (s *Scheduler) blockedTaskIDs() []string {
	var blocked []string
	for _, t := range s.Graph.All() {
		if t.Status == model.StatusPending {
			blocked = append(blocked, t.ID)
		}
	}
	sort.Strings(blocked)
	return blocked
}

func (s *Scheduler) snapshot(status model.ExecutionStatus) model.Checkpoint {
	s.mu.Lock()
	completed := make(map[string]model.CompletedTask, len(s.completed))
	for k, v := range s.completed {
		completed[k] = v
	}
	s.mu.Unlock()
	return checkpoint.Build(s.SessionID, s.Request, s.Graph, completed, status)
}

func (s *Scheduler) finalCheckpoint(status model.ExecutionStatus) model.Checkpoint {
	cp := s.snapshot(status)
	if s.Checkpointer != nil {
		s.Checkpointer.Write(cp)
	}
	return cp
}
