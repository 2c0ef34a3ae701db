// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package externaltest provides deterministic fakes for LlmClient,
// Validator, and Clarifier so scheduler/executor behavior can be tested
// without a real model or compiler backend, mirroring the teacher's
// TestNode fakes in services/code_buddy/dag/executor_test.go.
package externaltest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/codeforge/orchestrator/internal/orchestrator/external"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

// LLM is a scriptable fake external.LlmClient.
type LLM struct {
	mu sync.Mutex

	// GenerateFn, if set, is called instead of the default behavior.
	GenerateFn   func(task *model.Task) (string, error)
	RegenerateFn func(task *model.Task, rctx external.RegenerationContext) (string, error)
	DecomposeFn  func(request string) (external.DecomposeResult, error)
	SplitFn      func(task *model.Task, maxLines int) ([]external.DecomposedTask, error)

	generateCalls   atomic.Int64
	regenerateCalls atomic.Int64
}

func (f *LLM) GenerateCalls() int64   { return f.generateCalls.Load() }
func (f *LLM) RegenerateCalls() int64 { return f.regenerateCalls.Load() }

func (f *LLM) Decompose(ctx context.Context, request, _ string) (external.DecomposeResult, error) {
	if f.DecomposeFn != nil {
		return f.DecomposeFn(request)
	}
	return external.DecomposeResult{Description: request}, nil
}

func (f *LLM) Generate(ctx context.Context, task *model.Task, _ external.GenerationContext) (string, error) {
	f.generateCalls.Add(1)
	if f.GenerateFn != nil {
		return f.GenerateFn(task)
	}
	return fmt.Sprintf("// generated for %s\n", task.ID), nil
}

func (f *LLM) Regenerate(ctx context.Context, task *model.Task, rctx external.RegenerationContext) (string, error) {
	f.regenerateCalls.Add(1)
	if f.RegenerateFn != nil {
		return f.RegenerateFn(task, rctx)
	}
	return fmt.Sprintf("// regenerated for %s attempt %d\n", task.ID, task.AttemptCount+1), nil
}

func (f *LLM) Summarize(ctx context.Context, task *model.Task, source string) (external.SummaryResult, error) {
	return external.SummaryResult{Purpose: "test task " + task.ID}, nil
}

func (f *LLM) DecomposeComplex(ctx context.Context, task *model.Task, maxLines int) ([]external.DecomposedTask, error) {
	if f.SplitFn != nil {
		return f.SplitFn(task, maxLines)
	}
	return nil, fmt.Errorf("DecomposeComplex not configured for %s", task.ID)
}

// Validator is a scriptable fake external.Validator.
type Validator struct {
	// ValidateFn, if set, is called instead of always-clean.
	ValidateFn func(source string) external.ValidationResult
}

func (v *Validator) Validate(ctx context.Context, source string, _ []string) (external.ValidationResult, error) {
	if v.ValidateFn != nil {
		return v.ValidateFn(source), nil
	}
	return external.ValidationResult{}, nil
}

// Clarifier is a scriptable fake external.Clarifier.
type Clarifier struct {
	Answer       string
	ReviewResult external.ReviewResult
}

func (c *Clarifier) Ask(ctx context.Context, _ string, _ string) (string, error) {
	return c.Answer, nil
}

func (c *Clarifier) Review(ctx context.Context, _ []*model.Task) (external.ReviewResult, error) {
	if c.ReviewResult == (external.ReviewResult{}) {
		return external.ReviewResult{Accept: true}, nil
	}
	return c.ReviewResult, nil
}
