// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package external defines the three collaborators the orchestrator
// consumes but does not implement: LlmClient (decomposition, generation,
// summarization), Validator (compile/lint a fragment), and Clarifier
// (blocking human-in-the-loop prompts). Concrete backends (a specific
// model provider, a specific compiler) are out of scope per
// SPEC_FULL.md §1; this package is the contract surface only, following
// the teacher's interface-first pattern (context-first methods,
// structured request/response types, no streaming).
//
// # Thread Safety
//
// All implementations must be safe for concurrent use: the scheduler
// may call Generate/Validate for many tasks at once.
package external

import (
	"context"
	"time"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

// DecomposeResult is the output of LlmClient.Decompose.
type DecomposeResult struct {
	Description string           `json:"description"`
	Tasks       []DecomposedTask `json:"tasks"`
}

// DecomposedTask is one task as returned by decomposition, before it is
// inserted into the TaskGraph.
type DecomposedTask struct {
	ID                string
	Description       string
	DependencyIDs     []string
	ExpectedTypes     []string
	ConsumedTypes     map[string][]string
	RequiredLibraries []string
}

// GenerationContext is the opaque, structured document assembled by the
// TaskExecutor (contract signatures, known-types block, dependency
// signatures, guardrails) and handed to the LLM unmodified.
type GenerationContext struct {
	ContractSignatures []string
	KnownTypesBlock    string
	DependencySignatures map[string][]string
	Guardrails         []string
}

// RegenerationContext extends GenerationContext with the failed prior
// attempt and its diagnostics, for the error-feedback re-prompt.
type RegenerationContext struct {
	GenerationContext
	PriorSource        string
	Diagnostics        []model.Diagnostic
	Suggestions        []string
}

// SummaryResult is the structured output of LlmClient.Summarize.
type SummaryResult struct {
	Purpose      string
	KeyBehaviors []string
	EdgeCases    []string
}

// LlmClient is the external decomposition/generation/summarization service.
type LlmClient interface {
	// Decompose turns a user request into a description and an initial
	// task list.
	Decompose(ctx context.Context, request string, context string) (DecomposeResult, error)

	// Generate produces a source fragment for the first attempt at task.
	Generate(ctx context.Context, task *model.Task, gctx GenerationContext) (string, error)

	// Regenerate produces a repaired source fragment given the prior
	// failure and its diagnostics.
	Regenerate(ctx context.Context, task *model.Task, rctx RegenerationContext) (string, error)

	// Summarize produces a structured summary once a task validates.
	Summarize(ctx context.Context, task *model.Task, source string) (SummaryResult, error)

	// DecomposeComplex splits an oversize task into sub-tasks estimated
	// to fit within maxLines each.
	DecomposeComplex(ctx context.Context, task *model.Task, maxLines int) ([]DecomposedTask, error)
}

// ValidationResult is the output of Validator.Validate.
type ValidationResult struct {
	Errors   []model.Diagnostic
	Warnings []model.Diagnostic
}

// Validator compiles or lints a source fragment against a set of
// reference sources (e.g. the rendered contract declarations) and
// returns classified diagnostics. The target language is not specified
// here; codes are target-specific and mapped to model.Category by the
// caller (see model.ClassifyCode).
type Validator interface {
	Validate(ctx context.Context, source string, referenceSources []string) (ValidationResult, error)
}

// ReviewResult is the output of Clarifier.Review.
type ReviewResult struct {
	Accept bool
	Abort  bool
}

// Clarifier is the blocking human-interaction collaborator used for
// vague-task clarification and interactive merge-conflict review.
type Clarifier interface {
	// Ask poses a question with supporting context and blocks for an answer.
	Ask(ctx context.Context, contextText string, question string) (string, error)

	// Review presents a task list for acceptance or abort before execution.
	Review(ctx context.Context, tasks []*model.Task) (ReviewResult, error)
}

// Timeouts bundles the default suspension-point timeouts from
// SPEC_FULL.md §5.
type Timeouts struct {
	LLMCall   time.Duration
	Validator time.Duration
}

// DefaultTimeouts returns the spec's defaults: 120s per LLM call, 60s
// per validator invocation.
func DefaultTimeouts() Timeouts {
	return Timeouts{LLMCall: 120 * time.Second, Validator: 60 * time.Second}
}
