// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor runs one task through its nine-step lifecycle:
// clarification, context assembly, generate, validate, contract-validate,
// auto-fix, re-prompt, summarize/register, failure (SPEC_FULL.md §4.5).
//
// # Thread Safety
//
// An Executor instance carries no mutable state of its own beyond its
// collaborators, all of which are either read-only (ContractCatalog
// post-freeze) or independently synchronized (SymbolRegistry). Many
// goroutines may call Run concurrently for different tasks.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/codeforge/orchestrator/internal/orchestrator/contract"
	"github.com/codeforge/orchestrator/internal/orchestrator/external"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/internal/orchestrator/repair"
	"github.com/codeforge/orchestrator/internal/orchestrator/retry"
	"github.com/codeforge/orchestrator/internal/orchestrator/symbolregistry"
	"github.com/codeforge/orchestrator/internal/orchestrator/taskgraph"
	"github.com/codeforge/orchestrator/pkg/logging"
	"github.com/codeforge/orchestrator/pkg/metrics"
)

var tracer = otel.Tracer("codeforge.executor")

// VagueTerms is the default set of phrases that trigger a clarification
// round when present in a task's description and no clarification has
// run yet.
var VagueTerms = []string{"etc", "and so on", "something like", "some kind of", "handle appropriately"}

// Executor runs the per-task lifecycle against its external
// collaborators and the shared in-process state (contracts, symbols).
type Executor struct {
	LLM        external.LlmClient
	Validator  external.Validator
	Clarifier  external.Clarifier
	Catalog    *contract.Catalog
	Registry   *symbolregistry.Registry
	Repairer   *repair.Repairer
	Graph      *taskgraph.Graph
	CodeTable  map[string]model.Category
	MaxAttempts int
	VagueTerms []string
	RetryConfig retry.Config
	Logger     *logging.Logger
	Metrics    *metrics.OrchestratorMetrics

	// Limiter throttles outbound LlmClient calls (Generate, Regenerate,
	// Summarize). Nil means unthrottled. A deployment fronting a rate-
	// limited LLM backend sets this; codeforge ships no default limit
	// since the right rate is backend-specific.
	Limiter *rate.Limiter
}

// New returns an Executor with the spec's defaults (MaxAttempts 3,
// the default C#-flavored code table, the default vague-term list, and
// the default retry backoff).
func New(llm external.LlmClient, validator external.Validator, clarifier external.Clarifier, catalog *contract.Catalog, registry *symbolregistry.Registry, graph *taskgraph.Graph) *Executor {
	return &Executor{
		LLM:         llm,
		Validator:   validator,
		Clarifier:   clarifier,
		Catalog:     catalog,
		Registry:    registry,
		Repairer:    repair.New(),
		Graph:       graph,
		CodeTable:   model.DefaultCodeTable(),
		MaxAttempts: 3,
		VagueTerms:  VagueTerms,
		RetryConfig: retry.DefaultConfig(),
		Logger:      logging.Default(),
		Metrics:     metrics.Default(),
	}
}

// Run executes t's full lifecycle in place, mutating t's Status,
// GeneratedSource, Diagnostics, AttemptCount, and Summary fields, and
// registering every symbol t defines with the Registry on success.
func (e *Executor) Run(ctx context.Context, t *model.Task) error {
	ctx, span := tracer.Start(ctx, "executor.Run",
		trace.WithAttributes(
			attribute.String("task.id", t.ID),
			attribute.StringSlice("task.expected_types", t.ExpectedTypes),
		),
	)
	defer span.End()

	start := time.Now()
	if e.Metrics != nil {
		e.Metrics.ActiveTasks.Inc()
		defer e.Metrics.ActiveTasks.Dec()
	}

	err := e.run(ctx, t)

	outcome := "validated"
	if t.Status == model.StatusFailed {
		outcome = "failed"
	}
	if e.Metrics != nil {
		e.Metrics.TasksTotal.WithLabelValues(outcome).Inc()
		e.Metrics.TaskDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

// run is Run's body, separated so Run can wrap every return path with
// the same span/metrics bookkeeping without repeating it at each return.
func (e *Executor) run(ctx context.Context, t *model.Task) error {
	log := e.Logger.With("task_id", t.ID)
	t.Status = model.StatusRunning

	if err := e.clarify(ctx, t); err != nil {
		return e.fail(t, err, log)
	}

	gctx := e.assembleContext(t)

	source, err := e.generateWithRetry(ctx, t, gctx)
	if err != nil {
		return e.fail(t, err, log)
	}
	t.GeneratedSource = stripFences(source)
	t.AttemptCount++

	for {
		diags, err := e.validateWithRetry(ctx, t.GeneratedSource)
		if err != nil {
			return e.fail(t, err, log)
		}
		diags = append(diags, e.contractValidate(t)...)

		if !model.HasErrors(diags) {
			t.Diagnostics = diags
			return e.succeed(ctx, t, log)
		}

		residual := e.autoFix(t, diags)
		if len(residual) == 0 {
			t.Diagnostics = nil
			return e.succeed(ctx, t, log)
		}
		t.Diagnostics = residual

		if t.AttemptCount >= e.MaxAttempts {
			log.Warn("task exhausted attempts", "attempts", t.AttemptCount)
			t.Status = model.StatusFailed
			return nil
		}

		rctx := external.RegenerationContext{
			GenerationContext: gctx,
			PriorSource:       t.GeneratedSource,
			Diagnostics:       residual,
			Suggestions:       suggestionsFor(residual),
		}
		regenerated, err := e.regenerateWithRetry(ctx, t, rctx)
		if err != nil {
			return e.fail(t, err, log)
		}
		t.GeneratedSource = stripFences(regenerated)
		t.AttemptCount++
	}
}

// waitForLimiter blocks until the rate limiter admits one more outbound
// LLM call. A nil Limiter means unthrottled.
func (e *Executor) waitForLimiter(ctx context.Context) error {
	if e.Limiter == nil {
		return nil
	}
	return e.Limiter.Wait(ctx)
}

// clarify asks the Clarifier once if the description looks vague and no
// clarification has run for this task yet.
func (e *Executor) clarify(ctx context.Context, t *model.Task) error {
	if t.Clarified || e.Clarifier == nil {
		return nil
	}
	if !containsVagueTerm(t.Description, e.VagueTerms) {
		return nil
	}
	answer, err := e.Clarifier.Ask(ctx, t.Description, "please clarify the vague portion of this task")
	if err != nil {
		return fmt.Errorf("clarification: %w", err)
	}
	t.Description = t.Description + "\n\n" + answer
	t.Clarified = true
	return nil
}

func containsVagueTerm(description string, terms []string) bool {
	lower := strings.ToLower(description)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// assembleContext gathers the contract signatures the task references,
// the registry's known-types block, the type-signatures of every
// dependency's output, and the fixed guardrail text.
func (e *Executor) assembleContext(t *model.Task) external.GenerationContext {
	var contractSignatures []string
	if e.Catalog != nil {
		for _, ct := range e.Catalog.All() {
			contractSignatures = append(contractSignatures, ct.Render())
		}
	}

	knownTypes := ""
	if e.Registry != nil {
		knownTypes = e.Registry.KnownTypesBlock()
	}

	depSignatures := make(map[string][]string, len(t.Dependencies))
	if e.Graph != nil {
		for _, depID := range t.Dependencies {
			dep, ok := e.Graph.Get(depID)
			if !ok {
				continue
			}
			var sigs []string
			for _, sym := range e.Registry.BySourceTask(depID) {
				if sym.Signature != "" {
					sigs = append(sigs, sym.Signature)
				}
			}
			sort.Strings(sigs)
			depSignatures[dep.ID] = sigs
		}
	}

	return external.GenerationContext{
		ContractSignatures:   contractSignatures,
		KnownTypesBlock:      knownTypes,
		DependencySignatures: depSignatures,
		Guardrails: []string{
			"do not redefine any listed type",
			"implement all interface members exactly as signed",
			"only the listed enum members are valid",
		},
	}
}

func (e *Executor) generateWithRetry(ctx context.Context, t *model.Task, gctx external.GenerationContext) (string, error) {
	var out string
	err := retry.Do(ctx, e.RetryConfig, external.Transient, func(ctx context.Context, attempt int) error {
		if err := e.waitForLimiter(ctx); err != nil {
			return err
		}
		src, err := e.LLM.Generate(ctx, t, gctx)
		if err != nil {
			return err
		}
		out = src
		return nil
	})
	return out, err
}

func (e *Executor) regenerateWithRetry(ctx context.Context, t *model.Task, rctx external.RegenerationContext) (string, error) {
	var out string
	err := retry.Do(ctx, e.RetryConfig, external.Transient, func(ctx context.Context, attempt int) error {
		if err := e.waitForLimiter(ctx); err != nil {
			return err
		}
		src, err := e.LLM.Regenerate(ctx, t, rctx)
		if err != nil {
			return err
		}
		out = src
		return nil
	})
	return out, err
}

func (e *Executor) validateWithRetry(ctx context.Context, source string) ([]model.Diagnostic, error) {
	var referenceSources []string
	if e.Catalog != nil {
		for _, ct := range e.Catalog.All() {
			referenceSources = append(referenceSources, ct.Render())
		}
	}

	var out []model.Diagnostic
	err := retry.Do(ctx, e.RetryConfig, external.Transient, func(ctx context.Context, attempt int) error {
		res, err := e.Validator.Validate(ctx, source, referenceSources)
		if err != nil {
			return err
		}
		classified := make([]model.Diagnostic, 0, len(res.Errors)+len(res.Warnings))
		for _, d := range append(append([]model.Diagnostic(nil), res.Errors...), res.Warnings...) {
			if d.Category == "" {
				d.Category = model.ClassifyCode(d.Code, e.CodeTable)
			}
			classified = append(classified, d)
		}
		out = classified
		return nil
	})
	return out, err
}

// contractValidate runs the three in-process, deterministic contract
// checks from SPEC_FULL.md §4.5 step 5: redefine, sealed-inheritance,
// missing-enum-member. These never call the Validator; they inspect
// the generated source textually against the frozen catalog.
func (e *Executor) contractValidate(t *model.Task) []model.Diagnostic {
	if e.Catalog == nil {
		return nil
	}
	var diags []model.Diagnostic
	source := t.GeneratedSource

	for _, ct := range e.Catalog.All() {
		if isTaskOwnedDefinition(t, ct) {
			continue
		}
		if strings.Contains(source, "class "+ct.Name) || strings.Contains(source, "interface "+ct.Name) || strings.Contains(source, "enum "+ct.Name) {
			diags = append(diags, model.Diagnostic{
				Severity: model.SeverityError,
				Category: model.CategoryContractRedefine,
				Message:  fmt.Sprintf("redefinition of frozen contract %s", ct.FullyQualifiedName()),
			})
		}
		if ct.Kind == model.ContractAbstractBase && ct.AbstractBase != nil && ct.AbstractBase.IsSealed {
			if strings.Contains(source, ": "+ct.Name) {
				diags = append(diags, model.Diagnostic{
					Severity: model.SeverityError,
					Category: model.CategorySealedInheritance,
					Message:  ct.Name,
				})
			}
		}
		if ct.Kind == model.ContractEnum {
			diags = append(diags, enumMemberDiagnostics(source, ct)...)
		}
	}
	return diags
}

func isTaskOwnedDefinition(t *model.Task, ct *model.Contract) bool {
	return ct.SourceTaskID == t.ID
}

func enumMemberDiagnostics(source string, ct *model.Contract) []model.Diagnostic {
	var diags []model.Diagnostic
	marker := ct.Name + "."
	idx := 0
	for {
		at := strings.Index(source[idx:], marker)
		if at < 0 {
			break
		}
		at += idx
		rest := source[at+len(marker):]
		member := leadingIdent(rest)
		if member != "" && !ct.HasEnumMember(member) {
			diags = append(diags, model.Diagnostic{
				Severity: model.SeverityError,
				Category: model.CategoryMissingEnumMember,
				Message:  fmt.Sprintf("%s is not a member of %s", member, ct.Name),
			})
		}
		idx = at + len(marker)
	}
	return diags
}

func leadingIdent(s string) string {
	end := 0
	for end < len(s) && isIdentChar(s[end]) {
		end++
	}
	return s[:end]
}

func isIdentChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// autoFix applies every auto-fixable transform in place on t.GeneratedSource,
// returning the diagnostics that remain unfixed.
func (e *Executor) autoFix(t *model.Task, diags []model.Diagnostic) []model.Diagnostic {
	var residual []model.Diagnostic
	source := t.GeneratedSource
	for _, d := range diags {
		if d.Category == model.CategoryAmbiguousReference {
			alias, ok := e.Registry.SuggestAlias(d.Message, taskNamespace(t))
			if ok {
				fixed, applied := e.Repairer.ApplyAmbiguousReference(source, d.Message, alias)
				if applied {
					source = fixed
					continue
				}
			}
			residual = append(residual, d)
			continue
		}
		fixed, applied := e.Repairer.Apply(source, d)
		if applied {
			source = fixed
			continue
		}
		residual = append(residual, d)
	}
	t.GeneratedSource = source
	return residual
}

func taskNamespace(t *model.Task) string {
	if len(t.ExpectedTypes) == 0 {
		return ""
	}
	return namespaceOf(t.ExpectedTypes[0])
}

func suggestionsFor(diags []model.Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, fmt.Sprintf("%s: %s", d.Category, d.Message))
	}
	return out
}

// succeed runs the summarize step, registers every symbol the task
// produced, and marks the task validated.
func (e *Executor) succeed(ctx context.Context, t *model.Task, log *logging.Logger) error {
	summaryResult, err := e.summarizeWithRetry(ctx, t)
	if err != nil {
		return e.fail(t, err, log)
	}
	t.Summary = &model.Summary{
		Purpose:      summaryResult.Purpose,
		KeyBehaviors: summaryResult.KeyBehaviors,
		EdgeCases:    summaryResult.EdgeCases,
	}

	for _, typeName := range t.ExpectedTypes {
		sym := model.Symbol{
			FullyQualifiedName: typeName,
			SimpleName:         simpleNameOf(typeName),
			Namespace:          namespaceOf(typeName),
			Kind:               model.SymbolType,
			SourceTaskID:       t.ID,
		}
		if _, collision := e.Registry.TryRegister(sym); collision != nil {
			log.Warn("symbol collision on task success", "simple_name", collision.SimpleName, "kind", collision.Kind)
		}
	}

	t.Status = model.StatusValidated
	log.Info("task validated", "attempts", t.AttemptCount)
	return nil
}

func simpleNameOf(fqn string) string {
	if idx := strings.LastIndexByte(fqn, '.'); idx >= 0 {
		return fqn[idx+1:]
	}
	return fqn
}

func namespaceOf(fqn string) string {
	if idx := strings.LastIndexByte(fqn, '.'); idx >= 0 {
		return fqn[:idx]
	}
	return ""
}

func (e *Executor) summarizeWithRetry(ctx context.Context, t *model.Task) (external.SummaryResult, error) {
	var out external.SummaryResult
	err := retry.Do(ctx, e.RetryConfig, external.Transient, func(ctx context.Context, attempt int) error {
		if err := e.waitForLimiter(ctx); err != nil {
			return err
		}
		res, err := e.LLM.Summarize(ctx, t, t.GeneratedSource)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (e *Executor) fail(t *model.Task, err error, log *logging.Logger) error {
	t.Status = model.StatusFailed
	category := model.CategoryOther
	if errors.Is(err, context.Canceled) || errors.Is(err, external.ErrCancelled) {
		category = model.CategoryCancelled
	}
	t.Diagnostics = append(t.Diagnostics, model.Diagnostic{
		Severity: model.SeverityError,
		Category: category,
		Message:  err.Error(),
	})
	log.Error("task failed", "error", err)
	return err
}

// stripFences removes a single leading/trailing markdown code fence, if present.
func stripFences(source string) string {
	trimmed := strings.TrimSpace(source)
	if !strings.HasPrefix(trimmed, "```") {
		return source
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return source
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
