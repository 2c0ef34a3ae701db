// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator wires every other package into the single
// entry point SPEC_FULL.md §6 describes: Run(request, options) ->
// Report. It owns nothing domain-specific itself; it only sequences
// decomposition, planning, execution, merging, and persistence in the
// order SPEC_FULL.md §9 fixes, and translates the run's outcome into
// the invocation surface's exit-status taxonomy (SPEC_FULL.md §7).
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/codeforge/orchestrator/internal/orchestrator/checkpoint"
	"github.com/codeforge/orchestrator/internal/orchestrator/contract"
	"github.com/codeforge/orchestrator/internal/orchestrator/executor"
	"github.com/codeforge/orchestrator/internal/orchestrator/external"
	"github.com/codeforge/orchestrator/internal/orchestrator/merger"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/internal/orchestrator/repair"
	"github.com/codeforge/orchestrator/internal/orchestrator/scheduler"
	"github.com/codeforge/orchestrator/internal/orchestrator/splitter"
	"github.com/codeforge/orchestrator/internal/orchestrator/symbolregistry"
	"github.com/codeforge/orchestrator/internal/orchestrator/taskgraph"
	"github.com/codeforge/orchestrator/pkg/logging"
	"github.com/codeforge/orchestrator/pkg/metrics"
)

var tracer = otel.Tracer("codeforge.orchestrator")

// Orchestrator holds the three external collaborators every run needs.
// Nothing else is stateful across calls; a single Orchestrator is safe
// to reuse for many concurrent Run calls since each call constructs
// its own graph, catalog, and registry.
type Orchestrator struct {
	LLM       external.LlmClient
	Validator external.Validator
	Clarifier external.Clarifier
	Logger    *logging.Logger
	Metrics   *metrics.OrchestratorMetrics
}

// New returns an Orchestrator wired to the given collaborators.
func New(llm external.LlmClient, validator external.Validator, clarifier external.Clarifier) *Orchestrator {
	return &Orchestrator{
		LLM:       llm,
		Validator: validator,
		Clarifier: clarifier,
		Logger:    logging.Default(),
		Metrics:   metrics.Default(),
	}
}

// Run decomposes request into a task graph, executes it to completion
// under options, merges the validated output, and persists a
// checkpoint plus the generated corpus under options.OutputDirectory.
// It always returns a nil error: every failure (a context
// cancellation, a cycle, a phantom dependency, an unresolved merge
// conflict) is reported through the returned Report's ExitCode,
// FatalError and task/conflict lists instead.
func (o *Orchestrator) Run(ctx context.Context, request string, options model.Options) (model.Report, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Run")
	defer span.End()
	start := time.Now()

	report, err := o.run(ctx, span, request, options)

	if o.Metrics != nil {
		o.Metrics.RunsTotal.WithLabelValues(report.ExitCode.String()).Inc()
		o.Metrics.RunDurationSeconds.Observe(time.Since(start).Seconds())
	}
	if report.FatalError != "" {
		span.SetStatus(codes.Error, report.FatalError)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return report, err
}

// run is Run's body, split out so Run can apply the same span/metrics
// bookkeeping to every return path without repeating it at each one.
func (o *Orchestrator) run(ctx context.Context, span trace.Span, request string, options model.Options) (model.Report, error) {
	opts := options.WithDefaults()
	sessionID := uuid.NewString()
	log := o.Logger.With("session_id", sessionID)
	span.SetAttributes(attribute.String("session.id", sessionID))

	decomposed, err := o.LLM.Decompose(ctx, request, "")
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", external.ErrDecompositionFailed, err)
		log.Error("decomposition failed", "error", err)
		return fatalReport(wrapped), nil
	}

	graph := taskgraph.New()
	if err := buildGraph(graph, decomposed.Tasks); err != nil {
		log.Error("plan-time graph error", "error", err)
		return fatalReport(err), nil
	}
	if _, err := graph.TopologicalOrder(); err != nil {
		wrapped := fmt.Errorf("%w: %v", external.ErrCycle, err)
		log.Error("plan-time cycle detected", "error", err)
		return fatalReport(wrapped), nil
	}

	catalog := contract.New()
	if opts.EnableContractFirst {
		registerSharedContracts(catalog, decomposed.Tasks, log)
	}
	catalog.Freeze()

	if opts.EnableComplexityAnalysis {
		sp := splitter.New(o.LLM)
		if opts.MaxLinesPerTask > 0 {
			sp.MaxLinesPerTask = opts.MaxLinesPerTask
		}
		if err := sp.Run(ctx, graph); err != nil {
			log.Error("complexity-analysis split failed", "error", err)
			return fatalReport(err), nil
		}
	}

	registry, err := newRegistry(opts.IndexDirectory)
	if err != nil {
		log.Error("symbol index open failed", "error", err)
		return fatalReport(err), nil
	}
	if registry.Index != nil {
		defer registry.Index.Close()
	}
	exec := executor.New(o.LLM, o.Validator, o.Clarifier, catalog, registry, graph)
	if opts.MaxAttempts > 0 {
		exec.MaxAttempts = opts.MaxAttempts
	}
	if opts.LLMRateLimitPerSecond > 0 {
		exec.Limiter = rate.NewLimiter(rate.Limit(opts.LLMRateLimitPerSecond), 1)
	}

	var writer *checkpoint.Writer
	var checkpointDir string
	if opts.OutputDirectory != "" {
		checkpointDir = filepath.Join(opts.OutputDirectory, "checkpoints")
		writer, err = checkpoint.New(checkpointDir, log)
		if err != nil {
			log.Error("checkpoint writer init failed", "error", err)
			return fatalReport(err), nil
		}
	}

	sched := scheduler.New(graph, exec, writer, sessionID, request)
	sched.FailurePolicy = opts.FailurePolicy
	sched.CheckpointEveryN = opts.CheckpointEveryN
	if opts.WorkerCount > 0 {
		sched.WorkerCount = opts.WorkerCount
	}

	cp, runErr := sched.Run(ctx)

	m := merger.New(catalog, repair.New(), o.Clarifier)
	mergeResult, mergeErr := m.Merge(ctx, cp.Completed)

	report := buildReport(graph, catalog, cp, mergeResult, checkpointDir)

	switch {
	case runErr != nil:
		report.Success = false
		report.ExitCode = model.ExitFatal
		report.FatalError = runErr.Error()
	case mergeErr != nil:
		report.Success = false
		report.ExitCode = model.ExitFatal
		report.FatalError = mergeErr.Error()
	case cp.Status == model.ExecutionComplete && len(report.UnresolvedConflicts) == 0:
		report.Success = true
		report.ExitCode = model.ExitSuccess
	default:
		report.Success = false
		report.ExitCode = model.ExitPartial
	}

	if opts.OutputDirectory != "" && runErr == nil && mergeErr == nil {
		if err := persist(opts.OutputDirectory, catalog, mergeResult); err != nil {
			log.Warn("failed to persist generated corpus", "error", err)
		}
	}

	return report, nil
}

// newRegistry opens a plain in-memory symbolregistry.Registry, or, when
// indexDir is set, one backed by a durable BadgerIndex rooted there and
// pre-populated from whatever an earlier invocation against the same
// directory already persisted (SPEC_FULL.md §11's multi-invocation
// resume mode).
func newRegistry(indexDir string) (*symbolregistry.Registry, error) {
	if indexDir == "" {
		return symbolregistry.New(), nil
	}
	idx, err := symbolregistry.OpenBadgerIndex(indexDir)
	if err != nil {
		return nil, fmt.Errorf("open symbol index: %w", err)
	}
	registry, err := symbolregistry.NewWithIndex(idx)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("load symbol index: %w", err)
	}
	return registry, nil
}

// buildGraph inserts every decomposed task, deferring dependency
// validation until all of them are present (decomposition order is
// not guaranteed to be topological), then validates edges once.
func buildGraph(g *taskgraph.Graph, tasks []external.DecomposedTask) error {
	for _, dt := range tasks {
		g.AddDeferred(&model.Task{
			ID:                dt.ID,
			Description:       dt.Description,
			Dependencies:      dt.DependencyIDs,
			ExpectedTypes:     dt.ExpectedTypes,
			ConsumedTypes:     dt.ConsumedTypes,
			RequiredLibraries: dt.RequiredLibraries,
			Status:            model.StatusPending,
		})
	}
	if err := g.ValidateEdges(); err != nil {
		return fmt.Errorf("%w: %v", external.ErrPhantomDependency, err)
	}
	return nil
}

// registerSharedContracts pre-registers a placeholder contract for
// every type a task both declares and some other task consumes,
// before execution begins (SPEC_FULL.md §4.3's contract-first mode).
// Decomposition does not hand back a type's shape, only its name and
// which task owns it, so the registered Contract is a bare Model stub
// the catalog can still answer Contains()/Get() for; the executor's
// contractValidate step checks membership and enum completeness, not
// the placeholder's (empty) body.
func registerSharedContracts(catalog *contract.Catalog, tasks []external.DecomposedTask, log *logging.Logger) {
	producers := make(map[string]string, len(tasks)) // expected type name -> task ID
	for _, t := range tasks {
		for _, name := range t.ExpectedTypes {
			producers[name] = t.ID
		}
	}

	shared := make(map[string]bool)
	for _, t := range tasks {
		for _, names := range t.ConsumedTypes {
			for _, name := range names {
				if _, ok := producers[name]; ok {
					shared[name] = true
				}
			}
		}
	}

	names := make([]string, 0, len(shared))
	for name := range shared {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ct := &model.Contract{
			Name:         simpleName(name),
			Namespace:    namespace(name),
			Kind:         model.ContractModel,
			Model:        &model.ModelBody{},
			SourceTaskID: producers[name],
		}
		if err := catalog.Register(ct); err != nil {
			log.Warn("could not pre-register shared contract", "name", name, "error", err)
		}
	}
}

func simpleName(fqn string) string {
	idx := strings.LastIndexByte(fqn, '.')
	if idx < 0 {
		return fqn
	}
	return fqn[idx+1:]
}

func namespace(fqn string) string {
	idx := strings.LastIndexByte(fqn, '.')
	if idx < 0 {
		return ""
	}
	return fqn[:idx]
}

// fatalReport builds the Report shape for a plan-time failure: no
// tasks ever ran, so every per-task field stays empty.
func fatalReport(err error) model.Report {
	return model.Report{
		Success:    false,
		ExitCode:   model.ExitFatal,
		FatalError: err.Error(),
	}
}

// buildReport assembles the post-execution Report from the final
// checkpoint, the contract catalog, and the merge result. The caller
// still owns deciding Success/ExitCode/FatalError, since that decision
// also depends on runErr and mergeErr, which buildReport never sees.
func buildReport(g *taskgraph.Graph, catalog *contract.Catalog, cp model.Checkpoint, mr merger.Result, checkpointDir string) model.Report {
	var failed, skipped []model.Task
	for _, t := range g.All() {
		switch t.Status {
		case model.StatusFailed:
			failed = append(failed, *t.Clone())
		case model.StatusSkipped:
			skipped = append(skipped, *t.Clone())
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].ID < failed[j].ID })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].ID < skipped[j].ID })

	var unresolved []model.Conflict
	for _, c := range mr.Conflicts {
		if !c.Resolved {
			unresolved = append(unresolved, c)
		}
	}

	report := model.Report{
		MergedSource:        mr.Sources,
		ContractCatalog:     catalog.All(),
		FailedTasks:         failed,
		SkippedTasks:        skipped,
		UnresolvedConflicts: unresolved,
	}
	if checkpointDir != "" {
		report.CheckpointPath = filepath.Join(checkpointDir, "latest.data")
	}
	return report
}

// persist writes the frozen contract manifest, one file per contract,
// and the merged corpus under outputDir, matching the persisted-state
// layout SPEC_FULL.md §6 carries over from spec.md unchanged:
//
//	contracts.manifest
//	contracts/<TypeName>
//	<generated>/<namespace>
//
// Documentation export is an explicit external collaborator
// (SPEC_FULL.md's Non-goals); persist never writes anything under a
// Documentation.* path.
func persist(outputDir string, catalog *contract.Catalog, mr merger.Result) error {
	contractsDir := filepath.Join(outputDir, "contracts")
	if err := os.MkdirAll(contractsDir, 0o755); err != nil {
		return err
	}

	all := catalog.All()
	manifest, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outputDir, "contracts.manifest"), manifest, 0o644); err != nil {
		return err
	}
	for _, ct := range all {
		path := filepath.Join(contractsDir, ct.Name)
		if err := os.WriteFile(path, []byte(ct.Render()), 0o644); err != nil {
			return err
		}
	}

	generatedDir := filepath.Join(outputDir, "generated")
	if err := os.MkdirAll(generatedDir, 0o755); err != nil {
		return err
	}
	namespaces := make([]string, 0, len(mr.Sources))
	for ns := range mr.Sources {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		rel := strings.ReplaceAll(ns, ".", string(filepath.Separator))
		path := filepath.Join(generatedDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(mr.Sources[ns]), 0o644); err != nil {
			return err
		}
	}
	return nil
}
