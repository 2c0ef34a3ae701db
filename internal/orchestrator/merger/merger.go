// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package merger assembles every validated task's output into one
// namespace-grouped corpus: register each task's declared types into a
// merge-scoped type table, classify same-name collisions into a
// Conflict, resolve them (auto-apply outside interactive mode, or
// via Clarifier.Review when Interactive is set), then run a Repairer
// import-dedupe pass over each namespace bucket (SPEC_FULL.md §4.8).
//
// Grounded on the teacher's services/code_buddy/diff package for the
// conflict/resolution shape (ProposedChange, hunk-level review) and
// services/code_buddy/manifest for content hashing, here applied to
// in-memory merged text rather than on-disk files so re-merging
// identical input is verifiably idempotent.
package merger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/codeforge/orchestrator/internal/orchestrator/contract"
	"github.com/codeforge/orchestrator/internal/orchestrator/external"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/internal/orchestrator/repair"
	"github.com/codeforge/orchestrator/pkg/logging"
)

// Merger holds the collaborators needed to resolve cross-task naming
// collisions and assemble the final corpus.
type Merger struct {
	Catalog     *contract.Catalog
	Repairer    *repair.Repairer
	Clarifier   external.Clarifier
	Interactive bool
	Logger      *logging.Logger
}

// New returns a Merger in non-interactive (auto-apply) mode.
func New(catalog *contract.Catalog, repairer *repair.Repairer, clarifier external.Clarifier) *Merger {
	return &Merger{
		Catalog:   catalog,
		Repairer:  repairer,
		Clarifier: clarifier,
		Logger:    logging.Default(),
	}
}

// Result is the merger's output: the namespace-grouped corpus plus the
// full conflict ledger, resolved or not, for the caller's Report.
type Result struct {
	Sources   map[string]string
	Conflicts []model.Conflict
}

// Merge combines every validated task's output into a Result. Calling
// Merge twice with the same completed set produces byte-identical
// Sources (and therefore the same ContentHash), since classification,
// resolution, and assembly are pure functions of their inputs apart
// from the one Clarifier.Review round-trip in interactive mode.
func (m *Merger) Merge(ctx context.Context, completed []model.CompletedTask) (Result, error) {
	byName := m.registerDefinitions(completed)
	conflicts := m.classifyConflicts(byName)

	if err := m.applyResolutions(ctx, conflicts); err != nil {
		return Result{}, err
	}

	sources := m.assemble(completed, conflicts)
	return Result{Sources: sources, Conflicts: conflicts}, nil
}

// registerDefinitions builds the merge-scoped type table: fully
// qualified name -> one Definition per task that declared it.
func (m *Merger) registerDefinitions(completed []model.CompletedTask) map[string][]model.Definition {
	byName := make(map[string][]model.Definition)
	for _, ct := range completed {
		for _, name := range ct.Task.ExpectedTypes {
			byName[name] = append(byName[name], model.Definition{
				TaskID:             ct.Task.ID,
				FullyQualifiedName: name,
				Source:             ct.GeneratedSource,
				Members:            extractMembers(ct.GeneratedSource),
			})
		}
	}
	return byName
}

// classifyConflicts reports every name declared by more than one task,
// each tagged with its suggested resolution.
func (m *Merger) classifyConflicts(byName map[string][]model.Definition) []model.Conflict {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []model.Conflict
	for _, name := range names {
		defs := byName[name]
		if len(defs) < 2 {
			continue
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].TaskID < defs[j].TaskID })
		c := model.Conflict{
			FullyQualifiedName: name,
			Definitions:        defs,
			Suggested:          m.suggestResolution(name, defs),
		}
		c.DiffPreview = diffPreview(c)
		out = append(out, c)
	}
	return out
}

// suggestResolution picks a resolution by a fixed priority: an exact
// duplicate keeps the first task's definition and drops the rest
// unchanged; a collision on a name the ContractCatalog already froze
// can never be merged away, since later tasks were prompted against
// that exact shape; disjoint member sets look like an unintentional
// split of one partial type across tasks; anything else is the same
// name with a different body, which is just a duplicate that failed
// to come out byte-identical, so the second definition is dropped.
func (m *Merger) suggestResolution(name string, defs []model.Definition) model.Resolution {
	if allIdentical(defs) {
		return model.ResolutionKeepFirst
	}
	if m.Catalog != nil && m.Catalog.Contains(name) {
		return model.ResolutionFailFast
	}
	if membersDisjoint(defs) {
		return model.ResolutionMergeAsPartial
	}
	return model.ResolutionRemoveDuplicate
}

func allIdentical(defs []model.Definition) bool {
	first := strings.TrimSpace(defs[0].Source)
	for _, d := range defs[1:] {
		if strings.TrimSpace(d.Source) != first {
			return false
		}
	}
	return true
}

func membersDisjoint(defs []model.Definition) bool {
	seen := make(map[string]bool)
	total := 0
	for _, d := range defs {
		for _, member := range d.Members {
			seen[member] = true
			total++
		}
	}
	return total > 0 && len(seen) == total
}

// applyResolutions stamps Applied/Resolved on every conflict. In
// interactive mode it first presents the whole batch via a single
// Clarifier.Review call; an abort fails the merge outright, a decline
// leaves every conflict unresolved for the operator to handle out of
// band, and acceptance auto-applies exactly as non-interactive mode
// would.
func (m *Merger) applyResolutions(ctx context.Context, conflicts []model.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}

	if m.Interactive && m.Clarifier != nil {
		review, err := m.Clarifier.Review(ctx, representativeTasks(conflicts))
		if err != nil {
			return fmt.Errorf("interactive conflict review: %w", err)
		}
		if review.Abort {
			return fmt.Errorf("%w: merge aborted during interactive review", external.ErrUnresolvableConflict)
		}
		if !review.Accept {
			m.Logger.Warn("conflict review declined; leaving conflicts unresolved", "count", len(conflicts))
			return nil
		}
	}

	for i := range conflicts {
		c := &conflicts[i]
		if c.Suggested == model.ResolutionFailFast {
			m.Logger.Error("unresolvable merge conflict", "name", c.FullyQualifiedName)
			continue
		}
		c.Applied = c.Suggested
		c.Resolved = true
	}
	return nil
}

// representativeTasks synthesizes one placeholder Task per distinct
// contributing task ID, for Clarifier.Review's display purposes only;
// the merger has no access to the live TaskGraph at this stage.
func representativeTasks(conflicts []model.Conflict) []*model.Task {
	seen := make(map[string]bool)
	var out []*model.Task
	for _, c := range conflicts {
		for _, d := range c.Definitions {
			if seen[d.TaskID] {
				continue
			}
			seen[d.TaskID] = true
			desc := fmt.Sprintf("defines %s (conflicts with another task)", d.FullyQualifiedName)
			if c.DiffPreview != "" {
				desc += "\n\n" + c.DiffPreview
			}
			out = append(out, &model.Task{ID: d.TaskID, Description: desc})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// assemble groups every task's fragment (or, for a conflicted name, its
// resolved replacement) into per-namespace buckets and runs the
// Repairer's import-dedupe pass over each one.
func (m *Merger) assemble(completed []model.CompletedTask, conflicts []model.Conflict) map[string]string {
	conflictByName := make(map[string]*model.Conflict, len(conflicts))
	for i := range conflicts {
		conflictByName[conflicts[i].FullyQualifiedName] = &conflicts[i]
	}

	sorted := append([]model.CompletedTask(nil), completed...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Task.ID < sorted[j].Task.ID })

	buckets := make(map[string][]string)
	emittedTask := make(map[string]bool)
	emittedConflict := make(map[string]bool)

	for _, ct := range sorted {
		for _, name := range ct.Task.ExpectedTypes {
			if c, conflicted := conflictByName[name]; conflicted {
				if emittedConflict[name] {
					continue
				}
				emittedConflict[name] = true
				if !c.Resolved {
					continue
				}
				ns := namespaceOf(name)
				buckets[ns] = append(buckets[ns], m.resolvedContent(c))
				continue
			}

			if emittedTask[ct.Task.ID] {
				continue
			}
			emittedTask[ct.Task.ID] = true
			ns := namespaceOf(name)
			buckets[ns] = append(buckets[ns], ct.GeneratedSource)
		}
	}

	out := make(map[string]string, len(buckets))
	for ns, frags := range buckets {
		joined := strings.Join(frags, "\n")
		if m.Repairer != nil {
			joined = m.Repairer.DedupeImports(joined)
		}
		out[ns] = joined
	}
	return out
}

func (m *Merger) resolvedContent(c *model.Conflict) string {
	if c.Applied == model.ResolutionMergeAsPartial {
		return buildPartialMerge(c.Definitions)
	}
	return c.Definitions[0].Source
}

// buildPartialMerge concatenates every contributing definition, each
// after the first marked with the task that contributed it; the
// orchestrator treats the result as an opaque fragment handed to the
// caller, same as Contract.Render (SPEC_FULL.md §4.3).
func buildPartialMerge(defs []model.Definition) string {
	var b strings.Builder
	for i, d := range defs {
		if i > 0 {
			fmt.Fprintf(&b, "\n// merged partial contribution from %s\n", d.TaskID)
		}
		b.WriteString(strings.TrimRight(d.Source, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func namespaceOf(fqn string) string {
	idx := strings.LastIndexByte(fqn, '.')
	if idx < 0 {
		return "default"
	}
	return fqn[:idx]
}

var headerPrefixes = []string{"class ", "interface ", "enum ", "abstract class ", "sealed class ", "record "}

// extractMembers is a line-oriented heuristic for the disjoint-members
// check: it strips import lines, the declaration header, and bare
// braces, leaving whatever looks like a member declaration. It never
// needs to be a correct parse, only consistent across the two
// definitions being compared.
func extractMembers(source string) []string {
	var members []string
	for _, line := range strings.Split(source, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || t == "{" || t == "}" {
			continue
		}
		if strings.HasPrefix(t, "using ") || strings.HasPrefix(t, "import ") {
			continue
		}
		if isHeaderLine(t) {
			continue
		}
		members = append(members, t)
	}
	return members
}

func isHeaderLine(t string) bool {
	for _, p := range headerPrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

// ContentHash returns a deterministic SHA-256 over a Result's Sources,
// keyed by namespace. Re-merging the same completed set must produce
// the same hash; this is the in-memory analogue of the teacher's
// manifest.SHA256Hasher, which hashes file contents on disk.
func ContentHash(sources map[string]string) string {
	keys := make([]string, 0, len(sources))
	for k := range sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(sources[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
