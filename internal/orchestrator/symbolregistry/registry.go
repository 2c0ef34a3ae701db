// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package symbolregistry tracks every type and member defined across
// the task graph so parallel branches stay consistent: it detects
// duplicate definitions, ambiguous simple names, and misplaced model
// types, and renders a compact known-types block for prompt injection.
//
// # Thread Safety
//
// Registry is multi-reader/single-writer: readers never block each
// other, writers are serialized, and TryRegister's insert-plus-index
// step is atomic (SPEC_FULL.md §5).
package symbolregistry

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/pkg/logging"
)

var dtoLikeSuffix = regexp.MustCompile(`(Info|Data|Dto|Model)$`)

// Registry is the cross-task symbol table.
type Registry struct {
	mu sync.RWMutex

	byFQN        map[string]model.Symbol
	bySimpleName map[string][]model.Symbol
	bySourceTask map[string][]model.Symbol
	collisions   []model.Collision

	// Index, if set, receives a write-through Put for every symbol
	// TryRegister successfully inserts. A write failure is logged and
	// otherwise ignored: the in-memory maps above remain authoritative
	// for this process, the index exists only so a later invocation
	// against the same directory can rebuild them (SPEC_FULL.md §11).
	Index  *BadgerIndex
	Logger *logging.Logger
}

// New returns an empty Registry with no backing index.
func New() *Registry {
	return &Registry{
		byFQN:        make(map[string]model.Symbol),
		bySimpleName: make(map[string][]model.Symbol),
		bySourceTask: make(map[string][]model.Symbol),
		Logger:       logging.Default(),
	}
}

// NewWithIndex returns a Registry that write-through persists every
// registration to idx, pre-populated from idx's current contents (e.g.
// from a prior invocation against the same --index-dir).
func NewWithIndex(idx *BadgerIndex) (*Registry, error) {
	r := New()
	r.Index = idx
	symbols, err := idx.All()
	if err != nil {
		return nil, err
	}
	for _, sym := range symbols {
		r.byFQN[sym.FullyQualifiedName] = sym
		r.bySourceTask[sym.SourceTaskID] = append(r.bySourceTask[sym.SourceTaskID], sym)
		r.bySimpleName[sym.SimpleName] = append(r.bySimpleName[sym.SimpleName], sym)
	}
	return r, nil
}

// TryRegister inserts sym if no entry with its fully-qualified name
// exists. It reports whether the insert happened, and any Collision
// recorded against an existing symbol sharing the same simple name.
// Both the insert and the collision indexing happen under one write
// lock, so no other caller observes a partially-indexed symbol.
func (r *Registry) TryRegister(sym model.Symbol) (inserted bool, collision *model.Collision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byFQN[sym.FullyQualifiedName]; exists {
		return false, nil
	}
	r.byFQN[sym.FullyQualifiedName] = sym
	r.bySourceTask[sym.SourceTaskID] = append(r.bySourceTask[sym.SourceTaskID], sym)

	existing := r.bySimpleName[sym.SimpleName]
	if len(existing) > 0 {
		kind := classify(existing[0], sym)
		c := model.Collision{
			SimpleName: sym.SimpleName,
			Kind:       kind,
			Existing:   existing[0],
			Incoming:   sym,
		}
		r.collisions = append(r.collisions, c)
		collision = &c
	}
	r.bySimpleName[sym.SimpleName] = append(existing, sym)

	if r.Index != nil {
		if err := r.Index.Put(sym); err != nil {
			r.indexErr(sym, err)
		}
	}
	return true, collision
}

// indexErr logs a write-through failure without disturbing the
// registration that already succeeded against the in-memory maps.
func (r *Registry) indexErr(sym model.Symbol, err error) {
	if r.Logger != nil {
		r.Logger.Warn("symbol index write failed", "fqn", sym.FullyQualifiedName, "error", err)
	}
}

// classify determines the Collision kind for two symbols sharing a
// simple name, per SPEC_FULL.md §4.2's ordered rule list.
func classify(existing, incoming model.Symbol) model.CollisionKind {
	if existing.Namespace == incoming.Namespace {
		return model.CollisionDuplicateDefinition
	}

	isDTOLike := dtoLikeSuffix.MatchString(incoming.SimpleName) && !strings.HasSuffix(incoming.Namespace, "Models")
	fromServices := strings.HasSuffix(existing.Namespace, "Services") || strings.HasSuffix(incoming.Namespace, "Services")
	isRequestResponse := strings.HasSuffix(incoming.SimpleName, "Request") || strings.HasSuffix(incoming.SimpleName, "Response")

	if isDTOLike && fromServices && !isRequestResponse {
		return model.CollisionMisplacedModel
	}
	return model.CollisionAmbiguousName
}

// Collisions returns a snapshot of every collision recorded so far.
func (r *Registry) Collisions() []model.Collision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Collision(nil), r.collisions...)
}

// BySimpleName returns every registered symbol sharing simpleName.
func (r *Registry) BySimpleName(simpleName string) []model.Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Symbol(nil), r.bySimpleName[simpleName]...)
}

// BySourceTask returns every symbol a task registered, for registry
// consistency checks (every symbol has at most one source task by
// construction: TryRegister never overwrites an existing FQN).
func (r *Registry) BySourceTask(taskID string) []model.Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Symbol(nil), r.bySourceTask[taskID]...)
}

// KnownTypesBlock renders a compact textual block of all registered
// types (excluding members) for injection into subsequent generation
// prompts.
func (r *Registry) KnownTypesBlock() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fqns []string
	for fqn, sym := range r.byFQN {
		if sym.Kind == model.SymbolMethod || sym.Kind == model.SymbolProperty {
			continue
		}
		fqns = append(fqns, fqn)
	}
	sort.Strings(fqns)

	var b strings.Builder
	b.WriteString("Known types (do not redefine):\n")
	for _, fqn := range fqns {
		fmt.Fprintf(&b, "- %s\n", fqn)
	}
	return b.String()
}

// SuggestAlias returns the fully-qualified name for simpleName in
// preferredNamespace if present; else the one in a namespace ending in
// "Models"; else the first registered.
func (r *Registry) SuggestAlias(simpleName, preferredNamespace string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.bySimpleName[simpleName]
	if len(candidates) == 0 {
		return "", false
	}
	for _, c := range candidates {
		if c.Namespace == preferredNamespace {
			return c.FullyQualifiedName, true
		}
	}
	for _, c := range candidates {
		if strings.HasSuffix(c.Namespace, "Models") {
			return c.FullyQualifiedName, true
		}
	}
	return candidates[0].FullyQualifiedName, true
}

// ConventionViolation is one naming-convention finding from ValidateConventions.
type ConventionViolation struct {
	Symbol  model.Symbol
	Message string
}

// ValidateConventions flags interfaces without an "I" prefix and model
// types registered outside a namespace ending in "Models".
func (r *Registry) ValidateConventions(sym model.Symbol) []ConventionViolation {
	var violations []ConventionViolation
	if sym.Kind == model.SymbolInterface && !strings.HasPrefix(sym.SimpleName, "I") {
		violations = append(violations, ConventionViolation{
			Symbol:  sym,
			Message: fmt.Sprintf("interface %q should be prefixed with I", sym.SimpleName),
		})
	}
	if dtoLikeSuffix.MatchString(sym.SimpleName) && !strings.HasSuffix(sym.Namespace, "Models") {
		violations = append(violations, ConventionViolation{
			Symbol:  sym,
			Message: fmt.Sprintf("model-like type %q registered outside a Models namespace (%s)", sym.SimpleName, sym.Namespace),
		})
	}
	return violations
}
