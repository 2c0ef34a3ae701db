// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contract implements the frozen registry of shared type
// contracts built between decomposition and task execution.
//
// # Why frozen
//
// All subsequent LLM prompts embed contract signatures verbatim; the
// repair loop validates generated code against them. Freezing is the
// ordering invariant that makes concurrent task generation correct
// without locks: the catalog is read-only for the duration of
// execution (SPEC_FULL.md §4.3).
package contract

import (
	"errors"
	"sync"
	"time"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

// ErrFrozen is returned by any register_* call made after Freeze.
var ErrFrozen = errors.New("contract catalog is frozen")

// ErrDuplicateName is returned when a contract's fully-qualified name
// is already registered.
var ErrDuplicateName = errors.New("duplicate contract name")

// Catalog is the frozen registry of Enum/Interface/Model/AbstractBase
// contracts, indexed by fully-qualified name.
//
// # Thread Safety
//
// Registration, Freeze and every read are serialized by mu, before and
// after Freeze. After Freeze, contracts is never mutated again.
type Catalog struct {
	mu       sync.Mutex
	frozen   bool
	frozenAt time.Time
	byName   map[string]*model.Contract
}

// New returns an empty, unfrozen Catalog.
func New() *Catalog {
	return &Catalog{byName: make(map[string]*model.Contract)}
}

// Register adds a contract to the catalog. Fails with ErrFrozen once
// frozen, or ErrDuplicateName if the fully-qualified name collides.
func (c *Catalog) Register(ct *model.Contract) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return ErrFrozen
	}
	fqn := ct.FullyQualifiedName()
	if _, exists := c.byName[fqn]; exists {
		return ErrDuplicateName
	}
	c.byName[fqn] = ct
	return nil
}

// Freeze stamps the freeze time and rejects all further registration.
// Per SPEC_FULL.md §3, FrozenAt must precede any task execution that
// depends on these contracts; callers must call Freeze before handing
// the catalog to the scheduler.
func (c *Catalog) Freeze() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return c.frozenAt
	}
	c.frozen = true
	c.frozenAt = time.Now()
	for _, ct := range c.byName {
		ct.IsFrozen = true
		ct.FrozenAt = c.frozenAt
	}
	return c.frozenAt
}

// IsFrozen reports whether Freeze has been called.
func (c *Catalog) IsFrozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

// Contains reports whether name (fully-qualified) is registered. Safe
// to call concurrently at any time; pre-freeze it takes the lock,
// post-freeze the map is read-only so no lock is needed, but we keep
// the lock uniformly cheap and simple rather than special-casing.
func (c *Catalog) Contains(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byName[name]
	return ok
}

// Get returns the contract registered under name.
func (c *Catalog) Get(name string) (*model.Contract, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ct, ok := c.byName[name]
	return ct, ok
}

// All returns every contract, ordered by fully-qualified name.
func (c *Catalog) All() []*model.Contract {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*model.Contract, 0, len(c.byName))
	for _, ct := range c.byName {
		out = append(out, ct)
	}
	return model.SortContracts(out)
}
