// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

// SymbolKind classifies what a Symbol refers to.
type SymbolKind string

const (
	SymbolType      SymbolKind = "type"
	SymbolInterface SymbolKind = "interface"
	SymbolEnum      SymbolKind = "enum"
	SymbolMethod    SymbolKind = "method"
	SymbolProperty  SymbolKind = "property"
)

// Symbol is a defined type or member tracked by the SymbolRegistry.
type Symbol struct {
	FullyQualifiedName string     `json:"fully_qualified_name"`
	SimpleName         string     `json:"simple_name"`
	Namespace          string     `json:"namespace"`
	Kind               SymbolKind `json:"kind"`
	SourceTaskID       string     `json:"source_task_id"`
	Signature          string     `json:"signature,omitempty"`
}

// CollisionKind classifies how a newly registered Symbol collided with
// an existing one sharing its simple name.
type CollisionKind string

const (
	CollisionDuplicateDefinition CollisionKind = "duplicate-definition"
	CollisionAmbiguousName       CollisionKind = "ambiguous-name"
	CollisionMisplacedModel      CollisionKind = "misplaced-model"
)

// Collision records two symbols that share a simple name.
type Collision struct {
	SimpleName string        `json:"simple_name"`
	Kind       CollisionKind `json:"kind"`
	Existing   Symbol        `json:"existing"`
	Incoming   Symbol        `json:"incoming"`
}
