// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"

	"github.com/codeforge/orchestrator/internal/orchestrator/external"
)

// ErrNoBackend is returned by the default backend factories: the
// orchestrator treats LlmClient, Validator, and Clarifier as external
// collaborators (SPEC_FULL.md §1) and ships no concrete implementation
// of any of them. A deployment wires its own by replacing these
// package-level variables before calling Execute, the same seam the
// teacher's cmd/orchestrator uses for LLM_BACKEND_TYPE selection.
var ErrNoBackend = errors.New("no backend registered for this collaborator")

// NewLLMClient constructs the LlmClient backend for the `run` command.
// Replace this variable at build time (or from an init in a sibling
// file pulled in by a build tag) to wire a concrete provider.
var NewLLMClient = func() (external.LlmClient, error) {
	return nil, errNoBackendFor("LlmClient")
}

// NewValidator constructs the Validator backend for the `run` command.
var NewValidator = func() (external.Validator, error) {
	return nil, errNoBackendFor("Validator")
}

// NewClarifier constructs the Clarifier backend for the `run` command.
var NewClarifier = func() (external.Clarifier, error) {
	return nil, errNoBackendFor("Clarifier")
}

func errNoBackendFor(name string) error {
	return fmt.Errorf("%w: %s", ErrNoBackend, name)
}
