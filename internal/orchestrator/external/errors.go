// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package external

import "errors"

// Plan-time errors (fatal; abort Run per SPEC_FULL.md §7).
var (
	ErrCycle               = errors.New("plan-time: dependency cycle")
	ErrPhantomDependency   = errors.New("plan-time: phantom dependency")
	ErrDecompositionFailed = errors.New("plan-time: decomposition failed")
)

// Generation-transient errors (retried with bounded exponential backoff).
var (
	ErrLLMHTTP    = errors.New("transient: llm http failure")
	ErrLLMEmpty   = errors.New("transient: llm returned empty response")
	ErrLLMTimeout = errors.New("transient: llm call timed out")
)

// Generation-content errors (feed the per-task repair loop).
var (
	ErrParseError        = errors.New("content: fragment failed to parse")
	ErrCompileError      = errors.New("content: fragment failed to compile")
	ErrContractViolation = errors.New("content: fragment violates a frozen contract")
)

// Merge-time and cancellation errors.
var (
	ErrUnresolvableConflict = errors.New("merge: unresolvable conflict")
	ErrCancelled            = errors.New("cancelled")
)

// Transient reports whether err represents a transient generation
// failure eligible for retry with backoff.
func Transient(err error) bool {
	return errors.Is(err, ErrLLMHTTP) || errors.Is(err, ErrLLMEmpty) || errors.Is(err, ErrLLMTimeout)
}
