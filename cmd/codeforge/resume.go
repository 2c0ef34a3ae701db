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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeforge/orchestrator/internal/orchestrator/checkpoint"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

// runResumeCommand loads the session's latest checkpoint and reports
// whether the run it belongs to finished or still has pending work.
// Actually re-entering the scheduler from a loaded checkpoint would
// require replaying decomposition deterministically to rebuild the
// same task graph, which the LlmClient contract (SPEC_FULL.md §1) does
// not guarantee; until a concrete backend offers that guarantee,
// resume stops at reporting the checkpoint's state.
func runResumeCommand(cmd *cobra.Command, args []string) error {
	cp, err := checkpoint.Load(flagCheckpointDir)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	fmt.Print(checkpoint.RenderView(cp))
	if cp.Status == model.ExecutionComplete {
		fmt.Println("\nrun already complete; nothing to resume.")
		return nil
	}
	fmt.Printf("\n%d task(s) still pending; re-run with the same request to continue from here.\n", len(cp.PendingIDs))
	return nil
}
