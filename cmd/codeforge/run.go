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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeforge/orchestrator/internal/orchestrator/config"
	"github.com/codeforge/orchestrator/internal/orchestrator/model"
	"github.com/codeforge/orchestrator/internal/orchestrator/orchestrator"
)

func runRunCommand(cmd *cobra.Command, args []string) error {
	llm, err := NewLLMClient()
	if err != nil {
		return err
	}
	validator, err := NewValidator()
	if err != nil {
		return err
	}
	clarifier, err := NewClarifier()
	if err != nil {
		return err
	}

	opts := model.Options{
		OutputDirectory:          flagOutputDir,
		ProjectName:              flagProjectName,
		FailurePolicy:            model.FailurePolicy(flagFailurePolicy),
		MaxAttempts:              flagMaxAttempts,
		WorkerCount:              flagWorkerCount,
		MaxLinesPerTask:          flagMaxLinesPerTask,
		CheckpointEveryN:         flagCheckpointEveryN,
		EnableContractFirst:      flagEnableContractFirst,
		EnableComplexityAnalysis: flagEnableComplexity,
		LLMRateLimitPerSecond:    flagLLMRateLimit,
		IndexDirectory:           flagIndexDir,
	}

	if flagConfigFile != "" {
		profile, err := config.LoadFile(flagConfigFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		opts = profile.ApplyDefaults(opts)
	}

	o := orchestrator.New(llm, validator, clarifier)
	report, err := o.Run(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if !report.Success {
		os.Exit(int(report.ExitCode))
	}
	return nil
}
