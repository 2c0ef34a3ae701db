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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	flagOutputDir           string
	flagProjectName         string
	flagFailurePolicy       string
	flagMaxAttempts         int
	flagWorkerCount         int
	flagMaxLinesPerTask     int
	flagCheckpointEveryN    int
	flagEnableContractFirst bool
	flagEnableComplexity    bool
	flagLLMRateLimit        float64
	flagCheckpointDir       string
	flagIndexDir            string
	flagConfigFile          string

	rootCmd = &cobra.Command{
		Use:   "codeforge",
		Short: "Decomposes a request into a task graph and synthesizes the result",
		Long: `codeforge drives a task-graph code-synthesis run end to end:
decompose a request, execute the resulting tasks under a bounded
worker pool, merge their output, and checkpoint progress along the way.`,
	}

	runCmd = &cobra.Command{
		Use:   "run [request]",
		Short: "Start a new orchestration run for the given request",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunCommand, // Defined in run.go
	}

	resumeCmd = &cobra.Command{
		Use:   "resume",
		Short: "Load the latest checkpoint and print its human-readable view",
		RunE:  runResumeCommand, // Defined in resume.go
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect",
		Short: "Load a checkpoint and print its human-readable view without resuming",
		RunE:  runInspectCommand, // Defined in inspect.go
	}
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&flagOutputDir, "output-dir", "", "directory to persist checkpoints and generated output")
	runCmd.Flags().StringVar(&flagProjectName, "project-name", "", "root namespace for the generated corpus")
	runCmd.Flags().StringVar(&flagFailurePolicy, "failure-policy", "", "block | fail-fast | skip-failed | skip-missing (empty = skip-failed)")
	runCmd.Flags().IntVar(&flagMaxAttempts, "max-attempts", 0, "generate/regenerate attempts per task (0 = default)")
	runCmd.Flags().IntVar(&flagWorkerCount, "worker-count", 0, "bounded worker pool size (0 = auto)")
	runCmd.Flags().IntVar(&flagMaxLinesPerTask, "max-lines-per-task", 0, "complexity-analysis split threshold (0 = default)")
	runCmd.Flags().IntVar(&flagCheckpointEveryN, "checkpoint-every-n", 0, "emit a checkpoint every N task completions (0 = default)")
	runCmd.Flags().BoolVar(&flagEnableContractFirst, "enable-contract-first", false, "pre-register and freeze shared contracts before execution")
	runCmd.Flags().BoolVar(&flagEnableComplexity, "enable-complexity-analysis", false, "split oversize tasks before execution")
	runCmd.Flags().Float64Var(&flagLLMRateLimit, "llm-rate-limit", 0, "outbound LLM calls per second (0 = unthrottled)")
	runCmd.Flags().StringVar(&flagIndexDir, "index-dir", "", "directory for a durable symbol index spanning multiple invocations (empty = in-memory only)")
	runCmd.Flags().StringVar(&flagConfigFile, "config", "", "YAML file of run-profile defaults; flags set to non-zero values override it")

	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().StringVar(&flagCheckpointDir, "checkpoint-dir", "", "directory holding checkpoints (required)")
	_ = resumeCmd.MarkFlagRequired("checkpoint-dir")

	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&flagCheckpointDir, "checkpoint-dir", "", "directory holding checkpoints (required)")
	_ = inspectCmd.MarkFlagRequired("checkpoint-dir")
}
