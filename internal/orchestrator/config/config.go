// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads a YAML file of Options defaults for the `run`
// command, so a deployment can check a fixed run profile into its repo
// instead of repeating the same dozen flags on every invocation. CLI
// flags take precedence over the file: File.ApplyDefaults only supplies
// values for fields the caller has left at their zero value, the same
// fallback relationship the teacher's config package uses between an
// external YAML override and its embedded default.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

// MaxFileSize bounds how large a config file LoadFile will read, the
// same defensive limit the teacher's YAML config loader applies before
// ever unmarshalling untrusted input.
const MaxFileSize = 1 << 20 // 1MB

// File is the on-disk shape of a run profile. Every field mirrors one
// of model.Options's. A key absent from the file and a key set to its
// zero value both leave the field zero, and ApplyDefaults treats
// either as unset.
type File struct {
	ProjectName              string  `yaml:"project_name"`
	FailurePolicy            string  `yaml:"failure_policy"`
	MaxAttempts              int     `yaml:"max_attempts"`
	WorkerCount              int     `yaml:"worker_count"`
	MaxLinesPerTask          int     `yaml:"max_lines_per_task"`
	CheckpointEveryN         int     `yaml:"checkpoint_every_n"`
	EnableContractFirst      bool    `yaml:"enable_contract_first"`
	EnableComplexityAnalysis bool    `yaml:"enable_complexity_analysis"`
	LLMRateLimitPerSecond    float64 `yaml:"llm_rate_limit_per_second"`
	IndexDirectory           string  `yaml:"index_directory"`
}

// LoadFile reads and parses the YAML run profile at path.
func LoadFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat config file %s: %w", path, err)
	}
	if info.Size() > MaxFileSize {
		return File{}, fmt.Errorf("config file %s exceeds %d bytes", path, MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return f, nil
}

// ApplyDefaults copies every non-zero field of f into opts wherever
// opts's corresponding field is still its zero value, so a CLI flag
// already applied to opts with a non-zero value wins over the file. A
// flag set explicitly to its zero value (0, false, "") counts as unset
// and is replaced by the file's value.
func (f File) ApplyDefaults(opts model.Options) model.Options {
	if opts.ProjectName == "" {
		opts.ProjectName = f.ProjectName
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = model.FailurePolicy(f.FailurePolicy)
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = f.MaxAttempts
	}
	if opts.WorkerCount == 0 {
		opts.WorkerCount = f.WorkerCount
	}
	if opts.MaxLinesPerTask == 0 {
		opts.MaxLinesPerTask = f.MaxLinesPerTask
	}
	if opts.CheckpointEveryN == 0 {
		opts.CheckpointEveryN = f.CheckpointEveryN
	}
	if !opts.EnableContractFirst {
		opts.EnableContractFirst = f.EnableContractFirst
	}
	if !opts.EnableComplexityAnalysis {
		opts.EnableComplexityAnalysis = f.EnableComplexityAnalysis
	}
	if opts.LLMRateLimitPerSecond == 0 {
		opts.LLMRateLimitPerSecond = f.LLMRateLimitPerSecond
	}
	if opts.IndexDirectory == "" {
		opts.IndexDirectory = f.IndexDirectory
	}
	return opts
}
