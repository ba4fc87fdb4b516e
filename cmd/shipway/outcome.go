// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import "time"

// Outcome classifies the result of a single deployment step or probe.
//
// # Description
//
// Every component returns an Outcome rather than terminating the process:
// only the driver (and ultimately main) is permitted to exit. Fatal
// outcomes halt the pipeline, Warning outcomes are recorded and execution
// continues, Success outcomes are silent beyond logging.
type Outcome int

const (
	// OutcomeSuccess means the step completed and left the remote host in
	// the desired state.
	OutcomeSuccess Outcome = iota

	// OutcomeWarning means the step hit a tolerated failure (stopping a
	// container that doesn't exist, group-add for an existing member, a
	// post-deploy probe miss). Execution continues.
	OutcomeWarning

	// OutcomeFatal means the step failed in a way no later step can
	// recover from. The pipeline short-circuits to the Failed state.
	OutcomeFatal
)

// String returns "success", "warning", or "fatal".
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeWarning:
		return "warning"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// StepResult records what happened during one pipeline step.
//
// Results are aggregated by the driver for the final summary and persisted
// to the run-history store.
type StepResult struct {
	// Name is the step's state name (e.g. "provision remote").
	Name string

	// Outcome is the step's classification.
	Outcome Outcome

	// Reason is a human-readable explanation for non-success outcomes.
	Reason string

	// Err is the underlying error for Fatal outcomes (nil otherwise).
	Err error

	// Duration is how long the step ran.
	Duration time.Duration
}

// ProbeResult records one post-deploy validation probe.
//
// Probes never produce Fatal outcomes: validation surfaces the
// deployment's actual state instead of aborting after the fact.
type ProbeResult struct {
	// Name identifies the probe (e.g. "proxy service active").
	Name string

	// Outcome is OutcomeSuccess or OutcomeWarning.
	Outcome Outcome

	// Detail carries probe output worth showing (status text, HTTP code).
	Detail string
}
