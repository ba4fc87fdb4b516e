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
	"time"

	"github.com/jinterlante1206/AleutianShipway/pkg/ux"
)

// =============================================================================
// Run Summary Rendering
// =============================================================================

// renderStepSummary prints the per-step table after a run.
func renderStepSummary(results []StepResult) {
	if len(results) == 0 {
		return
	}
	ux.Titlef("Run summary")
	for _, r := range results {
		line := r.Name
		if r.Duration > 0 {
			line = fmt.Sprintf("%s (%s)", r.Name, r.Duration.Round(100*time.Millisecond))
		}
		switch r.Outcome {
		case OutcomeSuccess:
			ux.Successf("%s", line)
		case OutcomeWarning:
			ux.Warnf("%s: %s", line, r.Reason)
		default:
			ux.Errorf("%s: %s", line, r.Reason)
		}
	}
}

// renderProbeSummary prints the validation battery outcomes.
func renderProbeSummary(probes []ProbeResult) {
	if len(probes) == 0 {
		return
	}
	ux.Titlef("Validation")
	for _, p := range probes {
		switch p.Outcome {
		case OutcomeSuccess:
			if p.Detail != "" {
				ux.Successf("%s: %s", p.Name, p.Detail)
			} else {
				ux.Successf("%s", p.Name)
			}
		default:
			ux.Warnf("%s: %s", p.Name, p.Detail)
		}
	}
}

// renderFailure prints the terminal failure line with a pointer to the
// log file for the full trace.
func renderFailure(err error, logPath string) {
	ux.Errorf("deployment failed: %v", err)
	if out := ExtractOutput(err); out != "" {
		ux.Mutedf("%s", out)
	}
	if logPath != "" {
		ux.Mutedf("full log: %s", logPath)
	}
}

// renderSuccess prints the closing line for a completed deployment.
func renderSuccess(serverAddr string, elapsed time.Duration) {
	ux.Successf("deployed to http://%s/ in %s", serverAddr, elapsed.Round(time.Second))
}
