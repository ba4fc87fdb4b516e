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
	"context"
	"fmt"
	"os"

	"github.com/jinterlante1206/AleutianShipway/cmd/shipway/config"
	"github.com/jinterlante1206/AleutianShipway/pkg/logging"
)

// =============================================================================
// Cleaner
// =============================================================================

// Cleaner tears down everything a deployment created, in reverse
// order: proxy site, containers, images, remote files, local checkout.
//
// # Description
//
// Cleanup is best effort end to end. A host that was never deployed
// to, or was already partially cleaned, produces warnings rather than
// failures; the point is to converge on "nothing left", not to audit
// what was there. The only hard requirement is SSH connectivity, since
// without it there is nothing to do.
type Cleaner struct {
	session   *RemoteSession
	proxy     *ProxyConfigurer
	log       *logging.Logger
	timeouts  Timeouts
	remoteDir string
	appName   string

	// localDir is the local checkout to remove; empty means skip.
	localDir string
}

// NewCleaner builds a cleaner over an established session.
func NewCleaner(session *RemoteSession, log *logging.Logger, timeouts Timeouts, cfg *config.ShipwayConfig, appName, localDir string) *Cleaner {
	return &Cleaner{
		session:   session,
		proxy:     NewProxyConfigurer(session, log, timeouts, cfg.Proxy),
		log:       log,
		timeouts:  timeouts,
		remoteDir: cfg.Remote.DeployDir,
		appName:   appName,
		localDir:  localDir,
	}
}

// tolerated runs a remote command and folds the outcome into a
// StepResult, warning instead of failing.
func (c *Cleaner) tolerated(ctx context.Context, name, cmd string) StepResult {
	res, err := c.session.Run(ctx, cmd, c.timeouts.Command)
	if err != nil {
		return StepResult{Name: name, Outcome: OutcomeWarning, Reason: err.Error()}
	}
	if !res.Ok() {
		return StepResult{Name: name, Outcome: OutcomeWarning,
			Reason: fmt.Sprintf("exit status %d", res.ExitStatus)}
	}
	return StepResult{Name: name, Outcome: OutcomeSuccess}
}

// Run executes the teardown sequence and reports per-step outcomes.
func (c *Cleaner) Run(ctx context.Context) []StepResult {
	var results []StepResult

	// Proxy first so no traffic is routed at containers mid-teardown
	if err := c.proxy.Remove(ctx); err != nil {
		c.log.Warn("proxy removal incomplete", "error", err)
		results = append(results, StepResult{Name: "remove proxy site", Outcome: OutcomeWarning, Reason: err.Error(), Err: err})
	} else {
		results = append(results, StepResult{Name: "remove proxy site", Outcome: OutcomeSuccess})
	}

	// Compose teardown covers compose deployments; the rm -f covers
	// dockerfile ones. Running both is harmless either way.
	results = append(results, c.tolerated(ctx, "stop compose services",
		fmt.Sprintf("cd %s 2>/dev/null && (sudo docker compose down --remove-orphans || sudo docker-compose down --remove-orphans)", c.remoteDir)))
	results = append(results, c.tolerated(ctx, "remove container",
		fmt.Sprintf("sudo docker rm -f %s", c.appName)))
	results = append(results, c.tolerated(ctx, "remove image",
		fmt.Sprintf("sudo docker rmi -f %s:latest", c.appName)))
	results = append(results, c.tolerated(ctx, "prune docker leftovers",
		"sudo docker system prune -f --volumes"))
	results = append(results, c.tolerated(ctx, "remove deploy directory",
		fmt.Sprintf("sudo rm -rf %s", c.remoteDir)))

	results = append(results, c.removeLocalCheckout())

	return results
}

// removeLocalCheckout deletes the local workspace copy.
func (c *Cleaner) removeLocalCheckout() StepResult {
	const name = "remove local checkout"
	if c.localDir == "" {
		return StepResult{Name: name, Outcome: OutcomeSuccess, Reason: "no local checkout"}
	}
	if err := os.RemoveAll(c.localDir); err != nil {
		return StepResult{Name: name, Outcome: OutcomeWarning, Reason: err.Error(), Err: err}
	}
	return StepResult{Name: name, Outcome: OutcomeSuccess}
}
