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
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jinterlante1206/AleutianShipway/pkg/logging"
)

// =============================================================================
// Deployment Validator
// =============================================================================

// DeployValidator runs the post-deployment probe battery.
//
// # Description
//
// By the time validation runs, the deployment has already succeeded;
// these probes report on it rather than decide it. Every probe yields
// Success or Warning, never a fatal outcome, so a flaky external
// network path cannot fail a deployment whose containers and proxy are
// demonstrably up.
//
// Remote probes run sequentially over the shared SSH session. The
// driver-side HTTP probes talk to the server's public address and run
// concurrently; they share no state beyond the results slice each
// goroutine writes its own entry into.
type DeployValidator struct {
	session  *RemoteSession
	log      *logging.Logger
	timeouts Timeouts

	// httpClient does the driver-side probes. Swappable in tests.
	httpClient *http.Client
}

// NewDeployValidator builds a validator over the session.
func NewDeployValidator(session *RemoteSession, log *logging.Logger, timeouts Timeouts) *DeployValidator {
	return &DeployValidator{
		session:  session,
		log:      log,
		timeouts: timeouts,
		httpClient: &http.Client{
			Timeout: timeouts.Probe,
		},
	}
}

// remoteProbe runs one remote command and converts it into a probe
// result.
func (v *DeployValidator) remoteProbe(ctx context.Context, name, cmd, failDetail string) ProbeResult {
	res, err := v.session.Run(ctx, cmd, v.timeouts.Probe)
	if err != nil {
		return ProbeResult{Name: name, Outcome: OutcomeWarning, Detail: err.Error()}
	}
	if !res.Ok() {
		detail := failDetail
		if out := strings.TrimSpace(res.Output); out != "" {
			detail = fmt.Sprintf("%s: %s", failDetail, out)
		}
		return ProbeResult{Name: name, Outcome: OutcomeWarning, Detail: detail}
	}
	return ProbeResult{Name: name, Outcome: OutcomeSuccess}
}

// containerProbeCmd returns the mode-appropriate "is anything running"
// check.
func containerProbeCmd(target *DeploymentTarget) string {
	if target.Mode == ModeCompose {
		return fmt.Sprintf(
			"test -n \"$(cd %s && sudo docker compose -f %s ps -q 2>/dev/null || sudo docker-compose -f %s ps -q)\"",
			target.RemoteDir, target.ComposeFile, target.ComposeFile)
	}
	return fmt.Sprintf("test -n \"$(sudo docker ps -q --filter name=%s --filter status=running)\"",
		target.AppName)
}

// Validate runs the full battery and returns one result per probe.
func (v *DeployValidator) Validate(ctx context.Context, target *DeploymentTarget, appPort int) []ProbeResult {
	results := []ProbeResult{
		v.remoteProbe(ctx, "docker service",
			"systemctl is-active docker", "docker service is not active"),
		v.remoteProbe(ctx, "nginx service",
			"systemctl is-active nginx", "nginx service is not active"),
		v.remoteProbe(ctx, "containers running",
			containerProbeCmd(target), "no running containers found"),
		v.remoteProbe(ctx, "app responds on loopback",
			fmt.Sprintf("curl -sf -m %d -o /dev/null http://127.0.0.1:%d/", int(v.timeouts.Probe.Seconds()), appPort),
			"application did not answer on its loopback port"),
		v.remoteProbe(ctx, "proxy responds on loopback",
			fmt.Sprintf("curl -sf -m %d -o /dev/null http://127.0.0.1:80/", int(v.timeouts.Probe.Seconds())),
			"nginx did not answer on port 80"),
	}

	results = append(results, v.externalProbes(ctx)...)

	for _, r := range results {
		if r.Outcome == OutcomeWarning {
			v.log.Warn("validation probe", "probe", r.Name, "detail", r.Detail)
		} else {
			v.log.Debug("validation probe passed", "probe", r.Name)
		}
	}
	return results
}

// externalProbes hits the server's public address from this machine,
// checking the root path and the proxy health endpoint concurrently.
func (v *DeployValidator) externalProbes(ctx context.Context) []ProbeResult {
	paths := []struct {
		name string
		path string
	}{
		{"external root", "/"},
		{"external health", "/health"},
	}

	results := make([]ProbeResult, len(paths))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i, probe := range paths {
		g.Go(func() error {
			res := v.httpProbe(gctx, probe.name, probe.path)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	// Goroutines only record warnings, never errors
	_ = g.Wait()
	return results
}

// httpProbe performs one driver-side GET against the public address.
func (v *DeployValidator) httpProbe(ctx context.Context, name, path string) ProbeResult {
	url := fmt.Sprintf("http://%s%s", v.session.Addr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeResult{Name: name, Outcome: OutcomeWarning, Detail: err.Error()}
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return ProbeResult{Name: name, Outcome: OutcomeWarning,
			Detail: fmt.Sprintf("GET %s: %v", url, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return ProbeResult{Name: name, Outcome: OutcomeWarning,
			Detail: fmt.Sprintf("GET %s returned %s", url, resp.Status)}
	}
	return ProbeResult{Name: name, Outcome: OutcomeSuccess,
		Detail: fmt.Sprintf("%s -> %s", path, resp.Status)}
}
