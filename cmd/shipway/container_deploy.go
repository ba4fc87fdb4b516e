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
	"strings"
	"time"

	"github.com/jinterlante1206/AleutianShipway/pkg/logging"
)

// =============================================================================
// Container Deployer
// =============================================================================

// ContainerDeployer tears down the previous release and brings up the
// new one on the remote host.
//
// # Description
//
// Two modes, one contract. Compose mode delegates lifecycle to
// docker compose against the shipped compose file. Dockerfile mode
// builds a single image and runs one container bound to loopback only;
// nothing reaches it except through the reverse proxy.
//
// Teardown of the previous release tolerates failure (there may be no
// previous release). Build and start do not.
type ContainerDeployer struct {
	session  *RemoteSession
	log      *logging.Logger
	timeouts Timeouts

	// composeCmd is resolved once per run: "docker compose" when the
	// plugin is present, "docker-compose" as the legacy fallback.
	composeCmd string

	// settle is how long to wait before the first health inspection.
	settle time.Duration
}

// NewContainerDeployer builds a deployer over an established session.
func NewContainerDeployer(session *RemoteSession, log *logging.Logger, timeouts Timeouts) *ContainerDeployer {
	return &ContainerDeployer{
		session:  session,
		log:      log,
		timeouts: timeouts,
		settle:   containerSettleInterval,
	}
}

// resolveComposeCmd picks the compose invocation form.
func (d *ContainerDeployer) resolveComposeCmd(ctx context.Context) (string, error) {
	if d.composeCmd != "" {
		return d.composeCmd, nil
	}
	res, err := d.session.Run(ctx, "docker compose version", d.timeouts.Probe)
	if err != nil {
		return "", err
	}
	if res.Ok() {
		d.composeCmd = "docker compose"
	} else {
		d.composeCmd = "docker-compose"
	}
	return d.composeCmd, nil
}

// run executes a remote command and converts a non-zero status into a
// DeploymentError carrying the command output.
func (d *ContainerDeployer) run(ctx context.Context, cmd string, timeout time.Duration, what string) error {
	res, err := d.session.Run(ctx, cmd, timeout)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return deploymentErrf("%s failed: %w", what,
			NewRemoteCommandError(cmd, res.ExitStatus, res.Output, nil))
	}
	return nil
}

// runTolerated executes a remote command and logs, rather than
// returns, any failure.
func (d *ContainerDeployer) runTolerated(ctx context.Context, cmd string, what string) {
	res, err := d.session.Run(ctx, cmd, d.timeouts.Command)
	if err != nil {
		d.log.Debug("tolerated remote failure", "action", what, "error", err)
		return
	}
	if !res.Ok() {
		d.log.Debug("tolerated remote failure", "action", what, "status", res.ExitStatus)
	}
}

// Deploy replaces the running release with the freshly transferred one.
//
// # Error Conditions
//
// Build or start failure is a DeploymentError (exit 4). Absence of a
// previous release is not a failure.
func (d *ContainerDeployer) Deploy(ctx context.Context, target *DeploymentTarget, appPort int) error {
	switch target.Mode {
	case ModeCompose:
		return d.deployCompose(ctx, target)
	case ModeDockerfile:
		return d.deployDockerfile(ctx, target, appPort)
	default:
		return deploymentErrf("unknown deploy mode %v", target.Mode)
	}
}

func (d *ContainerDeployer) deployCompose(ctx context.Context, target *DeploymentTarget) error {
	compose, err := d.resolveComposeCmd(ctx)
	if err != nil {
		return err
	}
	base := fmt.Sprintf("cd %s && sudo %s -f %s", target.RemoteDir, compose, target.ComposeFile)

	d.runTolerated(ctx, base+" down --remove-orphans", "compose down")

	d.log.Info("building images", "mode", "compose")
	if err := d.run(ctx, base+" build --no-cache", d.timeouts.Build, "compose build"); err != nil {
		return err
	}

	d.log.Info("starting services", "mode", "compose")
	return d.run(ctx, base+" up -d --remove-orphans", d.timeouts.Command, "compose up")
}

func (d *ContainerDeployer) deployDockerfile(ctx context.Context, target *DeploymentTarget, appPort int) error {
	// Clear the named container and anything else squatting on the
	// app port; both may legitimately not exist
	d.runTolerated(ctx,
		fmt.Sprintf("sudo docker rm -f %s", target.AppName), "remove previous container")
	d.runTolerated(ctx,
		fmt.Sprintf("sudo docker ps -q --filter publish=%d | xargs -r sudo docker rm -f", appPort),
		"free app port")

	d.log.Info("building image", "mode", "dockerfile", "image", target.AppName)
	build := fmt.Sprintf("cd %s && sudo docker build -t %s:latest .", target.RemoteDir, target.AppName)
	if err := d.run(ctx, build, d.timeouts.Build, "docker build"); err != nil {
		return err
	}

	d.log.Info("starting container", "name", target.AppName, "port", appPort)
	run := fmt.Sprintf(
		"sudo docker run -d --name %s --restart unless-stopped -p 127.0.0.1:%d:%d %s:latest",
		target.AppName, appPort, appPort, target.AppName)
	return d.run(ctx, run, d.timeouts.Command, "docker run")
}

// CheckHealth verifies the new release is actually running after a
// short settle period.
//
// # Description
//
// A container that starts and immediately crash-loops should fail the
// deployment rather than limp into proxy configuration. The settle
// delay gives fast-crashing processes time to die before we look.
func (d *ContainerDeployer) CheckHealth(ctx context.Context, target *DeploymentTarget) error {
	select {
	case <-time.After(d.settle):
	case <-ctx.Done():
		return ctx.Err()
	}

	switch target.Mode {
	case ModeCompose:
		return d.checkComposeHealth(ctx, target)
	default:
		return d.checkContainerHealth(ctx, target)
	}
}

func (d *ContainerDeployer) checkComposeHealth(ctx context.Context, target *DeploymentTarget) error {
	compose, err := d.resolveComposeCmd(ctx)
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf("cd %s && sudo %s -f %s ps --services --filter status=running",
		target.RemoteDir, compose, target.ComposeFile)
	res, err := d.session.Run(ctx, cmd, d.timeouts.Probe)
	if err != nil {
		return err
	}
	if !res.Ok() || strings.TrimSpace(res.Output) == "" {
		return deploymentErrf("no compose services running after startup: %w",
			NewRemoteCommandError(cmd, res.ExitStatus, res.Output, nil))
	}
	return nil
}

func (d *ContainerDeployer) checkContainerHealth(ctx context.Context, target *DeploymentTarget) error {
	cmd := fmt.Sprintf("sudo docker inspect -f '{{.State.Running}}' %s", target.AppName)
	res, err := d.session.Run(ctx, cmd, d.timeouts.Probe)
	if err != nil {
		return err
	}
	if !res.Ok() || strings.TrimSpace(res.Output) != "true" {
		// Pull the tail of the logs so the summary says WHY it died
		logs, lerr := d.session.Run(ctx,
			fmt.Sprintf("sudo docker logs --tail 20 %s 2>&1", target.AppName), d.timeouts.Probe)
		detail := ""
		if lerr == nil {
			detail = strings.TrimSpace(logs.Output)
		}
		return deploymentErrf("container %s is not running after startup: %w",
			target.AppName, NewRemoteCommandError(cmd, res.ExitStatus, detail, nil))
	}
	return nil
}
