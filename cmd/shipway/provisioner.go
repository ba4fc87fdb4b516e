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

	"github.com/jinterlante1206/AleutianShipway/pkg/logging"
)

// =============================================================================
// Package Manager Detection
// =============================================================================

// PackageManager identifies the remote distribution's package tooling.
type PackageManager int

const (
	// PkgUnknown means detection has not run yet.
	PkgUnknown PackageManager = iota

	// PkgApt covers Debian and Ubuntu.
	PkgApt

	// PkgDnf covers Fedora and newer RHEL family.
	PkgDnf

	// PkgYum covers older RHEL family.
	PkgYum

	// PkgUnsupported means no known package manager was found.
	PkgUnsupported
)

// String returns the tool name.
func (p PackageManager) String() string {
	switch p {
	case PkgApt:
		return "apt-get"
	case PkgDnf:
		return "dnf"
	case PkgYum:
		return "yum"
	case PkgUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// =============================================================================
// Provisioner
// =============================================================================

// Provisioner brings the remote host to a known-good baseline: docker
// with the compose plugin, and nginx, both installed and running.
//
// # Description
//
// Every action is probe-then-install: already-present tooling is
// verified and left alone, so re-running against a provisioned host is
// cheap and changes nothing. All remote package operations run under
// sudo and must be non-interactive (passwordless sudo on the target is
// a prerequisite).
type Provisioner struct {
	session  *RemoteSession
	log      *logging.Logger
	timeouts Timeouts

	pkg PackageManager
}

// NewProvisioner builds a provisioner over an established session.
func NewProvisioner(session *RemoteSession, log *logging.Logger, timeouts Timeouts) *Provisioner {
	return &Provisioner{session: session, log: log, timeouts: timeouts, pkg: PkgUnknown}
}

// detectPackageManager probes for a supported package manager, once.
func (p *Provisioner) detectPackageManager(ctx context.Context) (PackageManager, error) {
	if p.pkg != PkgUnknown {
		return p.pkg, nil
	}
	probes := []struct {
		tool string
		pkg  PackageManager
	}{
		{"apt-get", PkgApt},
		{"dnf", PkgDnf},
		{"yum", PkgYum},
	}
	for _, probe := range probes {
		res, err := p.session.Run(ctx, fmt.Sprintf("command -v %s", probe.tool), p.timeouts.Probe)
		if err != nil {
			return PkgUnknown, err
		}
		if res.Ok() {
			p.pkg = probe.pkg
			p.log.Info("detected package manager", "tool", probe.pkg.String())
			return p.pkg, nil
		}
	}
	p.pkg = PkgUnsupported
	return p.pkg, deploymentErrf("no supported package manager on remote host (need apt-get, dnf, or yum)")
}

// installPackages runs one non-interactive install for the detected
// package manager.
func (p *Provisioner) installPackages(ctx context.Context, packages ...string) error {
	pkgList := strings.Join(packages, " ")
	var cmd string
	switch p.pkg {
	case PkgApt:
		cmd = fmt.Sprintf(
			"sudo DEBIAN_FRONTEND=noninteractive apt-get update -qq && sudo DEBIAN_FRONTEND=noninteractive apt-get install -y -qq %s",
			pkgList)
	case PkgDnf:
		cmd = fmt.Sprintf("sudo dnf install -y -q %s", pkgList)
	case PkgYum:
		cmd = fmt.Sprintf("sudo yum install -y -q %s", pkgList)
	default:
		return deploymentErrf("cannot install %s: unsupported package manager", pkgList)
	}

	res, err := p.session.Run(ctx, cmd, p.timeouts.Provision)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return deploymentErrf("install %s failed: %w", pkgList,
			NewRemoteCommandError(cmd, res.ExitStatus, res.Output, nil))
	}
	return nil
}

// dockerPackages returns the distro package names for docker plus the
// compose plugin.
func (p *Provisioner) dockerPackages() []string {
	switch p.pkg {
	case PkgApt:
		return []string{"docker.io", "docker-compose-v2"}
	default:
		return []string{"docker", "docker-compose-plugin"}
	}
}

// hasCommand probes for a binary on the remote host.
func (p *Provisioner) hasCommand(ctx context.Context, name string) (bool, error) {
	res, err := p.session.Run(ctx, fmt.Sprintf("command -v %s", name), p.timeouts.Probe)
	if err != nil {
		return false, err
	}
	return res.Ok(), nil
}

// enableService enables and starts a systemd unit.
func (p *Provisioner) enableService(ctx context.Context, unit string) error {
	cmd := fmt.Sprintf("sudo systemctl enable --now %s", unit)
	res, err := p.session.Run(ctx, cmd, p.timeouts.Command)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return deploymentErrf("enable %s failed: %w", unit,
			NewRemoteCommandError(cmd, res.ExitStatus, res.Output, nil))
	}
	return nil
}

// Provision ensures docker, the compose plugin, and nginx are present
// and their services are running.
//
// # Outputs
//
// A StepResult per concern: docker, compose, nginx, group membership.
// Group membership failure degrades to a warning since deployments run
// docker under sudo anyway.
func (p *Provisioner) Provision(ctx context.Context) ([]StepResult, error) {
	if _, err := p.detectPackageManager(ctx); err != nil {
		return nil, err
	}

	var results []StepResult

	dockerPresent, err := p.hasCommand(ctx, "docker")
	if err != nil {
		return results, err
	}
	if !dockerPresent {
		p.log.Info("installing docker", "packages", p.dockerPackages())
		if err := p.installPackages(ctx, p.dockerPackages()...); err != nil {
			return results, err
		}
	}
	if err := p.enableService(ctx, "docker"); err != nil {
		return results, err
	}
	if err := p.verifyVersion(ctx, "docker", "docker --version"); err != nil {
		return results, err
	}
	results = append(results, StepResult{Name: "docker", Outcome: OutcomeSuccess})

	composeRes, err := p.verifyCompose(ctx)
	if err != nil {
		return results, err
	}
	results = append(results, composeRes)

	nginxPresent, err := p.hasCommand(ctx, "nginx")
	if err != nil {
		return results, err
	}
	if !nginxPresent {
		p.log.Info("installing nginx")
		if err := p.installPackages(ctx, "nginx"); err != nil {
			return results, err
		}
	}
	if err := p.enableService(ctx, "nginx"); err != nil {
		return results, err
	}
	if err := p.verifyVersion(ctx, "nginx", "nginx -v"); err != nil {
		return results, err
	}
	results = append(results, StepResult{Name: "nginx", Outcome: OutcomeSuccess})

	results = append(results, p.addDockerGroup(ctx))
	return results, nil
}

// verifyVersion confirms an installed tool actually reports a version.
// An install that leaves a broken binary behind fails here instead of
// mid-deployment.
func (p *Provisioner) verifyVersion(ctx context.Context, tool, cmd string) error {
	res, err := p.session.Run(ctx, cmd, p.timeouts.Probe)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return deploymentErrf("%s does not report a version: %w", tool,
			NewRemoteCommandError(cmd, res.ExitStatus, res.Output, nil))
	}
	return nil
}

// verifyCompose confirms some compose invocation works, installing the
// plugin if neither form is available.
func (p *Provisioner) verifyCompose(ctx context.Context) (StepResult, error) {
	probe := func() (bool, error) {
		res, err := p.session.Run(ctx, "docker compose version || docker-compose --version", p.timeouts.Probe)
		if err != nil {
			return false, err
		}
		return res.Ok(), nil
	}

	ok, err := probe()
	if err != nil {
		return StepResult{}, err
	}
	if !ok {
		if err := p.installPackages(ctx, p.dockerPackages()[1]); err != nil {
			return StepResult{}, err
		}
		if ok, err = probe(); err != nil {
			return StepResult{}, err
		}
	}
	if !ok {
		return StepResult{}, deploymentErrf("docker compose unavailable after install")
	}
	return StepResult{Name: "compose", Outcome: OutcomeSuccess}, nil
}

// addDockerGroup puts the SSH user in the docker group. Non-fatal.
func (p *Provisioner) addDockerGroup(ctx context.Context) StepResult {
	cmd := fmt.Sprintf("sudo usermod -aG docker %s", p.session.User)
	res, err := p.session.Run(ctx, cmd, p.timeouts.Command)
	if err != nil || !res.Ok() {
		p.log.Warn("could not add user to docker group", "user", p.session.User)
		return StepResult{
			Name:    "docker group",
			Outcome: OutcomeWarning,
			Reason:  "user not added to docker group; docker runs via sudo",
		}
	}
	return StepResult{Name: "docker group", Outcome: OutcomeSuccess}
}
