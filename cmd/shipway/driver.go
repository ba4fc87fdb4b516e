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
	"errors"
	"time"

	"github.com/jinterlante1206/AleutianShipway/cmd/shipway/config"
	"github.com/jinterlante1206/AleutianShipway/pkg/logging"
)

// =============================================================================
// Deployment States
// =============================================================================

// DeployState names a position in the fixed deployment sequence.
type DeployState int

const (
	// StateCollectParameters gathers and validates inputs.
	StateCollectParameters DeployState = iota

	// StateSynchronizeRepository clones or updates the checkout.
	StateSynchronizeRepository

	// StateVerifyDescriptor resolves compose vs dockerfile mode.
	StateVerifyDescriptor

	// StateTestConnectivity establishes the SSH session.
	StateTestConnectivity

	// StateProvisionRemote installs docker, compose, and nginx.
	StateProvisionRemote

	// StateTransferFiles ships the checkout to the remote host.
	StateTransferFiles

	// StateDeployContainers builds and starts the release.
	StateDeployContainers

	// StateCheckContainerHealth confirms the release stayed up.
	StateCheckContainerHealth

	// StateConfigureProxy installs and activates the nginx site.
	StateConfigureProxy

	// StateValidateDeployment runs the probe battery.
	StateValidateDeployment

	// StateDone is the terminal success state.
	StateDone

	// StateFailed is the terminal failure state.
	StateFailed
)

// String returns the human-readable state name.
func (s DeployState) String() string {
	switch s {
	case StateCollectParameters:
		return "collect parameters"
	case StateSynchronizeRepository:
		return "synchronize repository"
	case StateVerifyDescriptor:
		return "verify descriptor"
	case StateTestConnectivity:
		return "test connectivity"
	case StateProvisionRemote:
		return "provision remote"
	case StateTransferFiles:
		return "transfer files"
	case StateDeployContainers:
		return "deploy containers"
	case StateCheckContainerHealth:
		return "check container health"
	case StateConfigureProxy:
		return "configure proxy"
	case StateValidateDeployment:
		return "validate deployment"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// =============================================================================
// Step Runner
// =============================================================================

// pipelineStep is one unit of the deployment sequence.
type pipelineStep struct {
	State DeployState
	Run   func(ctx context.Context) error
}

// StepCallbacks lets the caller observe step boundaries, typically for
// spinner updates. All fields are optional.
type StepCallbacks struct {
	OnStart    func(state DeployState)
	OnComplete func(result StepResult)
	OnFail     func(result StepResult)
}

// runSteps executes steps strictly in order, stopping at the first
// failure. Cancellation between steps is treated as a step failure of
// the step that would have run next.
func runSteps(ctx context.Context, steps []pipelineStep, cb StepCallbacks) ([]StepResult, error) {
	var results []StepResult
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			result := StepResult{Name: step.State.String(), Outcome: OutcomeFatal, Err: err, Reason: "interrupted"}
			results = append(results, result)
			if cb.OnFail != nil {
				cb.OnFail(result)
			}
			return results, err
		}

		if cb.OnStart != nil {
			cb.OnStart(step.State)
		}
		start := time.Now()
		err := step.Run(ctx)
		result := StepResult{
			Name:     step.State.String(),
			Duration: time.Since(start),
		}
		if err != nil {
			result.Outcome = OutcomeFatal
			result.Err = err
			result.Reason = err.Error()
			results = append(results, result)
			if cb.OnFail != nil {
				cb.OnFail(result)
			}
			return results, err
		}
		result.Outcome = OutcomeSuccess
		results = append(results, result)
		if cb.OnComplete != nil {
			cb.OnComplete(result)
		}
	}
	return results, nil
}

// =============================================================================
// Driver
// =============================================================================

// connectFunc abstracts session establishment so tests can inject a
// scripted channel.
type connectFunc func(ctx context.Context, user, addr string, port int, keyPath string, timeout time.Duration) (*RemoteSession, error)

// Driver owns one deployment or cleanup run end to end.
//
// # Description
//
// The driver is the only component that knows the step order; every
// step is a thin closure over the specialist components. It is also
// the choke point for failure policy: the first fatal error stops the
// sequence, and the error's category decides the process exit status.
// Nothing below the driver terminates the process.
type Driver struct {
	cfg          *config.ShipwayConfig
	log          *logging.Logger
	pm           ProcessManager
	spec         *DeploymentSpec
	timeouts     Timeouts
	workspaceDir string
	callbacks    StepCallbacks

	connect connectFunc
	settle  time.Duration

	// run state, populated as steps complete
	localDir string
	target   *DeploymentTarget
	session  *RemoteSession
	state    DeployState
	results  []StepResult
	probes   []ProbeResult
	started  time.Time
}

// NewDriver assembles a driver for one run.
func NewDriver(cfg *config.ShipwayConfig, log *logging.Logger, pm ProcessManager, spec *DeploymentSpec, workspaceDir string) *Driver {
	timeouts := FromConfigSeconds(
		cfg.Timeouts.ConnectSeconds,
		cfg.Timeouts.CommandSeconds,
		cfg.Timeouts.ProvisionSeconds,
		cfg.Timeouts.BuildSeconds,
		cfg.Timeouts.ProbeSeconds,
	)

	return &Driver{
		cfg:          cfg,
		log:          log,
		pm:           pm,
		spec:         spec,
		timeouts:     timeouts,
		workspaceDir: workspaceDir,
		connect:      ConnectSession,
		settle:       containerSettleInterval,
		state:        StateCollectParameters,
	}
}

// SetCallbacks registers step observers. Must be called before Deploy.
func (d *Driver) SetCallbacks(cb StepCallbacks) {
	d.callbacks = cb
}

// State returns the terminal state of the run.
func (d *Driver) State() DeployState {
	return d.state
}

// Results returns per-step outcomes.
func (d *Driver) Results() []StepResult {
	return d.results
}

// Probes returns the validation battery outcomes, if validation ran.
func (d *Driver) Probes() []ProbeResult {
	return d.probes
}

// StartedAt returns when the run began.
func (d *Driver) StartedAt() time.Time {
	return d.started
}

// Target returns the resolved deployment target, or nil when the run
// stopped before descriptor verification.
func (d *Driver) Target() *DeploymentTarget {
	return d.target
}

// newDeployer builds a container deployer with the driver's settle
// interval.
func (d *Driver) newDeployer() *ContainerDeployer {
	dep := NewContainerDeployer(d.session, d.log, d.timeouts)
	dep.settle = d.settle
	return dep
}

// closeSession releases the SSH connection if one was established.
func (d *Driver) closeSession() {
	if d.session != nil {
		if err := d.session.Close(); err != nil {
			d.log.Debug("session close", "error", err)
		}
		d.session = nil
	}
}

// Deploy runs the full deployment sequence.
//
// # Outputs
//
// On failure the returned error is categorized; CategoryOf maps it to
// the process exit status. A context cancellation anywhere in the
// sequence surfaces as CategoryInterrupted.
func (d *Driver) Deploy(ctx context.Context) error {
	d.started = time.Now()
	defer d.closeSession()
	// The token must not outlive the run regardless of where it stops
	defer d.spec.DiscardToken()

	steps := []pipelineStep{
		{StateCollectParameters, func(ctx context.Context) error {
			if err := d.spec.CollectMissing(d.log); err != nil {
				return err
			}
			checkMemoryLock(d.log)
			return d.spec.Validate()
		}},
		{StateSynchronizeRepository, func(ctx context.Context) error {
			sync := NewRepoSynchronizer(d.pm, d.log, d.workspaceDir)
			dir, err := sync.Sync(ctx, d.spec)
			if err != nil {
				return err
			}
			d.localDir = dir
			return nil
		}},
		{StateVerifyDescriptor, func(ctx context.Context) error {
			target, err := VerifyDescriptor(d.localDir, RepoName(d.spec.RepoURL), d.cfg.Remote.DeployDir)
			if err != nil {
				return err
			}
			d.target = target
			d.log.Info("resolved deployment mode", "mode", target.Mode.String())
			return nil
		}},
		{StateTestConnectivity, func(ctx context.Context) error {
			session, err := d.connect(ctx, d.spec.SSHUser, d.spec.ServerAddr, d.spec.SSHPort, d.spec.KeyPath, d.timeouts.Connect)
			if err != nil {
				return err
			}
			d.session = session
			// Round trip proves auth and command execution both work
			res, err := session.Run(ctx, "true", d.timeouts.Command)
			if err != nil {
				return err
			}
			if !res.Ok() {
				return connectivityErrf("remote command round trip failed with status %d", res.ExitStatus)
			}
			return nil
		}},
		{StateProvisionRemote, func(ctx context.Context) error {
			prov := NewProvisioner(d.session, d.log, d.timeouts)
			results, err := prov.Provision(ctx)
			d.results = append(d.results, warningsOnly(results)...)
			return err
		}},
		{StateTransferFiles, func(ctx context.Context) error {
			tr := NewTransferrer(d.pm, d.session, d.log, d.timeouts)
			return tr.Transfer(ctx, d.localDir, d.target.RemoteDir)
		}},
		{StateDeployContainers, func(ctx context.Context) error {
			dep := d.newDeployer()
			return dep.Deploy(ctx, d.target, d.spec.AppPort)
		}},
		{StateCheckContainerHealth, func(ctx context.Context) error {
			dep := d.newDeployer()
			return dep.CheckHealth(ctx, d.target)
		}},
		{StateConfigureProxy, func(ctx context.Context) error {
			proxy := NewProxyConfigurer(d.session, d.log, d.timeouts, d.cfg.Proxy)
			return proxy.Configure(ctx, d.spec.AppPort)
		}},
		{StateValidateDeployment, func(ctx context.Context) error {
			v := NewDeployValidator(d.session, d.log, d.timeouts)
			d.probes = v.Validate(ctx, d.target, d.spec.AppPort)
			return nil
		}},
	}

	results, err := runSteps(ctx, steps, d.wrappedCallbacks())
	d.results = append(d.results, results...)
	if err != nil {
		d.state = StateFailed
		return categorize(CategoryUnclassified, err)
	}
	d.state = StateDone
	return nil
}

// Cleanup runs the teardown sequence. Parameters must already be
// collected and validated.
func (d *Driver) Cleanup(ctx context.Context) error {
	d.started = time.Now()
	defer d.closeSession()
	defer d.spec.DiscardToken()

	steps := []pipelineStep{
		{StateCollectParameters, func(ctx context.Context) error {
			if err := d.spec.CollectMissing(d.log); err != nil {
				return err
			}
			return d.spec.Validate()
		}},
		{StateTestConnectivity, func(ctx context.Context) error {
			session, err := d.connect(ctx, d.spec.SSHUser, d.spec.ServerAddr, d.spec.SSHPort, d.spec.KeyPath, d.timeouts.Connect)
			if err != nil {
				return err
			}
			d.session = session
			return nil
		}},
	}

	results, err := runSteps(ctx, steps, d.wrappedCallbacks())
	d.results = append(d.results, results...)
	if err != nil {
		d.state = StateFailed
		return categorize(CategoryUnclassified, err)
	}

	appName := RepoName(d.spec.RepoURL)
	localDir := ""
	if d.workspaceDir != "" {
		localDir = NewRepoSynchronizer(d.pm, d.log, d.workspaceDir).LocalPath(d.spec.RepoURL)
	}
	cleaner := NewCleaner(d.session, d.log, d.timeouts, d.cfg, appName, localDir)
	d.results = append(d.results, cleaner.Run(ctx)...)
	d.state = StateDone
	return nil
}

// wrappedCallbacks forwards to the registered callbacks and keeps the
// driver's state field current.
func (d *Driver) wrappedCallbacks() StepCallbacks {
	return StepCallbacks{
		OnStart: func(state DeployState) {
			d.state = state
			d.log.Info("step started", "step", state.String())
			if d.callbacks.OnStart != nil {
				d.callbacks.OnStart(state)
			}
		},
		OnComplete: func(result StepResult) {
			d.log.Info("step finished", "step", result.Name, "duration", result.Duration.Round(time.Millisecond))
			if d.callbacks.OnComplete != nil {
				d.callbacks.OnComplete(result)
			}
		},
		OnFail: func(result StepResult) {
			d.log.Error("step failed", "step", result.Name, "error", result.Reason)
			if d.callbacks.OnFail != nil {
				d.callbacks.OnFail(result)
			}
		},
	}
}

// warningsOnly filters sub-step results down to the ones worth
// surfacing in the final summary.
func warningsOnly(results []StepResult) []StepResult {
	var out []StepResult
	for _, r := range results {
		if r.Outcome == OutcomeWarning {
			out = append(out, r)
		}
	}
	return out
}

// ExitCodeFor maps a run error to the process exit status.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	return CategoryOf(err).ExitCode()
}
