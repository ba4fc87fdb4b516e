package main

import "time"

// Timeout constants define minimum and default values for deployment
// operations.
//
// Connectivity checks fail fast; provisioning and image builds get long
// limits because on a slow host progress, not latency, is the signal.
const (
	// MinConnectTimeout is the absolute minimum for the SSH dial.
	MinConnectTimeout = 2 * time.Second

	// MinCommandTimeout is the absolute minimum for any remote command.
	MinCommandTimeout = 5 * time.Second

	// MinProbeTimeout is the absolute minimum for validation probes.
	MinProbeTimeout = 1 * time.Second

	// DefaultConnectTimeout bounds the SSH dial. Deliberately aggressive:
	// an unreachable host should fail in seconds, not minutes.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultCommandTimeout is the limit for ordinary remote commands
	// (service control, file operations, docker ps).
	DefaultCommandTimeout = 60 * time.Second

	// DefaultProvisionTimeout is the limit for package-manager installs.
	DefaultProvisionTimeout = 10 * time.Minute

	// DefaultBuildTimeout is the limit for image builds and compose up.
	DefaultBuildTimeout = 15 * time.Minute

	// DefaultProbeTimeout is the limit for individual validation probes.
	DefaultProbeTimeout = 10 * time.Second

	// DefaultTransferTimeout is the limit for the rsync/scp file transfer.
	DefaultTransferTimeout = 10 * time.Minute

	// containerSettleInterval is the fixed wait between starting
	// containers and the first health probe, absorbing common
	// entrypoint startup latency.
	containerSettleInterval = 5 * time.Second
)

// EnforceMinTimeout returns at least the minimum timeout.
//
// Ensures a timeout is never below the specified minimum. If the requested
// timeout is zero, negative, or below the minimum, returns the minimum
// instead, preventing misconfiguration from causing infinite hangs or
// instant failures.
func EnforceMinTimeout(requested, minimum time.Duration) time.Duration {
	if requested <= 0 || requested < minimum {
		return minimum
	}
	return requested
}

// Timeouts holds the per-operation limits for one run.
//
// Use DefaultTimeouts or FromConfigSeconds to construct; Validated
// guarantees every field is at least its minimum.
type Timeouts struct {
	// Connect bounds the SSH dial only. Remote commands are never
	// killed by the connect-level timeout.
	Connect time.Duration

	// Command is the limit for ordinary remote commands.
	Command time.Duration

	// Provision is the limit for package installs.
	Provision time.Duration

	// Build is the limit for image builds and compose operations.
	Build time.Duration

	// Probe is the limit for individual validation probes.
	Probe time.Duration

	// Transfer is the limit for the file transfer subprocess.
	Transfer time.Duration
}

// DefaultTimeouts returns the package default limits.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:   DefaultConnectTimeout,
		Command:   DefaultCommandTimeout,
		Provision: DefaultProvisionTimeout,
		Build:     DefaultBuildTimeout,
		Probe:     DefaultProbeTimeout,
		Transfer:  DefaultTransferTimeout,
	}
}

// FromConfigSeconds builds Timeouts from config integers (seconds).
// Zero values fall back to package defaults.
func FromConfigSeconds(connect, command, provision, build, probe int) Timeouts {
	t := DefaultTimeouts()
	if connect > 0 {
		t.Connect = time.Duration(connect) * time.Second
	}
	if command > 0 {
		t.Command = time.Duration(command) * time.Second
	}
	if provision > 0 {
		t.Provision = time.Duration(provision) * time.Second
	}
	if build > 0 {
		t.Build = time.Duration(build) * time.Second
	}
	if probe > 0 {
		t.Probe = time.Duration(probe) * time.Second
	}
	return t.Validated()
}

// Validated returns a copy with all timeouts at least at their minimums.
func (t Timeouts) Validated() Timeouts {
	return Timeouts{
		Connect:   EnforceMinTimeout(t.Connect, MinConnectTimeout),
		Command:   EnforceMinTimeout(t.Command, MinCommandTimeout),
		Provision: EnforceMinTimeout(t.Provision, MinCommandTimeout),
		Build:     EnforceMinTimeout(t.Build, MinCommandTimeout),
		Probe:     EnforceMinTimeout(t.Probe, MinProbeTimeout),
		Transfer:  EnforceMinTimeout(t.Transfer, MinCommandTimeout),
	}
}
