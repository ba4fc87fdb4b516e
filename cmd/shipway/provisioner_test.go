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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvisioner(t *testing.T, ch *FakeChannel) *Provisioner {
	t.Helper()
	return NewProvisioner(fakeSession(ch), testLogger(t), DefaultTimeouts())
}

func TestProvisionAlreadyProvisionedHost(t *testing.T) {
	// Every probe succeeds, so no install command may run.
	ch := &FakeChannel{}
	p := newTestProvisioner(t, ch)

	results, err := p.Provision(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.Equal(t, OutcomeSuccess, r.Outcome, r.Name)
	}
	assert.False(t, ch.Ran("apt-get install"))
	assert.False(t, ch.Ran("dnf install"))
	assert.True(t, ch.Ran("systemctl enable --now docker"))
	assert.True(t, ch.Ran("systemctl enable --now nginx"))
}

func TestProvisionInstallsMissingDocker(t *testing.T) {
	ch := (&FakeChannel{}).
		Script("command -v apt-get", 0, "/usr/bin/apt-get").
		Script("command -v docker", 1, "").
		Script("command -v nginx", 0, "/usr/sbin/nginx")
	p := newTestProvisioner(t, ch)

	_, err := p.Provision(context.Background())
	require.NoError(t, err)
	assert.True(t, ch.Ran("apt-get install -y -qq docker.io docker-compose-v2"))
	assert.True(t, ch.Ran("DEBIAN_FRONTEND=noninteractive"))
}

func TestProvisionInstallsMissingNginxOnDnf(t *testing.T) {
	ch := (&FakeChannel{}).
		Script("command -v apt-get", 1, "").
		Script("command -v dnf", 0, "/usr/bin/dnf").
		Script("command -v nginx", 1, "")
	p := newTestProvisioner(t, ch)

	_, err := p.Provision(context.Background())
	require.NoError(t, err)
	assert.True(t, ch.Ran("dnf install -y -q nginx"))
}

func TestProvisionUnsupportedPackageManager(t *testing.T) {
	ch := (&FakeChannel{}).
		Script("command -v apt-get", 1, "").
		Script("command -v dnf", 1, "").
		Script("command -v yum", 1, "")
	p := newTestProvisioner(t, ch)

	_, err := p.Provision(context.Background())
	require.Error(t, err)
	assert.Equal(t, CategoryDeployment, CategoryOf(err))
}

func TestProvisionInstallFailureIsFatal(t *testing.T) {
	ch := (&FakeChannel{}).
		Script("command -v apt-get", 0, "/usr/bin/apt-get").
		Script("command -v docker", 1, "").
		Script("apt-get", 100, "E: Unable to locate package docker.io")
	p := newTestProvisioner(t, ch)

	_, err := p.Provision(context.Background())
	require.Error(t, err)
	assert.Equal(t, CategoryDeployment, CategoryOf(err))
	assert.Contains(t, ExtractOutput(err), "Unable to locate package")
}

func TestProvisionBrokenDockerBinaryIsFatal(t *testing.T) {
	// Present on PATH but unable to report a version.
	ch := (&FakeChannel{}).
		Script("docker --version", 127, "docker: error while loading shared libraries")
	p := newTestProvisioner(t, ch)

	_, err := p.Provision(context.Background())
	require.Error(t, err)
	assert.Equal(t, CategoryDeployment, CategoryOf(err))
	assert.Contains(t, ExtractOutput(err), "shared libraries")
}

func TestProvisionBrokenNginxBinaryIsFatal(t *testing.T) {
	ch := (&FakeChannel{}).
		Script("nginx -v", 1, "nginx: command failed")
	p := newTestProvisioner(t, ch)

	_, err := p.Provision(context.Background())
	require.Error(t, err)
	assert.Equal(t, CategoryDeployment, CategoryOf(err))

	// docker and compose were healthy; the failure is nginx's alone
	assert.True(t, ch.Ran("docker --version"))
}

func TestProvisionGroupFailureIsWarningOnly(t *testing.T) {
	ch := (&FakeChannel{}).Script("usermod", 1, "usermod: permission denied")
	p := newTestProvisioner(t, ch)

	results, err := p.Provision(context.Background())
	require.NoError(t, err)

	var group StepResult
	for _, r := range results {
		if r.Name == "docker group" {
			group = r
		}
	}
	assert.Equal(t, OutcomeWarning, group.Outcome)
}

func TestDetectPackageManagerCached(t *testing.T) {
	ch := (&FakeChannel{}).Script("command -v apt-get", 0, "/usr/bin/apt-get")
	p := newTestProvisioner(t, ch)

	first, err := p.detectPackageManager(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PkgApt, first)

	probes := len(ch.Commands)
	again, err := p.detectPackageManager(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PkgApt, again)
	assert.Equal(t, probes, len(ch.Commands))
}
