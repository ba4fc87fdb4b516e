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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/AleutianShipway/cmd/shipway/config"
)

func newTestCleaner(t *testing.T, ch *FakeChannel, localDir string) *Cleaner {
	t.Helper()
	cfg := config.DefaultConfig()
	return NewCleaner(fakeSession(ch), testLogger(t), DefaultTimeouts(),
		&cfg, "widgets", localDir)
}

func TestCleanupFullTeardown(t *testing.T) {
	localDir := filepath.Join(t.TempDir(), "widgets")
	require.NoError(t, os.MkdirAll(localDir, 0750))

	ch := &FakeChannel{}
	c := newTestCleaner(t, ch, localDir)

	results := c.Run(context.Background())
	require.Len(t, results, 7)
	for _, r := range results {
		assert.Equal(t, OutcomeSuccess, r.Outcome, r.Name)
	}

	assert.True(t, ch.Ran("rm -f /etc/nginx/sites-enabled/shipway_app"))
	assert.True(t, ch.Ran("docker rm -f widgets"))
	assert.True(t, ch.Ran("docker rmi -f widgets:latest"))
	assert.True(t, ch.Ran("docker system prune -f --volumes"))
	assert.True(t, ch.Ran("rm -rf /opt/shipway_app"))
	assert.NoDirExists(t, localDir)
}

func TestCleanupPruneFailureIsWarning(t *testing.T) {
	ch := (&FakeChannel{}).Script("system prune", 1, "Cannot connect to the Docker daemon")
	c := newTestCleaner(t, ch, "")

	results := c.Run(context.Background())
	var prune *StepResult
	for i := range results {
		if results[i].Name == "prune docker leftovers" {
			prune = &results[i]
		}
	}
	require.NotNil(t, prune)
	assert.Equal(t, OutcomeWarning, prune.Outcome)
	// Teardown continues past the failed prune
	assert.True(t, ch.Ran("rm -rf /opt/shipway_app"))
}

func TestCleanupToleratesNothingDeployed(t *testing.T) {
	// Every docker command fails as it would on a fresh host.
	ch := (&FakeChannel{}).
		Script("docker compose down", 1, "no configuration file provided").
		Script("docker rm -f", 1, "No such container").
		Script("docker rmi", 1, "No such image")
	c := newTestCleaner(t, ch, "")

	results := c.Run(context.Background())
	for _, r := range results {
		assert.NotEqual(t, OutcomeFatal, r.Outcome, r.Name)
	}
}

func TestCleanupProxyRemovalFailureIsWarning(t *testing.T) {
	ch := (&FakeChannel{}).Script("rm -f /etc/nginx", 1, "Permission denied")
	c := newTestCleaner(t, ch, "")

	results := c.Run(context.Background())
	assert.Equal(t, OutcomeWarning, results[0].Outcome)
	// Remaining steps still run
	assert.True(t, ch.Ran("rm -rf /opt/shipway_app"))
}

func TestCleanupProceedsInOrder(t *testing.T) {
	ch := &FakeChannel{}
	c := newTestCleaner(t, ch, "")
	c.Run(context.Background())

	// Proxy teardown must precede container teardown
	proxyIdx, containerIdx := -1, -1
	for i, cmd := range ch.Commands {
		if proxyIdx < 0 && strings.Contains(cmd, "sites-enabled/shipway_app") {
			proxyIdx = i
		}
		if containerIdx < 0 && strings.Contains(cmd, "docker rm -f widgets") {
			containerIdx = i
		}
	}
	require.GreaterOrEqual(t, proxyIdx, 0)
	require.GreaterOrEqual(t, containerIdx, 0)
	assert.Less(t, proxyIdx, containerIdx)
}
