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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestValidator wires the validator at a httptest server so the
// driver-side probes have something real to hit.
func newTestValidator(t *testing.T, ch *FakeChannel, handler http.Handler) *DeployValidator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	addr := strings.TrimPrefix(server.URL, "http://")
	session := NewRemoteSession("deploy", addr, 22, "/tmp/id_ed25519", ch)
	return NewDeployValidator(session, testLogger(t), DefaultTimeouts())
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func probeByName(t *testing.T, results []ProbeResult, name string) ProbeResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no probe named %q in %v", name, results)
	return ProbeResult{}
}

func TestValidateAllHealthy(t *testing.T) {
	v := newTestValidator(t, &FakeChannel{}, okHandler())

	results := v.Validate(context.Background(), dockerfileTarget(), 8080)
	require.Len(t, results, 7)
	for _, r := range results {
		assert.Equal(t, OutcomeSuccess, r.Outcome, r.Name)
	}
}

func TestValidateInactiveNginxIsWarning(t *testing.T) {
	ch := (&FakeChannel{}).Script("is-active nginx", 3, "inactive")
	v := newTestValidator(t, ch, okHandler())

	results := v.Validate(context.Background(), dockerfileTarget(), 8080)
	nginx := probeByName(t, results, "nginx service")
	assert.Equal(t, OutcomeWarning, nginx.Outcome)
	assert.Contains(t, nginx.Detail, "not active")

	// One warning never poisons the rest of the battery
	assert.Equal(t, OutcomeSuccess, probeByName(t, results, "docker service").Outcome)
}

func TestValidateLoopbackCurlFailure(t *testing.T) {
	ch := (&FakeChannel{}).Script("127.0.0.1:8080", 7, "")
	v := newTestValidator(t, ch, okHandler())

	results := v.Validate(context.Background(), dockerfileTarget(), 8080)
	app := probeByName(t, results, "app responds on loopback")
	assert.Equal(t, OutcomeWarning, app.Outcome)
}

func TestValidateExternalServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	})
	v := newTestValidator(t, &FakeChannel{}, handler)

	results := v.Validate(context.Background(), dockerfileTarget(), 8080)
	assert.Equal(t, OutcomeWarning, probeByName(t, results, "external root").Outcome)
	assert.Equal(t, OutcomeSuccess, probeByName(t, results, "external health").Outcome)
}

func TestValidateExternalUnreachableIsWarning(t *testing.T) {
	ch := &FakeChannel{}
	server := httptest.NewServer(okHandler())
	addr := strings.TrimPrefix(server.URL, "http://")
	server.Close() // unreachable from now on

	session := NewRemoteSession("deploy", addr, 22, "/tmp/id_ed25519", ch)
	v := NewDeployValidator(session, testLogger(t), DefaultTimeouts())

	results := v.Validate(context.Background(), dockerfileTarget(), 8080)
	assert.Equal(t, OutcomeWarning, probeByName(t, results, "external root").Outcome)
	assert.Equal(t, OutcomeWarning, probeByName(t, results, "external health").Outcome)
}

func TestContainerProbeCmdByMode(t *testing.T) {
	assert.Contains(t, containerProbeCmd(dockerfileTarget()), "--filter name=widgets")
	assert.Contains(t, containerProbeCmd(composeTarget()), "compose -f docker-compose.yml ps -q")
}
