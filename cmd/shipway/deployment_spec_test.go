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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validSpec returns a spec that passes validation, with a throwaway key
// file under t.TempDir.
func validSpec(t *testing.T) *DeploymentSpec {
	t.Helper()
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, []byte("key material"), 0600))
	return &DeploymentSpec{
		RepoURL:    "https://github.com/acme/widgets.git",
		Branch:     "main",
		ServerAddr: "203.0.113.10",
		SSHUser:    "deploy",
		SSHPort:    22,
		KeyPath:    keyPath,
		AppPort:    8080,
	}
}

func TestSpecValidateAccepts(t *testing.T) {
	require.NoError(t, validSpec(t).Validate())
}

func TestSpecValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DeploymentSpec)
	}{
		{"missing repo", func(s *DeploymentSpec) { s.RepoURL = "" }},
		{"missing branch", func(s *DeploymentSpec) { s.Branch = "" }},
		{"missing server", func(s *DeploymentSpec) { s.ServerAddr = "" }},
		{"missing user", func(s *DeploymentSpec) { s.SSHUser = "" }},
		{"bad port", func(s *DeploymentSpec) { s.SSHPort = 70000 }},
		{"zero app port", func(s *DeploymentSpec) { s.AppPort = 0 }},
		{"missing key file", func(s *DeploymentSpec) { s.KeyPath = "/nonexistent/key" }},
		{"ftp scheme", func(s *DeploymentSpec) { s.RepoURL = "ftp://example.com/repo.git" }},
		{"bad branch", func(s *DeploymentSpec) { s.Branch = "feat..ure" }},
		{"uppercase user", func(s *DeploymentSpec) { s.SSHUser = "Deploy" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSpec(t)
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.Equal(t, CategoryValidation, CategoryOf(err))
		})
	}
}

func TestTokenLifecycle(t *testing.T) {
	s := validSpec(t)
	assert.False(t, s.HasToken())

	s.SetToken([]byte("ghp_example"))
	assert.True(t, s.HasToken())

	buf, err := s.openToken()
	require.NoError(t, err)
	require.NotNil(t, buf)
	assert.Equal(t, "ghp_example", buf.String())
	buf.Destroy()

	s.DiscardToken()
	assert.False(t, s.HasToken())

	buf, err = s.openToken()
	require.NoError(t, err)
	assert.Nil(t, buf)
}

func TestSetTokenEmptyClears(t *testing.T) {
	s := validSpec(t)
	s.SetToken([]byte("x"))
	s.SetToken(nil)
	assert.False(t, s.HasToken())
}

func TestNeedsTokenPrompt(t *testing.T) {
	// The decision must reflect the repository URL as it stands at the
	// moment of asking, not the one present at startup: a URL typed into
	// the first prompt group still triggers the masked token prompt.
	s := &DeploymentSpec{}
	assert.False(t, s.needsTokenPrompt())

	s.RepoURL = "https://github.com/acme/widgets.git"
	assert.True(t, s.needsTokenPrompt())

	s.SetToken([]byte("ghp_example"))
	assert.False(t, s.needsTokenPrompt(), "environment token wins")

	s.DiscardToken()
	s.RepoURL = "git@github.com:acme/widgets.git"
	assert.False(t, s.needsTokenPrompt(), "SSH repositories never carry a token")
}

func TestIsHTTPRepo(t *testing.T) {
	assert.True(t, isHTTPRepo("https://github.com/acme/widgets.git"))
	assert.True(t, isHTTPRepo("http://git.internal/acme/widgets.git"))
	assert.False(t, isHTTPRepo("git@github.com:acme/widgets.git"))
	assert.False(t, isHTTPRepo("ssh://git@github.com/acme/widgets.git"))
}
