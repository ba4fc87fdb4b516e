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
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Deployment Descriptor
// =============================================================================

// DeployMode selects how the application is containerized on the
// remote host.
type DeployMode int

const (
	// ModeCompose drives the deployment through docker compose.
	ModeCompose DeployMode = iota

	// ModeDockerfile builds a single image and runs one container.
	ModeDockerfile
)

// String returns the human-readable mode name.
func (m DeployMode) String() string {
	switch m {
	case ModeCompose:
		return "compose"
	case ModeDockerfile:
		return "dockerfile"
	default:
		return fmt.Sprintf("DeployMode(%d)", int(m))
	}
}

// composeFileNames are checked in order; the first hit wins. A compose
// descriptor always takes precedence over a Dockerfile.
var composeFileNames = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yml",
	"compose.yaml",
}

// DeploymentTarget is the resolved description of what gets deployed
// and where.
type DeploymentTarget struct {
	// Mode is compose or dockerfile.
	Mode DeployMode

	// AppName is the container/image base name, derived from the
	// repository name.
	AppName string

	// ComposeFile is the compose file name relative to the checkout
	// root. Empty in dockerfile mode.
	ComposeFile string

	// LocalDir is the local checkout directory.
	LocalDir string

	// RemoteDir is the deployment directory on the target server.
	RemoteDir string
}

// composeDocument is the minimal shape needed to sanity-check a
// compose file before shipping it.
type composeDocument struct {
	Services map[string]any `yaml:"services"`
}

// VerifyDescriptor inspects the checkout and resolves the deployment
// target.
//
// # Description
//
// Looks for a compose file first (docker-compose.yml and its three
// spelling variants), then a Dockerfile. A compose file that is
// present but unparseable or has no services is a hard failure rather
// than a silent fall-through to dockerfile mode; shipping the wrong
// artifact is worse than stopping.
//
// # Error Conditions
//
//   - neither compose file nor Dockerfile present: ValidationError (exit 2)
//   - compose file present but malformed or serviceless: ValidationError (exit 2)
func VerifyDescriptor(localDir, appName, remoteDir string) (*DeploymentTarget, error) {
	for _, name := range composeFileNames {
		path := filepath.Join(localDir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := verifyComposeFile(path); err != nil {
			return nil, err
		}
		return &DeploymentTarget{
			Mode:        ModeCompose,
			AppName:     appName,
			ComposeFile: name,
			LocalDir:    localDir,
			RemoteDir:   remoteDir,
		}, nil
	}

	if _, err := os.Stat(filepath.Join(localDir, "Dockerfile")); err == nil {
		return &DeploymentTarget{
			Mode:      ModeDockerfile,
			AppName:   appName,
			LocalDir:  localDir,
			RemoteDir: remoteDir,
		}, nil
	}

	return nil, validationErrf(
		"repository has neither a compose file (%v) nor a Dockerfile", composeFileNames)
}

// verifyComposeFile parses the compose file and requires at least one
// service.
func verifyComposeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return validationErrf("read %s: %w", filepath.Base(path), err)
	}
	var doc composeDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return validationErrf("parse %s: %w", filepath.Base(path), err)
	}
	if len(doc.Services) == 0 {
		return validationErrf("%s defines no services", filepath.Base(path))
	}
	return nil
}
