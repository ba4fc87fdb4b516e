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
	"strings"

	"github.com/awnumar/memguard"
	"github.com/charmbracelet/huh"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sys/unix"

	"github.com/jinterlante1206/AleutianShipway/pkg/logging"
	"github.com/jinterlante1206/AleutianShipway/pkg/ux"
	"github.com/jinterlante1206/AleutianShipway/pkg/validation"
)

// tokenEnvVar is the only environment variable consulted for the git
// access token. The token is never accepted as a CLI flag.
const tokenEnvVar = "SHIPWAY_GIT_TOKEN"

// =============================================================================
// Deployment Spec
// =============================================================================

// DeploymentSpec is the fully resolved set of deployment parameters.
//
// # Description
//
// Collected once at the start of a run from flags, environment, and
// interactive prompts, validated, then treated as immutable. The git
// token is deliberately NOT a field: it lives in a sealed enclave and
// is only materialized for the instant the fetch URL is built.
type DeploymentSpec struct {
	// RepoURL is the git repository to deploy.
	RepoURL string `validate:"required"`

	// Branch is the git branch to check out.
	Branch string `validate:"required"`

	// ServerAddr is the target server IP or hostname.
	ServerAddr string `validate:"required"`

	// SSHUser is the login name on the target server.
	SSHUser string `validate:"required"`

	// SSHPort is the SSH port on the target server.
	SSHPort int `validate:"min=1,max=65535"`

	// KeyPath is the SSH private key file.
	KeyPath string `validate:"required,file"`

	// AppPort is the loopback port the application listens on and the
	// reverse proxy forwards to.
	AppPort int `validate:"min=1,max=65535"`

	token *memguard.Enclave
}

// SetToken seals the git token into a locked enclave and scrubs the
// caller's copy.
func (s *DeploymentSpec) SetToken(token []byte) {
	if len(token) == 0 {
		s.token = nil
		return
	}
	// NewEnclave wipes the source buffer
	s.token = memguard.NewEnclave(token)
}

// HasToken reports whether a token was provided.
func (s *DeploymentSpec) HasToken() bool {
	return s.token != nil
}

// openToken opens the enclave for a short-lived read. The returned
// buffer must be destroyed by the caller as soon as the token has been
// spliced into the fetch URL.
func (s *DeploymentSpec) openToken() (*memguard.LockedBuffer, error) {
	if s.token == nil {
		return nil, nil
	}
	buf, err := s.token.Open()
	if err != nil {
		return nil, fmt.Errorf("open token enclave: %w", err)
	}
	return buf, nil
}

// DiscardToken drops the enclave reference. Called as soon as the
// repository synchronization step finishes, success or failure.
func (s *DeploymentSpec) DiscardToken() {
	s.token = nil
}

// =============================================================================
// Collection
// =============================================================================

// specValidate is the shared struct validator.
var specValidate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs both struct-tag and semantic validation.
//
// # Error Conditions
//
// Every failure is a ValidationError (exit 2). The first failing field
// is reported; fixing parameters is an iterative activity and a flood
// of messages helps nobody.
func (s *DeploymentSpec) Validate() error {
	if err := specValidate.Struct(s); err != nil {
		return validationErrf("incomplete deployment parameters: %v", firstValidatorFailure(err))
	}
	if err := validation.ValidateRepoURL(s.RepoURL); err != nil {
		return validationErrf("repository URL: %w", err)
	}
	if err := validation.ValidateBranch(s.Branch); err != nil {
		return validationErrf("branch: %w", err)
	}
	if err := validation.ValidateServerAddr(s.ServerAddr); err != nil {
		return validationErrf("server address: %w", err)
	}
	if err := validation.ValidateSSHUser(s.SSHUser); err != nil {
		return validationErrf("SSH user: %w", err)
	}
	if err := validation.ValidateKeyFile(s.KeyPath); err != nil {
		return validationErrf("SSH key: %w", err)
	}
	return nil
}

// firstValidatorFailure flattens validator.ValidationErrors into one
// human-readable field complaint.
func firstValidatorFailure(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "file":
		return fmt.Sprintf("%s must be an existing file", fe.Field())
	case "min", "max":
		return fmt.Sprintf("%s must be between 1 and 65535", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// CollectMissing prompts interactively for any parameter still empty
// after flag and environment resolution.
//
// # Description
//
// In a non-interactive context (piped stdin, CI) prompting is
// impossible, so missing parameters become an immediate validation
// failure instead of a hung process.
func (s *DeploymentSpec) CollectMissing(log *logging.Logger) error {
	token := strings.TrimSpace(os.Getenv(tokenEnvVar))
	if token != "" {
		s.SetToken([]byte(token))
	}

	if !ux.IsInteractive() {
		return nil
	}

	var fields []huh.Field
	if s.RepoURL == "" {
		fields = append(fields, huh.NewInput().
			Title("Repository URL").
			Description("HTTPS or SSH URL of the git repository to deploy").
			Value(&s.RepoURL))
	}
	if s.ServerAddr == "" {
		fields = append(fields, huh.NewInput().
			Title("Server address").
			Description("IP or hostname of the target server").
			Value(&s.ServerAddr))
	}
	if s.SSHUser == "" {
		fields = append(fields, huh.NewInput().
			Title("SSH user").
			Value(&s.SSHUser))
	}
	if s.KeyPath == "" {
		fields = append(fields, huh.NewInput().
			Title("SSH key path").
			Description("Path to the private key for the target server").
			Value(&s.KeyPath))
	}
	if len(fields) > 0 {
		form := huh.NewForm(huh.NewGroup(fields...))
		if err := form.Run(); err != nil {
			return validationErrf("parameter collection aborted: %w", err)
		}
	}

	// Whether a token is wanted depends on the repository URL, which may
	// itself have just been entered above, so the decision is made after
	// the first form resolves and the masked prompt runs on its own.
	if s.needsTokenPrompt() {
		var promptedToken string
		tokenForm := huh.NewForm(huh.NewGroup(huh.NewInput().
			Title("Git access token").
			Description("Leave empty for public repositories").
			EchoMode(huh.EchoModePassword).
			Value(&promptedToken)))
		if err := tokenForm.Run(); err != nil {
			return validationErrf("parameter collection aborted: %w", err)
		}
		if promptedToken != "" {
			s.SetToken([]byte(promptedToken))
			promptedToken = ""
		}
	}

	log.Debug("collected interactive parameters")
	return nil
}

// needsTokenPrompt reports whether the masked token prompt should run.
// Only http(s) repositories carry a token, and one supplied via the
// environment wins.
func (s *DeploymentSpec) needsTokenPrompt() bool {
	return !s.HasToken() && isHTTPRepo(s.RepoURL)
}

// isHTTPRepo reports whether the URL would carry a token as userinfo.
func isHTTPRepo(repoURL string) bool {
	return strings.HasPrefix(repoURL, "http://") || strings.HasPrefix(repoURL, "https://")
}

// checkMemoryLock warns when the mlock rlimit is too small for the
// token enclave to stay out of swap. Advisory only.
func checkMemoryLock(log *logging.Logger) {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &limit); err != nil {
		return
	}
	const wantBytes = 64 * 1024
	if limit.Cur != unix.RLIM_INFINITY && limit.Cur < wantBytes {
		log.Warn("RLIMIT_MEMLOCK is low; secret pages may be swappable",
			"current_bytes", limit.Cur)
	}
}
