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
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jinterlante1206/AleutianShipway/pkg/logging"
)

// =============================================================================
// Repository Synchronizer
// =============================================================================

// RepoSynchronizer produces an up-to-date local checkout of the
// deployment repository.
//
// # Description
//
// Clones on first run, updates in place afterward. The git access
// token exists in exactly one place for the duration of a git
// invocation: the userinfo portion of the fetch URL handed to the git
// subprocess. It is never written to .git/config, never logged, and
// scrubbed from any git output that echoes it back.
//
// # Thread Safety
//
// Not safe for concurrent use. The pipeline runs one sync per run.
type RepoSynchronizer struct {
	pm  ProcessManager
	log *logging.Logger

	// workspaceDir is the parent directory for local checkouts.
	workspaceDir string
}

// NewRepoSynchronizer builds a synchronizer rooted at workspaceDir.
func NewRepoSynchronizer(pm ProcessManager, log *logging.Logger, workspaceDir string) *RepoSynchronizer {
	return &RepoSynchronizer{pm: pm, log: log, workspaceDir: workspaceDir}
}

// RepoName extracts the repository name from a git URL.
//
// # Example
//
//	RepoName("https://github.com/acme/widgets.git") == "widgets"
//	RepoName("git@github.com:acme/widgets") == "widgets"
func RepoName(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	if idx := strings.LastIndexAny(trimmed, "/:"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return trimmed
}

// buildFetchURL splices the token into the URL as userinfo. SSH-style
// URLs pass through untouched since their authentication is the SSH
// agent or key, not a token.
func buildFetchURL(repoURL, token string) (string, error) {
	if token == "" || !isHTTPRepo(repoURL) {
		return repoURL, nil
	}
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", validationErrf("parse repository URL: %w", err)
	}
	u.User = url.User(token)
	return u.String(), nil
}

// scrubToken masks the token wherever git echoed it back, e.g. in a
// "fatal: unable to access 'https://TOKEN@host/...'" message.
func scrubToken(text, token string) string {
	if token == "" {
		return text
	}
	return strings.ReplaceAll(text, token, "***")
}

// LocalPath returns the checkout directory for a repository.
func (r *RepoSynchronizer) LocalPath(repoURL string) string {
	return filepath.Join(r.workspaceDir, RepoName(repoURL))
}

// Sync clones or updates the repository and leaves the requested
// branch checked out.
//
// # Description
//
// A directory that already contains a .git is updated in place via
// fetch + hard reset; anything else triggers a fresh single-branch
// clone. Both paths pass the tokenized URL on the command line only,
// and the clone path immediately rewrites origin to the clean URL so
// no token lands in .git/config.
//
// # Error Conditions
//
//   - git binary not installed locally: ValidationError (exit 2)
//   - clone/fetch/checkout failure: DeploymentError (exit 4)
func (r *RepoSynchronizer) Sync(ctx context.Context, spec *DeploymentSpec) (string, error) {
	if _, err := r.pm.LookPath("git"); err != nil {
		return "", validationErrf("git is not installed locally: %w", err)
	}

	var token string
	buf, err := spec.openToken()
	if err != nil {
		return "", err
	}
	if buf != nil {
		token = buf.String()
		defer buf.Destroy()
	}
	defer spec.DiscardToken()

	fetchURL, err := buildFetchURL(spec.RepoURL, token)
	if err != nil {
		return "", err
	}

	dest := r.LocalPath(spec.RepoURL)
	if err := os.MkdirAll(r.workspaceDir, 0750); err != nil {
		return "", deploymentErrf("create workspace %s: %w", r.workspaceDir, err)
	}

	if _, statErr := os.Stat(filepath.Join(dest, ".git")); statErr == nil {
		r.log.Info("updating existing checkout", "path", dest, "branch", spec.Branch)
		err = r.update(ctx, dest, fetchURL, spec.Branch, token)
	} else {
		r.log.Info("cloning repository", "repo", spec.RepoURL, "branch", spec.Branch)
		err = r.clone(ctx, dest, fetchURL, spec.RepoURL, spec.Branch, token)
	}
	if err != nil {
		return "", err
	}
	return dest, nil
}

// clone performs a fresh single-branch clone, then points origin at the
// clean URL.
func (r *RepoSynchronizer) clone(ctx context.Context, dest, fetchURL, cleanURL, branch, token string) error {
	out, err := r.pm.Run(ctx, "git", "clone", "--branch", branch, "--single-branch", fetchURL, dest)
	if err != nil {
		return deploymentErrf("git clone failed: %s", scrubToken(combineOutputErr(out, err), token))
	}
	if fetchURL != cleanURL {
		out, err = r.pm.Run(ctx, "git", "-C", dest, "remote", "set-url", "origin", cleanURL)
		if err != nil {
			return deploymentErrf("reset origin URL: %s", scrubToken(combineOutputErr(out, err), token))
		}
	}
	return nil
}

// update fetches the branch by explicit URL and hard-resets onto it.
// The tokenized URL never touches the repository config this way.
// A single-branch clone has no remote-tracking ref for any other
// branch, so the checkout pins the local branch to FETCH_HEAD rather
// than resolving the name; that makes switching the deployed branch
// work on an existing checkout.
func (r *RepoSynchronizer) update(ctx context.Context, dest, fetchURL, branch, token string) error {
	out, err := r.pm.Run(ctx, "git", "-C", dest, "fetch", fetchURL, branch)
	if err != nil {
		return deploymentErrf("git fetch failed: %s", scrubToken(combineOutputErr(out, err), token))
	}
	out, err = r.pm.Run(ctx, "git", "-C", dest, "checkout", "-B", branch, "FETCH_HEAD")
	if err != nil {
		return deploymentErrf("git checkout %s failed: %s", branch, scrubToken(combineOutputErr(out, err), token))
	}
	out, err = r.pm.Run(ctx, "git", "-C", dest, "reset", "--hard", "FETCH_HEAD")
	if err != nil {
		return deploymentErrf("git reset failed: %s", scrubToken(combineOutputErr(out, err), token))
	}
	return nil
}

// combineOutputErr folds subprocess output into the error text so the
// git diagnostic survives into the summary.
func combineOutputErr(out []byte, err error) string {
	text := strings.TrimSpace(string(out))
	if text == "" {
		return err.Error()
	}
	return fmt.Sprintf("%v: %s", err, text)
}
