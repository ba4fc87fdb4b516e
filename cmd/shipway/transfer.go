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

	"github.com/jinterlante1206/AleutianShipway/pkg/logging"
)

// =============================================================================
// File Transfer
// =============================================================================

// Transferrer ships the local checkout to the remote deployment
// directory.
//
// # Description
//
// Prefers rsync for its delta transfer and --delete mirroring; falls
// back to recursive scp when rsync is not installed locally. Either
// way the remote directory is created and chowned to the SSH user
// first, since /opt is typically root-owned.
//
// The .git directory never leaves the local machine: the remote host
// needs build inputs, not history.
type Transferrer struct {
	pm       ProcessManager
	session  *RemoteSession
	log      *logging.Logger
	timeouts Timeouts
}

// NewTransferrer builds a transferrer over the session and local
// process manager.
func NewTransferrer(pm ProcessManager, session *RemoteSession, log *logging.Logger, timeouts Timeouts) *Transferrer {
	return &Transferrer{pm: pm, session: session, log: log, timeouts: timeouts}
}

// sshOptions is the ssh argument string shared by rsync -e and the
// underlying scp flags.
func (t *Transferrer) sshOptions() string {
	return fmt.Sprintf("ssh -i %s -p %d -o StrictHostKeyChecking=no -o BatchMode=yes",
		t.session.KeyPath, t.session.Port)
}

// prepareRemoteDir creates the deployment directory and hands it to
// the SSH user.
func (t *Transferrer) prepareRemoteDir(ctx context.Context, remoteDir string) error {
	cmd := fmt.Sprintf("sudo mkdir -p %s && sudo chown %s:%s %s",
		remoteDir, t.session.User, t.session.User, remoteDir)
	res, err := t.session.Run(ctx, cmd, t.timeouts.Command)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return deploymentErrf("prepare remote directory %s: %w", remoteDir,
			NewRemoteCommandError(cmd, res.ExitStatus, res.Output, nil))
	}
	return nil
}

// Transfer mirrors localDir into remoteDir on the target host.
//
// # Error Conditions
//
//   - remote directory preparation failure: DeploymentError (exit 4)
//   - neither rsync nor scp installed locally: ValidationError (exit 2)
//   - transfer subprocess failure: DeploymentError (exit 4)
func (t *Transferrer) Transfer(ctx context.Context, localDir, remoteDir string) error {
	if err := t.prepareRemoteDir(ctx, remoteDir); err != nil {
		return err
	}

	if _, err := t.pm.LookPath("rsync"); err == nil {
		return t.rsync(ctx, localDir, remoteDir)
	}
	if _, err := t.pm.LookPath("scp"); err == nil {
		t.log.Warn("rsync not found locally, falling back to scp")
		return t.scp(ctx, localDir, remoteDir)
	}
	return validationErrf("neither rsync nor scp is installed locally")
}

// rsync mirrors the checkout, deleting remote files that no longer
// exist locally.
func (t *Transferrer) rsync(ctx context.Context, localDir, remoteDir string) error {
	args := []string{
		"-az", "--delete", "--exclude", ".git",
		"-e", t.sshOptions(),
		// Trailing slash: copy contents, not the directory itself
		localDir + "/",
		fmt.Sprintf("%s:%s/", t.session.Target(), remoteDir),
	}
	t.log.Info("transferring files", "tool", "rsync", "dest", remoteDir)
	out, err := t.pm.Run(ctx, "rsync", args...)
	if err != nil {
		return deploymentErrf("rsync failed: %s", combineOutputErr(out, err))
	}
	return nil
}

// scp copies the checkout recursively. No deletion semantics, so a
// leftover file from a prior deploy can persist; rsync is preferred
// for exactly that reason.
func (t *Transferrer) scp(ctx context.Context, localDir, remoteDir string) error {
	args := []string{
		"-r", "-i", t.session.KeyPath,
		"-P", fmt.Sprintf("%d", t.session.Port),
		"-o", "StrictHostKeyChecking=no", "-o", "BatchMode=yes",
	}
	args = append(args, localDir+"/.", fmt.Sprintf("%s:%s/", t.session.Target(), remoteDir))

	t.log.Info("transferring files", "tool", "scp", "dest", remoteDir)
	out, err := t.pm.Run(ctx, "scp", args...)
	if err != nil {
		return deploymentErrf("scp failed: %s", combineOutputErr(out, err))
	}
	// scp has no --exclude; drop the copied .git on the remote side
	res, rerr := t.session.Run(ctx, fmt.Sprintf("rm -rf %s/.git", remoteDir), t.timeouts.Command)
	if rerr == nil && !res.Ok() {
		t.log.Warn("could not remove remote .git copy", "dir", remoteDir)
	}
	return rerr
}
