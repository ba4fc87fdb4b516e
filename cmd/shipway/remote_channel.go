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
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// =============================================================================
// Interfaces
// =============================================================================

// CommandResult is the structured outcome of one remote command.
type CommandResult struct {
	// Output is the combined stdout+stderr of the remote command.
	Output string

	// ExitStatus is the remote process exit status (0 on success,
	// -1 when the status could not be determined).
	ExitStatus int
}

// Ok reports whether the command exited zero.
func (r CommandResult) Ok() bool {
	return r.ExitStatus == 0
}

// CommandChannel executes a command string on a remote host and returns
// its combined output and exit status.
//
// # Description
//
// This is the primitive every remote operation is built on. Each
// invocation is independent: no shell state persists between calls
// except what the remote filesystem and service manager retain.
//
// # Contract
//
//   - Runs non-interactively; commands must never prompt.
//   - A non-zero remote exit status is NOT an error return. The error
//     return is reserved for transport failures and timeouts; callers
//     inspect CommandResult.ExitStatus for command-level failure.
//   - Respects ctx cancellation and deadlines by tearing down the
//     in-flight session.
//
// # Thread Safety
//
// Implementations need only support sequential use. The deployment
// pipeline never issues two remote commands concurrently.
type CommandChannel interface {
	// Run executes one command on the remote host.
	Run(ctx context.Context, command string) (CommandResult, error)

	// Close tears down the underlying transport.
	Close() error
}

// =============================================================================
// SSH Implementation
// =============================================================================

// sshChannel implements CommandChannel over an established SSH client.
// One ssh.Session is opened per command and closed when it finishes.
type sshChannel struct {
	client *ssh.Client
}

// Run executes one command over a fresh SSH session.
func (c *sshChannel) Run(ctx context.Context, command string) (CommandResult, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return CommandResult{ExitStatus: -1}, connectivityErrf("open SSH session: %w", err)
	}
	defer session.Close()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		output, err := session.CombinedOutput(command)
		done <- result{output: output, err: err}
	}()

	select {
	case res := <-done:
		output := string(res.output)
		if res.err == nil {
			return CommandResult{Output: output, ExitStatus: 0}, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(res.err, &exitErr) {
			// The command ran and failed; that's a result, not a
			// transport error
			return CommandResult{Output: output, ExitStatus: exitErr.ExitStatus()}, nil
		}
		var missingErr *ssh.ExitMissingError
		if errors.As(res.err, &missingErr) {
			return CommandResult{Output: output, ExitStatus: -1},
				connectivityErrf("remote command ended without exit status: %w", res.err)
		}
		return CommandResult{Output: output, ExitStatus: -1},
			connectivityErrf("remote execution failed: %w", res.err)

	case <-ctx.Done():
		// Tearing down the session kills the remote command
		session.Close()
		return CommandResult{ExitStatus: -1},
			fmt.Errorf("remote command %q: %w", command, ctx.Err())
	}
}

// Close tears down the SSH connection.
func (c *sshChannel) Close() error {
	return c.client.Close()
}

// =============================================================================
// Session
// =============================================================================

// RemoteSession is a resolved SSH target plus a connected channel.
//
// Constructed once connectivity is verified, reused for every subsequent
// remote operation, never mutated.
type RemoteSession struct {
	// User is the SSH login name.
	User string

	// Addr is the server address (IP or hostname).
	Addr string

	// Port is the SSH port.
	Port int

	// KeyPath is the private key used for authentication, kept for
	// the file-transfer subprocess which re-authenticates on its own.
	KeyPath string

	channel CommandChannel
}

// loadSigner reads and parses the SSH private key.
//
// Key-file problems are validation failures (the user pointed at a bad
// file), not connectivity failures.
func loadSigner(keyPath string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, validationErrf("read SSH key %s: %w", keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		var passErr *ssh.PassphraseMissingError
		if errors.As(err, &passErr) {
			return nil, validationErrf("SSH key %s is passphrase-protected; only unencrypted keys are supported", keyPath)
		}
		return nil, validationErrf("parse SSH key %s: %w", keyPath, err)
	}
	return signer, nil
}

// ConnectSession dials the remote host and verifies authentication.
//
// # Description
//
// The dial is bounded by the connect timeout only. Commands executed
// later over the session carry their own (much longer) limits, so a
// slow provisioning command is never killed by the connect-level
// timeout.
//
// # Error Conditions
//
//   - Unreadable or unparseable key: ValidationError (exit 2)
//   - Dial or authentication failure: ConnectivityError (exit 3)
func ConnectSession(ctx context.Context, user, addr string, port int, keyPath string, connectTimeout time.Duration) (*RemoteSession, error) {
	signer, err := loadSigner(keyPath)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// Host keys are not pinned: targets are typically freshly
		// provisioned hosts with no prior known_hosts entry
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         EnforceMinTimeout(connectTimeout, MinConnectTimeout),
	}

	target := net.JoinHostPort(addr, fmt.Sprintf("%d", port))

	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, connectivityErrf("dial %s: %w", target, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, target, cfg)
	if err != nil {
		conn.Close()
		// Fail closed: a rejected key and an unreachable host get the
		// same treatment
		return nil, connectivityErrf("SSH handshake with %s@%s failed: %w", user, target, err)
	}

	return &RemoteSession{
		User:    user,
		Addr:    addr,
		Port:    port,
		KeyPath: keyPath,
		channel: &sshChannel{client: ssh.NewClient(sshConn, chans, reqs)},
	}, nil
}

// NewRemoteSession wraps an existing channel. Used by tests to inject a
// scripted fake.
func NewRemoteSession(user, addr string, port int, keyPath string, ch CommandChannel) *RemoteSession {
	return &RemoteSession{User: user, Addr: addr, Port: port, KeyPath: keyPath, channel: ch}
}

// Run executes one command with the given timeout.
func (s *RemoteSession) Run(ctx context.Context, command string, timeout time.Duration) (CommandResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, EnforceMinTimeout(timeout, MinProbeTimeout))
	defer cancel()
	return s.channel.Run(runCtx, command)
}

// Close tears down the channel.
func (s *RemoteSession) Close() error {
	if s.channel == nil {
		return nil
	}
	return s.channel.Close()
}

// Target returns "user@addr" for display and transfer tooling.
func (s *RemoteSession) Target() string {
	return fmt.Sprintf("%s@%s", s.User, s.Addr)
}
