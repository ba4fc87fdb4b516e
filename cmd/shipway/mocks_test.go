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
	"strings"
	"sync"
)

// scriptedResponse pairs a command substring with the result the fake
// channel returns for it.
type scriptedResponse struct {
	// Match is a substring of the remote command.
	Match string

	// Result is returned when Match is found in the command.
	Result CommandResult

	// Err, when set, is returned instead of a clean result.
	Err error
}

// FakeChannel is a scripted CommandChannel for tests. First matching
// script entry wins; unmatched commands succeed with empty output so
// tests only script the commands they care about.
type FakeChannel struct {
	mu       sync.Mutex
	Scripts  []scriptedResponse
	Commands []string
	Closed   bool

	// DefaultResult is returned for unmatched commands.
	DefaultResult CommandResult
}

// Script appends a response for commands containing match.
func (f *FakeChannel) Script(match string, status int, output string) *FakeChannel {
	f.Scripts = append(f.Scripts, scriptedResponse{
		Match:  match,
		Result: CommandResult{Output: output, ExitStatus: status},
	})
	return f
}

// ScriptErr appends a transport-level failure for commands containing match.
func (f *FakeChannel) ScriptErr(match string, err error) *FakeChannel {
	f.Scripts = append(f.Scripts, scriptedResponse{
		Match:  match,
		Result: CommandResult{ExitStatus: -1},
		Err:    err,
	})
	return f
}

// Run records the command and returns the first matching script entry.
func (f *FakeChannel) Run(ctx context.Context, command string) (CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = append(f.Commands, command)
	if err := ctx.Err(); err != nil {
		return CommandResult{ExitStatus: -1}, err
	}
	for _, s := range f.Scripts {
		if strings.Contains(command, s.Match) {
			return s.Result, s.Err
		}
	}
	return f.DefaultResult, nil
}

// Close marks the channel closed.
func (f *FakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Ran reports whether any recorded command contains the substring.
func (f *FakeChannel) Ran(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Commands {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

var _ CommandChannel = (*FakeChannel)(nil)

// runCalls filters a mock's recorded calls down to Run invocations.
func runCalls(m *MockProcessManager) []ProcessManagerCall {
	var out []ProcessManagerCall
	for _, c := range m.GetCalls() {
		if c.Method == "Run" {
			out = append(out, c)
		}
	}
	return out
}

// fakeSession wraps a FakeChannel into a RemoteSession for component tests.
func fakeSession(ch *FakeChannel) *RemoteSession {
	return NewRemoteSession("deploy", "203.0.113.10", 22, "/tmp/id_ed25519", ch)
}
