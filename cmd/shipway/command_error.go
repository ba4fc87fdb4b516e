// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"
)

// maxOutputTail bounds how much command output an error message carries.
// Full output still goes to the debug log.
const maxOutputTail = 512

// RemoteCommandError wraps a failed remote command with its output context.
//
// # Description
//
// Provides rich error context for remote shell failures: the command that
// failed, the remote exit status, and the tail of its combined output.
// Implements the error interface and supports unwrapping.
//
// # Example
//
//	err := NewRemoteCommandError("sudo nginx -t", 1, "unexpected end of file", nil)
//	fmt.Println(err.Error()) // `sudo nginx -t (exit 1): unexpected end of file`
//
//	var cmdErr *RemoteCommandError
//	if errors.As(err, &cmdErr) {
//	    fmt.Println(cmdErr.ExitStatus)
//	}
type RemoteCommandError struct {
	// Command is the command string that was executed on the remote host.
	Command string

	// ExitStatus is the remote process exit status (-1 if unknown).
	ExitStatus int

	// Output is the tail of the command's combined stdout+stderr.
	Output string

	// Wrapped is the underlying transport or session error.
	Wrapped error
}

// Error returns a formatted message including output when available.
func (e *RemoteCommandError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitStatus, e.Output)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitStatus, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitStatus)
}

// Unwrap returns the underlying error.
func (e *RemoteCommandError) Unwrap() error {
	return e.Wrapped
}

// HasOutput returns true if command output is available.
func (e *RemoteCommandError) HasOutput() bool {
	return e.Output != ""
}

// NewRemoteCommandError creates a RemoteCommandError with full context.
// Output is trimmed of surrounding whitespace and bounded to a tail the
// terminal can absorb.
func NewRemoteCommandError(cmd string, exitStatus int, output string, wrapped error) *RemoteCommandError {
	output = strings.TrimSpace(output)
	if len(output) > maxOutputTail {
		output = "..." + output[len(output)-maxOutputTail:]
	}
	return &RemoteCommandError{
		Command:    cmd,
		ExitStatus: exitStatus,
		Output:     output,
		Wrapped:    wrapped,
	}
}

// ExtractOutput walks the error chain looking for a RemoteCommandError
// with output. Returns the first output found, or empty string.
func ExtractOutput(err error) string {
	for err != nil {
		if cmdErr, ok := err.(*RemoteCommandError); ok && cmdErr.HasOutput() {
			return cmdErr.Output
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return ""
}
