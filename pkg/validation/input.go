// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for security-critical operations.
//
// This package contains pure predicate validators for user-supplied inputs
// that end up in git URLs, SSH targets, and remote shell commands. Using
// these validators prevents malformed targets and command injection through
// deployment parameters. None of the validators have side effects beyond
// a read-only stat of the key file.
package validation

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// hostnamePattern matches RFC 1123 hostnames: dot-separated labels of
// alphanumerics and hyphens, no leading/trailing hyphen per label.
var hostnamePattern = regexp.MustCompile(`^([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])(\.([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9\-]{0,61}[a-zA-Z0-9]))*$`)

// usernamePattern matches POSIX login names (useradd default NAME_REGEX).
var usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

// ValidateRepoURL validates a git repository URL.
//
// Accepted shapes:
//   - http(s)://host/path/repo(.git)
//   - git@host:owner/repo.git (scp-like SSH syntax)
//   - ssh://user@host/path/repo.git
//
// Returns an error describing what is wrong with the URL.
//
// Example:
//
//	if err := validation.ValidateRepoURL(repoURL); err != nil {
//	    return fmt.Errorf("invalid repository: %w", err)
//	}
func ValidateRepoURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("repository URL cannot be empty")
	}

	// scp-like SSH syntax has no scheme and doesn't parse as a URL
	if strings.HasPrefix(raw, "git@") {
		if !strings.Contains(raw, ":") {
			return fmt.Errorf("SSH repository URL %q is missing the host:path separator", raw)
		}
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("repository URL %q is not parseable: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "ssh", "git":
	default:
		return fmt.Errorf("repository URL %q has unsupported scheme %q (want http, https, ssh, or git)", raw, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("repository URL %q has no host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		return fmt.Errorf("repository URL %q has no repository path", raw)
	}
	return nil
}

// ValidateServerAddr validates a deployment target address: either an
// IPv4 dotted quad, an IPv6 literal, or an RFC 1123 hostname.
func ValidateServerAddr(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if net.ParseIP(addr) != nil {
		return nil
	}
	if len(addr) > 253 {
		return fmt.Errorf("server address %q exceeds 253 characters", addr)
	}
	if !hostnamePattern.MatchString(addr) {
		return fmt.Errorf("server address %q is neither an IP address nor a valid hostname", addr)
	}
	return nil
}

// ValidatePort validates a TCP port string in the range 1-65535.
func ValidatePort(port string) error {
	port = strings.TrimSpace(port)
	if port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port %q is not a number", port)
	}
	return ValidatePortNumber(n)
}

// ValidatePortNumber validates a numeric TCP port in the range 1-65535.
func ValidatePortNumber(n int) error {
	if n < 1 || n > 65535 {
		return fmt.Errorf("port %d out of range (1-65535)", n)
	}
	return nil
}

// ValidateSSHUser validates an SSH login name against the POSIX
// portable username rules.
func ValidateSSHUser(user string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return fmt.Errorf("SSH username cannot be empty")
	}
	if !usernamePattern.MatchString(user) {
		return fmt.Errorf("SSH username %q is not a valid login name", user)
	}
	return nil
}

// ValidateKeyFile verifies that an SSH private key file exists, is a
// regular file, and is readable by the current user.
//
// This is the one validator with a side effect: it opens the file
// read-only to verify permissions, then closes it immediately.
func ValidateKeyFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("SSH key path cannot be empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("SSH key file %q does not exist", path)
		}
		return fmt.Errorf("SSH key file %q is not accessible: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("SSH key path %q is a directory, not a file", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("SSH key file %q is not readable: %w", path, err)
	}
	_ = f.Close()
	return nil
}

// ValidateBranch validates a git branch name against the characters git
// itself rejects (`git check-ref-format` rules, abbreviated).
func ValidateBranch(branch string) error {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name %q cannot start with a dash", branch)
	}
	if strings.ContainsAny(branch, " ~^:?*[\\") || strings.Contains(branch, "..") {
		return fmt.Errorf("branch name %q contains characters git does not allow", branch)
	}
	return nil
}
