// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRepoURL_Valid(t *testing.T) {
	valid := []string{
		"https://example.com/app.git",
		"https://github.com/owner/repo",
		"http://git.internal:8080/team/app.git",
		"git@github.com:owner/repo.git",
		"ssh://git@example.com/owner/repo.git",
	}
	for _, u := range valid {
		if err := ValidateRepoURL(u); err != nil {
			t.Errorf("ValidateRepoURL(%q) = %v, want nil", u, err)
		}
	}
}

func TestValidateRepoURL_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"ftp://example.com/app.git",
		"https://",
		"https://example.com",
		"git@nocolon",
		"not a url at all",
	}
	for _, u := range invalid {
		if err := ValidateRepoURL(u); err == nil {
			t.Errorf("ValidateRepoURL(%q) = nil, want error", u)
		}
	}
}

func TestValidateServerAddr(t *testing.T) {
	valid := []string{"198.51.100.7", "10.0.0.1", "2001:db8::1", "deploy.example.com", "localhost"}
	for _, a := range valid {
		if err := ValidateServerAddr(a); err != nil {
			t.Errorf("ValidateServerAddr(%q) = %v, want nil", a, err)
		}
	}
	invalid := []string{"", "999.1.2.3.4.5 junk", "host name with spaces", "-leadinghyphen.com"}
	for _, a := range invalid {
		if err := ValidateServerAddr(a); err == nil {
			t.Errorf("ValidateServerAddr(%q) = nil, want error", a)
		}
	}
}

func TestValidatePort(t *testing.T) {
	for _, p := range []string{"1", "8080", "65535"} {
		if err := ValidatePort(p); err != nil {
			t.Errorf("ValidatePort(%q) = %v, want nil", p, err)
		}
	}
	for _, p := range []string{"", "0", "65536", "-1", "http", "80.5"} {
		if err := ValidatePort(p); err == nil {
			t.Errorf("ValidatePort(%q) = nil, want error", p)
		}
	}
}

func TestValidateSSHUser(t *testing.T) {
	for _, u := range []string{"deploy", "ubuntu", "_svc", "app-runner", "u123"} {
		if err := ValidateSSHUser(u); err != nil {
			t.Errorf("ValidateSSHUser(%q) = %v, want nil", u, err)
		}
	}
	for _, u := range []string{"", "Root", "user name", "1user", "user;rm -rf /"} {
		if err := ValidateSSHUser(u); err == nil {
			t.Errorf("ValidateSSHUser(%q) = nil, want error", u)
		}
	}
}

func TestValidateKeyFile(t *testing.T) {
	tmpDir := t.TempDir()

	keyPath := filepath.Join(tmpDir, "id_ed25519")
	if err := os.WriteFile(keyPath, []byte("fake key material"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := ValidateKeyFile(keyPath); err != nil {
		t.Errorf("readable key file rejected: %v", err)
	}
	if err := ValidateKeyFile(filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("missing key file accepted")
	}
	if err := ValidateKeyFile(tmpDir); err == nil {
		t.Error("directory accepted as key file")
	}
	if err := ValidateKeyFile(""); err == nil {
		t.Error("empty path accepted")
	}
}

func TestValidateBranch(t *testing.T) {
	for _, b := range []string{"main", "develop", "feature/login", "release-1.2"} {
		if err := ValidateBranch(b); err != nil {
			t.Errorf("ValidateBranch(%q) = %v, want nil", b, err)
		}
	}
	for _, b := range []string{"", "-bad", "a..b", "has space", "what?"} {
		if err := ValidateBranch(b); err == nil {
			t.Errorf("ValidateBranch(%q) = nil, want error", b)
		}
	}
}
