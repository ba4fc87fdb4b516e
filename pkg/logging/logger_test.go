// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
		" DEBUG ": LevelDebug,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" {
		t.Errorf("Expected WARN, got %s", LevelWarn.String())
	}
	if Level(42).String() != "UNKNOWN" {
		t.Errorf("Expected UNKNOWN for out-of-range level")
	}
}

func TestNew_FileLogging(t *testing.T) {
	tmpDir := t.TempDir()

	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "shipway-test",
		Quiet:   true,
	})
	logger.Info("deployment started", "server", "198.51.100.7")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Expected exactly one log file, got %d (err=%v)", len(entries), err)
	}
	if !strings.HasPrefix(entries[0].Name(), "shipway-test_") {
		t.Errorf("Unexpected log file name: %s", entries[0].Name())
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}

	// File logs are JSON lines with the service attribute attached
	var record map[string]any
	line := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)[0]
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("Log line is not valid JSON: %v", err)
	}
	if record["service"] != "shipway-test" {
		t.Errorf("Expected service attribute, got %v", record["service"])
	}
	if record["msg"] != "deployment started" {
		t.Errorf("Unexpected msg: %v", record["msg"])
	}
}

func TestNew_FilePathExposed(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Service: "shipway", Quiet: true})
	defer logger.Close()

	if logger.FilePath() == "" {
		t.Error("Expected FilePath to be set when LogDir is configured")
	}
	if !strings.HasPrefix(logger.FilePath(), tmpDir) {
		t.Errorf("FilePath %q not under %q", logger.FilePath(), tmpDir)
	}
}

func TestNew_LevelFilter(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  tmpDir,
		Service: "shipway",
		Quiet:   true,
	})
	logger.Info("should be filtered")
	logger.Warn("should appear")
	logger.Close()

	entries, _ := os.ReadDir(tmpDir)
	if len(entries) != 1 {
		t.Fatalf("Expected one log file, got %d", len(entries))
	}
	data, _ := os.ReadFile(filepath.Join(tmpDir, entries[0].Name()))
	content := string(data)
	if strings.Contains(content, "should be filtered") {
		t.Error("Info message was not filtered at Warn level")
	}
	if !strings.Contains(content, "should appear") {
		t.Error("Warn message missing from log file")
	}
}

func TestWith_DoesNotMutateParent(t *testing.T) {
	logger := New(Config{Quiet: true})
	child := logger.With("step", "TransferFiles")
	if child == logger {
		t.Error("With should return a new logger")
	}
	// Closing the child must not close a file it doesn't own
	if err := child.Close(); err != nil {
		t.Errorf("child Close: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got := expandPath("~/.shipway/logs")
	want := filepath.Join(home, ".shipway", "logs")
	if got != want {
		t.Errorf("expandPath = %q, want %q", got, want)
	}
	if expandPath("/var/log") != "/var/log" {
		t.Error("absolute paths must pass through unchanged")
	}
}
