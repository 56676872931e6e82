package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	notExecutable := filepath.Join(binDir, "plain")
	if err := os.WriteFile(notExecutable, script, 0o644); err != nil {
		t.Fatalf("write plain: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Plain", Command: notExecutable, Optional: true},
		{Name: "Unset"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" || results[0].Resolved != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[2].Available || !strings.Contains(results[2].Detail, "not executable") {
		t.Fatalf("non-executable file should be unavailable, got %#v", results[2])
	}
	if results[3].Detail != "command not configured" {
		t.Fatalf("unexpected detail for empty command: %q", results[3].Detail)
	}

	missing := Missing(results)
	if len(missing) != 2 || missing[0] != "Missing" || missing[1] != "Unset" {
		t.Fatalf("Missing = %v", missing)
	}
}

func TestCheckBinariesSearchesPath(t *testing.T) {
	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, "uploader"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	results := CheckBinaries([]Requirement{{Name: "uploader", Command: " uploader "}, {Name: "dir", Command: binDir}})
	if !results[0].Available || results[0].Command != "uploader" {
		t.Fatalf("expected PATH lookup to succeed, got %#v", results[0])
	}
	if results[1].Available || !strings.Contains(results[1].Detail, "is a directory") {
		t.Fatalf("directory should be rejected, got %#v", results[1])
	}
}
