package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempModFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "go.mod")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp go.mod: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "rcu", "qsbr"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return path
}

func TestInspectCommandReportsPresentAndMissingFlavors(t *testing.T) {
	path := writeTempModFile(t, "module example.com/toy\n\ngo 1.24.0\n")

	if err := inspectCommand([]string{"-mod", path}); err != nil {
		t.Fatalf("inspectCommand: %v", err)
	}
}

func TestInspectCommandRejectsMissingFile(t *testing.T) {
	if err := inspectCommand([]string{"-mod", filepath.Join(t.TempDir(), "nonexistent.mod")}); err == nil {
		t.Fatal("expected an error for a missing go.mod")
	}
}

func TestInspectCommandRejectsMalformedModFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "go.mod")
	if err := os.WriteFile(path, []byte("not a go.mod at all {{{"), 0o644); err != nil {
		t.Fatalf("writing temp go.mod: %v", err)
	}
	if err := inspectCommand([]string{"-mod", path}); err == nil {
		t.Fatal("expected an error for a malformed go.mod")
	}
}
