package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "chronicled ") {
		t.Fatalf("output %q", out.String())
	}
}

func TestInitCommandWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"init", "--config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "admin key generated") {
		t.Fatalf("output %q", out.String())
	}

	// Second run keeps the key.
	again := newRootCmd()
	var out2 bytes.Buffer
	again.SetOut(&out2)
	again.SetArgs([]string{"init", "--config", path})
	if err := again.Execute(); err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if !strings.Contains(out2.String(), "already initialized") {
		t.Fatalf("second output %q", out2.String())
	}
}

func TestCleanupRejectsBadDays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	root := newRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"cleanup", "--config", path, "--days", "-1"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for negative days")
	}
}
