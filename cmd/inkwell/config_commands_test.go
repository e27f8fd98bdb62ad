package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inkwell/internal/config"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "inkwell.toml")

	output, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(output, target) {
		t.Fatalf("expected target path in output, got %q", output)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected the sample file to be found")
	}
	if cfg.Redis.Addr == "" {
		t.Fatal("expected defaults in the sample config")
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "inkwell.toml")

	if _, err := runCommand(t, "config", "init", "--path", target); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error without --overwrite")
	}
	if _, err := runCommand(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("init with overwrite: %v", err)
	}
}

func TestConfigValidateAcceptsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	output, err := runCommand(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(output, "valid") {
		t.Fatalf("unexpected output: %q", output)
	}
}
