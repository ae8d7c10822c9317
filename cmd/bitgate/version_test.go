package main

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	defer func() { Version, GitCommit = origVersion, origCommit }()

	Version = "0.1.0-test"
	GitCommit = "abc123"

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)
	versionCmd.Run(versionCmd, nil)

	out := buf.String()
	for _, want := range []string{"bitgate 0.1.0-test", "Git Commit: abc123", runtime.Version()} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "models": false, "stats": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
