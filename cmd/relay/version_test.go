package main

import (
	"bytes"
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

func TestVersionCommandExists(t *testing.T) {
	if versionCmd == nil {
		t.Fatal("versionCmd is nil")
	}

	if versionCmd.Use != "version" {
		t.Errorf("versionCmd.Use = %q, want %q", versionCmd.Use, "version")
	}

	if versionCmd.Short == "" {
		t.Error("versionCmd.Short should not be empty")
	}

	if versionCmd.RunE == nil {
		t.Error("versionCmd.RunE should not be nil")
	}
}

func TestVersionOutput(t *testing.T) {
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	origOutput := versionFlags.output
	defer func() {
		Version, GitCommit, BuildDate = origVersion, origCommit, origDate
		versionFlags.output = origOutput
		versionCmd.SetOut(nil)
	}()

	Version = "0.1.0-test"
	GitCommit = "abc123"
	BuildDate = "2025-11-20"

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		versionCmd.SetOut(&buf)
		versionFlags.output = "text"
		if err := versionCmd.RunE(versionCmd, nil); err != nil {
			t.Fatalf("RunE() error = %v", err)
		}
		for _, want := range []string{"Relay 0.1.0-test", "Git Commit: abc123", "Build Date: 2025-11-20", runtime.Version()} {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("output %q missing %q", buf.String(), want)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		versionCmd.SetOut(&buf)
		versionFlags.output = "json"
		if err := versionCmd.RunE(versionCmd, nil); err != nil {
			t.Fatalf("RunE() error = %v", err)
		}
		var got map[string]string
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON %q: %v", buf.String(), err)
		}
		if got["version"] != "0.1.0-test" || got["commit"] != "abc123" || got["platform"] != runtime.GOOS+"/"+runtime.GOARCH {
			t.Errorf("unexpected JSON: %v", got)
		}
	})

	t.Run("bad format", func(t *testing.T) {
		versionFlags.output = "xml"
		if err := versionCmd.RunE(versionCmd, nil); err == nil {
			t.Error("expected an error for an unsupported format")
		}
	})
}
