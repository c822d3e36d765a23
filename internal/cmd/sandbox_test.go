package cmd

import (
	"strings"
	"testing"
)

func TestSandboxRunPrintsInitialState(t *testing.T) {
	dir := t.TempDir()

	out, err := execCmd(t, "--config-dir", dir, "sandbox", "run")
	if err != nil {
		t.Fatalf("sandbox run: %v", err)
	}

	for _, want := range []string{"profile:", "home:", "argc:", "envc:", "netlist:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q, got:\n%s", want, out)
		}
	}
}

func TestSandboxRunProfileFlag(t *testing.T) {
	dir := t.TempDir()

	out, err := execCmd(t, "--config-dir", dir, "sandbox", "run", "--profile", "ci")
	if err != nil {
		t.Fatalf("sandbox run --profile ci: %v", err)
	}
	if !strings.Contains(out, "ci") {
		t.Errorf("output missing profile name, got:\n%s", out)
	}
}
