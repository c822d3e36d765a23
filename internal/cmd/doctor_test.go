package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// execCmd runs the root command with args and returns combined stdout.
func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func withDoctorCheckers(t *testing.T, uffd, sock, home, path, kvm CheckResult) {
	t.Helper()
	origUffd, origSock, origHome, origPath, origKVM := UffdChecker, SocketChecker, HomeDirChecker, PathLimitChecker, KVMChecker
	t.Cleanup(func() {
		UffdChecker, SocketChecker, HomeDirChecker, PathLimitChecker, KVMChecker = origUffd, origSock, origHome, origPath, origKVM
	})
	UffdChecker = func() CheckResult { return uffd }
	SocketChecker = func() CheckResult { return sock }
	HomeDirChecker = func(string) CheckResult { return home }
	PathLimitChecker = func() CheckResult { return path }
	KVMChecker = func() CheckResult { return kvm }
}

func TestDoctorHelpShowsFixFlag(t *testing.T) {
	out, err := execCmd(t, "doctor", "--help")
	if err != nil {
		t.Fatalf("doctor --help: %v", err)
	}
	if !strings.Contains(out, "--fix") {
		t.Errorf("help output missing --fix, got:\n%s", out)
	}
	if !strings.Contains(out, "--watch") {
		t.Errorf("help output missing --watch, got:\n%s", out)
	}
}

func TestDoctorJSONOutput(t *testing.T) {
	ok := func(name string) CheckResult { return CheckResult{Name: name, Status: "ok", Detail: "fine"} }
	withDoctorCheckers(t, ok("userfaultfd"), ok("af_inet socket"), ok("home dir"), ok("path limits"), ok("/dev/kvm"))

	out, err := execCmd(t, "doctor", "--json")
	if err != nil {
		t.Fatalf("doctor --json: %v", err)
	}

	var report DoctorReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}

	if !report.Healthy {
		t.Error("expected healthy=true")
	}
	if len(report.Checks) != 5 {
		t.Errorf("expected 5 checks, got %d", len(report.Checks))
	}
	for _, c := range report.Checks {
		if c.Name == "" || c.Status == "" || c.Detail == "" {
			t.Errorf("incomplete check: %+v", c)
		}
	}
}

func TestDoctorHealthyFalseOnError(t *testing.T) {
	ok := func(name string) CheckResult { return CheckResult{Name: name, Status: "ok", Detail: "fine"} }
	withDoctorCheckers(t,
		CheckResult{Name: "userfaultfd", Status: "error", Detail: "broken"},
		ok("af_inet socket"), ok("home dir"), ok("path limits"), ok("/dev/kvm"))

	out, err := execCmd(t, "doctor", "--json")
	if err != nil {
		t.Fatalf("doctor --json: %v", err)
	}

	var report DoctorReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Healthy {
		t.Error("expected healthy=false")
	}
}

func TestDoctorHealthyTrueWithWarnings(t *testing.T) {
	ok := func(name string) CheckResult { return CheckResult{Name: name, Status: "ok", Detail: "fine"} }
	withDoctorCheckers(t,
		CheckResult{Name: "userfaultfd", Status: "warning", Detail: "unavailable"},
		ok("af_inet socket"), ok("home dir"), ok("path limits"), ok("/dev/kvm"))

	out, err := execCmd(t, "doctor", "--json")
	if err != nil {
		t.Fatalf("doctor --json: %v", err)
	}

	var report DoctorReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if !report.Healthy {
		t.Error("expected healthy=true despite warnings")
	}
}

func TestDoctorHumanOutput(t *testing.T) {
	ok := func(name string) CheckResult { return CheckResult{Name: name, Status: "ok", Detail: "fine"} }
	withDoctorCheckers(t, ok("userfaultfd"), ok("af_inet socket"), ok("home dir"), ok("path limits"), ok("/dev/kvm"))

	out, err := execCmd(t, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}

	for _, want := range []string{"wavehost doctor", "userfaultfd", "af_inet socket", "home dir", "path limits", "/dev/kvm", "Everything looks good."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q, got:\n%s", want, out)
		}
	}
}

func TestDoctorHumanOutputWithWarnings(t *testing.T) {
	ok := func(name string) CheckResult { return CheckResult{Name: name, Status: "ok", Detail: "fine"} }
	withDoctorCheckers(t,
		CheckResult{Name: "userfaultfd", Status: "warning", Detail: "unavailable"},
		ok("af_inet socket"), ok("home dir"), ok("path limits"), ok("/dev/kvm"))

	out, err := execCmd(t, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	if !strings.Contains(out, "Everything looks good (1 warning).") {
		t.Errorf("output missing warning summary, got:\n%s", out)
	}
}
