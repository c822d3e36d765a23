package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/PLSysSec/wave-sub000/internal/config"
	"github.com/PLSysSec/wave-sub000/internal/output"
	"github.com/PLSysSec/wave-sub000/internal/tui"
	"github.com/PLSysSec/wave-sub000/internal/vm"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var (
	fixFlag   bool
	watchFlag bool
)

func addDoctorCommand(parent *cobra.Command) {
	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check host platform capabilities",
		Long:  "Run diagnostic checks the sandbox runtime depends on and report environment health.",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}

	doctorCmd.Flags().BoolVar(&fixFlag, "fix", false, "Attempt to auto-fix problems")
	doctorCmd.Flags().BoolVar(&watchFlag, "watch", false, "Live TUI view, re-checking on an interval")

	parent.AddCommand(doctorCmd)
}

// CheckResult holds the result of a single doctor check.
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warning", "error"
	Detail string `json:"detail"`
}

// DoctorReport holds the complete doctor output.
type DoctorReport struct {
	Healthy bool          `json:"healthy"`
	Checks  []CheckResult `json:"checks"`
}

// Testable check functions — replaceable in unit tests.
var (
	UffdChecker      = checkUffd
	SocketChecker    = checkSocket
	HomeDirChecker   = checkHomeDir
	PathLimitChecker = checkPathLimits
	KVMChecker       = checkKVM
)

func runChecks() []CheckResult {
	home := config.WavehostHome()
	return []CheckResult{
		UffdChecker(),
		SocketChecker(),
		HomeDirChecker(home),
		PathLimitChecker(),
		KVMChecker(),
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	if watchFlag {
		return runDoctorWatch(cmd)
	}

	checks := runChecks()

	healthy := true
	for _, c := range checks {
		if c.Status == "error" {
			healthy = false
			break
		}
	}

	report := DoctorReport{
		Healthy: healthy,
		Checks:  checks,
	}

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), report)
	}

	if output.IsQuiet() && healthy {
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), "wavehost doctor")
	fmt.Fprintln(cmd.OutOrStdout())

	var warnings, errors int
	for _, c := range checks {
		symbol := "✓" // checkmark
		switch c.Status {
		case "warning":
			symbol = "⚠" // warning triangle
			warnings++
		case "error":
			symbol = "✗" // X mark
			errors++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %-16s %s\n", symbol, c.Name, c.Detail)
	}

	fmt.Fprintln(cmd.OutOrStdout())

	if errors > 0 {
		var parts []string
		parts = append(parts, pluralize(errors, "error"))
		if warnings > 0 {
			parts = append(parts, pluralize(warnings, "warning"))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Problems found (%s).\n", strings.Join(parts, ", "))
	} else if warnings > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Everything looks good (%s).\n", pluralize(warnings, "warning"))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Everything looks good.")
	}

	if fixFlag {
		runFixes(cmd, checks)
	}

	return nil
}

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// checkUffd reports whether unprivileged userfaultfd(2) is usable, the
// mechanism RestoreFromSnapshot relies on for eager page
// population. Its absence is not fatal: the VM falls back to a plain
// file-backed memory restore.
func checkUffd() CheckResult {
	if vm.ProbeUffd() {
		return CheckResult{
			Name:   "userfaultfd",
			Status: "ok",
			Detail: "unprivileged UFFD available",
		}
	}
	return CheckResult{
		Name:   "userfaultfd",
		Status: "warning",
		Detail: "unavailable — snapshot restore will use eager file-backed copy only",
	}
}

// checkSocket reports whether an AF_INET/SOCK_STREAM socket can be
// created, the same (domain, type) pair sock_open validates against the
// netlist before ever reaching the kernel.
func checkSocket() CheckResult {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return CheckResult{
			Name:   "af_inet socket",
			Status: "error",
			Detail: fmt.Sprintf("socket(AF_INET, SOCK_STREAM) failed: %s", err),
		}
	}
	unix.Close(fd)
	return CheckResult{
		Name:   "af_inet socket",
		Status: "ok",
		Detail: "socket(AF_INET, SOCK_STREAM) succeeded",
	}
}

// checkHomeDir verifies the configured sandbox home exists and is a
// directory — the single preopen every *at shim resolves relative to. A
// missing home is reported as a warning; it is not created here.
func checkHomeDir(home string) CheckResult {
	info, err := os.Stat(home)
	if os.IsNotExist(err) {
		return CheckResult{
			Name:   "home dir",
			Status: "warning",
			Detail: fmt.Sprintf("%s does not exist yet", shortenHome(home)),
		}
	}
	if err != nil {
		return CheckResult{
			Name:   "home dir",
			Status: "error",
			Detail: fmt.Sprintf("stat %s: %s", shortenHome(home), err),
		}
	}
	if !info.IsDir() {
		return CheckResult{
			Name:   "home dir",
			Status: "error",
			Detail: fmt.Sprintf("%s exists but is not a directory", shortenHome(home)),
		}
	}
	return CheckResult{
		Name:   "home dir",
		Status: "ok",
		Detail: shortenHome(home),
	}
}

// checkPathLimits creates a single throwaway symlink in a temp directory
// and checks that the host resolves it, then reports the resolver's
// symlink cap. It does not build a chain of that length or compare the
// cap with the running kernel's own limits.
func checkPathLimits() CheckResult {
	const maxSymlinks = 10 // mirrors pathres.MaxSymlinks
	tmp, err := os.MkdirTemp("", "wavehost-doctor-*")
	if err != nil {
		return CheckResult{
			Name:   "path limits",
			Status: "warning",
			Detail: fmt.Sprintf("could not probe: %s", err),
		}
	}
	defer os.RemoveAll(tmp)

	target := tmp + "/target"
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		return CheckResult{
			Name:   "path limits",
			Status: "warning",
			Detail: fmt.Sprintf("could not probe: %s", err),
		}
	}

	link := tmp + "/link"
	if err := os.Symlink(target, link); err != nil {
		return CheckResult{
			Name:   "path limits",
			Status: "warning",
			Detail: fmt.Sprintf("could not probe symlink creation: %s", err),
		}
	}
	if _, err := os.Stat(link); err != nil {
		return CheckResult{
			Name:   "path limits",
			Status: "error",
			Detail: fmt.Sprintf("symlink resolution failed: %s", err),
		}
	}

	return CheckResult{
		Name:   "path limits",
		Status: "ok",
		Detail: fmt.Sprintf("symlink depth cap %d enforced at the resolver", maxSymlinks),
	}
}

// checkKVM reports whether /dev/kvm is present and accessible, a
// prerequisite only for the optional Firecracker isolation ring.
func checkKVM() CheckResult {
	if vm.KVMAccessible() {
		return CheckResult{
			Name:   "/dev/kvm",
			Status: "ok",
			Detail: "accessible",
		}
	}
	if _, err := os.Stat("/dev/kvm"); err != nil {
		return CheckResult{
			Name:   "/dev/kvm",
			Status: "warning",
			Detail: "not present — microVM isolation ring unavailable, core sandbox still works",
		}
	}
	return CheckResult{
		Name:   "/dev/kvm",
		Status: "warning",
		Detail: "present but not accessible — run 'wavehost doctor --fix' or 'wavehost vm prepare'",
	}
}

func shortenHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}

func runFixes(cmd *cobra.Command, checks []CheckResult) {
	for _, c := range checks {
		if c.Status == "ok" {
			continue
		}
		switch c.Name {
		case "home dir":
			if err := config.EnsureDir(); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\nFix: created %s.\n", shortenHome(config.WavehostHome()))
			}
		case "/dev/kvm":
			if !vm.KVMAccessible() {
				if err := vm.FixKVMAccess(cmd.ErrOrStderr()); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "\nFix failed for /dev/kvm: %s\n", err)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "\nFix: granted /dev/kvm access.")
				}
			}
		}
	}
}

// --- doctor --watch: a live bubbletea view re-running checks on a tick ---

type doctorTickMsg time.Time

type doctorWatchModel struct {
	checks []CheckResult
	width  int
}

func newDoctorWatchModel() doctorWatchModel {
	return doctorWatchModel{checks: runChecks()}
}

func doctorTick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return doctorTickMsg(t)
	})
}

func (m doctorWatchModel) Init() tea.Cmd {
	return doctorTick()
}

func (m doctorWatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case doctorTickMsg:
		m.checks = runChecks()
		return m, doctorTick()
	}
	return m, nil
}

func (m doctorWatchModel) View() string {
	var b strings.Builder
	b.WriteString(tui.StyleTitle.Render("wavehost doctor — watch"))
	b.WriteString("\n\n")
	for _, c := range m.checks {
		style := tui.StyleSuccess
		symbol := "✓"
		switch c.Status {
		case "warning":
			style = tui.StyleWarning
			symbol = "⚠"
		case "error":
			style = tui.StyleError
			symbol = "✗"
		}
		b.WriteString(style.Render(fmt.Sprintf("  %s %-16s %s", symbol, c.Name, c.Detail)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(tui.StyleHelpBar.Render("re-checks every 2s · q to quit"))
	return b.String()
}

func runDoctorWatch(cmd *cobra.Command) error {
	p := tea.NewProgram(newDoctorWatchModel(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
