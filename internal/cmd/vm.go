package cmd

import (
	"fmt"
	"os"

	"github.com/PLSysSec/wave-sub000/internal/config"
	"github.com/PLSysSec/wave-sub000/internal/output"
	"github.com/PLSysSec/wave-sub000/internal/vm"
	"github.com/spf13/cobra"
)

var (
	vmProfileFlag   string
	vmSupervisorBin string
	vmUseUffd       bool
)

func addVMCommands(parent *cobra.Command) {
	vmCmd := &cobra.Command{
		Use:   "vm",
		Short: "Manage Firecracker microVMs for sandbox isolation (experimental, Linux only)",
		Long: `Manage Firecracker microVMs that run the WASI guest supervisor under a
hardware-enforced containment boundary, on top of the software-fault-isolation
core in internal/sandbox.

Subcommands:
  prepare  Build rootfs and create a snapshot for a sandbox profile
  status   Show snapshot and prerequisite status
  clean    Remove VM artifacts (rootfs, snapshots, run state)`,
	}

	prepareCmd := &cobra.Command{
		Use:   "prepare",
		Short: "Build rootfs and create a VM snapshot",
		Long: `Prepare a Firecracker VM snapshot for fast guest startup.

This command:
  1. Downloads the Firecracker binary and kernel (if needed)
  2. Builds a minimal ext4 rootfs carrying the guest supervisor (via Docker)
  3. Boots a fresh Firecracker VM from the rootfs
  4. Waits for the guest supervisor to report ready over vsock
  5. Pauses the VM and creates a memory+state snapshot

First run takes one to two minutes. Subsequent runs for the same profile
skip the rootfs build.

Requirements: Linux, /dev/kvm access, Docker.`,
		RunE: runVMPrepare,
	}
	prepareCmd.Flags().StringVar(&vmProfileFlag, "profile", "default", "Sandbox profile name")
	prepareCmd.Flags().StringVar(&vmSupervisorBin, "supervisor-bin", "", "Path to the statically-linked guest supervisor binary to embed in the rootfs")
	prepareCmd.Flags().BoolVar(&vmUseUffd, "uffd", true, "Use userfaultfd eager-copy restore when available")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show VM prerequisites and snapshot status",
		RunE:  runVMStatus,
	}

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove VM artifacts",
		Long:  "Remove rootfs images, snapshots, and runtime state from <home>/vm.",
		RunE:  runVMClean,
	}
	cleanCmd.Flags().StringVar(&vmProfileFlag, "profile", "", "Clean only this profile (default: all)")

	vmCmd.AddCommand(prepareCmd, statusCmd, cleanCmd)
	parent.AddCommand(vmCmd)
}

func runVMPrepare(cmd *cobra.Command, args []string) error {
	home := config.WavehostHome()

	if vmSupervisorBin == "" {
		return fmt.Errorf("--supervisor-bin is required: path to a statically-linked guest supervisor binary")
	}
	if _, err := os.Stat(vmSupervisorBin); err != nil {
		return fmt.Errorf("supervisor binary %s: %w", vmSupervisorBin, err)
	}

	paths := vm.NewVMPaths(home)

	fmt.Fprintf(cmd.ErrOrStderr(), "Ensuring Firecracker binary...\n")
	if err := vm.EnsureFirecracker(paths, cmd.ErrOrStderr()); err != nil {
		return fmt.Errorf("ensuring firecracker: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Ensuring kernel...\n")
	if err := vm.EnsureKernel(paths, cmd.ErrOrStderr()); err != nil {
		return fmt.Errorf("ensuring kernel: %w", err)
	}

	prereqErrs := vm.CheckPrerequisites(paths)
	if len(prereqErrs) > 0 {
		if vm.HasNonAutoFixErrors(prereqErrs) {
			fmt.Fprintf(cmd.ErrOrStderr(), "\n%s", vm.FormatPrereqErrors(prereqErrs))
			return fmt.Errorf("prerequisites not met (cannot auto-fix)")
		}

		if !vm.KVMAccessible() {
			fmt.Fprintf(cmd.ErrOrStderr(), "/dev/kvm is not accessible. Fixing...\n")
			if err := vm.FixKVMAccess(cmd.ErrOrStderr()); err != nil {
				return fmt.Errorf("fixing KVM access: %w", err)
			}
		}

		prereqErrs = vm.CheckPrerequisites(paths)
		if len(prereqErrs) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "\n%s", vm.FormatPrereqErrors(prereqErrs))
			return fmt.Errorf("prerequisites not met")
		}
	}

	rootfsPath := paths.RootfsForProfile(vmProfileFlag)
	if _, err := os.Stat(rootfsPath); os.IsNotExist(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Building rootfs for profile %s (this may take a few minutes)...\n", vmProfileFlag)
		if err := vm.EnsureRootfs(paths, vmProfileFlag, vmSupervisorBin, cmd.ErrOrStderr()); err != nil {
			return fmt.Errorf("building rootfs: %w", err)
		}
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "Rootfs exists: %s\n", rootfsPath)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Booting VM and creating snapshot for profile %s...\n", vmProfileFlag)
	vmCfg := &vm.VMConfig{
		Home:    home,
		Profile: vmProfileFlag,
		Verbose: output.IsVerbose(),
		UseUffd: vmUseUffd,
	}
	if err := vm.BootAndSnapshot(cmd.Context(), vmCfg, paths, cmd.ErrOrStderr()); err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Snapshot ready for profile %s.\n", vmProfileFlag)

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"profile":      vmProfileFlag,
			"snapshot_dir": paths.SnapshotDirForProfile(vmProfileFlag),
			"status":       "ready",
		})
	}

	return nil
}

func runVMStatus(cmd *cobra.Command, args []string) error {
	home := config.WavehostHome()
	paths := vm.NewVMPaths(home)

	fmt.Fprintln(cmd.OutOrStdout(), "Prerequisites:")
	prereqErrs := vm.CheckPrerequisites(paths)
	if len(prereqErrs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "  All prerequisites met.")
	} else {
		fmt.Fprint(cmd.OutOrStdout(), vm.FormatPrereqErrors(prereqErrs))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\nSnapshots:")
	entries, err := os.ReadDir(paths.SnapshotDir)
	if err != nil || len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "  No snapshots found.")
	} else {
		for _, e := range entries {
			if e.IsDir() {
				profile := e.Name()
				if err := vm.CheckSnapshot(paths, profile); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: ready\n", profile)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: incomplete\n", profile)
				}
			}
		}
	}

	if output.IsJSON() {
		snapshots := []map[string]any{}
		if entries, err := os.ReadDir(paths.SnapshotDir); err == nil {
			for _, e := range entries {
				if e.IsDir() {
					status := "ready"
					if err := vm.CheckSnapshot(paths, e.Name()); err != nil {
						status = "incomplete"
					}
					snapshots = append(snapshots, map[string]any{
						"profile": e.Name(),
						"status":  status,
					})
				}
			}
		}
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"prerequisites_ok": len(prereqErrs) == 0,
			"snapshots":        snapshots,
		})
	}

	return nil
}

func runVMClean(cmd *cobra.Command, args []string) error {
	home := config.WavehostHome()
	paths := vm.NewVMPaths(home)

	if vmProfileFlag != "" {
		snapDir := paths.SnapshotDirForProfile(vmProfileFlag)
		rootfs := paths.RootfsForProfile(vmProfileFlag)
		os.RemoveAll(snapDir)
		os.Remove(rootfs)
		fmt.Fprintf(cmd.ErrOrStderr(), "Cleaned VM artifacts for profile %s\n", vmProfileFlag)
	} else {
		os.RemoveAll(paths.Base)
		fmt.Fprintf(cmd.ErrOrStderr(), "Cleaned all VM artifacts from %s\n", paths.Base)
	}
	return nil
}
