//go:build linux

package vm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	firecracker "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	// VsockCID is the guest Context Identifier for the vsock device.
	// Must be >= 3 (0=hypervisor, 1=reserved, 2=host).
	VsockCID = 3
)

// BootAndSnapshot boots a fresh VM running the guest supervisor, waits for
// it to come up over vsock, then pauses and snapshots the VM. Used by
// `wavehost vm prepare`.
func BootAndSnapshot(ctx context.Context, cfg *VMConfig, paths *VMPaths, stderr io.Writer) error {
	profile := cfg.Profile
	rootfsPath := paths.RootfsForProfile(profile)
	snapDir := paths.SnapshotDirForProfile(profile)

	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	diskPath := filepath.Join(snapDir, "disk.ext4")
	if err := copyFile(rootfsPath, diskPath); err != nil {
		return fmt.Errorf("copying rootfs for snapshot: %w", err)
	}

	instanceID := "prepare-" + uuid.NewString()
	instanceDir := paths.InstanceDir(instanceID)
	if err := os.MkdirAll(instanceDir, 0o755); err != nil {
		return fmt.Errorf("creating instance dir: %w", err)
	}
	defer os.RemoveAll(instanceDir)

	socketPath := filepath.Join(instanceDir, "firecracker.sock")
	// The vsock UDS path is embedded in the snapshot's binary state, so it
	// must live somewhere that is still valid after restore — the snapshot
	// directory, not the ephemeral instance dir.
	vsockPath := filepath.Join(snapDir, "vsock.sock")

	machine, err := startMachine(ctx, cfg, paths, socketPath, vsockPath, diskPath, stderr)
	if err != nil {
		return err
	}
	defer machine.StopVMM()

	fmt.Fprintf(stderr, "VM booted, waiting for guest supervisor via vsock...\n")
	if err := waitForVsock(ctx, vsockPath, GuestControlPort, 60*time.Second); err != nil {
		return fmt.Errorf("guest supervisor not reachable via vsock within 60s: %w", err)
	}

	fmt.Fprintf(stderr, "Pausing VM and writing snapshot...\n")
	if err := machine.PauseVM(ctx); err != nil {
		return fmt.Errorf("pausing VM: %w", err)
	}

	memPath := filepath.Join(snapDir, "snapshot_mem")
	statePath := filepath.Join(snapDir, "snapshot_vmstate")
	if err := machine.CreateSnapshot(ctx, memPath, statePath); err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}

	meta := SnapshotMetadata{
		Profile:    profile,
		CreatedAt:  time.Now(),
		MemSizeMiB: cfg.MemSizeMiB,
	}
	metaPath := filepath.Join(snapDir, "metadata.json")
	if err := writeSnapshotMetadata(metaPath, meta); err != nil {
		return fmt.Errorf("writing snapshot metadata: %w", err)
	}

	fmt.Fprintf(stderr, "Snapshot written to %s\n", snapDir)
	return nil
}

// RestoreFromSnapshot boots a VM from a previously created snapshot, using
// the userfaultfd eager-copy handler in uffd_linux.go to populate guest
// memory on demand rather than blocking on a full memory-file read.
func RestoreFromSnapshot(ctx context.Context, cfg *VMConfig, paths *VMPaths, stderr io.Writer) (*InstanceInfo, *firecracker.Machine, io.Closer, error) {
	snapDir := paths.SnapshotDirForProfile(cfg.Profile)
	if err := CheckSnapshot(paths, cfg.Profile); err != nil {
		return nil, nil, nil, err
	}

	instanceID := uuid.NewString()
	instanceDir := paths.InstanceDir(instanceID)
	if err := os.MkdirAll(instanceDir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("creating instance dir: %w", err)
	}

	socketPath := filepath.Join(instanceDir, "firecracker.sock")
	// The vsock path must match what was embedded at snapshot time.
	vsockPath := filepath.Join(snapDir, "vsock.sock")
	diskPath := filepath.Join(snapDir, "disk.ext4")
	memPath := filepath.Join(snapDir, "snapshot_mem")
	statePath := filepath.Join(snapDir, "snapshot_vmstate")

	vcpuCount := int64(DefaultVCPUCount)
	memSize := int64(DefaultMemSizeMiB)
	fcCfg := firecracker.Config{
		SocketPath:      socketPath,
		KernelImagePath: paths.Kernel,
		Drives: []models.Drive{
			{
				DriveID:      firecracker.String("rootfs"),
				PathOnHost:   firecracker.String(diskPath),
				IsRootDevice: firecracker.Bool(true),
				IsReadOnly:   firecracker.Bool(false),
			},
		},
		VsockDevices: []firecracker.VsockDevice{
			{ID: "vsock0", Path: vsockPath, CID: VsockCID},
		},
		MachineCfg: models.MachineConfiguration{
			VcpuCount:  &vcpuCount,
			MemSizeMib: &memSize,
		},
	}

	fcCmd := firecracker.VMCommandBuilder{}.
		WithBin(paths.Firecracker).
		WithSocketPath(socketPath).
		Build(ctx)

	logger := log.New()
	logger.SetLevel(log.ErrorLevel)

	useUffd := cfg.UseUffd && ProbeUffd()
	if cfg.UseUffd && !useUffd && cfg.Verbose {
		fmt.Fprintf(stderr, "UFFD not available (try: sudo sysctl -w vm.unprivileged_userfaultfd=1), falling back to file backend\n")
	}

	var uffd *uffdHandler
	if useUffd {
		sockPath := filepath.Join(instanceDir, "uffd.sock")
		var err error
		uffd, err = startUffdHandler(ctx, sockPath, memPath, stderr)
		if err != nil {
			os.RemoveAll(instanceDir)
			return nil, nil, nil, fmt.Errorf("starting uffd handler: %w", err)
		}
	}

	var snapshotOpts []firecracker.WithSnapshotOpt
	memFileArg := memPath
	if useUffd {
		memFileArg = ""
		snapshotOpts = append(snapshotOpts,
			firecracker.WithMemoryBackend(models.MemoryBackendBackendTypeUffd, filepath.Join(instanceDir, "uffd.sock")),
			func(sc *firecracker.SnapshotConfig) { sc.ResumeVM = false },
		)
	} else {
		snapshotOpts = append(snapshotOpts, func(sc *firecracker.SnapshotConfig) { sc.ResumeVM = true })
	}

	machine, err := firecracker.NewMachine(ctx, fcCfg,
		firecracker.WithProcessRunner(fcCmd),
		firecracker.WithLogger(log.NewEntry(logger)),
		firecracker.WithSnapshot(memFileArg, statePath, snapshotOpts...),
	)
	if err != nil {
		if uffd != nil {
			uffd.Close()
		}
		os.RemoveAll(instanceDir)
		return nil, nil, nil, fmt.Errorf("creating firecracker machine: %w", err)
	}

	machine.Handlers.FcInit = machine.Handlers.FcInit.Remove(firecracker.AddVsocksHandlerName)
	machine.Handlers.FcInit = machine.Handlers.FcInit.Remove(firecracker.SetupNetworkHandlerName)
	machine.Handlers.FcInit = machine.Handlers.FcInit.Remove(firecracker.CreateLogFilesHandlerName)
	machine.Handlers.FcInit = machine.Handlers.FcInit.Remove(firecracker.BootstrapLoggingHandlerName)

	// Firecracker re-binds this path during restore; a stale socket from a
	// prior run causes EADDRINUSE.
	os.Remove(vsockPath)

	if err := machine.Start(ctx); err != nil {
		if uffd != nil {
			uffd.Close()
		}
		os.RemoveAll(instanceDir)
		return nil, nil, nil, fmt.Errorf("restoring from snapshot: %w", err)
	}

	if useUffd {
		if err := uffd.Wait(ctx); err != nil {
			machine.StopVMM()
			uffd.Close()
			os.RemoveAll(instanceDir)
			return nil, nil, nil, fmt.Errorf("uffd page population: %w", err)
		}
		if err := machine.ResumeVM(ctx); err != nil {
			machine.StopVMM()
			uffd.Close()
			os.RemoveAll(instanceDir)
			return nil, nil, nil, fmt.Errorf("resuming VM after uffd population: %w", err)
		}
	}

	pid, _ := machine.PID()
	info := &InstanceInfo{
		ID:        instanceID,
		PID:       pid,
		Profile:   cfg.Profile,
		VsockPath: vsockPath,
	}

	var closer io.Closer
	if uffd != nil {
		closer = uffd
	}
	return info, machine, closer, nil
}

// DestroyInstance tears down a restored VM and releases its resources.
func DestroyInstance(machine *firecracker.Machine, info *InstanceInfo, paths *VMPaths) {
	if machine != nil {
		machine.StopVMM()
	}
	if info != nil {
		os.RemoveAll(paths.InstanceDir(info.ID))
	}
}

func startMachine(ctx context.Context, cfg *VMConfig, paths *VMPaths, socketPath, vsockPath, diskPath string, stderr io.Writer) (*firecracker.Machine, error) {
	vcpuCount := int64(DefaultVCPUCount)
	memSize := int64(DefaultMemSizeMiB)
	if cfg.VCPUCount > 0 {
		vcpuCount = int64(cfg.VCPUCount)
	}
	if cfg.MemSizeMiB > 0 {
		memSize = int64(cfg.MemSizeMiB)
	}

	fcCfg := firecracker.Config{
		SocketPath:      socketPath,
		KernelImagePath: paths.Kernel,
		KernelArgs:      "console=ttyS0 reboot=k panic=1 pci=off init=/sbin/init.sh",
		Drives: []models.Drive{
			{
				DriveID:      firecracker.String("rootfs"),
				PathOnHost:   firecracker.String(diskPath),
				IsRootDevice: firecracker.Bool(true),
				IsReadOnly:   firecracker.Bool(false),
			},
		},
		VsockDevices: []firecracker.VsockDevice{
			{ID: "vsock0", Path: vsockPath, CID: VsockCID},
		},
		MachineCfg: models.MachineConfiguration{
			VcpuCount:  &vcpuCount,
			MemSizeMib: &memSize,
		},
	}

	if cfg.Verbose {
		fmt.Fprintf(stderr, "Booting VM (kernel=%s, rootfs=%s)...\n", paths.Kernel, diskPath)
	}

	fcCmd := firecracker.VMCommandBuilder{}.
		WithBin(paths.Firecracker).
		WithSocketPath(socketPath).
		WithStdout(stderr).
		WithStderr(stderr).
		Build(ctx)

	logger := log.New()
	logger.SetLevel(log.WarnLevel)

	machine, err := firecracker.NewMachine(ctx, fcCfg,
		firecracker.WithProcessRunner(fcCmd),
		firecracker.WithLogger(log.NewEntry(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating firecracker machine: %w", err)
	}

	machine.Handlers.FcInit = machine.Handlers.FcInit.Append(
		firecracker.NewCreateBalloonHandler(0, true, 0),
	)

	if err := machine.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting VM: %w", err)
	}
	return machine, nil
}

func waitForVsock(ctx context.Context, udsPath string, port uint32, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := connectVsock(udsPath, port)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("timed out waiting for vsock port %d at %s", port, udsPath)
}

// connectVsock dials a Firecracker vsock Unix-domain socket, which expects
// "CONNECT <port>\n" as its handshake before the connection is proxied to
// the guest vsock port.
func connectVsock(udsPath string, port uint32) (net.Conn, error) {
	conn, err := net.Dial("unix", udsPath)
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(conn, "CONNECT %d\n", port); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func writeSnapshotMetadata(path string, meta SnapshotMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
