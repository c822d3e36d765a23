//go:build linux

package vm

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// dockerfileTemplate builds a minimal Linux image whose only payload is the
// wavehost guest supervisor binary — a static Go binary that listens on
// GuestControlPort over vsock and execs the guest's WASM runtime process on
// request. There is no JVM, no interpreter, no dynamic dependency beyond
// libc: the smaller the guest rootfs, the smaller the attack surface inside
// the VM's own hardware boundary.
const dockerfileTemplate = `FROM alpine:3.19

RUN apk add --no-cache iproute2

COPY guest-supervisor /usr/local/bin/guest-supervisor
RUN chmod +x /usr/local/bin/guest-supervisor
COPY init.sh /sbin/init.sh
RUN chmod +x /sbin/init.sh
`

// initScriptTemplate is the VM init process. Communication with the host is
// over vsock only; no TAP networking is configured because the guest's own
// outbound connections are already mediated by the netlist allow-list
// enforced by internal/sandbox/facade before any socket call reaches here.
const initScriptTemplate = `#!/bin/sh
mount -t proc proc /proc
mount -t sysfs sysfs /sys
mount -t devtmpfs devtmpfs /dev

# Loopback must be up for the supervisor's localhost health endpoint to
# survive a snapshot restore.
ip link set lo up

touch /tmp/supervisor_starting
exec /usr/local/bin/guest-supervisor --vsock-port=%d
`

// buildRootfsDocker builds an ext4 rootfs image using Docker. supervisorBin
// is the path to a statically-linked, linux/amd64 build of the guest
// supervisor that this function copies into the image.
func buildRootfsDocker(paths *VMPaths, profile string, supervisorBin string, stderr io.Writer) error {
	rootfsPath := paths.RootfsForProfile(profile)

	tmpDir, err := os.MkdirTemp("", "wavehost-vm-build-*")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := os.WriteFile(filepath.Join(tmpDir, "Dockerfile"), []byte(dockerfileTemplate), 0o644); err != nil {
		return fmt.Errorf("writing Dockerfile: %w", err)
	}

	initScript := fmt.Sprintf(initScriptTemplate, GuestControlPort)
	if err := os.WriteFile(filepath.Join(tmpDir, "init.sh"), []byte(initScript), 0o755); err != nil {
		return fmt.Errorf("writing init.sh: %w", err)
	}

	if err := copyFile(supervisorBin, filepath.Join(tmpDir, "guest-supervisor")); err != nil {
		return fmt.Errorf("staging guest supervisor binary: %w", err)
	}

	imageName := "wavehost-vm-" + profile

	fmt.Fprintf(stderr, "Building Docker image %s...\n", imageName)
	buildCmd := exec.Command("docker", "build", "-t", imageName, tmpDir)
	buildCmd.Stdout = stderr
	buildCmd.Stderr = stderr
	if err := buildCmd.Run(); err != nil {
		return fmt.Errorf("docker build failed: %w", err)
	}

	createCmd := exec.Command("docker", "create", "--name", "wavehost-vm-export-tmp", imageName)
	createOut, err := createCmd.Output()
	if err != nil {
		return fmt.Errorf("docker create failed: %w", err)
	}
	containerID := string(createOut[:12])
	defer exec.Command("docker", "rm", "-f", "wavehost-vm-export-tmp").Run()

	tarPath := filepath.Join(tmpDir, "rootfs.tar")
	fmt.Fprintf(stderr, "Exporting container %s filesystem...\n", containerID)
	exportCmd := exec.Command("docker", "export", "-o", tarPath, "wavehost-vm-export-tmp")
	exportCmd.Stderr = stderr
	if err := exportCmd.Run(); err != nil {
		return fmt.Errorf("docker export failed: %w", err)
	}

	fmt.Fprintf(stderr, "Creating ext4 rootfs image...\n")
	if err := createExt4FromTar(tarPath, rootfsPath, stderr); err != nil {
		return fmt.Errorf("creating ext4 image: %w", err)
	}

	exec.Command("docker", "rmi", imageName).Run()

	fmt.Fprintf(stderr, "Rootfs created at %s\n", rootfsPath)
	return nil
}

// createExt4FromTar creates an ext4 filesystem image from a tar archive.
// Uses fakeroot + mke2fs -d to build the image with correct root ownership,
// without needing sudo.
func createExt4FromTar(tarPath, outputPath string, stderr io.Writer) error {
	extractDir, err := os.MkdirTemp("", "wavehost-rootfs-extract-*")
	if err != nil {
		return fmt.Errorf("creating extract dir: %w", err)
	}
	defer os.RemoveAll(extractDir)

	fakerootState := filepath.Join(extractDir, ".fakeroot.state")

	fmt.Fprintf(stderr, "Extracting container filesystem (via fakeroot)...\n")
	tarCmd := exec.Command("fakeroot", "-s", fakerootState, "--",
		"tar", "xf", tarPath, "-C", extractDir)
	tarCmd.Stderr = stderr
	if err := tarCmd.Run(); err != nil {
		return fmt.Errorf("extracting tar: %w", err)
	}

	// Create init symlink so /sbin/init also works
	initPath := filepath.Join(extractDir, "sbin", "init")
	os.Remove(initPath)
	os.Symlink("/sbin/init.sh", initPath)

	os.Remove(fakerootState)

	fmt.Fprintf(stderr, "Creating ext4 image from filesystem...\n")
	mkfsCmd := exec.Command("fakeroot", "-i", fakerootState, "--",
		"mke2fs",
		"-t", "ext4",
		"-d", extractDir,
		"-F", // force, don't ask
		"-b", "4096", // block size
		outputPath,
		"256M", // the guest rootfs carries only the supervisor binary + busybox
	)
	mkfsCmd.Stderr = stderr
	if err := mkfsCmd.Run(); err != nil {
		return fmt.Errorf("mke2fs failed: %w", err)
	}

	return nil
}

// copyFile copies src to dst, preserving the executable bit.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode())
}

// EnsureRootfs builds the rootfs for profile if it does not already exist.
func EnsureRootfs(paths *VMPaths, profile string, supervisorBin string, stderr io.Writer) error {
	if err := os.MkdirAll(paths.RootfsDir, 0o755); err != nil {
		return fmt.Errorf("creating rootfs dir: %w", err)
	}
	if _, err := findDocker(); err != nil {
		return fmt.Errorf("docker is required to build a rootfs image: %w", err)
	}
	return buildRootfsDocker(paths, profile, supervisorBin, stderr)
}

func findDocker() (string, error) {
	return exec.LookPath("docker")
}
