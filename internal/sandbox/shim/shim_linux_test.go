//go:build linux

package shim

import (
	"testing"

	"golang.org/x/sys/unix"
)

func openTestDir(t *testing.T) int {
	t.Helper()
	dir := t.TempDir()
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		t.Fatalf("failed to open test dir: %v", err)
	}
	t.Cleanup(func() { unix.Close(fd) })
	return fd
}

func TestOpenWriteReadCloseRoundTrip(t *testing.T) {
	dirfd := openTestDir(t)
	fd, err := OpenAt(dirfd, "f.txt", unix.O_RDWR|unix.O_CREAT, 0o644)
	if err.String() != "ESUCCESS" {
		t.Fatalf("OpenAt failed: %v", err)
	}
	defer Close(fd)

	n, err := Write(fd, []byte("hello"))
	if err.String() != "ESUCCESS" || n != 5 {
		t.Fatalf("Write = (%d, %v), want (5, ESUCCESS)", n, err)
	}

	if _, err := Lseek(fd, 0, 0); err.String() != "ESUCCESS" {
		t.Fatalf("Lseek failed: %v", err)
	}

	buf := make([]byte, 5)
	n, err = Read(fd, buf)
	if err.String() != "ESUCCESS" || n != 5 || string(buf) != "hello" {
		t.Fatalf("Read = (%d, %q, %v), want (5, hello, ESUCCESS)", n, buf, err)
	}
}

func TestOpenAtNonexistentIsEnoent(t *testing.T) {
	dirfd := openTestDir(t)
	if _, err := OpenAt(dirfd, "missing.txt", unix.O_RDONLY, 0); err.String() != "ENOENT" {
		t.Errorf("expected ENOENT, got %v", err)
	}
}

func TestMkdiratThenFstatatReportsDirectory(t *testing.T) {
	dirfd := openTestDir(t)
	if err := MkdirAt(dirfd, "sub", 0o755); err.String() != "ESUCCESS" {
		t.Fatalf("MkdirAt failed: %v", err)
	}
	st, err := FstatAt(dirfd, "sub", 0)
	if err.String() != "ESUCCESS" {
		t.Fatalf("FstatAt failed: %v", err)
	}
	if st.Filetype&unix.S_IFDIR == 0 {
		t.Errorf("expected S_IFDIR bit set, got mode %#o", st.Filetype)
	}
}

func TestSymlinkAtAndReadlinkAtRoundTrip(t *testing.T) {
	dirfd := openTestDir(t)
	if err := SymlinkAt("target", dirfd, "link"); err.String() != "ESUCCESS" {
		t.Fatalf("SymlinkAt failed: %v", err)
	}
	buf := make([]byte, 64)
	n, err := ReadlinkAt(dirfd, "link", buf)
	if err.String() != "ESUCCESS" || string(buf[:n]) != "target" {
		t.Errorf("ReadlinkAt = (%q, %v), want (target, ESUCCESS)", buf[:n], err)
	}
}

func TestUnlinkAtRemovesFile(t *testing.T) {
	dirfd := openTestDir(t)
	fd, _ := OpenAt(dirfd, "gone.txt", unix.O_RDWR|unix.O_CREAT, 0o644)
	Close(fd)
	if err := UnlinkAt(dirfd, "gone.txt", 0); err.String() != "ESUCCESS" {
		t.Fatalf("UnlinkAt failed: %v", err)
	}
	if _, err := FstatAt(dirfd, "gone.txt", 0); err.String() != "ENOENT" {
		t.Errorf("expected ENOENT after unlink, got %v", err)
	}
}

func TestClockGettimeMonotonicIncreasesOverTime(t *testing.T) {
	first, err := ClockGettime(unix.CLOCK_MONOTONIC)
	if err.String() != "ESUCCESS" {
		t.Fatalf("ClockGettime failed: %v", err)
	}
	second, err := ClockGettime(unix.CLOCK_MONOTONIC)
	if err.String() != "ESUCCESS" {
		t.Fatalf("ClockGettime failed: %v", err)
	}
	if second < first {
		t.Errorf("monotonic clock went backwards: %d then %d", first, second)
	}
}

func TestGetRandomFillsBuffer(t *testing.T) {
	buf := make([]byte, 16)
	n, err := GetRandom(buf)
	if err.String() != "ESUCCESS" || n != 16 {
		t.Fatalf("GetRandom = (%d, %v), want (16, ESUCCESS)", n, err)
	}
}

func TestSocketCreateAndShutdown(t *testing.T) {
	fd, err := Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err.String() != "ESUCCESS" {
		t.Fatalf("Socket failed: %v", err)
	}
	defer Close(fd)
	// An unconnected stream socket cannot be shut down; the shim must
	// still surface the OS's own errno rather than panicking.
	if serr := Shutdown(fd, unix.SHUT_RDWR); serr.String() != "ENOTCONN" {
		t.Errorf("expected ENOTCONN shutting down an unconnected socket, got %v", serr)
	}
}
