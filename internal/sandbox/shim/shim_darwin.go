//go:build darwin

package shim

import (
	"crypto/rand"
	"time"
	"unsafe"

	"github.com/PLSysSec/wave-sub000/internal/sandbox/wasiabi"
	"golang.org/x/sys/unix"
)

// OpenAt wraps openat(2).
func OpenAt(dirfd int, path string, flags int, mode uint32) (int, wasiabi.Errno) {
	return errnoResult(unix.Openat(dirfd, path, flags, mode))
}

// Close wraps close(2).
func Close(fd int) wasiabi.Errno {
	return errnoOnly(unix.Close(fd))
}

// Read wraps read(2).
func Read(fd int, buf []byte) (int, wasiabi.Errno) {
	return errnoResult(unix.Read(fd, buf))
}

// Write wraps write(2).
func Write(fd int, buf []byte) (int, wasiabi.Errno) {
	return errnoResult(unix.Write(fd, buf))
}

// Pread wraps pread(2).
func Pread(fd int, buf []byte, offset int64) (int, wasiabi.Errno) {
	return errnoResult(unix.Pread(fd, buf, offset))
}

// Pwrite wraps pwrite(2).
func Pwrite(fd int, buf []byte, offset int64) (int, wasiabi.Errno) {
	return errnoResult(unix.Pwrite(fd, buf, offset))
}

// Readv wraps readv(2).
func Readv(fd int, bufs [][]byte) (int, wasiabi.Errno) {
	return errnoResult(unix.Readv(fd, bufs))
}

// Writev wraps writev(2).
func Writev(fd int, bufs [][]byte) (int, wasiabi.Errno) {
	return errnoResult(unix.Writev(fd, bufs))
}

// Preadv wraps preadv(2).
func Preadv(fd int, bufs [][]byte, offset int64) (int, wasiabi.Errno) {
	return errnoResult(unix.Preadv(fd, bufs, offset))
}

// Pwritev wraps pwritev(2).
func Pwritev(fd int, bufs [][]byte, offset int64) (int, wasiabi.Errno) {
	return errnoResult(unix.Pwritev(fd, bufs, offset))
}

// Lseek wraps lseek(2).
func Lseek(fd int, offset int64, whence int) (int64, wasiabi.Errno) {
	n, err := unix.Seek(fd, offset, whence)
	if err != nil {
		return 0, wasiabi.FromUnixErr(err)
	}
	return n, wasiabi.Success
}

// Fstat wraps fstat(2).
func Fstat(fd int) (wasiabi.Filestat, wasiabi.Errno) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return wasiabi.Filestat{}, wasiabi.FromUnixErr(err)
	}
	return filestatFromUnix(st), wasiabi.Success
}

// FstatAt wraps fstatat(2).
func FstatAt(dirfd int, path string, flags int) (wasiabi.Filestat, wasiabi.Errno) {
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, path, &st, flags); err != nil {
		return wasiabi.Filestat{}, wasiabi.FromUnixErr(err)
	}
	return filestatFromUnix(st), wasiabi.Success
}

func filestatFromUnix(st unix.Stat_t) wasiabi.Filestat {
	return wasiabi.Filestat{
		Dev:      uint64(st.Dev),
		Ino:      uint64(st.Ino),
		Filetype: uint64(st.Mode),
		Nlink:    uint64(st.Nlink),
		Size:     uint64(st.Size),
		Atim:     uint64(st.Atimespec.Sec)*1e9 + uint64(st.Atimespec.Nsec),
		Mtim:     uint64(st.Mtimespec.Sec)*1e9 + uint64(st.Mtimespec.Nsec),
		Ctim:     uint64(st.Ctimespec.Sec)*1e9 + uint64(st.Ctimespec.Nsec),
	}
}

// FcntlGetfl wraps fcntl(fd, F_GETFL).
func FcntlGetfl(fd int) (int, wasiabi.Errno) {
	return errnoResult(unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0))
}

// FcntlSetfl wraps fcntl(fd, F_SETFL, flags).
func FcntlSetfl(fd int, flags int) wasiabi.Errno {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags)
	return errnoOnly(err)
}

// Ftruncate wraps ftruncate(2).
func Ftruncate(fd int, size int64) wasiabi.Errno {
	return errnoOnly(unix.Ftruncate(fd, size))
}

// Fsync wraps fsync(2).
func Fsync(fd int) wasiabi.Errno {
	return errnoOnly(unix.Fsync(fd))
}

// Fdatasync has no BSD equivalent; darwin treats it as a full fsync,
// matching the libc fall-back the platform-adaptation note describes.
func Fdatasync(fd int) wasiabi.Errno {
	return Fsync(fd)
}

// LinkAt wraps linkat(2).
func LinkAt(olddirfd int, oldpath string, newdirfd int, newpath string, flags int) wasiabi.Errno {
	return errnoOnly(unix.Linkat(olddirfd, oldpath, newdirfd, newpath, flags))
}

// MkdirAt wraps mkdirat(2).
func MkdirAt(dirfd int, path string, mode uint32) wasiabi.Errno {
	return errnoOnly(unix.Mkdirat(dirfd, path, mode))
}

// ReadlinkAt wraps readlinkat(2).
func ReadlinkAt(dirfd int, path string, buf []byte) (int, wasiabi.Errno) {
	return errnoResult(unix.Readlinkat(dirfd, path, buf))
}

// UnlinkAt wraps unlinkat(2).
func UnlinkAt(dirfd int, path string, flags int) wasiabi.Errno {
	return errnoOnly(unix.Unlinkat(dirfd, path, flags))
}

// RenameAt wraps renameat(2).
func RenameAt(olddirfd int, oldpath string, newdirfd int, newpath string) wasiabi.Errno {
	return errnoOnly(unix.Renameat(olddirfd, oldpath, newdirfd, newpath))
}

// SymlinkAt wraps symlinkat(2).
func SymlinkAt(target string, dirfd int, path string) wasiabi.Errno {
	return errnoOnly(unix.Symlinkat(target, dirfd, path))
}

// FutimeNs wraps utimensat(fd, NULL, times, 0), darwin's futimens path.
func FutimeNs(fd int, atime, mtime unix.Timespec) wasiabi.Errno {
	times := [2]unix.Timespec{atime, mtime}
	return errnoOnly(unix.UtimesNanoAt(fd, "", times[:], 0))
}

// UtimensAt wraps utimensat(2).
func UtimensAt(dirfd int, path string, atime, mtime unix.Timespec, flags int) wasiabi.Errno {
	times := [2]unix.Timespec{atime, mtime}
	return errnoOnly(unix.UtimesNanoAt(dirfd, path, times[:], flags))
}

// ClockGettime wraps clock_gettime(2). CLOCK_MONOTONIC on darwin is
// synthesized by the kernel from mach_absolute_time; wall-clock drift
// between it and CLOCK_REALTIME is a known platform quirk, not corrected
// here.
func ClockGettime(clockID int32) (uint64, wasiabi.Errno) {
	var ts unix.Timespec
	if err := unix.ClockGettime(clockID, &ts); err != nil {
		return 0, wasiabi.FromUnixErr(err)
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec), wasiabi.Success
}

// ClockGetres reports a fixed 1us resolution; darwin exposes no
// clock_getres equivalent through x/sys/unix.
func ClockGetres(clockID int32) (uint64, wasiabi.Errno) {
	return 1000, wasiabi.Success
}

// GetRandom reads from the OS CSPRNG. crypto/rand.Read calls the same
// arc4random-family source SecRandomCopyBytes would, without a cgo
// dependency.
func GetRandom(buf []byte) (int, wasiabi.Errno) {
	n, err := rand.Read(buf)
	if err != nil {
		return 0, wasiabi.Eio
	}
	return n, wasiabi.Success
}

// Nanosleep has no direct x/sys/unix wrapper on darwin; time.Sleep is the
// libc-fallback equivalent the platform-adaptation note describes.
func Nanosleep(nanos uint64) wasiabi.Errno {
	time.Sleep(time.Duration(nanos))
	return wasiabi.Success
}

// Getdents64 is synthesized from getdirentries(2) on darwin, wrapped by
// x/sys/unix's ReadDirent.
func Getdents64(fd int, buf []byte) (int, wasiabi.Errno) {
	return errnoResult(unix.ReadDirent(fd, buf))
}

// Socket wraps socket(2).
func Socket(domain, typ, proto int) (int, wasiabi.Errno) {
	return errnoResult(unix.Socket(domain, typ, proto))
}

// Connect wraps connect(2) to an IPv4 endpoint.
func Connect(fd int, addr [4]byte, port uint16) wasiabi.Errno {
	sa := &unix.SockaddrInet4{Port: int(port), Addr: addr}
	return errnoOnly(unix.Connect(fd, sa))
}

// Recvfrom wraps recvfrom(2).
func Recvfrom(fd int, buf []byte, flags int) (int, wasiabi.Errno) {
	n, _, err := unix.Recvfrom(fd, buf, flags)
	if err != nil {
		return 0, wasiabi.FromUnixErr(err)
	}
	return n, wasiabi.Success
}

// Sendto wraps send(2) on a connected socket.
func Sendto(fd int, buf []byte, flags int) (int, wasiabi.Errno) {
	if err := unix.Sendto(fd, buf, flags, nil); err != nil {
		return 0, wasiabi.FromUnixErr(err)
	}
	return len(buf), wasiabi.Success
}

// Shutdown wraps shutdown(2).
func Shutdown(fd int, how int) wasiabi.Errno {
	return errnoOnly(unix.Shutdown(fd, how))
}

// Poll wraps poll(2); darwin has no ppoll(2), so a negative timeout
// blocks indefinitely and a non-negative one is rounded to whole
// milliseconds, matching poll(2)'s own granularity.
func Poll(fds []unix.PollFd, timeoutNanos int64) (int, wasiabi.Errno) {
	timeoutMs := -1
	if timeoutNanos >= 0 {
		timeoutMs = int(timeoutNanos / int64(time.Millisecond))
	}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		return 0, wasiabi.FromUnixErr(err)
	}
	return n, wasiabi.Success
}

// IoctlFIONREAD wraps ioctl(fd, FIONREAD).
func IoctlFIONREAD(fd int) (int, wasiabi.Errno) {
	n, err := unix.IoctlGetInt(fd, unix.FIONREAD)
	if err != nil {
		return 0, wasiabi.FromUnixErr(err)
	}
	return n, wasiabi.Success
}

// Fadvise has no posix_fadvise equivalent on darwin; it is a documented
// no-op hint there, so this shim reports success without touching the
// file.
func Fadvise(fd int, offset int64, length int64, advice int) wasiabi.Errno {
	return wasiabi.Success
}

// Fallocate is synthesized via F_PREALLOCATE, darwin's closest analogue
// to Linux's fallocate(2). F_PREALLOCATE takes a pointer to an
// fstore_t, so it is issued as a raw fcntl syscall rather than through
// FcntlInt, the same unix.Syscall idiom the vm package's uffd handler
// uses for ioctls x/sys/unix has no typed wrapper for.
func Fallocate(fd int, mode uint32, offset int64, length int64) wasiabi.Errno {
	store := unix.Fstore_t{
		Flags:   unix.F_ALLOCATECONTIG,
		Posmode: unix.F_PEOFPOSMODE,
		Offset:  offset,
		Length:  length,
	}
	_, _, errno := unix.Syscall(unix.SYS_FCNTL, uintptr(fd), unix.F_PREALLOCATE, uintptr(unsafe.Pointer(&store)))
	if errno != 0 {
		return wasiabi.FromUnixErr(errno)
	}
	return wasiabi.Success
}
