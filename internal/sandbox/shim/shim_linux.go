//go:build linux

package shim

import (
	"github.com/PLSysSec/wave-sub000/internal/sandbox/wasiabi"
	"golang.org/x/sys/unix"
)

// OpenAt wraps openat(2). Precondition: dirfd == ctx.HomedirHostFd and
// path has already passed the resolver's path_safe check.
func OpenAt(dirfd int, path string, flags int, mode uint32) (int, wasiabi.Errno) {
	return errnoResult(unix.Openat(dirfd, path, flags, mode))
}

// Close wraps close(2).
func Close(fd int) wasiabi.Errno {
	return errnoOnly(unix.Close(fd))
}

// Read wraps read(2). Precondition: buf is a bounded view into linear
// memory obtained via mem.SliceMemMut.
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

// Readv wraps readv(2). Each element of bufs must already be a bounded
// linear-memory view (e.g. one returned by mem.Region.SliceMemMut).
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

// Fstat wraps fstat(2), returning the runtime's wire Filestat directly.
func Fstat(fd int) (wasiabi.Filestat, wasiabi.Errno) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return wasiabi.Filestat{}, wasiabi.FromUnixErr(err)
	}
	return filestatFromUnix(st), wasiabi.Success
}

// FstatAt wraps fstatat(2). Precondition: dirfd == ctx.HomedirHostFd, path
// path_safe per the resolver's should_follow flag encoded in flags.
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
		Ino:      st.Ino,
		Filetype: uint64(st.Mode),
		Nlink:    uint64(st.Nlink),
		Size:     uint64(st.Size),
		Atim:     uint64(st.Atim.Sec)*1e9 + uint64(st.Atim.Nsec),
		Mtim:     uint64(st.Mtim.Sec)*1e9 + uint64(st.Mtim.Nsec),
		Ctim:     uint64(st.Ctim.Sec)*1e9 + uint64(st.Ctim.Nsec),
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

// Fdatasync wraps fdatasync(2).
func Fdatasync(fd int) wasiabi.Errno {
	return errnoOnly(unix.Fdatasync(fd))
}

// LinkAt wraps linkat(2). Precondition: both dirfds equal
// ctx.HomedirHostFd.
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

// RenameAt wraps renameat(2). Precondition: both dirfds equal
// ctx.HomedirHostFd.
func RenameAt(olddirfd int, oldpath string, newdirfd int, newpath string) wasiabi.Errno {
	return errnoOnly(unix.Renameat(olddirfd, oldpath, newdirfd, newpath))
}

// SymlinkAt wraps symlinkat(2).
func SymlinkAt(target string, dirfd int, path string) wasiabi.Errno {
	return errnoOnly(unix.Symlinkat(target, dirfd, path))
}

// FutimeNs wraps futimens(2) via the utimensat(fd, "", times,
// AT_EMPTY_PATH) form, which applies the times to fd itself.
func FutimeNs(fd int, atime, mtime unix.Timespec) wasiabi.Errno {
	times := [2]unix.Timespec{atime, mtime}
	return errnoOnly(unix.UtimesNanoAt(fd, "", times[:], unix.AT_EMPTY_PATH))
}

// UtimensAt wraps utimensat(2). Precondition: dirfd == ctx.HomedirHostFd.
func UtimensAt(dirfd int, path string, atime, mtime unix.Timespec, flags int) wasiabi.Errno {
	times := [2]unix.Timespec{atime, mtime}
	return errnoOnly(unix.UtimesNanoAt(dirfd, path, times[:], flags))
}

// ClockGettime wraps clock_gettime(2), returning nanoseconds.
func ClockGettime(clockID int32) (uint64, wasiabi.Errno) {
	var ts unix.Timespec
	if err := unix.ClockGettime(clockID, &ts); err != nil {
		return 0, wasiabi.FromUnixErr(err)
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec), wasiabi.Success
}

// ClockGetres wraps clock_getres(2), returning nanoseconds.
func ClockGetres(clockID int32) (uint64, wasiabi.Errno) {
	var ts unix.Timespec
	if err := unix.ClockGetres(clockID, &ts); err != nil {
		return 0, wasiabi.FromUnixErr(err)
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec), wasiabi.Success
}

// GetRandom wraps getrandom(2).
func GetRandom(buf []byte) (int, wasiabi.Errno) {
	return errnoResult(unix.Getrandom(buf, 0))
}

// Nanosleep wraps nanosleep(2) for the given duration in nanoseconds. A
// short sleep caused by a signal is surfaced as Eintr rather than
// re-armed automatically.
func Nanosleep(nanos uint64) wasiabi.Errno {
	req := unix.NsecToTimespec(int64(nanos))
	return errnoOnly(unix.Nanosleep(&req, nil))
}

// Getdents64 wraps getdents64(2).
func Getdents64(fd int, buf []byte) (int, wasiabi.Errno) {
	return errnoResult(unix.Getdents(fd, buf))
}

// Socket wraps socket(2). Precondition: domain == AF_INET and
// type in {SOCK_STREAM, SOCK_DGRAM}, enforced by the facade before this
// is ever called.
func Socket(domain, typ, proto int) (int, wasiabi.Errno) {
	return errnoResult(unix.Socket(domain, typ, proto))
}

// Connect wraps connect(2) to an IPv4 endpoint. Precondition:
// addr_in_netlist(ctx.netlist, addr, port) held at call time.
func Connect(fd int, addr [4]byte, port uint16) wasiabi.Errno {
	sa := &unix.SockaddrInet4{Port: int(port), Addr: addr}
	return errnoOnly(unix.Connect(fd, sa))
}

// Recvfrom wraps recvfrom(2), discarding the peer address (the runtime
// only supports connected sockets, matching the original's coverage).
func Recvfrom(fd int, buf []byte, flags int) (int, wasiabi.Errno) {
	n, _, err := unix.Recvfrom(fd, buf, flags)
	if err != nil {
		return 0, wasiabi.FromUnixErr(err)
	}
	return n, wasiabi.Success
}

// Sendto wraps send(2) on a connected socket (no destination override).
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

// Poll wraps ppoll(2), honoring the given timeout in nanoseconds (or no
// timeout at all when negative).
func Poll(fds []unix.PollFd, timeoutNanos int64) (int, wasiabi.Errno) {
	var ts *unix.Timespec
	if timeoutNanos >= 0 {
		t := unix.NsecToTimespec(timeoutNanos)
		ts = &t
	}
	n, err := unix.Ppoll(fds, ts, nil)
	if err != nil {
		return 0, wasiabi.FromUnixErr(err)
	}
	return n, wasiabi.Success
}

// IoctlFIONREAD wraps ioctl(fd, FIONREAD), the bytes-available-to-read
// query.
func IoctlFIONREAD(fd int) (int, wasiabi.Errno) {
	n, err := unix.IoctlGetInt(fd, unix.FIONREAD)
	if err != nil {
		return 0, wasiabi.FromUnixErr(err)
	}
	return n, wasiabi.Success
}

// Fadvise wraps posix_fadvise(2).
func Fadvise(fd int, offset int64, length int64, advice int) wasiabi.Errno {
	return errnoOnly(unix.Fadvise(fd, offset, length, advice))
}

// Fallocate wraps fallocate(2).
func Fallocate(fd int, mode uint32, offset int64, length int64) wasiabi.Errno {
	return errnoOnly(unix.Fallocate(fd, mode, offset, length))
}
