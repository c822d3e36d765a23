// Package facade is the hostcall boundary: it decodes guest-supplied
// integers/pointers, enforces every safety precondition (memory bounds,
// FD ownership, path safety, netlist membership, socket restrictions),
// and only then calls down into the shim layer.
package facade

import (
	"github.com/PLSysSec/wave-sub000/internal/sandbox/ctx"
	"github.com/PLSysSec/wave-sub000/internal/sandbox/fdmap"
	"github.com/PLSysSec/wave-sub000/internal/sandbox/mem"
	"github.com/PLSysSec/wave-sub000/internal/sandbox/netlist"
	"github.com/PLSysSec/wave-sub000/internal/sandbox/shim"
	"github.com/PLSysSec/wave-sub000/internal/sandbox/wasiabi"
	"golang.org/x/sys/unix"
)

// resolvePath checks dirfd safety then runs the path resolver over a
// guest-supplied path buffer, failing closed (Efault/Enotcapable) before
// any OS call is issued. Every hostcall that touches a path goes through
// this single choke point.
func resolvePath(c *ctx.Ctx, dirfd fdmap.GuestFd, pathPtr, pathLen uint32, shouldFollow bool) (string, wasiabi.Errno) {
	hostDirFd, err := c.Fds.Lookup(dirfd)
	if err != wasiabi.Success {
		return "", err
	}
	if !c.PathSafeDirFd(int(hostDirFd)) {
		return "", wasiabi.Enotcapable
	}
	if !mem.FitsInLinMem(uint64(pathPtr), uint64(pathLen)) {
		return "", wasiabi.Efault
	}
	raw := string(c.Mem.CopyBufFromSandbox(pathPtr, pathLen))
	return c.Paths.Resolve(raw, shouldFollow)
}

// PathOpen implements path_open: resolve the path, then openat it
// relative to the sandbox home, registering the resulting host FD under
// a fresh guest FD.
func PathOpen(c *ctx.Ctx, dirfd fdmap.GuestFd, pathPtr, pathLen uint32, shouldFollow bool, oflags int, mode uint32) (fdmap.GuestFd, wasiabi.Errno) {
	path, err := resolvePath(c, dirfd, pathPtr, pathLen, shouldFollow)
	if err != wasiabi.Success {
		return 0, err
	}
	flags := oflags
	if !shouldFollow {
		flags |= unix.O_NOFOLLOW
	}
	hfd, err := shim.OpenAt(c.HomedirHostFd, path, flags, mode)
	if err != wasiabi.Success {
		return 0, err
	}
	return c.Fds.Create(fdmap.HostFd(hfd))
}

// FdRead implements fd_read: translate a guest iovec array into host
// buffers that are bounded views into linear memory, then issue readv.
func FdRead(c *ctx.Ctx, fd fdmap.GuestFd, iovs []wasiabi.IOVec) (uint32, wasiabi.Errno) {
	hfd, err := c.Fds.Lookup(fd)
	if err != wasiabi.Success {
		return 0, err
	}
	bufs, err := translateIOVs(c, iovs)
	if err != wasiabi.Success {
		return 0, err
	}
	n, err := shim.Readv(int(hfd), bufs)
	if err != wasiabi.Success {
		return 0, err
	}
	return uint32(n), wasiabi.Success
}

// FdWrite implements fd_write: the ciovec-array counterpart of FdRead.
func FdWrite(c *ctx.Ctx, fd fdmap.GuestFd, iovs []wasiabi.IOVec) (uint32, wasiabi.Errno) {
	hfd, err := c.Fds.Lookup(fd)
	if err != wasiabi.Success {
		return 0, err
	}
	bufs, err := translateIOVs(c, iovs)
	if err != wasiabi.Success {
		return 0, err
	}
	n, err := shim.Writev(int(hfd), bufs)
	if err != wasiabi.Success {
		return 0, err
	}
	return uint32(n), wasiabi.Success
}

// translateIOVs bounds-checks every iovec before any buffer is handed to
// the OS: a single invalid entry fails the whole call with Efault and no
// syscall is issued.
func translateIOVs(c *ctx.Ctx, iovs []wasiabi.IOVec) ([][]byte, wasiabi.Errno) {
	bufs := make([][]byte, 0, len(iovs))
	for _, iov := range iovs {
		if !mem.FitsInLinMem(uint64(iov.Base), uint64(iov.Len)) {
			return nil, wasiabi.Efault
		}
		bufs = append(bufs, c.Mem.SliceMemMut(iov.Base, iov.Len))
	}
	return bufs, wasiabi.Success
}

// FdClose implements fd_close: release the guest FD slot and close the
// underlying host FD.
func FdClose(c *ctx.Ctx, fd fdmap.GuestFd) wasiabi.Errno {
	hfd, err := c.Fds.Lookup(fd)
	if err != wasiabi.Success {
		return err
	}
	c.Fds.Delete(fd)
	return shim.Close(int(hfd))
}

// FdSeek implements fd_seek.
func FdSeek(c *ctx.Ctx, fd fdmap.GuestFd, offset int64, whence int) (int64, wasiabi.Errno) {
	hfd, err := c.Fds.Lookup(fd)
	if err != wasiabi.Success {
		return 0, err
	}
	return shim.Lseek(int(hfd), offset, whence)
}

// FdFilestatGet implements fd_filestat_get.
func FdFilestatGet(c *ctx.Ctx, fd fdmap.GuestFd) (wasiabi.Filestat, wasiabi.Errno) {
	hfd, err := c.Fds.Lookup(fd)
	if err != wasiabi.Success {
		return wasiabi.Filestat{}, err
	}
	return shim.Fstat(int(hfd))
}

// PathFilestatGet implements path_filestat_get.
func PathFilestatGet(c *ctx.Ctx, dirfd fdmap.GuestFd, pathPtr, pathLen uint32, shouldFollow bool) (wasiabi.Filestat, wasiabi.Errno) {
	path, err := resolvePath(c, dirfd, pathPtr, pathLen, shouldFollow)
	if err != wasiabi.Success {
		return wasiabi.Filestat{}, err
	}
	flags := 0
	if !shouldFollow {
		flags = unix.AT_SYMLINK_NOFOLLOW
	}
	return shim.FstatAt(c.HomedirHostFd, path, flags)
}

// PathCreateDirectory implements path_create_directory.
func PathCreateDirectory(c *ctx.Ctx, dirfd fdmap.GuestFd, pathPtr, pathLen uint32) wasiabi.Errno {
	path, err := resolvePath(c, dirfd, pathPtr, pathLen, false)
	if err != wasiabi.Success {
		return err
	}
	return shim.MkdirAt(c.HomedirHostFd, path, 0o755)
}

// PathUnlinkFile implements path_unlink_file.
func PathUnlinkFile(c *ctx.Ctx, dirfd fdmap.GuestFd, pathPtr, pathLen uint32) wasiabi.Errno {
	path, err := resolvePath(c, dirfd, pathPtr, pathLen, false)
	if err != wasiabi.Success {
		return err
	}
	return shim.UnlinkAt(c.HomedirHostFd, path, 0)
}

// PathRemoveDirectory implements path_remove_directory. The OS's Eexist
// for a non-empty directory is translated to Enotempty.
func PathRemoveDirectory(c *ctx.Ctx, dirfd fdmap.GuestFd, pathPtr, pathLen uint32) wasiabi.Errno {
	path, err := resolvePath(c, dirfd, pathPtr, pathLen, false)
	if err != wasiabi.Success {
		return err
	}
	rerr := shim.UnlinkAt(c.HomedirHostFd, path, unix.AT_REMOVEDIR)
	if rerr == wasiabi.Eexist {
		return wasiabi.Enotempty
	}
	return rerr
}

// PathSymlink implements path_symlink: target is an arbitrary guest
// string, never itself resolved -- only the new link's path is
// home-anchored and validated.
func PathSymlink(c *ctx.Ctx, targetPtr, targetLen uint32, dirfd fdmap.GuestFd, pathPtr, pathLen uint32) wasiabi.Errno {
	if !mem.FitsInLinMem(uint64(targetPtr), uint64(targetLen)) {
		return wasiabi.Efault
	}
	target := string(c.Mem.CopyBufFromSandbox(targetPtr, targetLen))
	path, err := resolvePath(c, dirfd, pathPtr, pathLen, false)
	if err != wasiabi.Success {
		return err
	}
	return shim.SymlinkAt(target, c.HomedirHostFd, path)
}

// PathReadlink implements path_readlink.
func PathReadlink(c *ctx.Ctx, dirfd fdmap.GuestFd, pathPtr, pathLen uint32, bufPtr, bufLen uint32) (uint32, wasiabi.Errno) {
	path, err := resolvePath(c, dirfd, pathPtr, pathLen, false)
	if err != wasiabi.Success {
		return 0, err
	}
	if !mem.FitsInLinMem(uint64(bufPtr), uint64(bufLen)) {
		return 0, wasiabi.Efault
	}
	tmp := make([]byte, bufLen)
	n, err := shim.ReadlinkAt(c.HomedirHostFd, path, tmp)
	if err != wasiabi.Success {
		return 0, err
	}
	if werr := c.Mem.CopyBufToSandbox(bufPtr, tmp, uint32(n)); werr != wasiabi.Success {
		return 0, werr
	}
	return uint32(n), wasiabi.Success
}

// PathRenameFile implements path_rename: both the old and new paths are
// resolved and validated relative to the same home-anchored dirfd.
func PathRenameFile(c *ctx.Ctx, oldDirfd fdmap.GuestFd, oldPtr, oldLen uint32, newDirfd fdmap.GuestFd, newPtr, newLen uint32) wasiabi.Errno {
	oldPath, err := resolvePath(c, oldDirfd, oldPtr, oldLen, false)
	if err != wasiabi.Success {
		return err
	}
	newPath, err := resolvePath(c, newDirfd, newPtr, newLen, false)
	if err != wasiabi.Success {
		return err
	}
	return shim.RenameAt(c.HomedirHostFd, oldPath, c.HomedirHostFd, newPath)
}

// ClockTimeGet implements clock_time_get.
func ClockTimeGet(clockID int32) (uint64, wasiabi.Errno) {
	return shim.ClockGettime(clockID)
}

// ClockResGet implements clock_res_get.
func ClockResGet(clockID int32) (uint64, wasiabi.Errno) {
	return shim.ClockGetres(clockID)
}

// RandomGet implements random_get: fill a guest-owned buffer with CSPRNG
// output, bounds-checked like every other sandbox-memory write.
func RandomGet(c *ctx.Ctx, bufPtr, bufLen uint32) wasiabi.Errno {
	if !mem.FitsInLinMem(uint64(bufPtr), uint64(bufLen)) {
		return wasiabi.Efault
	}
	tmp := make([]byte, bufLen)
	n, err := shim.GetRandom(tmp)
	if err != wasiabi.Success {
		return err
	}
	return c.Mem.CopyBufToSandbox(bufPtr, tmp, uint32(n))
}

// ArgsSizesGet implements args_sizes_get.
func ArgsSizesGet(c *ctx.Ctx) (uint32, uint32) {
	return c.ArgSizesGet()
}

// ArgsGet implements args_get: writes argc guest pointers into
// argvPtr[], each pointing into a copy of the packed arg buffer written
// starting at argvBufPtr.
func ArgsGet(c *ctx.Ctx, argvPtr, argvBufPtr uint32) wasiabi.Errno {
	return writePackedBuffer(c, c.ArgBuffer, argvPtr, argvBufPtr)
}

// EnvironSizesGet implements environ_sizes_get.
func EnvironSizesGet(c *ctx.Ctx) (uint32, uint32) {
	return c.EnvironSizesGet()
}

// EnvironGet implements environ_get, structurally identical to ArgsGet.
func EnvironGet(c *ctx.Ctx, environPtr, environBufPtr uint32) wasiabi.Errno {
	return writePackedBuffer(c, c.EnvBuffer, environPtr, environBufPtr)
}

// writePackedBuffer copies a NUL-separated packed buffer into the
// sandbox at bufPtr, then writes one u32 pointer per entry into the
// guest's pointer array at ptrsPtr.
func writePackedBuffer(c *ctx.Ctx, packed []byte, ptrsPtr, bufPtr uint32) wasiabi.Errno {
	if !mem.FitsInLinMem(uint64(bufPtr), uint64(len(packed))) {
		return wasiabi.Efault
	}
	if werr := c.Mem.CopyBufToSandbox(bufPtr, packed, uint32(len(packed))); werr != wasiabi.Success {
		return werr
	}
	entryStart := bufPtr
	idx := uint32(0)
	for i, b := range packed {
		if b != 0 {
			continue
		}
		slot := ptrsPtr + idx*4
		if !mem.FitsInLinMem(uint64(slot), 4) {
			return wasiabi.Efault
		}
		c.Mem.WriteU32(slot, entryStart)
		entryStart = bufPtr + uint32(i) + 1
		idx++
	}
	return wasiabi.Success
}

// SockOpen implements sock_open: only AF_INET/SOCK_STREAM and
// AF_INET/SOCK_DGRAM are permitted, checked before the underlying
// socket(2) call is ever issued.
func SockOpen(c *ctx.Ctx, domain, typ int32) (fdmap.GuestFd, wasiabi.Errno) {
	proto := netlist.ProtoFromSocketArgs(domain, typ)
	if proto == netlist.ProtoUnknown {
		return 0, wasiabi.Enotsup
	}
	hfd, err := shim.Socket(int(domain), int(typ), 0)
	if err != wasiabi.Success {
		return 0, err
	}
	fdProto := fdmap.ProtoTcp
	if proto == netlist.ProtoUdp {
		fdProto = fdmap.ProtoUdp
	}
	return c.Fds.CreateSock(fdmap.HostFd(hfd), fdProto)
}

// SockConnect implements sock_connect: the endpoint must appear in
// ctx.Netlist or the attempt is rejected with Eacces and no connect(2)
// is issued.
func SockConnect(c *ctx.Ctx, fd fdmap.GuestFd, addr [4]byte, port uint16) wasiabi.Errno {
	hfd, err := c.Fds.Lookup(fd)
	if err != wasiabi.Success {
		return err
	}
	proto, err := c.Fds.SockProto(fd)
	if err != wasiabi.Success {
		return err
	}
	netProto := netlist.ProtoTcp
	if proto == fdmap.ProtoUdp {
		netProto = netlist.ProtoUdp
	}
	addrNum := uint32(addr[0])<<24 | uint32(addr[1])<<16 | uint32(addr[2])<<8 | uint32(addr[3])
	if !c.Netlist.Contains(netProto, addrNum, uint32(port)) {
		return wasiabi.Eacces
	}
	return shim.Connect(int(hfd), addr, port)
}

// SockShutdown implements sock_shutdown.
func SockShutdown(c *ctx.Ctx, fd fdmap.GuestFd, how int) wasiabi.Errno {
	hfd, err := c.Fds.Lookup(fd)
	if err != wasiabi.Success {
		return err
	}
	return shim.Shutdown(int(hfd), how)
}

// FdPrestatGet implements fd_prestat_get: the sandbox exposes exactly
// one preopened directory, its home, at guest path "/".
func FdPrestatGet(c *ctx.Ctx, fd fdmap.GuestFd) (wasiabi.Prestat, wasiabi.Errno) {
	hfd, err := c.Fds.Lookup(fd)
	if err != wasiabi.Success {
		return wasiabi.Prestat{}, err
	}
	if int(hfd) != c.HomedirHostFd {
		return wasiabi.Prestat{}, wasiabi.Ebadf
	}
	return wasiabi.Prestat{Tag: 0, NameLen: uint64(len(c.Homedir))}, wasiabi.Success
}
