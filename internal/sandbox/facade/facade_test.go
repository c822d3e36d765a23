package facade

import (
	"testing"

	"github.com/PLSysSec/wave-sub000/internal/sandbox/ctx"
	"github.com/PLSysSec/wave-sub000/internal/sandbox/netlist"
	"github.com/PLSysSec/wave-sub000/internal/sandbox/wasiabi"
	"golang.org/x/sys/unix"
)

func newTestCtx(t *testing.T) *ctx.Ctx {
	t.Helper()
	c, err := ctx.New(ctx.Config{HomeDir: t.TempDir()})
	if err != nil {
		t.Fatalf("ctx.New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func writeGuestPath(t *testing.T, c *ctx.Ctx, ptr uint32, s string) uint32 {
	t.Helper()
	if werr := c.Mem.CopyBufToSandbox(ptr, []byte(s), uint32(len(s))); werr != wasiabi.Success {
		t.Fatalf("failed writing guest path fixture: %v", werr)
	}
	return uint32(len(s))
}

// A traversal path is rejected with ENOTCAPABLE, and PathOpen never
// calls down into openat.
func TestPathOpenBlocksTraversal(t *testing.T) {
	c := newTestCtx(t)
	const ptr = 4096
	n := writeGuestPath(t, c, ptr, "../../etc/passwd")
	if _, err := PathOpen(c, 3, ptr, n, true, 0, 0); err.String() != "ENOTCAPABLE" {
		t.Errorf("expected ENOTCAPABLE, got %v", err)
	}
}

// Guest FD lifecycle, exercised end-to-end through PathOpen/FdClose.
func TestPathOpenThenCloseReleasesGuestFd(t *testing.T) {
	c := newTestCtx(t)
	const ptr = 4096
	n := writeGuestPath(t, c, ptr, "file.txt")
	g, err := PathOpen(c, 3, ptr, n, true, unix.O_CREAT|unix.O_RDWR, 0o644)
	if err.String() != "ESUCCESS" {
		t.Fatalf("PathOpen failed: %v", err)
	}
	if !c.Fds.Contains(g) {
		t.Fatal("expected guest fd to be registered after PathOpen")
	}
	if cerr := FdClose(c, g); cerr.String() != "ESUCCESS" {
		t.Fatalf("FdClose failed: %v", cerr)
	}
	if c.Fds.Contains(g) {
		t.Error("guest fd should be closed after FdClose")
	}
}

// An out-of-bounds iovec faults before any read.
func TestFdReadBoundsCheckFaultsWithoutSyscall(t *testing.T) {
	c := newTestCtx(t)
	iov := wasiabi.IOVec{Base: uint32(c.Mem.Len() - 10), Len: 20}
	if _, err := FdRead(c, 0, []wasiabi.IOVec{iov}); err.String() != "EFAULT" {
		t.Errorf("expected EFAULT, got %v", err)
	}
}

// A connect outside the netlist is rejected with EACCES before
// connect(2) is attempted.
func TestSockConnectRejectsOutsideNetlist(t *testing.T) {
	c := newTestCtx(t)
	c.Netlist = netlist.List{
		{Protocol: netlist.ProtoTcp, Addr: 0x0a000001, Port: 443},
	}
	g, err := SockOpen(c, 2 /* AF_INET */, 1 /* SOCK_STREAM */)
	if err.String() != "ESUCCESS" {
		t.Fatalf("SockOpen failed: %v", err)
	}
	defer FdClose(c, g)

	if cerr := SockConnect(c, g, [4]byte{10, 0, 0, 2}, 443); cerr.String() != "EACCES" {
		t.Errorf("expected EACCES for an address outside the netlist, got %v", cerr)
	}
}

func TestSockOpenRejectsUnsupportedDomain(t *testing.T) {
	c := newTestCtx(t)
	if _, err := SockOpen(c, 10 /* AF_INET6 */, 1); err.String() != "ENOTSUP" {
		t.Errorf("expected ENOTSUP for an unsupported domain, got %v", err)
	}
}

func TestFdPrestatGetReportsHomeDir(t *testing.T) {
	c := newTestCtx(t)
	p, err := FdPrestatGet(c, 3)
	if err.String() != "ESUCCESS" {
		t.Fatalf("FdPrestatGet failed: %v", err)
	}
	if p.NameLen != 1 { // "/"
		t.Errorf("NameLen = %d, want 1", p.NameLen)
	}
}

func TestArgsGetWritesPointersAndBuffer(t *testing.T) {
	c, err := ctx.New(ctx.Config{HomeDir: t.TempDir(), Args: []string{"a", "bc"}})
	if err != nil {
		t.Fatalf("ctx.New failed: %v", err)
	}
	defer c.Close()

	const argvPtr, argvBufPtr = 4096, 8192
	if werr := ArgsGet(c, argvPtr, argvBufPtr); werr != wasiabi.Success {
		t.Fatalf("ArgsGet failed: %v", werr)
	}
	first := c.Mem.ReadU32(argvPtr)
	second := c.Mem.ReadU32(argvPtr + 4)
	if first != argvBufPtr {
		t.Errorf("first arg pointer = %d, want %d", first, argvBufPtr)
	}
	if second != argvBufPtr+2 { // "a\0" is 2 bytes
		t.Errorf("second arg pointer = %d, want %d", second, argvBufPtr+2)
	}
}
