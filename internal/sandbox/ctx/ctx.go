// Package ctx aggregates the per-sandbox state every shim call operates
// on: linear memory, the FD table, the home directory anchor, the
// argv/envp buffers handed to the guest at startup, and the netlist
// allowlist.
package ctx

import (
	"fmt"

	"github.com/PLSysSec/wave-sub000/internal/sandbox/fdmap"
	"github.com/PLSysSec/wave-sub000/internal/sandbox/mem"
	"github.com/PLSysSec/wave-sub000/internal/sandbox/netlist"
	"github.com/PLSysSec/wave-sub000/internal/sandbox/pathres"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Ctx is the full state of one running sandbox instance.
type Ctx struct {
	Mem     *mem.Region
	Fds     *fdmap.Table
	Paths   *pathres.Resolver
	Netlist netlist.List

	// Homedir is the guest-visible preopened directory name (always "/",
	// the only preopen a sandbox exposes).
	Homedir string
	// HomedirHostFd is the host FD every *at syscall resolves against;
	// the facade checks dirfd == HomedirHostFd before calling a shim that
	// touches the filesystem (the shims themselves do not check).
	HomedirHostFd int

	ArgBuffer []byte
	Argc      int
	EnvBuffer []byte
	Envc      int

	log *logrus.Entry
}

// Config describes how to build a fresh sandbox instance.
type Config struct {
	HomeDir string
	Args    []string
	Env     []string
	Netlist netlist.List
}

// New opens homeDir, allocates linear memory, and assembles a fresh Ctx
// ready to host a guest. The caller must call Close when done.
func New(cfg Config) (*Ctx, error) {
	log := logrus.WithField("component", "sandbox.ctx")

	homeFd, err := unix.Open(cfg.HomeDir, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, fmt.Errorf("ctx: open home dir %q: %w", cfg.HomeDir, err)
	}

	region, err := mem.New()
	if err != nil {
		unix.Close(homeFd)
		return nil, fmt.Errorf("ctx: allocate linear memory: %w", err)
	}

	fds := fdmap.New()
	if rerr := fds.InitStdFds(); rerr != 0 {
		region.Close()
		unix.Close(homeFd)
		return nil, fmt.Errorf("ctx: init std fds: %w", rerr)
	}
	if _, rerr := fds.Create(fdmap.HostFd(homeFd)); rerr != 0 {
		region.Close()
		unix.Close(homeFd)
		return nil, fmt.Errorf("ctx: register home dir fd: %w", rerr)
	}

	argBuf, argc := packStrings(cfg.Args)
	envBuf, envc := packStrings(cfg.Env)

	log.WithFields(logrus.Fields{
		"home_dir": cfg.HomeDir,
		"argc":     argc,
		"envc":     envc,
	}).Debug("sandbox context created")

	return &Ctx{
		Mem:           region,
		Fds:           fds,
		Paths:         pathres.NewResolver(homeFd),
		Netlist:       cfg.Netlist,
		Homedir:       "/",
		HomedirHostFd: homeFd,
		ArgBuffer:     argBuf,
		Argc:          argc,
		EnvBuffer:     envBuf,
		Envc:          envc,
		log:           log,
	}, nil
}

// packStrings concatenates NUL-terminated strings the way the guest's
// args_get/environ_get ABI expects: one flat buffer plus a count.
func packStrings(ss []string) ([]byte, int) {
	var buf []byte
	for _, s := range ss {
		buf = append(buf, []byte(s)...)
		buf = append(buf, 0)
	}
	return buf, len(ss)
}

// ArgSizesGet returns (argc, size of the flat arg buffer), matching
// args_sizes_get's guest-visible contract.
func (c *Ctx) ArgSizesGet() (uint32, uint32) {
	return uint32(c.Argc), uint32(len(c.ArgBuffer))
}

// EnvironSizesGet is ArgSizesGet's environ_sizes_get counterpart.
func (c *Ctx) EnvironSizesGet() (uint32, uint32) {
	return uint32(c.Envc), uint32(len(c.EnvBuffer))
}

// Log returns the structured logger scoped to this context, for shims to
// attach call-specific fields to.
func (c *Ctx) Log() *logrus.Entry {
	return c.log
}

// PathSafeDirFd reports whether dirfd is the one and only directory FD
// every *at shim is permitted to resolve relative paths against. This is
// the runtime's enforcement of the single-preopen home-anchored model:
// no other dirfd value may reach the path resolver.
func (c *Ctx) PathSafeDirFd(dirfd int) bool {
	return dirfd == c.HomedirHostFd
}

// Close releases the linear memory mapping and the home directory FD.
// Guest FDs still open in the table are left for the caller to close
// explicitly if it wants per-FD error reporting; Close itself does not
// walk the table.
func (c *Ctx) Close() error {
	c.log.Debug("sandbox context closing")
	memErr := c.Mem.Close()
	fdErr := unix.Close(c.HomedirHostFd)
	if memErr != nil {
		return memErr
	}
	return fdErr
}
