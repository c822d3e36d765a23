// Package fdmap implements the bidirectional guest-FD/host-FD table that
// anchors every hostcall's FD argument to a real, owned host descriptor.
package fdmap

import (
	"os"

	"github.com/PLSysSec/wave-sub000/internal/sandbox/wasiabi"
)

// MaxSboxFds is the fixed size of the guest FD table. Slots 0/1/2 are
// stdin/stdout/stderr; slot 3 is the sandbox home directory.
const MaxSboxFds = 8

// GuestFd is a guest-visible file descriptor, an index in [0, MaxSboxFds).
type GuestFd = uint32

// HostFd wraps an opaque host OS file descriptor. Never handed to the guest.
type HostFd int

// Proto tags the WASI protocol of a socket slot.
type Proto uint8

const (
	ProtoUnknown Proto = iota
	ProtoTcp
	ProtoUdp
)

type slot struct {
	fd    HostFd
	open  bool
	proto Proto
	sock  bool
}

// Table is the guest-FD -> host-FD map plus socket protocol metadata and
// the GuestFd allocation discipline (reserve-then-counter).
type Table struct {
	slots   [MaxSboxFds]slot
	reserve []GuestFd
	counter GuestFd
}

// New returns an empty Table: all slots closed, no reserved FDs, counter 0.
func New() *Table {
	return &Table{}
}

// InitStdFds captures stdin/stdout/stderr's host FDs into slots 0-2. Must
// only be called on an empty table; fails with Emfile if any stream's FD
// is negative.
func (t *Table) InitStdFds() wasiabi.Errno {
	if t.counter != 0 {
		return wasiabi.Einval
	}
	fds := []HostFd{HostFd(os.Stdin.Fd()), HostFd(os.Stdout.Fd()), HostFd(os.Stderr.Fd())}
	for _, fd := range fds {
		if fd < 0 {
			return wasiabi.Emfile
		}
	}
	for _, fd := range fds {
		if _, err := t.Create(fd); err != wasiabi.Success {
			return err
		}
	}
	return wasiabi.Success
}

// Lookup translates a guest FD to its host FD. Requires g < MaxSboxFds by
// contract; an out-of-range or closed slot returns Ebadf.
func (t *Table) Lookup(g GuestFd) (HostFd, wasiabi.Errno) {
	if g >= MaxSboxFds || !t.slots[g].open {
		return 0, wasiabi.Ebadf
	}
	return t.slots[g].fd, wasiabi.Success
}

// FdToNative is an alias for Lookup matching the facade's naming for this
// lookup.
func (t *Table) FdToNative(g GuestFd) (HostFd, wasiabi.Errno) {
	return t.Lookup(g)
}

// Contains reports whether Lookup(g) would succeed.
func (t *Table) Contains(g GuestFd) bool {
	_, err := t.Lookup(g)
	return err == wasiabi.Success
}

// SockProto returns the recorded protocol for a socket slot, or
// ProtoUnknown/Enotsock if the slot isn't a socket.
func (t *Table) SockProto(g GuestFd) (Proto, wasiabi.Errno) {
	if g >= MaxSboxFds || !t.slots[g].open || !t.slots[g].sock {
		return ProtoUnknown, wasiabi.Enotsock
	}
	return t.slots[g].proto, wasiabi.Success
}

// popFd allocates the next GuestFd: reused from reserve if non-empty,
// else the monotonic counter. Fails with Emfile once both are exhausted.
func (t *Table) popFd() (GuestFd, wasiabi.Errno) {
	if n := len(t.reserve); n > 0 {
		g := t.reserve[n-1]
		t.reserve = t.reserve[:n-1]
		return g, wasiabi.Success
	}
	if t.counter < MaxSboxFds {
		g := t.counter
		t.counter++
		return g, wasiabi.Success
	}
	return 0, wasiabi.Emfile
}

// Create allocates a new GuestFd for an already-open host FD.
func (t *Table) Create(h HostFd) (GuestFd, wasiabi.Errno) {
	g, err := t.popFd()
	if err != wasiabi.Success {
		return 0, err
	}
	t.slots[g] = slot{fd: h, open: true}
	return g, wasiabi.Success
}

// CreateSock is Create plus recording the socket's WASI protocol tag.
func (t *Table) CreateSock(h HostFd, proto Proto) (GuestFd, wasiabi.Errno) {
	g, err := t.popFd()
	if err != wasiabi.Success {
		return 0, err
	}
	t.slots[g] = slot{fd: h, open: true, proto: proto, sock: true}
	return g, wasiabi.Success
}

// Delete closes a guest FD slot. If it held a host FD, g is pushed onto
// reserve for reuse; the caller remains responsible for closing the
// underlying host FD -- the table tracks ownership bookkeeping, the
// caller performs the syscall.
func (t *Table) Delete(g GuestFd) {
	if g >= MaxSboxFds {
		return
	}
	if t.slots[g].open {
		t.reserve = append(t.reserve, g)
	}
	t.slots[g] = slot{}
}

// Shift renumbers a guest FD: if from was open, to takes its host FD and
// from becomes closed. No reserve push — from's index is not freed for
// reuse, it is simply vacated.
func (t *Table) Shift(from, to GuestFd) {
	if from >= MaxSboxFds || to >= MaxSboxFds {
		return
	}
	if t.slots[from].open {
		t.slots[to] = t.slots[from]
	}
	t.slots[from] = slot{}
}
