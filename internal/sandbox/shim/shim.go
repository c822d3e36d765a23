// Package shim is the thin, auditable layer of typed wrappers over raw OS
// primitives. Every function here assumes its caller (the facade) has
// already validated memory bounds, FD ownership, and path safety -- a
// shim's job is the OS call and nothing else.
package shim

import (
	"github.com/PLSysSec/wave-sub000/internal/sandbox/wasiabi"
	"golang.org/x/sys/unix"
)

// errnoResult converts a (n, err) pair from an x/sys/unix call into the
// runtime's (n, Errno) shape used throughout this package.
func errnoResult(n int, err error) (int, wasiabi.Errno) {
	if err != nil {
		return 0, wasiabi.FromUnixErr(err)
	}
	return n, wasiabi.Success
}

func errnoOnly(err error) wasiabi.Errno {
	return wasiabi.FromUnixErr(err)
}

// TimespecNanos converts a WASI timestamp (nanoseconds since epoch, or a
// relative duration) into a unix.Timespec.
func TimespecNanos(nanos uint64) unix.Timespec {
	return unix.NsecToTimespec(int64(nanos))
}
