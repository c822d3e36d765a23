// Package mem implements the sandbox's linear-memory region: a fixed-size
// byte reservation with software-fault-isolation bounds checks on every
// guest-originating access.
package mem

import (
	"encoding/binary"
	"fmt"

	"github.com/PLSysSec/wave-sub000/internal/sandbox/wasiabi"
	"golang.org/x/sys/unix"
)

// LinMemSize is the guest's linear memory reservation: slightly under 4 GiB
// so that base+LinMemSize cannot overflow a 32-bit sandbox pointer plus
// length computed in a wider type.
const LinMemSize = 4_294_965_096

// guardSize is the inaccessible region mapped past the reservation so that
// out-of-bounds loads/stores issued by generated guest code fault at the
// hardware level. It is defense in depth only — every access in this
// package is bounds-checked in software regardless.
const guardSize = LinMemSize

// SboxPtr is a 32-bit guest-relative offset into linear memory.
type SboxPtr = uint32

// Region owns the guest's linear memory. Exactly one Ctx owns a Region for
// its lifetime; the mapping is released on Close.
type Region struct {
	data   []byte // length LinMemSize, backed by an 8 GiB mmap when guarded
	guarded bool
}

// New reserves a fresh linear-memory region. It first attempts an 8 GiB
// mmap with the upper half PROT_NONE (the guard page); if that mapping
// isn't available on this platform it falls back to a plain heap
// allocation of exactly LinMemSize bytes. Either way FitsInLinMem is the
// actual safety boundary, not the guard mapping.
func New() (*Region, error) {
	data, err := unix.Mmap(-1, 0, 2*LinMemSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return &Region{data: make([]byte, LinMemSize)}, nil
	}
	if err := unix.Mprotect(data[LinMemSize:], unix.PROT_NONE); err != nil {
		unix.Munmap(data)
		return &Region{data: make([]byte, LinMemSize)}, nil
	}
	return &Region{data: data[:LinMemSize], guarded: true}, nil
}

// Close releases the mapping. A Region backed by a plain allocation is
// left to the garbage collector.
func (r *Region) Close() error {
	if r.guarded {
		full := r.data[:2*LinMemSize:2*LinMemSize]
		r.guarded = false
		return unix.Munmap(full)
	}
	return nil
}

// Len returns the region's length, always LinMemSize.
func (r *Region) Len() int { return len(r.data) }

// InLinMem reports whether ptr is a valid single-byte offset.
func InLinMem(ptr uint64) bool {
	return ptr < LinMemSize
}

// FitsInLinMem is the sandbox's software-fault-isolation predicate:
// 0 <= len && ptr <= ptr+len && ptr+len < LinMemSize.
// Arithmetic is carried out in uint64 so the ptr+len computation itself
// cannot wrap before the comparison runs.
func FitsInLinMem(ptr, length uint64) bool {
	end := ptr + length
	return ptr <= end && end < LinMemSize
}

// ReadU16 reads a little-endian u16 at start. Callers must have already
// checked FitsInLinMem(start, 2).
func (r *Region) ReadU16(start uint32) uint16 {
	return binary.LittleEndian.Uint16(r.data[start : start+2])
}

// ReadU32 reads a little-endian u32 at start. Callers must have already
// checked FitsInLinMem(start, 4).
func (r *Region) ReadU32(start uint32) uint32 {
	return binary.LittleEndian.Uint32(r.data[start : start+4])
}

// ReadU64 reads a little-endian u64 at start. Callers must have already
// checked FitsInLinMem(start, 8).
func (r *Region) ReadU64(start uint32) uint64 {
	return binary.LittleEndian.Uint64(r.data[start : start+8])
}

// WriteU8 writes a single byte at start. Callers must have already checked
// FitsInLinMem(start, 1).
func (r *Region) WriteU8(start uint32, v uint8) {
	r.data[start] = v
}

// WriteU16 writes a little-endian u16 at start. Callers must have already
// checked FitsInLinMem(start, 2).
func (r *Region) WriteU16(start uint32, v uint16) {
	binary.LittleEndian.PutUint16(r.data[start:start+2], v)
}

// WriteU32 writes a little-endian u32 at start. Callers must have already
// checked FitsInLinMem(start, 4).
func (r *Region) WriteU32(start uint32, v uint32) {
	binary.LittleEndian.PutUint32(r.data[start:start+4], v)
}

// WriteU64 writes a little-endian u64 at start. Callers must have already
// checked FitsInLinMem(start, 8).
func (r *Region) WriteU64(start uint32, v uint64) {
	binary.LittleEndian.PutUint64(r.data[start:start+8], v)
}

// CopyBufFromSandbox returns an owned copy of n bytes starting at src.
// Requires FitsInLinMem(src, n).
func (r *Region) CopyBufFromSandbox(src uint32, n uint32) []byte {
	out := make([]byte, n)
	copy(out, r.data[src:src+n])
	return out
}

// CopyBufToSandbox copies n bytes from src into the sandbox at dst.
// Requires FitsInLinMem(dst, n); returns Efault if src is shorter than n
// without touching memory.
func (r *Region) CopyBufToSandbox(dst uint32, src []byte, n uint32) wasiabi.Errno {
	if uint32(len(src)) < n {
		return wasiabi.Efault
	}
	copy(r.data[dst:dst+n], src[:n])
	return wasiabi.Success
}

// SliceMemMut returns a bounded mutable view into linear memory, suitable
// as the destination buffer of an OS read. Requires FitsInLinMem(ptr, length).
func (r *Region) SliceMemMut(ptr, length uint32) []byte {
	return r.data[ptr : ptr+length]
}

// NativeIOVec is a host-address iovec, ready to hand to readv/writev-family
// syscalls.
type NativeIOVec struct {
	Base uintptr
	Len  uint32
}

// TranslateIOV swizzles a guest iovec into a host iovec whose Base is
// mem_base+iov.Base. Requires FitsInLinMem(iov.Base, iov.Len).
func (r *Region) TranslateIOV(iov wasiabi.IOVec) NativeIOVec {
	return NativeIOVec{
		Base: uintptr(r.hostAddr(iov.Base)),
		Len:  iov.Len,
	}
}

// hostAddr swizzles a sandbox pointer into a host address within the
// region's backing slice.
func (r *Region) hostAddr(ptr uint32) uintptr {
	if int(ptr) >= len(r.data) {
		panic(fmt.Sprintf("mem: hostAddr(%d) out of bounds without a prior FitsInLinMem check", ptr))
	}
	return uintptr(ptrOf(r.data)) + uintptr(ptr)
}
