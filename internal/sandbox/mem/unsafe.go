package mem

import "unsafe"

// ptrOf returns the address of a byte slice's backing array, the same
// unsafe.Pointer(&data[0]) idiom the vm package's uffd handler uses to hand
// a host buffer address to the kernel.
func ptrOf(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
