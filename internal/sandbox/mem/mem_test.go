package mem

import "testing"

func TestFitsInLinMemBoundary(t *testing.T) {
	tests := []struct {
		name string
		ptr  uint64
		len  uint64
		want bool
	}{
		{"last byte", LinMemSize - 1, 1, true},
		{"last byte plus one overruns", LinMemSize - 1, 2, false},
		{"zero length at zero", 0, 0, true},
		{"zero length at end", LinMemSize, 0, false}, // end == LinMemSize is not < LinMemSize
		{"whole region", 0, LinMemSize - 1, true},
		{"whole region plus one", 0, LinMemSize, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FitsInLinMem(tt.ptr, tt.len); got != tt.want {
				t.Errorf("FitsInLinMem(%d, %d) = %v, want %v", tt.ptr, tt.len, got, tt.want)
			}
		})
	}
}

func TestInLinMem(t *testing.T) {
	if !InLinMem(0) {
		t.Error("InLinMem(0) should be true")
	}
	if !InLinMem(LinMemSize - 1) {
		t.Error("InLinMem(LinMemSize-1) should be true")
	}
	if InLinMem(LinMemSize) {
		t.Error("InLinMem(LinMemSize) should be false")
	}
}

func TestWriteReadU64RoundTrip(t *testing.T) {
	r := &Region{data: make([]byte, LinMemSize)}
	const addr = 128
	const val = uint64(0x0102030405060708)
	r.WriteU64(addr, val)
	if got := r.ReadU64(addr); got != val {
		t.Errorf("read back %#x, want %#x", got, val)
	}
}

func TestWriteU32LittleEndianByteOrder(t *testing.T) {
	r := &Region{data: make([]byte, LinMemSize)}
	r.WriteU32(0, 0x01020304)
	if got := r.ReadU32(0); got != 0x01020304 {
		t.Errorf("ReadU32 = %#x, want %#x", got, 0x01020304)
	}
	if b := r.data[0]; b != 0x04 {
		t.Errorf("byte 0 = %#x, want 0x04 (little-endian)", b)
	}
	if b := r.data[3]; b != 0x01 {
		t.Errorf("byte 3 = %#x, want 0x01 (little-endian)", b)
	}
}

func TestCopyBufToSandboxShortSrcFaults(t *testing.T) {
	r := &Region{data: make([]byte, LinMemSize)}
	err := r.CopyBufToSandbox(0, []byte{1, 2, 3}, 5)
	if err.Error() != "EFAULT" {
		t.Errorf("expected EFAULT for short source, got %v", err)
	}
}

func TestCopyBufRoundTrip(t *testing.T) {
	r := &Region{data: make([]byte, LinMemSize)}
	src := []byte{9, 8, 7, 6, 5}
	if err := r.CopyBufToSandbox(100, src, uint32(len(src))); err.Error() != "ESUCCESS" {
		t.Fatalf("copy to sandbox failed: %v", err)
	}
	out := r.CopyBufFromSandbox(100, uint32(len(src)))
	for i := range src {
		if out[i] != src[i] {
			t.Fatalf("byte %d = %d, want %d", i, out[i], src[i])
		}
	}
}

func TestSliceMemMutIsAView(t *testing.T) {
	r := &Region{data: make([]byte, LinMemSize)}
	s := r.SliceMemMut(10, 4)
	s[0] = 42
	if r.data[10] != 42 {
		t.Error("SliceMemMut did not return a live view into the region")
	}
}
