package fdmap

import (
	"testing"

	"github.com/PLSysSec/wave-sub000/internal/sandbox/wasiabi"
)

func TestNewTableEmpty(t *testing.T) {
	tbl := New()
	for g := GuestFd(0); g < MaxSboxFds; g++ {
		if tbl.Contains(g) {
			t.Errorf("slot %d should be closed on a fresh table", g)
		}
	}
}

func TestCreateThenLookup(t *testing.T) {
	tbl := New()
	g, err := tbl.Create(HostFd(42))
	if err != 0 {
		t.Fatalf("Create failed: %v", err)
	}
	h, err := tbl.Lookup(g)
	if err != 0 {
		t.Fatalf("Lookup failed: %v", err)
	}
	if h != HostFd(42) {
		t.Errorf("Lookup = %d, want 42", h)
	}
}

func TestLookupOutOfRangeIsEbadf(t *testing.T) {
	tbl := New()
	if _, err := tbl.Lookup(MaxSboxFds); err.String() != "EBADF" {
		t.Errorf("expected EBADF for out-of-range fd, got %v", err)
	}
	if _, err := tbl.Lookup(0); err.String() != "EBADF" {
		t.Errorf("expected EBADF for unopened slot, got %v", err)
	}
}

// Once all MaxSboxFds slots are occupied and none are freed, the next
// Create fails with EMFILE.
func TestTableExhaustionIsEmfile(t *testing.T) {
	tbl := New()
	for i := 0; i < MaxSboxFds; i++ {
		if _, err := tbl.Create(HostFd(i)); err != 0 {
			t.Fatalf("Create #%d unexpectedly failed: %v", i, err)
		}
	}
	if _, err := tbl.Create(HostFd(999)); err.String() != "EMFILE" {
		t.Errorf("expected EMFILE once table is full, got %v", err)
	}
}

// A deleted slot is reused on the next Create, via the reserve stack,
// before the counter advances further.
func TestDeletedSlotIsReusedBeforeGrowingCounter(t *testing.T) {
	tbl := New()
	for i := 0; i < MaxSboxFds; i++ {
		if _, err := tbl.Create(HostFd(i)); err != 0 {
			t.Fatalf("Create #%d failed: %v", i, err)
		}
	}
	tbl.Delete(3)
	if tbl.Contains(3) {
		t.Fatal("slot 3 should be closed after Delete")
	}
	g, err := tbl.Create(HostFd(1000))
	if err != 0 {
		t.Fatalf("Create after Delete failed: %v", err)
	}
	if g != 3 {
		t.Errorf("expected slot 3 to be reused, got slot %d", g)
	}
}

func TestDeleteOnUnopenedSlotDoesNotPushReserve(t *testing.T) {
	tbl := New()
	tbl.Delete(5) // never opened
	g, err := tbl.Create(HostFd(7))
	if err != 0 {
		t.Fatalf("Create failed: %v", err)
	}
	if g != 0 {
		t.Errorf("expected counter-allocated slot 0, got %d (spurious reserve entry)", g)
	}
}

func TestShiftMovesFdAndVacatesSource(t *testing.T) {
	tbl := New()
	src, _ := tbl.Create(HostFd(11))
	tbl.Shift(src, 6)
	if tbl.Contains(src) {
		t.Errorf("source slot %d should be vacated after Shift", src)
	}
	h, err := tbl.Lookup(6)
	if err != 0 || h != HostFd(11) {
		t.Errorf("Lookup(6) = (%d, %v), want (11, ESUCCESS)", h, err)
	}
}

func TestShiftDoesNotFreeSourceForReuseCounter(t *testing.T) {
	tbl := New()
	for i := 0; i < MaxSboxFds; i++ {
		if _, err := tbl.Create(HostFd(i)); err != 0 {
			t.Fatalf("Create #%d failed: %v", i, err)
		}
	}
	tbl.Shift(0, MaxSboxFds-1)
	// slot 0 is vacated but not pushed to reserve; the table is still full
	// from the counter's point of view, so the next Create must fail.
	if _, err := tbl.Create(HostFd(500)); err.String() != "EMFILE" {
		t.Errorf("expected EMFILE since Shift does not free a reserve slot, got %v", err)
	}
}

func TestCreateSockRecordsProto(t *testing.T) {
	tbl := New()
	g, err := tbl.CreateSock(HostFd(9), ProtoTcp)
	if err != 0 {
		t.Fatalf("CreateSock failed: %v", err)
	}
	p, err := tbl.SockProto(g)
	if err != 0 {
		t.Fatalf("SockProto failed: %v", err)
	}
	if p != ProtoTcp {
		t.Errorf("SockProto = %v, want ProtoTcp", p)
	}
}

func TestSockProtoOnPlainFdIsEnotsock(t *testing.T) {
	tbl := New()
	g, _ := tbl.Create(HostFd(1))
	if _, err := tbl.SockProto(g); err.String() != "ENOTSOCK" {
		t.Errorf("expected ENOTSOCK for a non-socket fd, got %v", err)
	}
}

func TestInitStdFdsOccupiesFirstThreeSlots(t *testing.T) {
	tbl := New()
	if err := tbl.InitStdFds(); err != 0 {
		t.Fatalf("InitStdFds failed: %v", err)
	}
	for g := GuestFd(0); g < 3; g++ {
		if !tbl.Contains(g) {
			t.Errorf("slot %d should be open after InitStdFds", g)
		}
	}
}

func TestInitStdFdsRejectsNonEmptyTable(t *testing.T) {
	tbl := New()
	tbl.Create(HostFd(1))
	if err := tbl.InitStdFds(); err != wasiabi.Einval {
		t.Errorf("expected EINVAL on a non-empty table, got %v", err)
	}
}
