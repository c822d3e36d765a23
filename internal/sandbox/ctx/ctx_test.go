package ctx

import (
	"testing"

	"github.com/PLSysSec/wave-sub000/internal/sandbox/netlist"
)

func TestNewCtxInitializesStdFdsAndHomeDir(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Config{
		HomeDir: dir,
		Args:    []string{"wavehost", "--flag"},
		Env:     []string{"A=1", "B=2"},
		Netlist: netlist.List{},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	for g := uint32(0); g < 3; g++ {
		if !c.Fds.Contains(g) {
			t.Errorf("std fd slot %d should be open", g)
		}
	}
	if !c.Fds.Contains(3) {
		t.Error("home dir fd slot should be open at index 3")
	}
	if !c.PathSafeDirFd(c.HomedirHostFd) {
		t.Error("PathSafeDirFd should accept the home dir's own fd")
	}
	if c.PathSafeDirFd(c.HomedirHostFd + 9999) {
		t.Error("PathSafeDirFd should reject an arbitrary fd")
	}
}

func TestArgAndEnvSizes(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Config{
		HomeDir: dir,
		Args:    []string{"ab", "c"},
		Env:     []string{"X=1"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	argc, argBufLen := c.ArgSizesGet()
	if argc != 2 {
		t.Errorf("argc = %d, want 2", argc)
	}
	// "ab\0" + "c\0" = 5 bytes
	if argBufLen != 5 {
		t.Errorf("arg buffer len = %d, want 5", argBufLen)
	}

	envc, envBufLen := c.EnvironSizesGet()
	if envc != 1 {
		t.Errorf("envc = %d, want 1", envc)
	}
	if envBufLen != 4 { // "X=1\0"
		t.Errorf("env buffer len = %d, want 4", envBufLen)
	}
}
