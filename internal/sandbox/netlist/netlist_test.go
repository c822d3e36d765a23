package netlist

import "testing"

func TestProtoFromSocketArgs(t *testing.T) {
	if p := ProtoFromSocketArgs(afInet, sockStream); p != ProtoTcp {
		t.Errorf("AF_INET/SOCK_STREAM = %v, want ProtoTcp", p)
	}
	if p := ProtoFromSocketArgs(afInet, sockDgram); p != ProtoUdp {
		t.Errorf("AF_INET/SOCK_DGRAM = %v, want ProtoUdp", p)
	}
	if p := ProtoFromSocketArgs(10 /* AF_INET6 */, sockStream); p != ProtoUnknown {
		t.Errorf("AF_INET6/SOCK_STREAM = %v, want ProtoUnknown", p)
	}
}

// A connect to an address/port not present in the netlist must never
// match, even when the protocol matches some other entry.
func TestContainsExactMatchOnly(t *testing.T) {
	l := List{
		{Protocol: ProtoTcp, Addr: 0x0100007f, Port: 443},
	}
	if !l.Contains(ProtoTcp, 0x0100007f, 443) {
		t.Error("expected exact entry to match")
	}
	if l.Contains(ProtoTcp, 0x0100007f, 80) {
		t.Error("wrong port should not match")
	}
	if l.Contains(ProtoUdp, 0x0100007f, 443) {
		t.Error("wrong protocol should not match")
	}
}

func TestEmptyListMatchesNothing(t *testing.T) {
	var l List
	if l.Contains(ProtoTcp, 1, 1) {
		t.Error("zero-value list should never match (ProtoUnknown entries are inert)")
	}
}

func TestContainsScansAllFourSlots(t *testing.T) {
	l := List{
		{Protocol: ProtoTcp, Addr: 1, Port: 1},
		{Protocol: ProtoTcp, Addr: 2, Port: 2},
		{Protocol: ProtoUdp, Addr: 3, Port: 3},
		{Protocol: ProtoTcp, Addr: 4, Port: 4},
	}
	if !l.Contains(ProtoTcp, 4, 4) {
		t.Error("expected match in the last slot")
	}
}
