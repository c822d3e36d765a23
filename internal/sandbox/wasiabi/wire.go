package wasiabi

import "encoding/binary"

// Guest-visible linear-memory layouts, little-endian and bit-exact. Each
// type's Encode/Decode pair is the only place that knows its byte layout;
// everything else in the runtime works with the typed struct.

// IOVecSize is the encoded size of a WASI iovec: u32 base; u32 len.
const IOVecSize = 8

// IOVec is a guest-relative buffer descriptor (ciovec and iovec share this
// layout in WASI preview1).
type IOVec struct {
	Base uint32
	Len  uint32
}

// DecodeIOVec parses an 8-byte guest iovec.
func DecodeIOVec(b []byte) IOVec {
	return IOVec{
		Base: binary.LittleEndian.Uint32(b[0:4]),
		Len:  binary.LittleEndian.Uint32(b[4:8]),
	}
}

// Encode writes the iovec back into an 8-byte buffer.
func (v IOVec) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], v.Base)
	binary.LittleEndian.PutUint32(b[4:8], v.Len)
}

// SubscriptionSize is the encoded size of a WASI Subscription (8-byte
// aligned, 48 bytes).
const SubscriptionSize = 48

// SubscriptionTag selects which union member of Subscription is populated.
type SubscriptionTag uint8

const (
	SubscriptionClock SubscriptionTag = 0
	SubscriptionFdRead SubscriptionTag = 1
	SubscriptionFdWrite SubscriptionTag = 2
)

// Subscription is a poll_oneoff input: either a clock deadline or
// readiness on a guest FD.
type Subscription struct {
	Userdata  uint64
	Tag       SubscriptionTag
	ClockID   uint32 // tag == SubscriptionClock
	Timeout   uint64 // tag == SubscriptionClock, nanoseconds
	Precision uint64 // tag == SubscriptionClock, nanoseconds
	Flags     uint64 // tag == SubscriptionClock
	FD        uint32 // tag == SubscriptionFdRead | SubscriptionFdWrite
}

// DecodeSubscription parses a 48-byte guest Subscription.
func DecodeSubscription(b []byte) Subscription {
	s := Subscription{
		Userdata: binary.LittleEndian.Uint64(b[0:8]),
		Tag:      SubscriptionTag(b[8]),
	}
	body := b[16:]
	switch s.Tag {
	case SubscriptionClock:
		s.ClockID = binary.LittleEndian.Uint32(body[0:4])
		s.Timeout = binary.LittleEndian.Uint64(body[8:16])
		s.Precision = binary.LittleEndian.Uint64(body[16:24])
		s.Flags = binary.LittleEndian.Uint64(body[24:32])
	case SubscriptionFdRead, SubscriptionFdWrite:
		s.FD = binary.LittleEndian.Uint32(body[0:4])
	}
	return s
}

// Encode writes the Subscription back into a 48-byte buffer.
func (s Subscription) Encode(b []byte) {
	for i := range b[:SubscriptionSize] {
		b[i] = 0
	}
	binary.LittleEndian.PutUint64(b[0:8], s.Userdata)
	b[8] = byte(s.Tag)
	body := b[16:]
	switch s.Tag {
	case SubscriptionClock:
		binary.LittleEndian.PutUint32(body[0:4], s.ClockID)
		binary.LittleEndian.PutUint64(body[8:16], s.Timeout)
		binary.LittleEndian.PutUint64(body[16:24], s.Precision)
		binary.LittleEndian.PutUint64(body[24:32], s.Flags)
	case SubscriptionFdRead, SubscriptionFdWrite:
		binary.LittleEndian.PutUint32(body[0:4], s.FD)
	}
}

// EventSize is the encoded size of a WASI Event (8-byte aligned, 32 bytes).
const EventSize = 32

// Event is a poll_oneoff output: the outcome of one Subscription.
type Event struct {
	Userdata uint64
	Error    uint16
	Type     uint16
	Nbytes   uint64
	RWFlags  uint16
}

// DecodeEvent parses a 32-byte guest Event.
func DecodeEvent(b []byte) Event {
	return Event{
		Userdata: binary.LittleEndian.Uint64(b[0:8]),
		Error:    binary.LittleEndian.Uint16(b[8:10]),
		Type:     binary.LittleEndian.Uint16(b[10:12]),
		Nbytes:   binary.LittleEndian.Uint64(b[16:24]),
		RWFlags:  binary.LittleEndian.Uint16(b[24:26]),
	}
}

// Encode writes the Event back into a 32-byte buffer.
func (e Event) Encode(b []byte) {
	for i := range b[:EventSize] {
		b[i] = 0
	}
	binary.LittleEndian.PutUint64(b[0:8], e.Userdata)
	binary.LittleEndian.PutUint16(b[8:10], e.Error)
	binary.LittleEndian.PutUint16(b[10:12], e.Type)
	binary.LittleEndian.PutUint64(b[16:24], e.Nbytes)
	binary.LittleEndian.PutUint16(b[24:26], e.RWFlags)
}

// FdstatSize is the encoded size of a WASI Fdstat (24 bytes).
const FdstatSize = 24

// Fdstat describes a guest FD's file type, flags, and rights.
type Fdstat struct {
	Filetype         uint16
	Flags            uint16
	RightsBase       uint64
	RightsInheriting uint64
}

// DecodeFdstat parses a 24-byte guest Fdstat.
func DecodeFdstat(b []byte) Fdstat {
	return Fdstat{
		Filetype:         binary.LittleEndian.Uint16(b[0:2]),
		Flags:            binary.LittleEndian.Uint16(b[2:4]),
		RightsBase:       binary.LittleEndian.Uint64(b[8:16]),
		RightsInheriting: binary.LittleEndian.Uint64(b[16:24]),
	}
}

// Encode writes the Fdstat back into a 24-byte buffer.
func (f Fdstat) Encode(b []byte) {
	for i := range b[:FdstatSize] {
		b[i] = 0
	}
	binary.LittleEndian.PutUint16(b[0:2], f.Filetype)
	binary.LittleEndian.PutUint16(b[2:4], f.Flags)
	binary.LittleEndian.PutUint64(b[8:16], f.RightsBase)
	binary.LittleEndian.PutUint64(b[16:24], f.RightsInheriting)
}

// FilestatSize is the encoded size of a WASI Filestat (64 bytes).
const FilestatSize = 64

// Filestat mirrors struct stat fields the guest is allowed to observe.
type Filestat struct {
	Dev     uint64
	Ino     uint64
	Filetype uint64
	Nlink   uint64
	Size    uint64
	Atim    uint64 // nanoseconds
	Mtim    uint64 // nanoseconds
	Ctim    uint64 // nanoseconds
}

// Encode writes the Filestat into a 64-byte buffer.
func (f Filestat) Encode(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], f.Dev)
	binary.LittleEndian.PutUint64(b[8:16], f.Ino)
	binary.LittleEndian.PutUint64(b[16:24], f.Filetype)
	binary.LittleEndian.PutUint64(b[24:32], f.Nlink)
	binary.LittleEndian.PutUint64(b[32:40], f.Size)
	binary.LittleEndian.PutUint64(b[40:48], f.Atim)
	binary.LittleEndian.PutUint64(b[48:56], f.Mtim)
	binary.LittleEndian.PutUint64(b[56:64], f.Ctim)
}

// DecodeFilestat parses a 64-byte guest Filestat, the inverse of
// Filestat.Encode.
func DecodeFilestat(b []byte) Filestat {
	return Filestat{
		Dev:      binary.LittleEndian.Uint64(b[0:8]),
		Ino:      binary.LittleEndian.Uint64(b[8:16]),
		Filetype: binary.LittleEndian.Uint64(b[16:24]),
		Nlink:    binary.LittleEndian.Uint64(b[24:32]),
		Size:     binary.LittleEndian.Uint64(b[32:40]),
		Atim:     binary.LittleEndian.Uint64(b[40:48]),
		Mtim:     binary.LittleEndian.Uint64(b[48:56]),
		Ctim:     binary.LittleEndian.Uint64(b[56:64]),
	}
}

// PrestatSize is the encoded size of a WASI Prestat (12 bytes).
const PrestatSize = 12

// Prestat describes a preopened directory (here, always the sandbox home).
type Prestat struct {
	Tag     uint32
	NameLen uint64
}

// Encode writes the Prestat into a 12-byte buffer.
func (p Prestat) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], p.Tag)
	binary.LittleEndian.PutUint64(b[4:12], p.NameLen)
}

// DecodePrestat parses a 12-byte guest Prestat.
func DecodePrestat(b []byte) Prestat {
	return Prestat{
		Tag:     binary.LittleEndian.Uint32(b[0:4]),
		NameLen: binary.LittleEndian.Uint64(b[4:12]),
	}
}
