package guestmem

import (
	"bytes"
	"errors"
	"testing"
)

func TestFlatReadWriteRoundTrip(t *testing.T) {
	m := NewFlat(0x4000_0000, 0x1000)
	in := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := m.WriteAt(0x4000_0100, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := make([]byte, 4)
	if err := m.ReadAt(0x4000_0100, out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Fatalf("round trip mismatch: %x != %x", out, in)
	}
}

func TestFlatRejectsBelowBase(t *testing.T) {
	m := NewFlat(0x1000, 0x100)
	if err := m.WriteAt(0xfff, []byte{1}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestFlatRejectsPastEnd(t *testing.T) {
	m := NewFlat(0x1000, 0x100)
	if err := m.ReadAt(0x10fe, make([]byte, 4)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	// Exactly at the end is fine.
	if err := m.ReadAt(0x10fc, make([]byte, 4)); err != nil {
		t.Fatalf("read at tail: %v", err)
	}
}
