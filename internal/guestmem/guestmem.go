package guestmem

import (
	"errors"
	"fmt"
)

var ErrOutOfRange = errors.New("guestmem: access out of range")

// Memory is guest-physical memory as seen by the device model.
type Memory interface {
	ReadAt(addr uint64, b []byte) error
	WriteAt(addr uint64, b []byte) error
}

// Flat is a single contiguous byte-backed memory starting at Base.
type Flat struct {
	base uint64
	data []byte
}

func NewFlat(base, size uint64) *Flat {
	return &Flat{base: base, data: make([]byte, size)}
}

func (m *Flat) Base() uint64 {
	return m.base
}

func (m *Flat) Size() uint64 {
	return uint64(len(m.data))
}

func (m *Flat) ReadAt(addr uint64, b []byte) error {
	off, err := m.offset(addr, uint64(len(b)))
	if err != nil {
		return err
	}
	copy(b, m.data[off:off+uint64(len(b))])
	return nil
}

func (m *Flat) WriteAt(addr uint64, b []byte) error {
	off, err := m.offset(addr, uint64(len(b)))
	if err != nil {
		return err
	}
	copy(m.data[off:], b)
	return nil
}

func (m *Flat) offset(addr, n uint64) (uint64, error) {
	if addr < m.base {
		return 0, fmt.Errorf("%w: addr 0x%x below base 0x%x", ErrOutOfRange, addr, m.base)
	}
	off := addr - m.base
	if off+n > uint64(len(m.data)) {
		return 0, fmt.Errorf("%w: addr 0x%x len %d exceeds region", ErrOutOfRange, addr, n)
	}
	return off, nil
}
