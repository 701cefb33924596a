package fwcfg

import (
	"encoding/binary"
	"fmt"

	"github.com/svetly-todorov/rasctl/internal/guestmem"
)

type cmdKind int

const (
	cmdAllocate cmdKind = iota
	cmdAddPointer
	cmdWritePointer
)

type command struct {
	kind cmdKind

	file  string // allocate: file to place
	align uint64

	dest       string // pointer commands
	destOffset uint64
	size       uint8
	src        string
	srcOffset  uint64
}

// Linker accumulates the commands guest firmware runs at boot. Link replays
// them against guest memory, standing in for the firmware.
type Linker struct {
	reg  *Registry
	cmds []command
}

func NewLinker(reg *Registry) *Linker {
	return &Linker{reg: reg}
}

// Allocate instructs firmware to place a file into guest memory with the
// given alignment.
func (l *Linker) Allocate(file string, align uint64) error {
	if _, ok := l.reg.Lookup(file); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, file)
	}
	l.cmds = append(l.cmds, command{kind: cmdAllocate, file: file, align: align})
	return nil
}

// AddPointer stores srcOffset at destOffset inside dest now and instructs
// firmware to add src's placed address to it at boot, turning the field into
// an absolute guest pointer.
func (l *Linker) AddPointer(dest string, destOffset uint64, size uint8, src string, srcOffset uint64) error {
	db, ok := l.reg.Lookup(dest)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, dest)
	}
	if _, ok := l.reg.Lookup(src); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, src)
	}
	if destOffset+uint64(size) > uint64(len(db.Data)) {
		return fmt.Errorf("%w: %s+0x%x", ErrPatchRange, dest, destOffset)
	}
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], srcOffset)
	copy(db.Data[destOffset:destOffset+uint64(size)], le[:size])
	l.cmds = append(l.cmds, command{
		kind: cmdAddPointer, dest: dest, destOffset: destOffset, size: size, src: src,
	})
	return nil
}

// WritePointer instructs firmware to write src's placed address plus
// srcOffset into the host-side data of the writable dest file once src has
// been placed.
func (l *Linker) WritePointer(dest string, destOffset uint64, size uint8, src string, srcOffset uint64) error {
	db, ok := l.reg.Lookup(dest)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, dest)
	}
	if _, ok := l.reg.Lookup(src); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, src)
	}
	if destOffset+uint64(size) > uint64(len(db.Data)) {
		return fmt.Errorf("%w: %s+0x%x", ErrPatchRange, dest, destOffset)
	}
	l.cmds = append(l.cmds, command{
		kind: cmdWritePointer, dest: dest, destOffset: destOffset,
		size: size, src: src, srcOffset: srcOffset,
	})
	return nil
}

// Link places allocated files into guest memory starting at base and applies
// the pointer patches, in command order.
func (l *Linker) Link(mem guestmem.Memory, base uint64) error {
	next := base
	for _, c := range l.cmds {
		switch c.kind {
		case cmdAllocate:
			b, _ := l.reg.Lookup(c.file)
			addr := alignUp(next, c.align)
			if err := mem.WriteAt(addr, b.Data); err != nil {
				return fmt.Errorf("fwcfg: place %s: %w", c.file, err)
			}
			b.placed = true
			b.guestPos = addr
			next = addr + uint64(len(b.Data))

		case cmdAddPointer:
			dest, _ := l.reg.Lookup(c.dest)
			src, _ := l.reg.Lookup(c.src)
			srcAddr, err := src.GuestAddress()
			if err != nil {
				return err
			}
			destAddr, err := dest.GuestAddress()
			if err != nil {
				return err
			}
			var buf [8]byte
			if err := mem.ReadAt(destAddr+c.destOffset, buf[:c.size]); err != nil {
				return err
			}
			v := binary.LittleEndian.Uint64(buf[:]) + srcAddr
			binary.LittleEndian.PutUint64(buf[:], v)
			if err := mem.WriteAt(destAddr+c.destOffset, buf[:c.size]); err != nil {
				return err
			}

		case cmdWritePointer:
			dest, _ := l.reg.Lookup(c.dest)
			src, _ := l.reg.Lookup(c.src)
			srcAddr, err := src.GuestAddress()
			if err != nil {
				return err
			}
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], srcAddr+c.srcOffset)
			copy(dest.Data[c.destOffset:c.destOffset+uint64(c.size)], buf[:c.size])
		}
	}
	return nil
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
