// Package rasf emulates the platform RAS capability channel: a doorbell
// driven register file the guest uses to query RAS capabilities and drive
// patrol scrub.
//
// The communication area is kept as raw bytes addressed by explicit offsets;
// two layout variants (legacy RASF and RAS2) differ only in the parameter
// block tail.
package rasf

import (
	"encoding/binary"

	"github.com/rs/zerolog"
)

// Variant selects the channel layout and capability set.
type Variant int

const (
	VariantRASF Variant = iota
	VariantRAS2
)

func (v Variant) String() string {
	if v == VariantRAS2 {
		return "ras2"
	}
	return "rasf"
}

// Communication area geometry.
const (
	CommAreaSize   = 0x1000
	DoorbellOffset = 0x800
	IntAckOffset   = 0x808
)

// Shared register offsets.
const (
	offSignature      = 0
	offCommand        = 4
	offStatus         = 6
	offVersion        = 8
	offRASCaps        = 10
	offSetRASCaps     = 26
	offNumParamBlocks = 42
	offSetCapStatus   = 44

	// Patrol scrub parameter block.
	offPBType        = 48
	offPBVersion     = 50
	offPBLength      = 52
	offPBCommand     = 54
	offPBInAddrBase  = 56
	offPBInAddrSize  = 64
	offPBOutAddrBase = 72
	offPBOutAddrSize = 80
	offPBTail        = 88
)

// Variant-specific tail offsets.
const (
	offRASFOutFlags = 88 // u16
	offRASFInSpeed  = 90 // u8

	offRAS2OutFlags    = 88 // u32
	offRAS2OutScrubPar = 92 // u32
	offRAS2InScrubPar  = 96 // u32
)

const (
	cmdExecute uint16 = 1

	pbTypePatrolScrub uint16 = 0

	scrubCmdGetParams uint16 = 1
	scrubCmdStart     uint16 = 2
	scrubCmdStop      uint16 = 3
)

// RAS capability bits, byte 0 of the capability bitmap.
const (
	capRASFScrub         uint8 = 0x1
	capRASFScrubExpToSW  uint8 = 0x2
	capRAS2PatrolScrub   uint8 = 0x1
	capRAS2LA2PATranslat uint8 = 0x2
)

// set-RAS-capabilities status codes.
const (
	StatusSuccess      uint32 = 0
	StatusNotValid     uint32 = 1
	StatusNotSupported uint32 = 2
	StatusBusy         uint32 = 3
	StatusFailed       uint32 = 4
	StatusAborted      uint32 = 5
	StatusInvalidData  uint32 = 6
)

type scrubState struct {
	base       uint64
	size       uint64
	flags      uint8
	minRate    uint8
	maxRate    uint8
	curRate    uint8
	background bool
}

// Channel is one RAS capability communication channel.
type Channel struct {
	variant Variant
	data    []byte
	scrub   scrubState
	log     zerolog.Logger
	irq     func()
}

// NewChannel initializes the communication area and scrub defaults. irq is
// pulsed after every doorbell and may be nil.
func NewChannel(variant Variant, log zerolog.Logger, irq func()) *Channel {
	c := &Channel{
		variant: variant,
		data:    make([]byte, dataSize(variant)),
		log:     log,
		irq:     irq,
	}
	c.stampIdentity()
	c.put16(offStatus, 0x1)
	c.put16(offPBLength, paramBlockLength(variant))

	c.scrub.base = 0x100000
	c.scrub.size = 0x200000
	switch variant {
	case VariantRAS2:
		c.scrub.minRate = 1
		c.scrub.maxRate = 24
		c.scrub.curRate = 10
	default:
		c.scrub.flags = (7 << 1) | 1
	}
	return c
}

func dataSize(v Variant) int {
	if v == VariantRAS2 {
		return offRAS2InScrubPar + 4
	}
	return offRASFInSpeed + 1
}

func paramBlockLength(v Variant) uint16 {
	return uint16(dataSize(v) - offPBType)
}

// stampIdentity writes the fields the guest must not control, unconditionally.
func (c *Channel) stampIdentity() {
	if c.variant == VariantRAS2 {
		c.put32(offSignature, 'R'<<24|'A'<<16|'S'<<8|'2')
		c.data[offRASCaps] = capRAS2PatrolScrub
	} else {
		c.put32(offSignature, 'R'<<24|'A'<<16|'S'<<8|'F')
		c.data[offRASCaps] = capRASFScrub | capRASFScrubExpToSW
	}
	c.put16(offNumParamBlocks, 1)
}

// RegisterRead services a guest read of 1, 2, 4 or 8 bytes.
func (c *Channel) RegisterRead(offset uint64, size int) uint64 {
	if offset+uint64(size) <= uint64(len(c.data)) {
		return c.load(int(offset), size)
	}
	// Doorbell and interrupt-ack read as zero.
	return 0
}

// RegisterWrite services a guest write of 1, 2, 4 or 8 bytes. Writing the
// doorbell executes the pending command.
func (c *Channel) RegisterWrite(offset uint64, size int, value uint64) {
	if offset+uint64(size) <= uint64(len(c.data)) {
		c.store(int(offset), size, value)
		return
	}
	switch offset {
	case DoorbellOffset:
		c.doorbell()
		c.put16(offStatus, 1)
		if c.irq != nil {
			c.irq()
		}
	case IntAckOffset:
		// Edge interrupt, nothing to do.
	}
}

func (c *Channel) doorbell() {
	// Undo any guest writes to host-owned fields before looking at the
	// command.
	c.stampIdentity()
	c.put16(offPBLength, paramBlockLength(c.variant))

	if c.get16(offCommand) != cmdExecute {
		return
	}

	if c.data[offSetRASCaps] == 0 {
		// Initial query: capabilities alone answer it.
		c.put32(offSetCapStatus, StatusSuccess)
		return
	}

	if !c.requestedCapsValid() {
		c.put32(offSetCapStatus, StatusInvalidData)
		return
	}
	if c.get16(offPBType) != pbTypePatrolScrub {
		c.put32(offSetCapStatus, StatusInvalidData)
		return
	}
	if c.get16(offPBLength) != paramBlockLength(c.variant) {
		c.put32(offSetCapStatus, StatusInvalidData)
		return
	}

	switch c.get16(offPBCommand) {
	case scrubCmdGetParams:
		c.scrubGetParams()
	case scrubCmdStart:
		c.scrubStart()
	case scrubCmdStop:
		c.scrubStop()
	default:
		c.put32(offSetCapStatus, StatusInvalidData)
	}
}

func (c *Channel) requestedCapsValid() bool {
	if c.variant == VariantRAS2 {
		return c.data[offSetRASCaps]&capRAS2PatrolScrub != 0
	}
	// Not clear which bit the OS sets; accept either.
	return c.data[offSetRASCaps]&(capRASFScrub|capRASFScrubExpToSW) != 0
}

func (c *Channel) scrubGetParams() {
	c.put64(offPBOutAddrBase, c.scrub.base)
	c.put64(offPBOutAddrSize, c.scrub.size)
	if c.variant == VariantRAS2 {
		c.put32(offRAS2OutFlags, uint32(c.scrub.flags))
		c.put32(offRAS2OutScrubPar,
			uint32(c.scrub.maxRate)<<16|uint32(c.scrub.minRate)<<8|uint32(c.scrub.curRate))
	} else {
		c.put16(offRASFOutFlags, uint16(c.scrub.flags))
	}
	c.put32(offSetCapStatus, StatusSuccess)
}

func (c *Channel) scrubStart() {
	base := c.get64(offPBInAddrBase)
	size := c.get64(offPBInAddrSize)

	if c.variant == VariantRAS2 {
		params := c.get32(offRAS2InScrubPar)
		rate := uint8(params >> 8)
		if rate < c.scrub.minRate || rate > c.scrub.maxRate {
			c.put32(offSetCapStatus, StatusInvalidData)
			return
		}
		c.scrub.curRate = rate
		c.scrub.background = params&0x1 != 0
		c.scrub.flags |= 1
	} else {
		c.scrub.flags = c.data[offRASFInSpeed] | 1
	}

	c.scrub.base = base
	c.scrub.size = size
	c.put64(offPBOutAddrBase, base)
	c.put64(offPBOutAddrSize, size)
	c.put32(offSetCapStatus, StatusSuccess)
	c.log.Debug().
		Str("variant", c.variant.String()).
		Uint64("base", base).
		Uint64("size", size).
		Msg("patrol scrub started")
}

func (c *Channel) scrubStop() {
	if c.variant == VariantRAS2 {
		c.scrub.flags &^= 0x1
	} else {
		c.scrub.flags = c.data[offRASFInSpeed] &^ 0x1
	}
	c.put32(offSetCapStatus, StatusSuccess)
}

// ScrubWindow returns the configured scrub address window.
func (c *Channel) ScrubWindow() (base, size uint64) {
	return c.scrub.base, c.scrub.size
}

// ScrubRunning reports whether patrol scrub is active.
func (c *Channel) ScrubRunning() bool {
	return c.scrub.flags&0x1 != 0
}

// CapStatus returns the last set-RAS-capabilities status.
func (c *Channel) CapStatus() uint32 {
	return c.get32(offSetCapStatus)
}

func (c *Channel) get16(off int) uint16 { return binary.LittleEndian.Uint16(c.data[off : off+2]) }
func (c *Channel) get32(off int) uint32 { return binary.LittleEndian.Uint32(c.data[off : off+4]) }
func (c *Channel) get64(off int) uint64 { return binary.LittleEndian.Uint64(c.data[off : off+8]) }

func (c *Channel) put16(off int, v uint16) { binary.LittleEndian.PutUint16(c.data[off:off+2], v) }
func (c *Channel) put32(off int, v uint32) { binary.LittleEndian.PutUint32(c.data[off:off+4], v) }
func (c *Channel) put64(off int, v uint64) { binary.LittleEndian.PutUint64(c.data[off:off+8], v) }

func (c *Channel) load(off, size int) uint64 {
	switch size {
	case 1:
		return uint64(c.data[off])
	case 2:
		return uint64(c.get16(off))
	case 4:
		return uint64(c.get32(off))
	case 8:
		return c.get64(off)
	default:
		return 0
	}
}

func (c *Channel) store(off, size int, v uint64) {
	switch size {
	case 1:
		c.data[off] = uint8(v)
	case 2:
		c.put16(off, uint16(v))
	case 4:
		c.put32(off, uint32(v))
	case 8:
		c.put64(off, v)
	}
}
