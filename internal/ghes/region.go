package ghes

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/svetly-todorov/rasctl/internal/fwcfg"
	"github.com/svetly-todorov/rasctl/internal/guestmem"
)

const (
	// MaxRawDataLength is the hard capacity of one error status block slot.
	MaxRawDataLength = 1024

	// SourceCount is the number of hardware error sources: a synchronous
	// external abort source and a GPIO-signaled source.
	SourceCount = 2

	addressSize = 8

	// FileHardwareErrors is the read-only blob holding the error region.
	FileHardwareErrors = "etc/hardware_errors"
	// FileHardwareErrorsAddr is the writable blob firmware fills with the
	// region's guest base address.
	FileHardwareErrorsAddr = "etc/hardware_errors_addr"
)

// slotsOffset is where the status block slots start inside the region.
const slotsOffset = 2 * SourceCount * addressSize

// RegionSize is the full error region blob size.
const RegionSize = slotsOffset + SourceCount*MaxRawDataLength

// State is the hardware error source device state: the shared region blobs
// and the guest memory they are linked into. One State owns all sources;
// record calls are serialized by the device model and never run
// concurrently with each other.
type State struct {
	mem      guestmem.Memory
	addrBlob *fwcfg.Blob
	log      zerolog.Logger
}

// New builds the error region blob, registers the two firmware files, and
// queues the linker commands that let firmware place the region and publish
// its address. Called once at device realize.
func New(mem guestmem.Memory, reg *fwcfg.Registry, linker *fwcfg.Linker, log zerolog.Logger) (*State, error) {
	region := make([]byte, RegionSize)
	// error_block_address entries stay zero until the linker patches them.
	// read_ack_register entries start at 1 so the region is writable after
	// (re)boot.
	for i := 0; i < SourceCount; i++ {
		off := (SourceCount + i) * addressSize
		binary.LittleEndian.PutUint64(region[off:off+addressSize], 1)
	}

	if _, err := reg.Add(FileHardwareErrors, region, true); err != nil {
		return nil, err
	}
	addrBlob, err := reg.Add(FileHardwareErrorsAddr, make([]byte, addressSize), false)
	if err != nil {
		return nil, err
	}

	if err := linker.Allocate(FileHardwareErrors, addressSize); err != nil {
		return nil, err
	}
	for i := 0; i < SourceCount; i++ {
		// Patch error_block_address[i] to point at slot i.
		err := linker.AddPointer(FileHardwareErrors, uint64(i)*addressSize, addressSize,
			FileHardwareErrors, uint64(slotsOffset+i*MaxRawDataLength))
		if err != nil {
			return nil, err
		}
	}
	if err := linker.WritePointer(FileHardwareErrorsAddr, 0, addressSize, FileHardwareErrors, 0); err != nil {
		return nil, err
	}

	return &State{mem: mem, addrBlob: addrBlob, log: log}, nil
}

// BaseAddress returns the guest base address of the error region, or 0
// before firmware has linked it.
func (s *State) BaseAddress() uint64 {
	return s.addrBlob.Uint64At(0)
}

// ReadAck returns the read-ack register value for a source.
func (s *State) ReadAck(sourceID int) (uint64, error) {
	if sourceID < 0 || sourceID >= SourceCount {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSource, sourceID)
	}
	base := s.BaseAddress()
	if base == 0 {
		return 0, ErrNotLinked
	}
	var buf [addressSize]byte
	addr := base + uint64(SourceCount+sourceID)*addressSize
	if err := s.mem.ReadAt(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteAck sets the read-ack register for a source. The guest does this to
// acknowledge a record; tests and the testbench use it to stand in for the
// guest.
func (s *State) WriteAck(sourceID int, v uint64) error {
	if sourceID < 0 || sourceID >= SourceCount {
		return fmt.Errorf("%w: %d", ErrInvalidSource, sourceID)
	}
	base := s.BaseAddress()
	if base == 0 {
		return ErrNotLinked
	}
	addr := base + uint64(SourceCount+sourceID)*addressSize
	return s.writeAck(addr, v)
}

// ReadSlot copies out a source's raw status block slot.
func (s *State) ReadSlot(sourceID int) ([]byte, error) {
	if sourceID < 0 || sourceID >= SourceCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSource, sourceID)
	}
	base := s.BaseAddress()
	if base == 0 {
		return nil, ErrNotLinked
	}
	buf := make([]byte, MaxRawDataLength)
	addr := base + slotsOffset + uint64(sourceID)*MaxRawDataLength
	if err := s.mem.ReadAt(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *State) readAck(ackAddr uint64) (uint64, error) {
	var buf [addressSize]byte
	if err := s.mem.ReadAt(ackAddr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (s *State) writeAck(ackAddr uint64, v uint64) error {
	var buf [addressSize]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return s.mem.WriteAt(ackAddr, buf[:])
}
