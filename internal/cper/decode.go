package cper

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrShortStatusBlock = errors.New("cper: short status block")
	ErrShortDataEntry   = errors.New("cper: short data entry")
	ErrShortSection     = errors.New("cper: short section")
)

// StatusBlock is a decoded generic error status block header.
type StatusBlock struct {
	BlockStatus   uint32
	RawDataOffset uint32
	RawDataLength uint32
	DataLength    uint32
	Severity      Severity
}

func DecodeStatusBlock(b []byte) (StatusBlock, error) {
	if len(b) < StatusBlockSize {
		return StatusBlock{}, ErrShortStatusBlock
	}
	return StatusBlock{
		BlockStatus:   binary.LittleEndian.Uint32(b[0:4]),
		RawDataOffset: binary.LittleEndian.Uint32(b[4:8]),
		RawDataLength: binary.LittleEndian.Uint32(b[8:12]),
		DataLength:    binary.LittleEndian.Uint32(b[12:16]),
		Severity:      Severity(binary.LittleEndian.Uint32(b[16:20])),
	}, nil
}

// DataEntry is a decoded generic error data entry header.
type DataEntry struct {
	SectionType     uuid.UUID
	Severity        Severity
	Revision        uint16
	ValidationBits  uint8
	Flags           uint8
	ErrorDataLength uint32
	FRUID           uuid.UUID
	Timestamp       uint64
}

func DecodeDataEntry(b []byte) (DataEntry, error) {
	if len(b) < DataEntrySize {
		return DataEntry{}, ErrShortDataEntry
	}
	return DataEntry{
		SectionType:     decodeUUIDLE(b[0:16]),
		Severity:        Severity(binary.LittleEndian.Uint32(b[16:20])),
		Revision:        binary.LittleEndian.Uint16(b[20:22]),
		ValidationBits:  b[22],
		Flags:           b[23],
		ErrorDataLength: binary.LittleEndian.Uint32(b[24:28]),
		FRUID:           decodeUUIDLE(b[28:44]),
		Timestamp:       binary.LittleEndian.Uint64(b[64:72]),
	}, nil
}

func decodeUUIDLE(b []byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:16])
	return u
}

// MemorySection is a decoded memory error section.
type MemorySection struct {
	ValidationBits  uint64
	ErrorStatus     uint64
	PhysicalAddress uint64
	ErrorType       uint8
}

func DecodeMemorySection(b []byte) (MemorySection, error) {
	if len(b) < MemorySectionSize {
		return MemorySection{}, ErrShortSection
	}
	return MemorySection{
		ValidationBits:  binary.LittleEndian.Uint64(b[0:8]),
		ErrorStatus:     binary.LittleEndian.Uint64(b[8:16]),
		PhysicalAddress: binary.LittleEndian.Uint64(b[16:24]),
		ErrorType:       b[72],
	}, nil
}

// AERIdentity is the device identity portion of a PCIe error section.
type AERIdentity struct {
	PortType  uint32
	Command   uint16
	Status    uint16
	VendorID  uint16
	DeviceID  uint16
	ClassCode uint32
	Function  uint8
	Slot      uint8
	Bus       uint8
}

func DecodeAERIdentity(b []byte) (AERIdentity, error) {
	if len(b) < AERSectionSize {
		return AERIdentity{}, ErrShortSection
	}
	return AERIdentity{
		PortType:  binary.LittleEndian.Uint32(b[8:12]),
		Command:   binary.LittleEndian.Uint16(b[16:18]),
		Status:    binary.LittleEndian.Uint16(b[18:20]),
		VendorID:  binary.LittleEndian.Uint16(b[24:26]),
		DeviceID:  binary.LittleEndian.Uint16(b[26:28]),
		ClassCode: uint32(b[28]) | uint32(b[29])<<8 | uint32(b[30])<<16,
		Function:  b[31],
		Slot:      b[32],
		Bus:       b[35],
	}, nil
}
