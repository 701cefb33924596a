package cper

import (
	"encoding/binary"

	"github.com/google/uuid"
)

const (
	// StatusBlockSize is the generic error status block header size.
	StatusBlockSize = 20
	// DataEntrySize is the generic error data entry header size.
	DataEntrySize = 72

	// Revision carried by every data entry.
	Revision uint16 = 0x300

	// BlockStatusUncorrectable is bit 0 of block_status.
	BlockStatusUncorrectable uint32 = 1
)

// Severity is the generic error severity shared by status blocks and data
// entries.
type Severity uint32

const (
	SeverityRecoverable Severity = 0
	SeverityFatal       Severity = 1
	SeverityCorrected   Severity = 2
	SeverityNone        Severity = 3
)

func (s Severity) String() string {
	switch s {
	case SeverityRecoverable:
		return "recoverable"
	case SeverityFatal:
		return "fatal"
	case SeverityCorrected:
		return "corrected"
	case SeverityNone:
		return "none"
	default:
		return "invalid"
	}
}

// Section-type identifiers. The wire carries them little-endian via
// appendUUIDLE; the byte values must never change.
var (
	SectionMemory      = uuid.MustParse("a5bc1114-6f64-4ede-b863-3e83ed7c83b1")
	SectionPCIeAER     = uuid.MustParse("d995e954-bbc1-430f-ad91-b44dcb3c6f35")
	SectionCXLProtocol = uuid.MustParse("80b9efb4-52b5-4de3-a777-68784b771048")
	SectionCXLGenMedia = uuid.MustParse("fbcd0a77-c260-417f-85a9-088b1621eba6")
)

// appendUUIDLE appends the UUID with the time-low/mid/high fields byte
// swapped, as the record format requires.
func appendUUIDLE(b []byte, u uuid.UUID) []byte {
	b = append(b, u[3], u[2], u[1], u[0])
	b = append(b, u[5], u[4])
	b = append(b, u[7], u[6])
	return append(b, u[8:16]...)
}

func appendZeros(b []byte, n int) []byte {
	return append(b, make([]byte, n)...)
}

// AppendStatusBlock appends the 20-byte generic error status block header.
func AppendStatusBlock(b []byte, blockStatus, rawDataOffset, rawDataLength, dataLength uint32, severity Severity) []byte {
	b = binary.LittleEndian.AppendUint32(b, blockStatus)
	b = binary.LittleEndian.AppendUint32(b, rawDataOffset)
	b = binary.LittleEndian.AppendUint32(b, rawDataLength)
	b = binary.LittleEndian.AppendUint32(b, dataLength)
	return binary.LittleEndian.AppendUint32(b, uint32(severity))
}

// AppendDataEntry appends the 72-byte generic error data entry header. A
// zero fruID means "not present"; a zero timestamp means "unknown".
func AppendDataEntry(b []byte, sectionType uuid.UUID, severity Severity,
	validationBits, flags uint8, errorDataLength uint32,
	fruID uuid.UUID, timestamp uint64) []byte {
	b = appendUUIDLE(b, sectionType)
	b = binary.LittleEndian.AppendUint32(b, uint32(severity))
	b = binary.LittleEndian.AppendUint16(b, Revision)
	b = append(b, validationBits, flags)
	b = binary.LittleEndian.AppendUint32(b, errorDataLength)
	b = appendUUIDLE(b, fruID)
	b = appendZeros(b, 20) // FRU text, unused
	return binary.LittleEndian.AppendUint64(b, timestamp)
}
