package cper

import "encoding/binary"

// MemorySectionSize is the fixed memory error section size.
const MemorySectionSize = 80

// Validation bits set in every memory section.
const (
	memValidPhysicalAddress uint64 = 1 << 1
	memValidType            uint64 = 1 << 14
)

// AppendMemorySection appends a memory error section for the given guest
// physical address. Only the address and an "unknown" error type are
// reported; the detailed node/card/module fields stay zero.
func AppendMemorySection(b []byte, physicalAddress uint64) []byte {
	b = binary.LittleEndian.AppendUint64(b, memValidType|memValidPhysicalAddress)
	b = binary.LittleEndian.AppendUint64(b, 0) // error status
	b = binary.LittleEndian.AppendUint64(b, physicalAddress)
	b = appendZeros(b, 48)
	b = append(b, 0) // memory error type: unknown
	return appendZeros(b, 7)
}
