package ghes

import (
	"encoding/binary"

	"github.com/svetly-todorov/rasctl/internal/fwcfg"
)

// FileACPITables is the blob carrying the error source table.
const FileACPITables = "etc/acpi/tables"

const (
	// Generic Hardware Error Source version 2 entry type.
	sourceTypeGenericV2 = 10

	acpiHeaderSize   = 36
	gasSize          = 12
	notificationSize = 28
)

// BuildHEST builds the hardware error source table describing both sources,
// registers it as a firmware blob, and queues the pointer patches that bind
// each entry's error-status and read-ack addresses to the error region.
func (s *State) BuildHEST(reg *fwcfg.Registry, linker *fwcfg.Linker, oemID, oemTableID string) ([]byte, error) {
	table := make([]byte, 0, 256)
	table = appendACPIHeader(table, "HEST", 1, oemID, oemTableID)

	// Error source count
	table = binary.LittleEndian.AppendUint32(table, SourceCount)

	type patch struct {
		offset    uint64
		srcOffset uint64
	}
	var patches []patch

	for sourceID := 0; sourceID < SourceCount; sourceID++ {
		table = binary.LittleEndian.AppendUint16(table, sourceTypeGenericV2)
		table = binary.LittleEndian.AppendUint16(table, uint16(sourceID))
		table = binary.LittleEndian.AppendUint16(table, 0xffff) // related source id
		table = append(table, 0, 1)                             // flags, enabled
		table = binary.LittleEndian.AppendUint32(table, 1)      // records to pre-allocate
		table = binary.LittleEndian.AppendUint32(table, 1)      // max sections per record
		table = binary.LittleEndian.AppendUint32(table, MaxRawDataLength)

		// Error status address: patched to error_block_address[sourceID].
		patches = append(patches, patch{
			offset:    uint64(len(table)) + 4,
			srcOffset: uint64(sourceID) * addressSize,
		})
		table = appendGAS(table)

		switch sourceID {
		case SourceIDSEA:
			table = appendNotification(table, uint8(NotifySEA))
		case SourceIDGPIO:
			table = appendNotification(table, uint8(NotifyGPIO))
		}

		table = binary.LittleEndian.AppendUint32(table, MaxRawDataLength)

		// Read ack register: patched to read_ack_register[sourceID].
		patches = append(patches, patch{
			offset:    uint64(len(table)) + 4,
			srcOffset: uint64(SourceCount+sourceID) * addressSize,
		})
		table = appendGAS(table)

		// Only bit 0 of the read ack register belongs to the guest.
		table = binary.LittleEndian.AppendUint64(table, ^uint64(0x1)) // preserve
		table = binary.LittleEndian.AppendUint64(table, 0x1)          // write
	}

	table = finishACPIHeader(table)

	if _, err := reg.Add(FileACPITables, table, true); err != nil {
		return nil, err
	}
	if err := linker.Allocate(FileACPITables, 16); err != nil {
		return nil, err
	}
	for _, p := range patches {
		err := linker.AddPointer(FileACPITables, p.offset, addressSize,
			FileHardwareErrors, p.srcOffset)
		if err != nil {
			return nil, err
		}
	}
	return table, nil
}

// appendGAS appends a system-memory generic address structure with qword
// access and a zero address placeholder.
func appendGAS(b []byte) []byte {
	b = append(b, 0)    // address space: system memory
	b = append(b, 0x40) // register bit width
	b = append(b, 0)    // register bit offset
	b = append(b, 4)    // access size: qword
	return binary.LittleEndian.AppendUint64(b, 0)
}

// appendNotification appends a hardware error notification structure of the
// given type with polling fields zeroed.
func appendNotification(b []byte, notifyType uint8) []byte {
	b = append(b, notifyType, notificationSize)
	return append(b, make([]byte, notificationSize-2)...)
}

func appendACPIHeader(b []byte, signature string, revision uint8, oemID, oemTableID string) []byte {
	b = append(b, signature[:4]...)
	b = binary.LittleEndian.AppendUint32(b, 0) // length, fixed up at finish
	b = append(b, revision, 0)                 // checksum fixed up at finish
	b = appendPadded(b, oemID, 6)
	b = appendPadded(b, oemTableID, 8)
	b = binary.LittleEndian.AppendUint32(b, 1) // oem revision
	b = appendPadded(b, "RSCL", 4)             // creator id
	return binary.LittleEndian.AppendUint32(b, 1)
}

func finishACPIHeader(b []byte) []byte {
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(b)))
	var sum uint8
	for _, v := range b {
		sum += v
	}
	b[9] = uint8(-sum)
	return b
}

func appendPadded(b []byte, s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return append(b, out...)
}
