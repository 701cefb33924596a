package cper

import (
	"encoding/binary"
	"fmt"
)

// GenMediaEvent describes one general-media event before it is formed into
// a raw event-log record.
type GenMediaEvent struct {
	DPA             uint64
	Descriptor      uint8
	Type            uint8
	TransactionType uint8
	ValidityFlags   uint16
	Channel         uint8
	Rank            uint8
	Device          uint32 // 24-bit
	ComponentID     [16]byte
	Handle          uint16
	Timestamp       uint64
}

// EncodeRecord forms the EventRecordSize-byte event-log record: common
// record header (class identifier, length, handles, timestamp) followed by
// the general-media fields.
func (e GenMediaEvent) EncodeRecord() []byte {
	b := make([]byte, 0, EventRecordSize)
	b = appendUUIDLE(b, SectionCXLGenMedia)
	b = append(b, EventRecordSize)
	b = appendZeros(b, 3) // flags
	b = binary.LittleEndian.AppendUint16(b, e.Handle)
	b = appendZeros(b, 2) // related handle
	b = binary.LittleEndian.AppendUint64(b, e.Timestamp)

	b = binary.LittleEndian.AppendUint64(b, e.DPA)
	b = append(b, e.Descriptor, e.Type, e.TransactionType)
	b = binary.LittleEndian.AppendUint16(b, e.ValidityFlags)
	b = append(b, e.Channel, e.Rank)
	b = append(b, uint8(e.Device), uint8(e.Device>>8), uint8(e.Device>>16))
	b = append(b, e.ComponentID[:]...)
	return appendZeros(b, EventRecordSize-len(b))
}

// ValidateEventRecord checks a caller-supplied raw record length.
func ValidateEventRecord(rec []byte) error {
	if len(rec) != EventRecordSize {
		return fmt.Errorf("cper: event record must be %d bytes, got %d", EventRecordSize, len(rec))
	}
	return nil
}
