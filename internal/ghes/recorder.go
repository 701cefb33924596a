package ghes

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/svetly-todorov/rasctl/internal/cper"
	"github.com/svetly-todorov/rasctl/internal/observability"
	"github.com/svetly-todorov/rasctl/internal/pci"
)

// Section kind labels used for logging and metrics.
const (
	kindMemory      = "memory"
	kindAER         = "aer"
	kindCXLProtocol = "cxl_protocol"
	kindCXLMedia    = "cxl_media"
)

func sourceName(idx int) string {
	switch idx {
	case SourceIDSEA:
		return "sea"
	case SourceIDGPIO:
		return "gpio"
	default:
		return "unknown"
	}
}

// RecordMemoryError records a memory error CPER for the given source. The
// error block address is read back from the region's pointer table, the way
// the guest sees it.
func (s *State) RecordMemoryError(sourceID int, physicalAddress uint64) error {
	if sourceID < 0 || sourceID >= SourceCount {
		observability.RecordCPER("unknown", kindMemory, observability.OutcomeUnknownSource)
		return fmt.Errorf("%w: %d", ErrInvalidSource, sourceID)
	}
	base := s.BaseAddress()
	if base == 0 {
		observability.RecordCPER(sourceName(sourceID), kindMemory, observability.OutcomeRegionUnlinked)
		return ErrNotLinked
	}

	var buf [addressSize]byte
	if err := s.mem.ReadAt(base+uint64(sourceID)*addressSize, buf[:]); err != nil {
		return err
	}
	blockAddr := binary.LittleEndian.Uint64(buf[:])
	if blockAddr == 0 {
		observability.RecordCPER(sourceName(sourceID), kindMemory, observability.OutcomeRegionUnlinked)
		return fmt.Errorf("%w: error block address not patched", ErrNotLinked)
	}
	ackAddr := base + uint64(SourceCount+sourceID)*addressSize

	return s.record(sourceName(sourceID), kindMemory, Addresses{Block: blockAddr, Ack: ackAddr},
		cper.SectionMemory, cper.MemorySectionSize, func(b []byte) []byte {
			return cper.AppendMemorySection(b, physicalAddress)
		})
}

// RecordAER records a PCI Express AER error for the source backing notify.
func (s *State) RecordAER(notify NotifyType, dev *pci.Device) error {
	addrs, ok := s.Resolve(notify)
	if !ok {
		observability.RecordCPER("unknown", kindAER, observability.OutcomeUnknownSource)
		return fmt.Errorf("%w: notify %d", ErrUnknownSource, notify)
	}
	idx, _ := sourceIndex(notify)
	return s.record(sourceName(idx), kindAER, addrs,
		cper.SectionPCIeAER, cper.AERSectionSize, func(b []byte) []byte {
			return cper.AppendAERSection(b, dev)
		})
}

// RecordCXLProtocolError records a CXL protocol error for the source backing
// notify. detail may be nil when no header log was captured.
func (s *State) RecordCXLProtocolError(notify NotifyType, dev *pci.Device, detail *cper.ProtocolErrorDetail) error {
	addrs, ok := s.Resolve(notify)
	if !ok {
		observability.RecordCPER("unknown", kindCXLProtocol, observability.OutcomeUnknownSource)
		return fmt.Errorf("%w: notify %d", ErrUnknownSource, notify)
	}
	idx, _ := sourceIndex(notify)
	// Payload length depends on the device's DVSEC and must be known before
	// the capacity check.
	size := cper.ProtocolSectionSize(dev)
	return s.record(sourceName(idx), kindCXLProtocol, addrs,
		cper.SectionCXLProtocol, size, func(b []byte) []byte {
			return cper.AppendProtocolSection(b, dev, detail)
		})
}

// RecordCXLMediaEvent records a CXL general-media event for the source
// backing notify. rec is a pre-formed event-log record.
func (s *State) RecordCXLMediaEvent(notify NotifyType, dev *pci.Device, rec []byte) error {
	if err := cper.ValidateEventRecord(rec); err != nil {
		return fmt.Errorf("%w: %v", ErrEventRecord, err)
	}
	addrs, ok := s.Resolve(notify)
	if !ok {
		observability.RecordCPER("unknown", kindCXLMedia, observability.OutcomeUnknownSource)
		return fmt.Errorf("%w: notify %d", ErrUnknownSource, notify)
	}
	idx, _ := sourceIndex(notify)
	return s.record(sourceName(idx), kindCXLMedia, addrs,
		cper.SectionCXLGenMedia, cper.MediaSectionSize, func(b []byte) []byte {
			return cper.AppendMediaSection(b, dev, rec)
		})
}

// record runs the ack-gated write protocol: claim the source by clearing its
// read-ack flag, verify capacity, encode the envelope plus section into a
// scratch buffer, and write it wholesale into the source's slot.
func (s *State) record(source, kind string, addrs Addresses, sectionType uuid.UUID, payloadLen int, appendPayload func([]byte) []byte) error {
	ack, err := s.readAck(addrs.Ack)
	if err != nil {
		return err
	}
	if ack == 0 {
		// The guest never read the previous record. Force the flag so a
		// guest that never polls cannot block every future record, and drop
		// this one.
		s.log.Warn().
			Str("source", source).
			Str("kind", kind).
			Msg("previous error not acknowledged, dropping record and re-arming ack")
		observability.RecordCPER(source, kind, observability.OutcomeNotAcked)
		if err := s.writeAck(addrs.Ack, 1); err != nil {
			return err
		}
		return ErrNotAcknowledged
	}

	// Claim before any slot write so a racing attempt fails the ack check
	// instead of corrupting the slot.
	if err := s.writeAck(addrs.Ack, 0); err != nil {
		return err
	}

	dataLength := cper.DataEntrySize + payloadLen
	total := cper.StatusBlockSize + dataLength
	if total > MaxRawDataLength {
		// Restore the flag: the slot was never written, so the source must
		// not look permanently busy.
		s.log.Error().
			Str("source", source).
			Str("kind", kind).
			Int("bytes", total).
			Msg("record exceeds error block capacity")
		observability.RecordCPER(source, kind, observability.OutcomeTooLarge)
		if err := s.writeAck(addrs.Ack, 1); err != nil {
			return err
		}
		return fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, total, MaxRawDataLength)
	}

	block := make([]byte, 0, total)
	block = cper.AppendStatusBlock(block, cper.BlockStatusUncorrectable, 0, 0,
		uint32(dataLength), cper.SeverityRecoverable)
	block = cper.AppendDataEntry(block, sectionType, cper.SeverityRecoverable,
		0, 0, uint32(payloadLen), uuid.UUID{}, 0)
	block = appendPayload(block)

	if err := s.mem.WriteAt(addrs.Block, block); err != nil {
		return err
	}

	s.log.Debug().
		Str("source", source).
		Str("kind", kind).
		Int("bytes", len(block)).
		Msg("error record written")
	observability.RecordCPER(source, kind, observability.OutcomeWritten)
	observability.RecordCPERBytes(kind, len(block))
	return nil
}
