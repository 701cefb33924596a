package cper

import (
	"encoding/binary"

	"github.com/svetly-todorov/rasctl/internal/pci"
)

// CXL agent-type codes carried in the protocol error section.
const (
	agentTypeDevice          uint8 = 2
	agentTypeRootPort        uint8 = 5
	agentTypeDownstreamPort  uint8 = 6
	agentTypeUpstreamPort    uint8 = 7
	agentTypeUnknown         uint8 = 0xff
	protocolSectionFixedSize       = 116
)

// RASSnapshotSize is the RAS register dump appended to every protocol
// section. The declared error-log length in the section stays at this value
// even though a header log follows; that matches current consumers and is a
// known limitation of the wire contract.
const RASSnapshotSize = 0x18

// HeaderLogDWords is the fixed size of the error-log header array.
const HeaderLogDWords = 32

// ProtocolErrorDetail carries the captured header log for a CXL protocol
// error. A nil detail encodes a zero header log.
type ProtocolErrorDetail struct {
	HeaderLog [HeaderLogDWords]uint32
}

// Validation bits for the CXL protocol section.
const (
	cxlValidAgentType    uint64 = 1 << 0
	cxlValidAgentAddress uint64 = 1 << 1
	cxlValidDeviceID     uint64 = 1 << 2
	cxlValidSerialNumber uint64 = 1 << 3
	cxlValidCapability   uint64 = 1 << 4
	cxlValidDVSEC        uint64 = 1 << 5
	cxlValidErrorLog     uint64 = 1 << 6
)

func agentType(role pci.Role) uint8 {
	switch role {
	case pci.RoleEndpointMemory:
		return agentTypeDevice
	case pci.RoleUpstreamSwitchPort:
		return agentTypeUpstreamPort
	case pci.RoleDownstreamSwitchPort:
		return agentTypeDownstreamPort
	case pci.RoleRootPort:
		return agentTypeRootPort
	default:
		return agentTypeUnknown
	}
}

// ProtocolSectionSize returns the exact encoded size of a protocol section
// for the device. The size depends on the device's CXL DVSEC length and must
// be computed before the recorder's capacity check.
func ProtocolSectionSize(d *pci.Device) int {
	_, dvsecLen := d.CXLDVSEC()
	return protocolSectionFixedSize + int(dvsecLen) + RASSnapshotSize + 4*HeaderLogDWords
}

// AppendProtocolSection appends a CXL protocol error section for the device.
func AppendProtocolSection(b []byte, d *pci.Device, detail *ProtocolErrorDetail) []byte {
	agent := agentType(d.Role)
	snOffset := d.FindExtCapability(pci.ExtCapIDSerialNumber)
	expOffset := d.FindCapability(pci.CapIDExpress)
	dvsecOffset, dvsecLen := d.CXLDVSEC()

	validation := cxlValidAgentAddress | cxlValidDeviceID | cxlValidCapability | cxlValidErrorLog
	if agent != agentTypeUnknown {
		validation |= cxlValidAgentType
	}
	if snOffset != 0 {
		validation |= cxlValidSerialNumber
	}
	if dvsecOffset != 0 {
		validation |= cxlValidDVSEC
	}
	b = binary.LittleEndian.AppendUint64(b, validation)

	b = append(b, agent)
	b = appendZeros(b, 7)

	// Agent address
	b = append(b, d.Function, d.Slot, d.Bus)
	b = appendZeros(b, 2) // segment
	b = appendZeros(b, 3)

	// Device id
	b = binary.LittleEndian.AppendUint16(b, d.VendorID)
	b = binary.LittleEndian.AppendUint16(b, d.DeviceID)
	b = binary.LittleEndian.AppendUint16(b, d.SubsystemVendorID)
	b = binary.LittleEndian.AppendUint16(b, d.SubsystemID)
	b = binary.LittleEndian.AppendUint16(b, uint16(d.ClassCode))
	b = appendZeros(b, 2) // physical slot number, not exposed
	b = appendZeros(b, 4)

	b = appendSerialNumber(b, d, snOffset)

	b = appendConfigDump(b, d, expOffset, 60)

	b = binary.LittleEndian.AppendUint16(b, dvsecLen)
	b = binary.LittleEndian.AppendUint16(b, RASSnapshotSize)
	b = appendZeros(b, 4)

	if dvsecOffset != 0 {
		b = append(b, d.Config[dvsecOffset:dvsecOffset+dvsecLen]...)
	}

	return appendCXLErrorLog(b, d, detail)
}

// appendCXLErrorLog appends the RAS register snapshot and header log. Roles
// without RAS registers get a zero-filled log of the same size.
func appendCXLErrorLog(b []byte, d *pci.Device, detail *ProtocolErrorDetail) []byte {
	if d.Role == pci.RoleEndpointMemory && d.RAS != nil {
		b = binary.LittleEndian.AppendUint32(b, d.RAS.UncorrectableStatus)
		b = binary.LittleEndian.AppendUint32(b, d.RAS.UncorrectableMask)
		b = binary.LittleEndian.AppendUint32(b, d.RAS.UncorrectableSeverity)
		b = binary.LittleEndian.AppendUint32(b, d.RAS.CorrectableStatus)
		b = binary.LittleEndian.AppendUint32(b, d.RAS.CorrectableMask)
		b = binary.LittleEndian.AppendUint32(b, d.RAS.CapabilityControl)
	} else {
		b = appendZeros(b, RASSnapshotSize)
	}
	if detail != nil {
		for _, dw := range detail.HeaderLog {
			b = binary.LittleEndian.AppendUint32(b, dw)
		}
		return b
	}
	return appendZeros(b, 4*HeaderLogDWords)
}

// MediaSectionSize is the fixed CXL general-media event section size.
const MediaSectionSize = 0x90

// EventRecordSize is the size of one pre-formed CXL event-log record.
const EventRecordSize = 0x80

// Validation bits for the general-media section.
const (
	mediaValidDeviceID     uint64 = 1 << 0
	mediaValidSerialNumber uint64 = 1 << 1
	mediaValidEventLog     uint64 = 1 << 2
)

// AppendMediaSection appends a CXL general-media event section. rec must be
// a full EventRecordSize-byte event-log record; its bytes after the leading
// record identifier are copied verbatim.
func AppendMediaSection(b []byte, d *pci.Device, rec []byte) []byte {
	snOffset := d.FindExtCapability(pci.ExtCapIDSerialNumber)

	b = binary.LittleEndian.AppendUint32(b, MediaSectionSize)

	validation := mediaValidDeviceID | mediaValidEventLog
	if snOffset != 0 {
		validation |= mediaValidSerialNumber
	}
	b = binary.LittleEndian.AppendUint64(b, validation)

	b = binary.LittleEndian.AppendUint16(b, d.VendorID)
	b = binary.LittleEndian.AppendUint16(b, d.DeviceID)
	b = append(b, d.Function, d.Slot, d.Bus)
	b = appendZeros(b, 2) // segment
	b = appendZeros(b, 2) // physical slot number, not exposed
	b = append(b, 0)      // reserved

	b = appendSerialNumber(b, d, snOffset)

	return append(b, rec[16:EventRecordSize]...)
}
