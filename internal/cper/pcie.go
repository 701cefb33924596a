package cper

import (
	"encoding/binary"

	"github.com/svetly-todorov/rasctl/internal/pci"
)

// AERSectionSize is the fixed PCI Express error section size.
const AERSectionSize = 208

// Validation bits for the PCIe section.
const (
	pcieValidPortType      uint64 = 1 << 0
	pcieValidVersion       uint64 = 1 << 1
	pcieValidCommandStatus uint64 = 1 << 2
	pcieValidDeviceID      uint64 = 1 << 3
	pcieValidSerialNumber  uint64 = 1 << 4
	pcieValidCapability    uint64 = 1 << 6
	pcieValidAERInfo       uint64 = 1 << 7
)

// AppendAERSection appends a PCI Express error section for the device.
// Capability dumps are zero-filled when the capability is absent so the
// section length never varies.
func AppendAERSection(b []byte, d *pci.Device) []byte {
	expOffset := d.FindCapability(pci.CapIDExpress)
	snOffset := d.FindExtCapability(pci.ExtCapIDSerialNumber)
	aerOffset := d.FindExtCapability(pci.ExtCapIDAER)

	validation := pcieValidVersion | pcieValidCommandStatus | pcieValidDeviceID
	if expOffset != 0 {
		validation |= pcieValidPortType | pcieValidCapability
	}
	if snOffset != 0 {
		validation |= pcieValidSerialNumber
	}
	if aerOffset != 0 {
		validation |= pcieValidAERInfo
	}
	b = binary.LittleEndian.AppendUint64(b, validation)

	// Port type from the express capability flags register.
	var portType uint32
	if expOffset != 0 {
		portType = uint32(d.ConfigWord(expOffset+2)&0x00f0) >> 4
	}
	b = binary.LittleEndian.AppendUint32(b, portType)

	b = append(b, 1, 6) // PCIe r6.1
	b = appendZeros(b, 2)

	b = binary.LittleEndian.AppendUint16(b, d.Command())
	b = binary.LittleEndian.AppendUint16(b, d.Status())
	b = appendZeros(b, 4)

	b = binary.LittleEndian.AppendUint16(b, d.VendorID)
	b = binary.LittleEndian.AppendUint16(b, d.DeviceID)
	b = append(b, uint8(d.ClassCode), uint8(d.ClassCode>>8), uint8(d.ClassCode>>16))
	b = append(b, d.Function, d.Slot)
	b = appendZeros(b, 2) // segment
	b = append(b, d.Bus)
	b = append(b, 0)      // secondary bus
	b = appendZeros(b, 2) // physical slot number, not exposed
	b = append(b, 0)      // reserved

	b = appendSerialNumber(b, d, snOffset)

	b = appendZeros(b, 4) // bridge control status

	b = appendConfigDump(b, d, expOffset, 60)
	return appendConfigDump(b, d, aerOffset, 96)
}

func appendSerialNumber(b []byte, d *pci.Device, snOffset uint16) []byte {
	if snOffset == 0 {
		return appendZeros(b, 8)
	}
	return append(b, d.Config[snOffset+4:snOffset+12]...)
}

// appendConfigDump copies n raw config-space bytes from offset, or zeros
// when the capability is absent.
func appendConfigDump(b []byte, d *pci.Device, offset uint16, n int) []byte {
	if offset == 0 {
		return appendZeros(b, n)
	}
	return append(b, d.Config[offset:offset+uint16(n)]...)
}
