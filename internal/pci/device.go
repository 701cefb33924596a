package pci

import "encoding/binary"

const (
	// ConfigSpaceSize covers the PCI Express extended configuration space.
	ConfigSpaceSize = 4096

	regCommand     = 0x04
	regStatus      = 0x06
	regCapPointer  = 0x34
	extConfigStart = 0x100

	statusCapList = 0x0010
)

// Well-known capability identifiers used by the error encoders.
const (
	CapIDExpress uint8 = 0x10

	ExtCapIDAER          uint16 = 0x0001
	ExtCapIDSerialNumber uint16 = 0x0003
	ExtCapIDDVSEC        uint16 = 0x0023
)

// CXLDVSECVendorID is the CXL consortium vendor id carried in CXL DVSECs.
const CXLDVSECVendorID = 0x1e98

// CXL DVSEC ids probed for the protocol-error record. Devices carry id 0,
// ports carry id 3; only one of the two should exist.
const (
	CXLDVSECDevice uint16 = 0
	CXLDVSECPort   uint16 = 3
)

// Role is the device's CXL agent role, fixed at construction.
type Role uint8

const (
	RoleNone Role = iota
	RoleEndpointMemory
	RoleUpstreamSwitchPort
	RoleDownstreamSwitchPort
	RoleRootPort
)

func (r Role) String() string {
	switch r {
	case RoleEndpointMemory:
		return "endpoint-memory"
	case RoleUpstreamSwitchPort:
		return "upstream-switch-port"
	case RoleDownstreamSwitchPort:
		return "downstream-switch-port"
	case RoleRootPort:
		return "root-port"
	default:
		return "none"
	}
}

// RASRegisters is the snapshot of a memory device's CXL RAS capability
// registers dumped into protocol-error records.
type RASRegisters struct {
	UncorrectableStatus   uint32
	UncorrectableMask     uint32
	UncorrectableSeverity uint32
	CorrectableStatus     uint32
	CorrectableMask       uint32
	CapabilityControl     uint32
}

// Device is one error-source device. Identity fields mirror what the device
// would expose through its configuration header; Config holds the raw
// configuration space the encoders dump from.
type Device struct {
	VendorID          uint16
	DeviceID          uint16
	ClassCode         uint32 // 24-bit base/sub/prog-if
	SubsystemVendorID uint16
	SubsystemID       uint16

	Bus      uint8
	Slot     uint8
	Function uint8

	Role Role
	RAS  *RASRegisters

	Config []byte

	nextCapOffset    uint16
	lastCapOffset    uint16
	nextExtCapOffset uint16
	lastExtCapOffset uint16
}

// NewDevice allocates a device with an empty configuration space and the
// identity registers filled in.
func NewDevice(vendor, device uint16, class uint32) *Device {
	d := &Device{
		VendorID:         vendor,
		DeviceID:         device,
		ClassCode:        class,
		Config:           make([]byte, ConfigSpaceSize),
		nextCapOffset:    0x40,
		nextExtCapOffset: extConfigStart,
	}
	binary.LittleEndian.PutUint16(d.Config[0:2], vendor)
	binary.LittleEndian.PutUint16(d.Config[2:4], device)
	d.Config[0x09] = uint8(class)
	d.Config[0x0a] = uint8(class >> 8)
	d.Config[0x0b] = uint8(class >> 16)
	return d
}

// ConfigWord reads a 16-bit little-endian register.
func (d *Device) ConfigWord(offset uint16) uint16 {
	return binary.LittleEndian.Uint16(d.Config[offset : offset+2])
}

// ConfigLong reads a 32-bit little-endian register.
func (d *Device) ConfigLong(offset uint16) uint32 {
	return binary.LittleEndian.Uint32(d.Config[offset : offset+4])
}

// SetCommand sets the command register in config space.
func (d *Device) SetCommand(v uint16) {
	binary.LittleEndian.PutUint16(d.Config[regCommand:regCommand+2], v)
}

// Command returns the command register.
func (d *Device) Command() uint16 {
	return d.ConfigWord(regCommand)
}

// Status returns the status register.
func (d *Device) Status() uint16 {
	return d.ConfigWord(regStatus)
}
