package config

import (
	"fmt"
	"strings"

	"github.com/svetly-todorov/rasctl/internal/pci"
	"github.com/svetly-todorov/rasctl/internal/rasf"
)

// ParseRole maps a configured role name to the device role.
func ParseRole(s string) (pci.Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return pci.RoleNone, nil
	case "endpoint", "endpoint-memory", "type3":
		return pci.RoleEndpointMemory, nil
	case "usp", "upstream-switch-port":
		return pci.RoleUpstreamSwitchPort, nil
	case "dsp", "downstream-switch-port":
		return pci.RoleDownstreamSwitchPort, nil
	case "root-port", "rootport":
		return pci.RoleRootPort, nil
	default:
		return pci.RoleNone, fmt.Errorf("unknown role %q", s)
	}
}

// ParseVariant maps a configured RAS channel variant name.
func ParseVariant(s string) (rasf.Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rasf":
		return rasf.VariantRASF, nil
	case "ras2":
		return rasf.VariantRAS2, nil
	default:
		return rasf.VariantRASF, fmt.Errorf("unknown rasf variant %q", s)
	}
}

// Devices realizes the configured devices with their capability sets. Every
// device gets express, AER and serial-number capabilities; CXL roles also
// get a DVSEC and, for memory endpoints, RAS registers.
func Devices(entries []DeviceConfig) (map[string]*pci.Device, error) {
	out := make(map[string]*pci.Device, len(entries))
	for _, e := range entries {
		role, err := ParseRole(e.Role)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", e.ID, err)
		}
		d := pci.NewDevice(e.Vendor, e.Device, e.Class)
		d.Bus, d.Slot, d.Function = e.Bus, e.Slot, e.Function
		d.Role = role
		d.AddExpressCapability(expressPortType(role))
		d.AddAERCapability()
		if e.Serial != 0 {
			d.SetSerialNumber(e.Serial)
		}
		if e.DVSECBody > 0 {
			dvsecID := uint16(pci.CXLDVSECPort)
			if role == pci.RoleEndpointMemory {
				dvsecID = pci.CXLDVSECDevice
			}
			d.AddCXLDVSEC(dvsecID, make([]byte, e.DVSECBody))
		}
		if role == pci.RoleEndpointMemory {
			d.RAS = &pci.RASRegisters{}
		}
		out[e.ID] = d
	}
	return out, nil
}

// expressPortType maps a device role to the express capability port type.
func expressPortType(role pci.Role) uint8 {
	switch role {
	case pci.RoleRootPort:
		return 4
	case pci.RoleUpstreamSwitchPort:
		return 5
	case pci.RoleDownstreamSwitchPort:
		return 6
	default:
		return 0
	}
}
