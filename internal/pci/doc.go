// Package pci models the configuration-space view of an error-source device.
//
// Ownership boundary:
// - device identity (IDs, bus/slot/function, CXL role)
// - capability and DVSEC lookup over raw config space
// - register dumps consumed by the CPER encoders
//
// It does not emulate config-space side effects; writes happen only through
// the capability installers used at device construction.
package pci
