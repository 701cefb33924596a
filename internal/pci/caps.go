package pci

import "encoding/binary"

// FindCapability walks the legacy capability list and returns the offset of
// the first capability with the given id, or 0 if absent.
func (d *Device) FindCapability(id uint8) uint16 {
	if d.ConfigWord(regStatus)&statusCapList == 0 {
		return 0
	}
	offset := uint16(d.Config[regCapPointer])
	for steps := 0; offset != 0 && steps < 48; steps++ {
		if d.Config[offset] == id {
			return offset
		}
		offset = uint16(d.Config[offset+1])
	}
	return 0
}

// FindExtCapability walks the extended capability chain and returns the
// offset of the first capability with the given id, or 0 if absent.
func (d *Device) FindExtCapability(id uint16) uint16 {
	offset := uint16(extConfigStart)
	for steps := 0; offset != 0 && steps < 480; steps++ {
		header := d.ConfigLong(offset)
		if header == 0 {
			return 0
		}
		if uint16(header&0xffff) == id {
			return offset
		}
		offset = uint16(header >> 20)
	}
	return 0
}

// FindDVSEC returns the offset of the DVSEC with the given vendor and DVSEC
// id, or 0 if absent.
func (d *Device) FindDVSEC(vendor, dvsecID uint16) uint16 {
	offset := uint16(extConfigStart)
	for steps := 0; offset != 0 && steps < 480; steps++ {
		header := d.ConfigLong(offset)
		if header == 0 {
			return 0
		}
		if uint16(header&0xffff) == ExtCapIDDVSEC {
			hdr1 := d.ConfigLong(offset + 4)
			hdr2 := d.ConfigLong(offset + 8)
			if uint16(hdr1&0xffff) == vendor && uint16(hdr2&0xffff) == dvsecID {
				return offset
			}
		}
		offset = uint16(header >> 20)
	}
	return 0
}

// CXLDVSEC locates the device's CXL DVSEC (device form first, then port
// form) and returns its offset and the length from the DVSEC header.
// Both are 0 when the device carries no CXL DVSEC.
func (d *Device) CXLDVSEC() (offset, length uint16) {
	offset = d.FindDVSEC(CXLDVSECVendorID, CXLDVSECDevice)
	if offset == 0 {
		offset = d.FindDVSEC(CXLDVSECVendorID, CXLDVSECPort)
	}
	if offset == 0 {
		return 0, 0
	}
	return offset, uint16(d.ConfigLong(offset+4) >> 20)
}

// AddCapability appends a legacy capability of the given total size
// (including the 2-byte id/next header) and returns its offset.
func (d *Device) AddCapability(id uint8, size uint16) uint16 {
	offset := d.nextCapOffset
	d.Config[offset] = id
	d.Config[offset+1] = 0
	if d.lastCapOffset != 0 {
		d.Config[d.lastCapOffset+1] = uint8(offset)
	} else {
		d.Config[regCapPointer] = uint8(offset)
		status := d.ConfigWord(regStatus)
		binary.LittleEndian.PutUint16(d.Config[regStatus:regStatus+2], status|statusCapList)
	}
	d.lastCapOffset = offset
	d.nextCapOffset = offset + (size+3)&^3
	return offset
}

// AddExtCapability appends an extended capability of the given total size
// (including the 4-byte header) and returns its offset.
func (d *Device) AddExtCapability(id uint16, version uint8, size uint16) uint16 {
	offset := d.nextExtCapOffset
	header := uint32(id) | uint32(version&0xf)<<16
	binary.LittleEndian.PutUint32(d.Config[offset:offset+4], header)
	if d.lastExtCapOffset != 0 {
		prev := d.ConfigLong(d.lastExtCapOffset)
		prev |= uint32(offset) << 20
		binary.LittleEndian.PutUint32(d.Config[d.lastExtCapOffset:d.lastExtCapOffset+4], prev)
	}
	d.lastExtCapOffset = offset
	d.nextExtCapOffset = offset + (size+3)&^3
	return offset
}

// AddExpressCapability installs the PCI Express capability (60 bytes) with
// the given device/port type in the flags register.
func (d *Device) AddExpressCapability(portType uint8) uint16 {
	offset := d.AddCapability(CapIDExpress, 60)
	flags := uint16(2) | uint16(portType&0xf)<<4 // cap version 2
	binary.LittleEndian.PutUint16(d.Config[offset+2:offset+4], flags)
	return offset
}

// AddAERCapability installs the Advanced Error Reporting extended capability.
func (d *Device) AddAERCapability() uint16 {
	return d.AddExtCapability(ExtCapIDAER, 2, 96)
}

// SetSerialNumber installs the device serial number extended capability.
func (d *Device) SetSerialNumber(serial uint64) uint16 {
	offset := d.AddExtCapability(ExtCapIDSerialNumber, 1, 12)
	binary.LittleEndian.PutUint64(d.Config[offset+4:offset+12], serial)
	return offset
}

// SerialNumberBytes returns the 8 serial-number bytes as they sit in config
// space, or nil when the capability is absent.
func (d *Device) SerialNumberBytes() []byte {
	offset := d.FindExtCapability(ExtCapIDSerialNumber)
	if offset == 0 {
		return nil
	}
	return d.Config[offset+4 : offset+12]
}

// AddCXLDVSEC installs a CXL DVSEC of the given id whose header length field
// covers the 12-byte DVSEC header plus body bytes.
func (d *Device) AddCXLDVSEC(dvsecID uint16, body []byte) uint16 {
	length := uint16(12 + len(body))
	offset := d.AddExtCapability(ExtCapIDDVSEC, 1, length)
	hdr1 := uint32(CXLDVSECVendorID) | 1<<16 | uint32(length)<<20
	binary.LittleEndian.PutUint32(d.Config[offset+4:offset+8], hdr1)
	binary.LittleEndian.PutUint32(d.Config[offset+8:offset+12], uint32(dvsecID))
	copy(d.Config[offset+12:], body)
	return offset
}
