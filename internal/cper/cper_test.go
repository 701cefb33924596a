package cper

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"

	"github.com/svetly-todorov/rasctl/internal/pci"
)

func TestSectionTypeWireBytes(t *testing.T) {
	// The first three UUID fields go out byte swapped. These byte arrays
	// are the on-wire contract and must never change.
	cases := []struct {
		name string
		u    uuid.UUID
		want []byte
	}{
		{"memory", SectionMemory, []byte{
			0x14, 0x11, 0xbc, 0xa5, 0x64, 0x6f, 0xde, 0x4e,
			0xb8, 0x63, 0x3e, 0x83, 0xed, 0x7c, 0x83, 0xb1,
		}},
		{"pcie", SectionPCIeAER, []byte{
			0x54, 0xe9, 0x95, 0xd9, 0xc1, 0xbb, 0x0f, 0x43,
			0xad, 0x91, 0xb4, 0x4d, 0xcb, 0x3c, 0x6f, 0x35,
		}},
		{"cxl_protocol", SectionCXLProtocol, []byte{
			0xb4, 0xef, 0xb9, 0x80, 0xb5, 0x52, 0xe3, 0x4d,
			0xa7, 0x77, 0x68, 0x78, 0x4b, 0x77, 0x10, 0x48,
		}},
		{"cxl_gen_media", SectionCXLGenMedia, []byte{
			0x77, 0x0a, 0xcd, 0xfb, 0x60, 0xc2, 0x7f, 0x41,
			0x85, 0xa9, 0x08, 0x8b, 0x16, 0x21, 0xeb, 0xa6,
		}},
	}
	for _, tc := range cases {
		got := appendUUIDLE(nil, tc.u)
		if !bytes.Equal(got, tc.want) {
			t.Errorf("%s wire bytes = % x, want % x", tc.name, got, tc.want)
		}
		if back := decodeUUIDLE(got); back != tc.u {
			t.Errorf("%s round trip = %s, want %s", tc.name, back, tc.u)
		}
	}
}

func TestAppendStatusBlock(t *testing.T) {
	b := AppendStatusBlock(nil, BlockStatusUncorrectable, 0, 0, 152, SeverityRecoverable)
	if len(b) != StatusBlockSize {
		t.Fatalf("status block size = %d", len(b))
	}
	sb, err := DecodeStatusBlock(b)
	if err != nil {
		t.Fatalf("DecodeStatusBlock: %v", err)
	}
	if sb.BlockStatus != BlockStatusUncorrectable || sb.DataLength != 152 || sb.Severity != SeverityRecoverable {
		t.Fatalf("decoded = %+v", sb)
	}
}

func TestAppendDataEntry(t *testing.T) {
	b := AppendDataEntry(nil, SectionMemory, SeverityRecoverable, 0, 0, MemorySectionSize, uuid.UUID{}, 0)
	if len(b) != DataEntrySize {
		t.Fatalf("data entry size = %d", len(b))
	}
	de, err := DecodeDataEntry(b)
	if err != nil {
		t.Fatalf("DecodeDataEntry: %v", err)
	}
	if de.SectionType != SectionMemory {
		t.Fatalf("section type = %s", de.SectionType)
	}
	if de.Revision != Revision {
		t.Fatalf("revision = %#x, want %#x", de.Revision, Revision)
	}
	if de.ErrorDataLength != MemorySectionSize {
		t.Fatalf("error data length = %d", de.ErrorDataLength)
	}
	if de.FRUID != (uuid.UUID{}) || de.Timestamp != 0 {
		t.Fatalf("fru/timestamp not zero: %+v", de)
	}
}

func TestAppendMemorySection(t *testing.T) {
	b := AppendMemorySection(nil, 0xdead0000)
	if len(b) != MemorySectionSize {
		t.Fatalf("memory section size = %d", len(b))
	}
	ms, err := DecodeMemorySection(b)
	if err != nil {
		t.Fatalf("DecodeMemorySection: %v", err)
	}
	if ms.ValidationBits != memValidType|memValidPhysicalAddress {
		t.Fatalf("validation = %#x", ms.ValidationBits)
	}
	if ms.PhysicalAddress != 0xdead0000 {
		t.Fatalf("address = %#x", ms.PhysicalAddress)
	}
	if ms.ErrorStatus != 0 || ms.ErrorType != 0 {
		t.Fatalf("status/type not zero: %+v", ms)
	}
}

func fullDevice() *pci.Device {
	d := pci.NewDevice(0x1af4, 0x1110, 0x050210)
	d.Bus, d.Slot, d.Function = 0x0c, 3, 1
	d.SetCommand(0x0506)
	expOff := d.AddExpressCapability(5) // upstream switch port
	d.Config[expOff+8] = 0x77           // marker inside the express dump
	aerOff := d.AddAERCapability()
	d.Config[aerOff+8] = 0x99 // marker inside the AER dump
	d.SetSerialNumber(0x1122334455667788)
	return d
}

func TestAppendAERSectionFull(t *testing.T) {
	d := fullDevice()
	b := AppendAERSection(nil, d)
	if len(b) != AERSectionSize {
		t.Fatalf("aer section size = %d", len(b))
	}

	validation := binary.LittleEndian.Uint64(b[0:8])
	want := pcieValidPortType | pcieValidVersion | pcieValidCommandStatus |
		pcieValidDeviceID | pcieValidSerialNumber | pcieValidCapability | pcieValidAERInfo
	if validation != want {
		t.Fatalf("validation = %#x, want %#x", validation, want)
	}
	if got := binary.LittleEndian.Uint32(b[8:12]); got != 5 {
		t.Fatalf("port type = %d, want 5", got)
	}
	if b[12] != 1 || b[13] != 6 {
		t.Fatalf("version = %d.%d", b[13], b[12])
	}
	if got := binary.LittleEndian.Uint16(b[16:18]); got != 0x0506 {
		t.Fatalf("command = %#x", got)
	}

	id, err := DecodeAERIdentity(b)
	if err != nil {
		t.Fatalf("DecodeAERIdentity: %v", err)
	}
	if id.VendorID != 0x1af4 || id.DeviceID != 0x1110 {
		t.Fatalf("identity = %04x:%04x", id.VendorID, id.DeviceID)
	}
	if id.ClassCode != 0x050210 {
		t.Fatalf("class = %#x", id.ClassCode)
	}
	if id.Function != 1 || id.Slot != 3 || id.Bus != 0x0c {
		t.Fatalf("address = %02x:%02x.%d", id.Bus, id.Slot, id.Function)
	}

	if got := binary.LittleEndian.Uint64(b[40:48]); got != 0x1122334455667788 {
		t.Fatalf("serial = %#x", got)
	}
	// Config dumps carry raw capability bytes.
	if b[52+8] != 0x77 {
		t.Fatalf("express dump byte = %#x", b[52+8])
	}
	if b[112+8] != 0x99 {
		t.Fatalf("aer dump byte = %#x", b[112+8])
	}
}

func TestAppendAERSectionBareDevice(t *testing.T) {
	// No capabilities at all: the section keeps its fixed size with the
	// optional regions zero filled and their validation bits clear.
	d := pci.NewDevice(0x1af4, 0x1110, 0x060000)
	b := AppendAERSection(nil, d)
	if len(b) != AERSectionSize {
		t.Fatalf("aer section size = %d", len(b))
	}

	validation := binary.LittleEndian.Uint64(b[0:8])
	want := pcieValidVersion | pcieValidCommandStatus | pcieValidDeviceID
	if validation != want {
		t.Fatalf("validation = %#x, want %#x", validation, want)
	}
	if got := binary.LittleEndian.Uint32(b[8:12]); got != 0 {
		t.Fatalf("port type = %d, want 0", got)
	}
	for i := 40; i < 48; i++ {
		if b[i] != 0 {
			t.Fatalf("serial byte %d = %#x", i, b[i])
		}
	}
	for i := 52; i < AERSectionSize; i++ {
		if b[i] != 0 {
			t.Fatalf("dump byte %d = %#x", i, b[i])
		}
	}
}

func cxlEndpoint(body []byte) *pci.Device {
	d := pci.NewDevice(0x8086, 0x0d93, 0x050210)
	d.Role = pci.RoleEndpointMemory
	d.Bus, d.Slot, d.Function = 4, 0, 0
	d.AddExpressCapability(0)
	d.SetSerialNumber(0xabcdef)
	d.AddCXLDVSEC(pci.CXLDVSECDevice, body)
	d.RAS = &pci.RASRegisters{
		UncorrectableStatus:   0x4000,
		UncorrectableSeverity: 0x1f,
		CapabilityControl:     0x0e,
	}
	return d
}

func TestProtocolSectionSize(t *testing.T) {
	d := cxlEndpoint(make([]byte, 20))
	if _, dvsecLen := d.CXLDVSEC(); dvsecLen != 32 {
		t.Fatalf("dvsec length = %d, want 32", dvsecLen)
	}
	want := protocolSectionFixedSize + 32 + RASSnapshotSize + 4*HeaderLogDWords
	if got := ProtocolSectionSize(d); got != want {
		t.Fatalf("ProtocolSectionSize = %d, want %d", got, want)
	}

	b := AppendProtocolSection(nil, d, nil)
	if len(b) != want {
		t.Fatalf("encoded size = %d, want %d", len(b), want)
	}
}

func TestAppendProtocolSectionEndpoint(t *testing.T) {
	detail := &ProtocolErrorDetail{}
	detail.HeaderLog[0] = 0xcafebabe
	body := make([]byte, 20)
	body[0] = 0x5a
	d := cxlEndpoint(body)

	b := AppendProtocolSection(nil, d, detail)

	validation := binary.LittleEndian.Uint64(b[0:8])
	want := cxlValidAgentType | cxlValidAgentAddress | cxlValidDeviceID |
		cxlValidSerialNumber | cxlValidCapability | cxlValidDVSEC | cxlValidErrorLog
	if validation != want {
		t.Fatalf("validation = %#x, want %#x", validation, want)
	}
	if b[8] != agentTypeDevice {
		t.Fatalf("agent type = %#x", b[8])
	}
	if b[16] != 0 || b[17] != 0 || b[18] != 4 {
		t.Fatalf("agent address = % x", b[16:19])
	}
	if got := binary.LittleEndian.Uint16(b[24:26]); got != 0x8086 {
		t.Fatalf("vendor = %#x", got)
	}
	if got := binary.LittleEndian.Uint64(b[40:48]); got != 0xabcdef {
		t.Fatalf("serial = %#x", got)
	}

	// DVSEC length and the declared error-log length.
	if got := binary.LittleEndian.Uint16(b[108:110]); got != 32 {
		t.Fatalf("dvsec length = %d", got)
	}
	if got := binary.LittleEndian.Uint16(b[110:112]); got != RASSnapshotSize {
		t.Fatalf("error log length = %d, want %d", got, RASSnapshotSize)
	}

	// DVSEC dump starts right after the fixed part, header first.
	dvsec := b[protocolSectionFixedSize:]
	hdr := binary.LittleEndian.Uint32(dvsec[4:8])
	if hdr&0xffff != pci.CXLDVSECVendorID {
		t.Fatalf("dvsec vendor = %#x", hdr&0xffff)
	}
	if dvsec[12] != 0x5a {
		t.Fatalf("dvsec body byte = %#x", dvsec[12])
	}

	// RAS snapshot then the captured header log.
	log := b[protocolSectionFixedSize+32:]
	if got := binary.LittleEndian.Uint32(log[0:4]); got != 0x4000 {
		t.Fatalf("uncorrectable status = %#x", got)
	}
	if got := binary.LittleEndian.Uint32(log[8:12]); got != 0x1f {
		t.Fatalf("uncorrectable severity = %#x", got)
	}
	if got := binary.LittleEndian.Uint32(log[RASSnapshotSize:RASSnapshotSize+4]); got != 0xcafebabe {
		t.Fatalf("header log dword 0 = %#x", got)
	}
}

func TestAppendProtocolSectionPortHasZeroRAS(t *testing.T) {
	d := pci.NewDevice(0x8086, 0x7075, 0x060400)
	d.Role = pci.RoleRootPort
	d.AddExpressCapability(4)
	d.AddCXLDVSEC(pci.CXLDVSECPort, make([]byte, 20))

	b := AppendProtocolSection(nil, d, nil)
	if b[8] != agentTypeRootPort {
		t.Fatalf("agent type = %#x", b[8])
	}
	log := b[protocolSectionFixedSize+32:]
	for i := 0; i < RASSnapshotSize+4*HeaderLogDWords; i++ {
		if log[i] != 0 {
			t.Fatalf("error log byte %d = %#x, want 0", i, log[i])
		}
	}
}

func TestGenMediaEventRecord(t *testing.T) {
	ev := GenMediaEvent{
		DPA:             0x7f0040,
		Descriptor:      0x1,
		Type:            0x2,
		TransactionType: 0xc0,
		ValidityFlags:   0x1f,
		Channel:         2,
		Rank:            1,
		Device:          0x030201,
		Handle:          7,
		Timestamp:       0x1122334455,
	}
	rec := ev.EncodeRecord()
	if err := ValidateEventRecord(rec); err != nil {
		t.Fatalf("ValidateEventRecord: %v", err)
	}
	if got := decodeUUIDLE(rec[0:16]); got != SectionCXLGenMedia {
		t.Fatalf("record class = %s", got)
	}
	if rec[16] != EventRecordSize {
		t.Fatalf("record length = %d", rec[16])
	}
	if got := binary.LittleEndian.Uint16(rec[20:22]); got != 7 {
		t.Fatalf("handle = %d", got)
	}
	if got := binary.LittleEndian.Uint64(rec[24:32]); got != 0x1122334455 {
		t.Fatalf("timestamp = %#x", got)
	}
	if got := binary.LittleEndian.Uint64(rec[32:40]); got != 0x7f0040 {
		t.Fatalf("dpa = %#x", got)
	}
	if rec[40] != 0x1 || rec[41] != 0x2 || rec[42] != 0xc0 {
		t.Fatalf("descriptor/type/transaction = % x", rec[40:43])
	}
	if rec[47] != 0x01 || rec[48] != 0x02 || rec[49] != 0x03 {
		t.Fatalf("device = % x", rec[47:50])
	}

	if err := ValidateEventRecord(rec[:100]); err == nil {
		t.Fatal("short record accepted")
	}
}

func TestAppendMediaSection(t *testing.T) {
	d := cxlEndpoint(make([]byte, 20))
	ev := GenMediaEvent{DPA: 0x2000, Type: 0x1}
	rec := ev.EncodeRecord()
	rec[17] = 0xee // flag byte, must survive the copy

	b := AppendMediaSection(nil, d, rec)
	if len(b) != MediaSectionSize {
		t.Fatalf("media section size = %d", len(b))
	}
	if got := binary.LittleEndian.Uint32(b[0:4]); got != MediaSectionSize {
		t.Fatalf("declared length = %d", got)
	}
	validation := binary.LittleEndian.Uint64(b[4:12])
	want := mediaValidDeviceID | mediaValidSerialNumber | mediaValidEventLog
	if validation != want {
		t.Fatalf("validation = %#x, want %#x", validation, want)
	}
	if got := binary.LittleEndian.Uint16(b[12:14]); got != 0x8086 {
		t.Fatalf("vendor = %#x", got)
	}
	// The event log copy starts after the record's class identifier.
	if !bytes.Equal(b[MediaSectionSize-0x70:], rec[16:]) {
		t.Fatal("event log bytes differ from record")
	}
	if b[MediaSectionSize-0x70+1] != 0xee {
		t.Fatalf("flag byte = %#x", b[MediaSectionSize-0x70+1])
	}
}
