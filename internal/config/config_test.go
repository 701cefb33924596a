package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/svetly-todorov/rasctl/internal/pci"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rasctl.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9300" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Memory.Base != 0x40000000 || cfg.Memory.Size != 1<<20 {
		t.Fatalf("memory = %+v", cfg.Memory)
	}
	if cfg.RASF.Variant != "rasf" {
		t.Fatalf("rasf variant = %q", cfg.RASF.Variant)
	}
	if cfg.OEMID != "RASCTL" || cfg.TableID != "RASCTLHE" {
		t.Fatalf("oem = %q/%q", cfg.OEMID, cfg.TableID)
	}
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = ":9999"

[memory]
base = 0x80000000
size = 0x200000

[rasf]
enabled = true
variant = "ras2"

[[devices]]
id = "mem0"
vendor = 0x8086
device = 0x0d93
class = 0x050210
role = "endpoint-memory"
serial = 0x1122
dvsec_body = 20
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Memory.Base != 0x80000000 {
		t.Fatalf("base = %#x", cfg.Memory.Base)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].ID != "mem0" {
		t.Fatalf("devices = %+v", cfg.Devices)
	}
}

func TestLoadRejectsBadVariant(t *testing.T) {
	path := writeConfig(t, `
[rasf]
variant = "ras9"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("bad variant accepted")
	}
}

func TestLoadRejectsDuplicateDevice(t *testing.T) {
	path := writeConfig(t, `
[[devices]]
id = "mem0"

[[devices]]
id = "mem0"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("duplicate device id accepted")
	}
}

func TestDevices(t *testing.T) {
	devs, err := Devices([]DeviceConfig{
		{
			ID: "mem0", Vendor: 0x8086, Device: 0x0d93, Class: 0x050210,
			Bus: 0x0c, Role: "endpoint-memory", Serial: 0x55, DVSECBody: 20,
		},
		{
			ID: "rp0", Vendor: 0x8086, Device: 0x7075, Class: 0x060400,
			Role: "root-port", DVSECBody: 20,
		},
	})
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}

	mem := devs["mem0"]
	if mem.Role != pci.RoleEndpointMemory {
		t.Fatalf("mem0 role = %v", mem.Role)
	}
	if mem.RAS == nil {
		t.Fatal("mem0 has no RAS registers")
	}
	if off := mem.FindDVSEC(pci.CXLDVSECVendorID, pci.CXLDVSECDevice); off == 0 {
		t.Fatal("mem0 has no device DVSEC")
	}
	if mem.SerialNumberBytes() == nil {
		t.Fatal("mem0 has no serial capability")
	}

	rp := devs["rp0"]
	if rp.RAS != nil {
		t.Fatal("root port has RAS registers")
	}
	if off := rp.FindDVSEC(pci.CXLDVSECVendorID, pci.CXLDVSECPort); off == 0 {
		t.Fatal("rp0 has no port DVSEC")
	}
	// Port type from the role lands in the express capability.
	expOff := rp.FindCapability(pci.CapIDExpress)
	if got := (rp.ConfigWord(expOff+2) >> 4) & 0xf; got != 4 {
		t.Fatalf("rp0 port type = %d, want 4", got)
	}

	if _, err := Devices([]DeviceConfig{{ID: "x", Role: "elephant"}}); err == nil {
		t.Fatal("bad role accepted")
	}
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.toml")
	if err := WriteTemplate(path, "testbench", false); err != nil {
		t.Fatalf("WriteTemplate: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load generated template: %v", err)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("template devices = %d", len(cfg.Devices))
	}
	if cfg.RASF.Variant != "ras2" {
		t.Fatalf("template variant = %q", cfg.RASF.Variant)
	}
	if err := WriteTemplate(path, "testbench", false); err == nil {
		t.Fatal("overwrite without flag accepted")
	}
}
