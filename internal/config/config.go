// Package config loads the error-injection testbench configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ServerConfig configures the control-plane HTTP server.
type ServerConfig struct {
	Name        string   `toml:"name"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

// MemoryConfig sizes the flat guest memory the error region is linked into.
type MemoryConfig struct {
	Base uint64 `toml:"base"`
	Size uint64 `toml:"size"`
}

// DeviceConfig describes one error-source device.
type DeviceConfig struct {
	ID       string `toml:"id"`
	Vendor   uint16 `toml:"vendor"`
	Device   uint16 `toml:"device"`
	Class    uint32 `toml:"class"`
	Bus      uint8  `toml:"bus"`
	Slot     uint8  `toml:"slot"`
	Function uint8  `toml:"function"`
	Role     string `toml:"role"`
	Serial   uint64 `toml:"serial"`

	// DVSECBody is the CXL DVSEC body size in bytes; 0 means no DVSEC.
	DVSECBody int `toml:"dvsec_body"`
}

// RASFConfig selects the RAS capability channel variant.
type RASFConfig struct {
	Enabled bool   `toml:"enabled"`
	Variant string `toml:"variant"`
}

// MHDConfig points at the shared multi-head device state file.
type MHDConfig struct {
	Path   string `toml:"path"`
	HeadID int    `toml:"head_id"`
}

// Config is the full testbench configuration.
type Config struct {
	Server  ServerConfig   `toml:"server"`
	Memory  MemoryConfig   `toml:"memory"`
	Devices []DeviceConfig `toml:"devices"`
	RASF    RASFConfig     `toml:"rasf"`
	MHD     MHDConfig      `toml:"mhd"`
	OEMID   string         `toml:"oem_id"`
	TableID string         `toml:"oem_table_id"`
}

// Load reads, defaults, and validates a configuration file.
func Load(path string) (Config, error) {
	var cfg Config
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "rasctl"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":9300"
	}
	if cfg.Memory.Base == 0 {
		cfg.Memory.Base = 0x40000000
	}
	if cfg.Memory.Size == 0 {
		cfg.Memory.Size = 1 << 20
	}
	if cfg.RASF.Variant == "" {
		cfg.RASF.Variant = "rasf"
	}
	if cfg.OEMID == "" {
		cfg.OEMID = "RASCTL"
	}
	if cfg.TableID == "" {
		cfg.TableID = "RASCTLHE"
	}
}

// Validate rejects configurations the testbench cannot realize.
func Validate(cfg Config) error {
	if cfg.Memory.Size < 64*1024 {
		return fmt.Errorf("config: memory size %d below minimum 64KiB", cfg.Memory.Size)
	}
	switch strings.ToLower(cfg.RASF.Variant) {
	case "rasf", "ras2":
	default:
		return fmt.Errorf("config: unknown rasf variant %q", cfg.RASF.Variant)
	}
	seen := make(map[string]bool, len(cfg.Devices))
	for i, d := range cfg.Devices {
		if d.ID == "" {
			return fmt.Errorf("config: device %d has no id", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("config: duplicate device id %q", d.ID)
		}
		seen[d.ID] = true
		if _, err := ParseRole(d.Role); err != nil {
			return fmt.Errorf("config: device %q: %w", d.ID, err)
		}
	}
	if cfg.MHD.HeadID < 0 {
		return fmt.Errorf("config: negative head id %d", cfg.MHD.HeadID)
	}
	return nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}
