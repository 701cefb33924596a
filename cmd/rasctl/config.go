package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/svetly-todorov/rasctl/internal/config"
)

type overridesFile struct {
	Name        string   `toml:"name"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	OEMID       string   `toml:"oem_id"`
	TableID     string   `toml:"oem_table_id"`
}

// applyOverrides layers a flat operator-side overrides file on top of the
// loaded config. Only keys present in the file are applied.
func applyOverrides(cfg config.Config, path string) (config.Config, error) {
	var raw overridesFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.Config{}, fmt.Errorf("load overrides: %w", err)
	}

	if meta.IsDefined("name") {
		name := strings.TrimSpace(raw.Name)
		if name != "" {
			cfg.Server.Name = name
		}
	}

	if meta.IsDefined("addr") {
		cfg.Server.Addr = strings.TrimSpace(raw.Addr)
	}

	if meta.IsDefined("cors_origins") {
		cfg.Server.CorsOrigins = raw.CorsOrigins
	}

	if meta.IsDefined("oem_id") {
		cfg.OEMID = strings.TrimSpace(raw.OEMID)
	}

	if meta.IsDefined("oem_table_id") {
		cfg.TableID = strings.TrimSpace(raw.TableID)
	}

	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
