package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/svetly-todorov/rasctl/internal/config"
)

func TestApplyOverridesPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.toml")
	body := "addr = \"127.0.0.1:9999\"\noem_id = \"ACME\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write overrides: %v", err)
	}

	cfg, err := applyOverrides(config.Default(), path)
	if err != nil {
		t.Fatalf("apply overrides: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Fatalf("unexpected addr: %q", cfg.Server.Addr)
	}
	if cfg.OEMID != "ACME" {
		t.Fatalf("unexpected oem id: %q", cfg.OEMID)
	}

	base := config.Default()
	if cfg.Server.Name != base.Server.Name {
		t.Fatalf("name should be untouched, got %q", cfg.Server.Name)
	}
	if cfg.TableID != base.TableID {
		t.Fatalf("table id should be untouched, got %q", cfg.TableID)
	}
}

func TestApplyOverridesMissingFile(t *testing.T) {
	if _, err := applyOverrides(config.Default(), filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing overrides file")
	}
}
