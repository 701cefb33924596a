// Package testbench assembles the error-injection testbench: flat guest
// memory, the firmware blob registry and linker, the hardware error source
// state, the configured devices, and the optional RAS channel and
// multi-head state.
//
// Ownership boundary: testbench wires the pieces together and replays the
// firmware boot. The pieces own their own semantics.
package testbench

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/svetly-todorov/rasctl/internal/config"
	"github.com/svetly-todorov/rasctl/internal/cper"
	"github.com/svetly-todorov/rasctl/internal/fwcfg"
	"github.com/svetly-todorov/rasctl/internal/ghes"
	"github.com/svetly-todorov/rasctl/internal/guestmem"
	"github.com/svetly-todorov/rasctl/internal/mhd"
	"github.com/svetly-todorov/rasctl/internal/pci"
	"github.com/svetly-todorov/rasctl/internal/rasf"
)

var ErrUnknownDevice = errors.New("testbench: unknown device")

// Default topology for a freshly created multi-head state file.
const (
	defaultMHDHeads  = 4
	defaultMHDBlocks = 512
)

// Bench is a realized testbench.
type Bench struct {
	Cfg      config.Config
	Mem      *guestmem.Flat
	Registry *fwcfg.Registry
	Linker   *fwcfg.Linker
	GHES     *ghes.State
	HEST     []byte
	Devices  map[string]*pci.Device
	RASF     *rasf.Channel
	MHD      *mhd.State

	log zerolog.Logger
}

// New realizes the configuration and replays the firmware boot so the error
// region is linked and ready for records.
func New(cfg config.Config, log zerolog.Logger) (*Bench, error) {
	mem := guestmem.NewFlat(cfg.Memory.Base, cfg.Memory.Size)
	reg := fwcfg.NewRegistry()
	linker := fwcfg.NewLinker(reg)

	state, err := ghes.New(mem, reg, linker, log)
	if err != nil {
		return nil, fmt.Errorf("testbench: error source init: %w", err)
	}
	hest, err := state.BuildHEST(reg, linker, cfg.OEMID, cfg.TableID)
	if err != nil {
		return nil, fmt.Errorf("testbench: table build: %w", err)
	}
	if err := linker.Link(mem, cfg.Memory.Base); err != nil {
		return nil, fmt.Errorf("testbench: firmware link: %w", err)
	}

	devices, err := config.Devices(cfg.Devices)
	if err != nil {
		return nil, fmt.Errorf("testbench: %w", err)
	}

	b := &Bench{
		Cfg:      cfg,
		Mem:      mem,
		Registry: reg,
		Linker:   linker,
		GHES:     state,
		HEST:     hest,
		Devices:  devices,
		log:      log,
	}

	if cfg.RASF.Enabled {
		variant, err := config.ParseVariant(cfg.RASF.Variant)
		if err != nil {
			return nil, fmt.Errorf("testbench: %w", err)
		}
		b.RASF = rasf.NewChannel(variant, log, nil)
	}

	if cfg.MHD.Path != "" {
		if _, err := os.Stat(cfg.MHD.Path); err != nil {
			if err := mhd.Create(cfg.MHD.Path, defaultMHDHeads, defaultMHDHeads, defaultMHDBlocks); err != nil {
				return nil, fmt.Errorf("testbench: %w", err)
			}
		}
		st, err := mhd.Open(cfg.MHD.Path, cfg.MHD.HeadID, log)
		if err != nil {
			return nil, fmt.Errorf("testbench: %w", err)
		}
		if err := st.ResetHead(); err != nil {
			st.Close()
			return nil, fmt.Errorf("testbench: %w", err)
		}
		b.MHD = st
	}

	log.Info().
		Uint64("base", cfg.Memory.Base).
		Uint64("region", state.BaseAddress()).
		Int("devices", len(devices)).
		Bool("rasf", b.RASF != nil).
		Bool("mhd", b.MHD != nil).
		Msg("testbench realized")
	return b, nil
}

// Close releases resources that outlive the process state.
func (b *Bench) Close() error {
	if b.MHD != nil {
		return b.MHD.Close()
	}
	return nil
}

// Device resolves a configured device id.
func (b *Bench) Device(id string) (*pci.Device, error) {
	d, ok := b.Devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	return d, nil
}

// InjectMemory records a memory error against the given source.
func (b *Bench) InjectMemory(sourceID int, physAddr uint64) error {
	return b.GHES.RecordMemoryError(sourceID, physAddr)
}

// InjectAER records a PCI Express error for a configured device on the
// GPIO-signaled source.
func (b *Bench) InjectAER(deviceID string) error {
	d, err := b.Device(deviceID)
	if err != nil {
		return err
	}
	return b.GHES.RecordAER(ghes.NotifyGPIO, d)
}

// InjectCXLProtocol records a CXL protocol error for a configured device.
// headerLog may be empty.
func (b *Bench) InjectCXLProtocol(deviceID string, headerLog []uint32) error {
	d, err := b.Device(deviceID)
	if err != nil {
		return err
	}
	var detail *cper.ProtocolErrorDetail
	if len(headerLog) > 0 {
		detail = &cper.ProtocolErrorDetail{}
		copy(detail.HeaderLog[:], headerLog)
	}
	return b.GHES.RecordCXLProtocolError(ghes.NotifyGPIO, d, detail)
}

// InjectCXLMedia records a CXL general-media event for a configured device.
func (b *Bench) InjectCXLMedia(deviceID string, ev cper.GenMediaEvent) error {
	d, err := b.Device(deviceID)
	if err != nil {
		return err
	}
	return b.GHES.RecordCXLMediaEvent(ghes.NotifyGPIO, d, ev.EncodeRecord())
}

// Acknowledge sets a source's read-ack flag, standing in for the guest.
func (b *Bench) Acknowledge(sourceID int) error {
	return b.GHES.WriteAck(sourceID, 1)
}
