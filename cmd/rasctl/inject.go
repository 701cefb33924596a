package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/svetly-todorov/rasctl/internal/cper"
	"github.com/svetly-todorov/rasctl/internal/ghes"
	"github.com/svetly-todorov/rasctl/internal/testbench"
)

func runInject(args []string) error {
	fs := flag.NewFlagSet("inject", flag.ExitOnError)
	configPath := fs.String("config", "", "testbench config path")
	kind := fs.String("kind", "memory", "error kind: memory|aer|cxl-protocol|cxl-media")
	source := fs.Int("source", 0, "source id for memory errors (0=sea, 1=gpio)")
	address := fs.Uint64("address", 0x1000, "guest physical address for memory errors")
	device := fs.String("device", "", "configured device id for device errors")
	dpa := fs.Uint64("dpa", 0, "device physical address for media events")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	bench, err := testbench.New(cfg, log.Logger)
	if err != nil {
		return err
	}
	defer bench.Close()

	sourceID := *source
	switch *kind {
	case "memory":
		err = bench.InjectMemory(sourceID, *address)
	case "aer":
		sourceID = ghes.SourceIDGPIO
		err = bench.InjectAER(*device)
	case "cxl-protocol":
		sourceID = ghes.SourceIDGPIO
		err = bench.InjectCXLProtocol(*device, nil)
	case "cxl-media":
		sourceID = ghes.SourceIDGPIO
		err = bench.InjectCXLMedia(*device, cper.GenMediaEvent{DPA: *dpa})
	default:
		return fmt.Errorf("unknown error kind: %s", *kind)
	}
	if err != nil {
		return err
	}

	return printSlot(bench, sourceID)
}

func printSlot(bench *testbench.Bench, sourceID int) error {
	slot, err := bench.GHES.ReadSlot(sourceID)
	if err != nil {
		return err
	}
	sb, err := cper.DecodeStatusBlock(slot)
	if err != nil {
		return err
	}
	fmt.Printf("source %d: block_status=%#x severity=%s data_length=%d\n",
		sourceID, sb.BlockStatus, sb.Severity, sb.DataLength)
	if sb.BlockStatus != 0 {
		de, err := cper.DecodeDataEntry(slot[cper.StatusBlockSize:])
		if err != nil {
			return err
		}
		fmt.Printf("section %s (%d bytes)\n", de.SectionType, de.ErrorDataLength)
	}

	dumper := hex.Dumper(os.Stdout)
	defer dumper.Close()
	_, err = dumper.Write(slot[:cper.StatusBlockSize+sb.DataLength])
	return err
}
