package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/svetly-todorov/rasctl/internal/config"
	"github.com/svetly-todorov/rasctl/internal/ghes"
	"github.com/svetly-todorov/rasctl/internal/testbench"
)

func runDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	configPath := fs.String("config", "", "testbench config path")
	what := fs.String("what", "hest", "what to dump: hest|region")
	output := fs.String("output", "", "output path for table bytes (stdout summary otherwise)")
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

	switch *what {
	case "hest":
		if *output != "" {
			if err := os.WriteFile(*output, bench.HEST, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %d table bytes to %s\n", len(bench.HEST), *output)
			return nil
		}
		fmt.Printf("%s rev %d, %d bytes, %d sources\n",
			bench.HEST[0:4], bench.HEST[8], len(bench.HEST), ghes.SourceCount)
		return nil
	case "region":
		return printRegion(bench)
	default:
		return fmt.Errorf("unknown dump target: %s", *what)
	}
}

func printRegion(bench *testbench.Bench) error {
	base := bench.GHES.BaseAddress()
	fmt.Printf("error region at %#x (%d bytes)\n", base, ghes.RegionSize)
	for i := 0; i < ghes.SourceCount; i++ {
		ack, err := bench.GHES.ReadAck(i)
		if err != nil {
			return err
		}
		addrs, ok := bench.GHES.Resolve(notifyFor(i))
		if !ok {
			return fmt.Errorf("source %d unresolved", i)
		}
		fmt.Printf("source %d: block=%#x ack_register=%#x ack=%d\n", i, addrs.Block, addrs.Ack, ack)
	}
	return nil
}

func notifyFor(sourceID int) ghes.NotifyType {
	if sourceID == ghes.SourceIDGPIO {
		return ghes.NotifyGPIO
	}
	return ghes.NotifySEA
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	kind := fs.String("kind", "testbench", "template kind: testbench|minimal")
	output := fs.String("output", "rasctl.toml", "output path for the template")
	validate := fs.String("validate", "", "validate an existing config file instead")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *validate != "" {
		if _, err := config.Load(*validate); err != nil {
			return err
		}
		fmt.Printf("validated %s\n", *validate)
		return nil
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		return err
	}
	fmt.Printf("wrote %s config template to %s\n", *kind, *output)
	return nil
}
