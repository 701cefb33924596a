package main

import (
	"fmt"
	"os"

	"github.com/svetly-todorov/rasctl/internal/observability"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	observability.InitLogger("rasctl")

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "inject":
		err = runInject(os.Args[2:])
	case "dump":
		err = runDump(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "rasctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: rasctl <command> [flags]

commands:
  serve    run the error-injection control-plane server
  inject   realize the testbench, inject one error, and print the record
  dump     write the error source table or region layout
  config   generate or validate a configuration file`)
}
