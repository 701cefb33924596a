package main

import (
	"flag"

	"github.com/rs/zerolog/log"

	"github.com/svetly-todorov/rasctl/internal/config"
	"github.com/svetly-todorov/rasctl/internal/server"
	"github.com/svetly-todorov/rasctl/internal/testbench"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "testbench config path (defaults apply when empty)")
	overridesPath := fs.String("overrides", "", "flat overrides file layered on top of the config")
	addr := fs.String("addr", "", "listen address override")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *overridesPath != "" {
		cfg, err = applyOverrides(cfg, *overridesPath)
		if err != nil {
			return err
		}
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	bench, err := testbench.New(cfg, log.Logger)
	if err != nil {
		return err
	}
	defer bench.Close()

	srv := server.Appear(cfg.Server.Name, cfg.Server.Addr, cfg.Server.CorsOrigins, bench)
	srv.RegisterRoutes()

	log.Info().Str("name", srv.Name).Str("addr", srv.Addr).Msg("server started")
	return srv.Serve()
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
