package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/totalrecall/internal/api"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the Total Recall API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides server.port)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c.String("config"), c.String("env-file"))
			if err != nil {
				return err
			}
			if port := c.Int("port"); port > 0 {
				cfg.Server.Port = port
			}
			if len(cfg.ConfiguredProviders()) == 0 {
				log.Warn().Msg("No provider has an API key; conversation requests will fail")
			}

			deps, closeStore, err := buildDependencies(context.Background(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer closeStore()

			server, err := api.NewServer(api.Options{
				Addr:            cfg.Server.Addr(),
				AllowedOrigins:  cfg.Server.AllowedOrigins,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			}, deps)
			if err != nil {
				return err
			}

			log.Info().
				Str("backend", cfg.Store.Backend).
				Bool("compression", cfg.Store.Compression).
				Strs("providers", cfg.ConfiguredProviders()).
				Msg("Total Recall ready")
			return server.Start()
		},
	}
}
