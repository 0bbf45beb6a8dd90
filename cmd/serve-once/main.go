package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/wuxxin/serve-once/common"
	"github.com/wuxxin/serve-once/config"
	"github.com/wuxxin/serve-once/httpserver"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "config",
		Value: "-",
		Usage: "path to the YAML configuration document, '-' reads standard input",
	},
	&cli.IntFlag{
		Name:  "timeout",
		Value: 0,
		Usage: "override the configured timeout in seconds (0 keeps the configured value)",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages, including per-request admission decisions",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: common.PackageName,
		Usage: "add 'service' tag to logs",
	},
}

func main() {
	app := &cli.App{
		Name:  "serve-once",
		Usage: "deliver a payload over HTTPS to exactly one authenticated request, then exit",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			logger := common.SetupLogger(&common.LoggingOpts{
				Debug:   cCtx.Bool("log-debug"),
				JSON:    cCtx.Bool("log-json"),
				Service: cCtx.String("log-service"),
				Version: common.Version,
			})

			if cCtx.Bool("log-uid") {
				id := uuid.Must(uuid.NewRandom())
				logger = logger.With("uid", id.String())
			}

			var configInput io.Reader = os.Stdin
			if path := cCtx.String("config"); path != "-" {
				f, err := os.Open(path)
				if err != nil {
					logger.Error("Failed to open configuration file", "err", err)
					return cli.Exit(err.Error(), 1)
				}
				defer f.Close()
				configInput = f
			}

			cfg, err := config.Load(configInput)
			if err != nil {
				logger.Error("Invalid configuration", "err", err)
				return cli.Exit(err.Error(), 1)
			}

			if timeout := cCtx.Int("timeout"); timeout > 0 {
				cfg.TimeoutSeconds = timeout
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := httpserver.New(cfg, logger)
			outcome, err := server.Run(ctx)
			if err != nil {
				logger.Error("Delivery failed", "outcome", outcome.String(), "err", err)
				return cli.Exit(fmt.Sprintf("%s: %s", outcome, err), 1)
			}

			logger.Info("Delivery complete", "outcome", outcome.String())
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
