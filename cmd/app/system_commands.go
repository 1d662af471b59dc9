package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/admissions/cmd/app/commands"
	"github.com/allisson/admissions/internal/app"
	"github.com/allisson/admissions/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the HTTP API, the metrics server, and the outbox scheduler",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "worker",
			Usage: "Run the outbox scheduler without the HTTP API",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunWorker(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
			},
		},
	}
}

func getPolicyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "policy",
			Usage: "Print the transition table in effect",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				policy, err := container.Policy()
				if err != nil {
					return err
				}

				return commands.RunPolicy(policy, commands.DefaultIO().Writer, cmd.String("format"))
			},
		},
	}
}
