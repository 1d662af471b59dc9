package main

import (
	"context"
	"net/http"

	"github.com/urfave/cli/v3"

	"github.com/allisson/admissions/cmd/app/commands"
	"github.com/allisson/admissions/internal/app"
	"github.com/allisson/admissions/internal/config"
	outboxUseCase "github.com/allisson/admissions/internal/outbox/usecase"
)

// withOutboxUseCase builds a container, hands its outbox use case to run, and shuts it down.
func withOutboxUseCase(
	ctx context.Context,
	run func(useCase outboxUseCase.UseCase, container *app.Container) error,
) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	defer func() { _ = container.Shutdown(ctx) }()

	useCase, err := container.OutboxUseCase()
	if err != nil {
		return err
	}
	return run(useCase, container)
}

func urlFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "url",
		Aliases: []string{"u"},
		Value:   "http://localhost:8080",
		Usage:   "Base URL of the running server",
	}
}

func getOutboxCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "outbox-health",
			Usage: "Print outbox health; exits non-zero when unhealthy",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withOutboxUseCase(ctx, func(useCase outboxUseCase.UseCase, container *app.Container) error {
					return commands.RunOutboxHealth(
						ctx,
						useCase,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "outbox-process",
			Usage: "Run one dispatch pass now, regardless of the pause flag",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"l"},
					Value:   0,
					Usage:   "Maximum events to lease per priority group (0 uses the configured batch size)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withOutboxUseCase(ctx, func(useCase outboxUseCase.UseCase, container *app.Container) error {
					return commands.RunOutboxProcess(
						ctx,
						useCase,
						container.Logger(),
						commands.DefaultIO().Writer,
						int(cmd.Int("limit")),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "outbox-reprocess",
			Usage: "Force delivery of one outbox event",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Outbox event ID (UUID)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withOutboxUseCase(ctx, func(useCase outboxUseCase.UseCase, container *app.Container) error {
					return commands.RunOutboxReprocess(
						ctx,
						useCase,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("id"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "outbox-purge",
			Usage: "Delete delivered and failed events past their retention",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withOutboxUseCase(ctx, func(useCase outboxUseCase.UseCase, container *app.Container) error {
					return commands.RunOutboxPurge(
						ctx,
						useCase,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "outbox-pause",
			Usage: "Pause outbox dispatch on a running server",
			Flags: []cli.Flag{urlFlag(), formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				return commands.RunOutboxPause(
					ctx,
					http.DefaultClient,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("url"),
					true,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "outbox-resume",
			Usage: "Resume outbox dispatch on a running server",
			Flags: []cli.Flag{urlFlag(), formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				return commands.RunOutboxPause(
					ctx,
					http.DefaultClient,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("url"),
					false,
					cmd.String("format"),
				)
			},
		},
	}
}
