package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

const defaultConfigPath = "/etc/rotabak/backup_configuration.json"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "config",
		Usage: "path to configuration file (json or yaml)",
		Value: defaultConfigPath,
	}
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cmd := &cli.Command{
		Name:    "rotabak",
		Usage:   "Tar backups onto rotating ZFS pools",
		Version: "0.1.0",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run one backup over every configured path",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "Log to the log file only",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runBackup(ctx, cmd.String("config"), cmd.Bool("quiet"))
				},
			},
			{
				Name:  "daemon",
				Usage: "Run backups on a cron schedule",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "schedule",
						Usage: "cron spec with a leading seconds field",
						Value: "0 0 2 * * *",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runDaemon(ctx, cmd.String("config"), cmd.String("schedule"))
				},
			},
			{
				Name:  "check",
				Usage: "Validate the configuration and probe datasets, devices and report storage",
				Flags: []cli.Flag{configFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runCheck(ctx, cmd.String("config"))
				},
			},
			{
				Name:  "genkey",
				Usage: "Generate public and private key pair for report encryption",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return generateKey()
				},
			},
			{
				Name:  "test-keys",
				Usage: "Test if public and private key pair match",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "private-key",
						Usage:    "Path to age private key file",
						Required: true,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return testKeys(cmd.String("config"), cmd.String("private-key"))
				},
			},
			{
				Name:  "report",
				Usage: "Print a run report",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "Path to a report file (.yaml or .yaml.age)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "private-key",
						Usage: "Path to age private key file, for encrypted reports",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return showReport(cmd.String("file"), cmd.String("private-key"))
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		if ctx.Err() == context.Canceled {
			fmt.Fprintln(os.Stderr, "\n⚠ Interrupted")
			os.Exit(130)
		}
		slog.Error("CLI error", "error", err)
		os.Exit(1)
	}
}
