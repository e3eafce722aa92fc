package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "saypay",
		Usage: "Voice payment bridge service CLI",
		Description: `A command-line tool for managing and debugging the saypay service.

Use this CLI to inspect ledger state, manage users and devices, and replay
transcripts against a running server.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Database inspection commands",
				Subcommands: []*cli.Command{
					listTransactionsCommand(),
					listTradesCommand(),
					migrateCommand(),
				},
			},
			// User and device management commands
			{
				Name:  "user",
				Usage: "User and device management commands",
				Subcommands: []*cli.Command{
					userAddCommand(),
					userSetDeviceCommand(),
					userSetWalletCommand(),
					userListCommand(),
				},
			},
			// Webhook debugging commands
			{
				Name:  "webhook",
				Usage: "Webhook debugging commands",
				Subcommands: []*cli.Command{
					webhookSendCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server URL for webhook and health commands",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
