package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
)

func userAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Register a new user",
		ArgsUsage: "<username>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: username")
			}
			username := c.Args().First()

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			user, err := store.CreateUser(context.Background(), username)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]interface{}{
					"id":         user.ID,
					"username":   user.Username,
					"created_at": user.CreatedAt.Format(time.RFC3339),
				})
			}

			fmt.Printf("user %s created (id %d)\n", user.Username, user.ID)
			return nil
		},
	}
}

func userSetDeviceCommand() *cli.Command {
	return &cli.Command{
		Name:      "set-device",
		Usage:     "Bind a transcription device to a user",
		ArgsUsage: "<username> <device-uid>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires exactly two arguments: username and device UID")
			}
			username := c.Args().Get(0)
			deviceUID := c.Args().Get(1)

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.SetDeviceID(context.Background(), username, deviceUID); err != nil {
				return fmt.Errorf("failed to set device: %w", err)
			}

			fmt.Printf("device %s bound to %s\n", deviceUID, username)
			return nil
		},
	}
}

func userSetWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "set-wallet",
		Usage:     "Store a wallet credential for a user on a network",
		ArgsUsage: "<username> <network>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "credential-file",
				Aliases:  []string{"c"},
				Usage:    "Path to the wallet credential JSON exported from the custody provider",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires exactly two arguments: username and network")
			}
			username := c.Args().Get(0)
			network := c.Args().Get(1)

			credential, err := os.ReadFile(c.String("credential-file"))
			if err != nil {
				return fmt.Errorf("failed to read credential file: %w", err)
			}
			if !json.Valid(credential) {
				return fmt.Errorf("credential file is not valid JSON")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.SetWallet(context.Background(), username, network, credential); err != nil {
				return fmt.Errorf("failed to set wallet: %w", err)
			}

			fmt.Printf("%s wallet stored for %s\n", network, username)
			return nil
		},
	}
}

func userListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List registered users",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			users, err := store.ListUsers(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}

			if c.Bool("json") {
				rows := make([]map[string]interface{}, 0, len(users))
				for _, u := range users {
					rows = append(rows, map[string]interface{}{
						"id":         u.ID,
						"username":   u.Username,
						"device_uid": u.OmiID,
						"created_at": u.CreatedAt.Format(time.RFC3339),
					})
				}
				return outputJSON(rows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USERNAME\tDEVICE\tCREATED")
			for _, u := range users {
				device := "-"
				if u.OmiID != nil {
					device = *u.OmiID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", u.Username, device, u.CreatedAt.Format(time.RFC3339))
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d users\n", len(users))
			return nil
		},
	}
}
