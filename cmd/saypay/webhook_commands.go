package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

func webhookSendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Post a transcript to a running server's webhook endpoint",
		ArgsUsage: "<transcript-file>",
		Description: `Replays a transcript against POST /memory for debugging. The file is
either a raw text transcript (sent as a single segment) or a JSON payload
with a transcript_segments array, which is forwarded as-is.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "uid",
				Usage:    "Device UID to send as",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout (webhook requests wait on settlement)",
				Value: 5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transcript file")
			}

			raw, err := os.ReadFile(c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to read transcript file: %w", err)
			}

			// Raw text transcripts are wrapped in the device payload shape.
			body := raw
			if !json.Valid(raw) {
				wrapped, err := json.Marshal(map[string]interface{}{
					"transcript_segments": []map[string]string{
						{"text": string(raw)},
					},
				})
				if err != nil {
					return fmt.Errorf("failed to build payload: %w", err)
				}
				body = wrapped
			}

			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
			}

			endpoint := serverURL + "/memory?uid=" + url.QueryEscape(c.String("uid"))
			client := &http.Client{Timeout: c.Duration("timeout")}

			resp, err := client.Post(endpoint, "application/json", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("webhook request failed: %w", err)
			}
			defer resp.Body.Close()

			respBody, _ := io.ReadAll(resp.Body)
			fmt.Printf("status: %d\n", resp.StatusCode)
			if len(respBody) > 0 {
				fmt.Printf("body:   %s\n", string(respBody))
			}

			if resp.StatusCode >= 400 {
				return fmt.Errorf("server rejected webhook (status %d)", resp.StatusCode)
			}
			return nil
		},
	}
}
