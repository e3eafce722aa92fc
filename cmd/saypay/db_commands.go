package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/saypay/service/db"
	"github.com/itchyny/gojq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List transfer ledger rows",
		Aliases: []string{"txs"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "device",
				Aliases: []string{"d"},
				Usage:   "Filter by device UID",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of rows",
				Value:   50,
			},
			&cli.StringSliceFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq filter applied to each row; rows where all filters are truthy are kept",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			transactions, err := store.ListTransactions(context.Background(), db.ListTransactionsParams{
				DeviceUID: c.String("device"),
				Limit:     int32(c.Int("limit")),
			})
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			rows := make([]map[string]interface{}, 0, len(transactions))
			for _, t := range transactions {
				rows = append(rows, map[string]interface{}{
					"id":             t.ID.String(),
					"device_uid":     t.DeviceUID,
					"from_username":  t.FromUsername,
					"to_username":    t.ToUsername,
					"amount":         t.Amount.String(),
					"currency":       t.Currency,
					"network":        t.Network,
					"transcript":     t.Transcript,
					"txid":           t.TxID,
					"status":         t.Status,
					"failure_reason": t.FailureReason,
					"created_at":     t.CreatedAt.Format(time.RFC3339),
				})
			}

			rows, err = applyJQFilters(rows, c.StringSlice("filter"))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(rows)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FROM\tTO\tAMOUNT\tCURRENCY\tNETWORK\tSTATUS\tTXID\tCREATED")
			for _, row := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					row["from_username"],
					row["to_username"],
					row["amount"],
					row["currency"],
					row["network"],
					row["status"],
					formatOptional(row["txid"]),
					row["created_at"],
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(rows))
			return nil
		},
	}
}

func listTradesCommand() *cli.Command {
	return &cli.Command{
		Name:  "list-trades",
		Usage: "List swap ledger rows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "device",
				Aliases: []string{"d"},
				Usage:   "Filter by device UID",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of rows",
				Value:   50,
			},
			&cli.StringSliceFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq filter applied to each row; rows where all filters are truthy are kept",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			trades, err := store.ListTrades(context.Background(), db.ListTradesParams{
				DeviceUID: c.String("device"),
				Limit:     int32(c.Int("limit")),
			})
			if err != nil {
				return fmt.Errorf("failed to list trades: %w", err)
			}

			rows := make([]map[string]interface{}, 0, len(trades))
			for _, t := range trades {
				var receive interface{}
				if t.AmountReceive != nil {
					receive = t.AmountReceive.String()
				}
				rows = append(rows, map[string]interface{}{
					"id":             t.ID.String(),
					"device_uid":     t.DeviceUID,
					"amount_deposit": t.AmountDeposit.String(),
					"amount_receive": receive,
					"from_currency":  t.FromCurrency,
					"to_currency":    t.ToCurrency,
					"network":        t.Network,
					"transcript":     t.Transcript,
					"txid":           t.TxID,
					"status":         t.Status,
					"failure_reason": t.FailureReason,
					"created_at":     t.CreatedAt.Format(time.RFC3339),
				})
			}

			rows, err = applyJQFilters(rows, c.StringSlice("filter"))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(rows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DEPOSIT\tRECEIVE\tFROM\tTO\tNETWORK\tSTATUS\tTXID\tCREATED")
			for _, row := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					row["amount_deposit"],
					formatOptional(row["amount_receive"]),
					row["from_currency"],
					row["to_currency"],
					row["network"],
					row["status"],
					formatOptional(row["txid"]),
					row["created_at"],
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d trades\n", len(rows))
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the service schema to the database",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Println("schema applied")
			return nil
		},
	}
}

// applyJQFilters keeps the rows for which every jq filter yields a truthy
// value. Filters run against the row's JSON representation.
func applyJQFilters(rows []map[string]interface{}, filters []string) ([]map[string]interface{}, error) {
	if len(filters) == 0 {
		return rows, nil
	}

	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}

	kept := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		matches := true
		for _, code := range compiled {
			iter := code.Run(map[string]interface{}(row))
			v, ok := iter.Next()
			if !ok {
				matches = false
				break
			}
			if _, isErr := v.(error); isErr {
				matches = false
				break
			}
			if !isTruthy(v) {
				matches = false
				break
			}
		}
		if matches {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Helper function to format optional values for table output
func formatOptional(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case *string:
		if t == nil {
			return "-"
		}
		return *t
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
