package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Ledger row statuses. Skipped intents have no side effects and therefore no
// rows; only attempted executions are recorded.
const (
	StatusSettled = "settled"
	StatusFailed  = "failed"
)

// Transaction is one attempted transfer, settled or failed.
type Transaction struct {
	ID            uuid.UUID
	DeviceUID     string
	FromUsername  string
	ToUsername    string
	Amount        decimal.Decimal
	Currency      string
	Network       string
	Transcript    string
	TxID          *string
	Status        string
	FailureReason *string
	DedupKey      string
	CreatedAt     time.Time
}

// CreateTransactionParams contains the parameters for recording a transfer
// attempt.
type CreateTransactionParams struct {
	DeviceUID     string
	FromUsername  string
	ToUsername    string
	Amount        decimal.Decimal
	Currency      string
	Network       string
	Transcript    string
	TxID          *string
	Status        string
	FailureReason *string
	DedupKey      string
}

const transactionColumns = `id, device_uid, from_username, to_username, amount::text,
	currency, network, transcript, txid, status, failure_reason, dedup_key, created_at`

// CreateTransaction inserts a transfer ledger row.
func (s *Store) CreateTransaction(ctx context.Context, params CreateTransactionParams) (*Transaction, error) {
	id := uuid.New()
	t := &Transaction{
		ID:            id,
		DeviceUID:     params.DeviceUID,
		FromUsername:  params.FromUsername,
		ToUsername:    params.ToUsername,
		Amount:        params.Amount,
		Currency:      params.Currency,
		Network:       params.Network,
		Transcript:    params.Transcript,
		TxID:          params.TxID,
		Status:        params.Status,
		FailureReason: params.FailureReason,
		DedupKey:      params.DedupKey,
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO transactions (
			id, device_uid, from_username, to_username, amount,
			currency, network, transcript, txid, status, failure_reason, dedup_key
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at`,
		id, params.DeviceUID, params.FromUsername, params.ToUsername, params.Amount.String(),
		params.Currency, params.Network, params.Transcript, params.TxID,
		params.Status, params.FailureReason, params.DedupKey,
	).Scan(&t.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("db: transaction already settled for dedup key %s", params.DedupKey)
		}
		return nil, fmt.Errorf("db: create transaction: %w", err)
	}
	return t, nil
}

// GetTransactionByDedupKey returns the settled transaction for a dedup key,
// or ErrNotFound. Used for webhook replay protection.
func (s *Store) GetTransactionByDedupKey(ctx context.Context, dedupKey string) (*Transaction, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE dedup_key = $1 AND status = $2`,
		dedupKey, StatusSettled,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db: get transaction by dedup key: %w", err)
	}
	return t, nil
}

// ListTransactionsParams contains filters and pagination for transfer listing.
type ListTransactionsParams struct {
	DeviceUID string // empty lists all devices
	Limit     int32
	Offset    int32
}

// ListTransactions retrieves transfer ledger rows, newest first.
func (s *Store) ListTransactions(ctx context.Context, params ListTransactionsParams) ([]*Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1 = '' OR device_uid = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		params.DeviceUID, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("db: list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate transactions: %w", err)
	}
	return transactions, nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	t := &Transaction{}
	var amount string
	err := row.Scan(
		&t.ID, &t.DeviceUID, &t.FromUsername, &t.ToUsername, &amount,
		&t.Currency, &t.Network, &t.Transcript, &t.TxID,
		&t.Status, &t.FailureReason, &t.DedupKey, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return t, nil
}

// Trade is one attempted swap, settled or failed.
type Trade struct {
	ID            uuid.UUID
	DeviceUID     string
	AmountDeposit decimal.Decimal
	AmountReceive *decimal.Decimal
	FromCurrency  string
	ToCurrency    string
	Network       string
	Transcript    string
	TxID          *string
	Status        string
	FailureReason *string
	DedupKey      string
	CreatedAt     time.Time
}

// CreateTradeParams contains the parameters for recording a swap attempt.
type CreateTradeParams struct {
	DeviceUID     string
	AmountDeposit decimal.Decimal
	AmountReceive *decimal.Decimal
	FromCurrency  string
	ToCurrency    string
	Network       string
	Transcript    string
	TxID          *string
	Status        string
	FailureReason *string
	DedupKey      string
}

const tradeColumns = `id, device_uid, amount_deposit::text, amount_receive::text,
	from_currency, to_currency, network, transcript, txid, status, failure_reason, dedup_key, created_at`

// CreateTrade inserts a swap ledger row.
func (s *Store) CreateTrade(ctx context.Context, params CreateTradeParams) (*Trade, error) {
	id := uuid.New()
	t := &Trade{
		ID:            id,
		DeviceUID:     params.DeviceUID,
		AmountDeposit: params.AmountDeposit,
		AmountReceive: params.AmountReceive,
		FromCurrency:  params.FromCurrency,
		ToCurrency:    params.ToCurrency,
		Network:       params.Network,
		Transcript:    params.Transcript,
		TxID:          params.TxID,
		Status:        params.Status,
		FailureReason: params.FailureReason,
		DedupKey:      params.DedupKey,
	}

	var receive *string
	if params.AmountReceive != nil {
		v := params.AmountReceive.String()
		receive = &v
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO trades (
			id, device_uid, amount_deposit, amount_receive, from_currency,
			to_currency, network, transcript, txid, status, failure_reason, dedup_key
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at`,
		id, params.DeviceUID, params.AmountDeposit.String(), receive, params.FromCurrency,
		params.ToCurrency, params.Network, params.Transcript, params.TxID,
		params.Status, params.FailureReason, params.DedupKey,
	).Scan(&t.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("db: trade already settled for dedup key %s", params.DedupKey)
		}
		return nil, fmt.Errorf("db: create trade: %w", err)
	}
	return t, nil
}

// GetTradeByDedupKey returns the settled trade for a dedup key, or
// ErrNotFound.
func (s *Store) GetTradeByDedupKey(ctx context.Context, dedupKey string) (*Trade, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+tradeColumns+`
		FROM trades WHERE dedup_key = $1 AND status = $2`,
		dedupKey, StatusSettled,
	)
	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db: get trade by dedup key: %w", err)
	}
	return t, nil
}

// ListTradesParams contains filters and pagination for swap listing.
type ListTradesParams struct {
	DeviceUID string
	Limit     int32
	Offset    int32
}

// ListTrades retrieves swap ledger rows, newest first.
func (s *Store) ListTrades(ctx context.Context, params ListTradesParams) ([]*Trade, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE ($1 = '' OR device_uid = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		params.DeviceUID, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("db: list trades: %w", err)
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate trades: %w", err)
	}
	return trades, nil
}

func scanTrade(row pgx.Row) (*Trade, error) {
	t := &Trade{}
	var deposit string
	var receive *string
	err := row.Scan(
		&t.ID, &t.DeviceUID, &deposit, &receive,
		&t.FromCurrency, &t.ToCurrency, &t.Network, &t.Transcript, &t.TxID,
		&t.Status, &t.FailureReason, &t.DedupKey, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.AmountDeposit, err = decimal.NewFromString(deposit)
	if err != nil {
		return nil, fmt.Errorf("parse amount_deposit %q: %w", deposit, err)
	}
	if receive != nil {
		v, err := decimal.NewFromString(*receive)
		if err != nil {
			return nil, fmt.Errorf("parse amount_receive %q: %w", *receive, err)
		}
		t.AmountReceive = &v
	}
	return t, nil
}
