// Package db provides the identity reads and ledger writes for the service.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Schema is the SQL DDL for the service tables. Apply it via [Store.Migrate]
// or manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    username   TEXT NOT NULL UNIQUE,
    omi_id     TEXT UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_wallets (
    user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    network    TEXT NOT NULL,
    credential JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, network)
);

CREATE TABLE IF NOT EXISTS transactions (
    id             UUID PRIMARY KEY,
    device_uid     TEXT NOT NULL,
    from_username  TEXT NOT NULL,
    to_username    TEXT NOT NULL,
    amount         NUMERIC NOT NULL,
    currency       TEXT NOT NULL,
    network        TEXT NOT NULL,
    transcript     TEXT NOT NULL,
    txid           TEXT,
    status         TEXT NOT NULL,
    failure_reason TEXT,
    dedup_key      TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_dedup_settled
    ON transactions(dedup_key) WHERE status = 'settled';
CREATE INDEX IF NOT EXISTS idx_transactions_device
    ON transactions(device_uid, created_at DESC);

CREATE TABLE IF NOT EXISTS trades (
    id             UUID PRIMARY KEY,
    device_uid     TEXT NOT NULL,
    amount_deposit NUMERIC NOT NULL,
    amount_receive NUMERIC,
    from_currency  TEXT NOT NULL,
    to_currency    TEXT NOT NULL,
    network        TEXT NOT NULL,
    transcript     TEXT NOT NULL,
    txid           TEXT,
    status         TEXT NOT NULL,
    failure_reason TEXT,
    dedup_key      TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_dedup_settled
    ON trades(dedup_key) WHERE status = 'settled';
CREATE INDEX IF NOT EXISTS idx_trades_device
    ON trades(device_uid, created_at DESC);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides database operations for the service.
type Store struct {
	db DB
}

// NewStore creates a new Store with the given connection or pool.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the Schema DDL, creating tables and indexes if they do
// not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}

// User is a registered identity. The core only reads users; registration and
// credential management belong to the account surface.
type User struct {
	ID        int64
	Username  string
	OmiID     *string
	Wallets   map[string]json.RawMessage // network -> opaque wallet credential
	CreatedAt time.Time
}

// WalletFor returns the wallet credential for a network, or false when the
// user has no wallet on that network.
func (u *User) WalletFor(network string) (json.RawMessage, bool) {
	cred, ok := u.Wallets[network]
	return cred, ok
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, username string) (*User, error) {
	u := &User{Username: username, Wallets: make(map[string]json.RawMessage)}
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (username) VALUES ($1) RETURNING id, created_at`,
		username,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("db: user %q already exists", username)
		}
		return nil, fmt.Errorf("db: create user: %w", err)
	}
	return u, nil
}

// SetDeviceID binds a transcription device to a user.
func (s *Store) SetDeviceID(ctx context.Context, username, omiID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET omi_id = $2 WHERE username = $1`,
		username, omiID,
	)
	if err != nil {
		return fmt.Errorf("db: set device id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetWallet stores (or replaces) a user's wallet credential for a network.
func (s *Store) SetWallet(ctx context.Context, username, network string, credential json.RawMessage) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO user_wallets (user_id, network, credential)
		SELECT id, $2, $3 FROM users WHERE username = $1
		ON CONFLICT (user_id, network) DO UPDATE SET credential = EXCLUDED.credential`,
		username, network, credential,
	)
	if err != nil {
		return fmt.Errorf("db: set wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindUserByDeviceID looks up the identity bound to a device identifier.
// Returns ErrNotFound when no user has claimed the device.
func (s *Store) FindUserByDeviceID(ctx context.Context, deviceID string) (*User, error) {
	return s.findUser(ctx, `SELECT id, username, omi_id, created_at FROM users WHERE omi_id = $1`, deviceID)
}

// FindUserByUsername looks up an identity by username.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.findUser(ctx, `SELECT id, username, omi_id, created_at FROM users WHERE username = $1`, username)
}

func (s *Store) findUser(ctx context.Context, query string, arg any) (*User, error) {
	u := &User{Wallets: make(map[string]json.RawMessage)}
	err := s.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.OmiID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db: find user: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT network, credential FROM user_wallets WHERE user_id = $1`, u.ID)
	if err != nil {
		return nil, fmt.Errorf("db: load wallets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var network string
		var credential json.RawMessage
		if err := rows.Scan(&network, &credential); err != nil {
			return nil, fmt.Errorf("db: scan wallet: %w", err)
		}
		u.Wallets[network] = credential
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate wallets: %w", err)
	}
	return u, nil
}

// ListUsernames returns all registered usernames, ordered. Used as grounding
// context for transfer extraction.
func (s *Store) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT username FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("db: list usernames: %w", err)
	}
	defer rows.Close()

	var usernames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("db: scan username: %w", err)
		}
		usernames = append(usernames, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate usernames: %w", err)
	}
	return usernames, nil
}

// ListUsers returns all users without wallet credentials, for the CLI.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.Query(ctx, `SELECT id, username, omi_id, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("db: list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Username, &u.OmiID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("db: scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate users: %w", err)
	}
	return users, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
