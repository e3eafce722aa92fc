package db

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserLifecycle(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, "alice")
	require.NoError(t, err)

	// Duplicate usernames are rejected.
	_, err = store.CreateUser(ctx, "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// Unknown device yields ErrNotFound.
	_, err = store.FindUserByDeviceID(ctx, "dev-123")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetDeviceID(ctx, "alice", "dev-123"))

	u, err := store.FindUserByDeviceID(ctx, "dev-123")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	// Binding a device to a missing user fails.
	err = store.SetDeviceID(ctx, "nobody", "dev-999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserWallets(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, "bob")
	require.NoError(t, err)

	cred := json.RawMessage(`{"wallet_id":"w-1","seed":"s3cret"}`)
	require.NoError(t, store.SetWallet(ctx, "bob", "base", cred))
	require.NoError(t, store.SetWallet(ctx, "bob", "polygon", json.RawMessage(`{"wallet_id":"w-2"}`)))

	u, err := store.FindUserByUsername(ctx, "bob")
	require.NoError(t, err)

	got, ok := u.WalletFor("base")
	require.True(t, ok)
	assert.JSONEq(t, string(cred), string(got))

	_, ok = u.WalletFor("arbitrum")
	assert.False(t, ok)

	// Replacing a credential is an upsert.
	require.NoError(t, store.SetWallet(ctx, "bob", "base", json.RawMessage(`{"wallet_id":"w-3"}`)))
	u, err = store.FindUserByUsername(ctx, "bob")
	require.NoError(t, err)
	got, _ = u.WalletFor("base")
	assert.Contains(t, string(got), "w-3")

	// Wallet for a missing user fails.
	err = store.SetWallet(ctx, "nobody", "base", cred)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUsernames(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := store.CreateUser(ctx, name)
		require.NoError(t, err)
	}

	names, err := store.ListUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)
}

func TestTransactionLedger(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()

	txid := "0xabc"
	created, err := store.CreateTransaction(ctx, CreateTransactionParams{
		DeviceUID:    "dev-1",
		FromUsername: "alice",
		ToUsername:   "bob",
		Amount:       decimal.RequireFromString("5.25"),
		Currency:     "USDC",
		Network:      "base",
		Transcript:   "Send Five Dollars To Bob",
		TxID:         &txid,
		Status:       StatusSettled,
		DedupKey:     "k1",
	})
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := store.GetTransactionByDedupKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.True(t, decimal.RequireFromString("5.25").Equal(got.Amount))
	require.NotNil(t, got.TxID)
	assert.Equal(t, "0xabc", *got.TxID)

	// A second settled row for the same dedup key is rejected.
	_, err = store.CreateTransaction(ctx, CreateTransactionParams{
		DeviceUID:    "dev-1",
		FromUsername: "alice",
		ToUsername:   "bob",
		Amount:       decimal.RequireFromString("5.25"),
		Currency:     "USDC",
		Network:      "base",
		Transcript:   "Send Five Dollars To Bob",
		TxID:         &txid,
		Status:       StatusSettled,
		DedupKey:     "k1",
	})
	require.Error(t, err)

	// Failed rows do not consume the dedup key.
	reason := "settlement failed"
	_, err = store.CreateTransaction(ctx, CreateTransactionParams{
		DeviceUID:     "dev-1",
		FromUsername:  "alice",
		ToUsername:    "carol",
		Amount:        decimal.NewFromInt(1),
		Currency:      "ETH",
		Network:       "ethereum",
		Transcript:    "Send One Eth To Carol",
		Status:        StatusFailed,
		FailureReason: &reason,
		DedupKey:      "k2",
	})
	require.NoError(t, err)

	_, err = store.GetTransactionByDedupKey(ctx, "k2")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := store.ListTransactions(ctx, ListTransactionsParams{DeviceUID: "dev-1", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	all, err := store.ListTransactions(ctx, ListTransactionsParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTradeLedger(t *testing.T) {
	store := SetupTestStore(t)
	ctx := context.Background()

	receive := decimal.RequireFromString("0.0042")
	txid := "0xswap"
	created, err := store.CreateTrade(ctx, CreateTradeParams{
		DeviceUID:     "dev-1",
		AmountDeposit: decimal.NewFromInt(10),
		AmountReceive: &receive,
		FromCurrency:  "USDC",
		ToCurrency:    "ETH",
		Network:       "base",
		Transcript:    "Swap Ten Dollars To Eth",
		TxID:          &txid,
		Status:        StatusSettled,
		DedupKey:      "k1",
	})
	require.NoError(t, err)

	got, err := store.GetTradeByDedupKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	require.NotNil(t, got.AmountReceive)
	assert.True(t, receive.Equal(*got.AmountReceive))

	list, err := store.ListTrades(ctx, ListTradesParams{DeviceUID: "dev-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ETH", list[0].ToCurrency)
}
