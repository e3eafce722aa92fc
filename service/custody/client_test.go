package custody

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestClientTransferLifecycle(t *testing.T) {
	var polls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/wallets/import", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "base", body["network_id"])
		json.NewEncoder(w).Encode(map[string]string{"id": "w-1"})
	})
	mux.HandleFunc("GET /v1/wallets/w-1/default-address", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"address_id": "0xdest"})
	})
	mux.HandleFunc("POST /v1/wallets/w-1/transfers", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "5", body["amount"])
		assert.Equal(t, "usdc", body["asset_id"])
		assert.Equal(t, true, body["gasless"])
		json.NewEncoder(w).Encode(map[string]string{"id": "t-1", "status": "pending"})
	})
	mux.HandleFunc("GET /v1/wallets/w-1/transfers/t-1", func(w http.ResponseWriter, r *http.Request) {
		// First poll reports pending, second reports complete.
		if polls.Add(1) == 1 {
			json.NewEncoder(w).Encode(map[string]string{"id": "t-1", "status": "pending"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id":               "t-1",
			"status":           "complete",
			"transaction_hash": "0xhash",
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "test-secret", testLogger(),
		WithPollInterval(10*time.Millisecond))

	ctx := context.Background()
	wallet, err := client.ImportWallet(ctx, []byte(`{"seed":"x"}`), "base")
	require.NoError(t, err)
	assert.Equal(t, "w-1", wallet.ID())

	addr, err := wallet.DefaultAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0xdest", addr)

	pending, err := wallet.CreateTransfer(ctx, TransferRequest{
		Amount:      decimal.NewFromInt(5),
		AssetID:     "usdc",
		Destination: "0xdest",
		Gasless:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", pending.ID())

	receipt, err := pending.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, receipt.Status)
	assert.Equal(t, "0xhash", receipt.TxHash)
	assert.GreaterOrEqual(t, polls.Load(), int64(2))
}

func TestClientTradeReceiptAmount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/wallets/w-1/trades", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "tr-1", "status": "pending"})
	})
	mux.HandleFunc("GET /v1/wallets/w-1/trades/tr-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"id":               "tr-1",
			"status":           "complete",
			"transaction_hash": "0xswap",
			"to_amount":        "0.0042",
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL, "k", "s", testLogger(), WithPollInterval(10*time.Millisecond))
	wallet := &apiWallet{client: client, id: "w-1", network: "base"}

	pending, err := wallet.CreateTrade(context.Background(), TradeRequest{
		Amount:      decimal.NewFromInt(10),
		FromAssetID: "usdc",
		ToAssetID:   "eth",
	})
	require.NoError(t, err)

	receipt, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, receipt.Status)
	assert.True(t, decimal.RequireFromString("0.0042").Equal(receipt.ToAmount))
}

func TestClientWaitHonorsContextDeadline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/wallets/w-1/transfers/t-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "t-1", "status": "pending"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL, "k", "s", testLogger(), WithPollInterval(5*time.Millisecond))
	pending := &pendingOp{client: client, kind: "transfers", walletID: "w-1", opID: "t-1"}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := pending.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientErrorResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/wallets/import", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid credential"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL, "k", "s", testLogger())
	_, err := client.ImportWallet(context.Background(), []byte(`{}`), "base")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credential")
}
