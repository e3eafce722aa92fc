package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brojonat/saypay/service/db"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTransactions(store *fakeStore) {
	txid := "0xabc"
	store.transactions = append(store.transactions, &db.Transaction{
		ID:           uuid.New(),
		DeviceUID:    "dev-1",
		FromUsername: "alice",
		ToUsername:   "bob",
		Amount:       decimal.RequireFromString("5.25"),
		Currency:     "USDC",
		Network:      "base",
		Transcript:   "Send five dollars to bob",
		TxID:         &txid,
		Status:       db.StatusSettled,
		DedupKey:     "k1",
		CreatedAt:    time.Now(),
	})
	reason := "Transaction failed."
	store.transactions = append(store.transactions, &db.Transaction{
		ID:            uuid.New(),
		DeviceUID:     "dev-2",
		FromUsername:  "carol",
		ToUsername:    "mallory",
		Amount:        decimal.NewFromInt(1),
		Currency:      "ETH",
		Network:       "ethereum",
		Transcript:    "Send one eth to mallory",
		Status:        db.StatusFailed,
		FailureReason: &reason,
		DedupKey:      "k2",
		CreatedAt:     time.Now(),
	})
}

func TestListTransactionsHandler(t *testing.T) {
	store := newFakeStore()
	seedTransactions(store)

	handler := handleListTransactions(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Transactions []transactionResponse `json:"transactions"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Transactions, 2)
	assert.Equal(t, "5.25", resp.Transactions[0].Amount)
	require.NotNil(t, resp.Transactions[0].TxID)
	assert.Equal(t, "0xabc", *resp.Transactions[0].TxID)
	assert.Equal(t, db.StatusFailed, resp.Transactions[1].Status)
	require.NotNil(t, resp.Transactions[1].FailureReason)
}

func TestListTransactionsDeviceFilter(t *testing.T) {
	store := newFakeStore()
	seedTransactions(store)

	handler := handleListTransactions(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions?device_uid=dev-1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Transactions []transactionResponse `json:"transactions"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, "dev-1", resp.Transactions[0].DeviceUID)
}

func TestListTransactionsInvalidPagination(t *testing.T) {
	store := newFakeStore()
	handler := handleListTransactions(store, testLogger())

	for _, query := range []string{"?limit=0", "?limit=9999", "?limit=abc", "?offset=-1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions"+query, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "query %s", query)
	}
}

func TestListTradesHandler(t *testing.T) {
	store := newFakeStore()
	receive := decimal.RequireFromString("0.0042")
	store.trades = append(store.trades, &db.Trade{
		ID:            uuid.New(),
		DeviceUID:     "dev-1",
		AmountDeposit: decimal.NewFromInt(10),
		AmountReceive: &receive,
		FromCurrency:  "USDC",
		ToCurrency:    "ETH",
		Network:       "base",
		Transcript:    "Swap ten dollars to eth",
		Status:        db.StatusSettled,
		DedupKey:      "k1",
		CreatedAt:     time.Now(),
	})

	handler := handleListTrades(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trades", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Trades []tradeResponse `json:"trades"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Trades, 1)
	assert.Equal(t, "10", resp.Trades[0].AmountDeposit)
	require.NotNil(t, resp.Trades[0].AmountReceive)
	assert.Equal(t, "0.0042", *resp.Trades[0].AmountReceive)
}

func TestGetUserHandler(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice", "dev-1", "base", "polygon")

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/users/{username}", handleGetUser(store, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/alice", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp userResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.Username)
	require.NotNil(t, resp.DeviceUID)
	assert.Equal(t, "dev-1", *resp.DeviceUID)
	assert.ElementsMatch(t, []string{"base", "polygon"}, resp.Networks)

	// Credentials never leak into the response.
	assert.NotContains(t, w.Body.String(), "wallet_id")
}

func TestGetUserNotFound(t *testing.T) {
	store := newFakeStore()

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/users/{username}", handleGetUser(store, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/nobody", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBearerTokenMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := bearerTokenMiddleware("s3cret")(inner)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer s3cret", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
