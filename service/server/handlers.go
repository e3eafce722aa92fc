package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/saypay/service/db"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// transactionResponse is the API representation of a transfer ledger row.
type transactionResponse struct {
	ID            string    `json:"id"`
	DeviceUID     string    `json:"device_uid"`
	FromUsername  string    `json:"from_username"`
	ToUsername    string    `json:"to_username"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Network       string    `json:"network"`
	Transcript    string    `json:"transcript"`
	TxID          *string   `json:"txid,omitempty"`
	Status        string    `json:"status"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func transactionToResponse(t *db.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID.String(),
		DeviceUID:     t.DeviceUID,
		FromUsername:  t.FromUsername,
		ToUsername:    t.ToUsername,
		Amount:        t.Amount.String(),
		Currency:      t.Currency,
		Network:       t.Network,
		Transcript:    t.Transcript,
		TxID:          t.TxID,
		Status:        t.Status,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
	}
}

// tradeResponse is the API representation of a swap ledger row.
type tradeResponse struct {
	ID            string    `json:"id"`
	DeviceUID     string    `json:"device_uid"`
	AmountDeposit string    `json:"amount_deposit"`
	AmountReceive *string   `json:"amount_receive,omitempty"`
	FromCurrency  string    `json:"from_currency"`
	ToCurrency    string    `json:"to_currency"`
	Network       string    `json:"network"`
	Transcript    string    `json:"transcript"`
	TxID          *string   `json:"txid,omitempty"`
	Status        string    `json:"status"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func tradeToResponse(t *db.Trade) tradeResponse {
	resp := tradeResponse{
		ID:            t.ID.String(),
		DeviceUID:     t.DeviceUID,
		AmountDeposit: t.AmountDeposit.String(),
		FromCurrency:  t.FromCurrency,
		ToCurrency:    t.ToCurrency,
		Network:       t.Network,
		Transcript:    t.Transcript,
		TxID:          t.TxID,
		Status:        t.Status,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
	}
	if t.AmountReceive != nil {
		v := t.AmountReceive.String()
		resp.AmountReceive = &v
	}
	return resp
}

// userResponse is the API representation of a user. Wallet credentials are
// never exposed; only the networks they cover.
type userResponse struct {
	Username  string    `json:"username"`
	DeviceUID *string   `json:"device_uid,omitempty"`
	Networks  []string  `json:"networks"`
	CreatedAt time.Time `json:"created_at"`
}

// handleListTransactions returns a handler that lists transfer ledger rows.
// GET /api/v1/transactions?device_uid={uid}&limit={n}&offset={n}
func handleListTransactions(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, offset, err := parsePagination(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		transactions, err := store.ListTransactions(r.Context(), db.ListTransactionsParams{
			DeviceUID: r.URL.Query().Get("device_uid"),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			logger.Error("failed to list transactions", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]transactionResponse, len(transactions))
		for i, t := range transactions {
			resp[i] = transactionToResponse(t)
		}

		writeJSON(w, map[string]interface{}{
			"transactions": resp,
		}, http.StatusOK)
	})
}

// handleListTrades returns a handler that lists swap ledger rows.
// GET /api/v1/trades?device_uid={uid}&limit={n}&offset={n}
func handleListTrades(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, offset, err := parsePagination(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		trades, err := store.ListTrades(r.Context(), db.ListTradesParams{
			DeviceUID: r.URL.Query().Get("device_uid"),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			logger.Error("failed to list trades", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]tradeResponse, len(trades))
		for i, t := range trades {
			resp[i] = tradeToResponse(t)
		}

		writeJSON(w, map[string]interface{}{
			"trades": resp,
		}, http.StatusOK)
	})
}

// handleGetUser returns a handler that retrieves a user's public profile.
// GET /api/v1/users/{username}
func handleGetUser(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := r.PathValue("username")
		if username == "" {
			writeError(w, "username is required", http.StatusBadRequest)
			return
		}

		user, err := store.FindUserByUsername(r.Context(), username)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "user not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get user", "username", username, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		networks := make([]string, 0, len(user.Wallets))
		for network := range user.Wallets {
			networks = append(networks, network)
		}

		writeJSON(w, userResponse{
			Username:  user.Username,
			DeviceUID: user.OmiID,
			Networks:  networks,
			CreatedAt: user.CreatedAt,
		}, http.StatusOK)
	})
}

// parsePagination reads limit/offset query parameters with bounds.
func parsePagination(r *http.Request) (limit, offset int32, err error) {
	limit = defaultPageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil || n <= 0 || n > maxPageLimit {
			return 0, 0, errorf("invalid limit: must be 1-%d", maxPageLimit)
		}
		limit = int32(n)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil || n < 0 {
			return 0, 0, errorf("invalid offset: must be non-negative")
		}
		offset = int32(n)
	}
	return limit, offset, nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
