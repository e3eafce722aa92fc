package events

import (
	"time"

	"github.com/brojonat/saypay/service/db"
)

// LedgerEvent represents a ledger row published to NATS. Both transfers and
// swaps publish to the subject "ledger.{device_uid}" in JetStream so
// downstream consumers (notifications, analytics) see one ordered feed per
// device.
type LedgerEvent struct {
	// Event identifiers
	ID   string `json:"id"`
	Kind string `json:"kind"` // "transfer" or "swap"

	// Device and parties
	DeviceUID    string `json:"device_uid"`
	FromUsername string `json:"from_username,omitempty"`
	ToUsername   string `json:"to_username,omitempty"`

	// Amounts as decimal strings
	Amount        string `json:"amount"`
	AmountReceive string `json:"amount_receive,omitempty"`
	Currency      string `json:"currency,omitempty"`
	FromCurrency  string `json:"from_currency,omitempty"`
	ToCurrency    string `json:"to_currency,omitempty"`
	Network       string `json:"network"`

	// Outcome
	Status        string  `json:"status"`
	TxID          *string `json:"txid,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`
	Transcript    string  `json:"transcript"`

	// Metadata
	CreatedAt   time.Time `json:"created_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromTransaction converts a transfer ledger row to a LedgerEvent.
func FromTransaction(txn *db.Transaction) *LedgerEvent {
	return &LedgerEvent{
		ID:            txn.ID.String(),
		Kind:          "transfer",
		DeviceUID:     txn.DeviceUID,
		FromUsername:  txn.FromUsername,
		ToUsername:    txn.ToUsername,
		Amount:        txn.Amount.String(),
		Currency:      txn.Currency,
		Network:       txn.Network,
		Status:        txn.Status,
		TxID:          txn.TxID,
		FailureReason: txn.FailureReason,
		Transcript:    txn.Transcript,
		CreatedAt:     txn.CreatedAt,
		PublishedAt:   time.Now().UTC(),
	}
}

// FromTrade converts a swap ledger row to a LedgerEvent.
func FromTrade(trade *db.Trade) *LedgerEvent {
	event := &LedgerEvent{
		ID:            trade.ID.String(),
		Kind:          "swap",
		DeviceUID:     trade.DeviceUID,
		Amount:        trade.AmountDeposit.String(),
		FromCurrency:  trade.FromCurrency,
		ToCurrency:    trade.ToCurrency,
		Network:       trade.Network,
		Status:        trade.Status,
		TxID:          trade.TxID,
		FailureReason: trade.FailureReason,
		Transcript:    trade.Transcript,
		CreatedAt:     trade.CreatedAt,
		PublishedAt:   time.Now().UTC(),
	}
	if trade.AmountReceive != nil {
		event.AmountReceive = trade.AmountReceive.String()
	}
	return event
}
