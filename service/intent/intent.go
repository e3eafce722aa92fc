// Package intent maps command utterances to structured transfer and swap
// intents via a schema-constrained extraction capability.
package intent

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Network identifies a supported settlement network.
type Network string

const (
	NetworkBase     Network = "base"
	NetworkPolygon  Network = "polygon"
	NetworkArbitrum Network = "arbitrum"
	NetworkEthereum Network = "ethereum"
)

// ParseNetwork validates a network name. Unknown networks are rejected so
// that intents carrying them are dropped rather than executed.
func ParseNetwork(s string) (Network, bool) {
	switch Network(s) {
	case NetworkBase, NetworkPolygon, NetworkArbitrum, NetworkEthereum:
		return Network(s), true
	}
	return "", false
}

// Currency identifies a supported asset.
type Currency string

const (
	CurrencyUSDC Currency = "USDC"
	CurrencyETH  Currency = "ETH"
)

// ParseCurrency validates a currency name.
func ParseCurrency(s string) (Currency, bool) {
	switch Currency(s) {
	case CurrencyUSDC, CurrencyETH:
		return Currency(s), true
	}
	return "", false
}

// AssetID returns the custody provider's asset identifier for the currency.
func (c Currency) AssetID() string {
	switch c {
	case CurrencyUSDC:
		return "usdc"
	case CurrencyETH:
		return "eth"
	}
	return ""
}

// TransferIntent is a validated instruction to send funds to a known user.
type TransferIntent struct {
	To         string
	Amount     decimal.Decimal
	Currency   Currency
	Network    Network
	Transcript string
}

// SwapIntent is a validated instruction to trade one asset for another on
// the sender's own wallet.
type SwapIntent struct {
	Amount       decimal.Decimal
	FromCurrency Currency
	ToCurrency   Currency
	Network      Network
	Transcript   string
}

// ExtractionError indicates the extraction capability returned nothing or
// something unparsable for one utterance. It is attributed to that utterance
// only and never aborts the batch.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// rawTransfer is the wire shape the extraction capability returns for a
// transfer utterance. Amounts arrive as JSON numbers or strings depending on
// the model, so they are decoded leniently.
type rawTransfer struct {
	To       string      `json:"to"`
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
	Network  string      `json:"network"`
}

// rawSwap is the wire shape for a swap utterance.
type rawSwap struct {
	Amount       json.Number `json:"amount"`
	FromCurrency string      `json:"fromCurrency"`
	ToCurrency   string      `json:"toCurrency"`
	Network      string      `json:"network"`
}

// transferFromRaw validates a raw extraction result. The second return is
// false when the intent is incomplete or fails validation; such intents are
// dropped without error per the webhook contract.
func transferFromRaw(raw rawTransfer, utterance string) (*TransferIntent, bool) {
	if raw.To == "" || raw.Amount == "" {
		return nil, false
	}
	amount, err := decimal.NewFromString(raw.Amount.String())
	if err != nil || !amount.IsPositive() {
		return nil, false
	}
	currency, ok := ParseCurrency(raw.Currency)
	if !ok {
		return nil, false
	}
	network, ok := ParseNetwork(raw.Network)
	if !ok {
		return nil, false
	}
	return &TransferIntent{
		To:         raw.To,
		Amount:     amount,
		Currency:   currency,
		Network:    network,
		Transcript: utterance,
	}, true
}

func swapFromRaw(raw rawSwap, utterance string) (*SwapIntent, bool) {
	if raw.Amount == "" {
		return nil, false
	}
	amount, err := decimal.NewFromString(raw.Amount.String())
	if err != nil || !amount.IsPositive() {
		return nil, false
	}
	from, ok := ParseCurrency(raw.FromCurrency)
	if !ok {
		return nil, false
	}
	to, ok := ParseCurrency(raw.ToCurrency)
	if !ok {
		return nil, false
	}
	network, ok := ParseNetwork(raw.Network)
	if !ok {
		return nil, false
	}
	return &SwapIntent{
		Amount:       amount,
		FromCurrency: from,
		ToCurrency:   to,
		Network:      network,
		Transcript:   utterance,
	}, true
}
