// Package custody wraps the external wallet/settlement provider. The core
// never talks to a chain directly: wallets are imported from stored
// credentials and transfers/trades are created and awaited through the
// provider's API.
package custody

import (
	"context"

	"github.com/shopspring/decimal"
)

// Status is a settlement status reported by the provider.
type Status string

const (
	StatusPending   Status = "pending"
	StatusBroadcast Status = "broadcast"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TransferRequest describes a transfer to create on a wallet.
type TransferRequest struct {
	Amount      decimal.Decimal
	AssetID     string
	Destination string
	Gasless     bool
}

// TradeRequest describes an on-wallet asset swap.
type TradeRequest struct {
	Amount      decimal.Decimal
	FromAssetID string
	ToAssetID   string
}

// Receipt is the terminal state of a transfer or trade.
type Receipt struct {
	Status Status
	ID     string
	TxHash string
	// ToAmount is the received amount for trades; zero for transfers.
	ToAmount decimal.Decimal
}

// Pending is a created transfer or trade that has not yet settled.
type Pending interface {
	// ID returns the provider-side identifier of the operation.
	ID() string

	// Wait blocks until the operation reaches a terminal status or the
	// context is done. Callers bound the wait with a context deadline.
	Wait(ctx context.Context) (*Receipt, error)
}

// Wallet is an imported wallet scoped to one network.
type Wallet interface {
	// ID returns the provider-side wallet identifier.
	ID() string

	// DefaultAddress returns the wallet's externally-facing address.
	DefaultAddress(ctx context.Context) (string, error)

	// CreateTransfer submits a transfer from this wallet.
	CreateTransfer(ctx context.Context, req TransferRequest) (Pending, error)

	// CreateTrade submits an asset swap on this wallet.
	CreateTrade(ctx context.Context, req TradeRequest) (Pending, error)
}

// Provider imports wallets from stored credentials. Implementations are safe
// for concurrent use.
type Provider interface {
	ImportWallet(ctx context.Context, credential []byte, network string) (Wallet, error)
}
