package custody

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a scriptable in-memory Provider for tests. Wallets are
// keyed by network; each records the requests made against it and serves
// scripted receipts in FIFO order.
type MockProvider struct {
	mu        sync.Mutex
	wallets   map[string]*MockWallet
	ImportErr error
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{wallets: make(map[string]*MockWallet)}
}

// WalletFor returns (creating if needed) the mock wallet for a network so
// tests can script it before the code under test imports it.
func (p *MockProvider) WalletFor(network string) *MockWallet {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.wallets[network]
	if !ok {
		w = &MockWallet{
			id:      "mock-wallet-" + network,
			Address: "0xaddr-" + network,
		}
		p.wallets[network] = w
	}
	return w
}

// ImportWallet implements Provider.
func (p *MockProvider) ImportWallet(_ context.Context, _ []byte, network string) (Wallet, error) {
	if p.ImportErr != nil {
		return nil, p.ImportErr
	}
	return p.WalletFor(network), nil
}

// MockWallet is a scriptable Wallet.
type MockWallet struct {
	mu sync.Mutex

	id      string
	Address string

	AddressErr  error
	TransferErr error
	TradeErr    error

	// Scripted receipts, consumed FIFO. A nil receipt makes Wait block
	// until the context expires, simulating a hung settlement.
	transferReceipts []*Receipt
	tradeReceipts    []*Receipt

	Transfers []TransferRequest
	Trades    []TradeRequest
}

// ScriptTransferReceipt queues the receipt returned by the next transfer's
// Wait. Pass nil to simulate a settlement that never completes.
func (w *MockWallet) ScriptTransferReceipt(r *Receipt) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transferReceipts = append(w.transferReceipts, r)
}

// ScriptTradeReceipt queues the receipt returned by the next trade's Wait.
func (w *MockWallet) ScriptTradeReceipt(r *Receipt) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tradeReceipts = append(w.tradeReceipts, r)
}

func (w *MockWallet) ID() string { return w.id }

func (w *MockWallet) DefaultAddress(_ context.Context) (string, error) {
	if w.AddressErr != nil {
		return "", w.AddressErr
	}
	return w.Address, nil
}

func (w *MockWallet) CreateTransfer(_ context.Context, req TransferRequest) (Pending, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.TransferErr != nil {
		return nil, w.TransferErr
	}
	w.Transfers = append(w.Transfers, req)

	var receipt *Receipt
	if len(w.transferReceipts) > 0 {
		receipt = w.transferReceipts[0]
		w.transferReceipts = w.transferReceipts[1:]
	}
	return &mockPending{id: fmt.Sprintf("%s-transfer-%d", w.id, len(w.Transfers)), receipt: receipt}, nil
}

func (w *MockWallet) CreateTrade(_ context.Context, req TradeRequest) (Pending, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.TradeErr != nil {
		return nil, w.TradeErr
	}
	w.Trades = append(w.Trades, req)

	var receipt *Receipt
	if len(w.tradeReceipts) > 0 {
		receipt = w.tradeReceipts[0]
		w.tradeReceipts = w.tradeReceipts[1:]
	}
	return &mockPending{id: fmt.Sprintf("%s-trade-%d", w.id, len(w.Trades)), receipt: receipt}, nil
}

type mockPending struct {
	id      string
	receipt *Receipt
}

func (p *mockPending) ID() string { return p.id }

func (p *mockPending) Wait(ctx context.Context) (*Receipt, error) {
	if p.receipt == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.receipt, nil
}
