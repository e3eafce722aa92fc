package intent

import (
	"context"
	"testing"

	"github.com/brojonat/saypay/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferFromRaw(t *testing.T) {
	tests := []struct {
		name string
		raw  rawTransfer
		ok   bool
	}{
		{"valid", rawTransfer{To: "bob", Amount: "5", Currency: "USDC", Network: "base"}, true},
		{"missing recipient", rawTransfer{Amount: "5", Currency: "USDC", Network: "base"}, false},
		{"missing amount", rawTransfer{To: "bob", Currency: "USDC", Network: "base"}, false},
		{"zero amount", rawTransfer{To: "bob", Amount: "0", Currency: "USDC", Network: "base"}, false},
		{"negative amount", rawTransfer{To: "bob", Amount: "-3", Currency: "USDC", Network: "base"}, false},
		{"non-numeric amount", rawTransfer{To: "bob", Amount: "five", Currency: "USDC", Network: "base"}, false},
		{"unknown currency", rawTransfer{To: "bob", Amount: "5", Currency: "DOGE", Network: "base"}, false},
		{"unknown network", rawTransfer{To: "bob", Amount: "5", Currency: "USDC", Network: "solana"}, false},
		{"decimal amount", rawTransfer{To: "bob", Amount: "0.25", Currency: "ETH", Network: "arbitrum"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := transferFromRaw(tt.raw, "Send Five Dollars To Bob")
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				require.NotNil(t, in)
				assert.Equal(t, "Send Five Dollars To Bob", in.Transcript)
				assert.True(t, in.Amount.IsPositive())
			} else {
				assert.Nil(t, in)
			}
		})
	}
}

func TestSwapFromRaw(t *testing.T) {
	valid := rawSwap{Amount: "10", FromCurrency: "USDC", ToCurrency: "ETH", Network: "base"}

	in, ok := swapFromRaw(valid, "Swap Ten Dollars To Eth")
	require.True(t, ok)
	assert.Equal(t, CurrencyUSDC, in.FromCurrency)
	assert.Equal(t, CurrencyETH, in.ToCurrency)
	assert.True(t, decimal.NewFromInt(10).Equal(in.Amount))

	// Non-base networks still parse; the policy restriction is the engine's.
	polygon := valid
	polygon.Network = "polygon"
	in, ok = swapFromRaw(polygon, "x")
	require.True(t, ok)
	assert.Equal(t, NetworkPolygon, in.Network)

	missing := rawSwap{Amount: "10", FromCurrency: "USDC", Network: "base"}
	_, ok = swapFromRaw(missing, "x")
	assert.False(t, ok)
}

func TestCurrencyAssetID(t *testing.T) {
	assert.Equal(t, "usdc", CurrencyUSDC.AssetID())
	assert.Equal(t, "eth", CurrencyETH.AssetID())
}

func TestExtractTransfersIsolatesFailures(t *testing.T) {
	ex := NewMockExtractor()
	ex.ScriptTransfer("one", &TransferIntent{To: "alice", Amount: decimal.NewFromInt(5), Currency: CurrencyUSDC, Network: NetworkBase, Transcript: "one"}, nil)
	ex.ScriptTransfer("two", nil, &ExtractionError{Reason: "no intent detected"})
	ex.ScriptTransfer("three", &TransferIntent{To: "bob", Amount: decimal.NewFromInt(1), Currency: CurrencyETH, Network: NetworkBase, Transcript: "three"}, nil)

	results := ExtractTransfers(context.Background(), ex, []string{"one", "two", "three"}, []string{"alice", "bob"}, nil)
	require.Len(t, results, 3)

	assert.NotNil(t, results[0].Intent)
	assert.NoError(t, results[0].Err)

	assert.Nil(t, results[1].Intent)
	assert.Error(t, results[1].Err)

	// The failure in "two" must not cancel "three".
	assert.NotNil(t, results[2].Intent)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "bob", results[2].Intent.To)
}

func TestExtractSwapsPreservesOrder(t *testing.T) {
	ex := NewMockExtractor()
	ex.ScriptSwap("a", &SwapIntent{Amount: decimal.NewFromInt(1), FromCurrency: CurrencyUSDC, ToCurrency: CurrencyETH, Network: NetworkBase, Transcript: "a"}, nil)
	ex.ScriptSwap("b", &SwapIntent{Amount: decimal.NewFromInt(2), FromCurrency: CurrencyETH, ToCurrency: CurrencyUSDC, Network: NetworkBase, Transcript: "b"}, nil)

	results := ExtractSwaps(context.Background(), ex, []string{"a", "b"}, nil)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Utterance)
	assert.Equal(t, "b", results[1].Utterance)
}

func TestExtractTransfersRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	ex := NewMockExtractor()
	ex.ScriptTransfer("one", &TransferIntent{To: "alice", Amount: decimal.NewFromInt(5), Currency: CurrencyUSDC, Network: NetworkBase, Transcript: "one"}, nil)
	ex.ScriptTransfer("two", nil, &ExtractionError{Reason: "no intent detected"})
	ex.ScriptTransfer("three", nil, nil)

	ExtractTransfers(context.Background(), ex, []string{"one", "two", "three"}, []string{"alice"}, m)

	// One attempt per utterance: ok, error, and dropped each get a series.
	count, err := testutil.GatherAndCount(reg, "intent_extractions_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = testutil.GatherAndCount(reg, "intent_extraction_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
