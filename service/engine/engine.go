// Package engine executes validated intents against the custody provider and
// records every attempt in the ledger. Execution is strictly sequential:
// settlement calls are ordering-sensitive at the wallet layer and ledger rows
// must land in transcript order.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/saypay/service/custody"
	"github.com/brojonat/saypay/service/db"
	"github.com/brojonat/saypay/service/intent"
	"github.com/brojonat/saypay/service/metrics"
)

// State is the terminal state of one intent.
type State string

const (
	StateSettled State = "settled"
	StateFailed  State = "failed"
	StateSkipped State = "skipped"
)

// Failure and skip reasons recorded on outcomes and ledger rows.
const (
	ReasonTransferFailed   = "Transaction failed."
	ReasonTradeFailed      = "Trade failed."
	ReasonTimedOut         = "timed_out"
	ReasonDuplicate        = "duplicate delivery"
	ReasonUnsupportedSwap  = "swap network not supported"
	ReasonRecipientUnknown = "recipient not found"
)

// Store is the subset of db.Store the engine needs.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*db.User, error)
	CreateTransaction(ctx context.Context, params db.CreateTransactionParams) (*db.Transaction, error)
	CreateTrade(ctx context.Context, params db.CreateTradeParams) (*db.Trade, error)
	GetTransactionByDedupKey(ctx context.Context, dedupKey string) (*db.Transaction, error)
	GetTradeByDedupKey(ctx context.Context, dedupKey string) (*db.Trade, error)
}

// Outcome is the per-intent result of an execution pass.
type Outcome struct {
	Kind       string // "transfer" or "swap"
	Transcript string
	State      State
	Reason     string
	Err        error

	// Ledger rows written for this intent, when any.
	Transaction *db.Transaction
	Trade       *db.Trade
}

// Engine drives intent execution.
type Engine struct {
	store             Store
	provider          custody.Provider
	settlementTimeout time.Duration
	logger            *slog.Logger
	metrics           *metrics.Metrics
}

// New creates an Engine. The settlement timeout bounds every Wait call; on
// expiry the intent fails with a timed-out reason instead of hanging the
// request. If m is nil, no metrics are recorded.
func New(store Store, provider custody.Provider, settlementTimeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		store:             store,
		provider:          provider,
		settlementTimeout: settlementTimeout,
		logger:            logger,
		metrics:           m,
	}
}

// Run executes transfers then swaps, sequentially, on behalf of the sender.
// Each intent settles (or fails) independently; a failure never aborts the
// remaining queue. Outcomes preserve execution order.
func (e *Engine) Run(ctx context.Context, deviceUID string, sender *db.User, transfers []*intent.TransferIntent, swaps []*intent.SwapIntent) []Outcome {
	outcomes := make([]Outcome, 0, len(transfers)+len(swaps))
	for _, in := range transfers {
		outcomes = append(outcomes, e.executeTransfer(ctx, deviceUID, sender, in))
	}
	for _, in := range swaps {
		outcomes = append(outcomes, e.executeSwap(ctx, deviceUID, sender, in))
	}
	return outcomes
}

func (e *Engine) executeTransfer(ctx context.Context, deviceUID string, sender *db.User, in *intent.TransferIntent) Outcome {
	out := Outcome{Kind: "transfer", Transcript: in.Transcript}
	dedupKey := DedupKey(deviceUID, in.Transcript, "transfer")

	// Replay protection: an already-settled row for this utterance means the
	// device redelivered the webhook. Skip without side effects.
	if _, err := e.store.GetTransactionByDedupKey(ctx, dedupKey); err == nil {
		e.logger.InfoContext(ctx, "skipping duplicate transfer", "device_uid", deviceUID, "dedup_key", dedupKey)
		return e.finish(out, StateSkipped, ReasonDuplicate, nil)
	} else if !errors.Is(err, db.ErrNotFound) {
		return e.finish(out, StateFailed, "ledger lookup failed", err)
	}

	receipt, execErr := e.settleTransfer(ctx, sender, in)

	params := db.CreateTransactionParams{
		DeviceUID:    deviceUID,
		FromUsername: sender.Username,
		ToUsername:   in.To,
		Amount:       in.Amount,
		Currency:     string(in.Currency),
		Network:      string(in.Network),
		Transcript:   in.Transcript,
		DedupKey:     dedupKey,
	}

	if execErr != nil {
		reason := failureReason(execErr, ReasonTransferFailed)
		params.Status = db.StatusFailed
		params.FailureReason = &reason

		row, insertErr := e.store.CreateTransaction(ctx, params)
		if insertErr != nil {
			e.logger.ErrorContext(ctx, "failed to record failed transfer", "device_uid", deviceUID, "error", insertErr)
		}
		out.Transaction = row
		return e.finish(out, StateFailed, reason, execErr)
	}

	params.Status = db.StatusSettled
	params.TxID = &receipt.TxHash

	row, insertErr := e.store.CreateTransaction(ctx, params)
	if insertErr != nil {
		// Settlement already happened; the ledger gap is logged and surfaced
		// on the outcome but does not fail the request.
		e.logger.ErrorContext(ctx, "settled transfer not recorded",
			"device_uid", deviceUID,
			"txid", receipt.TxHash,
			"error", insertErr,
		)
		out.Err = insertErr
	}
	out.Transaction = row
	return e.finish(out, StateSettled, "", out.Err)
}

// settleTransfer resolves wallets, creates the transfer, and waits for a
// terminal settlement status.
func (e *Engine) settleTransfer(ctx context.Context, sender *db.User, in *intent.TransferIntent) (*custody.Receipt, error) {
	network := string(in.Network)

	cred, ok := sender.WalletFor(network)
	if !ok {
		return nil, fmt.Errorf("sender %s has no %s wallet", sender.Username, network)
	}
	senderWallet, err := e.provider.ImportWallet(ctx, cred, network)
	if err != nil {
		return nil, fmt.Errorf("import sender wallet: %w", err)
	}

	destination, err := e.resolveRecipientAddress(ctx, in.To, network)
	if err != nil {
		return nil, err
	}

	// Gasless transfers are only available for USDC on base.
	gasless := in.Currency == intent.CurrencyUSDC && in.Network == intent.NetworkBase

	pending, err := senderWallet.CreateTransfer(ctx, custody.TransferRequest{
		Amount:      in.Amount,
		AssetID:     in.Currency.AssetID(),
		Destination: destination,
		Gasless:     gasless,
	})
	if err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}

	receipt, err := e.wait(ctx, pending)
	if err != nil {
		return nil, err
	}
	if receipt.Status != custody.StatusComplete {
		return nil, fmt.Errorf("%s (status %s)", ReasonTransferFailed, receipt.Status)
	}

	e.logger.InfoContext(ctx, "transfer settled",
		"from", sender.Username,
		"to", in.To,
		"amount", in.Amount.String(),
		"currency", in.Currency,
		"network", network,
		"txid", receipt.TxHash,
	)
	return receipt, nil
}

func (e *Engine) executeSwap(ctx context.Context, deviceUID string, sender *db.User, in *intent.SwapIntent) Outcome {
	out := Outcome{Kind: "swap", Transcript: in.Transcript}

	// Policy restriction: swaps execute on base only. Other networks are
	// skipped silently, not failed.
	if in.Network != intent.NetworkBase {
		e.logger.DebugContext(ctx, "skipping swap on unsupported network", "network", in.Network)
		return e.finish(out, StateSkipped, ReasonUnsupportedSwap, nil)
	}

	dedupKey := DedupKey(deviceUID, in.Transcript, "swap")
	if _, err := e.store.GetTradeByDedupKey(ctx, dedupKey); err == nil {
		e.logger.InfoContext(ctx, "skipping duplicate swap", "device_uid", deviceUID, "dedup_key", dedupKey)
		return e.finish(out, StateSkipped, ReasonDuplicate, nil)
	} else if !errors.Is(err, db.ErrNotFound) {
		return e.finish(out, StateFailed, "ledger lookup failed", err)
	}

	receipt, execErr := e.settleSwap(ctx, sender, in)

	params := db.CreateTradeParams{
		DeviceUID:     deviceUID,
		AmountDeposit: in.Amount,
		FromCurrency:  string(in.FromCurrency),
		ToCurrency:    string(in.ToCurrency),
		Network:       string(in.Network),
		Transcript:    in.Transcript,
		DedupKey:      dedupKey,
	}

	if execErr != nil {
		reason := failureReason(execErr, ReasonTradeFailed)
		params.Status = db.StatusFailed
		params.FailureReason = &reason

		row, insertErr := e.store.CreateTrade(ctx, params)
		if insertErr != nil {
			e.logger.ErrorContext(ctx, "failed to record failed swap", "device_uid", deviceUID, "error", insertErr)
		}
		out.Trade = row
		return e.finish(out, StateFailed, reason, execErr)
	}

	params.Status = db.StatusSettled
	params.TxID = &receipt.TxHash
	params.AmountReceive = &receipt.ToAmount

	row, insertErr := e.store.CreateTrade(ctx, params)
	if insertErr != nil {
		e.logger.ErrorContext(ctx, "settled swap not recorded",
			"device_uid", deviceUID,
			"txid", receipt.TxHash,
			"error", insertErr,
		)
		out.Err = insertErr
	}
	out.Trade = row
	return e.finish(out, StateSettled, "", out.Err)
}

func (e *Engine) settleSwap(ctx context.Context, sender *db.User, in *intent.SwapIntent) (*custody.Receipt, error) {
	network := string(in.Network)

	cred, ok := sender.WalletFor(network)
	if !ok {
		return nil, fmt.Errorf("sender %s has no %s wallet", sender.Username, network)
	}
	wallet, err := e.provider.ImportWallet(ctx, cred, network)
	if err != nil {
		return nil, fmt.Errorf("import sender wallet: %w", err)
	}

	pending, err := wallet.CreateTrade(ctx, custody.TradeRequest{
		Amount:      in.Amount,
		FromAssetID: in.FromCurrency.AssetID(),
		ToAssetID:   in.ToCurrency.AssetID(),
	})
	if err != nil {
		return nil, fmt.Errorf("create trade: %w", err)
	}

	receipt, err := e.wait(ctx, pending)
	if err != nil {
		return nil, err
	}
	if receipt.Status != custody.StatusComplete {
		return nil, fmt.Errorf("%s (status %s)", ReasonTradeFailed, receipt.Status)
	}

	e.logger.InfoContext(ctx, "swap settled",
		"from", sender.Username,
		"amount", in.Amount.String(),
		"from_currency", in.FromCurrency,
		"to_currency", in.ToCurrency,
		"received", receipt.ToAmount.String(),
		"txid", receipt.TxHash,
	)
	return receipt, nil
}

// resolveRecipientAddress looks up the recipient user and derives the
// externally-facing address of their wallet on the given network.
func (e *Engine) resolveRecipientAddress(ctx context.Context, username, network string) (string, error) {
	recipient, err := e.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", fmt.Errorf("%s: %s", ReasonRecipientUnknown, username)
		}
		return "", fmt.Errorf("look up recipient %s: %w", username, err)
	}

	cred, ok := recipient.WalletFor(network)
	if !ok {
		return "", fmt.Errorf("recipient %s has no %s wallet", username, network)
	}

	wallet, err := e.provider.ImportWallet(ctx, cred, network)
	if err != nil {
		return "", fmt.Errorf("import recipient wallet: %w", err)
	}

	address, err := wallet.DefaultAddress(ctx)
	if err != nil {
		return "", fmt.Errorf("recipient default address: %w", err)
	}
	return address, nil
}

// wait blocks on the pending operation with the configured settlement bound.
func (e *Engine) wait(ctx context.Context, pending custody.Pending) (*custody.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.settlementTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := pending.Wait(waitCtx)
	if e.metrics != nil {
		e.metrics.RecordSettlementWait(time.Since(start).Seconds())
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: settlement not terminal after %v", ReasonTimedOut, e.settlementTimeout)
		}
		return nil, fmt.Errorf("wait for settlement: %w", err)
	}
	return receipt, nil
}

// finish stamps the outcome and records metrics.
func (e *Engine) finish(out Outcome, state State, reason string, err error) Outcome {
	out.State = state
	out.Reason = reason
	if out.Err == nil {
		out.Err = err
	}
	if e.metrics != nil {
		e.metrics.RecordIntentExecuted(out.Kind, string(state))
	}
	return out
}

// failureReason extracts a stable reason string for ledger rows: the timeout
// or unknown-recipient markers when present, otherwise the given default.
func failureReason(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, ReasonTimedOut):
		return ReasonTimedOut
	case strings.HasPrefix(msg, ReasonRecipientUnknown):
		return ReasonRecipientUnknown
	}
	return fallback
}

// DedupKey derives the replay-protection key for one utterance: the device,
// the exact utterance text, and the command kind.
func DedupKey(deviceUID, transcript, kind string) string {
	sum := sha256.Sum256([]byte(deviceUID + "|" + transcript + "|" + kind))
	return hex.EncodeToString(sum[:])
}
