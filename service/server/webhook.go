package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/saypay/service/db"
	"github.com/brojonat/saypay/service/engine"
	"github.com/brojonat/saypay/service/events"
	"github.com/brojonat/saypay/service/intent"
	"github.com/brojonat/saypay/service/metrics"
	"github.com/brojonat/saypay/service/transcript"
)

const maxWebhookBodySize = 1 << 20 // 1MB - far beyond any transcript payload

// webhookPayload is the body the transcription device posts after each memory.
type webhookPayload struct {
	TranscriptSegments []struct {
		Text string `json:"text"`
	} `json:"transcript_segments"`
}

// handleWebhookLiveness returns the handler the device uses to probe the
// endpoint. GET /memory
func handleWebhookLiveness() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Worked"))
	})
}

// handleWebhook returns the transcript ingestion handler.
// POST /memory?uid={device_uid}
//
// The full pipeline runs inside the request: segment the transcript, extract
// intents, execute them sequentially, and publish ledger events. Per-item
// failures are logged and recorded in the ledger; only request-level problems
// (missing uid, malformed body, unknown device) produce an error response.
func handleWebhook(store Store, extractor intent.Extractor, eng *engine.Engine, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		outcome := "error"
		defer func() {
			if m != nil {
				m.RecordWebhookReceived(outcome, time.Since(start).Seconds())
			}
		}()

		uid := r.URL.Query().Get("uid")
		if uid == "" {
			writeWebhookError(w, "User ID (uid) is required.")
			return
		}

		var payload webhookPayload
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			logger.Debug("malformed webhook payload", "device_uid", uid, "error", err)
			writeWebhookError(w, "invalid payload")
			return
		}

		// The device splits speech into segments; commands can span them, so
		// segmentation runs over the joined, lower-cased text.
		parts := make([]string, 0, len(payload.TranscriptSegments))
		for _, seg := range payload.TranscriptSegments {
			parts = append(parts, seg.Text)
		}
		text := strings.ToLower(strings.Join(parts, " "))

		transferUtterances := transcript.Segment(text, transcript.TransferStartPhrases, transcript.TransferEndPhrases)
		swapUtterances := transcript.Segment(text, transcript.SwapStartPhrases, transcript.SwapEndPhrases)
		if m != nil {
			m.RecordUtterancesSegmented("transfer", len(transferUtterances))
			m.RecordUtterancesSegmented("swap", len(swapUtterances))
		}

		// Transcripts without trigger phrases are the common case; ack without
		// touching the directory or the model.
		if len(transferUtterances) == 0 && len(swapUtterances) == 0 {
			outcome = "empty"
			w.WriteHeader(http.StatusNoContent)
			return
		}

		ctx := r.Context()

		sender, err := store.FindUserByDeviceID(ctx, uid)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				logger.Info("webhook from unregistered device", "device_uid", uid)
				writeWebhookError(w, "no user registered for this device")
				return
			}
			logger.Error("failed to resolve sender", "device_uid", uid, "error", err)
			writeWebhookError(w, "failed to resolve sender")
			return
		}

		usernames, err := store.ListUsernames(ctx)
		if err != nil {
			logger.Error("failed to list usernames", "error", err)
			writeWebhookError(w, "failed to load directory")
			return
		}

		transfers := collectTransfers(intent.ExtractTransfers(ctx, extractor, transferUtterances, usernames, m), logger)
		swaps := collectSwaps(intent.ExtractSwaps(ctx, extractor, swapUtterances, m), logger)

		outcomes := eng.Run(ctx, uid, sender, transfers, swaps)
		publishOutcomes(ctx, publisher, outcomes, logger)

		for _, out := range outcomes {
			logger.Info("intent executed",
				"device_uid", uid,
				"kind", out.Kind,
				"state", out.State,
				"reason", out.Reason,
			)
		}

		outcome = "success"
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Success!"))
	})
}

// collectTransfers filters fan-out results down to executable intents.
// Extraction failures and dropped utterances are logged and discarded.
func collectTransfers(results []intent.TransferResult, logger *slog.Logger) []*intent.TransferIntent {
	var intents []*intent.TransferIntent
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("transfer extraction failed", "utterance", r.Utterance, "error", r.Err)
			continue
		}
		if r.Intent == nil {
			logger.Debug("transfer utterance dropped", "utterance", r.Utterance)
			continue
		}
		intents = append(intents, r.Intent)
	}
	return intents
}

func collectSwaps(results []intent.SwapResult, logger *slog.Logger) []*intent.SwapIntent {
	var intents []*intent.SwapIntent
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("swap extraction failed", "utterance", r.Utterance, "error", r.Err)
			continue
		}
		if r.Intent == nil {
			logger.Debug("swap utterance dropped", "utterance", r.Utterance)
			continue
		}
		intents = append(intents, r.Intent)
	}
	return intents
}

// publishOutcomes sends ledger events for settled rows. Publishing is
// best-effort: the ledger is the source of truth.
func publishOutcomes(ctx context.Context, publisher events.Publisher, outcomes []engine.Outcome, logger *slog.Logger) {
	if publisher == nil {
		return
	}
	for _, out := range outcomes {
		if out.State != engine.StateSettled {
			continue
		}
		var event *events.LedgerEvent
		switch {
		case out.Transaction != nil:
			event = events.FromTransaction(out.Transaction)
		case out.Trade != nil:
			event = events.FromTrade(out.Trade)
		default:
			continue
		}
		if err := publisher.PublishLedgerEvent(ctx, event); err != nil {
			logger.Error("failed to publish ledger event", "kind", out.Kind, "error", err)
		}
	}
}

// writeWebhookError writes the plain-text error contract the device expects.
func writeWebhookError(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, "Webhook error: %s", msg)
}
