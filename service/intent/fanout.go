package intent

import (
	"context"
	"time"

	"github.com/brojonat/saypay/service/metrics"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentExtractions bounds the fan-out so a long transcript cannot
// open an unbounded number of upstream calls.
const maxConcurrentExtractions = 8

// TransferResult is the per-utterance outcome of transfer extraction.
// Intent is nil when the utterance was incomplete and dropped; Err is set
// when the extraction capability failed for this utterance.
type TransferResult struct {
	Utterance string
	Intent    *TransferIntent
	Err       error
}

// SwapResult is the per-utterance outcome of swap extraction.
type SwapResult struct {
	Utterance string
	Intent    *SwapIntent
	Err       error
}

// ExtractTransfers runs transfer extraction for every utterance concurrently.
// Failures are isolated per item: one failed extraction never cancels or
// hides its siblings. Results preserve utterance order. If m is nil, no
// metrics are recorded.
func ExtractTransfers(ctx context.Context, ex Extractor, utterances []string, knownUsernames []string, m *metrics.Metrics) []TransferResult {
	results := make([]TransferResult, len(utterances))

	var g errgroup.Group
	g.SetLimit(maxConcurrentExtractions)
	for i, u := range utterances {
		g.Go(func() error {
			start := time.Now()
			in, err := ex.ExtractTransfer(ctx, u, knownUsernames)
			if m != nil {
				m.RecordExtraction("transfer", extractionStatus(in == nil, err), time.Since(start).Seconds())
			}
			results[i] = TransferResult{Utterance: u, Intent: in, Err: err}
			return nil
		})
	}
	g.Wait()

	return results
}

// ExtractSwaps runs swap extraction for every utterance concurrently with the
// same per-item isolation as ExtractTransfers.
func ExtractSwaps(ctx context.Context, ex Extractor, utterances []string, m *metrics.Metrics) []SwapResult {
	results := make([]SwapResult, len(utterances))

	var g errgroup.Group
	g.SetLimit(maxConcurrentExtractions)
	for i, u := range utterances {
		g.Go(func() error {
			start := time.Now()
			in, err := ex.ExtractSwap(ctx, u)
			if m != nil {
				m.RecordExtraction("swap", extractionStatus(in == nil, err), time.Since(start).Seconds())
			}
			results[i] = SwapResult{Utterance: u, Intent: in, Err: err}
			return nil
		})
	}
	g.Wait()

	return results
}

func extractionStatus(dropped bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case dropped:
		return "dropped"
	default:
		return "ok"
	}
}
