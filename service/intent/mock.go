package intent

import (
	"context"
	"sync"
)

// MockExtractor is a scriptable Extractor for tests. Responses are keyed by
// utterance text; unscripted utterances yield a dropped (nil) intent.
type MockExtractor struct {
	mu        sync.Mutex
	transfers map[string]TransferResult
	swaps     map[string]SwapResult
	calls     []string
}

// NewMockExtractor creates an empty mock.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		transfers: make(map[string]TransferResult),
		swaps:     make(map[string]SwapResult),
	}
}

// ScriptTransfer registers the outcome for a transfer utterance.
func (m *MockExtractor) ScriptTransfer(utterance string, in *TransferIntent, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[utterance] = TransferResult{Utterance: utterance, Intent: in, Err: err}
}

// ScriptSwap registers the outcome for a swap utterance.
func (m *MockExtractor) ScriptSwap(utterance string, in *SwapIntent, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swaps[utterance] = SwapResult{Utterance: utterance, Intent: in, Err: err}
}

// Calls returns the utterances the mock has been asked to extract.
func (m *MockExtractor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// ExtractTransfer implements Extractor.
func (m *MockExtractor) ExtractTransfer(_ context.Context, utterance string, _ []string) (*TransferIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, utterance)
	r := m.transfers[utterance]
	return r.Intent, r.Err
}

// ExtractSwap implements Extractor.
func (m *MockExtractor) ExtractSwap(_ context.Context, utterance string) (*SwapIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, utterance)
	r := m.swaps[utterance]
	return r.Intent, r.Err
}
