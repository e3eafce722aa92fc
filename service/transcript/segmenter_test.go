package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegment(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		start    []string
		end      []string
		expected []string
	}{
		{
			name:     "single transfer command",
			text:     "please start transaction send five dollars to bob end transaction done",
			start:    TransferStartPhrases,
			end:      TransferEndPhrases,
			expected: []string{"Send five dollars to bob"},
		},
		{
			name:     "unterminated command is dropped",
			text:     "start transaction send to bob",
			start:    TransferStartPhrases,
			end:      TransferEndPhrases,
			expected: nil,
		},
		{
			name:  "multiple commands in one transcript",
			text:  "start transaction send 5 dollars to alice end transaction then start transaction send 2 eth to bob end transaction",
			start: TransferStartPhrases,
			end:   TransferEndPhrases,
			expected: []string{
				"Send 5 dollars to alice",
				"Send 2 eth to bob",
			},
		},
		{
			name:     "punctuated trigger leaks a leading period",
			text:     "start transaction. send 5 dollars to alice end transaction.",
			start:    TransferStartPhrases,
			end:      TransferEndPhrases,
			expected: []string{"Send 5 dollars to alice"},
		},
		{
			name:     "no triggers yields nothing",
			text:     "just chatting about the weather",
			start:    TransferStartPhrases,
			end:      TransferEndPhrases,
			expected: nil,
		},
		{
			name:     "empty input",
			text:     "",
			start:    TransferStartPhrases,
			end:      TransferEndPhrases,
			expected: nil,
		},
		{
			name:     "swap vocabulary does not match transfer triggers",
			text:     "start transaction send 5 dollars to alice end transaction",
			start:    SwapStartPhrases,
			end:      SwapEndPhrases,
			expected: nil,
		},
		{
			name:     "swap command",
			text:     "ok start swap swap ten dollars to eth on base end swap thanks",
			start:    SwapStartPhrases,
			end:      SwapEndPhrases,
			expected: []string{"Swap ten dollars to eth on base"},
		},
		{
			name:     "lazy match stops at nearest end trigger",
			text:     "start transaction a end transaction b end transaction",
			start:    TransferStartPhrases,
			end:      TransferEndPhrases,
			expected: []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Segment(tt.text, tt.start, tt.end)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"sentence starts capitalized", "send 5. then confirm", "Send 5. Then confirm"},
		{"interior words keep their case", "send five dollars to bob", "Send five dollars to bob"},
		{"leading period stripped", ". send five dollars", "Send five dollars"},
		{"exclamation and question marks", "wait! really? yes", "Wait! Really? Yes"},
		{"whitespace trimmed", "  hello there  ", "Hello there"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Send 5. Then confirm",
		"send 5 dollars to bob",
		"Wait! Really? Yes",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
}
