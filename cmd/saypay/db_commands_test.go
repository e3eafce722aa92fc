package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyJQFilters(t *testing.T) {
	rows := []map[string]interface{}{
		{"status": "settled", "amount": "5.25", "network": "base"},
		{"status": "failed", "amount": "1", "network": "ethereum"},
		{"status": "settled", "amount": "10", "network": "base"},
	}

	tests := []struct {
		name      string
		filters   []string
		wantCount int
		expectErr bool
	}{
		{
			name:      "no filters keeps everything",
			filters:   nil,
			wantCount: 3,
		},
		{
			name:      "status filter",
			filters:   []string{`.status == "settled"`},
			wantCount: 2,
		},
		{
			name:      "multiple filters are conjunctive",
			filters:   []string{`.status == "settled"`, `.network == "base"`},
			wantCount: 2,
		},
		{
			name:      "no matches",
			filters:   []string{`.network == "polygon"`},
			wantCount: 0,
		},
		{
			name:      "non-boolean truthy result keeps row",
			filters:   []string{`.amount`},
			wantCount: 3,
		},
		{
			name:      "invalid filter",
			filters:   []string{`.status ==`},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyJQFilters(rows, tt.filters)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantCount)
		})
	}
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy("settled"))
	assert.True(t, isTruthy(0)) // jq semantics: numbers are truthy
}

func TestFormatOptional(t *testing.T) {
	s := "0xabc"
	assert.Equal(t, "0xabc", formatOptional(&s))
	assert.Equal(t, "-", formatOptional((*string)(nil)))
	assert.Equal(t, "-", formatOptional(nil))
	assert.Equal(t, "plain", formatOptional("plain"))
}
