package contextutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{
			name:     "empty secret",
			secret:   "",
			expected: "[EMPTY]",
		},
		{
			name:     "short secret (4 chars)",
			secret:   "abcd",
			expected: "****",
		},
		{
			name:     "short secret (8 chars)",
			secret:   "abcdefgh",
			expected: "********",
		},
		{
			name:     "medium secret (12 chars)",
			secret:   "abcdefghijkl",
			expected: "abcd****ijkl",
		},
		{
			name:     "long secret (20 chars)",
			secret:   "abcdefghijklmnopqrst",
			expected: "abcd************qrst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskSecret(tt.secret))
		})
	}
}
