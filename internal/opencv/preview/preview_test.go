package preview

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsQuitKey(t *testing.T) {
	tests := []struct {
		name string
		key  int
		want bool
	}{
		{"no key", -1, false},
		{"q", 'q', true},
		{"esc", 27, true},
		{"other", 'x', false},
		{"q with modifier bits", 0x100000 | 'q', true},
		{"upper case Q", 'Q', false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isQuitKey(tt.key))
		})
	}
}
