package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		size, alignment uint32
		want            uint32
	}{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{48, 64, 64},
		{100, 256, 256},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AlignUp(tt.size, tt.alignment), "AlignUp(%d, %d)", tt.size, tt.alignment)
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	assert.True(t, IsPowerOfTwo(uint32(1)))
	assert.True(t, IsPowerOfTwo(uint32(256)))
	assert.False(t, IsPowerOfTwo(uint32(0)))
	assert.False(t, IsPowerOfTwo(uint32(48)))
}
