package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRingRejectsEmpty(t *testing.T) {
	_, err := NewRing[int](0)
	assert.Error(t, err)
}

func TestRingAdvanceWraps(t *testing.T) {
	r, err := NewRing[int](3)
	require.NoError(t, err)

	visited := []int{r.Index()}
	for i := 0; i < 4; i++ {
		visited = append(visited, r.Advance())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1}, visited)
	assert.Equal(t, 3, r.Len())
}

func TestRingSlotsAreAddressable(t *testing.T) {
	r, err := NewRing[[]string](2)
	require.NoError(t, err)

	*r.Current() = append(*r.Current(), "a")
	r.Advance()
	*r.Current() = append(*r.Current(), "b")

	assert.Equal(t, []string{"a"}, *r.At(0))
	assert.Equal(t, []string{"b"}, *r.At(1))

	count := 0
	r.Each(func(i int, slot *[]string) {
		count += len(*slot)
	})
	assert.Equal(t, 2, count)
}
