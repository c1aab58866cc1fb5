package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing(t *testing.T) {
	t.Run("evicts oldest first", func(t *testing.T) {
		r := NewRing[int](3)
		for i := 1; i <= 5; i++ {
			r.Push(i)
		}
		assert.Equal(t, []int{3, 4, 5}, r.Items())
		assert.Equal(t, 3, r.Len())
	})

	t.Run("seed is trimmed to the newest items", func(t *testing.T) {
		r := NewRing(2, "a", "b", "c")
		assert.Equal(t, []string{"b", "c"}, r.Items())
	})

	t.Run("items is a copy", func(t *testing.T) {
		r := NewRing(2, 1)
		items := r.Items()
		items[0] = 99
		assert.Equal(t, []int{1}, r.Items())
	})

	t.Run("non-positive capacity becomes one", func(t *testing.T) {
		r := NewRing(0, 1, 2)
		assert.Equal(t, 1, r.Cap())
		assert.Equal(t, []int{2}, r.Items())
	})
}
