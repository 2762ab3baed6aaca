package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSlidingWindow_LengthAndOrder(t *testing.T) {
	const capacity = 3
	w := NewSlidingWindow(capacity)

	for n := 1; n <= 10; n++ {
		w.Add(column(float64(n)))

		want := n
		if want > capacity {
			want = capacity
		}
		require.Equal(t, want, w.Len())

		frames := w.Frames()
		require.Len(t, frames, want)
		for i, f := range frames {
			assert.Equal(t, float64(n-want+1+i), f.At(0, 0), "push %d, slot %d", n, i)
		}
		assert.Equal(t, float64(n), w.Latest().At(0, 0))
	}
}

func TestSlidingWindow_EvictsOldest(t *testing.T) {
	w := NewSlidingWindow(3)
	f1, f2, f3, f4 := column(1), column(2), column(3), column(4)
	for _, f := range []*mat.Dense{f1, f2, f3, f4} {
		w.Add(f)
	}

	assert.Equal(t, []*mat.Dense{f2, f3, f4}, w.Frames())
}

func TestSlidingWindow_Reset(t *testing.T) {
	w := NewSlidingWindow(2)
	w.Add(column(1))
	w.Add(column(2))
	w.Reset()

	assert.Equal(t, 0, w.Len())
	assert.Nil(t, w.Latest())
	assert.Empty(t, w.Frames())

	w.Add(column(7))
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 7.0, w.Latest().At(0, 0))
}
