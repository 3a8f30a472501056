package channelmerge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeWaitsForBothSides(t *testing.T) {
	a := make(chan int)
	b := make(chan string)
	out := Merge(a, b)

	a <- 1
	a <- 2

	select {
	case <-out:
		assert.Fail(t, "emitted before b produced a value")
	case <-time.After(10 * time.Millisecond):
	}

	b <- "x"
	merged := <-out
	assert.Equal(t, Merged[int, string]{A: 2, B: "x"}, merged)

	a <- 3
	merged = <-out
	assert.Equal(t, Merged[int, string]{A: 3, B: "x"}, merged)

	b <- "y"
	merged = <-out
	assert.Equal(t, Merged[int, string]{A: 3, B: "y"}, merged)

	close(b)
	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		require.FailNow(t, "output was not closed")
	}
}

func TestMergeClosesBeforeFirstValue(t *testing.T) {
	a := make(chan int)
	b := make(chan int)
	out := Merge(a, b)

	close(a)
	_, ok := <-out
	assert.False(t, ok)
}
